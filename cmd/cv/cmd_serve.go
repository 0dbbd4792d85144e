// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codevault-ai/codevault/pkg/ux"
	"github.com/codevault-ai/codevault/services/vault/server"
	"github.com/codevault-ai/codevault/services/vault/telemetry"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	serveAddr  string
	servePort  int
	serveDebug bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the vault over HTTP",
	Long: `Serve the vault API: health, graph stats, sync triggering,
semantic search, sync reports, and a websocket event stream at
/v1/vault/events. When telemetry is enabled, Prometheus metrics are
exposed at /metrics.

Examples:
  cv serve
  cv serve --addr 0.0.0.0:7337 --debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (defaults to the configured server.addr)")
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"Listen port, keeping the configured host (ignored with --addr)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false,
		"Enable request logging and gin debug mode")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, a)
	if err != nil {
		a.logger.Warn("telemetry disabled", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				a.logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	// A disabled or unreachable vector store must stay an untyped nil
	// so the handlers report search as unavailable.
	var search server.SearchService
	if a.vector != nil {
		search = a.vector
	}
	handlers := server.NewHandlers(a.orch, a.graph, search, a.cfg.Vector.Class, a.logger.Slog())

	addr := a.cfg.Server.Addr
	switch {
	case serveAddr != "":
		addr = serveAddr
	case servePort > 0:
		host, _, err := net.SplitHostPort(addr)
		if err != nil || host == "" {
			host = "127.0.0.1"
		}
		addr = net.JoinHostPort(host, strconv.Itoa(servePort))
	}
	srv, err := server.New(server.Config{
		Addr:   addr,
		Debug:  serveDebug,
		Logger: a.logger.Slog(),
	}, handlers)
	if err != nil {
		ux.Error(err.Error())
		return err
	}

	ux.Info("Serving on http://" + addr)
	if err := srv.Run(ctx); err != nil {
		ux.Error(err.Error())
		return err
	}
	return nil
}

// initTelemetry maps the vault telemetry configuration onto the
// OpenTelemetry pipeline. Metrics always use the Prometheus exporter
// when telemetry is on, so /metrics works regardless of the trace
// backend.
func initTelemetry(ctx context.Context, a *app) (func(context.Context) error, error) {
	cfg := telemetry.DefaultConfig()
	tele := a.cfg.Telemetry
	if tele.Enabled {
		cfg.TraceExporter = tele.Exporter
		cfg.MetricExporter = "prometheus"
		cfg.OTLPEndpoint = tele.Endpoint
		if tele.Environment != "" {
			cfg.Environment = tele.Environment
		}
	}
	return telemetry.Init(ctx, cfg)
}
