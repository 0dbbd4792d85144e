// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes the vault over HTTP for `cv serve`.
//
// The API is a thin shell around the sync orchestrator and the graph
// and vector stores: health, stats, search, a delta-sync trigger, a
// websocket event stream, and prometheus metrics. All real work
// happens in the services the handlers delegate to.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/codevault-ai/codevault/services/vault/telemetry"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:7337".
	Addr string

	// Debug enables gin debug mode and request logging.
	Debug bool

	// ShutdownGrace bounds graceful shutdown. Zero means 10s.
	ShutdownGrace time.Duration

	Logger *slog.Logger
}

// Server is the cv HTTP API.
type Server struct {
	cfg      Config
	router   *gin.Engine
	handlers *Handlers
	log      *slog.Logger
}

// New assembles the router. The handlers carry the service
// dependencies; see NewHandlers.
func New(cfg Config, handlers *Handlers) (*Server, error) {
	if handlers == nil {
		return nil, errors.New("server: handlers are required")
	}
	if cfg.Addr == "" {
		return nil, errors.New("server: listen address is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("codevault-server"))
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	// /metrics is only live when the prometheus exporter is active.
	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}

	return &Server{
		cfg:      cfg,
		router:   router,
		handlers: handlers,
		log:      cfg.Logger,
	}, nil
}

// Router returns the gin engine, primarily for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("vault server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("vault server shutting down")
	s.handlers.events.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}
