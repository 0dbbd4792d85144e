// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"

	"github.com/codevault-ai/codevault/pkg/logging"
	"github.com/codevault-ai/codevault/services/vault/config"
	"github.com/codevault-ai/codevault/services/vault/delta"
	"github.com/codevault-ai/codevault/services/vault/git"
	"github.com/codevault-ai/codevault/services/vault/graph"
	"github.com/codevault-ai/codevault/services/vault/lock"
	"github.com/codevault-ai/codevault/services/vault/parser"
	"github.com/codevault-ai/codevault/services/vault/reader"
	syncer "github.com/codevault-ai/codevault/services/vault/sync"
	"github.com/codevault-ai/codevault/services/vault/vector"
)

// app holds the wired vault services for one command invocation.
// Commands build it, use it, and Close it; nothing here is global.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	git    *git.Manager
	graph  *graph.Store
	orch   *syncer.Orchestrator
	vector *vector.Store  // nil when the vector store is disabled
	vcli   *vector.Client // nil when the vector store is disabled

	// embedderOff is set when no embedding backend could be
	// configured; sync then skips the vector step while BM25 search
	// keeps working.
	embedderOff bool
}

// buildApp loads configuration for the target repository and wires
// every vault service.
func buildApp() (*app, error) {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(level),
		LogDir:  cfg.LogDir(),
		Service: "cv",
		JSON:    cfg.Log.JSON,
		Quiet:   quietOutput,
	})
	log := logger.Slog()

	a := &app{cfg: cfg, logger: logger}

	a.git, err = git.NewManager(cfg.Repo.Root, log)
	if err != nil {
		logger.Close()
		return nil, err
	}

	a.graph, err = graph.Open(graph.Config{
		Path:       cfg.GraphDir(),
		InMemory:   cfg.Graph.InMemory,
		SyncWrites: cfg.Graph.SyncWrites,
		GCInterval: cfg.Graph.GCInterval,
		Logger:     log,
	})
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("opening graph store: %w", err)
	}

	deltas := delta.NewStore(cfg.DeltaStatePath(), delta.StoreOptions{
		Lock: lock.Options{
			StaleTimeout:   cfg.Lock.StaleTimeout,
			RetryInterval:  cfg.Lock.RetryInterval,
			AcquireTimeout: cfg.Lock.AcquireTimeout,
			Logger:         log,
		},
		Logger: log,
	})

	denied := []string(nil)
	if len(cfg.Reader.DeniedExtensions) > 0 {
		denied = append(reader.DefaultDeniedExtensions(), cfg.Reader.DeniedExtensions...)
	}
	safeReader := reader.New(reader.Options{
		MaxSize:          cfg.Reader.MaxFileSize,
		DeniedExtensions: denied,
		Logger:           log,
	})

	parserOpts := []parser.Option{parser.WithMaxFileSize(cfg.Reader.MaxFileSize)}
	if module := goModulePath(cfg.Repo.Root); module != "" {
		parserOpts = append(parserOpts, parser.WithGoModule(module))
	}
	registry := parser.DefaultRegistry(parserOpts...)

	var vectorStore syncer.VectorStore
	if cfg.Vector.Enabled {
		a.buildVector()
		if a.vector != nil {
			vectorStore = a.vector
		}
	}

	a.orch, err = syncer.New(syncer.Config{
		RepoRoot:   cfg.Repo.Root,
		StateDir:   cfg.StateDir(),
		Sync:       cfg.Sync,
		Delta:      deltas,
		Reader:     safeReader,
		Parsers:    registry,
		Git:        a.git,
		Graph:      a.graph,
		Vector:     vectorStore,
		Collection: cfg.Vector.Class,
		Logger:     log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// buildVector wires the Weaviate client and the embedder. The client
// starts degraded when Weaviate is down, so graph-only work proceeds;
// a missing embedding key only disables the embedding step.
func (a *app) buildVector() {
	cfg := a.cfg
	slogger := a.logger.Slog()

	clientCfg := vector.DefaultClientConfig(cfg.Vector.Scheme + "://" + cfg.Vector.Host)
	clientCfg.Logger = slogger

	cli, err := vector.New(clientCfg)
	if err != nil {
		a.logger.Warn("vector store unavailable, continuing graph-only", "error", err)
		return
	}
	a.vcli = cli

	embedder, err := vector.NewOpenAIEmbedder(vector.EmbedderConfig{
		BaseURL:           cfg.Embedder.BaseURL,
		Model:             cfg.Embedder.Model,
		RequestsPerSecond: cfg.Embedder.RequestsPerSecond,
		Burst:             cfg.Embedder.Burst,
		BatchSize:         cfg.Sync.EmbedBatchSize,
		Dimensions:        cfg.Embedder.Dimensions,
		Logger:            slogger,
	})
	if err != nil {
		a.logger.Warn("no embedding backend, vector sync disabled (keyword search still works)", "error", err)
		a.embedderOff = true
		a.vector = vector.NewStore(cli, nil, slogger)
		return
	}

	a.vector = vector.NewStore(cli, embedder, slogger)
}

// Close releases every service in reverse dependency order. Safe to
// call on a partially built app.
func (a *app) Close() {
	if a.vcli != nil {
		if err := a.vcli.Close(); err != nil {
			a.logger.Warn("closing vector client", "error", err)
		}
	}
	if a.graph != nil {
		if err := a.graph.Close(); err != nil {
			a.logger.Warn("closing graph store", "error", err)
		}
	}
	config.PurgeSecrets()
	if a.logger != nil {
		a.logger.Close()
	}
}

// goModulePath reads the module path from the repository's go.mod, or
// returns "" for non-Go repositories.
func goModulePath(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}
