// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sync is the engine that keeps the graph and vector stores
// consistent with the repository's working tree and git history.
//
// Four entry points share one update pipeline: FullSync re-indexes
// everything, IncrementalSync takes an externally supplied change
// list, DeltaSync diffs content hashes against tracked state, and
// ChunkedFullSync walks large repositories in resumable slices.
// Per-file failures are collected as typed SyncErrors and never abort
// a pass; every graph write is an upsert on a natural key, so any
// mode can be re-run safely and a crashed pass is repaired by the
// next one.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/codevault-ai/codevault/services/vault/config"
	"github.com/codevault-ai/codevault/services/vault/delta"
	"github.com/codevault-ai/codevault/services/vault/git"
	"github.com/codevault-ai/codevault/services/vault/graph"
	"github.com/codevault-ai/codevault/services/vault/parser"
	"github.com/codevault-ai/codevault/services/vault/reader"
	"github.com/codevault-ai/codevault/services/vault/vector"
)

// State file names under the repository's state directory.
const (
	syncStateFile = "sync_state.json"
	reportFile    = "sync-report.json"
	errorLogFile  = "sync-errors.log"
	progressFile  = "chunked_progress.json"
)

// GitProvider is the slice of the git layer the engine consumes.
type GitProvider interface {
	TrackedFiles(ctx context.Context) ([]string, error)
	FileHashes(ctx context.Context, paths []string) (map[string]string, error)
	LastCommitSHA(ctx context.Context) (string, error)
	RecentCommits(ctx context.Context, depth int) ([]git.Commit, error)
	CommitFiles(ctx context.Context, sha string) ([]string, error)
	DiffStats(ctx context.Context, from, to string) ([]git.FileDiffStat, error)
	CurrentBranch(ctx context.Context) (string, error)
}

// GraphStore is the slice of the graph layer the engine writes.
type GraphStore interface {
	UpsertFileNodes(ctx context.Context, nodes []graph.FileNode) error
	UpsertSymbolNodes(ctx context.Context, nodes []graph.SymbolNode) error
	UpsertCommitNodes(ctx context.Context, nodes []graph.CommitNode) error
	UpsertDocumentNodes(ctx context.Context, nodes []graph.DocumentNode) error
	UpsertEdges(ctx context.Context, edges []graph.Edge) error
	DeleteFileNode(ctx context.Context, path string) error
	DeleteDocumentNode(ctx context.Context, path string) error
	GetFileNode(ctx context.Context, path string) (*graph.FileNode, error)
	GetDocumentNode(ctx context.Context, path string) (*graph.DocumentNode, error)
	BatchUpdateSymbolVectorIDs(ctx context.Context, links map[string][]string) (*graph.VectorLinkResult, error)
	Stats(ctx context.Context) (*graph.Stats, error)
}

// VectorStore is the slice of the vector layer the engine uses.
// Passing nil to Config.Vector disables the embedding step.
type VectorStore interface {
	IsConnected(ctx context.Context) bool
	EnsureCollection(ctx context.Context, name string) error
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	UpsertBatch(ctx context.Context, collection string, items []vector.ChunkItem) error
	CollectionInfo(ctx context.Context, collection string) (*vector.CollectionInfo, error)
	DeleteByFile(ctx context.Context, collection, filePath string) error
}

// Config wires an Orchestrator.
type Config struct {
	// RepoRoot is the absolute path of the repository being indexed.
	RepoRoot string

	// StateDir is where sync state lives. Defaults to
	// <RepoRoot>/.codevault.
	StateDir string

	// Sync carries the tuning knobs (workers, chunk size, limits).
	Sync config.SyncConfig

	Delta   *delta.Store
	Reader  *reader.Reader
	Parsers *parser.Registry

	// Docs parses prose files. Defaults to the markdown parser.
	Docs parser.DocumentParser

	Git   GitProvider
	Graph GraphStore

	// Vector is optional; nil skips embeddings entirely.
	Vector VectorStore

	// Collection is the vector collection name. Defaults to
	// vector.DefaultCollection.
	Collection string

	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.RepoRoot == "" {
		return errors.New("sync: repo root is required")
	}
	if c.Delta == nil {
		return errors.New("sync: delta store is required")
	}
	if c.Reader == nil {
		return errors.New("sync: reader is required")
	}
	if c.Parsers == nil {
		return errors.New("sync: parser registry is required")
	}
	if c.Git == nil {
		return errors.New("sync: git provider is required")
	}
	if c.Graph == nil {
		return errors.New("sync: graph store is required")
	}
	return nil
}

// Orchestrator runs sync passes. One Orchestrator serializes its own
// passes; cross-process exclusion comes from the delta state file
// lock, which is held for the whole load-compute-mark-save lifecycle
// of a pass.
type Orchestrator struct {
	cfg        config.SyncConfig
	repoRoot   string
	stateDir   string
	collection string

	deltas  *delta.Store
	reader  *reader.Reader
	parsers *parser.Registry
	docs    parser.DocumentParser
	gits    GitProvider
	graphs  GraphStore
	vectors VectorStore

	log    *slog.Logger
	tracer trace.Tracer

	runMu gosync.Mutex

	reportMu   gosync.Mutex
	lastReport *SyncReport
}

// New validates the wiring and creates the state directory.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.RepoRoot, config.StateDirName)
	}
	if cfg.Docs == nil {
		cfg.Docs = parser.NewMarkdownParser()
	}
	if cfg.Collection == "" {
		cfg.Collection = vector.DefaultCollection
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.StateDir, 0o750); err != nil {
		return nil, fmt.Errorf("sync: creating state dir %s: %w", cfg.StateDir, err)
	}

	return &Orchestrator{
		cfg:        cfg.Sync,
		repoRoot:   cfg.RepoRoot,
		stateDir:   cfg.StateDir,
		collection: cfg.Collection,
		deltas:     cfg.Delta,
		reader:     cfg.Reader,
		parsers:    cfg.Parsers,
		docs:       cfg.Docs,
		gits:       cfg.Git,
		graphs:     cfg.Graph,
		vectors:    cfg.Vector,
		log:        cfg.Logger,
		tracer:     otel.Tracer("vault.sync"),
	}, nil
}

// DeltaStats summarizes the tracked state. It briefly takes the delta
// state lock, so it blocks while a sync pass holds it.
func (o *Orchestrator) DeltaStats(ctx context.Context) (*DeltaStats, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if err := o.deltas.Load(ctx); err != nil {
		return nil, err
	}
	defer o.closeDeltas()

	return &DeltaStats{
		TrackedFiles:  o.deltas.TrackedCount(),
		LastSyncedAt:  o.deltas.LastSyncTime(),
		LastCommit:    o.deltas.LastCommit(),
		NeedsFullSync: o.deltas.NeedsFullSync(),
	}, nil
}

// ResetDelta clears tracked state and any chunked checkpoint, forcing
// the next pass to run full.
func (o *Orchestrator) ResetDelta(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if err := o.deltas.Load(ctx); err != nil {
		return err
	}
	defer o.closeDeltas()

	if err := o.deltas.Reset(); err != nil {
		return err
	}
	if err := delta.ClearProgress(o.progressPath()); err != nil {
		o.log.Warn("clearing chunked progress", "error", err)
	}
	o.log.Info("delta state reset")
	return nil
}

// ChunkedProgress returns the persisted chunked-sync checkpoint, or
// nil when none exists.
func (o *Orchestrator) ChunkedProgress() (*delta.Progress, error) {
	return delta.LoadProgress(o.progressPath())
}

// SyncReportSnapshot returns the report of the most recent pass: the
// in-memory one when this process ran a pass, otherwise the persisted
// one. Returns nil when no report exists yet.
func (o *Orchestrator) SyncReportSnapshot() (*SyncReport, error) {
	o.reportMu.Lock()
	last := o.lastReport
	o.reportMu.Unlock()
	if last != nil {
		return last, nil
	}
	return o.readReport()
}

func (o *Orchestrator) setLastReport(r *SyncReport) {
	o.reportMu.Lock()
	o.lastReport = r
	o.reportMu.Unlock()
}

// closeDeltas releases the delta state (saving pending changes) and
// logs rather than propagates failures, since it runs on defer paths.
func (o *Orchestrator) closeDeltas() {
	if err := o.deltas.Close(); err != nil {
		o.log.Error("closing delta state", "error", err)
	}
}

func (o *Orchestrator) progressPath() string {
	return filepath.Join(o.stateDir, progressFile)
}

func (o *Orchestrator) syncStatePath() string {
	return filepath.Join(o.stateDir, syncStateFile)
}

func (o *Orchestrator) reportPath() string {
	return filepath.Join(o.stateDir, reportFile)
}

func (o *Orchestrator) errorLogPath() string {
	return filepath.Join(o.stateDir, errorLogFile)
}
