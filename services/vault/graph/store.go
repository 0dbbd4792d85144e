// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph persists the code knowledge graph in an embedded
// BadgerDB store.
//
// Every node and edge lives under a natural key (file path, symbol
// qualified name, commit SHA, document path), so all writes are
// upserts and re-running a sync against unchanged input cannot create
// duplicates. Rows cross the API boundary as typed structs, never raw
// maps.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when a node key has no row.
var ErrNotFound = errors.New("graph: node not found")

// Config holds configuration for the graph store.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is set.
	Path string

	// InMemory enables in-memory mode, used by tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC rewrites a value log file.
	GCDiscardRatio float64

	// Logger receives store and BadgerDB log output. Nil disables
	// BadgerDB's internal logging.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a persistent store.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no
// GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the embedded graph database.
//
// Thread Safety: all methods are safe for concurrent use. The
// underlying BadgerDB handles transaction isolation; the in-memory
// name index is guarded by its own lock.
type Store struct {
	db  *badger.DB
	cfg Config
	log *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}

	flight singleflight.Group

	mu      sync.RWMutex
	byName  map[string][]string
	indexed bool
}

// Open opens the graph store, creating the directory for persistent
// configurations. A GC goroutine is started when GCInterval is set.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("graph: path is required for persistent store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("graph: create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("graph: open store: %w", err)
	}

	s := &Store{
		db:  db,
		cfg: cfg,
		log: logger,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC()
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

// DropAll removes every row. Used by reset.
func (s *Store) DropAll() error {
	s.invalidateIndex()
	return s.db.DropAll()
}

func (s *Store) runGC() {
	defer close(s.gcDone)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing to collect, not a failure.
			err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio)
			if err == nil {
				s.log.Debug("graph value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn("graph value log GC error", "error", err)
			}
		}
	}
}

// update runs fn in a read-write transaction, splitting into multiple
// commits when a batch outgrows a single transaction.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("graph: context canceled: %w", err)
	}
	return s.db.Update(fn)
}

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("graph: context canceled: %w", err)
	}
	return s.db.View(fn)
}

// setMany writes key/value pairs, committing and reopening the
// transaction whenever it fills up.
func (s *Store) setMany(ctx context.Context, pairs []kv) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("graph: context canceled: %w", err)
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	for _, p := range pairs {
		err := txn.Set(p.key, p.value)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("graph: commit batch: %w", err)
			}
			txn = s.db.NewTransaction(true)
			err = txn.Set(p.key, p.value)
		}
		if err != nil {
			return fmt.Errorf("graph: set %s: %w", p.key, err)
		}
	}
	return txn.Commit()
}

// deleteMany removes keys with the same overflow handling as setMany.
func (s *Store) deleteMany(keys [][]byte) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	for _, key := range keys {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("graph: commit batch: %w", err)
			}
			txn = s.db.NewTransaction(true)
			err = txn.Delete(key)
		}
		if err != nil {
			return fmt.Errorf("graph: delete %s: %w", key, err)
		}
	}
	return txn.Commit()
}

type kv struct {
	key   []byte
	value []byte
}
