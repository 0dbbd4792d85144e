// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/codevault-ai/codevault/services/vault/lock"
)

// StoreOptions configures a Store.
type StoreOptions struct {
	// Lock tunes the state-file lock. Zero fields take lock defaults.
	Lock lock.Options

	// Logger receives recovery and persistence diagnostics.
	Logger *slog.Logger
}

// Store owns the persisted delta state for one repository.
//
// Lifecycle: NewStore, Load (acquires the state lock for the instance
// lifetime), any number of ComputeDelta/MarkSynced/MarkDeleted/Save
// calls, then Close (saves if dirty, always releases the lock).
//
// # Thread Safety
//
// Store is NOT safe for concurrent use. The sync engine owns one
// instance per pass; cross-process exclusion comes from the file lock.
type Store struct {
	path   string
	lock   *lock.FileLock
	log    *slog.Logger
	state  State
	loaded bool
	dirty  bool

	// recovered is set when Load discarded a corrupt state file.
	recovered bool
}

// NewStore creates a Store over the state file at path. Nothing is
// read or locked until Load.
func NewStore(path string, opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lockOpts := opts.Lock
	if lockOpts.Logger == nil {
		lockOpts.Logger = logger
	}
	return &Store{
		path: path,
		lock: lock.New(path, lockOpts),
		log:  logger,
	}
}

// Load acquires the state lock and reads the persisted state. Missing
// and corrupt files both initialize empty state; corruption is logged
// and flagged so the engine falls back to a full sync. Idempotent.
func (s *Store) Load(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	if err := s.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("locking delta state: %w", err)
	}

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		s.state = newState()
	case err != nil:
		_ = s.lock.Release()
		return fmt.Errorf("reading delta state %s: %w", s.path, err)
	default:
		var state State
		if jsonErr := json.Unmarshal(data, &state); jsonErr != nil || state.Files == nil {
			s.log.Warn("delta state unreadable, falling back to full sync",
				"path", s.path,
				"error", jsonErr,
			)
			s.state = newState()
			s.recovered = true
		} else if state.Version != StateVersion {
			s.log.Warn("delta state version mismatch, falling back to full sync",
				"path", s.path,
				"got", state.Version,
				"want", StateVersion,
			)
			s.state = newState()
			s.recovered = true
		} else {
			s.state = state
		}
	}

	s.loaded = true
	return nil
}

// ComputeDelta classifies current files against the tracked state for
// one file type. Load must have run first.
func (s *Store) ComputeDelta(current map[string][]byte, ft FileType) (Delta, error) {
	if !s.loaded {
		return Delta{}, ErrNotLoaded
	}
	return computeDelta(s.state.Files, current, ft), nil
}

// MarkSynced upserts tracked entries with fresh hashes and timestamps.
// The change is in-memory only until Save.
func (s *Store) MarkSynced(files map[string][]byte, ft FileType) error {
	if !s.loaded {
		return ErrNotLoaded
	}
	now := time.Now()
	for path, content := range files {
		s.state.Files[path] = TrackedFile{
			Path:         path,
			ContentHash:  HashContent(content),
			FileType:     ft,
			LastSyncedAt: now,
		}
	}
	s.state.LastSyncedAt = now
	s.dirty = true
	return nil
}

// MarkDeleted drops tracked entries. In-memory only until Save.
func (s *Store) MarkDeleted(paths []string) error {
	if !s.loaded {
		return ErrNotLoaded
	}
	for _, path := range paths {
		delete(s.state.Files, path)
	}
	s.dirty = true
	return nil
}

// SetLastCommit records the newest commit covered by history sync.
func (s *Store) SetLastCommit(sha string) error {
	if !s.loaded {
		return ErrNotLoaded
	}
	if s.state.LastCommit != sha {
		s.state.LastCommit = sha
		s.dirty = true
	}
	return nil
}

// LastCommit returns the newest synced commit SHA, or "" when commit
// history has never been synced.
func (s *Store) LastCommit() string {
	return s.state.LastCommit
}

// LastSyncTime returns when the last sync pass completed. Zero when
// no sync has run.
func (s *Store) LastSyncTime() time.Time {
	return s.state.LastSyncedAt
}

// TrackedCount returns the number of tracked files.
func (s *Store) TrackedCount() int {
	return len(s.state.Files)
}

// TrackedFiles returns a copy of the tracked file map for diagnostics.
func (s *Store) TrackedFiles() map[string]TrackedFile {
	out := make(map[string]TrackedFile, len(s.state.Files))
	for k, v := range s.state.Files {
		out[k] = v
	}
	return out
}

// NeedsFullSync reports whether delta computation would be meaningless:
// no prior sync, nothing tracked, or a recovered corrupt state.
func (s *Store) NeedsFullSync() bool {
	if !s.loaded {
		return true
	}
	return s.recovered || s.state.LastSyncedAt.IsZero() || len(s.state.Files) == 0
}

// Save persists the state atomically (temp file + rename). A no-op
// when nothing changed. Calling Save without holding the lock is a
// contract violation and returns ErrLockNotHeld.
func (s *Store) Save() error {
	if !s.loaded {
		return ErrNotLoaded
	}
	if !s.dirty {
		return nil
	}
	if !s.lock.Held() {
		return fmt.Errorf("%w: refusing to write %s", ErrLockNotHeld, s.path)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding delta state: %w", err)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("writing delta state: %w", err)
	}

	s.dirty = false
	return nil
}

// Reset clears all tracked state and persists immediately, forcing the
// next sync pass to run full.
func (s *Store) Reset() error {
	if !s.loaded {
		return ErrNotLoaded
	}
	s.state = newState()
	s.recovered = false
	s.dirty = true
	return s.Save()
}

// Close saves pending changes and releases the lock. The lock is
// released even when the save fails; the save error wins.
func (s *Store) Close() error {
	if !s.loaded {
		return nil
	}

	var saveErr error
	if s.dirty {
		saveErr = s.Save()
	}

	if err := s.lock.Release(); err != nil && saveErr == nil {
		saveErr = err
	}

	s.loaded = false
	return saveErr
}

// writeFileAtomic writes data via a temp file in the same directory
// followed by rename, so readers never observe a truncated file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".delta-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}
