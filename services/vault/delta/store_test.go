// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package delta

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/codevault-ai/codevault/services/vault/lock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "delta_state.json")
	return NewStore(path, StoreOptions{
		Lock: lock.Options{
			RetryInterval:  5 * time.Millisecond,
			AcquireTimeout: 200 * time.Millisecond,
		},
		Logger: testLogger(),
	})
}

func loadedStore(t *testing.T) *Store {
	t.Helper()
	s := testStore(t)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// =============================================================================
// HashContent Tests
// =============================================================================

func TestHashContent_StableAndShort(t *testing.T) {
	h1 := HashContent([]byte("package main"))
	h2 := HashContent([]byte("package main"))
	if h1 != h2 {
		t.Error("same content must hash identically")
	}
	if len(h1) != 32 {
		t.Errorf("hash length = %d, want 32 hex chars (16 bytes)", len(h1))
	}
	if h1 == HashContent([]byte("package main\n")) {
		t.Error("different content must hash differently")
	}
}

// =============================================================================
// Load Tests
// =============================================================================

func TestLoad_FreshState(t *testing.T) {
	s := loadedStore(t)

	if !s.NeedsFullSync() {
		t.Error("fresh state must need a full sync")
	}
	if s.TrackedCount() != 0 {
		t.Errorf("TrackedCount = %d, want 0", s.TrackedCount())
	}
	if s.LastCommit() != "" {
		t.Errorf("LastCommit = %q, want empty", s.LastCommit())
	}
	if !s.LastSyncTime().IsZero() {
		t.Errorf("LastSyncTime = %v, want zero", s.LastSyncTime())
	}
}

func TestLoad_Idempotent(t *testing.T) {
	s := loadedStore(t)
	if err := s.Load(context.Background()); err != nil {
		t.Errorf("second Load = %v, want nil", err)
	}
}

func TestLoad_CorruptFile_FallsBackToFullSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_state.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, StoreOptions{Logger: testLogger()})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load must not fail on corrupt state: %v", err)
	}
	defer s.Close()

	if !s.NeedsFullSync() {
		t.Error("corrupt state must trigger full sync")
	}
	if s.TrackedCount() != 0 {
		t.Errorf("TrackedCount = %d, want 0 after recovery", s.TrackedCount())
	}
}

func TestLoad_VersionMismatch_FallsBackToFullSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_state.json")
	content := []byte(`{"version": 99, "files": {"a.go": {"path":"a.go","content_hash":"x","file_type":"code"}}}`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, StoreOptions{Logger: testLogger()})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()

	if !s.NeedsFullSync() {
		t.Error("version mismatch must trigger full sync")
	}
}

func TestLoad_HoldsLockAgainstSecondStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_state.json")
	opts := StoreOptions{
		Lock: lock.Options{
			RetryInterval:  5 * time.Millisecond,
			AcquireTimeout: 100 * time.Millisecond,
		},
		Logger: testLogger(),
	}

	first := NewStore(path, opts)
	if err := first.Load(context.Background()); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	defer first.Close()

	second := NewStore(path, opts)
	if err := second.Load(context.Background()); !errors.Is(err, lock.ErrAcquireTimeout) {
		t.Errorf("second Load = %v, want lock timeout while first holds", err)
	}
}

// =============================================================================
// ComputeDelta Tests
// =============================================================================

func TestComputeDelta_RequiresLoad(t *testing.T) {
	s := testStore(t)
	_, err := s.ComputeDelta(map[string][]byte{}, FileTypeCode)
	if !errors.Is(err, ErrNotLoaded) {
		t.Errorf("ComputeDelta = %v, want ErrNotLoaded", err)
	}
}

func TestComputeDelta_Partition(t *testing.T) {
	s := loadedStore(t)

	// First pass: everything added.
	first := map[string][]byte{
		"a.go": []byte("alpha"),
		"b.go": []byte("bravo"),
		"c.go": []byte("charlie"),
	}
	d, err := s.ComputeDelta(first, FileTypeCode)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.Added, []string{"a.go", "b.go", "c.go"}) {
		t.Errorf("Added = %v", d.Added)
	}
	if len(d.Modified)+len(d.Deleted)+len(d.Unchanged) != 0 {
		t.Errorf("unexpected non-added entries: %+v", d)
	}

	if err := s.MarkSynced(first, FileTypeCode); err != nil {
		t.Fatal(err)
	}

	// Second pass: one modified, one deleted, one unchanged, one new.
	second := map[string][]byte{
		"a.go": []byte("alpha"),   // unchanged
		"b.go": []byte("bravo!!"), // modified
		"d.go": []byte("delta"),   // added
	}
	d, err = s.ComputeDelta(second, FileTypeCode)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(d.Added, []string{"d.go"}) {
		t.Errorf("Added = %v, want [d.go]", d.Added)
	}
	if !reflect.DeepEqual(d.Modified, []string{"b.go"}) {
		t.Errorf("Modified = %v, want [b.go]", d.Modified)
	}
	if !reflect.DeepEqual(d.Deleted, []string{"c.go"}) {
		t.Errorf("Deleted = %v, want [c.go]", d.Deleted)
	}
	if !reflect.DeepEqual(d.Unchanged, []string{"a.go"}) {
		t.Errorf("Unchanged = %v, want [a.go]", d.Unchanged)
	}

	// Partition property: disjoint, and added+modified+unchanged
	// covers the input exactly.
	total := len(d.Added) + len(d.Modified) + len(d.Unchanged)
	if total != len(second) {
		t.Errorf("partition covers %d files, want %d", total, len(second))
	}
}

func TestComputeDelta_DeleteScopedByFileType(t *testing.T) {
	s := loadedStore(t)

	code := map[string][]byte{"main.go": []byte("code")}
	docs := map[string][]byte{"README.md": []byte("docs")}
	if err := s.MarkSynced(code, FileTypeCode); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSynced(docs, FileTypeDoc); err != nil {
		t.Fatal(err)
	}

	// A doc-only pass with no files must not delete the code entry.
	d, err := s.ComputeDelta(map[string][]byte{}, FileTypeDoc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.Deleted, []string{"README.md"}) {
		t.Errorf("Deleted = %v, want only the doc file", d.Deleted)
	}
}

func TestComputeDelta_HashNotMtime(t *testing.T) {
	s := loadedStore(t)

	files := map[string][]byte{"x.go": []byte("same content")}
	if err := s.MarkSynced(files, FileTypeCode); err != nil {
		t.Fatal(err)
	}

	// Identical content on a later pass is unchanged, no matter when
	// the file was touched.
	d, err := s.ComputeDelta(map[string][]byte{"x.go": []byte("same content")}, FileTypeCode)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Unchanged) != 1 || len(d.Modified) != 0 {
		t.Errorf("delta = %+v, want unchanged only", d)
	}
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestSaveAndReload_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_state.json")
	opts := StoreOptions{Logger: testLogger()}

	s := NewStore(path, opts)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	files := map[string][]byte{
		"a.go":      []byte("alpha"),
		"README.md": []byte("readme"),
	}
	if err := s.MarkSynced(map[string][]byte{"a.go": files["a.go"]}, FileTypeCode); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSynced(map[string][]byte{"README.md": files["README.md"]}, FileTypeDoc); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastCommit("abc123"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reloaded := NewStore(path, opts)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()

	if reloaded.NeedsFullSync() {
		t.Error("persisted state should not need full sync")
	}
	if reloaded.TrackedCount() != 2 {
		t.Errorf("TrackedCount = %d, want 2", reloaded.TrackedCount())
	}
	if reloaded.LastCommit() != "abc123" {
		t.Errorf("LastCommit = %q, want abc123", reloaded.LastCommit())
	}

	d, err := reloaded.ComputeDelta(map[string][]byte{"a.go": []byte("alpha")}, FileTypeCode)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.Unchanged, []string{"a.go"}) {
		t.Errorf("Unchanged = %v after reload", d.Unchanged)
	}
}

func TestSave_NoOpWhenClean(t *testing.T) {
	s := loadedStore(t)

	if err := s.Save(); err != nil {
		t.Errorf("Save on clean state = %v, want nil", err)
	}
	// State file should not even exist: nothing was ever dirty.
	if _, err := os.Stat(s.path); !os.IsNotExist(err) {
		t.Error("clean Save should not create the state file")
	}
}

func TestSave_WithoutLock_ContractViolation(t *testing.T) {
	s := loadedStore(t)

	if err := s.MarkSynced(map[string][]byte{"a.go": []byte("x")}, FileTypeCode); err != nil {
		t.Fatal(err)
	}
	// Drop the lock behind the store's back to provoke the contract check.
	if err := s.lock.Release(); err != nil {
		t.Fatal(err)
	}

	if err := s.Save(); !errors.Is(err, ErrLockNotHeld) {
		t.Errorf("Save = %v, want ErrLockNotHeld", err)
	}
}

func TestMarkDeleted_RemovesTracking(t *testing.T) {
	s := loadedStore(t)

	if err := s.MarkSynced(map[string][]byte{
		"a.go": []byte("alpha"),
		"b.go": []byte("bravo"),
	}, FileTypeCode); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDeleted([]string{"a.go"}); err != nil {
		t.Fatal(err)
	}

	if s.TrackedCount() != 1 {
		t.Errorf("TrackedCount = %d, want 1", s.TrackedCount())
	}
	d, _ := s.ComputeDelta(map[string][]byte{"a.go": []byte("alpha")}, FileTypeCode)
	if !reflect.DeepEqual(d.Added, []string{"a.go"}) {
		t.Errorf("deleted file reappearing should be added, got %+v", d)
	}
}

func TestReset_ClearsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_state.json")
	opts := StoreOptions{Logger: testLogger()}

	s := NewStore(path, opts)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSynced(map[string][]byte{"a.go": []byte("x")}, FileTypeCode); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewStore(path, opts)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()

	if !reloaded.NeedsFullSync() {
		t.Error("reset state must need full sync after reload")
	}
	if reloaded.TrackedCount() != 0 {
		t.Errorf("TrackedCount = %d, want 0 after reset", reloaded.TrackedCount())
	}
}

func TestClose_ReleasesLockEvenWhenCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_state.json")
	opts := StoreOptions{
		Lock: lock.Options{
			RetryInterval:  5 * time.Millisecond,
			AcquireTimeout: 500 * time.Millisecond,
		},
		Logger: testLogger(),
	}

	s := NewStore(path, opts)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// A second store must be able to take the lock immediately.
	next := NewStore(path, opts)
	if err := next.Load(context.Background()); err != nil {
		t.Errorf("Load after Close = %v, want lock available", err)
	}
	_ = next.Close()
}

func TestClose_SavesDirtyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_state.json")
	opts := StoreOptions{Logger: testLogger()}

	s := NewStore(path, opts)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSynced(map[string][]byte{"a.go": []byte("x")}, FileTypeCode); err != nil {
		t.Fatal(err)
	}
	// No explicit Save; Close must flush.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("state file missing after Close: %v", err)
	}
}
