// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package delta

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleProgress() *Progress {
	return &Progress{
		FileListHash:    HashFileList([]string{"a.go", "b.go", "c.go"}),
		TotalFiles:      3,
		ChunkSize:       2,
		CompletedChunks: 1,
		StartedAt:       time.Now().Add(-time.Minute),
		UpdatedAt:       time.Now(),
	}
}

// =============================================================================
// Progress Arithmetic Tests
// =============================================================================

func TestProgress_TotalChunks(t *testing.T) {
	tests := []struct {
		name       string
		totalFiles int
		chunkSize  int
		want       int
	}{
		{"exact multiple", 400, 200, 2},
		{"remainder adds chunk", 401, 200, 3},
		{"fewer files than chunk", 5, 200, 1},
		{"zero files", 0, 200, 0},
		{"zero chunk size", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Progress{TotalFiles: tt.totalFiles, ChunkSize: tt.chunkSize}
			if got := p.TotalChunks(); got != tt.want {
				t.Errorf("TotalChunks() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProgress_Done(t *testing.T) {
	p := &Progress{TotalFiles: 5, ChunkSize: 2, CompletedChunks: 2}
	if p.Done() {
		t.Error("2 of 3 chunks should not be done")
	}
	p.CompletedChunks = 3
	if !p.Done() {
		t.Error("3 of 3 chunks should be done")
	}
}

func TestProgress_Matches(t *testing.T) {
	files := []string{"a.go", "b.go"}
	hash := HashFileList(files)
	p := &Progress{FileListHash: hash, TotalFiles: 2, ChunkSize: 10}

	if !p.Matches(hash, 2, 10) {
		t.Error("identical parameters must match")
	}
	if p.Matches(HashFileList([]string{"a.go", "z.go"}), 2, 10) {
		t.Error("different file list must not match")
	}
	if p.Matches(hash, 3, 10) {
		t.Error("different file count must not match")
	}
	if p.Matches(hash, 2, 20) {
		t.Error("different chunk size must not match")
	}
}

func TestHashFileList_OrderSensitive(t *testing.T) {
	a := HashFileList([]string{"a.go", "b.go"})
	b := HashFileList([]string{"b.go", "a.go"})
	if a == b {
		t.Error("hash must depend on file order")
	}
	if a != HashFileList([]string{"a.go", "b.go"}) {
		t.Error("hash must be deterministic")
	}

	// Length is part of the hash: a list that concatenates to the same
	// bytes but holds a different count must differ.
	if HashFileList([]string{"ab"}) == HashFileList([]string{"a", "b"}) {
		t.Error("hash must bind the element count")
	}
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestProgress_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunked_progress.json")
	want := sampleProgress()

	if err := SaveProgress(path, *want); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	got, err := LoadProgress(path)
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}

	if got.FileListHash != want.FileListHash {
		t.Errorf("FileListHash = %q, want %q", got.FileListHash, want.FileListHash)
	}
	if got.CompletedChunks != want.CompletedChunks {
		t.Errorf("CompletedChunks = %d, want %d", got.CompletedChunks, want.CompletedChunks)
	}
	if got.TotalFiles != want.TotalFiles || got.ChunkSize != want.ChunkSize {
		t.Errorf("shape = %d/%d, want %d/%d", got.TotalFiles, got.ChunkSize, want.TotalFiles, want.ChunkSize)
	}
}

func TestLoadProgress_Missing(t *testing.T) {
	p, err := LoadProgress(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Errorf("missing file err = %v, want nil", err)
	}
	if p != nil {
		t.Error("missing file must yield nil progress")
	}
}

func TestLoadProgress_CorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunked_progress.json")
	if err := os.WriteFile(path, []byte("not json at all"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadProgress(path); !errors.Is(err, ErrProgressCorrupt) {
		t.Errorf("LoadProgress = %v, want ErrProgressCorrupt", err)
	}
}

func TestLoadProgress_TamperedChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunked_progress.json")
	if err := SaveProgress(path, *sampleProgress()); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(raw), `"completed_chunks": 1`, `"completed_chunks": 9`, 1)
	if tampered == string(raw) {
		t.Fatal("tamper target not found in serialized progress")
	}
	if err := os.WriteFile(path, []byte(tampered), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadProgress(path); !errors.Is(err, ErrProgressCorrupt) {
		t.Errorf("LoadProgress = %v, want ErrProgressCorrupt for tampered payload", err)
	}
}

func TestLoadProgress_VersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunked_progress.json")
	if err := SaveProgress(path, *sampleProgress()); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	swapped := strings.Replace(string(raw), ProgressVersion, "0.0.1", 1)
	if err := os.WriteFile(path, []byte(swapped), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadProgress(path); !errors.Is(err, ErrProgressVersionMismatch) {
		t.Errorf("LoadProgress = %v, want ErrProgressVersionMismatch", err)
	}
}

func TestClearProgress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunked_progress.json")
	if err := SaveProgress(path, *sampleProgress()); err != nil {
		t.Fatal(err)
	}

	if err := ClearProgress(path); err != nil {
		t.Fatalf("ClearProgress: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("progress file should be gone")
	}
	// Clearing an absent file is fine.
	if err := ClearProgress(path); err != nil {
		t.Errorf("second ClearProgress = %v, want nil", err)
	}
}
