// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ProgressVersion identifies the chunked progress checkpoint schema.
const ProgressVersion = "1.0.0"

// Progress records how far a chunked full sync has advanced, so an
// interrupted run resumes instead of restarting.
//
// FileListHash binds the checkpoint to the exact ordered file list it
// was computed over. If the repository's eligible file list changes
// between runs, chunk boundaries shift and completed-chunk counts stop
// meaning anything, so a hash mismatch discards the checkpoint.
type Progress struct {
	FileListHash    string    `json:"file_list_hash"`
	TotalFiles      int       `json:"total_files"`
	ChunkSize       int       `json:"chunk_size"`
	CompletedChunks int       `json:"completed_chunks"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TotalChunks returns how many chunks the full pass needs.
func (p Progress) TotalChunks() int {
	if p.ChunkSize <= 0 {
		return 0
	}
	return (p.TotalFiles + p.ChunkSize - 1) / p.ChunkSize
}

// Done reports whether every chunk has completed.
func (p Progress) Done() bool {
	return p.TotalChunks() > 0 && p.CompletedChunks >= p.TotalChunks()
}

// Matches reports whether the checkpoint still applies to the given
// file list and chunk size.
func (p Progress) Matches(fileListHash string, totalFiles, chunkSize int) bool {
	return p.FileListHash == fileListHash &&
		p.TotalFiles == totalFiles &&
		p.ChunkSize == chunkSize
}

// HashFileList produces an order-sensitive hash over the eligible file
// list: SHA-256 of the list length followed by each path. Callers must
// pass the list in its canonical (sorted) order.
func HashFileList(paths []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\n", len(paths))
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// serializableProgress is the on-disk checkpoint format.
type serializableProgress struct {
	Progress  Progress  `json:"progress"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Checksum  string    `json:"checksum"`
}

// progressChecksum hashes the checkpoint minus its checksum field.
func progressChecksum(p Progress, timestamp time.Time) (string, error) {
	data := struct {
		Progress  Progress  `json:"progress"`
		Timestamp time.Time `json:"timestamp"`
		Version   string    `json:"version"`
	}{
		Progress:  p,
		Timestamp: timestamp,
		Version:   ProgressVersion,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	sum := sha256.Sum256(jsonData)
	return hex.EncodeToString(sum[:]), nil
}

// SaveProgress writes the checkpoint atomically (temp file + rename).
func SaveProgress(path string, p Progress) error {
	timestamp := time.Now()
	checksum, err := progressChecksum(p, timestamp)
	if err != nil {
		return fmt.Errorf("compute progress checksum: %w", err)
	}

	sp := serializableProgress{
		Progress:  p,
		Timestamp: timestamp,
		Version:   ProgressVersion,
		Checksum:  checksum,
	}
	data, err := json.MarshalIndent(sp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// LoadProgress reads and verifies the checkpoint. Returns (nil, nil)
// when no checkpoint exists. Corrupt or version-mismatched checkpoints
// return ErrProgressCorrupt / ErrProgressVersionMismatch; callers
// treat both as "start over".
func LoadProgress(path string) (*Progress, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}

	var sp serializableProgress
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgressCorrupt, err)
	}

	if sp.Version != ProgressVersion {
		return nil, fmt.Errorf("%w: got %s, want %s",
			ErrProgressVersionMismatch, sp.Version, ProgressVersion)
	}

	expected, err := progressChecksum(sp.Progress, sp.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("compute checksum for verification: %w", err)
	}
	if sp.Checksum != expected {
		return nil, ErrProgressCorrupt
	}

	return &sp.Progress, nil
}

// ClearProgress removes the checkpoint. Missing file is not an error.
func ClearProgress(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove progress: %w", err)
	}
	return nil
}
