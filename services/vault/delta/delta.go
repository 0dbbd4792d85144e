// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package delta tracks per-file content hashes between sync passes and
// classifies the current file set into added, modified, deleted, and
// unchanged against that record.
//
// Content hashes, not mtimes, are authoritative: a touched-but-equal
// file is unchanged, and clock skew cannot fake a modification. The
// persisted state file is guarded by the lock package; a corrupt state
// file downgrades to empty state so the next sync runs full.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// StateVersion identifies the delta_state.json schema.
const StateVersion = 1

// FileType distinguishes the two tracked file populations. Deltas are
// computed within one population at a time, so a doc-only sync pass
// cannot mark every code file deleted.
type FileType string

const (
	// FileTypeCode marks source files that feed the symbol graph.
	FileTypeCode FileType = "code"

	// FileTypeDoc marks markdown files that feed document nodes.
	FileTypeDoc FileType = "doc"
)

// TrackedFile is the persisted record for one synced file.
type TrackedFile struct {
	Path         string    `json:"path"`
	ContentHash  string    `json:"content_hash"`
	FileType     FileType  `json:"file_type"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// State is the persisted shape of delta_state.json.
type State struct {
	Version      int                    `json:"version"`
	Files        map[string]TrackedFile `json:"files"`
	LastCommit   string                 `json:"last_commit,omitempty"`
	LastSyncedAt time.Time              `json:"last_synced_at"`
}

// newState returns an empty state at the current schema version.
func newState() State {
	return State{
		Version: StateVersion,
		Files:   make(map[string]TrackedFile),
	}
}

// Delta partitions a file population against the tracked state. The
// four slices are disjoint; Added+Modified+Unchanged covers exactly
// the input set, Deleted covers tracked files missing from it. Slices
// are sorted for deterministic reporting.
type Delta struct {
	Added     []string
	Modified  []string
	Deleted   []string
	Unchanged []string
}

// IsEmpty reports whether the delta requires no graph work.
func (d Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// ChangedCount returns the number of files needing re-indexing.
func (d Delta) ChangedCount() int {
	return len(d.Added) + len(d.Modified)
}

// HashContent returns the canonical content hash: SHA-256 truncated to
// 16 bytes, hex encoded (32 characters). Truncation is fine here, this
// is change detection, not authentication.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:16])
}

// computeDelta classifies current against tracked for one file type.
func computeDelta(tracked map[string]TrackedFile, current map[string][]byte, ft FileType) Delta {
	var d Delta

	for path, content := range current {
		prev, ok := tracked[path]
		switch {
		case !ok:
			d.Added = append(d.Added, path)
		case prev.ContentHash != HashContent(content):
			d.Modified = append(d.Modified, path)
		default:
			d.Unchanged = append(d.Unchanged, path)
		}
	}

	for path, file := range tracked {
		if file.FileType != ft {
			continue
		}
		if _, ok := current[path]; !ok {
			d.Deleted = append(d.Deleted, path)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Deleted)
	sort.Strings(d.Unchanged)
	return d
}
