// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codevault-ai/codevault/services/vault/delta"
)

// Phase names the pipeline stage a sync error occurred in.
type Phase string

const (
	PhaseParse    Phase = "parse"
	PhaseGraph    Phase = "graph"
	PhaseVector   Phase = "vector"
	PhaseCommit   Phase = "commit"
	PhaseDocument Phase = "document"
)

// SyncError records one per-item failure inside a sync pass. A pass
// accumulates these instead of aborting: one broken file never sinks
// the batch.
type SyncError struct {
	// File is the repo-relative path (or commit SHA for the commit
	// phase). Empty for step-level failures with no single subject.
	File      string
	Err       error
	Phase     Phase
	Timestamp time.Time
}

func (e SyncError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Phase, e.File, e.Err)
}

func (e SyncError) Unwrap() error { return e.Err }

// syncErrorJSON is the wire shape of SyncError; the underlying error
// flattens to its message.
type syncErrorJSON struct {
	File      string    `json:"file,omitempty"`
	Error     string    `json:"error"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

func (e SyncError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(syncErrorJSON{
		File:      e.File,
		Error:     msg,
		Phase:     e.Phase,
		Timestamp: e.Timestamp,
	})
}

func (e *SyncError) UnmarshalJSON(data []byte) error {
	var raw syncErrorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.File = raw.File
	e.Err = errors.New(raw.Error)
	e.Phase = raw.Phase
	e.Timestamp = raw.Timestamp
	return nil
}

// SyncState is the coarse persisted summary of the last sync pass,
// written to sync_state.json after every completed pass.
type SyncState struct {
	Mode                string         `json:"mode"`
	LastFullSync        time.Time      `json:"last_full_sync"`
	LastIncrementalSync time.Time      `json:"last_incremental_sync"`
	LastCommitSHA       string         `json:"last_commit_sha,omitempty"`
	Branch              string         `json:"branch,omitempty"`
	FilesProcessed      int            `json:"files_processed"`
	FilesFailed         int            `json:"files_failed"`
	FileCount           int            `json:"file_count"`
	SymbolCount         int            `json:"symbol_count"`
	EdgeCount           int            `json:"edge_count"`
	CommitCount         int            `json:"commit_count"`
	DocumentCount       int            `json:"document_count"`
	VectorCount         int            `json:"vector_count"`
	FilesByLanguage     map[string]int `json:"files_by_language,omitempty"`
	DurationMS          int64          `json:"duration_ms"`
	Errors              []string       `json:"errors,omitempty"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ReportEnvironment captures where a sync ran.
type ReportEnvironment struct {
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Hostname  string `json:"hostname"`
}

// SyncReport is the machine-parseable record of one sync pass, written
// to sync-report.json. Unlike SyncState it keeps the typed per-item
// errors.
type SyncReport struct {
	RunID          string            `json:"run_id"`
	Mode           string            `json:"mode"`
	StartedAt      time.Time         `json:"started_at"`
	DurationMS     int64             `json:"duration_ms"`
	FilesProcessed int               `json:"files_processed"`
	FilesFailed    int               `json:"files_failed"`
	SymbolCount    int               `json:"symbol_count"`
	VectorCount    int               `json:"vector_count"`
	Environment    ReportEnvironment `json:"environment"`
	Errors         []SyncError       `json:"errors,omitempty"`
}

// DeltaSyncResult is what DeltaSync returns: the pass summary plus the
// delta it acted on. FullSync is set when missing or unusable delta
// state forced a full-sync fallback; Delta is zero in that case.
type DeltaSyncResult struct {
	State    *SyncState  `json:"state"`
	Delta    delta.Delta `json:"delta"`
	FullSync bool        `json:"full_sync"`
}

// ChunkedSyncResult reports one ChunkedFullSync invocation.
type ChunkedSyncResult struct {
	State *SyncState `json:"state"`

	// Processed is how many files this invocation handled.
	Processed int `json:"processed"`

	// Total is the size of the full eligible file list.
	Total int `json:"total"`

	// Remaining is how many files later invocations still need.
	Remaining int `json:"remaining"`

	// Complete is true once every chunk has been processed.
	Complete bool `json:"complete"`
}

// CommitSyncResult reports a commit history sync.
type CommitSyncResult struct {
	CommitCount   int `json:"commit_count"`
	ModifiesCount int `json:"modifies_count"`
}

// DocumentSyncResult reports a document sync pass. Delta is only
// populated by DeltaSyncDocuments.
type DocumentSyncResult struct {
	DocumentsProcessed int         `json:"documents_processed"`
	DocumentsFailed    int         `json:"documents_failed"`
	EdgeCount          int         `json:"edge_count"`
	VectorCount        int         `json:"vector_count"`
	Delta              delta.Delta `json:"delta,omitzero"`
	Errors             []SyncError `json:"errors,omitempty"`
	DurationMS         int64       `json:"duration_ms"`
}

// DeltaStats summarizes the tracked delta state for status commands.
type DeltaStats struct {
	TrackedFiles  int       `json:"tracked_files"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	LastCommit    string    `json:"last_commit,omitempty"`
	NeedsFullSync bool      `json:"needs_full_sync"`
}

// Options tunes a single sync invocation. The zero value uses the
// configured defaults.
type Options struct {
	// Workers overrides the configured parse worker count. 0 keeps
	// the configured value.
	Workers int

	// CommitDepth is how many commits the post-pass history sync
	// walks. FullSync skips commit history entirely when it is 0;
	// DeltaSync always syncs history and falls back to the
	// configured limit.
	CommitDepth int

	// SkipVectors disables the embedding step even when a vector
	// store is configured.
	SkipVectors bool

	// MaxFiles bounds how many files one ChunkedFullSync invocation
	// processes, rounded up to whole chunks of the configured chunk
	// size. 0 means no bound.
	MaxFiles int

	// ContinueFromLast makes ChunkedFullSync resume from its
	// persisted checkpoint instead of starting over.
	ContinueFromLast bool
}
