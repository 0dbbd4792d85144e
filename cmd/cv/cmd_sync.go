// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codevault-ai/codevault/pkg/ux"
	"github.com/codevault-ai/codevault/services/vault/delta"
	syncer "github.com/codevault-ai/codevault/services/vault/sync"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	syncFull        bool
	syncChunked     bool
	syncContinue    bool
	syncMaxFiles    int
	syncIncremental []string
	syncDocs        bool
	syncNoVectors   bool
	syncCommitDepth int
	syncWorkers     int
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the knowledge graph with the repository",
	Long: `Synchronize the graph and vector stores with the working tree.

The default is a delta sync: file contents are hashed and compared
against tracked state, and only added/modified files are reparsed;
deleted files are removed from the graph. The first sync of a
repository is automatically a full sync.

Modes:
  (default)       delta sync by content hash
  --full          force a complete reindex
  --incremental   sync only the given files (no deletion detection)
  --chunked       full sync in bounded slices; combine with
                  --continue to resume an interrupted run

Examples:
  cv sync
  cv sync --full --commit-depth 200
  cv sync --incremental internal/auth/token.go
  cv sync --chunked --max-files 500
  cv sync --chunked --continue
  cv sync --docs`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false,
		"Force a full reindex of every tracked file")
	syncCmd.Flags().BoolVar(&syncChunked, "chunked", false,
		"Run a chunked full sync with resumable progress")
	syncCmd.Flags().BoolVar(&syncContinue, "continue", false,
		"Resume a chunked sync from its checkpoint")
	syncCmd.Flags().IntVar(&syncMaxFiles, "max-files", 0,
		"Bound the number of files one chunked invocation processes (0 = no bound)")
	syncCmd.Flags().StringSliceVar(&syncIncremental, "incremental", nil,
		"Sync only the given repo-relative files")
	syncCmd.Flags().BoolVar(&syncDocs, "docs", false,
		"Also sync markdown documents")
	syncCmd.Flags().BoolVar(&syncNoVectors, "no-vectors", false,
		"Skip the vector embedding step")
	syncCmd.Flags().IntVar(&syncCommitDepth, "commit-depth", 0,
		"How many commits of history to sync (0 = configured default)")
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 0,
		"Parse worker count (0 = configured default)")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runSync(cmd *cobra.Command, args []string) error {
	if syncFull && syncChunked {
		return fmt.Errorf("--full and --chunked are mutually exclusive")
	}
	if len(syncIncremental) > 0 && (syncFull || syncChunked) {
		return fmt.Errorf("--incremental cannot be combined with --full or --chunked")
	}

	a, err := buildApp()
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer a.Close()

	ctx := context.Background()
	opts := syncer.Options{
		Workers:          syncWorkers,
		CommitDepth:      syncCommitDepth,
		SkipVectors:      syncNoVectors || a.embedderOff,
		MaxFiles:         syncMaxFiles,
		ContinueFromLast: syncContinue,
	}

	switch {
	case len(syncIncremental) > 0:
		err = runIncrementalSync(ctx, a, opts)
	case syncChunked:
		err = runChunkedSync(ctx, a, opts)
	case syncFull:
		err = runFullSync(ctx, a, opts)
	default:
		err = runDeltaSync(ctx, a, opts)
	}
	if err != nil {
		ux.Error(fmt.Sprintf("Sync failed: %v", err))
		return err
	}

	if syncDocs {
		if err := runDocumentSync(ctx, a, opts); err != nil {
			ux.Error(fmt.Sprintf("Document sync failed: %v", err))
			return err
		}
	}
	return nil
}

func runFullSync(ctx context.Context, a *app, opts syncer.Options) error {
	if opts.CommitDepth == 0 {
		opts.CommitDepth = a.cfg.Sync.CommitLimit
	}

	var state *syncer.SyncState
	err := ux.WithSpinner("Running full sync...", func() error {
		var err error
		state, err = a.orch.FullSync(ctx, opts)
		return err
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(state)
	}
	printSyncState("Full sync complete", state)
	return nil
}

func runIncrementalSync(ctx context.Context, a *app, opts syncer.Options) error {
	var state *syncer.SyncState
	err := ux.WithSpinner(fmt.Sprintf("Syncing %d file(s)...", len(syncIncremental)), func() error {
		var err error
		state, err = a.orch.IncrementalSync(ctx, syncIncremental, opts)
		return err
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(state)
	}
	printSyncState("Incremental sync complete", state)
	return nil
}

func runDeltaSync(ctx context.Context, a *app, opts syncer.Options) error {
	var result *syncer.DeltaSyncResult
	err := ux.WithSpinner("Running delta sync...", func() error {
		var err error
		result, err = a.orch.DeltaSync(ctx, opts)
		return err
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}
	if result.FullSync {
		ux.Info("No usable delta state; ran a full sync instead")
		printSyncState("Full sync complete", result.State)
		return nil
	}
	d := result.Delta
	ux.DeltaSummary(len(d.Added), len(d.Modified), len(d.Deleted), len(d.Unchanged))
	printSyncState("Delta sync complete", result.State)
	return nil
}

func runChunkedSync(ctx context.Context, a *app, opts syncer.Options) error {
	var result *syncer.ChunkedSyncResult
	err := ux.WithSpinner("Running chunked sync...", func() error {
		var err error
		result, err = a.orch.ChunkedFullSync(ctx, opts)
		return err
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}
	if result.Complete {
		printSyncState("Chunked sync complete", result.State)
	} else {
		ux.Warning(fmt.Sprintf("Chunked sync paused: %d of %d files done, %d remaining",
			result.Total-result.Remaining, result.Total, result.Remaining))
		ux.Muted("Run 'cv sync --chunked --continue' to resume")
	}
	return nil
}

func runDocumentSync(ctx context.Context, a *app, opts syncer.Options) error {
	var result *syncer.DocumentSyncResult
	err := ux.WithSpinner("Syncing documents...", func() error {
		var err error
		if syncFull {
			result, err = a.orch.SyncDocuments(ctx, opts)
		} else {
			result, err = a.orch.DeltaSyncDocuments(ctx, opts)
		}
		return err
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(result)
	}
	ux.Success(fmt.Sprintf("Documents synced: %d processed, %d failed",
		result.DocumentsProcessed, result.DocumentsFailed))
	return nil
}

// printSyncState renders the pass summary for human output.
func printSyncState(title string, state *syncer.SyncState) {
	if state.FilesFailed > 0 {
		ux.Warning(fmt.Sprintf("%s with %d error(s)", title, state.FilesFailed))
	} else {
		ux.Success(title)
	}
	ux.KeyValue("Files processed", fmt.Sprintf("%d", state.FilesProcessed))
	ux.KeyValue("Symbols", fmt.Sprintf("%d", state.SymbolCount))
	ux.KeyValue("Edges", fmt.Sprintf("%d", state.EdgeCount))
	if state.VectorCount > 0 {
		ux.KeyValue("Vectors", fmt.Sprintf("%d", state.VectorCount))
	}
	if state.CommitCount > 0 {
		ux.KeyValue("Commits", fmt.Sprintf("%d", state.CommitCount))
	}
	ux.KeyValue("Duration", fmt.Sprintf("%dms", state.DurationMS))
	for _, e := range state.Errors {
		ux.FileStatus(e, ux.IconError, "")
	}
	if len(state.Errors) > 0 {
		ux.Muted("See 'cv report' for error details")
	}
}

// chunkProgressLine renders a resumable checkpoint for status output.
func chunkProgressLine(p *delta.Progress) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("chunk %d/%d (%d files total)",
		p.CompletedChunks, p.TotalChunks(), p.TotalFiles)
}
