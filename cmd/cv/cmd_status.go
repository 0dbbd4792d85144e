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
	"time"

	"github.com/spf13/cobra"

	"github.com/codevault-ai/codevault/pkg/ux"
	"github.com/codevault-ai/codevault/services/vault/delta"
	"github.com/codevault-ai/codevault/services/vault/graph"
	syncer "github.com/codevault-ai/codevault/services/vault/sync"
	"github.com/codevault-ai/codevault/services/vault/vector"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state, delta state, and graph contents",
	Long: `Show what the knowledge graph currently knows: the last sync
pass, the tracked delta state, node and edge counts, any paused
chunked sync, and the vector collection when one is configured.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// statusView is the --json shape of cv status.
type statusView struct {
	LastSync   *syncer.SyncState      `json:"last_sync"`
	Delta      *syncer.DeltaStats     `json:"delta"`
	Graph      *graph.Stats           `json:"graph"`
	Chunked    *delta.Progress        `json:"chunked,omitempty"`
	Collection *vector.CollectionInfo `json:"collection,omitempty"`
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer a.Close()

	ctx := context.Background()
	view := statusView{}

	if view.LastSync, err = a.orch.LoadSyncState(); err != nil {
		return err
	}
	if view.Delta, err = a.orch.DeltaStats(ctx); err != nil {
		return err
	}
	if view.Graph, err = a.graph.Stats(ctx); err != nil {
		return err
	}
	if view.Chunked, err = a.orch.ChunkedProgress(); err != nil {
		return err
	}
	if a.vector != nil && a.vector.IsConnected(ctx) {
		// Collection info is best-effort; a cold Weaviate should not
		// fail the status command.
		if info, err := a.vector.CollectionInfo(ctx, a.cfg.Vector.Class); err == nil {
			view.Collection = info
		}
	}

	if jsonOutput {
		return printJSON(view)
	}
	printStatus(&view, a)
	return nil
}

func printStatus(view *statusView, a *app) {
	ux.Title("CodeVault status")

	if view.LastSync == nil {
		ux.Warning("No sync has run yet")
		ux.Muted("Run 'cv sync' to index the repository")
	} else {
		s := view.LastSync
		ux.KeyValue("Last sync", fmt.Sprintf("%s (%s)", s.UpdatedAt.Format(time.RFC3339), s.Mode))
		if s.Branch != "" {
			ux.KeyValue("Branch", s.Branch)
		}
		if s.LastCommitSHA != "" {
			ux.KeyValue("Commit", shortSHA(s.LastCommitSHA))
		}
		if s.FilesFailed > 0 {
			ux.KeyValue("Failures", fmt.Sprintf("%d (see 'cv report')", s.FilesFailed))
		}
	}

	d := view.Delta
	if d.NeedsFullSync {
		ux.Warning("Delta state unusable; next sync will be a full sync")
	} else {
		ux.KeyValue("Tracked files", fmt.Sprintf("%d", d.TrackedFiles))
	}

	g := view.Graph
	ux.KeyValue("Graph", fmt.Sprintf("%d files, %d symbols, %d edges", g.FileCount, g.SymbolCount, g.EdgeCount))
	if g.CommitCount > 0 {
		ux.KeyValue("Commits", fmt.Sprintf("%d", g.CommitCount))
	}
	if g.DocumentCount > 0 {
		ux.KeyValue("Documents", fmt.Sprintf("%d", g.DocumentCount))
	}

	if view.Chunked != nil {
		ux.Warning("Chunked sync paused: " + chunkProgressLine(view.Chunked))
	}

	switch {
	case !a.cfg.Vector.Enabled:
		ux.Muted("Vector store: disabled")
	case view.Collection != nil:
		ux.KeyValue("Vectors", fmt.Sprintf("%d chunks in %s", view.Collection.Count, view.Collection.Name))
	default:
		ux.Warning("Vector store: unreachable")
	}
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
