// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/codevault-ai/codevault/services/vault/graph"
)

const defaultCommitDepth = 50

// SyncCommitHistory upserts the most recent depth commits and their
// MODIFIES edges. Keyed by SHA, so repeated runs re-upsert the same
// commits without duplication. depth <= 0 uses the configured limit.
func (o *Orchestrator) SyncCommitHistory(ctx context.Context, depth int) (*CommitSyncResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	rs := newRunState("commits")
	result, err := o.syncCommits(ctx, depth, rs)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// syncCommitsInPass runs a history sync inside a larger pass,
// degrading failures to pass errors instead of aborting: the file
// sync already landed, and history is additive enrichment.
func (o *Orchestrator) syncCommitsInPass(ctx context.Context, depth int, rs *runState) {
	result, err := o.syncCommits(ctx, depth, rs)
	if err != nil {
		rs.addError(PhaseCommit, "", err)
		return
	}
	o.log.Info("commit history synced",
		"commits", result.CommitCount,
		"modifies_edges", result.ModifiesCount,
	)
}

func (o *Orchestrator) syncCommits(ctx context.Context, depth int, rs *runState) (*CommitSyncResult, error) {
	if depth <= 0 {
		depth = o.cfg.CommitLimit
	}
	if depth <= 0 {
		depth = defaultCommitDepth
	}

	ctx, span := o.tracer.Start(ctx, "sync.commits")
	defer span.End()
	span.SetAttributes(attribute.Int("sync.commit_depth", depth))

	commits, err := o.gits.RecentCommits(ctx, depth)
	if err != nil {
		return nil, fmt.Errorf("listing recent commits: %w", err)
	}

	result := &CommitSyncResult{}
	for _, c := range commits {
		node := graph.CommitNode{
			SHA:       c.SHA,
			Author:    c.Author,
			Email:     c.Email,
			Message:   c.Message,
			Timestamp: c.Timestamp,
		}

		files, err := o.gits.CommitFiles(ctx, c.SHA)
		if err != nil {
			rs.addError(PhaseCommit, c.SHA, fmt.Errorf("listing commit files: %w", err))
			continue
		}

		// The root commit has no parent to diff against; it gets a
		// node and edges without insertion/deletion counts.
		perFile := make(map[string]graph.Edge, len(files))
		if c.ParentSHA != "" {
			stats, err := o.gits.DiffStats(ctx, c.ParentSHA, c.SHA)
			if err != nil {
				o.log.Warn("diff stats unavailable", "sha", shortSHA(c.SHA), "error", err)
			} else {
				for _, st := range stats {
					perFile[st.Path] = graph.Edge{Insertions: st.Insertions, Deletions: st.Deletions}
					node.Insertions += st.Insertions
					node.Deletions += st.Deletions
				}
			}
		}

		edges := make([]graph.Edge, 0, len(files))
		for _, f := range files {
			e := graph.Edge{Kind: graph.EdgeModifies, From: c.SHA, To: f}
			if st, ok := perFile[f]; ok {
				e.Insertions = st.Insertions
				e.Deletions = st.Deletions
			}
			edges = append(edges, e)
		}

		if err := o.graphs.UpsertCommitNodes(ctx, []graph.CommitNode{node}); err != nil {
			rs.addError(PhaseCommit, c.SHA, fmt.Errorf("upserting commit node: %w", err))
			continue
		}
		if len(edges) > 0 {
			if err := o.graphs.UpsertEdges(ctx, edges); err != nil {
				rs.addError(PhaseCommit, c.SHA, fmt.Errorf("upserting %d MODIFIES edges: %w", len(edges), err))
				continue
			}
		}
		result.CommitCount++
		result.ModifiesCount += len(edges)
	}
	return result, nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
