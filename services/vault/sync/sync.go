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
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/codevault-ai/codevault/services/vault/delta"
	"github.com/codevault-ai/codevault/services/vault/parser"
)

// FullSync re-indexes every eligible tracked file, purges tracked
// state for files that no longer exist, and optionally syncs commit
// history (opts.CommitDepth > 0).
func (o *Orchestrator) FullSync(ctx context.Context, opts Options) (*SyncState, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if err := o.deltas.Load(ctx); err != nil {
		return nil, err
	}
	defer o.closeDeltas()

	return o.fullSync(ctx, opts)
}

// fullSync is the body of FullSync; the caller holds runMu and the
// loaded delta state.
func (o *Orchestrator) fullSync(ctx context.Context, opts Options) (*SyncState, error) {
	ctx, span := o.tracer.Start(ctx, "sync.full")
	defer span.End()

	rs := newRunState("full")
	rs.fullCompleted = true

	files, err := o.listEligibleFiles(ctx)
	if err != nil {
		return nil, o.failRun(rs, PhaseGraph, err)
	}
	span.SetAttributes(attribute.Int("sync.files", len(files)))
	o.log.Info("full sync started", "files", len(files))

	contents := o.readFiles(files)
	parsed := o.parseFiles(ctx, contents, opts.Workers, rs)
	if err := o.updateGraph(ctx, parsed, contents, opts, rs); err != nil {
		return nil, o.failRun(rs, PhaseGraph, err)
	}
	if err := o.deltas.MarkSynced(successfulContents(contents, parsed), delta.FileTypeCode); err != nil {
		return nil, o.failRun(rs, PhaseGraph, err)
	}

	o.purgeStale(ctx, contents, rs)

	if opts.CommitDepth > 0 {
		o.syncCommitsInPass(ctx, opts.CommitDepth, rs)
	}
	o.recordHead(ctx, rs)

	return o.finishRun(ctx, rs), nil
}

// IncrementalSync indexes only the given files. Deletions are not
// computed; callers that know about removals should run DeltaSync.
func (o *Orchestrator) IncrementalSync(ctx context.Context, changed []string, opts Options) (*SyncState, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if err := o.deltas.Load(ctx); err != nil {
		return nil, err
	}
	defer o.closeDeltas()

	ctx, span := o.tracer.Start(ctx, "sync.incremental")
	defer span.End()

	rs := newRunState("incremental")

	files := o.filterParseable(changed)
	span.SetAttributes(attribute.Int("sync.files", len(files)))
	o.log.Info("incremental sync started", "files", len(files), "given", len(changed))

	contents := o.readFiles(files)
	parsed := o.parseFiles(ctx, contents, opts.Workers, rs)
	if err := o.updateGraph(ctx, parsed, contents, opts, rs); err != nil {
		return nil, o.failRun(rs, PhaseGraph, err)
	}
	if err := o.deltas.MarkSynced(successfulContents(contents, parsed), delta.FileTypeCode); err != nil {
		return nil, o.failRun(rs, PhaseGraph, err)
	}

	o.recordHead(ctx, rs)
	return o.finishRun(ctx, rs), nil
}

// DeltaSync is the default mode: it hashes the current file set
// against tracked state and processes only what changed. Missing or
// unusable tracked state falls back to a full sync. Commit history is
// re-synced every time, since new commits exist independently of
// working-tree changes.
func (o *Orchestrator) DeltaSync(ctx context.Context, opts Options) (*DeltaSyncResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if err := o.deltas.Load(ctx); err != nil {
		return nil, err
	}
	defer o.closeDeltas()

	if o.deltas.NeedsFullSync() {
		o.log.Info("no usable delta state, falling back to full sync")
		fullOpts := opts
		fullOpts.CommitDepth = o.commitDepth(opts)
		state, err := o.fullSync(ctx, fullOpts)
		if err != nil {
			return nil, err
		}
		return &DeltaSyncResult{State: state, FullSync: true}, nil
	}

	ctx, span := o.tracer.Start(ctx, "sync.delta")
	defer span.End()

	rs := newRunState("delta")

	files, err := o.listEligibleFiles(ctx)
	if err != nil {
		return nil, o.failRun(rs, PhaseGraph, err)
	}
	contents := o.readFiles(files)

	d, err := o.deltas.ComputeDelta(contents, delta.FileTypeCode)
	if err != nil {
		return nil, o.failRun(rs, PhaseGraph, err)
	}
	span.SetAttributes(
		attribute.Int("sync.added", len(d.Added)),
		attribute.Int("sync.modified", len(d.Modified)),
		attribute.Int("sync.deleted", len(d.Deleted)),
	)
	o.log.Info("delta computed",
		"added", len(d.Added),
		"modified", len(d.Modified),
		"deleted", len(d.Deleted),
		"unchanged", len(d.Unchanged),
	)

	changed := make([]string, 0, len(d.Added)+len(d.Modified))
	changed = append(changed, d.Added...)
	changed = append(changed, d.Modified...)

	if len(changed) > 0 {
		sub := subsetContents(contents, changed)
		parsed := o.parseFiles(ctx, sub, opts.Workers, rs)
		if err := o.updateGraph(ctx, parsed, sub, opts, rs); err != nil {
			return nil, o.failRun(rs, PhaseGraph, err)
		}
		if err := o.deltas.MarkSynced(successfulContents(sub, parsed), delta.FileTypeCode); err != nil {
			return nil, o.failRun(rs, PhaseGraph, err)
		}
	}

	if len(d.Deleted) > 0 {
		o.deleteFiles(ctx, d.Deleted, rs)
		if err := o.deltas.MarkDeleted(d.Deleted); err != nil {
			return nil, o.failRun(rs, PhaseGraph, err)
		}
	}

	o.syncCommitsInPass(ctx, o.commitDepth(opts), rs)
	o.recordHead(ctx, rs)

	return &DeltaSyncResult{State: o.finishRun(ctx, rs), Delta: d}, nil
}

// ChunkedFullSync processes the full file list in chunks of the
// configured size, checkpointing after each chunk so an interrupted
// run resumes with opts.ContinueFromLast. opts.MaxFiles bounds one
// invocation; 0 runs to completion.
func (o *Orchestrator) ChunkedFullSync(ctx context.Context, opts Options) (*ChunkedSyncResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if err := o.deltas.Load(ctx); err != nil {
		return nil, err
	}
	defer o.closeDeltas()

	ctx, span := o.tracer.Start(ctx, "sync.chunked")
	defer span.End()

	rs := newRunState("chunked")

	files, err := o.listEligibleFiles(ctx)
	if err != nil {
		return nil, o.failRun(rs, PhaseGraph, err)
	}
	total := len(files)
	chunkSize := o.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	prog := o.loadChunkProgress(files, chunkSize, opts.ContinueFromLast)
	span.SetAttributes(
		attribute.Int("sync.files", total),
		attribute.Int("sync.chunk_size", chunkSize),
		attribute.Int("sync.completed_chunks", prog.CompletedChunks),
	)

	processedRun := 0
	for total > 0 && !prog.Done() {
		if opts.MaxFiles > 0 && processedRun >= opts.MaxFiles {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, o.failRun(rs, PhaseGraph, err)
		}

		start := prog.CompletedChunks * chunkSize
		if start >= total {
			break
		}
		end := min(start+chunkSize, total)
		slice := files[start:end]
		o.log.Info("processing chunk",
			"chunk", prog.CompletedChunks+1,
			"of", prog.TotalChunks(),
			"files", len(slice),
		)

		contents := o.readFiles(slice)
		parsed := o.parseFiles(ctx, contents, opts.Workers, rs)
		if err := o.updateGraph(ctx, parsed, contents, opts, rs); err != nil {
			return nil, o.failRun(rs, PhaseGraph, err)
		}
		if err := o.deltas.MarkSynced(successfulContents(contents, parsed), delta.FileTypeCode); err != nil {
			return nil, o.failRun(rs, PhaseGraph, err)
		}

		prog.CompletedChunks++
		prog.UpdatedAt = time.Now().UTC()
		if err := delta.SaveProgress(o.progressPath(), prog); err != nil {
			o.log.Warn("checkpointing chunked progress", "error", err)
		}
		processedRun += len(slice)
	}

	complete := total == 0 || prog.Done()
	if complete {
		if err := delta.ClearProgress(o.progressPath()); err != nil {
			o.log.Warn("clearing chunked progress", "error", err)
		}
		o.purgeStale(ctx, nil, rs)
		o.recordHead(ctx, rs)
		rs.fullCompleted = true
	}

	covered := min(prog.CompletedChunks*chunkSize, total)
	return &ChunkedSyncResult{
		State:     o.finishRun(ctx, rs),
		Processed: processedRun,
		Total:     total,
		Remaining: total - covered,
		Complete:  complete,
	}, nil
}

const defaultChunkSize = 200

// loadChunkProgress returns the checkpoint to continue from, starting
// fresh when there is none, resume wasn't requested, or the persisted
// checkpoint no longer matches the current file list or chunk size.
func (o *Orchestrator) loadChunkProgress(files []string, chunkSize int, resume bool) delta.Progress {
	now := time.Now().UTC()
	fresh := delta.Progress{
		FileListHash: delta.HashFileList(files),
		TotalFiles:   len(files),
		ChunkSize:    chunkSize,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if !resume {
		return fresh
	}

	p, err := delta.LoadProgress(o.progressPath())
	if err != nil {
		o.log.Warn("unreadable chunked progress, restarting", "error", err)
		return fresh
	}
	if p == nil {
		return fresh
	}
	if !p.Matches(fresh.FileListHash, fresh.TotalFiles, chunkSize) {
		o.log.Info("file list changed since last chunked run, restarting",
			"was", p.TotalFiles,
			"now", fresh.TotalFiles,
		)
		if err := delta.ClearProgress(o.progressPath()); err != nil {
			o.log.Warn("clearing chunked progress", "error", err)
		}
		return fresh
	}
	o.log.Info("resuming chunked sync",
		"completed_chunks", p.CompletedChunks,
		"total_chunks", p.TotalChunks(),
	)
	return *p
}

// purgeStale removes graph and tracked state for code files that no
// longer exist in the working tree. current may be nil, in which case
// the tree is re-listed.
func (o *Orchestrator) purgeStale(ctx context.Context, current map[string][]byte, rs *runState) {
	if current == nil {
		files, err := o.listEligibleFiles(ctx)
		if err != nil {
			o.log.Warn("listing files for stale purge", "error", err)
			return
		}
		current = make(map[string][]byte, len(files))
		for _, f := range files {
			current[f] = nil
		}
	}

	var stale []string
	for path, tf := range o.deltas.TrackedFiles() {
		if tf.FileType != delta.FileTypeCode {
			continue
		}
		if _, ok := current[path]; !ok {
			stale = append(stale, path)
		}
	}
	if len(stale) == 0 {
		return
	}
	sort.Strings(stale)
	o.log.Info("purging stale tracked files", "count", len(stale))
	o.deleteFiles(ctx, stale, rs)
	if err := o.deltas.MarkDeleted(stale); err != nil {
		o.log.Warn("purging stale tracked state", "error", err)
	}
}

// deleteFiles removes graph nodes (and, when available, vector
// chunks) for deleted files. Failures degrade per item.
func (o *Orchestrator) deleteFiles(ctx context.Context, paths []string, rs *runState) {
	cleanVectors := o.vectors != nil && o.vectors.IsConnected(ctx)
	for _, p := range paths {
		if err := o.graphs.DeleteFileNode(ctx, p); err != nil {
			rs.addError(PhaseGraph, p, fmt.Errorf("deleting file node: %w", err))
			continue
		}
		if cleanVectors {
			if err := o.vectors.DeleteByFile(ctx, o.collection, p); err != nil {
				o.log.Warn("deleting vector chunks", "path", p, "error", err)
			}
		}
		o.log.Debug("deleted file from graph", "path", p)
	}
}

// commitDepth picks the history depth for a pass.
func (o *Orchestrator) commitDepth(opts Options) int {
	if opts.CommitDepth > 0 {
		return opts.CommitDepth
	}
	if o.cfg.CommitLimit > 0 {
		return o.cfg.CommitLimit
	}
	return defaultCommitDepth
}

// listEligibleFiles enumerates tracked files a registered parser can
// handle, in sorted order so chunk boundaries are stable.
func (o *Orchestrator) listEligibleFiles(ctx context.Context) ([]string, error) {
	tracked, err := o.gits.TrackedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tracked files: %w", err)
	}
	out := make([]string, 0, len(tracked))
	for _, p := range tracked {
		if _, ok := o.parsers.ForPath(p); ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// filterParseable keeps the files a registered parser can handle,
// normalized and sorted.
func (o *Orchestrator) filterParseable(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		p = filepath.ToSlash(filepath.Clean(p))
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, ok := o.parsers.ForPath(p); ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// readFiles reads each file through the safety checks, keyed by
// repo-relative path. Unreadable files are skipped; the reader logs
// the reason.
func (o *Orchestrator) readFiles(files []string) map[string][]byte {
	contents := make(map[string][]byte, len(files))
	for _, p := range files {
		res := o.reader.SafeReadFile(filepath.Join(o.repoRoot, p))
		if res.Skipped() {
			continue
		}
		contents[p] = []byte(res.Content)
	}
	return contents
}

// subsetContents picks the given paths out of contents.
func subsetContents(contents map[string][]byte, paths []string) map[string][]byte {
	out := make(map[string][]byte, len(paths))
	for _, p := range paths {
		if c, ok := contents[p]; ok {
			out[p] = c
		}
	}
	return out
}

// successfulContents keeps only files that produced a parse result,
// so failed files stay untracked and retry on the next pass.
func successfulContents(contents map[string][]byte, parsed []*parser.ParsedFile) map[string][]byte {
	out := make(map[string][]byte, len(parsed))
	for _, pf := range parsed {
		if c, ok := contents[pf.Path]; ok {
			out[pf.Path] = c
		}
	}
	return out
}
