// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/codevault-ai/codevault/services/vault/delta"
	"github.com/codevault-ai/codevault/services/vault/graph"
	"github.com/codevault-ai/codevault/services/vault/parser"
	"github.com/codevault-ai/codevault/services/vault/vector"
)

// SyncDocuments indexes every tracked prose document: one node per
// document, REFERENCES_DOC edges for links to other documents, and
// DESCRIBES edges for links to code files already in the graph.
func (o *Orchestrator) SyncDocuments(ctx context.Context, opts Options) (*DocumentSyncResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if err := o.deltas.Load(ctx); err != nil {
		return nil, err
	}
	defer o.closeDeltas()

	ctx, span := o.tracer.Start(ctx, "sync.documents")
	defer span.End()

	rs := newRunState("documents")
	files, err := o.listDocumentFiles(ctx)
	if err != nil {
		return nil, o.failRun(rs, PhaseDocument, err)
	}
	span.SetAttributes(attribute.Int("sync.documents", len(files)))

	contents := o.readFiles(files)
	result, err := o.syncDocumentSet(ctx, contents, opts, rs)
	if err != nil {
		return nil, o.failRun(rs, PhaseDocument, err)
	}
	result.DurationMS = time.Since(rs.startedAt).Milliseconds()
	return result, nil
}

// DeltaSyncDocuments processes only documents whose content changed
// and deletes nodes for removed documents.
func (o *Orchestrator) DeltaSyncDocuments(ctx context.Context, opts Options) (*DocumentSyncResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if err := o.deltas.Load(ctx); err != nil {
		return nil, err
	}
	defer o.closeDeltas()

	ctx, span := o.tracer.Start(ctx, "sync.documents.delta")
	defer span.End()

	rs := newRunState("documents")
	files, err := o.listDocumentFiles(ctx)
	if err != nil {
		return nil, o.failRun(rs, PhaseDocument, err)
	}
	contents := o.readFiles(files)

	d, err := o.deltas.ComputeDelta(contents, delta.FileTypeDoc)
	if err != nil {
		return nil, o.failRun(rs, PhaseDocument, err)
	}
	span.SetAttributes(
		attribute.Int("sync.added", len(d.Added)),
		attribute.Int("sync.modified", len(d.Modified)),
		attribute.Int("sync.deleted", len(d.Deleted)),
	)

	changed := make([]string, 0, len(d.Added)+len(d.Modified))
	changed = append(changed, d.Added...)
	changed = append(changed, d.Modified...)

	result, err := o.syncDocumentSet(ctx, subsetContents(contents, changed), opts, rs)
	if err != nil {
		return nil, o.failRun(rs, PhaseDocument, err)
	}

	if len(d.Deleted) > 0 {
		cleanVectors := o.vectors != nil && o.vectors.IsConnected(ctx)
		for _, p := range d.Deleted {
			if err := o.graphs.DeleteDocumentNode(ctx, p); err != nil {
				rs.addError(PhaseDocument, p, fmt.Errorf("deleting document node: %w", err))
				continue
			}
			if cleanVectors {
				if err := o.vectors.DeleteByFile(ctx, o.collection, p); err != nil {
					o.log.Warn("deleting document vectors", "path", p, "error", err)
				}
			}
		}
		if err := o.deltas.MarkDeleted(d.Deleted); err != nil {
			return nil, o.failRun(rs, PhaseDocument, err)
		}
	}

	result.Delta = d
	result.Errors = rs.errorCopy()
	result.DocumentsFailed = countPhase(result.Errors, PhaseDocument)
	result.DurationMS = time.Since(rs.startedAt).Milliseconds()
	return result, nil
}

func countPhase(errs []SyncError, phase Phase) int {
	n := 0
	for _, e := range errs {
		if e.Phase == phase {
			n++
		}
	}
	return n
}

// listDocumentFiles enumerates tracked files the document parser
// handles, sorted.
func (o *Orchestrator) listDocumentFiles(ctx context.Context) ([]string, error) {
	tracked, err := o.gits.TrackedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tracked files: %w", err)
	}
	exts := make(map[string]bool)
	for _, ext := range o.docs.Extensions() {
		exts[strings.ToLower(ext)] = true
	}
	out := make([]string, 0, len(tracked))
	for _, p := range tracked {
		if exts[strings.ToLower(path.Ext(p))] {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// syncDocumentSet parses and applies one batch of documents. Per-file
// parse failures degrade; store write failures propagate.
func (o *Orchestrator) syncDocumentSet(ctx context.Context, contents map[string][]byte, opts Options, rs *runState) (*DocumentSyncResult, error) {
	result := &DocumentSyncResult{}
	if len(contents) == 0 {
		return result, nil
	}

	paths := make([]string, 0, len(contents))
	for p := range contents {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	now := time.Now().UTC()
	var nodes []graph.DocumentNode
	var edges []graph.Edge
	var items []vector.ChunkItem
	synced := make(map[string][]byte, len(paths))
	inBatch := make(map[string]bool, len(paths))
	for _, p := range paths {
		inBatch[p] = true
	}

	for _, p := range paths {
		doc, err := o.docs.ParseDocument(ctx, contents[p], p)
		if err != nil {
			rs.addError(PhaseDocument, p, err)
			continue
		}
		nodes = append(nodes, graph.DocumentNode{
			Path:         doc.Path,
			Title:        doc.Title,
			Hash:         doc.Hash,
			HeadingCount: len(doc.Headings),
			LinkCount:    len(doc.Links),
			LastSyncedAt: now,
		})
		edges = append(edges, o.documentEdges(ctx, doc.Path, doc.Links, inBatch)...)
		for _, chunk := range doc.Chunks {
			items = append(items, vector.ChunkItem{
				ID:         chunk.ID,
				Content:    chunk.Content,
				FilePath:   doc.Path,
				SymbolName: chunk.SymbolHint,
				Language:   "markdown",
				Kind:       "section",
				StartLine:  chunk.StartLine,
				EndLine:    chunk.EndLine,
			})
		}
		synced[p] = contents[p]
		result.DocumentsProcessed++
	}

	if len(nodes) > 0 {
		if err := o.graphs.UpsertDocumentNodes(ctx, nodes); err != nil {
			return nil, fmt.Errorf("upserting %d document nodes: %w", len(nodes), err)
		}
	}
	if len(edges) > 0 {
		if err := o.graphs.UpsertEdges(ctx, edges); err != nil {
			return nil, fmt.Errorf("upserting %d document edges: %w", len(edges), err)
		}
		result.EdgeCount = len(edges)
	}

	if len(items) > 0 && o.vectors != nil && !opts.SkipVectors && o.vectors.IsConnected(ctx) {
		if err := o.embedDocumentChunks(ctx, items); err != nil {
			rs.addError(PhaseVector, "", err)
		} else {
			result.VectorCount = len(items)
			rs.addVectors(len(items))
		}
	}

	if err := o.deltas.MarkSynced(synced, delta.FileTypeDoc); err != nil {
		return nil, err
	}

	result.Errors = rs.errorCopy()
	result.DocumentsFailed = countPhase(result.Errors, PhaseDocument)
	return result, nil
}

// documentEdges resolves a document's links to graph edges. A link
// landing on another document becomes REFERENCES_DOC; a link landing
// on a code file becomes DESCRIBES. Targets are checked for existence
// (in this batch or the graph) so an edge never dangles; misses are
// expected and skipped.
func (o *Orchestrator) documentEdges(ctx context.Context, docPath string, links []parser.Link, inBatch map[string]bool) []graph.Edge {
	var edges []graph.Edge
	seen := make(map[string]bool)
	for _, link := range links {
		target := resolveDocLink(docPath, link.URL)
		if target == "" || target == docPath || seen[target] {
			continue
		}

		switch {
		case o.isDocumentPath(target):
			if !inBatch[target] && !o.documentNodeExists(ctx, target) {
				continue
			}
			seen[target] = true
			edges = append(edges, graph.Edge{
				Kind: graph.EdgeReferencesDoc,
				From: docPath,
				To:   target,
				Line: link.Line,
			})
		case o.isCodePath(target):
			if !o.fileNodeExists(ctx, target) {
				continue
			}
			seen[target] = true
			edges = append(edges, graph.Edge{
				Kind: graph.EdgeDescribes,
				From: docPath,
				To:   target,
				Line: link.Line,
			})
		}
	}
	return edges
}

func (o *Orchestrator) isDocumentPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range o.docs.Extensions() {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (o *Orchestrator) isCodePath(p string) bool {
	_, ok := o.parsers.ForPath(p)
	return ok
}

func (o *Orchestrator) documentNodeExists(ctx context.Context, p string) bool {
	_, err := o.graphs.GetDocumentNode(ctx, p)
	if err == nil {
		return true
	}
	if !errors.Is(err, graph.ErrNotFound) {
		o.log.Warn("checking document node", "path", p, "error", err)
	}
	return false
}

func (o *Orchestrator) fileNodeExists(ctx context.Context, p string) bool {
	_, err := o.graphs.GetFileNode(ctx, p)
	if err == nil {
		return true
	}
	if !errors.Is(err, graph.ErrNotFound) {
		o.log.Warn("checking file node", "path", p, "error", err)
	}
	return false
}

// embedDocumentChunks upserts document section embeddings. Documents
// carry no symbol linkage, so there is no batch-update step.
func (o *Orchestrator) embedDocumentChunks(ctx context.Context, items []vector.ChunkItem) error {
	if err := o.vectors.EnsureCollection(ctx, o.collection); err != nil {
		return fmt.Errorf("ensuring collection %s: %w", o.collection, err)
	}
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Content
	}
	vecs, err := o.vectors.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d document chunks: %w", len(texts), err)
	}
	if len(vecs) != len(items) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(items))
	}
	for i := range items {
		items[i].Vector = vecs[i]
	}
	if err := o.vectors.UpsertBatch(ctx, o.collection, items); err != nil {
		return fmt.Errorf("upserting %d document chunks: %w", len(items), err)
	}
	return nil
}

// resolveDocLink maps a markdown link to a repo-relative path.
// External URLs, pure fragments, and paths escaping the repository
// root yield "". Leading "/" is treated as repo-root-relative.
func resolveDocLink(fromPath, url string) string {
	if url == "" || strings.Contains(url, "://") || strings.HasPrefix(url, "mailto:") {
		return ""
	}
	url, _, _ = strings.Cut(url, "#")
	url, _, _ = strings.Cut(url, "?")
	if url == "" {
		return ""
	}

	var resolved string
	if strings.HasPrefix(url, "/") {
		resolved = path.Clean(strings.TrimPrefix(url, "/"))
	} else {
		resolved = path.Join(path.Dir(fromPath), url)
	}
	if resolved == ".." || strings.HasPrefix(resolved, "../") || resolved == "." {
		return ""
	}
	return resolved
}
