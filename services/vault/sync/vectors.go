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

	"github.com/codevault-ai/codevault/services/vault/parser"
	"github.com/codevault-ai/codevault/services/vault/vector"
)

// syncVectors embeds the batch's chunks and links graph symbols to
// their chunk IDs. The step is best-effort: any failure records a
// vector-phase error and leaves the graph (the source of truth)
// intact, so a pass with the vector store down still succeeds.
func (o *Orchestrator) syncVectors(ctx context.Context, parsed []*parser.ParsedFile, rs *runState) {
	ctx, span := o.tracer.Start(ctx, "sync.vectors")
	defer span.End()

	if !o.vectors.IsConnected(ctx) {
		o.log.Info("vector store unavailable, skipping embeddings")
		return
	}
	if err := o.vectors.EnsureCollection(ctx, o.collection); err != nil {
		rs.addError(PhaseVector, "", fmt.Errorf("ensuring collection %s: %w", o.collection, err))
		return
	}

	items, links := collectChunks(parsed)
	span.SetAttributes(attribute.Int("sync.chunks", len(items)))
	if len(items) == 0 {
		return
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Content
	}
	vecs, err := o.vectors.EmbedBatch(ctx, texts)
	if err != nil {
		rs.addError(PhaseVector, "", fmt.Errorf("embedding %d chunks: %w", len(texts), err))
		return
	}
	if len(vecs) != len(items) {
		rs.addError(PhaseVector, "", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(items)))
		return
	}
	for i := range items {
		items[i].Vector = vecs[i]
	}

	if err := o.vectors.UpsertBatch(ctx, o.collection, items); err != nil {
		rs.addError(PhaseVector, "", fmt.Errorf("upserting %d chunks: %w", len(items), err))
		return
	}
	rs.addVectors(len(items))

	if len(links) == 0 {
		return
	}
	result, err := o.graphs.BatchUpdateSymbolVectorIDs(ctx, links)
	if err != nil {
		rs.addError(PhaseVector, "", fmt.Errorf("linking symbol vectors: %w", err))
		return
	}
	if len(result.Errors) > 0 {
		o.log.Warn("symbol vector linkage misses", "count", len(result.Errors))
	}
	o.log.Debug("vectors synced", "chunks", len(items), "linked_symbols", result.Updated)
}

// collectChunks flattens the batch's chunks into upsertable items and
// builds the qualified-symbol to chunk-UUID map for graph linkage.
// A chunk belongs to the smallest symbol whose line range contains
// it; chunks outside any symbol are embedded without linkage.
func collectChunks(parsed []*parser.ParsedFile) ([]vector.ChunkItem, map[string][]string) {
	var items []vector.ChunkItem
	links := make(map[string][]string)

	for _, pf := range parsed {
		for _, chunk := range pf.Chunks {
			item := vector.ChunkItem{
				ID:        chunk.ID,
				Content:   chunk.Content,
				FilePath:  pf.Path,
				Language:  pf.Language,
				StartLine: chunk.StartLine,
				EndLine:   chunk.EndLine,
			}
			if owner := enclosingSymbol(pf.Symbols, chunk); owner != nil {
				item.SymbolName = owner.Name
				item.Kind = owner.Kind.String()
				links[owner.QualifiedName] = append(links[owner.QualifiedName], string(vector.ChunkUUID(chunk.ID)))
			} else if chunk.SymbolHint != "" {
				item.SymbolName = chunk.SymbolHint
			}
			items = append(items, item)
		}
	}
	return items, links
}

// enclosingSymbol picks the smallest symbol span containing the
// chunk, so a method wins over the class wrapped around it.
func enclosingSymbol(symbols []parser.Symbol, chunk parser.Chunk) *parser.Symbol {
	var best *parser.Symbol
	bestSpan := 0
	for i := range symbols {
		sym := &symbols[i]
		if sym.StartLine > chunk.StartLine || sym.EndLine < chunk.EndLine {
			continue
		}
		span := sym.EndLine - sym.StartLine
		if best == nil || span < bestSpan {
			best = sym
			bestSpan = span
		}
	}
	return best
}
