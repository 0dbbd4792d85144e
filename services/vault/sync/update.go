// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/codevault-ai/codevault/services/vault/graph"
	"github.com/codevault-ai/codevault/services/vault/parser"
)

// updateGraph applies one parsed batch to the graph in five strictly
// ordered steps: file nodes, symbol nodes, import edges, call edges,
// then embeddings. Later steps query indexes built from earlier ones,
// so the order is load-bearing. Store-level write failures propagate;
// per-item resolution misses degrade silently.
func (o *Orchestrator) updateGraph(ctx context.Context, parsed []*parser.ParsedFile, contents map[string][]byte, opts Options, rs *runState) error {
	if len(parsed) == 0 {
		return nil
	}
	ctx, span := o.tracer.Start(ctx, "sync.updateGraph")
	defer span.End()
	span.SetAttributes(attribute.Int("sync.batch_size", len(parsed)))

	if err := o.upsertFileNodes(ctx, parsed, contents); err != nil {
		return err
	}
	if err := o.upsertSymbolNodes(ctx, parsed, rs); err != nil {
		return err
	}
	batch := newBatchIndex(parsed)
	if err := o.upsertImportEdges(ctx, batch); err != nil {
		return err
	}
	if err := o.upsertCallEdges(ctx, batch); err != nil {
		return err
	}
	if o.vectors != nil && !opts.SkipVectors {
		o.syncVectors(ctx, parsed, rs)
	}
	return nil
}

// upsertFileNodes writes one node per file. Git hashes for the whole
// batch come from a single invocation; when git cannot provide them
// the nodes carry empty hashes rather than failing the batch.
func (o *Orchestrator) upsertFileNodes(ctx context.Context, parsed []*parser.ParsedFile, contents map[string][]byte) error {
	paths := make([]string, 0, len(parsed))
	for _, pf := range parsed {
		paths = append(paths, pf.Path)
	}
	hashes, err := o.gits.FileHashes(ctx, paths)
	if err != nil {
		o.log.Warn("git hashes unavailable for batch", "files", len(paths), "error", err)
		hashes = nil
	}

	now := time.Now().UTC()
	nodes := make([]graph.FileNode, 0, len(parsed))
	for _, pf := range parsed {
		content := contents[pf.Path]
		complexity := 0
		for _, sym := range pf.Symbols {
			complexity += sym.Complexity
		}
		nodes = append(nodes, graph.FileNode{
			Path:         pf.Path,
			Language:     pf.Language,
			GitHash:      hashes[pf.Path],
			Size:         int64(len(content)),
			LineCount:    countLines(content),
			Complexity:   complexity,
			SymbolCount:  len(pf.Symbols),
			LastSyncedAt: now,
		})
	}
	if err := o.graphs.UpsertFileNodes(ctx, nodes); err != nil {
		return fmt.Errorf("upserting %d file nodes: %w", len(nodes), err)
	}
	return nil
}

func (o *Orchestrator) upsertSymbolNodes(ctx context.Context, parsed []*parser.ParsedFile, rs *runState) error {
	var nodes []graph.SymbolNode
	for _, pf := range parsed {
		for _, sym := range pf.Symbols {
			nodes = append(nodes, graph.SymbolNode{
				QualifiedName: sym.QualifiedName,
				Name:          sym.Name,
				Kind:          sym.Kind.String(),
				FilePath:      pf.Path,
				StartLine:     sym.StartLine,
				EndLine:       sym.EndLine,
				Signature:     sym.Signature,
				DocComment:    sym.DocComment,
				Receiver:      sym.Receiver,
				Exported:      sym.Exported,
				Complexity:    sym.Complexity,
			})
		}
	}
	if len(nodes) == 0 {
		return nil
	}
	if err := o.graphs.UpsertSymbolNodes(ctx, nodes); err != nil {
		return fmt.Errorf("upserting %d symbol nodes: %w", len(nodes), err)
	}
	rs.addSymbols(len(nodes))
	return nil
}

// batchIndex holds the per-batch lookup structures import and call
// resolution work from. All of it is built from the batch being
// synced: targets outside the batch are deliberately out of reach,
// since their nodes and edges already exist from prior passes.
type batchIndex struct {
	parsed []*parser.ParsedFile

	// byPath indexes the batch by file path.
	byPath map[string]*parser.ParsedFile

	// byDir groups batch file paths by directory, for Go package
	// imports.
	byDir map[string][]string

	// tables maps file path to its bare-name symbol table.
	tables map[string]map[string]string

	// exported maps bare exported names to qualified names, first
	// writer (in sorted file order) wins.
	exported map[string]string
}

func newBatchIndex(parsed []*parser.ParsedFile) *batchIndex {
	b := &batchIndex{
		parsed:   parsed,
		byPath:   make(map[string]*parser.ParsedFile, len(parsed)),
		byDir:    make(map[string][]string),
		tables:   make(map[string]map[string]string, len(parsed)),
		exported: make(map[string]string),
	}
	for _, pf := range parsed {
		b.byPath[pf.Path] = pf
		dir := path.Dir(pf.Path)
		b.byDir[dir] = append(b.byDir[dir], pf.Path)
		b.tables[pf.Path] = pf.SymbolTable()
		for _, sym := range pf.Symbols {
			if !sym.Exported {
				continue
			}
			if _, ok := b.exported[sym.Name]; !ok {
				b.exported[sym.Name] = sym.QualifiedName
			}
		}
	}
	return b
}

// importTargets resolves one import to the batch files it points at.
// Go imports name a package directory, so every batch file in that
// directory is a target; TypeScript and Python imports resolve
// through their extension candidates to a single file.
func (b *batchIndex) importTargets(language string, imp parser.Import) []string {
	if imp.ResolvedPath == "" {
		return nil
	}
	switch language {
	case "go":
		return b.byDir[imp.ResolvedPath]
	case "typescript":
		for _, cand := range parser.TSImportCandidates(imp.ResolvedPath) {
			if _, ok := b.byPath[cand]; ok {
				return []string{cand}
			}
		}
	case "python":
		for _, cand := range parser.PythonImportCandidates(imp.ResolvedPath) {
			if _, ok := b.byPath[cand]; ok {
				return []string{cand}
			}
		}
	default:
		if _, ok := b.byPath[imp.ResolvedPath]; ok {
			return []string{imp.ResolvedPath}
		}
	}
	return nil
}

// upsertImportEdges writes IMPORTS edges for local imports whose
// target is in the current batch. Imports pointing outside the batch
// are skipped without error: the target simply wasn't re-parsed, and
// its edges survive from the pass that did.
func (o *Orchestrator) upsertImportEdges(ctx context.Context, batch *batchIndex) error {
	var edges []graph.Edge
	for _, pf := range batch.parsed {
		for _, imp := range pf.Imports {
			for _, target := range batch.importTargets(pf.Language, imp) {
				if target == pf.Path {
					continue
				}
				edges = append(edges, graph.Edge{
					Kind:  graph.EdgeImports,
					From:  pf.Path,
					To:    target,
					Line:  imp.Line,
					Names: imp.Names,
					Alias: imp.Alias,
				})
			}
		}
	}
	if len(edges) == 0 {
		return nil
	}
	if err := o.graphs.UpsertEdges(ctx, edges); err != nil {
		return fmt.Errorf("upserting %d import edges: %w", len(edges), err)
	}
	return nil
}

// upsertCallEdges resolves call sites to qualified symbols and writes
// CALLS edges. Resolution tries three tiers in order: the caller's
// own symbol table, symbols reached through the caller's imports, and
// finally a batch-wide index of exported names. Unresolvable calls
// are dropped: the call graph is best-effort.
func (o *Orchestrator) upsertCallEdges(ctx context.Context, batch *batchIndex) error {
	var edges []graph.Edge
	seen := make(map[string]bool)
	for _, pf := range batch.parsed {
		for _, call := range pf.Calls {
			if call.CallerQualifiedName == "" {
				continue
			}
			callee, ok := batch.resolveCall(pf, call)
			if !ok {
				continue
			}
			key := call.CallerQualifiedName + "\x00" + callee
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, graph.Edge{
				Kind: graph.EdgeCalls,
				From: call.CallerQualifiedName,
				To:   callee,
				Line: call.Line,
			})
		}
	}
	if len(edges) == 0 {
		return nil
	}
	if err := o.graphs.UpsertEdges(ctx, edges); err != nil {
		return fmt.Errorf("upserting %d call edges: %w", len(edges), err)
	}
	return nil
}

func (b *batchIndex) resolveCall(pf *parser.ParsedFile, call parser.CallSite) (string, bool) {
	base, member, dotted := strings.Cut(call.CalleeName, ".")
	table := b.tables[pf.Path]

	// Tier 1: the caller's own file.
	if !dotted {
		if qn, ok := table[call.CalleeName]; ok {
			return qn, true
		}
	} else if base == "self" || base == "this" {
		if qn, ok := table[member]; ok {
			return qn, true
		}
	}

	// Tier 2: symbols reached through the caller's imports.
	for _, imp := range pf.Imports {
		targets := b.importTargets(pf.Language, imp)
		if len(targets) == 0 {
			continue
		}
		if dotted {
			// Namespace-style call: binding.member.
			if (imp.IsNamespace || imp.Alias != "") && importBinding(imp) == base {
				for _, t := range targets {
					if qn, ok := b.tables[t][member]; ok {
						return qn, true
					}
				}
			}
			continue
		}
		// Named import: the local name may alias the original.
		for _, n := range imp.Names {
			orig, local := splitImportName(n)
			if local != call.CalleeName {
				continue
			}
			for _, t := range targets {
				if qn, ok := b.tables[t][orig]; ok {
					return qn, true
				}
			}
		}
		// Default import called bare.
		if imp.IsDefault && importBinding(imp) == call.CalleeName {
			for _, t := range targets {
				if qn, ok := b.tables[t][call.CalleeName]; ok {
					return qn, true
				}
			}
		}
	}

	// Tier 3: batch-wide exported names, for re-exports and callers
	// the import heuristics miss.
	name := call.CalleeName
	if dotted {
		name = member
	}
	if qn, ok := b.exported[name]; ok {
		return qn, true
	}
	return "", false
}

// importBinding is the local name an import is reachable under: the
// alias when present, else the last path segment of the specifier.
func importBinding(imp parser.Import) string {
	if imp.Alias != "" {
		return imp.Alias
	}
	spec := strings.ReplaceAll(imp.Path, ".", "/")
	return path.Base(spec)
}

// splitImportName decodes a named-import entry, which is either a
// plain name or "original as alias".
func splitImportName(n string) (orig, local string) {
	if o, l, ok := strings.Cut(n, " as "); ok {
		return o, l
	}
	return n, n
}

// countLines counts newline-terminated lines, crediting a trailing
// partial line.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
