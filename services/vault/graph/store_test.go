// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	store, err := Open(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.UpsertFileNodes(ctx, []FileNode{{Path: "main.go", Language: "go"}}))
	require.NoError(t, store.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	node, err := reopened.GetFileNode(ctx, "main.go")
	require.NoError(t, err)
	assert.Equal(t, "go", node.Language)
}

func TestFileNode_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	synced := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	node := FileNode{
		Path:         "internal/db/db.go",
		Language:     "go",
		GitHash:      "aaaa1111",
		Size:         2048,
		LineCount:    120,
		Complexity:   17,
		SymbolCount:  4,
		LastSyncedAt: synced,
	}
	require.NoError(t, store.UpsertFileNodes(ctx, []FileNode{node}))

	got, err := store.GetFileNode(ctx, "internal/db/db.go")
	require.NoError(t, err)
	assert.Equal(t, node, *got)
}

func TestFileNode_UpsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node := FileNode{Path: "a.go", Language: "go", LineCount: 10}
	require.NoError(t, store.UpsertFileNodes(ctx, []FileNode{node}))

	node.LineCount = 25
	require.NoError(t, store.UpsertFileNodes(ctx, []FileNode{node}))

	got, err := store.GetFileNode(ctx, "a.go")
	require.NoError(t, err)
	assert.Equal(t, 25, got.LineCount)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)
}

func TestGetFileNode_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFileNode(context.Background(), "missing.go")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertFileNodes_RejectsEmptyPath(t *testing.T) {
	store := newTestStore(t)

	err := store.UpsertFileNodes(context.Background(), []FileNode{{Language: "go"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing path")
}

func TestSymbolNodes_CreateDefinesEdges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	symbols := []SymbolNode{
		{QualifiedName: "pkg/db.go:Open", Name: "Open", Kind: "function", FilePath: "pkg/db.go", StartLine: 10, EndLine: 30, Exported: true},
		{QualifiedName: "pkg/db.go:close", Name: "close", Kind: "function", FilePath: "pkg/db.go", StartLine: 32, EndLine: 40},
	}
	require.NoError(t, store.UpsertSymbolNodes(ctx, symbols))

	got, err := store.GetSymbolNode(ctx, "pkg/db.go:Open")
	require.NoError(t, err)
	assert.Equal(t, "Open", got.Name)
	assert.True(t, got.Exported)

	edges, err := store.EdgesFrom(ctx, "pkg/db.go", EdgeDefines)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, edge := range edges {
		assert.Equal(t, EdgeDefines, edge.Kind)
		assert.Equal(t, "pkg/db.go", edge.From)
	}
}

func TestSymbolsByFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "a.go:One", Name: "One", FilePath: "a.go"},
		{QualifiedName: "a.go:Two", Name: "Two", FilePath: "a.go"},
		{QualifiedName: "b.go:Three", Name: "Three", FilePath: "b.go"},
	}))

	symbols, err := store.SymbolsByFile(ctx, "a.go")
	require.NoError(t, err)
	assert.Len(t, symbols, 2)

	symbols, err = store.SymbolsByFile(ctx, "c.go")
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestCommitNode_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node := CommitNode{
		SHA:        "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		Author:     "Ada",
		Email:      "ada@example.com",
		Message:    "add parser",
		Timestamp:  time.Date(2025, 5, 20, 8, 30, 0, 0, time.UTC),
		Insertions: 120,
		Deletions:  8,
	}
	require.NoError(t, store.UpsertCommitNodes(ctx, []CommitNode{node}))

	got, err := store.GetCommitNode(ctx, node.SHA)
	require.NoError(t, err)
	assert.Equal(t, node, *got)
}

func TestDocumentNode_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node := DocumentNode{
		Path:         "docs/guide.md",
		Title:        "User Guide",
		Hash:         "bbbb2222",
		HeadingCount: 5,
		LinkCount:    3,
	}
	require.NoError(t, store.UpsertDocumentNodes(ctx, []DocumentNode{node}))

	got, err := store.GetDocumentNode(ctx, "docs/guide.md")
	require.NoError(t, err)
	assert.Equal(t, "User Guide", got.Title)

	docs, err := store.ListDocumentNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestEdges_RoundtripWithPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	edge := Edge{
		Kind:  EdgeImports,
		From:  "src/app.ts",
		To:    "src/util.ts",
		Line:  3,
		Names: []string{"readFile as rf", "writeFile"},
		Alias: "utils",
	}
	require.NoError(t, store.UpsertEdge(ctx, edge))

	edges, err := store.EdgesFrom(ctx, "src/app.ts", EdgeImports)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, edge, edges[0])

	incoming, err := store.EdgesTo(ctx, "src/util.ts", EdgeImports)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, 3, incoming[0].Line)
}

func TestUpsertEdges_Validation(t *testing.T) {
	store := newTestStore(t)

	err := store.UpsertEdges(context.Background(), []Edge{{Kind: EdgeCalls, From: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing kind or endpoint")
}

func TestUpsertEdges_ReplacesPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEdge(ctx, Edge{Kind: EdgeModifies, From: "sha1", To: "a.go", Insertions: 5, Deletions: 1}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{Kind: EdgeModifies, From: "sha1", To: "a.go", Insertions: 9, Deletions: 2}))

	edges, err := store.EdgesByKind(ctx, EdgeModifies)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 9, edges[0].Insertions)
	assert.Equal(t, 2, edges[0].Deletions)
}

func TestDeleteFileNode_CascadesSymbolsAndEdges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFileNodes(ctx, []FileNode{
		{Path: "pkg/db.go", Language: "go"},
		{Path: "pkg/other.go", Language: "go"},
	}))
	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "pkg/db.go:Open", Name: "Open", FilePath: "pkg/db.go"},
		{QualifiedName: "pkg/other.go:Run", Name: "Run", FilePath: "pkg/other.go"},
	}))
	require.NoError(t, store.UpsertEdges(ctx, []Edge{
		{Kind: EdgeCalls, From: "pkg/other.go:Run", To: "pkg/db.go:Open", Line: 12},
		{Kind: EdgeImports, From: "pkg/other.go", To: "pkg/db.go", Line: 3},
		{Kind: EdgeCalls, From: "pkg/other.go:Run", To: "pkg/other.go:Run", Line: 20},
	}))

	require.NoError(t, store.DeleteFileNode(ctx, "pkg/db.go"))

	_, err := store.GetFileNode(ctx, "pkg/db.go")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSymbolNode(ctx, "pkg/db.go:Open")
	assert.ErrorIs(t, err, ErrNotFound)

	// The other file, its symbol, and its self-referential edge stay.
	_, err = store.GetFileNode(ctx, "pkg/other.go")
	require.NoError(t, err)
	_, err = store.GetSymbolNode(ctx, "pkg/other.go:Run")
	require.NoError(t, err)

	calls, err := store.EdgesByKind(ctx, EdgeCalls)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "pkg/other.go:Run", calls[0].To)

	imports, err := store.EdgesByKind(ctx, EdgeImports)
	require.NoError(t, err)
	assert.Empty(t, imports)
}

func TestDeleteDocumentNode_RemovesEdges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDocumentNodes(ctx, []DocumentNode{
		{Path: "docs/a.md", Title: "A"},
		{Path: "docs/b.md", Title: "B"},
	}))
	require.NoError(t, store.UpsertEdges(ctx, []Edge{
		{Kind: EdgeDescribes, From: "docs/a.md", To: "pkg/db.go"},
		{Kind: EdgeReferencesDoc, From: "docs/b.md", To: "docs/a.md"},
	}))

	require.NoError(t, store.DeleteDocumentNode(ctx, "docs/a.md"))

	_, err := store.GetDocumentNode(ctx, "docs/a.md")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetDocumentNode(ctx, "docs/b.md")
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EdgeCount)
}

func TestSymbolsByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "pkg/db.go:Open", Name: "Open", FilePath: "pkg/db.go", Exported: true},
		{QualifiedName: "pkg/file.go:Open", Name: "Open", FilePath: "pkg/file.go", Exported: true},
		{QualifiedName: "pkg/db.go:Close", Name: "Close", FilePath: "pkg/db.go", Exported: true},
	}))

	nodes, err := store.SymbolsByName(ctx, "Open")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	nodes, err = store.SymbolsByName(ctx, "Missing")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestSymbolsByName_IndexTracksWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "a.go:Run", Name: "Run", FilePath: "a.go"},
	}))
	nodes, err := store.SymbolsByName(ctx, "Run")
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	// A later write invalidates and rebuilds the index.
	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "b.go:Run", Name: "Run", FilePath: "b.go"},
	}))
	nodes, err = store.SymbolsByName(ctx, "Run")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	// So does a cascade delete.
	require.NoError(t, store.DeleteFileNode(ctx, "a.go"))
	nodes, err = store.SymbolsByName(ctx, "Run")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "b.go:Run", nodes[0].QualifiedName)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFileNodes(ctx, []FileNode{{Path: "a.go"}, {Path: "b.go"}}))
	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "a.go:F", Name: "F", FilePath: "a.go"},
	}))
	require.NoError(t, store.UpsertCommitNodes(ctx, []CommitNode{{SHA: "abc123"}}))
	require.NoError(t, store.UpsertDocumentNodes(ctx, []DocumentNode{{Path: "README.md"}}))
	require.NoError(t, store.UpsertEdges(ctx, []Edge{
		{Kind: EdgeImports, From: "a.go", To: "b.go"},
		{Kind: EdgeModifies, From: "abc123", To: "a.go"},
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, 1, stats.SymbolCount)
	assert.Equal(t, 1, stats.CommitCount)
	assert.Equal(t, 1, stats.DocumentCount)
	// DEFINES from the symbol upsert plus the two explicit edges.
	assert.Equal(t, 3, stats.EdgeCount)
	assert.Equal(t, 1, stats.EdgesByKind["DEFINES"])
	assert.Equal(t, 1, stats.EdgesByKind["IMPORTS"])
	assert.Equal(t, 1, stats.EdgesByKind["MODIFIES"])
}

func TestBatchUpdateSymbolVectorIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "a.go:F", Name: "F", FilePath: "a.go"},
		{QualifiedName: "a.go:G", Name: "G", FilePath: "a.go"},
	}))

	result, err := store.BatchUpdateSymbolVectorIDs(ctx, map[string][]string{
		"a.go:F":       {"vec-1", "vec-2"},
		"a.go:G":       {"vec-3"},
		"missing.go:H": {"vec-4"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing.go:H", result.Errors[0])

	node, err := store.GetSymbolNode(ctx, "a.go:F")
	require.NoError(t, err)
	assert.Equal(t, []string{"vec-1", "vec-2"}, node.VectorIDs)
}

func TestBatchUpdateSymbolVectorIDs_Empty(t *testing.T) {
	store := newTestStore(t)

	result, err := store.BatchUpdateSymbolVectorIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
	assert.Empty(t, result.Errors)
}

func TestUpsertSymbolNodes_KeepsVectorIDsAcrossReparse(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "a.go:F", Name: "F", FilePath: "a.go"},
	}))
	_, err := store.BatchUpdateSymbolVectorIDs(ctx, map[string][]string{
		"a.go:F": {"vec-1"},
	})
	require.NoError(t, err)

	// Re-upsert without vector IDs, as a pass with the vector store
	// offline would.
	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "a.go:F", Name: "F", FilePath: "a.go", StartLine: 3},
	}))

	node, err := store.GetSymbolNode(ctx, "a.go:F")
	require.NoError(t, err)
	assert.Equal(t, 3, node.StartLine)
	assert.Equal(t, []string{"vec-1"}, node.VectorIDs)

	// An explicit empty slice overwrites.
	require.NoError(t, store.UpsertSymbolNodes(ctx, []SymbolNode{
		{QualifiedName: "a.go:F", Name: "F", FilePath: "a.go", VectorIDs: []string{}},
	}))
	node, err = store.GetSymbolNode(ctx, "a.go:F")
	require.NoError(t, err)
	assert.Empty(t, node.VectorIDs)
}

func TestDropAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertFileNodes(ctx, []FileNode{{Path: "a.go"}}))
	require.NoError(t, store.DropAll())

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FileCount)
	assert.Equal(t, 0, stats.EdgeCount)
}

func TestContextCancellation(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.UpsertFileNodes(ctx, []FileNode{{Path: "a.go"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.GetFileNode(ctx, "a.go")
	require.Error(t, err)
}
