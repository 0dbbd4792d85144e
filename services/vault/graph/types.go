// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "time"

// EdgeKind identifies the relationship an edge records.
type EdgeKind string

const (
	// EdgeDefines links a file to a symbol it defines.
	EdgeDefines EdgeKind = "DEFINES"
	// EdgeImports links an importing file to an imported file.
	EdgeImports EdgeKind = "IMPORTS"
	// EdgeCalls links a calling symbol to a called symbol.
	EdgeCalls EdgeKind = "CALLS"
	// EdgeModifies links a commit to a file it touched.
	EdgeModifies EdgeKind = "MODIFIES"
	// EdgeDescribes links a document to the source file it documents.
	EdgeDescribes EdgeKind = "DESCRIBES"
	// EdgeReferencesDoc links a document to another document it links to.
	EdgeReferencesDoc EdgeKind = "REFERENCES_DOC"
)

// FileNode is a tracked source file.
type FileNode struct {
	// Path is the repo-relative path, the node's natural key.
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`

	// GitHash is the blob hash from the git index, used for change
	// detection between syncs.
	GitHash string `json:"git_hash,omitempty"`

	Size      int64 `json:"size"`
	LineCount int   `json:"line_count"`

	// Complexity aggregates the cyclomatic complexity of every symbol
	// defined in the file.
	Complexity  int `json:"complexity,omitempty"`
	SymbolCount int `json:"symbol_count"`

	LastSyncedAt time.Time `json:"last_synced_at"`
}

// SymbolNode is a declaration extracted from a source file.
type SymbolNode struct {
	// QualifiedName is "path:Name" (or "path:Receiver.Name" for
	// methods), the node's natural key.
	QualifiedName string `json:"qualified_name"`

	Name       string `json:"name"`
	Kind       string `json:"kind"`
	FilePath   string `json:"file_path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Signature  string `json:"signature,omitempty"`
	DocComment string `json:"doc_comment,omitempty"`
	Receiver   string `json:"receiver,omitempty"`
	Exported   bool   `json:"exported"`
	Complexity int    `json:"complexity,omitempty"`

	// VectorIDs are the vector store object IDs for this symbol's
	// embedded chunks, linked after embedding completes.
	VectorIDs []string `json:"vector_ids,omitempty"`
}

// CommitNode is a commit from repository history.
type CommitNode struct {
	// SHA is the full commit hash, the node's natural key.
	SHA string `json:"sha"`

	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Insertions and Deletions aggregate line counts across every
	// file the commit touched. Both stay zero for a parentless first
	// commit, whose diff stats are not computed.
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}

// DocumentNode is a markdown document.
type DocumentNode struct {
	// Path is the repo-relative path, the node's natural key.
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`

	// Hash is the blob or content hash used for change detection.
	Hash string `json:"hash,omitempty"`

	HeadingCount int `json:"heading_count"`
	LinkCount    int `json:"link_count"`

	LastSyncedAt time.Time `json:"last_synced_at"`
}

// Edge is a directed relationship between two nodes. From and To hold
// the natural keys of the endpoints (paths, qualified names, or SHAs
// depending on Kind).
type Edge struct {
	Kind EdgeKind `json:"kind"`
	From string   `json:"from"`
	To   string   `json:"to"`

	// Line is the source line the relationship appears on, for
	// IMPORTS and CALLS edges.
	Line int `json:"line,omitempty"`

	// Names lists the imported symbol names for IMPORTS edges.
	Names []string `json:"names,omitempty"`
	// Alias is the local import alias for IMPORTS edges.
	Alias string `json:"alias,omitempty"`

	// Insertions and Deletions are per-file line counts for MODIFIES
	// edges.
	Insertions int `json:"insertions,omitempty"`
	Deletions  int `json:"deletions,omitempty"`
}

// Stats summarizes graph contents.
type Stats struct {
	FileCount     int            `json:"file_count"`
	SymbolCount   int            `json:"symbol_count"`
	CommitCount   int            `json:"commit_count"`
	DocumentCount int            `json:"document_count"`
	EdgeCount     int            `json:"edge_count"`
	EdgesByKind   map[string]int `json:"edges_by_kind"`
}

// VectorLinkResult reports the outcome of a batch vector ID update.
type VectorLinkResult struct {
	// Updated is the number of symbol nodes that received vector IDs.
	Updated int `json:"updated"`
	// Errors lists qualified names that could not be updated.
	Errors []string `json:"errors,omitempty"`
}

// Key prefixes partition the keyspace by node type. Natural keys make
// every write an upsert.
const (
	prefixFile     = "file:"
	prefixSymbol   = "sym:"
	prefixCommit   = "commit:"
	prefixDocument = "doc:"
	prefixEdge     = "edge:"
)

func fileKey(path string) []byte {
	return []byte(prefixFile + path)
}

func symbolKey(qualifiedName string) []byte {
	return []byte(prefixSymbol + qualifiedName)
}

func commitKey(sha string) []byte {
	return []byte(prefixCommit + sha)
}

func documentKey(path string) []byte {
	return []byte(prefixDocument + path)
}

func edgeKey(e Edge) []byte {
	return []byte(prefixEdge + string(e.Kind) + ":" + e.From + ":" + e.To)
}

func edgeKindPrefix(kind EdgeKind) []byte {
	return []byte(prefixEdge + string(kind) + ":")
}
