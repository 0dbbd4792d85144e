// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vector

import (
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// DefaultCollection is the Weaviate class that holds embedded chunks.
const DefaultCollection = "CodeChunk"

// ChunkItem is one embeddable unit of source or documentation, carrying
// its vector once computed.
type ChunkItem struct {
	// ID is the chunk's natural key, "path#Lstart-end". The Weaviate
	// object UUID is derived from it, so re-upserting the same chunk
	// overwrites rather than duplicates.
	ID         string
	Content    string
	FilePath   string
	SymbolName string
	Language   string
	Kind       string
	StartLine  int
	EndLine    int

	Vector []float32
}

// CollectionInfo describes a Weaviate class and its object count.
type CollectionInfo struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// SearchResult is one chunk returned by semantic or keyword search.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	Content    string  `json:"content"`
	FilePath   string  `json:"file_path"`
	SymbolName string  `json:"symbol_name,omitempty"`
	Language   string  `json:"language,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	// Certainty is Weaviate's [0,1] similarity for vector search, 0
	// for keyword-only results.
	Certainty float64 `json:"certainty,omitempty"`
}

// ChunkUUID derives the deterministic Weaviate object ID for a chunk.
// The same chunk ID always maps to the same UUID.
func ChunkUUID(chunkID string) strfmt.UUID {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("codevault://chunk/"+chunkID))
	return strfmt.UUID(id.String())
}
