// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunking cuts one chunk per top-level symbol body. Bodies and
// document sections larger than chunkSize are split further with a
// recursive character splitter using language-appropriate separators,
// keeping a small overlap so context survives the cut.
var (
	chunkSize    = 1000
	chunkOverlap = chunkSize / 10

	defaultSeparators = []string{"\n\n", "\n", " ", ""}
	pythonSeparators  = []string{"\nclass ", "\ndef ", "\n\t", "\n", " "}
	cStyleSeparators  = []string{
		"\nfunction ", "\nclass ", "\ninterface ",
		"\npublic ", "\nprivate ", "\nprotected ",
		"\nfunc", "\ntype",
		"\n\n", "\n", " ", "",
	}
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

// chunkableKinds are the symbol kinds whose bodies become chunks.
// Variables and constants carry no body worth embedding on their own.
var chunkableKinds = map[SymbolKind]struct{}{
	SymbolKindFunction:  {},
	SymbolKindMethod:    {},
	SymbolKindStruct:    {},
	SymbolKindInterface: {},
	SymbolKindClass:     {},
	SymbolKindEnum:      {},
}

// splitterFor returns the recursive splitter tuned for a language.
func splitterFor(language string) textsplitter.TextSplitter {
	var separators []string
	switch language {
	case "python":
		separators = pythonSeparators
	case "go", "typescript", "javascript":
		separators = cStyleSeparators
	case "markdown":
		separators = markdownSeparators
	default:
		separators = defaultSeparators
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(separators),
	)
}

// appendSymbolChunks fills result.Chunks with one chunk per
// chunkable symbol, splitting oversized bodies.
func appendSymbolChunks(result *ParsedFile, content []byte) {
	lines := strings.Split(string(content), "\n")
	splitter := splitterFor(result.Language)
	seen := make(map[string]int)

	for _, sym := range result.Symbols {
		if _, ok := chunkableKinds[sym.Kind]; !ok {
			continue
		}
		body := sliceLines(lines, sym.StartLine, sym.EndLine)
		if body == "" {
			continue
		}
		result.Chunks = append(result.Chunks,
			cutChunks(body, result.Path, sym.Name, sym.StartLine, sym.EndLine, splitter, seen)...)
	}
}

// buildDocumentChunks fills doc.Chunks with one chunk per section,
// splitting oversized sections. Documents without headings become a
// single unanchored chunk.
func buildDocumentChunks(doc *ParsedDocument, content []byte) {
	splitter := splitterFor("markdown")
	seen := make(map[string]int)

	if len(doc.Sections) == 0 {
		text := strings.TrimSpace(string(content))
		if text == "" {
			return
		}
		endLine := strings.Count(string(content), "\n") + 1
		doc.Chunks = cutChunks(text, doc.Path, "", 1, endLine, splitter, seen)
		return
	}

	for _, sec := range doc.Sections {
		if strings.TrimSpace(sec.Content) == "" {
			continue
		}
		doc.Chunks = append(doc.Chunks,
			cutChunks(sec.Content, doc.Path, sec.Heading, sec.StartLine, sec.EndLine, splitter, seen)...)
	}
}

// cutChunks turns one body of text into chunks. Small bodies become a
// single chunk; larger ones are split, with each piece located back
// in the body so chunk line ranges stay truthful.
func cutChunks(body, filePath, hint string, startLine, endLine int, splitter textsplitter.TextSplitter, seen map[string]int) []Chunk {
	if len(body) <= chunkSize {
		return []Chunk{newChunk(body, filePath, hint, startLine, endLine, seen)}
	}

	pieces, err := splitter.SplitText(body)
	if err != nil || len(pieces) == 0 {
		return []Chunk{newChunk(body, filePath, hint, startLine, endLine, seen)}
	}

	chunks := make([]Chunk, 0, len(pieces))
	cursor := 0
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		// Pieces overlap, so each one starts at or after the start
		// of its predecessor. The splitter may trim edges; a trimmed
		// piece is still a substring of the body.
		abs := strings.Index(body[cursor:], piece)
		if abs >= 0 {
			abs += cursor
		} else {
			abs = strings.Index(body, piece)
			if abs < 0 {
				abs = cursor
			}
		}

		pieceStart := startLine + strings.Count(body[:abs], "\n")
		pieceEnd := pieceStart + strings.Count(piece, "\n")
		chunks = append(chunks, newChunk(piece, filePath, hint, pieceStart, pieceEnd, seen))
		cursor = abs + 1
	}
	return chunks
}

func newChunk(text, filePath, hint string, startLine, endLine int, seen map[string]int) Chunk {
	id := ChunkID(filePath, startLine, endLine)
	if n := seen[id]; n > 0 {
		seen[id] = n + 1
		id = fmt.Sprintf("%s.%d", id, n)
	} else {
		seen[id] = 1
	}
	return Chunk{
		ID:         id,
		Content:    text,
		StartLine:  startLine,
		EndLine:    endLine,
		SymbolHint: hint,
	}
}

// sliceLines joins lines start..end (1-indexed, inclusive), clamping
// out-of-range bounds.
func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
