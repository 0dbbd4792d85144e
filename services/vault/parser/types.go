// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package parser extracts structured symbol information from source
// files and markdown documents using tree-sitter grammars.
//
// Each language parser produces the common ParsedFile shape: symbols,
// imports, call sites, and embeddable chunks. Markdown goes through a
// separate DocumentParser that yields a ParsedDocument with headings,
// links, and sections. All parsers are error-tolerant — syntactically
// broken input still produces partial results, with problems reported
// in the Errors field rather than as a returned error.
//
// Design principles:
//   - Language-agnostic output: one shape for all supported languages
//   - Single-file analysis only: no cross-file type resolution
//   - Concrete types at the boundary, no map[string]any
package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SymbolKind classifies a code symbol.
//
// Language-specific constructs map to the closest general kind:
// a Python class and a TypeScript class both become SymbolKindClass,
// a Go struct becomes SymbolKindStruct.
type SymbolKind int

const (
	// SymbolKindUnknown marks a symbol the parser could not classify.
	SymbolKindUnknown SymbolKind = iota

	// SymbolKindFunction is a standalone function declaration.
	SymbolKindFunction

	// SymbolKindMethod is a function attached to a type or class.
	SymbolKindMethod

	// SymbolKindStruct is a composite data type (Go struct).
	SymbolKindStruct

	// SymbolKindInterface is an interface or protocol definition.
	SymbolKindInterface

	// SymbolKindClass is a class definition (Python, TypeScript).
	SymbolKindClass

	// SymbolKindType is a type alias or named type definition.
	SymbolKindType

	// SymbolKindVariable is a top-level variable declaration.
	SymbolKindVariable

	// SymbolKindConstant is a top-level constant declaration.
	SymbolKindConstant

	// SymbolKindEnum is an enumeration type (TypeScript enum).
	SymbolKindEnum
)

var symbolKindNames = map[SymbolKind]string{
	SymbolKindUnknown:   "unknown",
	SymbolKindFunction:  "function",
	SymbolKindMethod:    "method",
	SymbolKindStruct:    "struct",
	SymbolKindInterface: "interface",
	SymbolKindClass:     "class",
	SymbolKindType:      "type",
	SymbolKindVariable:  "variable",
	SymbolKindConstant:  "constant",
	SymbolKindEnum:      "enum",
}

// String returns the kind's lowercase name, "unknown" for
// unrecognized values.
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON serializes the kind as its string name rather than a
// number, keeping persisted graph rows readable and stable across
// enum reordering.
func (k SymbolKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts both string names and legacy numeric values.
func (k *SymbolKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = ParseSymbolKind(s)
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("SymbolKind must be string or int: %w", err)
	}
	*k = SymbolKind(i)
	return nil
}

// ParseSymbolKind converts a string name back to a SymbolKind.
// Unrecognized names yield SymbolKindUnknown.
func ParseSymbolKind(s string) SymbolKind {
	for kind, name := range symbolKindNames {
		if name == s {
			return kind
		}
	}
	return SymbolKindUnknown
}

// QualifiedName builds the project-unique name for a symbol:
// "<relative path>:<name>". Methods append their receiver or class,
// producing "<path>:<Receiver>.<name>".
func QualifiedName(filePath, name string) string {
	return filePath + ":" + name
}

// Symbol is one named construct extracted from a source file.
type Symbol struct {
	// Name is the identifier as written in source.
	Name string `json:"name"`

	// QualifiedName uniquely identifies the symbol within the
	// project. Format: "<relative path>:<name>" (see QualifiedName).
	QualifiedName string `json:"qualified_name"`

	// Kind classifies the symbol.
	Kind SymbolKind `json:"kind"`

	// StartLine and EndLine delimit the definition, 1-indexed and
	// inclusive.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// Signature is the declaration head, e.g.
	// "func (s *Store) Save() error".
	Signature string `json:"signature,omitempty"`

	// DocComment is the documentation block immediately preceding
	// the symbol, if any.
	DocComment string `json:"doc_comment,omitempty"`

	// Receiver is the receiver type for Go methods or the enclosing
	// class for Python/TypeScript methods. Empty otherwise.
	Receiver string `json:"receiver,omitempty"`

	// Exported reports public visibility: uppercase initial in Go,
	// no underscore prefix in Python, the export keyword in
	// TypeScript.
	Exported bool `json:"exported"`

	// Complexity is the decision-point count of the symbol's body
	// (1 + branches). Zero for symbols without bodies.
	Complexity int `json:"complexity,omitempty"`
}

// Validate checks structural invariants on the symbol.
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return ValidationError{Field: "Name", Message: "must not be empty"}
	}
	if s.QualifiedName == "" {
		return ValidationError{Field: "QualifiedName", Message: "must not be empty"}
	}
	if s.StartLine < 1 {
		return ValidationError{Field: "StartLine", Message: "must be >= 1 (1-indexed)"}
	}
	if s.EndLine < s.StartLine {
		return ValidationError{Field: "EndLine", Message: "must be >= StartLine"}
	}
	return nil
}

// Import is one import statement with enough structure for the
// dependency graph to resolve it.
type Import struct {
	// Path is the import specifier as written: a Go import path, a
	// TypeScript module specifier, or a Python module.
	Path string `json:"path"`

	// Alias is the local binding name when the import is aliased
	// (Go named imports, "import x as y").
	Alias string `json:"alias,omitempty"`

	// Names lists selectively imported symbols, e.g. the members of
	// a TypeScript named import clause or a Python from-import.
	Names []string `json:"names,omitempty"`

	// IsNamespace marks namespace-style imports that bind every
	// member under one name: "import * as x", plain Python
	// "import x", and every Go import.
	IsNamespace bool `json:"is_namespace,omitempty"`

	// IsDefault marks a TypeScript/JavaScript default import.
	IsDefault bool `json:"is_default,omitempty"`

	// Line is the 1-indexed line of the import statement.
	Line int `json:"line"`

	// ResolvedPath is the project-relative, extension-less path the
	// import points at, when the parser could resolve it locally.
	// Empty for external dependencies and unresolvable specifiers;
	// consumers match it against known files, trying the language's
	// extension candidates.
	ResolvedPath string `json:"resolved_path,omitempty"`
}

// CallSite records one function or method invocation found inside a
// symbol body.
type CallSite struct {
	// CallerQualifiedName names the enclosing symbol.
	CallerQualifiedName string `json:"caller"`

	// CalleeName is the invoked name as written: bare ("parse") or
	// dotted through one qualifier ("lock.New", "self.save").
	CalleeName string `json:"callee"`

	// Line is the 1-indexed line of the call.
	Line int `json:"line"`
}

// Chunk is a grounded slice of file content sized for embedding.
type Chunk struct {
	// ID uniquely identifies the chunk:
	// "<path>#L<start>-<end>" with an optional ".<n>" part suffix
	// when a symbol body was split.
	ID string `json:"id"`

	// Content is the chunk text.
	Content string `json:"content"`

	// StartLine and EndLine locate the chunk in its file,
	// 1-indexed and inclusive.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// SymbolHint is the name of the symbol or heading the chunk was
	// cut from. Empty for unanchored chunks.
	SymbolHint string `json:"symbol_hint,omitempty"`
}

// ChunkID builds the canonical chunk identifier for a line range.
func ChunkID(filePath string, startLine, endLine int) string {
	return fmt.Sprintf("%s#L%d-%d", filePath, startLine, endLine)
}

// ParsedFile is the result of parsing one source file.
type ParsedFile struct {
	// Path is the file path relative to the repository root, with
	// forward slashes.
	Path string `json:"path"`

	// Language is the canonical language name ("go", "typescript",
	// "python").
	Language string `json:"language"`

	// Package is the declared package or module name, empty for
	// languages without one.
	Package string `json:"package,omitempty"`

	// Symbols lists every extracted top-level symbol in source
	// order.
	Symbols []Symbol `json:"symbols"`

	// Imports lists every import statement.
	Imports []Import `json:"imports"`

	// Exports lists the bare names of exported symbols, feeding the
	// global call-resolution index.
	Exports []string `json:"exports,omitempty"`

	// Calls lists every call site found inside symbol bodies.
	Calls []CallSite `json:"calls,omitempty"`

	// Chunks carries the embeddable slices of this file.
	Chunks []Chunk `json:"chunks,omitempty"`

	// Errors reports non-fatal parse problems. A file with errors
	// still yields whatever symbols could be extracted.
	Errors []string `json:"errors,omitempty"`

	// Hash is the SHA-256 hex digest of the content at parse time.
	Hash string `json:"hash"`
}

// HasErrors reports whether any non-fatal problem was recorded.
func (f *ParsedFile) HasErrors() bool {
	return len(f.Errors) > 0
}

// SymbolTable returns a name → qualified-name index over the file's
// symbols. Later duplicates win, which is acceptable for best-effort
// call resolution.
func (f *ParsedFile) SymbolTable() map[string]string {
	table := make(map[string]string, len(f.Symbols))
	for _, s := range f.Symbols {
		table[s.Name] = s.QualifiedName
	}
	return table
}

// Validate checks structural invariants on the parse result.
func (f *ParsedFile) Validate() error {
	if f.Path == "" {
		return ValidationError{Field: "Path", Message: "must not be empty"}
	}
	if strings.Contains(f.Path, "..") {
		return ValidationError{Field: "Path", Message: "must not contain path traversal (..)"}
	}
	if f.Language == "" {
		return ValidationError{Field: "Language", Message: "must not be empty"}
	}
	for i := range f.Symbols {
		if err := f.Symbols[i].Validate(); err != nil {
			return ValidationError{
				Field:   fmt.Sprintf("Symbols[%d]", i),
				Message: err.Error(),
			}
		}
	}
	for i, imp := range f.Imports {
		if imp.Path == "" {
			return ValidationError{
				Field:   fmt.Sprintf("Imports[%d].Path", i),
				Message: "must not be empty",
			}
		}
		if imp.Line < 1 {
			return ValidationError{
				Field:   fmt.Sprintf("Imports[%d].Line", i),
				Message: "must be >= 1",
			}
		}
	}
	return nil
}

// Heading is one markdown heading.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Line  int    `json:"line"`
}

// Link is one markdown link, inline or reference-style.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
	Line int    `json:"line"`
}

// Section is the span of a document owned by one heading: from the
// heading line to the line before the next heading.
type Section struct {
	Heading   string `json:"heading"`
	Level     int    `json:"level"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

// ParsedDocument is the result of parsing one markdown document.
type ParsedDocument struct {
	// Path is the document path relative to the repository root.
	Path string `json:"path"`

	// Title is the first level-1 heading, falling back to the first
	// heading of any level. Empty for heading-less documents.
	Title string `json:"title,omitempty"`

	// Headings lists every heading in document order.
	Headings []Heading `json:"headings,omitempty"`

	// Links lists every link found in the document body.
	Links []Link `json:"links,omitempty"`

	// Sections partitions the document by heading.
	Sections []Section `json:"sections,omitempty"`

	// Frontmatter holds the document's YAML frontmatter with values
	// coerced to strings. Nil when absent.
	Frontmatter map[string]string `json:"frontmatter,omitempty"`

	// Chunks carries the embeddable slices of this document.
	Chunks []Chunk `json:"chunks,omitempty"`

	// Hash is the SHA-256 hex digest of the content at parse time.
	Hash string `json:"hash"`
}

// ValidationError reports the first invalid field found by a
// Validate call.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
