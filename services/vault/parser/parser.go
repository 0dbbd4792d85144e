// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultMaxFileSize is the largest content any parser accepts, 10 MiB.
// The safe reader applies a much lower ceiling first; this limit only
// guards direct API use.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// FileParser is the contract every language parser implements.
//
// Implementations are safe for concurrent use: each Parse call creates
// its own tree-sitter parser instance, so one FileParser value can
// serve a whole worker pool.
//
// Parse is error-tolerant. Syntax errors in the input produce partial
// results with ParsedFile.Errors populated; a non-nil error is
// reserved for complete failures (oversized content, invalid UTF-8,
// canceled context).
type FileParser interface {
	// Parse extracts symbols, imports, calls, and chunks from one
	// source file. filePath should be relative to the repository
	// root with forward slashes; it seeds qualified names and chunk
	// IDs.
	Parse(ctx context.Context, content []byte, filePath string) (*ParsedFile, error)

	// Language returns the canonical lowercase language name.
	Language() string

	// Extensions returns the file extensions this parser handles,
	// lowercase with the leading dot.
	Extensions() []string
}

// DocumentParser is the contract for prose parsers (markdown).
type DocumentParser interface {
	// ParseDocument extracts headings, links, sections, frontmatter,
	// and chunks from one document.
	ParseDocument(ctx context.Context, content []byte, filePath string) (*ParsedDocument, error)

	// Extensions returns the document extensions this parser
	// handles, lowercase with the leading dot.
	Extensions() []string
}

// Option configures a parser at construction time. Options not
// relevant to a given language are ignored by its parser.
type Option func(*options)

type options struct {
	maxFileSize    int64
	includePrivate bool
	goModule       string
}

func newOptions(opts []Option) options {
	o := options{
		maxFileSize:    DefaultMaxFileSize,
		includePrivate: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxFileSize caps the content size a parser accepts.
// Non-positive values are ignored.
func WithMaxFileSize(bytes int64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.maxFileSize = bytes
		}
	}
}

// WithIncludePrivate controls whether unexported symbols are
// extracted. Default true: the call graph needs private helpers.
func WithIncludePrivate(include bool) Option {
	return func(o *options) {
		o.includePrivate = include
	}
}

// WithGoModule supplies the repository's Go module path so the Go
// parser can resolve intra-module imports to package directories.
// Without it, all Go imports are treated as external.
func WithGoModule(module string) Option {
	return func(o *options) {
		o.goModule = module
	}
}

// Registry maps languages and file extensions to parsers.
//
// Thread safety: all methods may be called concurrently.
// Registration takes the write lock, lookups the read lock.
type Registry struct {
	mu          sync.RWMutex
	byLanguage  map[string]FileParser
	byExtension map[string]FileParser
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byLanguage:  make(map[string]FileParser),
		byExtension: make(map[string]FileParser),
	}
}

// DefaultRegistry creates a Registry with every built-in language
// parser registered. opts are forwarded to each parser.
func DefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry()
	r.Register(NewGoParser(opts...))
	r.Register(NewTypeScriptParser(opts...))
	r.Register(NewPythonParser(opts...))
	return r
}

// Register adds a parser under its language name and all of its
// extensions, overwriting previous registrations. Nil parsers are
// ignored.
func (r *Registry) Register(p FileParser) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[p.Language()] = p
	for _, ext := range p.Extensions() {
		r.byExtension[ext] = p
	}
}

// ForPath returns the parser responsible for the given file path,
// selected by its lowercase extension.
func (r *Registry) ForPath(path string) (FileParser, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byExtension[ext]
	return p, ok
}

// GetByLanguage returns the parser registered under a language name.
func (r *Registry) GetByLanguage(language string) (FileParser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byLanguage[language]
	return p, ok
}

// Languages returns all registered language names.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		out = append(out, lang)
	}
	return out
}

// Extensions returns all registered file extensions.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		out = append(out, ext)
	}
	return out
}
