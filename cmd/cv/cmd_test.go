// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"strings"
	"testing"

	"github.com/codevault-ai/codevault/services/vault/delta"
)

func TestSkipWatchPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"main.go", false},
		{"internal/auth/token.go", false},
		{".git/HEAD", true},
		{".codevault/delta_state.json", true},
		{"node_modules/react/index.js", true},
		{"vendor/golang.org/x/mod/modfile/read.go", true},
		{"dist/bundle.js", true},
		{"build/output.bin", true},
		{".github/workflows/ci.yml", true},
		{"src/.hidden/file.go", true},
		{"src/nodes/graph.go", false},
	}
	for _, tt := range tests {
		if got := skipWatchPath(tt.path); got != tt.want {
			t.Errorf("skipWatchPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestChunkProgressLine(t *testing.T) {
	if got := chunkProgressLine(nil); got != "" {
		t.Errorf("chunkProgressLine(nil) = %q, want empty", got)
	}

	p := &delta.Progress{TotalFiles: 10, ChunkSize: 4, CompletedChunks: 1}
	got := chunkProgressLine(p)
	if !strings.Contains(got, "1/3") || !strings.Contains(got, "10 files") {
		t.Errorf("chunkProgressLine() = %q, want chunk 1/3 with 10 files", got)
	}
}

func TestShortSHA(t *testing.T) {
	if got := shortSHA("abc123"); got != "abc123" {
		t.Errorf("shortSHA short input = %q", got)
	}
	if got := shortSHA("0123456789abcdef0123"); got != "0123456789ab" {
		t.Errorf("shortSHA long input = %q, want 12 chars", got)
	}
}

func TestSnippet(t *testing.T) {
	content := "line1\nline2\nline3\nline4\nline5"
	got := snippet(content, 3)
	if !strings.Contains(got, "line3") || strings.Contains(got, "line4") {
		t.Errorf("snippet() = %q, want 3 lines plus ellipsis", got)
	}
	if !strings.Contains(got, "...") {
		t.Errorf("snippet() = %q, missing truncation marker", got)
	}

	short := snippet("one\ntwo", 3)
	if strings.Contains(short, "...") {
		t.Errorf("snippet() short input should not truncate: %q", short)
	}
}
