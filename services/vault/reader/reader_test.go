// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reader

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testReader() *Reader {
	return New(Options{Logger: quietLogger()})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// =============================================================================
// Extension Denylist Tests
// =============================================================================

func TestCheckFileReadable_DeniedExtensions(t *testing.T) {
	// One representative per family. Content is plain text so only
	// the extension can be the rejection cause.
	names := []string{
		"app.exe", "dist.zip", "logo.png", "track.mp3", "clip.mp4",
		"mod.o", "report.pdf", "face.ttf", "state.lock", "cache.db",
	}
	r := testReader()

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			path := writeTemp(t, name, []byte("plain text"))
			c := r.CheckFileReadable(path)
			if c.Readable {
				t.Fatalf("%s should be rejected", name)
			}
			if !strings.Contains(c.Reason, "denied extension") {
				t.Errorf("Reason = %q, want denied extension", c.Reason)
			}
		})
	}
}

func TestCheckFileReadable_ExtensionCaseInsensitive(t *testing.T) {
	path := writeTemp(t, "LOGO.PNG", []byte("x"))
	if c := testReader().CheckFileReadable(path); c.Readable {
		t.Error("uppercase extension must still be denied")
	}
}

func TestCheckFileReadable_MinifiedBundles(t *testing.T) {
	path := writeTemp(t, "vendor.min.js", []byte("var a=1;"))
	c := testReader().CheckFileReadable(path)
	if c.Readable {
		t.Fatal("minified bundle should be rejected")
	}
	if !strings.Contains(c.Reason, ".min.js") {
		t.Errorf("Reason = %q, want .min.js mention", c.Reason)
	}

	// A regular .js file passes.
	ok := writeTemp(t, "app.js", []byte("var a = 1;\n"))
	if c := testReader().CheckFileReadable(ok); !c.Readable {
		t.Errorf("app.js rejected: %s", c.Reason)
	}
}

func TestCheckFileReadable_EmptyDenylistDisablesFastPath(t *testing.T) {
	r := New(Options{DeniedExtensions: []string{}, Logger: quietLogger()})
	path := writeTemp(t, "notes.png", []byte("actually text"))
	if c := r.CheckFileReadable(path); !c.Readable {
		t.Errorf("explicit empty denylist should defer to the sniff, got %q", c.Reason)
	}
}

// =============================================================================
// Stat-Based Tests
// =============================================================================

func TestCheckFileReadable_MissingFile(t *testing.T) {
	c := testReader().CheckFileReadable(filepath.Join(t.TempDir(), "ghost.go"))
	if c.Readable {
		t.Fatal("missing file should be rejected")
	}
	if !strings.Contains(c.Reason, "cannot stat") {
		t.Errorf("Reason = %q", c.Reason)
	}
}

func TestCheckFileReadable_Directory(t *testing.T) {
	dir := t.TempDir()
	c := testReader().CheckFileReadable(dir)
	if c.Readable {
		t.Fatal("directory should be rejected")
	}
	if c.Reason != "not a regular file" {
		t.Errorf("Reason = %q", c.Reason)
	}
}

func TestCheckFileReadable_SizeCap(t *testing.T) {
	r := New(Options{MaxSize: 64, Logger: quietLogger()})
	path := writeTemp(t, "big.go", bytes.Repeat([]byte("x"), 200))

	c := r.CheckFileReadable(path)
	if c.Readable {
		t.Fatal("oversized file should be rejected")
	}
	if c.Size != 200 {
		t.Errorf("Size = %d, want 200", c.Size)
	}
	if !strings.Contains(c.Reason, "too large") {
		t.Errorf("Reason = %q", c.Reason)
	}

	// At the boundary the file is allowed.
	exact := writeTemp(t, "exact.go", bytes.Repeat([]byte("x"), 64))
	if c := r.CheckFileReadable(exact); !c.Readable {
		t.Errorf("file at exactly MaxSize rejected: %s", c.Reason)
	}
}

// =============================================================================
// Content Sniff Tests
// =============================================================================

func TestCheckFileReadable_NulByte(t *testing.T) {
	content := append([]byte("#!/bin/sh\n"), 0x00, 0x01, 0x02)
	path := writeTemp(t, "misnamed", content)

	c := testReader().CheckFileReadable(path)
	if c.Readable {
		t.Fatal("NUL byte should be rejected")
	}
	if !strings.Contains(c.Reason, "NUL") {
		t.Errorf("Reason = %q", c.Reason)
	}
}

func TestCheckFileReadable_InvalidUTF8(t *testing.T) {
	// 0xFF can never start a UTF-8 sequence; no NUL bytes present.
	path := writeTemp(t, "latin1.txt", []byte{'c', 'a', 'f', 0xFF, '!'})

	c := testReader().CheckFileReadable(path)
	if c.Readable {
		t.Fatal("invalid UTF-8 should be rejected")
	}
	if !strings.Contains(c.Reason, "UTF-8") {
		t.Errorf("Reason = %q", c.Reason)
	}
}

func TestCheckFileReadable_MultibyteText(t *testing.T) {
	path := writeTemp(t, "unicode.md", []byte("# Überschrift — 日本語 ✓\n"))
	if c := testReader().CheckFileReadable(path); !c.Readable {
		t.Errorf("valid multibyte text rejected: %s", c.Reason)
	}
}

func TestCheckFileReadable_RuneSplitAtSniffBoundary(t *testing.T) {
	// Place a two-byte rune so its first byte is the last sniffed
	// byte. Without boundary handling this misclassifies as invalid.
	content := append(bytes.Repeat([]byte("a"), sniffLen-1), []byte("é and plenty more text after the boundary")...)
	path := writeTemp(t, "boundary.txt", content)

	if c := testReader().CheckFileReadable(path); !c.Readable {
		t.Errorf("rune split at sniff boundary rejected: %s", c.Reason)
	}
}

func TestCheckFileReadable_BinaryPastSniffIsAccepted(t *testing.T) {
	// The sniff is bounded: garbage after the first 8 KiB is invisible
	// to it. This documents the O(1) trade-off.
	content := append(bytes.Repeat([]byte("a"), sniffLen), 0x00, 0xFF)
	path := writeTemp(t, "tail-binary.txt", content)

	if c := testReader().CheckFileReadable(path); !c.Readable {
		t.Errorf("bytes past the sniff window should not reject: %s", c.Reason)
	}
}

func TestCheckFileReadable_EmptyFile(t *testing.T) {
	path := writeTemp(t, "empty.go", nil)
	c := testReader().CheckFileReadable(path)
	if !c.Readable {
		t.Errorf("empty file rejected: %s", c.Reason)
	}
	if c.Size != 0 {
		t.Errorf("Size = %d, want 0", c.Size)
	}
}

// =============================================================================
// SafeReadFile Tests
// =============================================================================

func TestSafeReadFile_ReturnsContent(t *testing.T) {
	want := "package main\n\nfunc main() {}\n"
	path := writeTemp(t, "main.go", []byte(want))

	res := testReader().SafeReadFile(path)
	if res.Skipped() {
		t.Fatalf("unexpected skip: %s", res.Err)
	}
	if res.Content != want {
		t.Errorf("Content = %q, want %q", res.Content, want)
	}
}

func TestSafeReadFile_SkipIsNotAnError(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			"denied extension",
			func(t *testing.T) string { return writeTemp(t, "x.png", []byte("x")) },
			"denied extension",
		},
		{
			"missing file",
			func(t *testing.T) string { return filepath.Join(t.TempDir(), "gone.go") },
			"cannot stat",
		},
		{
			"binary content",
			func(t *testing.T) string { return writeTemp(t, "blob", []byte{0x7F, 'E', 'L', 'F', 0x00}) },
			"NUL",
		},
	}

	r := testReader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.SafeReadFile(tt.path(t))
			if !res.Skipped() {
				t.Fatal("expected a skip")
			}
			if !strings.Contains(res.Err, tt.wantErr) {
				t.Errorf("Err = %q, want substring %q", res.Err, tt.wantErr)
			}
			if res.Content != "" {
				t.Error("skipped result must carry no content")
			}
		})
	}
}

func TestSafeReadFile_LargeTextFile(t *testing.T) {
	// Bigger than the sniff window but below the size cap: content
	// comes back whole, sniff only saw the prefix.
	content := bytes.Repeat([]byte("0123456789abcdef\n"), 1024) // ~17 KiB
	path := writeTemp(t, "wide.txt", content)

	res := testReader().SafeReadFile(path)
	if res.Skipped() {
		t.Fatalf("unexpected skip: %s", res.Err)
	}
	if len(res.Content) != len(content) {
		t.Errorf("Content length = %d, want %d", len(res.Content), len(content))
	}
}

// =============================================================================
// Logger Hook Tests
// =============================================================================

func TestSkipsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(Options{Logger: log})

	path := writeTemp(t, "pic.png", []byte("x"))
	r.SafeReadFile(path)

	out := buf.String()
	if !strings.Contains(out, "skipping unreadable file") {
		t.Errorf("skip not logged: %q", out)
	}
	if !strings.Contains(out, "pic.png") {
		t.Errorf("log missing path: %q", out)
	}
}

func TestReadableFilesAreNotLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(Options{Logger: log})

	path := writeTemp(t, "ok.go", []byte("package ok\n"))
	if res := r.SafeReadFile(path); res.Skipped() {
		t.Fatalf("unexpected skip: %s", res.Err)
	}
	if buf.Len() != 0 {
		t.Errorf("readable file produced log output: %q", buf.String())
	}
}

// =============================================================================
// Defaults Tests
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	r := New(Options{})
	if r.MaxSize() != DefaultMaxSize {
		t.Errorf("MaxSize = %d, want %d", r.MaxSize(), DefaultMaxSize)
	}
	if len(r.denied) != len(deniedExtensions) {
		t.Errorf("denylist size = %d, want %d", len(r.denied), len(deniedExtensions))
	}
}

func TestDefaultDeniedExtensions_ReturnsCopy(t *testing.T) {
	a := DefaultDeniedExtensions()
	a[0] = ".mutated"
	if DefaultDeniedExtensions()[0] == ".mutated" {
		t.Error("callers must not be able to mutate the builtin denylist")
	}
}
