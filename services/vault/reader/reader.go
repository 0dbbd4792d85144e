// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reader guards the sync pipeline against files that should
// never reach a parser: binaries, oversized blobs, and anything that
// is not a regular file.
//
// Rejection is a normal outcome here, not an error. Both entry points
// return discriminated results — CheckFileReadable yields a Check with
// a Reason, SafeReadFile yields a Result whose Err field is set for
// expected skips — so callers branch on the result instead of
// unwrapping errors for routine cases like a committed PNG.
//
// Detection is two-layered: a fixed extension denylist handles the
// common case without touching the file, and a bounded content sniff
// of the first 8 KiB catches misnamed or extensionless binaries. The
// sniff rejects on any NUL byte or invalid UTF-8, and stays O(1)
// regardless of file size.
package reader

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxSize caps file content at 1 MiB unless configured
	// otherwise. Source files larger than this are almost always
	// generated artifacts.
	DefaultMaxSize int64 = 1 << 20

	// sniffLen bounds the content probe. Binary formats that matter
	// (ELF, Mach-O, PE, images, archives) all reveal themselves
	// within the first few hundred bytes; 8 KiB leaves generous
	// margin for long text preambles.
	sniffLen = 8 * 1024
)

// deniedExtensions is the fixed fast-path denylist. Lowercase, with
// leading dot. Grouped by family: executables, archives, images,
// audio, video, compiled objects, office documents, fonts, databases,
// and lock sidecars.
var deniedExtensions = []string{
	// Executables and installers.
	".exe", ".dll", ".so", ".dylib", ".bin", ".msi", ".app",
	// Archives.
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".zst", ".7z", ".rar",
	".jar", ".war",
	// Images.
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".tiff",
	".psd", ".heic",
	// Audio.
	".mp3", ".wav", ".flac", ".ogg", ".m4a", ".aac",
	// Video.
	".mp4", ".avi", ".mov", ".mkv", ".webm", ".wmv", ".flv",
	// Compiled intermediates.
	".o", ".a", ".obj", ".pyc", ".pyo", ".class", ".wasm", ".ko", ".elc",
	// Documents.
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".ods",
	// Fonts.
	".ttf", ".otf", ".woff", ".woff2", ".eot",
	// Databases and disk images.
	".db", ".sqlite", ".sqlite3", ".iso", ".dmg",
	// Lock sidecars.
	".lock",
}

// deniedSuffixes catches double-extension patterns the extension map
// cannot express, chiefly minified bundles.
var deniedSuffixes = []string{".min.js", ".min.css", ".min.mjs"}

// DefaultDeniedExtensions returns a copy of the built-in denylist.
func DefaultDeniedExtensions() []string {
	out := make([]string, len(deniedExtensions))
	copy(out, deniedExtensions)
	return out
}

// Check is the outcome of a readability probe.
type Check struct {
	// Readable reports whether the file may be read and parsed.
	Readable bool

	// Size is the file size in bytes. Valid whenever the file could
	// be stat'd, including for rejected files.
	Size int64

	// Reason explains a rejection. Empty when Readable is true.
	Reason string
}

// Result is the outcome of a guarded read. Exactly one of Content or
// Err is meaningful: a non-empty Err marks an expected skip.
type Result struct {
	Content string
	Err     string
}

// Skipped reports whether the read was rejected.
func (r Result) Skipped() bool {
	return r.Err != ""
}

// Options configures a Reader. The zero value selects the defaults.
type Options struct {
	// MaxSize is the per-file byte ceiling. Zero selects
	// DefaultMaxSize.
	MaxSize int64

	// DeniedExtensions overrides the built-in denylist. Nil keeps the
	// default; an explicit empty slice disables extension filtering
	// entirely (the content sniff still applies).
	DeniedExtensions []string

	// Logger receives a debug record for every skipped file. Nil
	// selects slog.Default. Injecting a logger is the supported way
	// to observe skips in tests.
	Logger *slog.Logger
}

// Reader applies the readability policy. Safe for concurrent use.
type Reader struct {
	maxSize int64
	denied  map[string]struct{}
	log     *slog.Logger
}

// New creates a Reader from opts, filling zero fields with defaults.
func New(opts Options) *Reader {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	exts := opts.DeniedExtensions
	if exts == nil {
		exts = deniedExtensions
	}
	denied := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		denied[strings.ToLower(ext)] = struct{}{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Reader{maxSize: opts.MaxSize, denied: denied, log: log}
}

// MaxSize returns the configured per-file byte ceiling.
func (r *Reader) MaxSize() int64 {
	return r.maxSize
}

// CheckFileReadable probes path without reading the full file. The
// checks run cheapest first: extension denylist, then stat (regular
// file, size cap), then the bounded content sniff.
func (r *Reader) CheckFileReadable(path string) Check {
	if reason := r.deniedByName(path); reason != "" {
		return r.reject(path, 0, reason)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return r.reject(path, 0, fmt.Sprintf("cannot stat: %v", err))
	}
	if !stat.Mode().IsRegular() {
		return r.reject(path, stat.Size(), "not a regular file")
	}
	if stat.Size() > r.maxSize {
		return r.reject(path, stat.Size(),
			fmt.Sprintf("file too large (%d bytes, max %d)", stat.Size(), r.maxSize))
	}

	prefix, atEOF, err := readPrefix(path)
	if err != nil {
		return r.reject(path, stat.Size(), fmt.Sprintf("cannot read: %v", err))
	}
	if reason := sniff(prefix, atEOF); reason != "" {
		return r.reject(path, stat.Size(), reason)
	}

	return Check{Readable: true, Size: stat.Size()}
}

// SafeReadFile runs the readability checks and returns the file
// content. Expected rejections come back in Result.Err; the file is
// read once and the sniff runs on the in-memory prefix.
func (r *Reader) SafeReadFile(path string) Result {
	if reason := r.deniedByName(path); reason != "" {
		r.logSkip(path, reason)
		return Result{Err: reason}
	}

	stat, err := os.Stat(path)
	if err != nil {
		reason := fmt.Sprintf("cannot stat: %v", err)
		r.logSkip(path, reason)
		return Result{Err: reason}
	}
	if !stat.Mode().IsRegular() {
		r.logSkip(path, "not a regular file")
		return Result{Err: "not a regular file"}
	}
	if stat.Size() > r.maxSize {
		reason := fmt.Sprintf("file too large (%d bytes, max %d)", stat.Size(), r.maxSize)
		r.logSkip(path, reason)
		return Result{Err: reason}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		reason := fmt.Sprintf("cannot read: %v", err)
		r.logSkip(path, reason)
		return Result{Err: reason}
	}

	prefix := content
	atEOF := true
	if len(prefix) > sniffLen {
		prefix = prefix[:sniffLen]
		atEOF = false
	}
	if reason := sniff(prefix, atEOF); reason != "" {
		r.logSkip(path, reason)
		return Result{Err: reason}
	}

	return Result{Content: string(content)}
}

// deniedByName returns a rejection reason when the path's name alone
// disqualifies it, or "" when the name passes.
func (r *Reader) deniedByName(path string) string {
	lower := strings.ToLower(filepath.Base(path))
	for _, suffix := range deniedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return fmt.Sprintf("denied extension %s", suffix)
		}
	}
	ext := filepath.Ext(lower)
	if ext == "" {
		return ""
	}
	if _, ok := r.denied[ext]; ok {
		return fmt.Sprintf("denied extension %s", ext)
	}
	return ""
}

func (r *Reader) reject(path string, size int64, reason string) Check {
	r.logSkip(path, reason)
	return Check{Readable: false, Size: size, Reason: reason}
}

func (r *Reader) logSkip(path, reason string) {
	r.log.Debug("skipping unreadable file", "path", path, "reason", reason)
}

// readPrefix reads up to sniffLen bytes from path. atEOF reports
// whether the prefix is the entire file.
func readPrefix(path string) (prefix []byte, atEOF bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return buf[:n], true, nil
	case err != nil:
		return nil, false, err
	default:
		return buf, false, nil
	}
}

// sniff inspects a content prefix and returns a rejection reason, or
// "" for plausible text. Any NUL byte is treated as binary; so is an
// invalid UTF-8 sequence. When the prefix was cut at sniffLen rather
// than EOF, up to three trailing bytes of an incomplete rune are
// excluded from validation so a multi-byte character split at the
// boundary does not misclassify a text file.
func sniff(prefix []byte, atEOF bool) string {
	for _, b := range prefix {
		if b == 0 {
			return "binary content (NUL byte)"
		}
	}

	probe := prefix
	if !atEOF {
		probe = trimPartialRune(probe)
	}
	if !utf8.Valid(probe) {
		return "invalid UTF-8"
	}
	return ""
}

// trimPartialRune drops a trailing incomplete multi-byte sequence.
// UTF-8 runes are at most four bytes, so at most three continuation
// bytes can dangle past a truncation point.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}
