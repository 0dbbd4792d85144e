// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveGitDirs_PlainRepo(t *testing.T) {
	dir := setupTestRepo(t)

	gitDir, commonDir, err := resolveGitDirs(dir)
	if err != nil {
		t.Fatalf("resolveGitDirs failed: %v", err)
	}
	if gitDir != filepath.Join(dir, ".git") {
		t.Errorf("unexpected git dir %q", gitDir)
	}
	if commonDir != gitDir {
		t.Errorf("plain repo common dir must equal git dir, got %q", commonDir)
	}
}

func TestResolveGitDirs_Worktree(t *testing.T) {
	main := setupTestRepo(t)
	wtGitDir := filepath.Join(main, ".git", "worktrees", "wt")
	if err := os.MkdirAll(wtGitDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wtGitDir, "commondir"), []byte("../..\n"), 0o644); err != nil {
		t.Fatalf("write commondir: %v", err)
	}

	worktree := t.TempDir()
	gitFile := "gitdir: " + wtGitDir + "\n"
	if err := os.WriteFile(filepath.Join(worktree, ".git"), []byte(gitFile), 0o644); err != nil {
		t.Fatalf("write .git file: %v", err)
	}

	gitDir, commonDir, err := resolveGitDirs(worktree)
	if err != nil {
		t.Fatalf("resolveGitDirs failed: %v", err)
	}
	if gitDir != wtGitDir {
		t.Errorf("expected worktree git dir %q, got %q", wtGitDir, gitDir)
	}
	if commonDir != filepath.Join(main, ".git") {
		t.Errorf("expected shared common dir, got %q", commonDir)
	}
}

func TestResolveGitDirs_NotARepository(t *testing.T) {
	if _, _, err := resolveGitDirs(t.TempDir()); err == nil {
		t.Fatal("expected error outside a repository")
	}
}

func TestResolveWorktreeGitDir_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".git")
	if err := os.WriteFile(path, []byte("not a pointer\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := resolveWorktreeGitDir(path); err == nil {
		t.Fatal("expected error for malformed .git file")
	}
}

func TestHeadWatcher_IsRefEvent(t *testing.T) {
	dir := setupTestRepo(t)
	w, err := NewHeadWatcher(dir, nil, nil)
	if err != nil {
		t.Fatalf("NewHeadWatcher failed: %v", err)
	}
	defer w.Stop()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"HEAD", filepath.Join(w.gitDir, "HEAD"), true},
		{"packed-refs", filepath.Join(w.commonDir, "packed-refs"), true},
		{"branch ref", filepath.Join(w.refsDir, "main"), true},
		{"index", filepath.Join(w.gitDir, "index"), false},
		{"config", filepath.Join(w.gitDir, "config"), false},
		{"commit message", filepath.Join(w.gitDir, "COMMIT_EDITMSG"), false},
	}
	for _, tt := range tests {
		if got := w.isRefEvent(tt.path); got != tt.want {
			t.Errorf("isRefEvent(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHeadWatcher_CallbackOnHeadChange(t *testing.T) {
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "a.go", "package a\n", "first")

	fired := make(chan struct{}, 1)
	w, err := NewHeadWatcher(dir, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewHeadWatcher failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Let the watches establish before triggering.
	time.Sleep(100 * time.Millisecond)

	head := filepath.Join(w.gitDir, "HEAD")
	if err := os.WriteFile(head, []byte("ref: refs/heads/other\n"), 0o644); err != nil {
		t.Fatalf("write HEAD: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not fire after HEAD change")
	}
}
