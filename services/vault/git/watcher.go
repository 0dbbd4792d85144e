// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package git

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// HeadWatcher detects external HEAD movement: branch switches,
// commits, resets, and ref repacking done from another terminal.
//
// Git replaces HEAD and packed-refs by rename, which silently detaches
// a watch on the file itself, so the watcher monitors the containing
// directories and filters events down to the ref files.
//
// Thread Safety: safe for concurrent use. Start should be called once.
type HeadWatcher struct {
	gitDir    string
	commonDir string
	refsDir   string
	watcher   *fsnotify.Watcher
	callback  func()
	log       *slog.Logger
}

// NewHeadWatcher creates a watcher for the repository at repoRoot.
// callback fires on every relevant ref change; debouncing is the
// caller's concern.
func NewHeadWatcher(repoRoot string, callback func(), logger *slog.Logger) (*HeadWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gitDir, commonDir, err := resolveGitDirs(repoRoot)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &HeadWatcher{
		gitDir:    gitDir,
		commonDir: commonDir,
		refsDir:   filepath.Join(commonDir, "refs", "heads"),
		watcher:   watcher,
		callback:  callback,
		log:       logger,
	}, nil
}

// Start begins watching and blocks until the context is canceled.
// Run it in a goroutine.
func (w *HeadWatcher) Start(ctx context.Context) {
	if err := w.watcher.Add(w.gitDir); err != nil {
		w.log.Warn("failed to watch git dir", "path", w.gitDir, "error", err)
	}
	if w.commonDir != w.gitDir {
		if err := w.watcher.Add(w.commonDir); err != nil {
			w.log.Debug("failed to watch common dir", "path", w.commonDir, "error", err)
		}
	}
	if _, err := os.Stat(w.refsDir); err == nil {
		if err := w.watcher.Add(w.refsDir); err != nil {
			w.log.Debug("failed to watch refs/heads", "path", w.refsDir, "error", err)
		}
	}

	w.log.Debug("watching git HEAD", "git_dir", w.gitDir)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("git HEAD watcher error", "error", err)

		case <-ctx.Done():
			w.log.Debug("git HEAD watcher stopping")
			return
		}
	}
}

// handleEvent filters directory noise down to ref changes.
func (w *HeadWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if !w.isRefEvent(event.Name) {
		return
	}

	w.log.Info("git HEAD changed externally", "path", event.Name)
	if w.callback != nil {
		w.callback()
	}
}

// isRefEvent reports whether a changed path names HEAD, packed-refs,
// or a branch ref.
func (w *HeadWatcher) isRefEvent(name string) bool {
	base := filepath.Base(name)
	if base == "HEAD" || base == "packed-refs" {
		return true
	}
	return strings.HasPrefix(name, w.refsDir+string(filepath.Separator))
}

// Stop stops the watcher and releases resources. Safe to call more
// than once.
func (w *HeadWatcher) Stop() error {
	return w.watcher.Close()
}

// resolveGitDirs locates the git dir and common dir for a repository
// without spawning git. For worktrees, .git is a file pointing at the
// worktree-specific git dir, whose commondir file points back at the
// shared one.
func resolveGitDirs(repoRoot string) (gitDir, commonDir string, err error) {
	gitPath := filepath.Join(repoRoot, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", "", ErrNotRepository
	}

	if info.IsDir() {
		gitDir = gitPath
	} else {
		gitDir, err = resolveWorktreeGitDir(gitPath)
		if err != nil {
			return "", "", err
		}
		if !filepath.IsAbs(gitDir) {
			gitDir = filepath.Join(repoRoot, gitDir)
		}
	}

	commonDir = gitDir
	if data, err := os.ReadFile(filepath.Join(gitDir, "commondir")); err == nil {
		common := strings.TrimSpace(string(data))
		if !filepath.IsAbs(common) {
			common = filepath.Join(gitDir, common)
		}
		commonDir = filepath.Clean(common)
	}
	return gitDir, commonDir, nil
}

// resolveWorktreeGitDir parses a .git file of the form
// "gitdir: /path/to/.git/worktrees/name".
func resolveWorktreeGitDir(gitPath string) (string, error) {
	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "gitdir: ") {
		return "", os.ErrInvalid
	}
	return strings.TrimPrefix(line, "gitdir: "), nil
}
