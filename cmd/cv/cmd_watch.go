// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/codevault-ai/codevault/pkg/ux"
	"github.com/codevault-ai/codevault/services/vault/config"
	"github.com/codevault-ai/codevault/services/vault/git"
	syncer "github.com/codevault-ai/codevault/services/vault/sync"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var watchDebounce time.Duration

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the repository and delta-sync on changes",
	Long: `Watch the working tree and the git HEAD; whenever files change
or the branch switches, run a delta sync after a quiet period. Edits
that arrive during the quiet period extend it, so a burst of saves
produces one sync.

Runs until interrupted (Ctrl-C).`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second,
		"Quiet period before a change triggers a sync")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, a.cfg.Repo.Root); err != nil {
		return err
	}

	// Branch switches rewrite many files without editor events we care
	// about attributing; the HEAD watcher folds them into the same
	// debounce channel.
	changed := make(chan string, 64)
	headWatcher, err := git.NewHeadWatcher(a.cfg.Repo.Root, func() {
		select {
		case changed <- "git HEAD":
		default:
		}
	}, a.logger.Slog())
	if err != nil {
		a.logger.Warn("git HEAD watching unavailable", "error", err)
	} else {
		headWatcher.Start(ctx)
		defer headWatcher.Stop()
	}

	ux.Info("Watching " + a.cfg.Repo.Root)
	ux.Muted("Press Ctrl-C to stop")

	go forwardEvents(ctx, watcher, a.cfg.Repo.Root, changed)
	return debounceLoop(ctx, a, changed)
}

// forwardEvents filters raw fsnotify events down to relevant paths and
// pushes them onto the change channel. New directories are added to
// the watch set as they appear.
func forwardEvents(ctx context.Context, watcher *fsnotify.Watcher, root string, changed chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil || skipWatchPath(rel) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					watcher.Add(event.Name)
				}
			}
			select {
			case changed <- rel:
			default:
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// debounceLoop coalesces change notifications and runs one delta sync
// per quiet period.
func debounceLoop(ctx context.Context, a *app, changed <-chan string) error {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			ux.Info("Stopping watch")
			return nil
		case path := <-changed:
			a.logger.Debug("change detected", "path", path)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			runWatchSync(ctx, a)
		}
	}
}

func runWatchSync(ctx context.Context, a *app) {
	result, err := a.orch.DeltaSync(ctx, syncer.Options{SkipVectors: a.embedderOff})
	if err != nil {
		ux.Error(fmt.Sprintf("Sync failed: %v", err))
		return
	}
	d := result.Delta
	if result.FullSync {
		ux.Success(fmt.Sprintf("Full sync: %d files", result.State.FilesProcessed))
		return
	}
	if len(d.Added)+len(d.Modified)+len(d.Deleted) == 0 {
		return
	}
	ux.Success(fmt.Sprintf("Synced: +%d ~%d -%d", len(d.Added), len(d.Modified), len(d.Deleted)))
}

// addWatchDirs registers the repo tree, skipping directories that
// never hold indexable source.
func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if rel != "." && skipWatchPath(rel) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// skipWatchPath reports whether a repo-relative path lives somewhere
// sync would never index.
func skipWatchPath(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		switch part {
		case ".git", config.StateDirName, "node_modules", "vendor", "dist", "build":
			return true
		}
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}
