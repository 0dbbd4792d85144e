// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package git wraps git command execution for the sync pipeline.
//
// The Manager shells out to the git binary with the repository root as
// working directory. All read operations accept a context and return
// wrapped errors carrying git's stderr, so a failed invocation is
// diagnosable from the error alone.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotRepository is returned when the configured root is not inside
// a git repository.
var ErrNotRepository = errors.New("not a git repository")

// Manager executes git commands against one repository.
//
// Thread Safety: Manager is safe for concurrent use; it holds only
// immutable paths and every call spawns its own process.
type Manager struct {
	repoRoot  string
	gitDir    string
	commonDir string
	log       *slog.Logger
}

// NewManager creates a Manager rooted at repoRoot. The root is
// verified with a single rev-parse call that also resolves the git
// dir and common dir (they differ inside worktrees).
func NewManager(repoRoot string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo root: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--git-dir", "--git-common-dir", "--show-toplevel")
	cmd.Dir = absRoot
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, absRoot)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("unexpected rev-parse output: got %d lines, expected 3", len(lines))
	}

	gitDir := strings.TrimSpace(lines[0])
	commonDir := strings.TrimSpace(lines[1])
	topLevel := strings.TrimSpace(lines[2])
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absRoot, gitDir)
	}
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(absRoot, commonDir)
	}

	return &Manager{
		repoRoot:  topLevel,
		gitDir:    gitDir,
		commonDir: commonDir,
		log:       logger,
	}, nil
}

// RepoRoot returns the repository top-level directory.
func (m *Manager) RepoRoot() string { return m.repoRoot }

// GitDir returns the resolved .git directory (worktree-specific for
// worktrees).
func (m *Manager) GitDir() string { return m.gitDir }

// run executes one git command and returns its stdout. Stderr is
// folded into the wrapped error on failure.
func (m *Manager) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// TrackedFiles lists every path under version control, relative to
// the repository root with forward slashes.
func (m *Manager) TrackedFiles(ctx context.Context) ([]string, error) {
	out, err := m.run(ctx, "ls-files", "-z")
	if err != nil {
		return nil, err
	}

	records := strings.Split(out, "\x00")
	files := make([]string, 0, len(records))
	for _, rec := range records {
		if rec == "" {
			continue
		}
		files = append(files, rec)
	}
	return files, nil
}

// fileHashBatchSize bounds the pathspec count per ls-files call so
// argument lists stay well under the platform limit.
const fileHashBatchSize = 1000

// FileHashes returns the index blob hash for each given path. Paths
// not under version control are absent from the result. With no
// paths, every tracked file is hashed. The listing is batched, never
// one invocation per file.
func (m *Manager) FileHashes(ctx context.Context, paths []string) (map[string]string, error) {
	hashes := make(map[string]string, len(paths))

	collect := func(pathspec []string) error {
		args := []string{"ls-files", "-s", "-z"}
		if len(pathspec) > 0 {
			args = append(args, "--")
			args = append(args, pathspec...)
		}
		out, err := m.run(ctx, args...)
		if err != nil {
			return err
		}
		for _, rec := range strings.Split(out, "\x00") {
			if rec == "" {
				continue
			}
			// Record format: "<mode> <hash> <stage>\t<path>".
			tab := strings.IndexByte(rec, '\t')
			if tab < 0 {
				continue
			}
			meta := strings.Fields(rec[:tab])
			if len(meta) < 2 {
				continue
			}
			hashes[rec[tab+1:]] = meta[1]
		}
		return nil
	}

	if len(paths) == 0 {
		if err := collect(nil); err != nil {
			return nil, err
		}
		return hashes, nil
	}
	for start := 0; start < len(paths); start += fileHashBatchSize {
		end := start + fileHashBatchSize
		if end > len(paths) {
			end = len(paths)
		}
		if err := collect(paths[start:end]); err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

// LastCommitSHA returns the full SHA of HEAD. Repositories without
// commits yield an error.
func (m *Manager) LastCommitSHA(ctx context.Context) (string, error) {
	out, err := m.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when
// detached.
func (m *Manager) CurrentBranch(ctx context.Context) (string, error) {
	out, err := m.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
