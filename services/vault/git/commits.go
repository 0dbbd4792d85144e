// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/go-diff/diff"
)

// Commit is one entry of the repository history.
type Commit struct {
	// SHA is the full commit hash.
	SHA string `json:"sha"`

	// Author and Email identify the commit author.
	Author string `json:"author"`
	Email  string `json:"email"`

	// Message is the commit subject line.
	Message string `json:"message"`

	// Timestamp is the author time in UTC.
	Timestamp time.Time `json:"timestamp"`

	// ParentSHA is the first parent, empty for the root commit.
	// Diff-stat enrichment is skipped when it is empty.
	ParentSHA string `json:"parent_sha,omitempty"`
}

// FileDiffStat is the per-file line count of one diff.
type FileDiffStat struct {
	Path       string `json:"path"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// Log record layout: unit separator between fields, record separator
// between commits, so subjects containing newlines or separator-free
// text never break parsing.
const logFormat = "%H%x1f%an%x1f%ae%x1f%at%x1f%P%x1f%s%x1e"

// RecentCommits returns up to depth commits reachable from HEAD,
// newest first.
func (m *Manager) RecentCommits(ctx context.Context, depth int) ([]Commit, error) {
	if depth <= 0 {
		depth = 50
	}
	out, err := m.run(ctx, "log", "-n", strconv.Itoa(depth), "--format="+logFormat)
	if err != nil {
		return nil, err
	}

	records := strings.Split(out, "\x1e")
	commits := make([]Commit, 0, len(records))
	for _, rec := range records {
		rec = strings.TrimLeft(rec, "\n")
		if rec == "" {
			continue
		}
		fields := strings.Split(rec, "\x1f")
		if len(fields) != 6 {
			m.log.Warn("skipping malformed log record", "fields", len(fields))
			continue
		}

		commit := Commit{
			SHA:     fields[0],
			Author:  fields[1],
			Email:   fields[2],
			Message: fields[5],
		}
		if ts, err := strconv.ParseInt(fields[3], 10, 64); err == nil {
			commit.Timestamp = time.Unix(ts, 0).UTC()
		}
		if parents := strings.Fields(fields[4]); len(parents) > 0 {
			commit.ParentSHA = parents[0]
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

// CommitFiles lists the paths a commit touched. The root commit
// reports its full tree.
func (m *Manager) CommitFiles(ctx context.Context, sha string) ([]string, error) {
	out, err := m.run(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", "--root", sha)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	files := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	return files, nil
}

// DiffStats diffs two revisions and returns per-file insertion and
// deletion counts parsed from the unified diff. Binary files appear
// with zero counts.
func (m *Manager) DiffStats(ctx context.Context, from, to string) ([]FileDiffStat, error) {
	out, err := m.run(ctx, "diff", "--no-color", from, to)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(out)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff %s..%s: %w", from, to, err)
	}

	stats := make([]FileDiffStat, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		stat := FileDiffStat{Path: diffPath(fd)}
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
					stat.Insertions++
				case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
					stat.Deletions++
				}
			}
		}
		stats = append(stats, stat)
	}
	return stats, nil
}

// diffPath extracts the repository-relative path from a file diff,
// preferring the new name and falling back to the original for
// deletions.
func diffPath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "b/")
	name = strings.TrimPrefix(name, "a/")
	return name
}
