// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"context"
	"os"
	"runtime"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// runState accumulates the outcome of one pass. Counters are written
// from parse workers, so all mutation goes through the mutex.
type runState struct {
	mode      string
	startedAt time.Time

	mu         gosync.Mutex
	processed  int
	failed     int
	symbols    int
	vectors    int
	byLanguage map[string]int
	errs       []SyncError

	// fullCompleted marks passes that covered the whole file list,
	// which advances the last-full-sync timestamp.
	fullCompleted bool

	lastCommit string
	branch     string
}

func newRunState(mode string) *runState {
	return &runState{
		mode:       mode,
		startedAt:  time.Now().UTC(),
		byLanguage: make(map[string]int),
	}
}

func (rs *runState) addError(phase Phase, file string, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failed++
	rs.errs = append(rs.errs, SyncError{
		File:      file,
		Err:       err,
		Phase:     phase,
		Timestamp: time.Now().UTC(),
	})
}

func (rs *runState) addFile(language string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.processed++
	rs.byLanguage[language]++
}

func (rs *runState) addSymbols(n int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.symbols += n
}

func (rs *runState) addVectors(n int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.vectors += n
}

func (rs *runState) errorStrings() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.errs) == 0 {
		return nil
	}
	out := make([]string, len(rs.errs))
	for i, e := range rs.errs {
		out[i] = e.Error()
	}
	return out
}

func (rs *runState) errorCopy() []SyncError {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.errs) == 0 {
		return nil
	}
	out := make([]SyncError, len(rs.errs))
	copy(out, rs.errs)
	return out
}

// finishRun assembles the pass summary, persists sync state, report,
// and error log, and returns the state. Persistence failures degrade
// to log lines: the pass itself already succeeded.
func (o *Orchestrator) finishRun(ctx context.Context, rs *runState) *SyncState {
	now := time.Now().UTC()
	duration := now.Sub(rs.startedAt)

	rs.mu.Lock()
	state := &SyncState{
		Mode:            rs.mode,
		LastCommitSHA:   rs.lastCommit,
		Branch:          rs.branch,
		FilesProcessed:  rs.processed,
		FilesFailed:     rs.failed,
		VectorCount:     rs.vectors,
		FilesByLanguage: rs.byLanguage,
		DurationMS:      duration.Milliseconds(),
		UpdatedAt:       now,
	}
	rs.mu.Unlock()
	state.Errors = rs.errorStrings()

	if stats, err := o.graphs.Stats(ctx); err != nil {
		o.log.Warn("graph stats unavailable", "error", err)
	} else {
		state.FileCount = stats.FileCount
		state.SymbolCount = stats.SymbolCount
		state.EdgeCount = stats.EdgeCount
		state.CommitCount = stats.CommitCount
		state.DocumentCount = stats.DocumentCount
	}

	if prev, err := o.LoadSyncState(); err == nil && prev != nil {
		state.LastFullSync = prev.LastFullSync
		state.LastIncrementalSync = prev.LastIncrementalSync
	}
	if rs.fullCompleted {
		state.LastFullSync = now
	} else {
		state.LastIncrementalSync = now
	}

	if err := o.SaveSyncState(state); err != nil {
		o.log.Warn("persisting sync state", "error", err)
	}

	report := o.buildReport(rs, duration)
	o.setLastReport(report)
	if err := o.writeReport(report); err != nil {
		o.log.Warn("persisting sync report", "error", err)
	}
	if len(report.Errors) > 0 {
		o.appendErrorLog(report.Errors)
	}

	o.log.Info("sync pass finished",
		"mode", rs.mode,
		"files", state.FilesProcessed,
		"failed", state.FilesFailed,
		"symbols", state.SymbolCount,
		"vectors", state.VectorCount,
		"duration", duration,
	)
	return state
}

// failRun records a fatal orchestration error, persists what it can,
// and hands the error back for propagation.
func (o *Orchestrator) failRun(rs *runState, phase Phase, err error) error {
	rs.addError(phase, "", err)
	o.log.Error("sync pass failed", "mode", rs.mode, "phase", string(phase), "error", err)

	report := o.buildReport(rs, time.Since(rs.startedAt))
	o.setLastReport(report)
	if werr := o.writeReport(report); werr != nil {
		o.log.Warn("persisting sync report", "error", werr)
	}
	if len(report.Errors) > 0 {
		o.appendErrorLog(report.Errors)
	}
	return err
}

func (o *Orchestrator) buildReport(rs *runState, duration time.Duration) *SyncReport {
	hostname, _ := os.Hostname()

	rs.mu.Lock()
	report := &SyncReport{
		RunID:          uuid.NewString(),
		Mode:           rs.mode,
		StartedAt:      rs.startedAt,
		DurationMS:     duration.Milliseconds(),
		FilesProcessed: rs.processed,
		FilesFailed:    rs.failed,
		SymbolCount:    rs.symbols,
		VectorCount:    rs.vectors,
		Environment: ReportEnvironment{
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Hostname:  hostname,
		},
	}
	rs.mu.Unlock()
	report.Errors = rs.errorCopy()
	return report
}

// recordHead stamps the current git head and branch onto the pass and
// the delta state. Head lookup failures are tolerated: a repository
// with no commits yet still syncs its working tree.
func (o *Orchestrator) recordHead(ctx context.Context, rs *runState) {
	sha, err := o.gits.LastCommitSHA(ctx)
	if err != nil {
		o.log.Warn("resolving head commit", "error", err)
	} else if sha != "" {
		rs.lastCommit = sha
		if err := o.deltas.SetLastCommit(sha); err != nil {
			o.log.Warn("recording head commit", "error", err)
		}
	}

	branch, err := o.gits.CurrentBranch(ctx)
	if err == nil {
		rs.branch = branch
	}
}
