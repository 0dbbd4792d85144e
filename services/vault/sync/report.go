// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const defaultMaxErrorLogSize = 256 << 10

// LoadSyncState reads the persisted pass summary. Returns (nil, nil)
// when no pass has completed yet.
func (o *Orchestrator) LoadSyncState() (*SyncState, error) {
	data, err := os.ReadFile(o.syncStatePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding sync state %s: %w", o.syncStatePath(), err)
	}
	return &state, nil
}

// SaveSyncState persists the pass summary atomically.
func (o *Orchestrator) SaveSyncState(state *SyncState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sync state: %w", err)
	}
	return writeFileAtomic(o.syncStatePath(), data)
}

func (o *Orchestrator) writeReport(report *SyncReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sync report: %w", err)
	}
	return writeFileAtomic(o.reportPath(), data)
}

func (o *Orchestrator) readReport() (*SyncReport, error) {
	data, err := os.ReadFile(o.reportPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync report: %w", err)
	}
	var report SyncReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding sync report %s: %w", o.reportPath(), err)
	}
	return &report, nil
}

// appendErrorLog appends errors to the rolling log as JSON lines,
// then trims the log back under its size ceiling. Log upkeep never
// fails a pass, so problems degrade to warnings.
func (o *Orchestrator) appendErrorLog(errs []SyncError) {
	f, err := os.OpenFile(o.errorLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		o.log.Warn("opening error log", "error", err)
		return
	}
	for _, e := range errs {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		line = append(line, '\n')
		if _, err := f.Write(line); err != nil {
			o.log.Warn("appending to error log", "error", err)
			break
		}
	}
	if err := f.Close(); err != nil {
		o.log.Warn("closing error log", "error", err)
	}

	o.trimErrorLog()
}

// trimErrorLog keeps the log under the configured ceiling by cutting
// it down to the most recent ~80% of that ceiling, on a line
// boundary.
func (o *Orchestrator) trimErrorLog() {
	maxSize := o.cfg.MaxErrorLogSize
	if maxSize <= 0 {
		maxSize = defaultMaxErrorLogSize
	}

	info, err := os.Stat(o.errorLogPath())
	if err != nil || info.Size() <= maxSize {
		return
	}

	data, err := os.ReadFile(o.errorLogPath())
	if err != nil {
		o.log.Warn("reading error log for trim", "error", err)
		return
	}

	keep := int64(float64(maxSize) * 0.8)
	if int64(len(data)) <= keep {
		return
	}
	trimmed := data[int64(len(data))-keep:]
	if i := bytes.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}

	if err := writeFileAtomic(o.errorLogPath(), trimmed); err != nil {
		o.log.Warn("trimming error log", "error", err)
		return
	}
	o.log.Debug("trimmed error log",
		"from_bytes", len(data),
		"to_bytes", len(trimmed),
	)
}

// writeFileAtomic writes via a temp file in the target directory plus
// rename, so readers never observe a half-written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", tmpName, err)
	}
	return nil
}
