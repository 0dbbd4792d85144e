// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lock provides advisory file locking for sync state files.
//
// A lock is a sidecar file next to the protected path, created with
// O_CREATE|O_EXCL so creation itself is the atomic acquire. Crashed
// holders are recovered by staleness: a lock older than the stale
// timeout, or whose recorded process is gone, is deleted and retried.
//
// This is advisory locking. It only coordinates processes that use the
// same mechanism against the same path.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Default timings, tuned for an interactive CLI: acquisition gives up
// well before a user would assume a hang.
const (
	DefaultStaleTimeout   = 10 * time.Minute
	DefaultRetryInterval  = 100 * time.Millisecond
	DefaultAcquireTimeout = 30 * time.Second
)

// Options tunes lock behavior. Zero fields take the package defaults.
type Options struct {
	// StaleTimeout is the age beyond which a foreign lock is reclaimed.
	StaleTimeout time.Duration

	// RetryInterval is the poll interval while the lock is contended.
	RetryInterval time.Duration

	// AcquireTimeout bounds the total wait before Acquire fails.
	AcquireTimeout time.Duration

	// Logger receives stale-reclaim and release diagnostics.
	Logger *slog.Logger
}

// DefaultOptions returns the standard lock timings.
func DefaultOptions() Options {
	return Options{
		StaleTimeout:   DefaultStaleTimeout,
		RetryInterval:  DefaultRetryInterval,
		AcquireTimeout: DefaultAcquireTimeout,
	}
}

// LockInfo is the metadata written into the lock file for diagnostics
// and staleness probes.
type LockInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// FileLock guards a backing file via a sidecar lock file.
//
// # Thread Safety
//
// A FileLock instance is NOT safe for concurrent use. Create one
// instance per goroutine; the lock file itself is the shared state.
type FileLock struct {
	path string // the sidecar lock file, not the protected file
	opts Options
	held bool
	log  *slog.Logger
}

// New creates a FileLock guarding path. The sidecar lives at
// path + ".lock". The lock is not acquired until Acquire.
func New(path string, opts Options) *FileLock {
	if opts.StaleTimeout <= 0 {
		opts.StaleTimeout = DefaultStaleTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLock{
		path: path + ".lock",
		opts: opts,
		log:  logger,
	}
}

// Path returns the sidecar lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire takes the lock, polling until it succeeds, the context is
// canceled, or AcquireTimeout elapses. A stale foreign lock is deleted
// and acquisition retried immediately.
//
// The timeout error names the lock file so a stuck lock can be removed
// by hand.
func (l *FileLock) Acquire(ctx context.Context) error {
	if l.held {
		return ErrAlreadyHeld
	}

	deadline := time.Now().Add(l.opts.AcquireTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.tryCreate()
		if err == nil {
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("%w: %v", ErrAcquireFailed, err)
		}

		// Lock file exists. Reclaim it if the holder is gone.
		if l.isStale() {
			if rmErr := os.Remove(l.path); rmErr == nil {
				l.log.Warn("removed stale sync lock",
					"lock_path", l.path,
					"stale_timeout", l.opts.StaleTimeout,
				)
				continue
			} else if !os.IsNotExist(rmErr) {
				l.log.Warn("could not remove stale lock", "lock_path", l.path, "error", rmErr)
			}
			// Someone else removed or replaced it first; fall through
			// to the normal retry path.
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %v: lock file %s is held by another process "+
				"(delete it manually if that process is gone)",
				ErrAcquireTimeout, l.opts.AcquireTimeout, l.path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.RetryInterval):
		}
	}
}

// Release deletes the lock file. Safe to call when not held or when
// the file is already gone.
func (l *FileLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false

	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		l.log.Warn("could not remove lock file", "lock_path", l.path, "error", err)
		return fmt.Errorf("removing lock file %s: %w", l.path, err)
	}
	return nil
}

// WithLock runs fn while holding the lock, releasing on every exit
// path including panics.
func (l *FileLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			l.log.Warn("lock release failed", "lock_path", l.path, "error", err)
		}
	}()
	return fn()
}

// IsLocked reports whether the lock file currently exists, regardless
// of holder.
func (l *FileLock) IsLocked() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Held reports whether this instance holds the lock.
func (l *FileLock) Held() bool {
	return l.held
}

// Info reads the holder metadata from the lock file. Returns nil with
// no error when the lock file does not exist.
func (l *FileLock) Info() (*LockInfo, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lock file %s: %w", l.path, err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockCorrupt, l.path, err)
	}
	return &info, nil
}

// tryCreate attempts the atomic exclusive creation of the lock file
// with holder metadata inside.
func (l *FileLock) tryCreate() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	info := LockInfo{
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now(),
	}
	data, marshalErr := json.Marshal(info)
	if marshalErr == nil {
		// Metadata is best-effort; the file's existence is the lock.
		_, _ = file.Write(data)
	}
	return file.Close()
}

// isStale reports whether the existing lock can be reclaimed: older
// than StaleTimeout by mtime, or held by a dead process on this host.
func (l *FileLock) isStale() bool {
	stat, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	if time.Since(stat.ModTime()) > l.opts.StaleTimeout {
		return true
	}

	info, err := l.Info()
	if err != nil || info == nil {
		// Unreadable metadata alone is not stale; age decides.
		return false
	}

	hostname, _ := os.Hostname()
	if info.Hostname != hostname || info.PID <= 0 {
		// Cannot probe processes on another host.
		return false
	}

	process, err := os.FindProcess(info.PID)
	if err != nil {
		return true
	}
	// Signal 0 probes existence without delivering anything.
	return process.Signal(syscall.Signal(0)) != nil
}
