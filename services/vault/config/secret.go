// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// secretFilePath is where container deployments mount the embedding key.
const secretFilePath = "/run/secrets/codevault_embed_key"

// minMlockKB is the mlock limit needed to hold the sealed key.
const minMlockKB = 64

var (
	memguardOnce    sync.Once
	mlockSufficient bool
	mlockLimitKB    int64
)

// Secret holds a sensitive string sealed in an encrypted memguard
// enclave. The plaintext only exists in locked memory while Use runs.
//
// # Thread Safety
//
// Safe for concurrent use; the enclave is immutable after creation.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals value into an enclave and wipes the input slice.
func NewSecret(value []byte) *Secret {
	return &Secret{enclave: memguard.NewEnclave(value)}
}

// Use opens the enclave, passes the plaintext to fn, and destroys the
// locked buffer when fn returns. The plaintext must not escape fn.
func (s *Secret) Use(fn func(plaintext string) error) error {
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening secret enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// ResolveEmbedderKey locates the embedding API key and seals it.
//
// Sources, in order:
//  1. CV_EMBED_API_KEY environment variable
//  2. OPENAI_API_KEY environment variable
//  3. /run/secrets/codevault_embed_key (container secret mount)
//
// Returns ErrNoAPIKey when none is present. Local OpenAI-compatible
// backends that need no key should set CV_EMBED_API_KEY to any
// non-empty placeholder.
func ResolveEmbedderKey() (*Secret, error) {
	initMemguard()

	if v := os.Getenv("CV_EMBED_API_KEY"); v != "" {
		return NewSecret([]byte(v)), nil
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		return NewSecret([]byte(v)), nil
	}
	if data, err := os.ReadFile(secretFilePath); err == nil {
		slog.Info("Read embedding API key from secret mount", "path", secretFilePath)
		return NewSecret([]byte(strings.TrimSpace(string(data)))), nil
	}
	return nil, fmt.Errorf("%w: set CV_EMBED_API_KEY or mount %s", ErrNoAPIKey, secretFilePath)
}

// PurgeSecrets wipes all enclave-backed memory. Call during shutdown.
func PurgeSecrets() {
	memguard.Purge()
}

// initMemguard arms interrupt handling and probes the mlock limit once.
func initMemguard() {
	memguardOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, mlockLimitKB = checkMlockLimit()
		if !mlockSufficient {
			if os.Getenv("CV_INSECURE_MEMORY") == "true" {
				slog.Warn("mlock limit too low, secret pages may swap to disk",
					"limit_kb", mlockLimitKB,
					"required_kb", minMlockKB,
				)
			} else {
				slog.Error("mlock limit too low for sealed secrets",
					"limit_kb", mlockLimitKB,
					"required_kb", minMlockKB,
					"help", "raise RLIMIT_MEMLOCK or set CV_INSECURE_MEMORY=true",
				)
			}
		}
	})
}

// checkMlockLimit reads RLIMIT_MEMLOCK. Returns (true, -1) when the
// limit is unlimited or unreadable; a missing probe should not block
// key resolution.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockKB, limitKB
}
