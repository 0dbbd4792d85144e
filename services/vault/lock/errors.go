// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import "errors"

// Sentinel errors for the lock package.
var (
	// ErrAcquireTimeout indicates the lock stayed contended past the
	// acquire timeout.
	ErrAcquireTimeout = errors.New("lock acquire timeout")

	// ErrAcquireFailed indicates a filesystem error during acquisition.
	ErrAcquireFailed = errors.New("lock acquire failed")

	// ErrAlreadyHeld indicates Acquire was called on a held instance.
	ErrAlreadyHeld = errors.New("lock already held by this instance")

	// ErrLockCorrupt indicates the lock file metadata is unreadable.
	ErrLockCorrupt = errors.New("lock file corrupt")
)
