// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package delta

import "errors"

// Sentinel errors for the delta package.
var (
	// ErrNotLoaded indicates a store operation before Load.
	ErrNotLoaded = errors.New("delta state not loaded")

	// ErrLockNotHeld indicates Save was called without the state lock.
	// This is a programming-contract violation, not a runtime condition.
	ErrLockNotHeld = errors.New("state lock not held")

	// ErrProgressCorrupt indicates the progress checkpoint failed its
	// checksum.
	ErrProgressCorrupt = errors.New("progress checkpoint corrupt")

	// ErrProgressVersionMismatch indicates an incompatible progress
	// checkpoint version.
	ErrProgressVersionMismatch = errors.New("progress checkpoint version mismatch")
)
