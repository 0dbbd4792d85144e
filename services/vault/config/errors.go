// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import "errors"

// Sentinel errors for the config package.
var (
	// ErrNotADirectory indicates the repo root is not a directory.
	ErrNotADirectory = errors.New("not a directory")

	// ErrConfigParse indicates config.yaml could not be parsed.
	ErrConfigParse = errors.New("config parse failed")

	// ErrConfigInvalid indicates the config failed validation.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrNoAPIKey indicates no embedding API key could be resolved.
	ErrNoAPIKey = errors.New("no embedding API key")
)
