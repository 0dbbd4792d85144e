// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import "errors"

var (
	// ErrFileTooLarge is returned when content exceeds the parser's
	// maximum file size.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrInvalidContent is returned when content is not valid UTF-8.
	// Callers that route files through the safe reader should never
	// see this; it guards direct API use.
	ErrInvalidContent = errors.New("invalid content")

	// ErrNoParser is returned by the registry when no parser is
	// registered for a file's extension.
	ErrNoParser = errors.New("no parser registered for extension")
)
