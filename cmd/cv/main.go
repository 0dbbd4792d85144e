// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command cv builds and queries a knowledge graph over a source
// repository: parsed code symbols, markdown documents, git commit
// history, and vector embeddings for semantic search.
//
// Usage:
//
//	cv sync              # delta sync (default mode)
//	cv sync --full       # force a full reindex
//	cv sync --chunked --max-files 500 --continue
//	cv status            # sync state, delta state, graph counts
//	cv search "auth token validation"
//	cv watch             # resync on filesystem/branch changes
//	cv serve             # HTTP API + websocket events + /metrics
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
