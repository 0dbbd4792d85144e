// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codevault-ai/codevault/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var searchLimit int

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search the vector store for matching code chunks",
	Long: `Search indexed chunks. With an embedding backend configured the
query runs as a vector similarity search; without one it falls back
to BM25 keyword search over the same collection.

Examples:
  cv search "token refresh logic"
  cv search "retry with backoff" --limit 5
  cv search "websocket upgrade" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10,
		"Maximum number of results")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(args[0])
	if query == "" {
		return fmt.Errorf("query must not be empty")
	}

	a, err := buildApp()
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer a.Close()

	if a.vector == nil {
		err := fmt.Errorf("vector store is disabled; enable it in .codevault/config.yaml")
		ux.Error(err.Error())
		return err
	}

	ctx := context.Background()
	results, err := a.vector.Search(ctx, a.cfg.Vector.Class, query, searchLimit)
	if err != nil {
		ux.Error(fmt.Sprintf("Search failed: %v", err))
		return err
	}

	if jsonOutput {
		return printJSON(results)
	}

	if len(results) == 0 {
		ux.Info("No results")
		return nil
	}
	for i, r := range results {
		header := fmt.Sprintf("%d. %s:%d-%d", i+1, r.FilePath, r.StartLine, r.EndLine)
		if r.SymbolName != "" {
			header += "  " + r.SymbolName
		}
		if r.Certainty > 0 {
			header += fmt.Sprintf("  (%.0f%%)", r.Certainty*100)
		}
		ux.Success(header)
		ux.Muted(snippet(r.Content, 3))
	}
	return nil
}

// snippet returns at most n lines of content, indented for display.
func snippet(content string, n int) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	for i := range lines {
		lines[i] = "   " + lines[i]
	}
	return strings.Join(lines, "\n")
}
