// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/codevault-ai/codevault/pkg/ux"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	repoRoot         string // --repo: repository to index
	jsonOutput       bool   // --json: machine-readable output
	quietOutput      bool   // --quiet: suppress stderr logging
	logLevel         string // --log-level: override configured level
	personalityLevel string // --personality: full/standard/minimal/machine

	rootCmd = &cobra.Command{
		Use:   "cv",
		Short: "A knowledge graph and semantic search engine for your repository",
		Long: `cv keeps a knowledge graph of your repository: code symbols,
imports, call sites, markdown documents, and git history, with
optional vector embeddings for semantic search.

The graph lives in <repo>/.codevault and is kept current by a
content-hash delta sync engine, so repeated syncs only touch what
actually changed.

Quick start:
  cv sync            # index the repository (full on first run)
  cv status          # what the graph knows
  cv search "query"  # semantic/keyword search (needs vector store)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			switch {
			case jsonOutput || quietOutput:
				ux.SetPersonalityLevel(ux.PersonalityMachine)
			case personalityLevel != "":
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			default:
				ux.InitPersonality()
			}
		},
	}
)

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo", ".",
		"Repository root to operate on")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output as JSON for scripting")
	rootCmd.PersistentFlags().BoolVar(&quietOutput, "quiet", false,
		"Suppress log output on stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, standard, minimal, machine")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}
