// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/codevault-ai/codevault/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var resetYes bool

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear delta state so the next sync reindexes everything",
	Long: `Clear the tracked delta state and any chunked-sync checkpoint.
The graph itself is untouched; the next 'cv sync' runs as a full sync
and rebuilds tracked state from the working tree.

Examples:
  cv reset
  cv reset --yes`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false,
		"Skip the confirmation prompt")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes && !confirm("Clear delta state? The next sync will reindex every file") {
		ux.Muted("Aborted")
		return nil
	}

	a, err := buildApp()
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer a.Close()

	if err := a.orch.ResetDelta(context.Background()); err != nil {
		ux.Error(err.Error())
		return err
	}

	if jsonOutput {
		return printJSON(map[string]bool{"reset": true})
	}
	ux.Success("Delta state cleared")
	ux.Muted("The next 'cv sync' will run as a full sync")
	return nil
}
