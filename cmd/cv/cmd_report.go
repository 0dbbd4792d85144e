// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codevault-ai/codevault/pkg/ux"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the report of the most recent sync pass",
	Long: `Print the persisted report of the most recent sync pass,
including every per-file error with its phase. The full history of
errors accumulates in .codevault/sync-errors.log.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runReport(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	defer a.Close()

	report, err := a.orch.SyncReportSnapshot()
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	if report == nil {
		ux.Warning("No sync report found")
		ux.Muted("Run 'cv sync' first")
		return nil
	}

	if jsonOutput {
		return printJSON(report)
	}

	ux.Title("Sync report " + report.RunID)
	ux.KeyValue("Mode", report.Mode)
	ux.KeyValue("Started", report.StartedAt.Format(time.RFC3339))
	ux.KeyValue("Duration", fmt.Sprintf("%dms", report.DurationMS))
	ux.KeyValue("Files", fmt.Sprintf("%d processed, %d failed", report.FilesProcessed, report.FilesFailed))
	ux.KeyValue("Symbols", fmt.Sprintf("%d", report.SymbolCount))
	if report.VectorCount > 0 {
		ux.KeyValue("Vectors", fmt.Sprintf("%d", report.VectorCount))
	}
	ux.KeyValue("Host", fmt.Sprintf("%s (%s, %s)",
		report.Environment.Hostname, report.Environment.OS, report.Environment.GoVersion))

	if len(report.Errors) == 0 {
		ux.Success("No errors")
		return nil
	}
	ux.Warning(fmt.Sprintf("%d error(s)", len(report.Errors)))
	for _, e := range report.Errors {
		ux.FileStatus(e.File, ux.IconError, e.Error())
	}
	return nil
}
