// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/weixin07/listcompare/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import [project-id] [slot] [drive-file-id]",
	Short: "Import a Drive KML file into a project's slot and normalize it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		slot := args[1]

		orch, err := app.newOrchestrator(cmd.Context())
		if err != nil {
			return err
		}

		app.log.Info("import starting", "project_id", projectID, "slot", slot, "drive_file_id", args[2])

		result, err := orch.Import(cmd.Context(), ingest.FileSelection{
			ProjectID: projectID,
			Slot:      slot,
			FileID:    args[2],
		}, func(ev ingest.Event) {
			if ev.Stage == ingest.StageDownload {
				fmt.Printf("\rdownloading... %d/%d bytes", ev.BytesReceived, ev.BytesExpected)
				return
			}
			fmt.Printf("\n[%s] %s", ev.Stage, ev.Summary)
		}, nil)
		fmt.Println()
		if err != nil {
			app.log.Error("import failed", "project_id", projectID, "slot", slot, "error", err.Error())
			return err
		}

		app.log.Info("import completed", "run_id", result.RunID, "list_id", result.ListID,
			"row_count", result.RowCount, "rejected_count", result.RejectedCount)
		fmt.Printf("imported %d rows (%d rejected) into list %d\n", result.RowCount, result.RejectedCount, result.ListID)
		return nil
	},
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
