// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weixin07/listcompare/internal/comparison"
	"github.com/weixin07/listcompare/internal/projects"
)

var comparePage int
var comparePageSize int

var compareCmd = &cobra.Command{
	Use:   "compare [project-id]",
	Short: "Compute the overlap/only-A/only-B comparison for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}

		started := time.Now().UTC()
		snapshot, err := app.comparisonEngine.Snapshot(projectID, comparison.Pagination{
			Page:     comparePage,
			PageSize: comparePageSize,
		})
		if err != nil {
			return err
		}
		completed := time.Now().UTC()

		fmt.Printf("overlap=%d onlyA=%d onlyB=%d pendingA=%d pendingB=%d\n",
			snapshot.Stats.OverlapCount, snapshot.Stats.OnlyACount, snapshot.Stats.OnlyBCount,
			snapshot.Stats.PendingA, snapshot.Stats.PendingB)

		printSegment("overlap", snapshot.OverlapPage)
		printSegment("only A", snapshot.OnlyAPage)
		printSegment("only B", snapshot.OnlyBPage)

		var listAID, listBID *int64
		for _, l := range snapshot.Lists {
			id := l.ID
			switch l.Slot {
			case "A":
				listAID = &id
			case "B":
				listBID = &id
			}
		}

		return app.registry.RecordRun(projectID, projects.RunRecord{
			ListAID:      listAID,
			ListBID:      listBID,
			OverlapCount: snapshot.Stats.OverlapCount,
			OnlyACount:   snapshot.Stats.OnlyACount,
			OnlyBCount:   snapshot.Stats.OnlyBCount,
			DurationMS:   completed.Sub(started).Milliseconds(),
			StartedAt:    started,
			CompletedAt:  completed,
		})
	},
}

func printSegment(label string, page comparison.Page) {
	fmt.Printf("-- %s (%d/%d, page %d) --\n", label, len(page.Rows), page.Total, page.Page)
	for _, row := range page.Rows {
		fmt.Printf("  %s\t%s\n", row.PlaceID, row.Name)
	}
}

func init() {
	compareCmd.Flags().IntVar(&comparePage, "page", 1, "page number")
	compareCmd.Flags().IntVar(&comparePageSize, "page-size", 200, "rows per page")
}
