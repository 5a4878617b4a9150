// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weixin07/listcompare/internal/places"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [list-id] [slot]",
	Short: "Re-run place resolution for an already-imported list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		listID, err := parseID(args[0])
		if err != nil {
			return err
		}
		slot := args[1]

		stats, err := app.normalizer.Normalize(cmd.Context(), listID, slot, func(ev places.ProgressEvent) {
			fmt.Printf("\r%d/%d resolved", ev.Resolved, ev.TotalRows)
		}, nil)
		fmt.Println()
		if err != nil {
			return err
		}

		fmt.Printf("resolved=%d unresolved=%d cache_hits=%d cache_misses=%d stale=%d places_calls=%d\n",
			stats.Resolved, stats.Unresolved, stats.CacheHits, stats.CacheMisses, stats.StaleCache, stats.PlacesCalls)
		return nil
	},
}
