// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Command listcompare is the operator CLI: it bootstraps the encrypted
// store, vault, token provider, and telemetry sink, then exposes
// project, import, normalize, and compare operations as subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var app *appContext

var rootCmd = &cobra.Command{
	Use:   "listcompare",
	Short: "Compare two Drive KML lists of places by name/address/location",
	Long: `listcompare ingests two KML point lists from Google Drive, normalizes
them against Google Places, and reports the overlap and one-sided
differences between named projects.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		ctx, err := newAppContext()
		if err != nil {
			return err
		}
		app = ctx
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app != nil {
			return app.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd, importCmd, normalizeCmd, compareCmd, versionCmd)
	projectsCmd.AddCommand(projectsListCmd, projectsCreateCmd, projectsActivateCmd, projectsDeleteCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("listcompare (development build)")
	},
}

