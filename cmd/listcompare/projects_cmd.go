// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage comparison projects",
}

var activateOnCreate bool

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every project",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, err := app.registry.List()
		if err != nil {
			return err
		}
		for _, p := range all {
			marker := " "
			if p.IsActive {
				marker = "*"
			}
			fmt.Printf("%s %d\t%s\t%s\n", marker, p.ID, p.Slug, p.Name)
		}
		return nil
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := app.registry.Create(args[0], activateOnCreate)
		if err != nil {
			return err
		}
		fmt.Printf("created project %d (%s)\n", p.ID, p.Slug)
		return nil
	},
}

var projectsActivateCmd = &cobra.Command{
	Use:   "activate [id]",
	Short: "Mark a project as the sole active project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return app.registry.SetActive(id)
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a project and its lists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return app.registry.Delete(id)
	},
}

func init() {
	projectsCreateCmd.Flags().BoolVar(&activateOnCreate, "activate", false, "make the new project active")
}
