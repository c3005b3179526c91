package main

import (
	"fmt"

	"github.com/hirewire/portal/internal/server"
	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Rebuild missing or drifted roles index rows",
	Long: `Walk every service line and bring the roles index back in line with the
service-line tables: create missing rows, resync deleted flags and remove orphans.

Use the same lock type as the running servers so repairs do not race with
role creation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := server.Repair(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created: %d\nResynced: %d\nOrphans removed: %d\n",
			report.Created, report.Resynced, report.Orphans)
		return nil
	},
}
