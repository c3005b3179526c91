package main

import (
	"fmt"

	"github.com/hirewire/portal/internal/db"
	"github.com/hirewire/portal/internal/server"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and seed subscription plans",
	Long: `Create or update the database schema, seed the default subscription plans
and, when ADMIN_USERNAME and ADMIN_PASSWORD are set, the bootstrap admin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := server.Setup()
		if err != nil {
			return err
		}
		if err := db.CreateDefaultAdmin(database); err != nil {
			return fmt.Errorf("failed to create default admin user: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}
