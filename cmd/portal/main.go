package main

import (
	"os"

	"github.com/spf13/cobra"

	_ "github.com/hirewire/portal/docs" // Load swagger docs
)

// Version is set via ldflags at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Portal - recruitment client portal API",
	Long: `Portal serves the recruitment client portal API: service-line role requests,
subscription credits and per-service client numbers.`,
	Example: `  # Run the API server and expiry worker
  portal serve

  # Apply migrations and seed subscription plans
  portal migrate

  # Rebuild missing or drifted roles index rows
  portal repair`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
