package main

import (
	"fmt"
	"os"

	"github.com/hirewire/portal/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort int
	serveMode string
)

// @title Recruitment Portal API
// @version 1.0
// @description Role requests, subscription credits and client numbers for the recruitment portal.
// @host localhost:8460
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal API server and/or expiry worker",
	Long: `Start the portal with API and/or worker components.

Examples:
  portal serve                    # Run both API server and worker
  portal serve --mode server      # Run API server only
  portal serve --mode worker      # Run subscription expiry worker only
  portal serve --port 8080        # Override port

Environment variables:
  PORTAL_SERVER_PORT         Server port (default: 8460)
  PORTAL_DATABASE_DRIVER     Database driver: sqlite, postgres
  PORTAL_DATABASE_DSN        Database connection string
  PORTAL_LOCK_TYPE           Client-number lock: memory, valkey
  PORTAL_STORAGE_TYPE        Attachment storage: local, minio
  PORTAL_AUTH_JWT_SECRET     JWT signing secret
  ADMIN_USERNAME             Bootstrap admin username
  ADMIN_PASSWORD             Bootstrap admin password`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
	serveCmd.Flags().StringVarP(&serveMode, "mode", "m", "both", "Run mode: server, worker, or both")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := server.Config{
		Port:    servePort,
		Mode:    serveMode,
		Version: Version,
	}

	if err := server.RunWithSignalHandling(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
