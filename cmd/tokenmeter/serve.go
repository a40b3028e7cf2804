package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/personahire/tokenmeter/bootstrap"
	"github.com/personahire/tokenmeter/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the usage reporting and quota API server",
	Long: `Start the tokenmeter server.

The server will:
  - Load configuration from tokenmeter.yaml (or --config)
  - Or load configuration from TOKENMETER_* environment variables
  - Open the snapshot store and restore the ledger
  - Serve the /v1 reporting and decision API

Environment variables (for container deployments):
  TOKENMETER_STORAGE_DSN        - SQLite path (default: tokenmeter.db)
  TOKENMETER_SERVER_PORT        - Server port (default: 8080)
  TOKENMETER_LIMITS_DAILY_UNITS - Daily unit cap (0 disables)
  TOKENMETER_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  tokenmeter serve
  tokenmeter serve --config /etc/tokenmeter/config.yaml
  tokenmeter serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file.
		a, err := bootstrap.New(cfgFile)
		if err != nil {
			return fmt.Errorf("error initializing: %w", err)
		}
		return a.Run()
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if !hasConfigFile {
		fmt.Println("Running with environment variables (no config file)")
	}

	a, err := bootstrap.NewStatic(cfg)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	return a.Run()
}
