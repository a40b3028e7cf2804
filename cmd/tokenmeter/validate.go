package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/personahire/tokenmeter/adapters/sqlite"
	"github.com/personahire/tokenmeter/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the tokenmeter configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present and thresholds are consistent
  - Database is writable (optional)

Examples:
  tokenmeter validate
  tokenmeter validate --config /etc/tokenmeter/config.yaml`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config syntax valid\n", checkMark)

	fmt.Printf("  %s Storage: %s (%s)\n", checkMark, cfg.Storage.DSN, cfg.Storage.Driver)
	fmt.Printf("  %s Daily unit cap: %d\n", checkMark, cfg.Limits.DailyUnits)
	fmt.Printf("  %s Cost limit: %.2f (warning at %.2f)\n", checkMark, cfg.Limits.CostLimit, cfg.Limits.CostWarning)
	fmt.Printf("  %s Pricing entries: %d\n", checkMark, len(cfg.Pricing))
	fmt.Printf("  %s Retention: %d days\n", checkMark, cfg.Retention.Days)

	if validateCheckDatabase && cfg.Storage.Driver == "sqlite" {
		if err := checkDatabaseWritable(cfg.Storage.DSN); err != nil {
			fmt.Printf("  %s Database writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Database writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
