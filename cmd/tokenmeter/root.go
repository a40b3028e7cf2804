package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tokenmeter",
	Short: "Usage accounting and quota enforcement for AI provider calls",
	Long: `Tokenmeter records token and character usage of AI provider calls,
rolls it up into daily buckets, and answers quota questions before a
call is made.

Quick start:
  tokenmeter serve     # Start the reporting/query API
  tokenmeter stats     # Show recorded usage
  tokenmeter validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tokenmeter.yaml", "config file path")
}
