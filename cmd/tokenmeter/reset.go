package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/personahire/tokenmeter/config"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all recorded usage",
	Long: `Delete the persisted ledger snapshot: all events and daily buckets.

This cannot be undone. Pass --yes to skip the confirmation prompt.`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "skip confirmation")
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}

	if !resetYes {
		fmt.Print("Delete all recorded usage? [y/N]: ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	gw, closer, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer closer()

	gw.Clear(context.Background())
	fmt.Println("Ledger cleared.")
	return nil
}
