package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/personahire/tokenmeter/config"
	"github.com/personahire/tokenmeter/domain/usage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recorded usage",
	Long: `Show usage recorded in the snapshot store.

Examples:
  tokenmeter stats
  tokenmeter stats --days=7
  tokenmeter stats recent --limit=20`,
	RunE: runStats,
}

var statsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent events",
	RunE:  runStatsRecent,
}

var (
	statsDays  int
	statsLimit int
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsRecentCmd)

	statsCmd.Flags().IntVar(&statsDays, "days", 0, "limit to the most recent N days (0 = all)")
	statsRecentCmd.Flags().IntVar(&statsLimit, "limit", 20, "number of events to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	gw, closer, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer closer()

	state := gw.Load(context.Background())
	totals := usage.FoldTotals(state.Buckets)

	fmt.Printf("Usage totals\n\n")
	fmt.Printf("Calls:        %d\n", totals.TotalCalls)
	fmt.Printf("Units:        %d\n", totals.TotalUnits)
	fmt.Printf("Cost:         %.4f\n", totals.TotalCost)
	fmt.Printf("Active days:  %d\n", totals.ActiveDayCount)
	fmt.Printf("Avg units/day: %.1f\n", totals.AverageUnitsPerActiveDay)

	if len(state.Buckets) == 0 {
		return nil
	}

	dates := make([]string, 0, len(state.Buckets))
	for d := range state.Buckets {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if statsDays > 0 && len(dates) > statsDays {
		dates = dates[:statsDays]
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tCALLS\tUNITS\tCOST\tAVG LATENCY")
	fmt.Fprintln(w, "----\t-----\t-----\t----\t-----------")
	for _, d := range dates {
		b := state.Buckets[d]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\t%.0f ms\n",
			b.Date, b.TotalCalls, b.TotalUnits, b.TotalCost, b.AvgResponseTimeMs)
	}
	w.Flush()
	return nil
}

func runStatsRecent(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	gw, closer, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer closer()

	state := gw.Load(context.Background())
	if len(state.Events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}

	limit := statsLimit
	if limit <= 0 || limit > len(state.Events) {
		limit = len(state.Events)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tCATEGORY\tIN\tOUT\tCOST\tLATENCY")
	fmt.Fprintln(w, "---------\t--------\t--\t---\t----\t-------")
	for i := len(state.Events) - 1; i >= len(state.Events)-limit; i-- {
		e := state.Events[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.4f\t%d ms\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Category, e.InputUnits, e.OutputUnits, e.Cost, e.ResponseTimeMs)
	}
	w.Flush()
	return nil
}
