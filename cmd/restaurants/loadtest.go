package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/loadtest"
	"github.com/mwsrestaurants/restaurant-sync/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "sync",
	Short:   "Measure cache read latency under concurrent reconciliation",
	Long: `Create a scratch cache, then read reviews from many concurrent clients while
reconciliation merges server reviews into the same cache.

The scratch cache lives in a temporary directory and never touches
cache.path or the server.

Example:
  restaurants loadtest --clients 100 --queries 20`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		restaurants, _ := cmd.Flags().GetInt("restaurants")
		reviews, _ := cmd.Flags().GetInt("reviews")
		clients, _ := cmd.Flags().GetInt("clients")
		queries, _ := cmd.Flags().GetInt("queries")
		duration, _ := cmd.Flags().GetDuration("duration")

		dir, err := os.MkdirTemp("", "restaurants-loadtest-")
		if err != nil {
			exitf("Error creating scratch directory: %v", err)
		}
		defer os.RemoveAll(dir)

		ctx := cmd.Context()
		fmt.Printf("%s Populating %d restaurants with %d reviews each...\n", ui.RenderAccent("🔄"), restaurants, reviews)
		tc, err := loadtest.CreateTestCache(ctx, filepath.Join(dir, "cache.db"), restaurants, reviews)
		if err != nil {
			exitf("Error: %v", err)
		}
		defer tc.Close()

		start := time.Now()
		stats, err := tc.RunConcurrentReads(ctx, clients, queries)
		if err != nil {
			exitf("Error: %v", err)
		}
		fmt.Printf("%s %d clients finished in %v\n\n", ui.RenderPass("✓"), clients, time.Since(start).Round(time.Millisecond))
		stats.Fprint(os.Stdout)

		if duration > 0 {
			fmt.Printf("\n%s Reading during reconciliation for %v...\n", ui.RenderAccent("🔄"), duration)
			if err := tc.VerifyConcurrentReconcile(ctx, clients, 4, duration); err != nil {
				fmt.Printf("%s %v\n", ui.RenderFail("✗"), err)
				os.Exit(1)
			}
			fmt.Printf("%s Cache consistent\n", ui.RenderPass("✓"))
		}
	},
}

func init() {
	loadtestCmd.Flags().Int("restaurants", 50, "Restaurants in the scratch cache")
	loadtestCmd.Flags().Int("reviews", 10, "Server reviews per restaurant")
	loadtestCmd.Flags().Int("clients", 50, "Concurrent reading clients")
	loadtestCmd.Flags().Int("queries", 20, "Reads per client")
	loadtestCmd.Flags().Duration("duration", 2*time.Second, "Concurrent reconciliation check (0 skips)")

	rootCmd.AddCommand(loadtestCmd)
}
