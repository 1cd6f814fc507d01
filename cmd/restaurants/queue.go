package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/daemon"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
	"github.com/mwsrestaurants/restaurant-sync/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect and replay queued writes",
	Long: `Inspect and replay favorites and reviews that could not reach the server.

Queued writes are replayed in the order they were made. The sync daemon
replays them automatically; 'queue drain' does it once.`,
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List queued writes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()

		if !a.cache.Available() {
			fmt.Printf("\n%s Cache unavailable, nothing can be queued\n\n", ui.RenderWarn("⚠"))
			return
		}

		pending, err := a.queue.Pending(ctx)
		if err != nil {
			a.exitf("Error reading queue: %v", err)
		}

		fmt.Printf("\n%s Retry Queue\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Cache: %s\n", a.cache.Path())
		fmt.Printf("Pending: %d\n\n", len(pending))
		if len(pending) == 0 {
			return
		}
		fmt.Println(ui.Table([]string{"#", "Kind", "Restaurant", "Change", "Queued"}, queueRows(pending)))
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay queued writes now",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustApp(ctx)
		defer a.Close()

		replayer, err := daemon.New(a.queue, a.client, a.cache, &daemon.Config{
			DrainInterval: cfg.Queue.DrainInterval,
			Logger:        a.logs.Logger("replay"),
		})
		if err != nil {
			a.exitf("Error creating replayer: %v", err)
		}

		fmt.Printf("%s Replaying queued writes to %s...\n", ui.RenderAccent("🔄"), a.client.BaseURL())
		report, err := replayer.DrainNow(ctx)
		if err != nil {
			a.exitf("Error replaying queue: %v", err)
		}
		printReport(report)
	},
}

func init() {
	queueCmd.AddCommand(queueStatusCmd, queueDrainCmd)
	rootCmd.AddCommand(queueCmd)
}

func queueRows(pending []schema.QueuedRequest) [][]string {
	rows := make([][]string, 0, len(pending))
	for i, req := range pending {
		var restaurant, change string
		switch {
		case req.Favorite != nil:
			restaurant = strconv.FormatInt(req.Favorite.RestaurantID, 10)
			change = "unfavorite"
			if req.Favorite.IsFavorite {
				change = "favorite"
			}
		case req.Review != nil:
			restaurant = strconv.FormatInt(req.Review.Review.RestaurantID, 10)
			change = fmt.Sprintf("%s, %d★", req.Review.Review.Name, req.Review.Review.Rating)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(req.Kind),
			restaurant,
			change,
			req.Timestamp.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func printReport(report daemon.Report) {
	if report.Empty() {
		fmt.Printf("%s Queue empty\n", ui.RenderPass("✓"))
		return
	}
	mark := ui.RenderPass("✓")
	if report.Remaining > 0 {
		mark = ui.RenderWarn("⚠")
	}
	fmt.Printf("%s Replay finished\n", mark)
	fmt.Printf("   Delivered: %d\n", report.Delivered)
	fmt.Printf("   Remaining: %d\n", report.Remaining)
	if report.Dropped > 0 {
		fmt.Printf("   Dropped:   %s\n", ui.RenderFail(strconv.Itoa(report.Dropped)))
	}
}
