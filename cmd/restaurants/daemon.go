package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mwsrestaurants/restaurant-sync/internal/config"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/daemon"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/dashboard"
	offlinesync "github.com/mwsrestaurants/restaurant-sync/internal/offline/sync"
	"github.com/mwsrestaurants/restaurant-sync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Refresh the restaurant cache and every restaurant's reviews from the
     server at startup and every cache.refresh_interval
  2. Replay queued writes at startup, every queue.drain_interval, and as soon
     as the server becomes reachable again
  3. Serve a local JSON API (/api) for on-device clients, reading from and
     writing through the cache
  4. Serve a WebSocket feed (/ws) broadcasting cache and queue changes
  5. Pick up interval changes from the config file without a restart

WebSocket messages include:
- reviews_reconciled: Server reviews merged into the cache
- favorite_updated: Favorite changed through the API (synced or queued)
- review_added: Review written through the API (synced or queued)
- request_queued: Write queued for replay
- queue_drained: Replay pass finished
- stats: Counters and pending queue length

Example usage:
  restaurants daemon                  # API and feed on dashboard.port
  restaurants daemon --port 9000      # Custom port
  restaurants daemon --no-dashboard   # Refresh and replay only`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")

		logs, err := openLogs(false)
		if err != nil {
			exitf("Error opening log file: %v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var (
			server  *dashboard.Server
			handler *dashboard.Handler
			events  offlinesync.Events
		)
		if !noDashboard {
			server = dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Logger: logs.Logger("dashboard"),
			})
			handler = dashboard.NewHandler(server, logs.Logger("dashboard"))
			events = handler
		}

		a, err := newApp(ctx, logs, events)
		if err != nil {
			_ = logs.Close()
			exitf("Error: %v", err)
		}

		if err := runDaemon(ctx, a, server, handler); err != nil {
			a.exitf("Error: %v", err)
		}
		a.Close()
		fmt.Println("\nSync daemon stopped")
	},
}

// runDaemon wires replay, refresh and the dashboard around a, then blocks
// until ctx is cancelled. server and handler are nil with --no-dashboard.
// The caller closes a.
func runDaemon(ctx context.Context, a *app, server *dashboard.Server, handler *dashboard.Handler) error {
	replayConfig := &daemon.Config{
		DrainInterval: cfg.Queue.DrainInterval,
		Connectivity:  a.coord,
		Logger:        a.logs.Logger("replay"),
	}
	if handler != nil {
		replayConfig.Events = handler
	}
	replayer, err := daemon.New(a.queue, a.client, a.cache, replayConfig)
	if err != nil {
		return fmt.Errorf("failed to create replayer: %w", err)
	}
	a.coord.OnReconnect(replayer.Notify)

	refresher := daemon.NewRefresher(a.coord, cfg.Cache.RefreshInterval, a.logs.Logger("refresh"))

	config.Watch(vcfg, a.logs.Logger("config"), func(c *config.Config) {
		replayer.SetInterval(c.Queue.DrainInterval)
		refresher.SetInterval(c.Cache.RefreshInterval)
	})

	if server != nil {
		server.SetBackend(a.coord)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
			}
		}()
		if n, err := a.queue.Len(ctx); err == nil {
			handler.UpdateStats(n)
		}
	}

	fmt.Printf("%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
	fmt.Printf("   Server: %s\n", a.client.BaseURL())
	fmt.Printf("   Cache: %s\n", cfg.Cache.Path)
	fmt.Printf("   Refresh interval: %s\n", cfg.Cache.RefreshInterval)
	fmt.Printf("   Drain interval: %s\n", cfg.Queue.DrainInterval)
	if server != nil {
		fmt.Printf("   API: http://%s/api/restaurants\n", server.GetAddr())
		fmt.Printf("   Feed: ws://%s/ws\n", server.GetAddr())
	}
	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	refresher.Start(ctx)
	defer refresher.Wait()

	// Blocks until the signal context is cancelled.
	if err := replayer.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
	}
	return nil
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 0, "Dashboard port (overrides dashboard.port)")
	daemonCmd.Flags().Bool("no-dashboard", false, "Do not start the WebSocket dashboard")

	rootCmd.AddCommand(daemonCmd)
}
