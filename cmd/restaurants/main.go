// Command restaurants is an offline-first client for the restaurant review
// server. Reads fall back to a local SQLite cache and writes that cannot
// reach the server are queued and replayed later.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwsrestaurants/restaurant-sync/internal/config"
)

var (
	configFile string
	verbose    bool

	// Effective configuration, loaded before any command runs.
	cfg  *config.Config
	vcfg *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "restaurants",
	Short: "Offline-first restaurant reviews client",
	Long: `Browse restaurants, read and write reviews, and mark favorites.

Everything read from the server is cached locally, so the commands keep
working when the server is down. Favorites and reviews written while offline
are queued and delivered by 'restaurants queue drain' or the sync daemon.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		v := config.New(configFile)
		bindings := map[string]string{
			config.KeyServerURL: "server",
			config.KeyCachePath: "cache",
		}
		for key, flag := range bindings {
			if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
				exitf("Error binding --%s: %v", flag, err)
			}
		}
		if err := config.Read(v); err != nil {
			exitf("Error: %v", err)
		}
		c, err := config.Decode(v)
		if err != nil {
			exitf("Error: %v", err)
		}
		cfg, vcfg = c, v
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./restaurants.yaml or ~/.config/restaurant-sync/restaurants.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log sync activity to stderr")
	rootCmd.PersistentFlags().String("server", "", "Review server URL (overrides server.url)")
	rootCmd.PersistentFlags().String("cache", "", "Local cache database path (overrides cache.path)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "browse", Title: "Browse:"},
		&cobra.Group{ID: "write", Title: "Write:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
	)
}

// exitf prints an error line to stderr and exits with status 1.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
