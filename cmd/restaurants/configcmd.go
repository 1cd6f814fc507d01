package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwsrestaurants/restaurant-sync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, RESTAURANTS_*
environment variables and flags have been applied.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out, err := cfg.YAML()
		if err != nil {
			exitf("Error: %v", err)
		}

		source := "defaults (no config file found)"
		if used := vcfg.ConfigFileUsed(); used != "" {
			source = used
		}
		fmt.Println(ui.RenderMuted("# source: " + source))
		fmt.Print(string(out))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
