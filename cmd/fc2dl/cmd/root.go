// Package cmd implements the CLI commands for fc2dl.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fc2dl/fc2dl/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "fc2dl",
	Short:   "FC2 live stream recorder",
	Version: version.Short(),
	Long: `fc2dl records live broadcasts from live.fc2.com.

It captures the HLS stream at the requested quality, optionally saves the
live chat alongside it, and remuxes the raw capture into an MP4 (or M4A)
once the broadcast ends.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Global flags. These are NOT bound to viper; commands check Changed()
	// and only then override config/env values, preserving the priority:
	// CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.fc2dl/config.yaml)")
	// Registered here so cobra's built-in version handling picks up the
	// -v shorthand.
	rootCmd.Flags().BoolP("version", "v", false, "version for fc2dl")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (silent, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}
