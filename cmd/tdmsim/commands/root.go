// Package commands implements the tdmsim subcommands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Raikerian/go-tdmmix/internal/config"
	"github.com/Raikerian/go-tdmmix/internal/infrastructure"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tdmsim",
	Short: "Offline TDM conference mixer",
	Long: `Run the telephony mixer without hardware.

Spans come from the configuration file: loopback spans echo their transmit
path, WAV spans play an 8 kHz 16-bit file into their channels and record
what the mixer sends back. Ticks run back to back, so an hour of audio
mixes in seconds.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(mixCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(modesCmd)
}

// loadConfig reads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", configFile, err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return infrastructure.BuildLogger(cfg.LogLevel)
}
