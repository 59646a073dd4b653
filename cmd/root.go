// Package cmd defines the coverline command line interface.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/coverline/coverline/internal/config"
	"github.com/coverline/coverline/internal/log"
)

var (
	flagConfig  string
	flagJSONLog bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "coverline",
	Short: "Coverline - conversational insurance platform",
	Long: `Coverline is an insurance platform served over a JSON API. Users browse
plans, purchase and manage policies, and upload documents, all through a
conversational assistant backed by a bounded tool-calling loop.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default $HOME/.coverline/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "emit logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// loadConfig reads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the global flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLog})
}
