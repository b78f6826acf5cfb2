// Package main provides the inferprice CLI.
//
// inferprice fetches AI inference model listings, normalizes them into a
// canonical pricing graph, and serves, lists, estimates and exports it.
//
// # Basic Usage
//
// Serve the HTTP API:
//
//	inferprice serve --config inferprice.yaml
//
// Refresh the stored graph from the upstream listing:
//
//	inferprice fetch
//
// Compare models in the terminal:
//
//	inferprice list --vendor Anthropic --sort samplePrice
//
// # Environment Variables
//
//   - INFERPRICE_CONFIG: path to the configuration file (default: inferprice.yaml)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	configPath string
	logLevel   string
)

// defaultConfigName is used when neither --config nor INFERPRICE_CONFIG is
// set. A missing default file falls back to built-in defaults.
const defaultConfigName = "inferprice.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "inferprice",
		Short: "Compare AI inference pricing across vendors",
		Long: `inferprice normalizes AI model listings into a canonical pricing graph
and estimates what a sample conversation costs on every model.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (or set INFERPRICE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildFetchCmd(),
		buildListCmd(),
		buildEstimateCmd(),
		buildExportCmd(),
		buildValidateCmd(),
		buildBackupCmd(),
		buildHistoryCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}
