// megamem is the operator CLI for the bridge: run the vault hub
// standalone, sync notes one-shot, and inspect configuration and connected
// vaults.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	megamemLogger "github.com/soundprediction/megamem/pkg/logger"

	"github.com/soundprediction/megamem/pkg/config"
)

var (
	cfgFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "megamem",
		Short: "MegaMem: Obsidian knowledge graph bridge",
		Long: `MegaMem bridges Obsidian vaults to a temporal knowledge graph.

This CLI runs the pieces the Obsidian plugin normally drives: the WebSocket
vault hub, one-shot note syncs, and configuration inspection.`,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("OBSIDIAN_CONFIG_PATH"), "bridge config JSON exported by the Obsidian plugin")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return megamemLogger.NewDefaultLogger(level)
}

func loadBridgeConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("no bridge config: set --config or OBSIDIAN_CONFIG_PATH")
	}
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load bridge config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
