package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/megamem/pkg/config"
	"github.com/soundprediction/megamem/pkg/hub"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the WebSocket vault hub standalone",
	Long: `Run the WebSocket vault hub without an MCP server in front of it.

The hub accepts Obsidian plugin connections on /ws and serves /health and
/rpc for RPC clients. Useful for debugging plugin connectivity.`,
	RunE: runHub,
}

var (
	hubPort      int
	hubAuthToken string
	hubSettings  string
)

func init() {
	rootCmd.AddCommand(hubCmd)

	hubCmd.Flags().IntVar(&hubPort, "port", 0, "Port to listen on (default from settings or 41484)")
	hubCmd.Flags().StringVar(&hubAuthToken, "auth-token", "", "Bearer token required from plugins and RPC clients")
	hubCmd.Flags().StringVar(&hubSettings, "settings", "", "Settings file for hub defaults")
}

func runHub(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	settings, err := config.LoadSettings(hubSettings)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	port := settings.Hub.Port
	if hubPort != 0 {
		port = hubPort
	}
	token := settings.Hub.AuthToken
	if hubAuthToken != "" {
		token = hubAuthToken
	}

	h := hub.NewServer(port, token, logger)
	if err := h.Start(); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	logger.Info("Hub listening", "port", port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	fmt.Printf("\nReceived signal: %v\n", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("hub shutdown error: %w", err)
	}
	fmt.Println("Hub stopped gracefully")
	return nil
}
