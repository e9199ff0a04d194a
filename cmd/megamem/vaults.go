package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundprediction/megamem/pkg/config"
	"github.com/soundprediction/megamem/pkg/rpcbridge"
)

var vaultsCmd = &cobra.Command{
	Use:   "vaults",
	Short: "List vaults connected to a running hub",
	RunE:  runVaults,
}

var (
	vaultsPort      int
	vaultsAuthToken string
)

func init() {
	rootCmd.AddCommand(vaultsCmd)

	vaultsCmd.Flags().IntVar(&vaultsPort, "port", 0, "Hub port (default from settings or 41484)")
	vaultsCmd.Flags().StringVar(&vaultsAuthToken, "auth-token", "", "Hub auth token")
}

func runVaults(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	settings, err := config.LoadSettings("")
	if err != nil {
		return err
	}
	port := settings.Hub.Port
	if vaultsPort != 0 {
		port = vaultsPort
	}
	token := settings.Hub.AuthToken
	if vaultsAuthToken != "" {
		token = vaultsAuthToken
	}

	bridge, err := rpcbridge.New("127.0.0.1", port, token, logger)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"activeVault": bridge.GetActiveVault(),
		"vaults":      bridge.GetAllVaultInfo(),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode vault info: %w", err)
	}
	return nil
}
