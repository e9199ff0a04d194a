package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved bridge config with secrets redacted",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadBridgeConfig()
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg.Redacted()); err != nil {
		return err
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		fmt.Fprintln(os.Stderr, "Configuration problems:")
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, " -", p)
		}
		return fmt.Errorf("%d configuration problem(s)", len(problems))
	}
	return nil
}
