package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soundprediction/megamem/pkg/config"
	"github.com/soundprediction/megamem/pkg/embedder"
	"github.com/soundprediction/megamem/pkg/graph"
	"github.com/soundprediction/megamem/pkg/ingest"
	"github.com/soundprediction/megamem/pkg/schema"
)

var syncCmd = &cobra.Command{
	Use:   "sync [notes...]",
	Short: "Sync notes into the knowledge graph one-shot",
	Long: `Run the ingestion pipeline for the given notes and print one JSON
result envelope per note to stdout.

Notes default to the list in the bridge config; arguments override it.
Paths are resolved against the configured vault unless absolute.`,
	RunE:          runSync,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

// syncEmbedder builds the embedding client the config asks for. A nil
// client with a nil error means embeddings are simply not configured.
func syncEmbedder(cfg *config.Config) (embedder.Client, error) {
	switch strings.ToLower(cfg.EmbedderProvider) {
	case "local", "bge", "embedeverything":
		client, err := embedder.NewEmbedEverythingClient(embedder.Config{Model: "BAAI/bge-m3"})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		if key := cfg.EffectiveEmbedderAPIKey(); key != "" {
			return embedder.NewOpenAIEmbedder(key, embedder.Config{}), nil
		}
		return nil, nil
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadBridgeConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Notes = args
	}
	if len(cfg.Notes) == 0 {
		return fmt.Errorf("no notes to sync: pass note paths or set them in the config")
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	cfg.SetupEnvironment()

	ctx := cmd.Context()
	client, err := graph.NewNeo4jClient(cfg.DatabaseURL, cfg.DatabaseUsername, cfg.DatabasePassword, cfg.DatabaseName)
	if err != nil {
		return fmt.Errorf("failed to connect to graph backend: %w", err)
	}
	defer client.Close(context.Background())

	var extractor ingest.Extractor
	if cfg.UseCustomOntology && cfg.EffectiveLLMAPIKey() != "" {
		loader := schema.NewLoader(cfg.VaultPath, logger)
		extractor = ingest.NewOpenAIExtractor(cfg.EffectiveLLMAPIKey(), cfg.LLMBaseURL(), cfg.LLMModel, loader, logger)
	}

	embed, err := syncEmbedder(cfg)
	if err != nil {
		logger.Warn("Embedder unavailable, episodes will not carry vectors", "error", err)
	}
	if embed != nil {
		defer embed.Close()
	}

	processor := ingest.NewProcessor(cfg, graph.NewRetryClient(client, nil), extractor, logger).
		WithEmbedder(embed)
	encoder := json.NewEncoder(os.Stdout)

	failures := 0
	for _, note := range cfg.Notes {
		result, err := processor.ProcessNote(ctx, note)
		if err != nil {
			return fmt.Errorf("sync failed for %s: %w", note, err)
		}
		if result == nil {
			// Skipped (private or missing), nothing to report.
			continue
		}
		if err := encoder.Encode(result); err != nil {
			return err
		}
		if result.Status != "success" {
			failures++
			if result.CancelSync {
				logger.Error("Provider infrastructure issue, stopping sync")
				break
			}
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d note(s) failed to sync", failures)
	}
	return nil
}
