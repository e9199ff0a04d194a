// sync-daemon is the long-lived worker the Obsidian plugin spawns for note
// ingestion. Protocol JSON goes to stdout; everything else goes to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	megamemLogger "github.com/soundprediction/megamem/pkg/logger"

	"github.com/soundprediction/megamem/pkg/config"
	"github.com/soundprediction/megamem/pkg/daemon"
	"github.com/soundprediction/megamem/pkg/embedder"
	"github.com/soundprediction/megamem/pkg/graph"
	"github.com/soundprediction/megamem/pkg/ingest"
	"github.com/soundprediction/megamem/pkg/schema"
)

const defaultEmbedModel = "BAAI/bge-m3"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// episodeEmbedder picks the embedding client for a sync: the daemon's local
// model when the config asks for it, a hosted endpoint when a key is set,
// nothing otherwise.
func episodeEmbedder(cfg *config.Config, local embedder.Client) embedder.Client {
	switch strings.ToLower(cfg.EmbedderProvider) {
	case "local", "bge", "embedeverything":
		return local
	default:
		if key := cfg.EffectiveEmbedderAPIKey(); key != "" {
			return embedder.NewOpenAIEmbedder(key, embedder.Config{})
		}
		return nil
	}
}

// syncNote runs the ingestion pipeline for one note using the per-command
// config the plugin sends.
func syncNote(logger *slog.Logger) daemon.SyncFunc {
	return func(ctx context.Context, cfg *config.Config, notePath string, embed embedder.Client) (*ingest.Result, error) {
		if problems := cfg.Validate(); len(problems) > 0 {
			return nil, fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
		}

		client, err := graph.NewNeo4jClient(cfg.DatabaseURL, cfg.DatabaseUsername, cfg.DatabasePassword, cfg.DatabaseName)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to graph backend: %w", err)
		}
		defer client.Close(ctx)

		var extractor ingest.Extractor
		if cfg.UseCustomOntology {
			apiKey := cfg.EffectiveLLMAPIKey()
			if apiKey == "" && strings.ToLower(cfg.LLMProvider) != "ollama" {
				logger.Warn("Custom ontology requested without an API key, falling back to generic episodes")
			} else {
				loader := schema.NewLoader(cfg.VaultPath, logger)
				extractor = ingest.NewOpenAIExtractor(apiKey, cfg.LLMBaseURL(), cfg.LLMModel, loader, logger)
			}
		}

		processor := ingest.NewProcessor(cfg, graph.NewRetryClient(client, nil), extractor, logger).
			WithEmbedder(episodeEmbedder(cfg, embed))
		return processor.ProcessNote(ctx, notePath)
	}
}

func main() {
	var (
		embedModel = flag.String("embed-model", getEnv("MEGAMEM_EMBED_MODEL", defaultEmbedModel), "Local embedding model to warm up (empty to skip)")
		logLevel   = flag.String("log-level", getEnv("MEGAMEM_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := megamemLogger.NewDefaultLogger(parseLevel(*logLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(os.Stdin, os.Stdout, *embedModel, syncNote(logger), logger)
	if err := d.Run(ctx); err != nil {
		logger.Error("Daemon exited with error", "error", err)
		os.Exit(1)
	}
}
