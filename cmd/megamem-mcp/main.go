// megamem-mcp is the MCP server bridging AI assistants to the knowledge
// graph and to Obsidian vaults over the WebSocket hub. Multiple instances
// elect one hub owner per port; the rest become RPC clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"

	megamemLogger "github.com/soundprediction/megamem/pkg/logger"

	"github.com/soundprediction/megamem/pkg/config"
	"github.com/soundprediction/megamem/pkg/graph"
	"github.com/soundprediction/megamem/pkg/ingest"
	"github.com/soundprediction/megamem/pkg/schema"
	"github.com/soundprediction/megamem/pkg/vault"
)

// Default configuration values
const (
	DefaultPort      = 41484
	DefaultGroupID   = "obsidian_vault"
	readinessTimeout = 20 * time.Second
)

// MCPServer holds the tool surface state for one process.
type MCPServer struct {
	cfg    *config.Config
	logger *slog.Logger

	port      int
	authToken string

	// Vault file service, backed by the in-process hub or the RPC bridge
	// depending on the election outcome.
	service vault.Service
	files   *vault.FileTools
	rpcMode bool

	queues *episodeQueues

	// ready is closed once background graph initialization finishes.
	ready     chan struct{}
	mu        sync.RWMutex
	graph     graph.Client
	extractor ingest.Extractor
	initErr   error

	shutdown []func(context.Context)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseLevel(level string) slog.Level {
	switch level {
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

// NewMCPServer wires a server from the bridge config. cfg may be nil when no
// plugin config is available; graph tools then report unavailability.
func NewMCPServer(cfg *config.Config, port int, authToken string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPServer{
		cfg:       cfg,
		logger:    logger,
		port:      port,
		authToken: authToken,
		queues:    newEpisodeQueues(logger),
		ready:     make(chan struct{}),
	}
}

// Initialize elects the process role and, for the hub owner, kicks off
// background graph initialization.
func (s *MCPServer) Initialize(ctx context.Context) error {
	if err := s.startVaultService(); err != nil {
		return err
	}
	s.files = vault.NewFileTools(s.service, s.logger)

	if s.rpcMode {
		// The hub owner carries the graph; nothing heavy to load here.
		close(s.ready)
		s.logger.Info("RPC client startup complete, graph tools routed to hub owner")
		return nil
	}

	go s.loadGraphClient(ctx)
	return nil
}

// loadGraphClient connects the graph backend in the background so tool
// listing stays fast on startup.
func (s *MCPServer) loadGraphClient(ctx context.Context) {
	defer close(s.ready)

	if s.cfg == nil || s.cfg.DatabaseURL == "" {
		s.logger.Warn("No database configuration, graph tools disabled")
		return
	}

	client, err := graph.NewNeo4jClient(s.cfg.DatabaseURL, s.cfg.DatabaseUsername, s.cfg.DatabasePassword, s.cfg.DatabaseName)
	if err != nil {
		s.logger.Error("Graph client initialization failed", "error", err)
		s.mu.Lock()
		s.initErr = err
		s.mu.Unlock()
		return
	}

	s.logger.Info("Building graph indices")
	if err := client.CreateIndices(ctx); err != nil {
		s.logger.Error("Failed to build graph indices", "error", err)
	}

	var extractor ingest.Extractor
	if s.cfg.UseCustomOntology {
		if apiKey := s.cfg.EffectiveLLMAPIKey(); apiKey != "" {
			loader := schema.NewLoader(s.cfg.VaultPath, s.logger)
			extractor = ingest.NewOpenAIExtractor(apiKey, s.cfg.LLMBaseURL(), s.cfg.LLMModel, loader, s.logger)
			s.logger.Info("Custom ontology enabled", "model", s.cfg.LLMModel)
		} else {
			s.logger.Warn("Custom ontology requested without an API key, storing generic episodes")
		}
	}

	s.mu.Lock()
	s.graph = graph.NewRetryClient(client, nil)
	s.extractor = extractor
	s.mu.Unlock()
	s.shutdown = append(s.shutdown, func(ctx context.Context) { client.Close(ctx) })

	s.logger.Info("Graph initialization complete, tools ready")
}

// defaultGroupID is the namespace used when a tool call does not name one.
func (s *MCPServer) defaultGroupID() string {
	if s.cfg != nil && s.cfg.DefaultNamespace != "" {
		return s.cfg.DefaultNamespace
	}
	return DefaultGroupID
}

// Run starts Genkit, registers tools, and blocks until the context ends.
func (s *MCPServer) Run(ctx context.Context) error {
	g := genkit.Init(ctx)
	s.RegisterTools(g)

	s.logger.Info("MCP server ready", "port", s.port, "rpc_mode", s.rpcMode)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range s.shutdown {
		fn(stopCtx)
	}
	return ctx.Err()
}

func main() {
	var (
		configPath = flag.String("config", getEnv("OBSIDIAN_CONFIG_PATH", ""), "Path to the plugin bridge config JSON")
		settings   = flag.String("settings", "", "Optional settings file for hub defaults")
		port       = flag.Int("port", 0, "WebSocket hub port override")
		authToken  = flag.String("auth-token", "", "Hub auth token override")
		logLevel   = flag.String("log-level", getEnv("MEGAMEM_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := megamemLogger.NewDefaultLogger(parseLevel(*logLevel))

	hubSettings, err := config.LoadSettings(*settings)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	var cfg *config.Config
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load bridge config from %s: %v", *configPath, err)
		}
		cfg.SetupEnvironment()
		logger.Info("Loaded bridge config", "path", *configPath, "vault", cfg.VaultName)
	} else {
		logger.Warn("OBSIDIAN_CONFIG_PATH not set, graph tools limited to explicit configuration")
	}

	resolvedPort := hubSettings.Hub.Port
	resolvedToken := hubSettings.Hub.AuthToken
	if cfg != nil {
		if cfg.WSPort != 0 {
			resolvedPort = cfg.WSPort
		}
		if cfg.WSAuthToken != "" {
			resolvedToken = cfg.WSAuthToken
		}
	}
	if *port != 0 {
		resolvedPort = *port
	}
	if *authToken != "" {
		resolvedToken = *authToken
	}
	if resolvedPort == 0 {
		resolvedPort = getEnvInt("MEGAMEM_WS_PORT", DefaultPort)
	}

	server := NewMCPServer(cfg, resolvedPort, resolvedToken, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize MCP server: %v", err)
	}

	if err := server.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, "MCP server error:", err)
		os.Exit(1)
	}
}
