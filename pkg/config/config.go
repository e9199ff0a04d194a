// Package config holds the bridge configuration passed from the Obsidian
// plugin. The plugin serializes its settings as a JSON blob; both snake_case
// and camelCase key forms are accepted since older plugin versions emitted
// camelCase only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
)

// FolderMapping maps a vault folder prefix to a namespace and its
// per-folder extraction and saga settings.
type FolderMapping struct {
	FolderPath                   string `json:"folderPath"`
	GroupID                      string `json:"groupId"`
	CustomExtractionInstructions string `json:"customExtractionInstructions,omitempty"`
	SagaGrouping                 string `json:"sagaGrouping,omitempty"`
	SagaPropertyKey              string `json:"sagaPropertyKey,omitempty"`
}

// Config is the full bridge configuration for one sync run.
type Config struct {
	// LLM configuration
	LLMProvider   string
	LLMModel      string
	LLMSmallModel string

	// Cross-encoder configuration
	CrossEncoderClient string
	CrossEncoderModel  string

	// Embedder configuration
	EmbedderProvider string
	EmbeddingModel   string

	// Database configuration
	DatabaseType     string
	DatabaseURL      string
	DatabaseUsername string
	DatabasePassword string
	DatabaseName     string

	// Provider API keys keyed by provider name, plus legacy single-key fields.
	APIKeys        map[string]string
	LLMAPIKey      string
	EmbedderAPIKey string

	// Provider-specific settings
	AzureEndpoint   string
	AzureAPIVersion string
	OllamaBaseURL   string

	// Processing
	ModelsPath string
	VaultPath  string
	VaultName  string
	Notes      []string
	BatchSize  int
	MaxRetries int
	Timeout    int
	Debug      bool

	// Episode and ontology configuration
	UseCustomOntology            bool
	UseBulkSync                  bool
	DefaultNamespace             string
	NamespaceStrategy            string
	EnableFolderNamespacing      bool
	EnablePropertyNamespacing    bool
	FolderMappings               []FolderMapping
	AvailableNamespaces          []string
	GlobalExtractionInstructions string
	SourceDescription            string

	// Optional namespace override supplied by the plugin. When set it wins
	// over every other namespace resolution rule.
	GroupID string

	// WebSocket hub configuration
	WSPort      int
	WSAuthToken string

	GraphViewID string
}

// FromMap builds a Config from a decoded JSON object, accepting both
// snake_case and camelCase keys.
func FromMap(m map[string]any) *Config {
	cfg := &Config{
		LLMProvider:   getString(m, "llm_provider", "llmProvider", "openai"),
		LLMModel:      getString(m, "llm_model", "llmModel", "gpt-4o"),
		LLMSmallModel: getString(m, "llm_small_model", "llmSmallModel", ""),

		CrossEncoderClient: getString(m, "cross_encoder_client", "crossEncoderClient", ""),
		CrossEncoderModel:  getString(m, "cross_encoder_model", "crossEncoderModel", ""),

		EmbedderProvider: getString(m, "embedder_provider", "embedderProvider", "openai"),
		EmbeddingModel:   getString(m, "embedding_model", "embeddingModel", "text-embedding-3-small"),

		DatabaseType:     getString(m, "database_type", "databaseType", "neo4j"),
		DatabaseURL:      databaseURLFromMap(m),
		DatabaseUsername: getString(m, "database_username", "databaseUsername", "neo4j"),
		DatabasePassword: getString(m, "database_password", "databasePassword", ""),
		DatabaseName:     getString(m, "database_name", "databaseName", "neo4j"),

		APIKeys:        getStringMap(m, "api_keys", "apiKeys"),
		LLMAPIKey:      getString(m, "llm_api_key", "llmApiKey", ""),
		EmbedderAPIKey: getString(m, "embedder_api_key", "embedderApiKey", ""),

		AzureEndpoint:   getString(m, "azure_endpoint", "azureEndpoint", ""),
		AzureAPIVersion: getString(m, "azure_api_version", "azureApiVersion", ""),
		OllamaBaseURL:   getString(m, "ollama_base_url", "ollamaBaseUrl", ""),

		ModelsPath: getString(m, "models_path", "modelsPath", ""),
		VaultPath:  getString(m, "vault_path", "vaultPath", ""),
		VaultName:  getString(m, "vault_name", "vaultName", ""),
		Notes:      getStringSlice(m, "notes"),
		BatchSize:  getInt(m, "batch_size", "batchSize", 10),
		MaxRetries: getInt(m, "max_retries", "maxRetries", 3),
		Timeout:    getInt(m, "timeout", "timeout", 30),
		Debug:      getBool(m, "debug", "debugMode", false),

		UseCustomOntology:            getBool(m, "use_custom_ontology", "useCustomOntology", false),
		UseBulkSync:                  getBool(m, "use_bulk_sync", "useBulkSync", false),
		DefaultNamespace:             getString(m, "default_namespace", "defaultNamespace", "vault"),
		NamespaceStrategy:            getString(m, "namespace_strategy", "namespaceStrategy", "vault"),
		EnableFolderNamespacing:      getBool(m, "enable_folder_namespacing", "enableFolderNamespacing", false),
		EnablePropertyNamespacing:    getBool(m, "enable_property_namespacing", "enablePropertyNamespacing", false),
		AvailableNamespaces:          getStringSlice(m, "available_namespaces", "availableNamespaces"),
		GlobalExtractionInstructions: getString(m, "global_extraction_instructions", "globalExtractionInstructions", ""),
		SourceDescription:            getString(m, "source_description", "sourceDescription", ""),

		GroupID: getString(m, "group_id", "groupId", ""),

		WSPort:      getInt(m, "ws_port", "wsPort", 8765),
		WSAuthToken: getString(m, "ws_auth_token", "wsAuthToken", ""),
	}

	cfg.GraphViewID = getString(m, "graph_view_id", "graphViewId", "")
	if cfg.GraphViewID == "" {
		cfg.GraphViewID = getString(m, "default_namespace", "defaultNamespace", "vault")
	}

	cfg.FolderMappings = folderMappingsFromMap(m)
	return cfg
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []string {
	var errs []string

	// Ollama runs locally and needs no API key.
	if c.LLMProvider != "ollama" && c.EffectiveLLMAPIKey() == "" {
		errs = append(errs, "LLM API key is required")
	}
	if c.LLMModel == "" {
		errs = append(errs, "LLM model is required")
	}
	if c.EmbeddingModel == "" {
		errs = append(errs, "Embedding model is required")
	}
	if c.DatabaseURL == "" {
		errs = append(errs, "Database URL is required")
	}
	if c.DatabasePassword == "" && c.DatabaseType == "neo4j" {
		errs = append(errs, "Database password is required for Neo4j")
	}
	if c.ModelsPath == "" && c.VaultPath == "" {
		errs = append(errs, "Either models_path (static) or vault_path (dynamic) is required")
	}
	if len(c.Notes) == 0 {
		errs = append(errs, "At least one note is required")
	}

	if c.LLMProvider == "azure" {
		if c.AzureEndpoint == "" {
			errs = append(errs, "Azure endpoint is required for Azure provider")
		}
		if c.AzureAPIVersion == "" {
			errs = append(errs, "Azure API version is required for Azure provider")
		}
	}
	if c.LLMProvider == "ollama" && c.OllamaBaseURL == "" {
		errs = append(errs, "Ollama base URL is required for Ollama provider")
	}

	if c.ModelsPath != "" && !pathExists(c.ModelsPath) {
		errs = append(errs, fmt.Sprintf("Models path does not exist: %s", c.ModelsPath))
	}
	if c.VaultPath != "" && !pathExists(c.VaultPath) {
		errs = append(errs, fmt.Sprintf("Vault path does not exist: %s", c.VaultPath))
	}

	for _, note := range c.Notes {
		if pathExists(note) {
			continue
		}
		if c.VaultPath != "" && pathExists(filepath.Join(c.VaultPath, note)) {
			continue
		}
		errs = append(errs, fmt.Sprintf("Note file does not exist: %s", note))
	}

	return errs
}

// EffectiveLLMAPIKey returns the API key for the LLM provider, preferring
// the per-provider map over the legacy single-key field.
func (c *Config) EffectiveLLMAPIKey() string {
	if key, ok := c.APIKeys[c.LLMProvider]; ok && key != "" {
		return key
	}
	return c.LLMAPIKey
}

// EffectiveEmbedderAPIKey returns the embedder API key, falling back to the
// LLM key when no embedder-specific key is configured.
func (c *Config) EffectiveEmbedderAPIKey() string {
	if key, ok := c.APIKeys[c.EmbedderProvider]; ok && key != "" {
		return key
	}
	if c.EmbedderAPIKey != "" {
		return c.EmbedderAPIKey
	}
	return c.EffectiveLLMAPIKey()
}

// LLMBaseURL maps the configured provider to its OpenAI-compatible
// endpoint. Empty means the client default.
func (c *Config) LLMBaseURL() string {
	switch strings.ToLower(c.LLMProvider) {
	case "ollama":
		if c.OllamaBaseURL != "" {
			return strings.TrimSuffix(c.OllamaBaseURL, "/") + "/v1"
		}
		return "http://localhost:11434/v1"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "azure":
		return c.AzureEndpoint
	default:
		return ""
	}
}

// Redacted returns a loggable view of the config with secrets masked and
// the note list summarized.
func (c *Config) Redacted() map[string]any {
	d := map[string]any{
		"llm_provider":       c.LLMProvider,
		"llm_model":          c.LLMModel,
		"embedder_provider":  c.EmbedderProvider,
		"embedding_model":    c.EmbeddingModel,
		"database_type":      c.DatabaseType,
		"database_url":       c.DatabaseURL,
		"database_username":  c.DatabaseUsername,
		"database_name":      c.DatabaseName,
		"default_namespace":  c.DefaultNamespace,
		"namespace_strategy": c.NamespaceStrategy,
		"vault_path":         c.VaultPath,
		"models_path":        c.ModelsPath,
		"notes":              fmt.Sprintf("[%d notes]", len(c.Notes)),
		"debug":              c.Debug,
	}
	if len(c.APIKeys) > 0 {
		redacted := make(map[string]string, len(c.APIKeys))
		for provider := range c.APIKeys {
			redacted[provider] = "REDACTED"
		}
		d["api_keys"] = redacted
	}
	if c.LLMAPIKey != "" {
		d["llm_api_key"] = "REDACTED"
	}
	if c.EmbedderAPIKey != "" {
		d["embedder_api_key"] = "REDACTED"
	}
	if c.DatabasePassword != "" {
		d["database_password"] = "REDACTED"
	}
	if c.WSAuthToken != "" {
		d["ws_auth_token"] = "REDACTED"
	}
	return d
}

// IsNeo4jFamily reports whether the configured backend speaks the bolt
// protocol and expects group ids attached to episodes.
func (c *Config) IsNeo4jFamily() bool {
	return c.DatabaseType == "neo4j" || c.DatabaseType == "falkordb"
}

// databaseURLFromMap resolves the database URL with the documented
// priority: explicit databaseUrl, then the per-database config block, then
// defaults.
func databaseURLFromMap(m map[string]any) string {
	if url := getString(m, "database_url", "databaseUrl", ""); url != "" {
		return url
	}

	dbType := getString(m, "database_type", "databaseType", "neo4j")
	configs, _ := m["databaseConfigs"].(map[string]any)

	switch dbType {
	case "neo4j":
		if neo, ok := configs["neo4j"].(map[string]any); ok {
			if uri := cast.ToString(neo["uri"]); uri != "" {
				return uri
			}
		}
	case "falkordb":
		if falkor, ok := configs["falkordb"].(map[string]any); ok {
			host := cast.ToString(falkor["host"])
			if host == "" {
				host = "localhost"
			}
			port := cast.ToInt(falkor["port"])
			if port == 0 {
				port = 6379
			}
			return fmt.Sprintf("falkor://%s:%d", host, port)
		}
		return "falkor://localhost:6379"
	}

	return "bolt://localhost:7687"
}

func folderMappingsFromMap(m map[string]any) []FolderMapping {
	raw, ok := m["folder_namespace_mappings"].([]any)
	if !ok {
		raw, _ = m["folderNamespaceMappings"].([]any)
	}
	var mappings []FolderMapping
	for _, entry := range raw {
		em, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		mappings = append(mappings, FolderMapping{
			FolderPath:                   cast.ToString(em["folderPath"]),
			GroupID:                      cast.ToString(em["groupId"]),
			CustomExtractionInstructions: cast.ToString(em["customExtractionInstructions"]),
			SagaGrouping:                 cast.ToString(em["sagaGrouping"]),
			SagaPropertyKey:              cast.ToString(em["sagaPropertyKey"]),
		})
	}
	return mappings
}

func getString(m map[string]any, snake, camel, def string) string {
	if v, ok := m[snake]; ok {
		if s := cast.ToString(v); s != "" {
			return s
		}
	}
	if v, ok := m[camel]; ok {
		if s := cast.ToString(v); s != "" {
			return s
		}
	}
	return def
}

func getInt(m map[string]any, snake, camel string, def int) int {
	if v, ok := m[snake]; ok {
		if n := cast.ToInt(v); n != 0 {
			return n
		}
	}
	if v, ok := m[camel]; ok {
		if n := cast.ToInt(v); n != 0 {
			return n
		}
	}
	return def
}

func getBool(m map[string]any, snake, camel string, def bool) bool {
	if v, ok := m[snake]; ok {
		return cast.ToBool(v)
	}
	if v, ok := m[camel]; ok {
		return cast.ToBool(v)
	}
	return def
}

func getStringMap(m map[string]any, snake, camel string) map[string]string {
	v, ok := m[snake]
	if !ok {
		v = m[camel]
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = cast.ToString(val)
	}
	return out
}

func getStringSlice(m map[string]any, keys ...string) []string {
	for _, key := range keys {
		raw, ok := m[key].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, val := range raw {
			out = append(out, cast.ToString(val))
		}
		return out
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
