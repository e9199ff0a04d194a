package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMapAliases(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want func(t *testing.T, cfg *Config)
	}{
		{
			name: "camelCase keys",
			in: map[string]any{
				"llmProvider":    "anthropic",
				"llmModel":       "claude-sonnet-4-20250514",
				"embeddingModel": "voyage-3",
				"wsPort":         float64(9000),
			},
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "anthropic", cfg.LLMProvider)
				assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLMModel)
				assert.Equal(t, "voyage-3", cfg.EmbeddingModel)
				assert.Equal(t, 9000, cfg.WSPort)
			},
		},
		{
			name: "snake_case wins over camelCase",
			in: map[string]any{
				"llm_model": "gpt-4o-mini",
				"llmModel":  "gpt-4o",
			},
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
			},
		},
		{
			name: "defaults",
			in:   map[string]any{},
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "openai", cfg.LLMProvider)
				assert.Equal(t, "gpt-4o", cfg.LLMModel)
				assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
				assert.Equal(t, "neo4j", cfg.DatabaseType)
				assert.Equal(t, "vault", cfg.NamespaceStrategy)
				assert.Equal(t, 8765, cfg.WSPort)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, FromMap(tt.in))
		})
	}
}

func TestDatabaseURLResolution(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want string
	}{
		{
			name: "direct databaseUrl wins",
			in: map[string]any{
				"databaseUrl": "bolt://db.example:7687",
				"databaseConfigs": map[string]any{
					"neo4j": map[string]any{"uri": "bolt://other:7687"},
				},
			},
			want: "bolt://db.example:7687",
		},
		{
			name: "neo4j config uri",
			in: map[string]any{
				"databaseConfigs": map[string]any{
					"neo4j": map[string]any{"uri": "neo4j://cluster:7687"},
				},
			},
			want: "neo4j://cluster:7687",
		},
		{
			name: "falkordb host and port",
			in: map[string]any{
				"databaseType": "falkordb",
				"databaseConfigs": map[string]any{
					"falkordb": map[string]any{"host": "falkor.local", "port": float64(6380)},
				},
			},
			want: "falkor://falkor.local:6380",
		},
		{
			name: "falkordb fallback",
			in:   map[string]any{"databaseType": "falkordb"},
			want: "falkor://localhost:6379",
		},
		{
			name: "neo4j fallback",
			in:   map[string]any{},
			want: "bolt://localhost:7687",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromMap(tt.in).DatabaseURL)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := FromMap(map[string]any{})
	errs := cfg.Validate()

	assert.Contains(t, errs, "LLM API key is required")
	assert.Contains(t, errs, "Database password is required for Neo4j")
	assert.Contains(t, errs, "Either models_path (static) or vault_path (dynamic) is required")
	assert.Contains(t, errs, "At least one note is required")
}

func TestValidateOllamaNeedsNoKey(t *testing.T) {
	cfg := FromMap(map[string]any{
		"llmProvider":   "ollama",
		"ollamaBaseUrl": "http://localhost:11434",
	})
	for _, e := range cfg.Validate() {
		assert.NotEqual(t, "LLM API key is required", e)
	}
}

func TestEffectiveAPIKeys(t *testing.T) {
	cfg := FromMap(map[string]any{
		"llmProvider":      "anthropic",
		"embedderProvider": "voyage",
		"apiKeys": map[string]any{
			"anthropic": "sk-ant-123",
		},
		"llmApiKey": "legacy-key",
	})

	assert.Equal(t, "sk-ant-123", cfg.EffectiveLLMAPIKey())
	// No voyage key configured, so the embedder falls back to the LLM key.
	assert.Equal(t, "sk-ant-123", cfg.EffectiveEmbedderAPIKey())
}

func TestRedacted(t *testing.T) {
	cfg := FromMap(map[string]any{
		"databasePassword": "secret",
		"wsAuthToken":      "token",
		"apiKeys":          map[string]any{"openai": "sk-123"},
		"notes":            []any{"a.md", "b.md"},
	})

	d := cfg.Redacted()
	assert.Equal(t, "REDACTED", d["database_password"])
	assert.Equal(t, "REDACTED", d["ws_auth_token"])
	assert.Equal(t, map[string]string{"openai": "REDACTED"}, d["api_keys"])
	assert.Equal(t, "[2 notes]", d["notes"])
}

func TestLoadDoubleEncoded(t *testing.T) {
	blob := `"{\"llmModel\": \"gpt-4o-mini\", \"notes\": [\"Daily/2026-01-01.md\"]}"`
	cfg, err := Load(strings.NewReader(blob))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, []string{"Daily/2026-01-01.md"}, cfg.Notes)
}

func TestLoadRejectsNonObject(t *testing.T) {
	_, err := Load(strings.NewReader(`[1, 2, 3]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a JSON object")
}

func TestFolderMappings(t *testing.T) {
	cfg := FromMap(map[string]any{
		"folderNamespaceMappings": []any{
			map[string]any{
				"folderPath":      "Projects/Alpha",
				"groupId":         "alpha",
				"sagaGrouping":    "byNoteType",
				"sagaPropertyKey": "note_type",
			},
		},
	})

	require.Len(t, cfg.FolderMappings, 1)
	assert.Equal(t, "Projects/Alpha", cfg.FolderMappings[0].FolderPath)
	assert.Equal(t, "alpha", cfg.FolderMappings[0].GroupID)
	assert.Equal(t, "byNoteType", cfg.FolderMappings[0].SagaGrouping)
}
