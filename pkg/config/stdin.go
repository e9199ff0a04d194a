package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Load reads a JSON configuration object from r. Some plugin versions
// double-encode the blob (a JSON string containing JSON), so a string
// result is decoded a second time.
func Load(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON configuration: %w", err)
	}

	if inner, ok := decoded.(string); ok {
		if err := json.Unmarshal([]byte(inner), &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON configuration: %w", err)
		}
	}

	m, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("configuration must be a JSON object, got %T", decoded)
	}

	return FromMap(m), nil
}

// LoadFromStdin reads the configuration blob the plugin writes to the
// child process's stdin.
func LoadFromStdin() (*Config, error) {
	return Load(os.Stdin)
}

// LoadFromFile reads a configuration object from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}
	defer f.Close()
	return Load(f)
}

// SetupEnvironment exports provider API keys and related settings as
// environment variables for clients that read them from the environment.
func (c *Config) SetupEnvironment() {
	os.Setenv("DEFAULT_DATABASE", c.DatabaseName)

	llmKey := c.EffectiveLLMAPIKey()
	switch c.LLMProvider {
	case "openai":
		os.Setenv("OPENAI_API_KEY", llmKey)
	case "anthropic":
		os.Setenv("ANTHROPIC_API_KEY", llmKey)
	case "google":
		os.Setenv("GOOGLE_API_KEY", llmKey)
	case "groq":
		os.Setenv("GROQ_API_KEY", llmKey)
	case "venice":
		os.Setenv("VENICE_API_KEY", llmKey)
	case "openrouter":
		os.Setenv("OPENROUTER_API_KEY", llmKey)
	}

	embedderKey := c.EffectiveEmbedderAPIKey()
	switch c.EmbedderProvider {
	case "openai":
		os.Setenv("OPENAI_API_KEY", embedderKey)
	case "voyage":
		os.Setenv("VOYAGE_API_KEY", embedderKey)
	}

	if c.Debug {
		os.Setenv("MEGAMEM_BRIDGE_DEBUG", "1")
	}
}

// VaultPathFromEnv returns the vault path exported by the host process, if
// any.
func VaultPathFromEnv() string {
	return os.Getenv("OBSIDIAN_VAULT_PATH")
}
