package embedder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/megamem/pkg/embedder"
)

func TestNewOpenAIEmbedder(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		config embedder.Config
	}{
		{
			name:   "valid API key",
			apiKey: "test-api-key",
			config: embedder.Config{Model: "text-embedding-ada-002"},
		},
		{
			name:   "empty API key",
			apiKey: "",
			config: embedder.Config{Model: "text-embedding-ada-002"},
		},
		{
			name:   "custom model",
			apiKey: "test-api-key",
			config: embedder.Config{Model: "text-embedding-3-small"},
		},
		{
			name:   "custom base URL",
			apiKey: "test-api-key",
			config: embedder.Config{Model: "text-embedding-ada-002", BaseURL: "https://api.example.com"},
		},
		{
			name:   "empty model uses default",
			apiKey: "test-api-key",
			config: embedder.Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := embedder.NewOpenAIEmbedder(tt.apiKey, tt.config)
			assert.NotNil(t, client)
			assert.Greater(t, client.Dimensions(), 0)
		})
	}
}

func TestEmbedderInterface(t *testing.T) {
	var _ embedder.Client = (*embedder.OpenAIEmbedder)(nil)
	var _ embedder.Client = (*embedder.EmbedEverythingClient)(nil)
}

func TestEmbedEmptyInput(t *testing.T) {
	ctx := context.Background()
	client := embedder.NewOpenAIEmbedder("test-key", embedder.Config{})

	embeddings, err := client.Embed(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, embeddings)
}

func TestEmbedderConfig(t *testing.T) {
	tests := []struct {
		name         string
		config       embedder.Config
		expectedDims int
	}{
		{
			name: "default config",
			config: embedder.Config{
				Model: "text-embedding-ada-002",
			},
			expectedDims: 1536,
		},
		{
			name: "large model",
			config: embedder.Config{
				Model: "text-embedding-3-large",
			},
			expectedDims: 3072,
		},
		{
			name: "bge model",
			config: embedder.Config{
				Model: "BAAI/bge-m3",
			},
			expectedDims: 1024,
		},
		{
			name: "custom dimensions",
			config: embedder.Config{
				Model:      "custom-model",
				Dimensions: 512,
			},
			expectedDims: 512,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := embedder.NewOpenAIEmbedder("test-key", tt.config)
			assert.NotNil(t, client)
			assert.Equal(t, tt.expectedDims, client.Dimensions())
		})
	}
}
