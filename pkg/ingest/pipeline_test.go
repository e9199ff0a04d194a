package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/megamem/pkg/config"
	"github.com/soundprediction/megamem/pkg/graph"
)

type fakeGraph struct {
	lastInput *graph.EpisodeInput
	result    *graph.EpisodeResult
	err       error
}

func (f *fakeGraph) AddEpisode(ctx context.Context, input *graph.EpisodeInput) (*graph.EpisodeResult, error) {
	f.lastInput = input
	return f.result, f.err
}

func (f *fakeGraph) SearchNodes(ctx context.Context, query string, groupIDs []string, limit int, entityLabels []string) ([]graph.Entity, error) {
	return nil, nil
}

func (f *fakeGraph) SearchFacts(ctx context.Context, query string, groupIDs []string, limit int) ([]graph.EntityEdge, error) {
	return nil, nil
}

func (f *fakeGraph) GetEntityEdge(ctx context.Context, uuid string) (*graph.EntityEdge, error) {
	return nil, nil
}

func (f *fakeGraph) DeleteEntityEdge(ctx context.Context, uuid string) error { return nil }
func (f *fakeGraph) DeleteEpisode(ctx context.Context, uuid string) error    { return nil }

func (f *fakeGraph) GetEpisodes(ctx context.Context, groupID string, lastN int) ([]graph.Episode, error) {
	return nil, nil
}

func (f *fakeGraph) ClearGraph(ctx context.Context, groupID string) error { return nil }
func (f *fakeGraph) GroupIDs(ctx context.Context) ([]string, error)       { return nil, nil }
func (f *fakeGraph) CreateIndices(ctx context.Context) error              { return nil }
func (f *fakeGraph) Close(ctx context.Context) error                      { return nil }

func writeNote(t *testing.T, vault, rel, content string) {
	t.Helper()
	path := filepath.Join(vault, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestProcessor(t *testing.T, vault string, fg *fakeGraph) *Processor {
	t.Helper()
	cfg := config.FromMap(map[string]any{
		"vaultPath":        vault,
		"defaultNamespace": "test-vault",
	})
	return NewProcessor(cfg, fg, nil, nil)
}

func TestProcessNoteSuccess(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "Daily/2026-01-05.md", `---
type: daily
date: 2026-01-05
---
# Standup

Met with [[Alice]] about the rollout.
`)

	fg := &fakeGraph{result: &graph.EpisodeResult{
		EpisodeUUID:        "ep-1",
		EntitiesCount:      2,
		RelationshipsCount: 1,
	}}
	p := newTestProcessor(t, vault, fg)

	result, err := p.ProcessNote(context.Background(), "Daily/2026-01-05.md")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "2026-01-05", result.NoteName)
	assert.Equal(t, "test-vault", result.Namespace)
	assert.Equal(t, "ep-1", result.EpisodeUUID)
	require.NotNil(t, result.Metrics)
	assert.Equal(t, 2, result.Metrics.EntitiesCount)
	assert.Equal(t, 1, result.Metrics.RelationshipsCount)
	assert.Equal(t, 2, result.Metrics.MetadataFields)

	require.NotNil(t, fg.lastInput)
	assert.Equal(t, "daily", fg.lastInput.SourceDescription)
	assert.Equal(t, "test-vault", fg.lastInput.GroupID)
	assert.Contains(t, fg.lastInput.Body, "type: daily")
	assert.Contains(t, fg.lastInput.Body, "Met with Alice")
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), fg.lastInput.ReferenceTime)
}

func TestProcessNoteSkipsPrivate(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "Secret.md", "---\nprivate: true\n---\nhidden\n")

	p := newTestProcessor(t, vault, &fakeGraph{})

	result, err := p.ProcessNote(context.Background(), "Secret.md")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestProcessNoteSkipsMissingFile(t *testing.T) {
	p := newTestProcessor(t, t.TempDir(), &fakeGraph{})

	result, err := p.ProcessNote(context.Background(), "Nope.md")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestProcessNoteFailedEnvelope(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	p := newTestProcessor(t, vault, &fakeGraph{result: nil})

	result, err := p.ProcessNote(context.Background(), "a.md")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "Episode creation returned no result", result.Error)
}

func TestProcessNoteRateLimited(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	fg := &fakeGraph{err: errors.New("429 Too Many Requests\nretry-after: 120")}
	p := newTestProcessor(t, vault, fg)

	result, err := p.ProcessNote(context.Background(), "a.md")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "rate_limited", result.Status)
	assert.Equal(t, "API rate limit exceeded - sync will pause until reset", result.Error)
	assert.Equal(t, 120, result.RetryAfter)
	assert.Equal(t, "429 Too Many Requests", result.ProviderMessage)
	assert.False(t, result.CancelSync)
}

func TestProcessNoteInfrastructureError(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	fg := &fakeGraph{err: NewInfrastructureError("Cloudflare 502 page")}
	p := newTestProcessor(t, vault, fg)

	result, err := p.ProcessNote(context.Background(), "a.md")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "infrastructure_error", result.Status)
	assert.Equal(t, "Service provider infrastructure issue - please try again later", result.Error)
	assert.Equal(t, "Cloudflare 502 page", result.ProviderMessage)
	assert.True(t, result.CancelSync)
}

func TestProcessNotePropagatesUnknownErrors(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	fg := &fakeGraph{err: errors.New("connection reset by peer")}
	p := newTestProcessor(t, vault, fg)

	result, err := p.ProcessNote(context.Background(), "a.md")
	require.Error(t, err)
	assert.Nil(t, result)
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{f.vec}, f.err
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }
func (f *fakeEmbedder) Close() error    { return nil }

func TestProcessNoteAttachesEmbedding(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	fg := &fakeGraph{result: &graph.EpisodeResult{EpisodeUUID: "ep"}}
	p := newTestProcessor(t, vault, fg).WithEmbedder(&fakeEmbedder{vec: []float32{0.1, 0.2}})

	_, err := p.ProcessNote(context.Background(), "a.md")
	require.NoError(t, err)
	require.NotNil(t, fg.lastInput)
	assert.Equal(t, []float32{0.1, 0.2}, fg.lastInput.Embedding)
}

func TestProcessNoteEmbeddingFailureIsNonFatal(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	fg := &fakeGraph{result: &graph.EpisodeResult{EpisodeUUID: "ep"}}
	p := newTestProcessor(t, vault, fg).WithEmbedder(&fakeEmbedder{err: errors.New("model not loaded")})

	result, err := p.ProcessNote(context.Background(), "a.md")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "success", result.Status)
	require.NotNil(t, fg.lastInput)
	assert.Empty(t, fg.lastInput.Embedding)
}

type fakeExtractor struct {
	entities []graph.Entity
	edges    []graph.EntityEdge
	err      error
}

func (f *fakeExtractor) Extract(ctx context.Context, text, instructions string) ([]graph.Entity, []graph.EntityEdge, error) {
	return f.entities, f.edges, f.err
}

func TestProcessNoteExtractionFailureFallsBackToGeneric(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	cfg := config.FromMap(map[string]any{
		"vaultPath":         vault,
		"defaultNamespace":  "test-vault",
		"useCustomOntology": true,
	})
	fg := &fakeGraph{result: &graph.EpisodeResult{EpisodeUUID: "ep"}}
	x := &fakeExtractor{err: errors.New("extraction model returned malformed output")}
	p := NewProcessor(cfg, fg, x, nil)

	result, err := p.ProcessNote(context.Background(), "a.md")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "success", result.Status)

	require.NotNil(t, fg.lastInput)
	assert.Empty(t, fg.lastInput.Entities)
	assert.Empty(t, fg.lastInput.Edges)
}

func TestProcessNoteExtractionRateLimitSurfaces(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	cfg := config.FromMap(map[string]any{
		"vaultPath":         vault,
		"defaultNamespace":  "test-vault",
		"useCustomOntology": true,
	})
	fg := &fakeGraph{result: &graph.EpisodeResult{EpisodeUUID: "ep"}}
	x := &fakeExtractor{err: errors.New("rate limit exceeded")}
	p := NewProcessor(cfg, fg, x, nil)

	result, err := p.ProcessNote(context.Background(), "a.md")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "rate_limited", result.Status)
	assert.Nil(t, fg.lastInput)
}

func TestProcessNoteSagaChaining(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "Projects/Alpha/plan.md", "---\ntype: meeting\n---\nnotes\n")

	syncDir := filepath.Join(vault, ".obsidian", "plugins", "megamem-mcp")
	require.NoError(t, os.MkdirAll(syncDir, 0o755))
	syncJSON := `{
		"sync_records": [
			{"syncs": [
				{"saga_name": "meeting-alpha", "episode_uuid": "old-1", "last_sync": "2026-01-01T00:00:00Z"},
				{"saga_name": "meeting-alpha", "episode_uuid": "old-2", "last_sync": "2026-02-01T00:00:00Z"}
			]}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(syncDir, "sync.json"), []byte(syncJSON), 0o644))

	cfg := config.FromMap(map[string]any{
		"vaultPath":               vault,
		"defaultNamespace":        "test-vault",
		"enableFolderNamespacing": true,
		"folderNamespaceMappings": []any{
			map[string]any{"folderPath": "Projects/Alpha", "groupId": "alpha"},
		},
	})
	fg := &fakeGraph{result: &graph.EpisodeResult{EpisodeUUID: "ep-new"}}
	p := NewProcessor(cfg, fg, nil, nil)

	result, err := p.ProcessNote(context.Background(), "Projects/Alpha/plan.md")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "alpha", result.Namespace)
	assert.Equal(t, "meeting-alpha", result.SagaName)
	require.NotNil(t, fg.lastInput)
	assert.Equal(t, "meeting-alpha", fg.lastInput.SagaName)
	assert.Equal(t, "old-2", fg.lastInput.SagaPreviousUUID)
}

func TestProcessNoteOmitsGroupIDForFalkor(t *testing.T) {
	vault := t.TempDir()
	writeNote(t, vault, "a.md", "body\n")

	cfg := config.FromMap(map[string]any{
		"vaultPath":        vault,
		"databaseType":     "falkordb",
		"defaultNamespace": "test-vault",
	})
	fg := &fakeGraph{result: &graph.EpisodeResult{EpisodeUUID: "ep"}}
	p := NewProcessor(cfg, fg, nil, nil)

	_, err := p.ProcessNote(context.Background(), "a.md")
	require.NoError(t, err)
	require.NotNil(t, fg.lastInput)
	assert.Empty(t, fg.lastInput.GroupID)
}

func TestResolveNotePath(t *testing.T) {
	cfg := config.FromMap(map[string]any{"vaultPath": "/home/user/MyVault"})
	p := NewProcessor(cfg, &fakeGraph{}, nil, nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"relative gets vault prefix", "Daily/a.md", filepath.Join("/home/user/MyVault", "Daily/a.md")},
		{"already vault-prefixed", "MyVault/Daily/a.md", "MyVault/Daily/a.md"},
		{"absolute untouched", "/tmp/a.md", "/tmp/a.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.resolveNotePath(tt.in))
		})
	}
}

func TestMergeFrontmatterBody(t *testing.T) {
	body := mergeFrontmatterBody(map[string]any{
		"type": "daily",
		"tags": []any{"a", "b"},
	}, "content")

	assert.Equal(t, "---\ntags: [\"a\",\"b\"]\ntype: daily\n---\ncontent", body)
	assert.Equal(t, "content", mergeFrontmatterBody(nil, "content"))
}

func TestSourceDescription(t *testing.T) {
	cfg := config.FromMap(map[string]any{"sourceDescription": "configured"})

	assert.Equal(t, "meeting", sourceDescription(map[string]any{"type": "meeting"}, cfg))
	assert.Equal(t, "configured", sourceDescription(nil, cfg))
	assert.Equal(t, "obsidian_mm_default", sourceDescription(nil, config.FromMap(map[string]any{})))
}
