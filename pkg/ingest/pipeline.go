package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundprediction/megamem/pkg/config"
	"github.com/soundprediction/megamem/pkg/embedder"
	"github.com/soundprediction/megamem/pkg/graph"
	"github.com/soundprediction/megamem/pkg/namespace"
	"github.com/soundprediction/megamem/pkg/note"
)

// Metrics summarizes what one episode produced.
type Metrics struct {
	EntitiesCount      int `json:"entities_count"`
	RelationshipsCount int `json:"relationships_count"`
	ContentLength      int `json:"content_length"`
	MetadataFields     int `json:"metadata_fields"`
}

// Result is the per-note envelope reported back to the plugin. Status is one
// of success, failed, rate_limited, or infrastructure_error.
type Result struct {
	NotePath                  string   `json:"note_path"`
	NoteName                  string   `json:"note_name"`
	Status                    string   `json:"status"`
	Namespace                 string   `json:"namespace,omitempty"`
	EpisodeUUID               string   `json:"episode_uuid,omitempty"`
	SagaName                  string   `json:"saga_name,omitempty"`
	ReferenceTime             string   `json:"reference_time,omitempty"`
	ProcessingDurationSeconds float64  `json:"processing_duration_seconds"`
	StartTime                 string   `json:"start_time"`
	EndTime                   string   `json:"end_time"`
	Metrics                   *Metrics `json:"metrics,omitempty"`
	Error                     string   `json:"error,omitempty"`

	// Rate limit fields.
	RetryAfter int    `json:"retry_after,omitempty"`
	ResetTime  string `json:"reset_time,omitempty"`

	// Provider diagnostics.
	ProviderMessage string `json:"provider_message,omitempty"`

	// CancelSync tells the caller to abort the whole sync run.
	CancelSync bool `json:"cancel_sync,omitempty"`
}

// Processor turns a single note into an episode.
type Processor struct {
	cfg       *config.Config
	client    graph.Client
	extractor Extractor
	embed     embedder.Client
	logger    *slog.Logger
}

// NewProcessor wires a pipeline. The extractor may be nil when custom
// ontology extraction is disabled.
func NewProcessor(cfg *config.Config, client graph.Client, extractor Extractor, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:       cfg,
		client:    client,
		extractor: extractor,
		logger:    logger,
	}
}

// WithEmbedder attaches an embedding client; episodes then carry a vector
// for their body text.
func (p *Processor) WithEmbedder(e embedder.Client) *Processor {
	p.embed = e
	return p
}

// ProcessNote ingests one note. A nil result with a nil error means the note
// was skipped (missing, unreadable, or marked private). Rate limits and
// provider outages come back as envelopes, not errors, so a sync loop can
// react to them.
func (p *Processor) ProcessNote(ctx context.Context, notePath string) (*Result, error) {
	start := time.Now()

	fullPath := p.resolveNotePath(notePath)
	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		if p.cfg.Debug {
			p.logger.Warn("Skipping invalid note file", "note", notePath, "resolved", fullPath)
		}
		return nil, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if p.cfg.Debug {
			p.logger.Warn("Skipping unreadable note file", "note", notePath, "error", err)
		}
		return nil, nil
	}

	metadata, _ := note.ExtractFrontmatter(string(content))
	cleanText := note.ExtractText(string(content))
	noteName := noteStem(notePath)

	if isPrivate(metadata) {
		if p.cfg.Debug {
			p.logger.Debug("Skipping private note", "note", noteName)
		}
		return nil, nil
	}

	referenceTime := note.ExtractReferenceTime(metadata)

	groupID := p.cfg.GroupID
	if groupID == "" {
		groupID = namespace.Resolve(notePath, metadata, p.cfg, p.logger)
	}

	mapping := p.matchMapping(notePath)

	instructions := p.cfg.GlobalExtractionInstructions
	if mapping != nil && mapping.CustomExtractionInstructions != "" {
		instructions = mapping.CustomExtractionInstructions
	}

	sagaName := ""
	sagaPreviousUUID := ""
	if mapping != nil {
		grouping := mapping.SagaGrouping
		if grouping == "" {
			grouping = "byNoteType"
		}
		noteType := ""
		if raw, ok := metadata["type"]; ok && raw != nil {
			noteType = fmt.Sprint(raw)
		}
		sagaName = namespace.ResolveSagaName(grouping, mapping.SagaPropertyKey, groupID, noteType, metadata)
	}
	if sagaName != "" {
		records := LoadSyncRecords(p.cfg.VaultPath)
		sagaPreviousUUID = LookupSagaPreviousUUID(sagaName, records)
		if p.cfg.Debug {
			p.logger.Debug("Saga chain", "saga", sagaName, "previous_uuid", sagaPreviousUUID)
		}
	}

	input := &graph.EpisodeInput{
		Name:                         noteName,
		Body:                         mergeFrontmatterBody(metadata, cleanText),
		Source:                       "text",
		SourceDescription:            sourceDescription(metadata, p.cfg),
		ReferenceTime:                referenceTime,
		SagaName:                     sagaName,
		SagaPreviousUUID:             sagaPreviousUUID,
		CustomExtractionInstructions: instructions,
	}
	if strings.ToLower(p.cfg.DatabaseType) == "neo4j" {
		input.GroupID = groupID
	}

	if p.cfg.UseCustomOntology && p.extractor != nil {
		entities, edges, xerr := p.extractor.Extract(ctx, input.Body, instructions)
		var infra *InfrastructureError
		switch {
		case xerr == nil:
			input.Entities = entities
			input.Edges = edges
		case errors.Is(xerr, ErrEmptyExtraction):
			// Nothing to attach; the episode still records the text.
		case errors.As(xerr, &infra), IsRateLimit(xerr):
			return p.envelopeForError(notePath, noteName, start, xerr)
		default:
			// The note still gets stored as a generic episode.
			p.logger.Warn("Custom entity extraction failed, storing generic episode",
				"note", noteName, "error", xerr)
		}
	}

	if p.embed != nil {
		if vec, eerr := p.embed.EmbedSingle(ctx, input.Body); eerr != nil {
			p.logger.Warn("Failed to embed episode body", "note", noteName, "error", eerr)
		} else {
			input.Embedding = vec
		}
	}

	episodeResult, err := p.client.AddEpisode(ctx, input)
	end := time.Now()
	if err != nil {
		return p.envelopeForError(notePath, noteName, start, err)
	}

	if episodeResult == nil {
		if p.cfg.Debug {
			p.logger.Warn("Episode creation returned no result", "note", noteName)
		}
		return &Result{
			NotePath:                  notePath,
			NoteName:                  noteName,
			Status:                    "failed",
			Namespace:                 groupID,
			ReferenceTime:             referenceTime.Format(time.RFC3339),
			ProcessingDurationSeconds: end.Sub(start).Seconds(),
			StartTime:                 start.Format(time.RFC3339Nano),
			EndTime:                   end.Format(time.RFC3339Nano),
			Error:                     "Episode creation returned no result",
		}, nil
	}

	if p.cfg.Debug {
		p.logger.Info("Processed note",
			"note", noteName,
			"namespace", groupID,
			"entities", episodeResult.EntitiesCount,
			"relationships", episodeResult.RelationshipsCount)
	}

	return &Result{
		NotePath:                  notePath,
		NoteName:                  noteName,
		Status:                    "success",
		Namespace:                 groupID,
		EpisodeUUID:               episodeResult.EpisodeUUID,
		SagaName:                  sagaName,
		ReferenceTime:             referenceTime.Format(time.RFC3339),
		ProcessingDurationSeconds: end.Sub(start).Seconds(),
		StartTime:                 start.Format(time.RFC3339Nano),
		EndTime:                   end.Format(time.RFC3339Nano),
		Metrics: &Metrics{
			EntitiesCount:      episodeResult.EntitiesCount,
			RelationshipsCount: episodeResult.RelationshipsCount,
			ContentLength:      len(cleanText),
			MetadataFields:     len(metadata),
		},
	}, nil
}

// envelopeForError maps provider failures to envelopes and re-raises
// everything else.
func (p *Processor) envelopeForError(notePath, noteName string, start time.Time, err error) (*Result, error) {
	end := time.Now()
	base := Result{
		NotePath:                  notePath,
		NoteName:                  noteName,
		ProcessingDurationSeconds: end.Sub(start).Seconds(),
		StartTime:                 start.Format(time.RFC3339Nano),
		EndTime:                   end.Format(time.RFC3339Nano),
	}

	var infra *InfrastructureError
	if errors.As(err, &infra) {
		if p.cfg.Debug {
			p.logger.Error("Infrastructure error", "note", notePath, "error", err)
		}
		base.Status = "infrastructure_error"
		base.Error = "Service provider infrastructure issue - please try again later"
		base.ProviderMessage = infra.Error()
		base.CancelSync = true
		return &base, nil
	}

	if IsRateLimit(err) {
		if p.cfg.Debug {
			p.logger.Error("API rate limit detected", "note", notePath, "error", err)
		}
		info := ParseRateLimit(err)
		base.Status = "rate_limited"
		base.Error = "API rate limit exceeded - sync will pause until reset"
		base.RetryAfter = info.RetryAfter
		base.ResetTime = info.ResetTime
		base.ProviderMessage = info.ProviderMessage
		return &base, nil
	}

	if p.cfg.Debug {
		p.logger.Error("Failed to process note", "note", notePath, "error", err)
	}
	return nil, err
}

// resolveNotePath prepends the vault path unless the note path is absolute or
// already starts with the vault directory name.
func (p *Processor) resolveNotePath(notePath string) string {
	if p.cfg.VaultPath == "" || filepath.IsAbs(notePath) {
		return notePath
	}
	vaultDir := filepath.Base(p.cfg.VaultPath)
	normalized := strings.ReplaceAll(notePath, "\\", "/")
	if first, _, _ := strings.Cut(strings.TrimPrefix(normalized, "/"), "/"); first == vaultDir {
		return notePath
	}
	return filepath.Join(p.cfg.VaultPath, notePath)
}

// matchMapping returns the first configured folder mapping whose folder path
// prefixes the vault-relative note path, comparing case-insensitively.
func (p *Processor) matchMapping(notePath string) *config.FolderMapping {
	if len(p.cfg.FolderMappings) == 0 {
		return nil
	}

	rel := strings.ReplaceAll(notePath, "\\", "/")
	vault := strings.TrimRight(strings.ReplaceAll(p.cfg.VaultPath, "\\", "/"), "/")
	if vault != "" && strings.HasPrefix(strings.ToLower(rel), strings.ToLower(vault)+"/") {
		rel = rel[len(vault)+1:]
	}

	lowerRel := strings.ToLower(rel)
	for i := range p.cfg.FolderMappings {
		m := &p.cfg.FolderMappings[i]
		if m.FolderPath == "" {
			continue
		}
		prefix := strings.ToLower(strings.TrimRight(m.FolderPath, "/")) + "/"
		if strings.HasPrefix(lowerRel, prefix) {
			return m
		}
	}
	return nil
}

func isPrivate(metadata map[string]any) bool {
	raw, ok := metadata["private"]
	if !ok || raw == nil {
		return false
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func noteStem(notePath string) string {
	base := filepath.Base(strings.ReplaceAll(notePath, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
