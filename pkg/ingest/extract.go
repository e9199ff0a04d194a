package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/soundprediction/megamem/pkg/graph"
	"github.com/soundprediction/megamem/pkg/schema"
)

// Extractor pulls typed entities and relationships out of note text.
type Extractor interface {
	Extract(ctx context.Context, text, instructions string) ([]graph.Entity, []graph.EntityEdge, error)
}

// OpenAIExtractor implements Extractor with an OpenAI-compatible chat API,
// constrained to the vault's custom ontology.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
	schema *schema.Loader
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewOpenAIExtractor creates an extractor for the given model and ontology.
func NewOpenAIExtractor(apiKey, baseURL, model string, loader *schema.Loader, logger *slog.Logger) *OpenAIExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = openai.GPT4o
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	st := gobreaker.Settings{
		Name:    "llm-extraction",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn("Circuit breaker tripped", "name", name, "from", from.String(), "to", to.String())
			}
		},
	}

	return &OpenAIExtractor{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		schema: loader,
		cb:     gobreaker.NewCircuitBreaker(st),
		logger: logger,
	}
}

type extractionPayload struct {
	Entities []struct {
		Name       string         `json:"name"`
		Type       string         `json:"type"`
		Summary    string         `json:"summary"`
		Attributes map[string]any `json:"attributes"`
	} `json:"entities"`
	Relationships []struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Type   string `json:"type"`
		Fact   string `json:"fact"`
	} `json:"relationships"`
}

// Extract asks the model for entities and relationships conforming to the
// ontology. Rate limits and provider outages surface as typed errors so the
// pipeline can build the right envelope.
func (e *OpenAIExtractor) Extract(ctx context.Context, text, instructions string) ([]graph.Entity, []graph.EntityEdge, error) {
	prompt := e.buildPrompt(text, instructions)

	raw, err := e.cb.Execute(func() (interface{}, error) {
		resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: e.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: 0,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, ErrEmptyExtraction
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		if IsRateLimit(err) {
			return nil, nil, NewRateLimitError(err.Error())
		}
		return nil, nil, fmt.Errorf("extraction request failed: %w", err)
	}

	content := raw.(string)
	if looksLikeHTML(content) {
		return nil, nil, NewInfrastructureError(parseHTMLError(content))
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(content)
		if rerr != nil {
			return nil, nil, fmt.Errorf("failed to parse extraction output: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return nil, nil, fmt.Errorf("failed to parse extraction output: %w", err)
		}
	}

	return e.convert(&payload)
}

func (e *OpenAIExtractor) convert(payload *extractionPayload) ([]graph.Entity, []graph.EntityEdge, error) {
	known := map[string]bool{}
	for _, name := range e.schema.EntityTypeNames() {
		known[name] = true
	}

	entities := make([]graph.Entity, 0, len(payload.Entities))
	byName := map[string]bool{}
	for _, ent := range payload.Entities {
		if ent.Name == "" {
			continue
		}
		label := ent.Type
		if !known[label] {
			label = "Entity"
		}
		entities = append(entities, graph.Entity{
			Name:       ent.Name,
			Label:      label,
			Summary:    ent.Summary,
			Attributes: ent.Attributes,
		})
		byName[ent.Name] = true
	}

	edges := make([]graph.EntityEdge, 0, len(payload.Relationships))
	for _, rel := range payload.Relationships {
		// Edges may only connect entities the same response produced.
		if !byName[rel.Source] || !byName[rel.Target] {
			continue
		}
		edges = append(edges, graph.EntityEdge{
			SourceUUID: rel.Source,
			TargetUUID: rel.Target,
			Type:       rel.Type,
			Fact:       rel.Fact,
		})
	}

	if len(entities) == 0 && len(edges) == 0 {
		return nil, nil, ErrEmptyExtraction
	}
	return entities, edges, nil
}

const extractionSystemPrompt = `You extract a knowledge graph from a note. ` +
	`Respond with a JSON object of the form ` +
	`{"entities": [{"name", "type", "summary", "attributes"}], ` +
	`"relationships": [{"source", "target", "type", "fact"}]}. ` +
	`Use only the entity and relationship types you are given. ` +
	`Entity names must be the canonical names from the note.`

func (e *OpenAIExtractor) buildPrompt(text, instructions string) string {
	var b strings.Builder

	b.WriteString("Entity types:\n")
	entityTypes := e.schema.EntityTypes()
	for _, name := range e.schema.EntityTypeNames() {
		def := entityTypes[name]
		fmt.Fprintf(&b, "- %s: %s\n", name, def.Description)
		for prop, pd := range def.Properties {
			fmt.Fprintf(&b, "  - %s (%s): %s\n", prop, pd.Type, pd.Description)
		}
	}

	edgeTypes := e.schema.EdgeTypes()
	if len(edgeTypes) > 0 {
		b.WriteString("\nRelationship types:\n")
		for name, def := range edgeTypes {
			fmt.Fprintf(&b, "- %s: %s\n", name, def.Description)
		}
	}

	if instructions != "" {
		b.WriteString("\nAdditional instructions:\n")
		b.WriteString(instructions)
		b.WriteString("\n")
	}

	b.WriteString("\nNote:\n")
	b.WriteString(text)
	return b.String()
}

// parseHTMLError reduces an HTML error page to its title line.
func parseHTMLError(body string) string {
	lower := strings.ToLower(body)
	if start := strings.Index(lower, "<title>"); start >= 0 {
		rest := body[start+len("<title>"):]
		if end := strings.Index(strings.ToLower(rest), "</title>"); end >= 0 {
			return fmt.Sprintf("Provider returned an error page: %s", strings.TrimSpace(rest[:end]))
		}
	}
	return "Provider returned an HTML error page instead of a completion"
}
