// Package graph persists episodes, entities, and edges to a temporal
// knowledge graph backend.
package graph

import (
	"context"
	"time"
)

// Episode is a unit of ingested content.
type Episode struct {
	UUID              string         `json:"uuid"`
	Name              string         `json:"name"`
	Body              string         `json:"episode_body"`
	Source            string         `json:"source"`
	SourceDescription string         `json:"source_description"`
	GroupID           string         `json:"group_id,omitempty"`
	SagaName          string         `json:"saga,omitempty"`
	ReferenceTime     time.Time      `json:"reference_time"`
	CreatedAt         time.Time      `json:"created_at"`
	Entities          []Entity       `json:"entities,omitempty"`
	Edges             []EntityEdge   `json:"edges,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Entity is an extracted graph node.
type Entity struct {
	UUID       string         `json:"uuid"`
	Name       string         `json:"name"`
	Label      string         `json:"label"`
	Summary    string         `json:"summary,omitempty"`
	GroupID    string         `json:"group_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EntityEdge is a fact connecting two entities.
type EntityEdge struct {
	UUID       string         `json:"uuid"`
	SourceUUID string         `json:"source_node_uuid"`
	TargetUUID string         `json:"target_node_uuid"`
	Type       string         `json:"name"`
	Fact       string         `json:"fact"`
	GroupID    string         `json:"group_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EpisodeInput carries everything needed to write one episode.
type EpisodeInput struct {
	// UUID is generated when empty.
	UUID              string
	Name              string
	Body              string
	Source            string
	SourceDescription string
	ReferenceTime     time.Time

	// GroupID is attached only for bolt-family backends.
	GroupID string

	// Saga chaining.
	SagaName         string
	SagaPreviousUUID string

	CustomExtractionInstructions string

	// Pre-extracted entities and edges for custom-ontology episodes. Empty
	// for generic text episodes.
	Entities []Entity
	Edges    []EntityEdge

	// Optional episode embedding.
	Embedding []float32
}

// EpisodeResult summarizes a persisted episode.
type EpisodeResult struct {
	EpisodeUUID        string `json:"episode_uuid"`
	EntitiesCount      int    `json:"entities_count"`
	RelationshipsCount int    `json:"relationships_count"`
}

// Client is the graph backend surface the bridge and the MCP tools use.
type Client interface {
	// AddEpisode persists an episode and any extracted entities and edges.
	AddEpisode(ctx context.Context, input *EpisodeInput) (*EpisodeResult, error)

	// SearchNodes finds entity summaries matching the query.
	SearchNodes(ctx context.Context, query string, groupIDs []string, limit int, entityLabels []string) ([]Entity, error)

	// SearchFacts finds entity edges matching the query.
	SearchFacts(ctx context.Context, query string, groupIDs []string, limit int) ([]EntityEdge, error)

	// GetEntityEdge fetches an edge by UUID.
	GetEntityEdge(ctx context.Context, uuid string) (*EntityEdge, error)

	// DeleteEntityEdge removes an edge by UUID.
	DeleteEntityEdge(ctx context.Context, uuid string) error

	// DeleteEpisode removes an episode by UUID.
	DeleteEpisode(ctx context.Context, uuid string) error

	// GetEpisodes returns the most recent episodes for a group.
	GetEpisodes(ctx context.Context, groupID string, lastN int) ([]Episode, error)

	// ClearGraph removes all data for a group.
	ClearGraph(ctx context.Context, groupID string) error

	// GroupIDs lists the distinct group ids present in the graph.
	GroupIDs(ctx context.Context) ([]string, error)

	// CreateIndices sets up indexes and constraints. Safe to call twice.
	CreateIndices(ctx context.Context) error

	Close(ctx context.Context) error
}
