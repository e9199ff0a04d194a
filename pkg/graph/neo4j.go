package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Neo4jClient implements Client for Neo4j and other bolt-speaking backends.
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jClient creates a client for the given bolt URI.
func NewNeo4jClient(uri, username, password, database string) (*Neo4jClient, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jClient{
		driver:   driver,
		database: database,
	}, nil
}

func (c *Neo4jClient) session(ctx context.Context) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
}

// AddEpisode persists an episode with its entities and edges in a single
// write transaction.
func (c *Neo4jClient) AddEpisode(ctx context.Context, input *EpisodeInput) (*EpisodeResult, error) {
	if input == nil {
		return nil, fmt.Errorf("cannot add nil episode")
	}

	episodeUUID := input.UUID
	if episodeUUID == "" {
		episodeUUID = uuid.New().String()
	}
	now := time.Now().UTC()

	session := c.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		episodeProps := map[string]any{
			"uuid":               episodeUUID,
			"name":               input.Name,
			"content":            input.Body,
			"source":             input.Source,
			"source_description": input.SourceDescription,
			"valid_at":           input.ReferenceTime.UTC(),
			"created_at":         now,
		}
		if input.GroupID != "" {
			episodeProps["group_id"] = input.GroupID
		}
		if input.SagaName != "" {
			episodeProps["saga"] = input.SagaName
		}
		if len(input.Embedding) > 0 {
			episodeProps["embedding"] = input.Embedding
		}

		if _, err := tx.Run(ctx, `
			CREATE (e:Episodic)
			SET e = $props
		`, map[string]any{"props": episodeProps}); err != nil {
			return nil, err
		}

		// Chain the episode to its saga predecessor.
		if input.SagaPreviousUUID != "" {
			if _, err := tx.Run(ctx, `
				MATCH (prev:Episodic {uuid: $prevUUID})
				MATCH (e:Episodic {uuid: $uuid})
				MERGE (prev)-[:NEXT_IN_SAGA]->(e)
			`, map[string]any{
				"prevUUID": input.SagaPreviousUUID,
				"uuid":     episodeUUID,
			}); err != nil {
				return nil, err
			}
		}

		for i := range input.Entities {
			entity := &input.Entities[i]
			if entity.UUID == "" {
				entity.UUID = uuid.New().String()
			}
			props := map[string]any{
				"uuid":       entity.UUID,
				"name":       entity.Name,
				"summary":    entity.Summary,
				"created_at": now,
			}
			if input.GroupID != "" {
				props["group_id"] = input.GroupID
			}
			for k, v := range entity.Attributes {
				props[k] = v
			}
			label := entity.Label
			if label == "" {
				label = "Entity"
			}
			if _, err := tx.Run(ctx, fmt.Sprintf(`
				MERGE (n:Entity {name: $name, group_id: $group_id})
				ON CREATE SET n = $props, n:%s
				ON MATCH SET n.summary = $props.summary
				WITH n
				MATCH (e:Episodic {uuid: $episodeUUID})
				MERGE (e)-[:MENTIONS]->(n)
			`, sanitizeLabel(label)), map[string]any{
				"name":        entity.Name,
				"group_id":    input.GroupID,
				"props":       props,
				"episodeUUID": episodeUUID,
			}); err != nil {
				return nil, err
			}
		}

		for i := range input.Edges {
			edge := &input.Edges[i]
			if edge.UUID == "" {
				edge.UUID = uuid.New().String()
			}
			if _, err := tx.Run(ctx, `
				MATCH (s:Entity {name: $source, group_id: $group_id})
				MATCH (t:Entity {name: $target, group_id: $group_id})
				MERGE (s)-[r:RELATES_TO {uuid: $uuid}]->(t)
				SET r.name = $type,
					r.fact = $fact,
					r.group_id = $group_id,
					r.episodes = coalesce(r.episodes, []) + $episodeUUID,
					r.created_at = $createdAt
			`, map[string]any{
				"source":      edge.SourceUUID,
				"target":      edge.TargetUUID,
				"group_id":    input.GroupID,
				"uuid":        edge.UUID,
				"type":        edge.Type,
				"fact":        edge.Fact,
				"episodeUUID": episodeUUID,
				"createdAt":   now,
			}); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add episode: %w", err)
	}

	return &EpisodeResult{
		EpisodeUUID:        episodeUUID,
		EntitiesCount:      len(input.Entities),
		RelationshipsCount: len(input.Edges),
	}, nil
}

// SearchNodes finds entities whose name or summary matches the query.
func (c *Neo4jClient) SearchNodes(ctx context.Context, query string, groupIDs []string, limit int, entityLabels []string) ([]Entity, error) {
	if limit <= 0 {
		limit = 10
	}

	session := c.session(ctx)
	defer session.Close(ctx)

	labelFilter := ""
	if len(entityLabels) > 0 {
		var clauses []string
		for _, label := range entityLabels {
			clauses = append(clauses, fmt.Sprintf("n:%s", sanitizeLabel(label)))
		}
		labelFilter = " AND (" + strings.Join(clauses, " OR ") + ")"
	}

	groupFilter := ""
	if len(groupIDs) > 0 {
		groupFilter = " AND n.group_id IN $groupIDs"
	}

	cypher := fmt.Sprintf(`
		MATCH (n:Entity)
		WHERE (toLower(n.name) CONTAINS toLower($query)
			OR toLower(coalesce(n.summary, '')) CONTAINS toLower($query))%s%s
		RETURN n
		LIMIT $limit
	`, groupFilter, labelFilter)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"query":    query,
			"groupIDs": groupIDs,
			"limit":    limit,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("node search failed: %w", err)
	}

	records := result.([]*db.Record)
	nodes := make([]Entity, 0, len(records))
	for _, record := range records {
		value, ok := record.Get("n")
		if !ok {
			continue
		}
		node, ok := value.(dbtype.Node)
		if !ok {
			continue
		}
		nodes = append(nodes, entityFromDBNode(node))
	}
	return nodes, nil
}

// SearchFacts finds entity edges whose fact text matches the query.
func (c *Neo4jClient) SearchFacts(ctx context.Context, query string, groupIDs []string, limit int) ([]EntityEdge, error) {
	if limit <= 0 {
		limit = 10
	}

	session := c.session(ctx)
	defer session.Close(ctx)

	groupFilter := ""
	if len(groupIDs) > 0 {
		groupFilter = " AND r.group_id IN $groupIDs"
	}

	cypher := fmt.Sprintf(`
		MATCH (s:Entity)-[r:RELATES_TO]->(t:Entity)
		WHERE toLower(coalesce(r.fact, '')) CONTAINS toLower($query)%s
		RETURN s.uuid AS source, t.uuid AS target, r
		LIMIT $limit
	`, groupFilter)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"query":    query,
			"groupIDs": groupIDs,
			"limit":    limit,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("fact search failed: %w", err)
	}

	records := result.([]*db.Record)
	edges := make([]EntityEdge, 0, len(records))
	for _, record := range records {
		value, ok := record.Get("r")
		if !ok {
			continue
		}
		rel, ok := value.(dbtype.Relationship)
		if !ok {
			continue
		}
		edge := edgeFromDBRelationship(rel)
		if source, ok := record.Get("source"); ok {
			edge.SourceUUID, _ = source.(string)
		}
		if target, ok := record.Get("target"); ok {
			edge.TargetUUID, _ = target.(string)
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// GetEntityEdge fetches an edge by its UUID.
func (c *Neo4jClient) GetEntityEdge(ctx context.Context, edgeUUID string) (*EntityEdge, error) {
	session := c.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Entity)-[r:RELATES_TO {uuid: $uuid}]->(t:Entity)
			RETURN s.uuid AS source, t.uuid AS target, r
		`, map[string]any{"uuid": edgeUUID})
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("entity edge not found: %s", edgeUUID)
	}

	record := result.(*db.Record)
	value, _ := record.Get("r")
	rel, ok := value.(dbtype.Relationship)
	if !ok {
		return nil, fmt.Errorf("unexpected type for edge: got %T", value)
	}
	edge := edgeFromDBRelationship(rel)
	if source, ok := record.Get("source"); ok {
		edge.SourceUUID, _ = source.(string)
	}
	if target, ok := record.Get("target"); ok {
		edge.TargetUUID, _ = target.(string)
	}
	return &edge, nil
}

// DeleteEntityEdge removes an edge by UUID.
func (c *Neo4jClient) DeleteEntityEdge(ctx context.Context, edgeUUID string) error {
	session := c.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH ()-[r:RELATES_TO {uuid: $uuid}]->()
			DELETE r
		`, map[string]any{"uuid": edgeUUID})
	})
	if err != nil {
		return fmt.Errorf("failed to delete entity edge: %w", err)
	}
	return nil
}

// DeleteEpisode removes an episode node by UUID.
func (c *Neo4jClient) DeleteEpisode(ctx context.Context, episodeUUID string) error {
	session := c.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (e:Episodic {uuid: $uuid})
			DETACH DELETE e
		`, map[string]any{"uuid": episodeUUID})
	})
	if err != nil {
		return fmt.Errorf("failed to delete episode: %w", err)
	}
	return nil
}

// GetEpisodes returns the most recent episodes for a group ordered by
// reference time.
func (c *Neo4jClient) GetEpisodes(ctx context.Context, groupID string, lastN int) ([]Episode, error) {
	if lastN <= 0 {
		lastN = 10
	}

	session := c.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Episodic {group_id: $groupID})
			RETURN e
			ORDER BY e.valid_at DESC
			LIMIT $limit
		`, map[string]any{"groupID": groupID, "limit": lastN})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get episodes: %w", err)
	}

	records := result.([]*db.Record)
	episodes := make([]Episode, 0, len(records))
	for _, record := range records {
		value, ok := record.Get("e")
		if !ok {
			continue
		}
		node, ok := value.(dbtype.Node)
		if !ok {
			continue
		}
		episodes = append(episodes, episodeFromDBNode(node))
	}
	return episodes, nil
}

// ClearGraph removes all nodes and relationships for a group.
func (c *Neo4jClient) ClearGraph(ctx context.Context, groupID string) error {
	session := c.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (n {group_id: $groupID})
			DETACH DELETE n
		`, map[string]any{"groupID": groupID})
	})
	if err != nil {
		return fmt.Errorf("failed to clear graph: %w", err)
	}
	return nil
}

// GroupIDs lists distinct group ids across episodic and entity nodes.
func (c *Neo4jClient) GroupIDs(ctx context.Context) ([]string, error) {
	session := c.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n)
			WHERE n.group_id IS NOT NULL
			RETURN DISTINCT n.group_id AS group_id
			ORDER BY group_id
		`, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list group ids: %w", err)
	}

	records := result.([]*db.Record)
	groupIDs := make([]string, 0, len(records))
	for _, record := range records {
		value, ok := record.Get("group_id")
		if !ok {
			continue
		}
		if id, ok := value.(string); ok {
			groupIDs = append(groupIDs, id)
		}
	}
	return groupIDs, nil
}

// CreateIndices sets up uniqueness constraints and lookup indexes.
// Existing indexes are tolerated.
func (c *Neo4jClient) CreateIndices(ctx context.Context) error {
	session := c.session(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT episodic_uuid IF NOT EXISTS FOR (e:Episodic) REQUIRE e.uuid IS UNIQUE`,
		`CREATE CONSTRAINT entity_uuid IF NOT EXISTS FOR (n:Entity) REQUIRE n.uuid IS UNIQUE`,
		`CREATE INDEX episodic_group IF NOT EXISTS FOR (e:Episodic) ON (e.group_id)`,
		`CREATE INDEX entity_group IF NOT EXISTS FOR (n:Entity) ON (n.group_id)`,
		`CREATE INDEX entity_name IF NOT EXISTS FOR (n:Entity) ON (n.name)`,
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "already exists") {
				continue
			}
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Close shuts down the underlying driver.
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func entityFromDBNode(node dbtype.Node) Entity {
	entity := Entity{
		Attributes: map[string]any{},
	}
	for k, v := range node.Props {
		switch k {
		case "uuid":
			entity.UUID, _ = v.(string)
		case "name":
			entity.Name, _ = v.(string)
		case "summary":
			entity.Summary, _ = v.(string)
		case "group_id":
			entity.GroupID, _ = v.(string)
		case "created_at", "embedding":
			// Skipped: internal bookkeeping and vectors stay out of results.
		default:
			entity.Attributes[k] = v
		}
	}
	for _, label := range node.Labels {
		if label != "Entity" {
			entity.Label = label
			break
		}
	}
	return entity
}

func edgeFromDBRelationship(rel dbtype.Relationship) EntityEdge {
	edge := EntityEdge{
		Attributes: map[string]any{},
	}
	for k, v := range rel.Props {
		switch k {
		case "uuid":
			edge.UUID, _ = v.(string)
		case "name":
			edge.Type, _ = v.(string)
		case "fact":
			edge.Fact, _ = v.(string)
		case "group_id":
			edge.GroupID, _ = v.(string)
		case "created_at":
			if t, ok := v.(time.Time); ok {
				edge.CreatedAt = t
			}
		default:
			edge.Attributes[k] = v
		}
	}
	return edge
}

func episodeFromDBNode(node dbtype.Node) Episode {
	ep := Episode{}
	for k, v := range node.Props {
		switch k {
		case "uuid":
			ep.UUID, _ = v.(string)
		case "name":
			ep.Name, _ = v.(string)
		case "content":
			ep.Body, _ = v.(string)
		case "source":
			ep.Source, _ = v.(string)
		case "source_description":
			ep.SourceDescription, _ = v.(string)
		case "group_id":
			ep.GroupID, _ = v.(string)
		case "saga":
			ep.SagaName, _ = v.(string)
		case "valid_at":
			if t, ok := v.(time.Time); ok {
				ep.ReferenceTime = t
			}
		case "created_at":
			if t, ok := v.(time.Time); ok {
				ep.CreatedAt = t
			}
		}
	}
	return ep
}

// sanitizeLabel keeps only identifier characters so labels can be inlined
// in Cypher.
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Entity"
	}
	return b.String()
}
