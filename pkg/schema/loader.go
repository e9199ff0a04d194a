// Package schema loads the entity and edge ontology the Obsidian plugin
// stores in its data.json and exposes it as type definitions for
// custom-ontology extraction.
package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"github.com/spf13/cast"
)

// PropertyDef describes a single entity or edge property.
type PropertyDef struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// TypeDef describes an entity or edge type with its properties.
type TypeDef struct {
	Description string                 `json:"description"`
	Properties  map[string]PropertyDef `json:"properties"`
}

// EdgeMapping restricts which edge types may connect a source and target
// entity type.
type EdgeMapping struct {
	SourceEntity string   `json:"sourceEntity"`
	TargetEntity string   `json:"targetEntity"`
	AllowedEdges []string `json:"allowedEdges"`
}

// Loader reads the plugin's data.json and builds the ontology.
type Loader struct {
	dataPath string
	logger   *slog.Logger

	mu          sync.Mutex
	loaded      bool
	entityTypes map[string]TypeDef
	edgeTypes   map[string]TypeDef
	edgeTypeMap []EdgeMapping
}

// NewLoader creates a loader for the given vault. The data.json location
// can be overridden with OBSIDIAN_PLUGIN_DATA_PATH; otherwise the current
// plugin id is probed first with a fallback to the legacy id.
func NewLoader(vaultPath string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	dataPath := os.Getenv("OBSIDIAN_PLUGIN_DATA_PATH")
	if dataPath == "" {
		primary := filepath.Join(vaultPath, ".obsidian", "plugins", "megamem-mcp", "data.json")
		fallback := filepath.Join(vaultPath, ".obsidian", "plugins", "obsidian-graphiti-mcp", "data.json")
		if _, err := os.Stat(primary); err == nil {
			dataPath = primary
		} else {
			dataPath = fallback
		}
	}

	return &Loader{
		dataPath: dataPath,
		logger:   logger,
	}
}

// Load parses data.json and builds entity and edge type definitions.
func (l *Loader) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked()
}

func (l *Loader) loadLocked() error {
	raw, err := os.ReadFile(l.dataPath)
	if err != nil {
		return fmt.Errorf("data.json not found: %s", l.dataPath)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		// Hand-edited plugin settings show up often enough that a repair
		// pass is worth trying before giving up.
		repaired, repairErr := jsonrepair.JSONRepair(string(raw))
		if repairErr != nil {
			return fmt.Errorf("failed to parse %s: %w", l.dataPath, err)
		}
		if err := json.Unmarshal([]byte(repaired), &data); err != nil {
			return fmt.Errorf("failed to parse %s: %w", l.dataPath, err)
		}
		l.logger.Warn("Repaired malformed data.json", "path", l.dataPath)
	}

	entityDescriptions, _ := data["entityDescriptions"].(map[string]any)
	propertyDescriptions, _ := data["propertyDescriptions"].(map[string]any)
	propertySelections, _ := data["propertySelections"].(map[string]any)
	edgeTypesData, _ := data["edgeTypes"].(map[string]any)
	edgeTypeMapData, _ := data["edgeTypeMap"].([]any)

	if len(entityDescriptions) == 0 && len(edgeTypesData) == 0 {
		return fmt.Errorf("no entity or edge type data found in %s", l.dataPath)
	}

	l.entityTypes = buildEntityTypes(entityDescriptions, propertyDescriptions, propertySelections, l.logger)
	l.edgeTypes = buildEdgeTypes(edgeTypesData)
	l.edgeTypeMap = buildEdgeTypeMap(edgeTypeMapData)
	l.loaded = true

	l.logger.Info("Loaded ontology",
		"entity_types", len(l.entityTypes),
		"edge_types", len(l.edgeTypes))
	return nil
}

// EntityTypes returns the entity type definitions, loading on first use.
func (l *Loader) EntityTypes() map[string]TypeDef {
	l.ensureLoaded()
	return l.entityTypes
}

// EdgeTypes returns the edge type definitions, loading on first use.
func (l *Loader) EdgeTypes() map[string]TypeDef {
	l.ensureLoaded()
	return l.edgeTypes
}

// EdgeTypeMap returns the (source, target) edge restrictions.
func (l *Loader) EdgeTypeMap() []EdgeMapping {
	l.ensureLoaded()
	return l.edgeTypeMap
}

// EntityTypeNames returns the sorted entity type names, or the built-in
// defaults when nothing could be loaded.
func (l *Loader) EntityTypeNames() []string {
	l.ensureLoaded()
	if len(l.entityTypes) == 0 {
		return builtinEntityNames()
	}
	names := make([]string, 0, len(l.entityTypes))
	for name := range l.entityTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Loader) ensureLoaded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return
	}
	if err := l.loadLocked(); err != nil {
		l.logger.Error("Failed to load ontology", "error", err)
	}
}

func buildEntityTypes(entityDescriptions, propertyDescriptions, propertySelections map[string]any, logger *slog.Logger) map[string]TypeDef {
	types := map[string]TypeDef{
		"BaseEntity": {
			Description: "Base class for all entities with universal properties",
			Properties:  map[string]PropertyDef{"tags": baseTagsProperty},
		},
	}

	for name, info := range entityDescriptions {
		selections, _ := propertySelections[name].(map[string]any)
		var enabled []string
		for prop, on := range selections {
			if cast.ToBool(on) {
				enabled = append(enabled, prop)
			}
		}
		sort.Strings(enabled)

		var props map[string]PropertyDef
		if len(enabled) == 0 {
			logger.Info("No enabled properties for entity, using standard fields", "entity", name)
			props = builtinEntityFields(name)
		} else {
			props = fieldsFromDescriptions(name, enabled, propertyDescriptions)
		}
		// Universal tags field comes from the base type.
		props["tags"] = baseTagsProperty

		description := ""
		if infoMap, ok := info.(map[string]any); ok {
			description = cast.ToString(infoMap["description"])
		}
		if description == "" {
			description = builtinEntityDescription(name)
		}

		types[name] = TypeDef{Description: description, Properties: props}
	}

	return types
}

func fieldsFromDescriptions(entity string, enabled []string, propertyDescriptions map[string]any) map[string]PropertyDef {
	entityProps, _ := propertyDescriptions[entity].(map[string]any)
	props := make(map[string]PropertyDef, len(enabled))

	for _, name := range enabled {
		def := PropertyDef{
			Type:        "str",
			Description: fmt.Sprintf("Property %s for %s entities", name, entity),
		}
		if info, ok := entityProps[name].(map[string]any); ok {
			if t := cast.ToString(info["fieldType"]); t != "" {
				def.Type = t
			}
			if d := cast.ToString(info["description"]); d != "" {
				def.Description = d
			}
			def.Required = cast.ToBool(info["required"])
		}
		props[name] = def
	}
	return props
}

func buildEdgeTypes(edgeTypesData map[string]any) map[string]TypeDef {
	types := make(map[string]TypeDef, len(edgeTypesData))

	for name, info := range edgeTypesData {
		def := TypeDef{
			Description: fmt.Sprintf("%s edge type", name),
			Properties:  map[string]PropertyDef{},
		}
		infoMap, ok := info.(map[string]any)
		if !ok {
			types[name] = def
			continue
		}
		if d := cast.ToString(infoMap["description"]); d != "" {
			def.Description = d
		}
		// Source, target, and created are managed by the graph layer and
		// never appear as custom edge properties.
		if props, ok := infoMap["properties"].(map[string]any); ok {
			for propName, propInfo := range props {
				p := PropertyDef{
					Type:        "str",
					Description: fmt.Sprintf("Property %s for %s", propName, name),
				}
				if pm, ok := propInfo.(map[string]any); ok {
					if t := cast.ToString(pm["fieldType"]); t != "" {
						p.Type = t
					}
					if d := cast.ToString(pm["description"]); d != "" {
						p.Description = d
					}
					p.Required = cast.ToBool(pm["required"])
				}
				def.Properties[propName] = p
			}
		}
		types[name] = def
	}

	return types
}

func buildEdgeTypeMap(data []any) []EdgeMapping {
	var mappings []EdgeMapping
	for _, entry := range data {
		em, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		mapping := EdgeMapping{
			SourceEntity: cast.ToString(em["sourceEntity"]),
			TargetEntity: cast.ToString(em["targetEntity"]),
		}
		if edges, ok := em["allowedEdges"].([]any); ok {
			for _, e := range edges {
				mapping.AllowedEdges = append(mapping.AllowedEdges, cast.ToString(e))
			}
		}
		mappings = append(mappings, mapping)
	}
	return mappings
}

// AllowedEdges returns the permitted edge types between two entity types.
func (l *Loader) AllowedEdges(source, target string) []string {
	for _, m := range l.EdgeTypeMap() {
		if m.SourceEntity == source && m.TargetEntity == target {
			return m.AllowedEdges
		}
	}
	return nil
}
