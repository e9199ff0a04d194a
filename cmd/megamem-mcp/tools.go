package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/soundprediction/megamem/pkg/graph"
	"github.com/soundprediction/megamem/pkg/ingest"
	"github.com/soundprediction/megamem/pkg/vault"
)

const rpcModeError = "MegaMem tools are handled by the hub owner process. This is an RPC client - MegaMem tools are automatically available in the main session."

// Tool request/response types

// AddMemoryRequest represents the parameters for adding memory
type AddMemoryRequest struct {
	Name              string `json:"name,omitempty"`
	Content           string `json:"content"`
	Source            string `json:"source,omitempty"`
	SourceDescription string `json:"source_description,omitempty"`
	GroupID           string `json:"group_id,omitempty"`
	UUID              string `json:"uuid,omitempty"`
}

// ConversationMessage is one turn of a conversation episode.
type ConversationMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// AddConversationRequest represents the parameters for conversation memory
type AddConversationRequest struct {
	Name              string                `json:"name,omitempty"`
	Conversation      []ConversationMessage `json:"conversation"`
	GroupID           string                `json:"group_id,omitempty"`
	SourceDescription string                `json:"source_description,omitempty"`
}

// SearchNodesRequest represents node search parameters
type SearchNodesRequest struct {
	Query          string   `json:"query"`
	MaxNodes       int      `json:"max_nodes,omitempty"`
	GroupIDs       []string `json:"group_ids,omitempty"`
	CenterNodeUUID string   `json:"center_node_uuid,omitempty"`
	EntityTypes    []string `json:"entity_types,omitempty"`
}

// SearchFactsRequest represents fact search parameters
type SearchFactsRequest struct {
	Query          string   `json:"query"`
	MaxFacts       int      `json:"max_facts,omitempty"`
	GroupIDs       []string `json:"group_ids,omitempty"`
	CenterNodeUUID string   `json:"center_node_uuid,omitempty"`
}

// GetEpisodesRequest represents parameters for retrieving episodes
type GetEpisodesRequest struct {
	GroupID string `json:"group_id,omitempty"`
	LastN   int    `json:"last_n,omitempty"`
}

// ClearGraphRequest represents parameters for clearing the graph
type ClearGraphRequest struct {
	GroupID string `json:"group_id,omitempty"`
}

// EntityEdgeRequest looks up edges by entity name or a specific edge UUID.
type EntityEdgeRequest struct {
	EntityName string `json:"entity_name,omitempty"`
	EdgeType   string `json:"edge_type,omitempty"`
	UUID       string `json:"uuid,omitempty"`
}

// DeleteEdgeRequest represents a simple UUID parameter
type DeleteEdgeRequest struct {
	UUID string `json:"uuid"`
}

// DeleteEpisodeRequest represents an episode id parameter
type DeleteEpisodeRequest struct {
	EpisodeID string `json:"episode_id"`
}

// EmptyRequest is for tools that take no arguments.
type EmptyRequest struct{}

// ToolResponse is a generic response wrapper
type ToolResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func toolError(format string, args ...any) *ToolResponse {
	return &ToolResponse{Success: false, Error: fmt.Sprintf(format, args...)}
}

// graphClient gates graph tools on the background initialization and the
// process role.
func (s *MCPServer) graphClient() (graph.Client, *ToolResponse) {
	if s.rpcMode {
		return nil, &ToolResponse{
			Success: false,
			Error:   rpcModeError,
			Message: "No action needed - MegaMem tools work transparently across both processes.",
		}
	}

	select {
	case <-s.ready:
	case <-time.After(readinessTimeout):
		return nil, toolError("MegaMem initialization still in progress - please try again in a few moments")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		if s.initErr != nil {
			return nil, toolError("Graph client not initialized: %v", s.initErr)
		}
		return nil, toolError("Graph client not initialized")
	}
	return s.graph, nil
}

// AddMemoryTool queues an episode for the group's FIFO worker and returns
// immediately.
func (s *MCPServer) AddMemoryTool(ctx *ai.ToolContext, input *AddMemoryRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}
	if input.Content == "" {
		return toolError("content is required"), nil
	}

	groupID := input.GroupID
	if groupID == "" {
		groupID = s.defaultGroupID()
	}

	name := input.Name
	if name == "" {
		name = "Episode_" + time.Now().UTC().Format("20060102_150405")
	}

	source := strings.ToLower(input.Source)
	if source == "" {
		source = "text"
	}
	sourceDescription := input.SourceDescription
	if sourceDescription == "" {
		sourceDescription = "MCP server memory addition"
	}

	episode := &graph.EpisodeInput{
		UUID:              input.UUID,
		Name:              name,
		Body:              input.Content,
		Source:            source,
		SourceDescription: sourceDescription,
		GroupID:           groupID,
		ReferenceTime:     time.Now().UTC(),
	}

	s.mu.RLock()
	extractor := s.extractor
	s.mu.RUnlock()

	position := s.queues.Enqueue(groupID, func(ctx context.Context) {
		if extractor != nil {
			entities, edges, err := extractor.Extract(ctx, episode.Body, s.extractionInstructions())
			switch {
			case err == nil:
				episode.Entities = entities
				episode.Edges = edges
			case errors.Is(err, ingest.ErrEmptyExtraction):
				// Nothing extracted, store the generic episode.
			default:
				s.logger.Warn("Entity extraction failed, storing generic episode", "name", episode.Name, "error", err)
			}
		}
		if _, err := client.AddEpisode(ctx, episode); err != nil {
			s.logger.Error("Failed to add episode", "name", episode.Name, "group_id", groupID, "error", err)
			return
		}
		s.logger.Info("Episode added", "name", episode.Name, "group_id", groupID)
	})

	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Episode queued (position: %d)", position),
	}, nil
}

func (s *MCPServer) extractionInstructions() string {
	if s.cfg != nil {
		return s.cfg.GlobalExtractionInstructions
	}
	return ""
}

// AddConversationMemoryTool stores a formatted conversation as a message
// episode. Unlike AddMemoryTool this runs synchronously so the caller gets
// the episode id back.
func (s *MCPServer) AddConversationMemoryTool(ctx *ai.ToolContext, input *AddConversationRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}
	if len(input.Conversation) == 0 {
		return toolError("conversation parameter required and must be an array"), nil
	}

	lines := make([]string, 0, len(input.Conversation))
	for _, msg := range input.Conversation {
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		timestamp := msg.Timestamp
		if timestamp == "" {
			timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", timestamp, role, msg.Content))
	}

	name := input.Name
	if name == "" {
		name = "Conversation_" + time.Now().UTC().Format("20060102_150405")
	}
	groupID := input.GroupID
	if groupID == "" {
		groupID = s.defaultGroupID()
	}
	sourceDescription := input.SourceDescription
	if sourceDescription == "" {
		sourceDescription = "Conversation memory from MCP"
	}

	result, err := client.AddEpisode(context.Background(), &graph.EpisodeInput{
		Name:              name,
		Body:              strings.Join(lines, "\n"),
		Source:            "message",
		SourceDescription: sourceDescription,
		GroupID:           groupID,
		ReferenceTime:     time.Now().UTC(),
	})
	if err != nil {
		return toolError("Failed to add conversation memory: %v", err), nil
	}

	return &ToolResponse{
		Success: true,
		Message: "Conversation memory added successfully",
		Data: map[string]any{
			"episode_id":    result.EpisodeUUID,
			"message_count": len(input.Conversation),
		},
	}, nil
}

// SearchMemoryNodesTool searches entity summaries.
func (s *MCPServer) SearchMemoryNodesTool(ctx *ai.ToolContext, input *SearchNodesRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}
	if input.Query == "" {
		return toolError("query is required"), nil
	}

	groupIDs := input.GroupIDs
	if len(groupIDs) == 0 {
		groupIDs = []string{s.defaultGroupID()}
	}
	maxNodes := input.MaxNodes
	if maxNodes <= 0 {
		maxNodes = 10
	}
	if input.CenterNodeUUID != "" {
		s.logger.Debug("Proximity search not supported, ignoring center node", "uuid", input.CenterNodeUUID)
	}

	nodes, err := client.SearchNodes(context.Background(), input.Query, groupIDs, maxNodes, input.EntityTypes)
	if err != nil {
		return toolError("Node search failed: %v", err), nil
	}

	return &ToolResponse{
		Success: true,
		Data:    map[string]any{"results": nodes, "count": len(nodes)},
	}, nil
}

// SearchMemoryFactsTool searches entity edges.
func (s *MCPServer) SearchMemoryFactsTool(ctx *ai.ToolContext, input *SearchFactsRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}
	if input.Query == "" {
		return toolError("query is required"), nil
	}

	groupIDs := input.GroupIDs
	if len(groupIDs) == 0 {
		groupIDs = []string{s.defaultGroupID()}
	}
	maxFacts := input.MaxFacts
	if maxFacts <= 0 {
		maxFacts = 10
	}

	facts, err := client.SearchFacts(context.Background(), input.Query, groupIDs, maxFacts)
	if err != nil {
		return toolError("Fact search failed: %v", err), nil
	}

	return &ToolResponse{
		Success: true,
		Data:    map[string]any{"facts": facts, "count": len(facts)},
	}, nil
}

// GetEpisodesTool returns the most recent episodes for a group.
func (s *MCPServer) GetEpisodesTool(ctx *ai.ToolContext, input *GetEpisodesRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}

	groupID := input.GroupID
	if groupID == "" {
		groupID = s.defaultGroupID()
	}
	lastN := input.LastN
	if lastN <= 0 {
		lastN = 10
	}

	episodes, err := client.GetEpisodes(context.Background(), groupID, lastN)
	if err != nil {
		return toolError("Failed to get episodes: %v", err), nil
	}

	return &ToolResponse{
		Success: true,
		Data:    map[string]any{"episodes": episodes, "count": len(episodes)},
	}, nil
}

// ClearGraphTool removes all data for a group.
func (s *MCPServer) ClearGraphTool(ctx *ai.ToolContext, input *ClearGraphRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}

	groupID := input.GroupID
	if groupID == "" {
		groupID = s.defaultGroupID()
	}

	if err := client.ClearGraph(context.Background(), groupID); err != nil {
		return toolError("Failed to clear graph: %v", err), nil
	}
	return &ToolResponse{Success: true, Message: "Graph cleared successfully"}, nil
}

// GetEntityEdgeTool fetches an edge by UUID, or lists the edges touching an
// entity by searching facts for its name.
func (s *MCPServer) GetEntityEdgeTool(ctx *ai.ToolContext, input *EntityEdgeRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}

	if input.UUID != "" {
		edge, err := client.GetEntityEdge(context.Background(), input.UUID)
		if err != nil {
			return toolError("Failed to get entity edge: %v", err), nil
		}
		return &ToolResponse{Success: true, Data: edge}, nil
	}

	if input.EntityName == "" {
		return toolError("entity_name is required"), nil
	}

	edges, err := client.SearchFacts(context.Background(), input.EntityName, nil, 50)
	if err != nil {
		return toolError("Failed to get entity edges: %v", err), nil
	}

	filtered := make([]graph.EntityEdge, 0, len(edges))
	for _, edge := range edges {
		if input.EdgeType != "" && !strings.Contains(strings.ToLower(edge.Fact), strings.ToLower(input.EdgeType)) {
			continue
		}
		filtered = append(filtered, edge)
	}

	resp := &ToolResponse{
		Success: true,
		Data: map[string]any{
			"entity": input.EntityName,
			"edges":  filtered,
			"count":  len(filtered),
		},
	}
	if len(filtered) == 0 {
		resp.Message = fmt.Sprintf("No edges found for entity: %s", input.EntityName)
	}
	return resp, nil
}

// DeleteEntityEdgeTool removes an edge by UUID.
func (s *MCPServer) DeleteEntityEdgeTool(ctx *ai.ToolContext, input *DeleteEdgeRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}
	if input.UUID == "" {
		return toolError("uuid is required"), nil
	}

	if err := client.DeleteEntityEdge(context.Background(), input.UUID); err != nil {
		return toolError("Error deleting entity edge: %v", err), nil
	}
	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Entity edge with UUID %s deleted successfully", input.UUID),
	}, nil
}

// DeleteEpisodeTool removes an episode by id.
func (s *MCPServer) DeleteEpisodeTool(ctx *ai.ToolContext, input *DeleteEpisodeRequest) (*ToolResponse, error) {
	client, errResp := s.graphClient()
	if errResp != nil {
		return errResp, nil
	}
	if input.EpisodeID == "" {
		return toolError("episode_id is required"), nil
	}

	if err := client.DeleteEpisode(context.Background(), input.EpisodeID); err != nil {
		return toolError("Failed to delete episode: %v", err), nil
	}
	return &ToolResponse{
		Success: true,
		Message: "Episode deleted successfully",
		Data:    map[string]any{"episode_id": input.EpisodeID},
	}, nil
}

// ListGroupIDsTool returns the namespaces known from configuration plus any
// present in the graph.
func (s *MCPServer) ListGroupIDsTool(ctx *ai.ToolContext, input *EmptyRequest) (*ToolResponse, error) {
	if s.rpcMode {
		return &ToolResponse{
			Success: false,
			Error:   rpcModeError,
			Message: "No action needed - MegaMem tools work transparently across both processes.",
		}, nil
	}

	seen := map[string]bool{}
	if s.cfg != nil {
		for _, ns := range s.cfg.AvailableNamespaces {
			seen[ns] = true
		}
		for _, mapping := range s.cfg.FolderMappings {
			if mapping.GroupID != "" {
				seen[mapping.GroupID] = true
			}
		}
	}
	seen[s.defaultGroupID()] = true

	// Best effort: include group ids already present in the graph.
	s.mu.RLock()
	client := s.graph
	s.mu.RUnlock()
	if client != nil {
		if fromGraph, err := client.GroupIDs(context.Background()); err == nil {
			for _, id := range fromGraph {
				seen[id] = true
			}
		}
	}

	groupIDs := make([]string, 0, len(seen))
	for id := range seen {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)

	return &ToolResponse{
		Success: true,
		Data: map[string]any{
			"group_ids":       groupIDs,
			"count":           len(groupIDs),
			"current_default": s.defaultGroupID(),
		},
	}, nil
}

// Obsidian tool request types

// SearchNotesRequest searches vault notes by filename and/or content.
type SearchNotesRequest struct {
	Query          string `json:"query"`
	SearchMode     string `json:"search_mode,omitempty"`
	MaxResults     int    `json:"max_results,omitempty"`
	IncludeContext *bool  `json:"include_context,omitempty"`
	Path           string `json:"path,omitempty"`
	VaultID        string `json:"vault_id,omitempty"`
}

// ReadNoteRequest reads one note.
type ReadNoteRequest struct {
	Path           string `json:"path"`
	VaultID        string `json:"vault_id,omitempty"`
	IncludeLineMap bool   `json:"include_line_map,omitempty"`
}

// UpdateNoteRequest updates a note with one of the editing modes. The
// operation field is a legacy alias for editing_mode with shortened values.
type UpdateNoteRequest struct {
	Path        string `json:"path"`
	EditingMode string `json:"editing_mode,omitempty"`
	Operation   string `json:"operation,omitempty"`
	VaultID     string `json:"vault_id,omitempty"`

	Content            *string        `json:"content,omitempty"`
	FrontmatterChanges map[string]any `json:"frontmatter_changes,omitempty"`
	AppendContent      *string        `json:"append_content,omitempty"`

	ReplacementContent *string `json:"replacement_content,omitempty"`
	RangeStartLine     *int    `json:"range_start_line,omitempty"`
	RangeStartChar     *int    `json:"range_start_char,omitempty"`
	RangeEndLine       *int    `json:"range_end_line,omitempty"`
	RangeEndChar       *int    `json:"range_end_char,omitempty"`

	EditorMethod *string `json:"editor_method,omitempty"`
	Line         *int    `json:"line,omitempty"`
	Char         *int    `json:"char,omitempty"`
	FromLine     *int    `json:"from_line,omitempty"`
	FromChar     *int    `json:"from_char,omitempty"`
	ToLine       *int    `json:"to_line,omitempty"`
	ToChar       *int    `json:"to_char,omitempty"`
	Heading      *string `json:"heading,omitempty"`
}

// CreateNoteRequest creates a new note.
type CreateNoteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	VaultID string `json:"vault_id,omitempty"`
}

// ExploreFoldersRequest explores the vault folder structure.
type ExploreFoldersRequest struct {
	Query    string `json:"query,omitempty"`
	Path     string `json:"path,omitempty"`
	Format   string `json:"format,omitempty"`
	MaxDepth int    `json:"max_depth,omitempty"`
	VaultID  string `json:"vault_id,omitempty"`
}

// TemplateNoteRequest creates a note from a templater template.
type TemplateNoteRequest struct {
	RequestType  string `json:"request_type"`
	FileName     string `json:"file_name"`
	Content      string `json:"content,omitempty"`
	TargetFolder string `json:"target_folder,omitempty"`
	VaultID      string `json:"vault_id,omitempty"`
}

// ManageFoldersRequest creates, renames, or deletes a folder.
type ManageFoldersRequest struct {
	Operation     string `json:"operation"`
	FolderPath    string `json:"folderPath"`
	NewFolderPath string `json:"newFolderPath,omitempty"`
	VaultID       string `json:"vault_id,omitempty"`
}

// ManageNotesRequest deletes or renames a note.
type ManageNotesRequest struct {
	Operation string `json:"operation"`
	Path      string `json:"path"`
	NewPath   string `json:"newPath,omitempty"`
	VaultID   string `json:"vault_id,omitempty"`
}

// fileTools guards obsidian tools on the vault service being up.
func (s *MCPServer) fileTools() (*vault.FileTools, map[string]any) {
	if s.files == nil {
		return nil, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("WebSocket server not running. Expected on port %d", s.port),
		}
	}
	return s.files, nil
}

// SearchNotesTool searches notes by filename and/or content.
func (s *MCPServer) SearchNotesTool(ctx *ai.ToolContext, input *SearchNotesRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}

	includeContext := true
	if input.IncludeContext != nil {
		includeContext = *input.IncludeContext
	}
	return files.SearchNotes(context.Background(), input.Query, input.VaultID, input.SearchMode, input.MaxResults, includeContext, input.Path), nil
}

// ReadNoteTool reads a note, optionally with a line map for precise edits.
func (s *MCPServer) ReadNoteTool(ctx *ai.ToolContext, input *ReadNoteRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}
	return files.ReadNote(context.Background(), input.Path, input.VaultID, input.IncludeLineMap), nil
}

// editingModeAliases maps the legacy operation values to editing modes.
var editingModeAliases = map[string]string{
	"frontmatter": "frontmatter_only",
	"append":      "append_only",
	"range":       "range_based",
	"editor":      "editor_based",
	"full":        "full_file",
}

// UpdateNoteTool updates a note with one of the editing modes.
func (s *MCPServer) UpdateNoteTool(ctx *ai.ToolContext, input *UpdateNoteRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}

	mode := input.EditingMode
	if mode == "" && input.Operation != "" {
		mode = input.Operation
		if canonical, ok := editingModeAliases[mode]; ok {
			mode = canonical
		}
	}
	if mode == "" {
		mode = "full_file"
	}

	return files.UpdateNote(context.Background(), vault.UpdateNoteParams{
		Path:        input.Path,
		VaultID:     input.VaultID,
		EditingMode: mode,

		Content:            input.Content,
		FrontmatterChanges: input.FrontmatterChanges,
		AppendContent:      input.AppendContent,

		ReplacementContent: input.ReplacementContent,
		RangeStartLine:     input.RangeStartLine,
		RangeStartChar:     input.RangeStartChar,
		RangeEndLine:       input.RangeEndLine,
		RangeEndChar:       input.RangeEndChar,

		EditorMethod: input.EditorMethod,
		Line:         input.Line,
		Char:         input.Char,
		FromLine:     input.FromLine,
		FromChar:     input.FromChar,
		ToLine:       input.ToLine,
		ToChar:       input.ToChar,
		Heading:      input.Heading,
	}), nil
}

// CreateNoteTool creates a new note.
func (s *MCPServer) CreateNoteTool(ctx *ai.ToolContext, input *CreateNoteRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}
	return files.CreateNote(context.Background(), input.Path, input.Content, input.VaultID), nil
}

// ListVaultsTool lists the connected vaults.
func (s *MCPServer) ListVaultsTool(ctx *ai.ToolContext, input *EmptyRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}
	return files.ListVaults(context.Background()), nil
}

// ExploreFoldersTool explores the vault folder structure.
func (s *MCPServer) ExploreFoldersTool(ctx *ai.ToolContext, input *ExploreFoldersRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}
	return files.ExploreFolders(context.Background(), input.Path, input.Query, input.Format, input.MaxDepth, input.VaultID), nil
}

// CreateNoteWithTemplateTool runs the two-phase templater flow.
func (s *MCPServer) CreateNoteWithTemplateTool(ctx *ai.ToolContext, input *TemplateNoteRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}
	if input.FileName == "" {
		return map[string]any{"success": false, "error": "file_name is required"}, nil
	}
	return files.CreateNoteWithTemplate(context.Background(), input.RequestType, input.FileName, input.Content, input.TargetFolder, input.VaultID), nil
}

// ManageFoldersTool routes folder create/rename/delete by operation.
func (s *MCPServer) ManageFoldersTool(ctx *ai.ToolContext, input *ManageFoldersRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}

	if input.Operation == "" {
		return map[string]any{"success": false, "error": "Missing required parameter 'operation'"}, nil
	}
	if input.FolderPath == "" {
		return map[string]any{"success": false, "error": "Missing required parameter 'folderPath'"}, nil
	}

	switch input.Operation {
	case "create":
		return files.CreateFolder(context.Background(), input.FolderPath, input.VaultID), nil
	case "rename":
		if input.NewFolderPath == "" {
			return map[string]any{"success": false, "error": "Missing required parameter 'newFolderPath' for rename operation"}, nil
		}
		return files.RenameFolder(context.Background(), input.FolderPath, input.NewFolderPath, input.VaultID), nil
	case "delete":
		return files.DeleteFolder(context.Background(), input.FolderPath, input.VaultID), nil
	default:
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Invalid operation '%s'. Must be one of: create, rename, delete", input.Operation),
		}, nil
	}
}

// ManageNotesTool routes note delete/rename by operation.
func (s *MCPServer) ManageNotesTool(ctx *ai.ToolContext, input *ManageNotesRequest) (map[string]any, error) {
	files, errResp := s.fileTools()
	if errResp != nil {
		return errResp, nil
	}

	if input.Operation == "" {
		return map[string]any{"success": false, "error": "Missing required parameter 'operation'"}, nil
	}
	if input.Path == "" {
		return map[string]any{"success": false, "error": "Missing required parameter 'path'"}, nil
	}

	switch input.Operation {
	case "delete":
		return files.DeleteNote(context.Background(), input.Path, input.VaultID), nil
	case "rename":
		if input.NewPath == "" {
			return map[string]any{"success": false, "error": "Missing required parameter 'newPath' for rename operation"}, nil
		}
		return files.RenameNote(context.Background(), input.Path, input.NewPath, input.VaultID), nil
	default:
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Invalid operation '%s'. Must be one of: delete, rename", input.Operation),
		}, nil
	}
}

// ServerStatusTool reports connection health, the megamem://status payload.
func (s *MCPServer) ServerStatusTool(ctx *ai.ToolContext, input *EmptyRequest) (map[string]any, error) {
	s.mu.RLock()
	graphReady := s.graph != nil
	s.mu.RUnlock()

	graphStatus := "disconnected"
	switch {
	case s.rpcMode:
		graphStatus = "rpc-mode"
	case graphReady:
		graphStatus = "ok"
	}
	obsidianStatus := "disconnected"
	if s.files != nil && len(s.service.GetConnectedVaults()) > 0 {
		obsidianStatus = "ok"
	}
	database := "unknown"
	if s.cfg != nil && s.cfg.DatabaseType != "" {
		database = s.cfg.DatabaseType
	}

	role := "server"
	if s.rpcMode {
		role = "rpc_client"
	}

	return map[string]any{
		"uri":      "megamem://status",
		"megamem":  graphStatus,
		"obsidian": obsidianStatus,
		"database": database,
		"role":     role,
	}, nil
}

// RegisterTools registers the full tool surface with Genkit.
func (s *MCPServer) RegisterTools(g *genkit.Genkit) {
	// Graph tools
	genkit.DefineTool(g, "add_memory",
		"Add a memory/episode to the graph (aliases: mm, megamem, memory)",
		s.AddMemoryTool)

	genkit.DefineTool(g, "add_conversation_memory",
		"Add a conversation to the graph in message format (aliases: mm, megamem, memory)",
		s.AddConversationMemoryTool)

	genkit.DefineTool(g, "search_memory_nodes",
		"Search for nodes in the memory graph (aliases: mm, megamem, memory)",
		s.SearchMemoryNodesTool)

	genkit.DefineTool(g, "search_memory_facts",
		"Search for facts/relationships in the memory graph (aliases: mm, megamem, memory)",
		s.SearchMemoryFactsTool)

	genkit.DefineTool(g, "get_episodes",
		"Get episodes from the memory graph (aliases: mm, megamem, memory)",
		s.GetEpisodesTool)

	genkit.DefineTool(g, "clear_graph",
		"Clear the memory graph for a group (aliases: mm, megamem, memory)",
		s.ClearGraphTool)

	genkit.DefineTool(g, "get_entity_edge",
		"Get entity edges from the graph by entity name or UUID (aliases: mm, megamem, memory)",
		s.GetEntityEdgeTool)

	genkit.DefineTool(g, "delete_entity_edge",
		"Delete an entity edge from the graph (aliases: mm, megamem, memory)",
		s.DeleteEntityEdgeTool)

	genkit.DefineTool(g, "delete_episode",
		"Delete an episode from the graph (aliases: mm, megamem, memory)",
		s.DeleteEpisodeTool)

	genkit.DefineTool(g, "list_group_ids",
		"List all available group IDs (namespaces) in the vault (aliases: mm, megamem, memory)",
		s.ListGroupIDsTool)

	// Obsidian tools
	genkit.DefineTool(g, "search_obsidian_notes",
		"Search for notes in the Obsidian vault by filename and/or content (aliases: mv, my vault, obsidian)",
		s.SearchNotesTool)

	genkit.DefineTool(g, "read_obsidian_note",
		"Read a specific note from Obsidian, optionally with a line map for precise editing (aliases: mv, my vault, obsidian)",
		s.ReadNoteTool)

	genkit.DefineTool(g, "update_obsidian_note",
		"Update an existing note using editing modes full_file, frontmatter_only, append_only, range_based, or editor_based (aliases: mv, my vault, obsidian)",
		s.UpdateNoteTool)

	genkit.DefineTool(g, "create_obsidian_note",
		"Create a new note in Obsidian (aliases: mv, my vault, obsidian)",
		s.CreateNoteTool)

	genkit.DefineTool(g, "list_obsidian_vaults",
		"List all available Obsidian vaults (aliases: mv, my vault, obsidian)",
		s.ListVaultsTool)

	genkit.DefineTool(g, "explore_vault_folders",
		"Explore folder structure in an Obsidian vault by natural language or path",
		s.ExploreFoldersTool)

	genkit.DefineTool(g, "create_note_with_template",
		"Create a new note using a templater template (fuzzy-match) in the vault",
		s.CreateNoteWithTemplateTool)

	genkit.DefineTool(g, "manage_obsidian_folders",
		"Create, rename/move, or delete folders in the Obsidian vault (aliases: mv, my vault, obsidian)",
		s.ManageFoldersTool)

	genkit.DefineTool(g, "manage_obsidian_notes",
		"Delete or rename notes in the Obsidian vault (aliases: mv, my vault, obsidian)",
		s.ManageNotesTool)

	// Status resource
	genkit.DefineTool(g, "get_server_status",
		"Health check for graph and Obsidian connections (megamem://status)",
		s.ServerStatusTool)
}
