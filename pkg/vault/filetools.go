package vault

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// operationTimeout is how long FileTools waits for a plugin response.
const operationTimeout = 30 * time.Second

// FileTools implements the note and folder operations the MCP tools expose.
// Results are JSON-shaped maps so envelopes pass through to the model
// unchanged.
type FileTools struct {
	server Service
	logger *slog.Logger
}

// NewFileTools wires the tools to a vault transport.
func NewFileTools(server Service, logger *slog.Logger) *FileTools {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTools{server: server, logger: logger}
}

func errorResult(message, code string) map[string]any {
	return map[string]any{"success": false, "error": message, "error_code": code}
}

// validateVault resolves the target vault, falling back to the active vault,
// and reports a coded error when no usable vault exists.
func (t *FileTools) validateVault(vaultID string) (string, map[string]any) {
	if t.server == nil {
		return "", errorResult("WebSocket server not available", "NO_SERVER")
	}

	connected := t.server.GetConnectedVaults()
	if len(connected) == 0 {
		return "", errorResult("No Obsidian vaults are currently connected", "NO_VAULTS")
	}

	if vaultID != "" {
		for _, id := range connected {
			if id == vaultID {
				return vaultID, nil
			}
		}
		return "", errorResult(
			fmt.Sprintf("Vault '%s' is not connected. Connected vaults: %v", vaultID, connected),
			"INVALID_VAULT")
	}

	active := t.server.GetActiveVault()
	if active == "" {
		return "", errorResult(
			fmt.Sprintf("No vault specified and no active vault set. Connected vaults: %v", connected),
			"NO_ACTIVE_VAULT")
	}
	return active, nil
}

func (t *FileTools) request(ctx context.Context, vaultID, operation string, params map[string]any) map[string]any {
	resp, err := t.server.RequestFileOperation(ctx, vaultID, operation, params, operationTimeout)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	if resp == nil {
		return map[string]any{"error": "No response from vault"}
	}
	return resp.ToMap()
}

// SearchNotes searches notes by filename and/or content.
func (t *FileTools) SearchNotes(ctx context.Context, query, vaultID, searchMode string, maxResults int, includeContext bool, path string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}

	mode := strings.ToLower(searchMode)
	switch mode {
	case "filename", "content", "both":
	default:
		t.logger.Info("Invalid search_mode, defaulting to both", "search_mode", searchMode)
		mode = "both"
	}
	if maxResults <= 0 {
		maxResults = 100
	}

	params := map[string]any{
		"query":          query,
		"searchMode":     mode,
		"maxResults":     maxResults,
		"includeContext": includeContext,
		"vaultId":        resolved,
	}
	if path != "" {
		params["path"] = path
	}

	t.logger.Info("Searching notes", "mode", mode, "max", maxResults, "query", query)
	return t.request(ctx, resolved, "file:search", params)
}

// ReadNote reads a specific note.
func (t *FileTools) ReadNote(ctx context.Context, path, vaultID string, includeLineMap bool) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	params := map[string]any{
		"path":    path,
		"vaultId": resolved,
	}
	if includeLineMap {
		params["includeLineMap"] = true
	}
	return t.request(ctx, resolved, "file:read", params)
}

// UpdateNoteParams carries the editing-mode-specific arguments for
// UpdateNote. Pointer fields distinguish absent from zero.
type UpdateNoteParams struct {
	Path        string
	VaultID     string
	EditingMode string

	Content            *string
	FrontmatterChanges map[string]any
	AppendContent      *string

	ReplacementContent *string
	RangeStartLine     *int
	RangeStartChar     *int
	RangeEndLine       *int
	RangeEndChar       *int

	EditorMethod *string
	Line         *int
	Char         *int
	FromLine     *int
	FromChar     *int
	ToLine       *int
	ToChar       *int
	Heading      *string
}

// UpdateNote modifies a note with one of the plugin's editing modes.
func (t *FileTools) UpdateNote(ctx context.Context, p UpdateNoteParams) map[string]any {
	t.logger.Info("Updating note", "path", p.Path, "mode", p.EditingMode)

	resolved, errResult := t.validateVault(p.VaultID)
	if errResult != nil {
		return errResult
	}

	var operation string
	params := map[string]any{
		"path":    p.Path,
		"vaultId": resolved,
	}

	switch p.EditingMode {
	case "full_file":
		if p.Content == nil {
			return map[string]any{"success": false, "error": "content parameter required for full_file mode"}
		}
		operation = "file:write"
		params["content"] = *p.Content

	case "frontmatter_only":
		if p.FrontmatterChanges == nil {
			return map[string]any{"success": false, "error": "frontmatter_changes parameter required for frontmatter_only mode"}
		}
		operation = "file:frontmatter_edit"
		params["frontmatterChanges"] = p.FrontmatterChanges

	case "append_only":
		if p.AppendContent == nil {
			return map[string]any{"success": false, "error": "append_content parameter required for append_only mode"}
		}
		operation = "file:append"
		params["appendContent"] = *p.AppendContent

	case "range_based":
		if p.ReplacementContent == nil || p.RangeStartLine == nil || p.RangeStartChar == nil {
			return map[string]any{"success": false, "error": "replacement_content, range_start_line, and range_start_char parameters required for range_based mode"}
		}
		operation = "file:range_edit"
		params["replacementContent"] = *p.ReplacementContent
		params["rangeStartLine"] = *p.RangeStartLine
		params["rangeStartChar"] = *p.RangeStartChar
		if p.RangeEndLine != nil {
			params["rangeEndLine"] = *p.RangeEndLine
		}
		if p.RangeEndChar != nil {
			params["rangeEndChar"] = *p.RangeEndChar
		}

	case "editor_based":
		if p.EditorMethod == nil {
			return map[string]any{"success": false, "error": "editor_method parameter required for editor_based mode"}
		}
		operation = "file:editor_edit"
		params["editorMethod"] = *p.EditorMethod
		// The plugin takes one content argument regardless of which alias
		// the caller used.
		if p.Content != nil {
			params["content"] = *p.Content
		}
		if p.ReplacementContent != nil {
			params["content"] = *p.ReplacementContent
		}
		if p.AppendContent != nil {
			params["content"] = *p.AppendContent
		}
		// Positions travel as strings; the plugin parses them back.
		for key, val := range map[string]*int{
			"line": p.Line, "char": p.Char,
			"fromLine": p.FromLine, "fromChar": p.FromChar,
			"toLine": p.ToLine, "toChar": p.ToChar,
		} {
			if val != nil {
				params[key] = fmt.Sprint(*val)
			}
		}
		if p.Heading != nil {
			params["heading"] = *p.Heading
		}

	default:
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Invalid editing_mode: %s. Must be one of: full_file, frontmatter_only, append_only, range_based, editor_based", p.EditingMode),
		}
	}

	result := t.request(ctx, resolved, operation, params)
	if success, _ := result["success"].(bool); success {
		t.logger.Info("Successfully updated note", "path", p.Path, "mode", p.EditingMode)
	} else {
		t.logger.Error("Failed to update note", "path", p.Path, "mode", p.EditingMode, "error", result["error"])
	}
	return result
}

// CreateNote creates a new note.
func (t *FileTools) CreateNote(ctx context.Context, path, content, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	return t.request(ctx, resolved, "file:create", map[string]any{
		"path":    path,
		"content": content,
		"vaultId": resolved,
	})
}

// DeleteNote deletes a note.
func (t *FileTools) DeleteNote(ctx context.Context, path, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	return t.request(ctx, resolved, "file:delete", map[string]any{
		"path":    path,
		"vaultId": resolved,
	})
}

// ListNotes lists all notes in a vault.
func (t *FileTools) ListNotes(ctx context.Context, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	return t.request(ctx, resolved, "file:list", map[string]any{
		"vaultId": resolved,
	})
}

// NoteMetadata fetches a note's metadata.
func (t *FileTools) NoteMetadata(ctx context.Context, path, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	return t.request(ctx, resolved, "file:metadata", map[string]any{
		"path":    path,
		"vaultId": resolved,
	})
}

// RenameNote renames or moves a note.
func (t *FileTools) RenameNote(ctx context.Context, oldPath, newPath, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	t.logger.Info("Renaming note", "from", oldPath, "to", newPath)
	return t.request(ctx, resolved, "file:rename", map[string]any{
		"path":    oldPath,
		"newPath": newPath,
		"vaultId": resolved,
	})
}

// ListVaults asks any connected plugin to enumerate the vaults it knows.
func (t *FileTools) ListVaults(ctx context.Context) map[string]any {
	if t.server == nil {
		return errorResult("WebSocket server not available", "NO_SERVER")
	}

	connected := t.server.GetConnectedVaults()
	if len(connected) == 0 {
		return map[string]any{
			"success":     false,
			"error":       "No Obsidian clients are currently connected. Please restart Obsidian and ensure the MCP plugin is enabled and connected.",
			"error_code":  "NO_CLIENTS",
			"user_action": "restart_obsidian",
		}
	}

	result := t.request(ctx, connected[0], "vault:list", map[string]any{})
	if _, hasSuccess := result["success"]; !hasSuccess {
		return map[string]any{"success": false, "error": "No response from vault for list_vaults request"}
	}
	return result
}

// CreateFolder creates a folder.
func (t *FileTools) CreateFolder(ctx context.Context, folderPath, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	t.logger.Info("Creating folder", "path", folderPath)
	return t.request(ctx, resolved, "folder:create", map[string]any{
		"folderPath": folderPath,
		"vaultId":    resolved,
	})
}

// RenameFolder renames or moves a folder.
func (t *FileTools) RenameFolder(ctx context.Context, folderPath, newFolderPath, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	t.logger.Info("Renaming folder", "from", folderPath, "to", newFolderPath)
	return t.request(ctx, resolved, "folder:rename", map[string]any{
		"oldPath": folderPath,
		"newPath": newFolderPath,
		"vaultId": resolved,
	})
}

// DeleteFolder deletes a folder.
func (t *FileTools) DeleteFolder(ctx context.Context, folderPath, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}
	t.logger.Info("Deleting folder", "path", folderPath)
	return t.request(ctx, resolved, "folder:delete", map[string]any{
		"path":    folderPath,
		"vaultId": resolved,
	})
}

// ExploreFolders walks the vault's folder structure.
func (t *FileTools) ExploreFolders(ctx context.Context, path, query, format string, maxDepth int, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}

	fmtUsed := strings.ToLower(format)
	switch fmtUsed {
	case "tree", "flat", "paths", "smart":
	default:
		fmtUsed = "smart"
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}

	params := map[string]any{
		"format":   fmtUsed,
		"maxDepth": maxDepth,
		"vaultId":  resolved,
	}
	switch {
	case path != "":
		params["path"] = path
	case query != "":
		params["query"] = query
	default:
		params["path"] = "/"
	}

	resp, err := t.server.RequestFileOperation(ctx, resolved, "folder:explore", params, operationTimeout)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error(), "vaultId": resolved}
	}
	if resp == nil {
		return map[string]any{"success": false, "error": "No response from vault", "vaultId": resolved}
	}

	payload := resp.PayloadMap()
	if payload == nil {
		payload = map[string]any{}
	}

	results, _ := payload["results"].([]any)
	if results == nil {
		results, _ = payload["folders"].([]any)
	}
	total := len(results)
	if raw, ok := payload["totalFolders"]; ok {
		if n, ok := raw.(float64); ok {
			total = int(n)
		} else if n, ok := raw.(int); ok {
			total = n
		}
	}

	// Synthesize a root entry so an empty vault still shows something.
	if len(results) == 0 {
		rootPath, _ := params["path"].(string)
		if rootPath == "" {
			rootPath = "/"
		}
		results = []any{map[string]any{"path": rootPath, "name": "", "type": "folder"}}
		total = 1
	}

	out := map[string]any{
		"success":      resp.Success,
		"results":      results,
		"totalFolders": total,
		"formatUsed":   fmtUsed,
		"vaultId":      resolved,
	}
	if query != "" {
		out["query"] = query
	}
	if path != "" {
		out["path"] = path
	} else {
		out["path"] = params["path"]
	}
	return out
}

// CreateNoteWithTemplate creates a note from a vault template. It checks
// templater availability first, then asks the plugin to create the file,
// passing through template selection prompts.
func (t *FileTools) CreateNoteWithTemplate(ctx context.Context, requestType, fileName, content, targetFolder, vaultID string) map[string]any {
	resolved, errResult := t.validateVault(vaultID)
	if errResult != nil {
		return errResult
	}

	check, err := t.server.RequestFileOperation(ctx, resolved, "templater:check", map[string]any{}, operationTimeout)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	if check == nil {
		return map[string]any{"success": false, "error": "No response from vault for templater:check"}
	}
	if !check.Success && check.Error != "" {
		return map[string]any{"success": false, "error": "Templater check failed", "details": check.ToMap()}
	}

	checkPayload := check.PayloadMap()
	if checkPayload == nil {
		checkPayload = map[string]any{}
	}

	templates, _ := checkPayload["templates"].([]any)
	templateMappings, _ := checkPayload["templateMappings"].(map[string]any)
	if templateMappings == nil {
		templateMappings = map[string]any{}
	}

	t.logger.Info("Templater check", "templates", len(templates), "mappings", len(templateMappings))

	// Best matching template name: exact, then fuzzy contains.
	matched := ""
	requestLower := strings.ToLower(requestType)
	for _, raw := range templates {
		name := ""
		switch v := raw.(type) {
		case string:
			name = v
		case map[string]any:
			name, _ = v["basename"].(string)
		}
		if name == "" {
			continue
		}
		if name == requestType {
			matched = name
			break
		}
		lower := strings.ToLower(name)
		if requestLower != "" && (strings.Contains(lower, requestLower) || strings.Contains(requestLower, lower)) {
			matched = name
		}
	}

	resolvedFolder := strings.TrimSpace(targetFolder)
	if resolvedFolder == "" && matched != "" {
		if mapped, _ := templateMappings[matched].(string); mapped != "" {
			resolvedFolder = mapped
			t.logger.Info("Using mapped template folder", "folder", resolvedFolder, "template", matched)
		}
	}

	params := map[string]any{
		"searchTerm":       requestType,
		"fileName":         fileName,
		"targetFolder":     resolvedFolder,
		"userContent":      content,
		"templateMappings": templateMappings,
	}

	t.logger.Info("Creating note with template", "search_term", requestType, "file_name", fileName, "target_folder", resolvedFolder)

	createResp, err := t.server.RequestFileOperation(ctx, resolved, "file:create_with_template", params, operationTimeout)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	if createResp == nil {
		return map[string]any{
			"success":          false,
			"error":            "No response from vault for file:create_with_template",
			"params":           params,
			"templateMappings": templateMappings,
		}
	}

	createPayload := createResp.PayloadMap()

	// The plugin asks for a selection when several templates match.
	if requires, _ := createPayload["requiresSelection"].(bool); requires {
		message := createResp.Error
		if message == "" {
			message = "Template selection required"
		}
		return map[string]any{
			"success":            false,
			"requiresSelection":  true,
			"availableTemplates": createPayload["availableTemplates"],
			"message":            message,
			"details":            createResp.ToMap(),
			"templateMappings":   templateMappings,
			"suggestedFolder":    resolvedFolder,
		}
	}

	if !createResp.Success {
		return map[string]any{
			"success":          false,
			"error":            "Vault failed to create file with template",
			"details":          createResp.ToMap(),
			"templateMappings": templateMappings,
			"suggestedFolder":  resolvedFolder,
		}
	}

	createdPath, _ := createPayload["path"].(string)
	templateUsed, ok := createPayload["templateUsed"].(string)
	if !ok {
		templateUsed = matched
	}

	return map[string]any{
		"success":          true,
		"vaultId":          resolved,
		"path":             createdPath,
		"targetFolder":     resolvedFolder,
		"templateUsed":     templateUsed,
		"templateMappings": templateMappings,
		"payload":          createResp.Payload,
	}
}
