// Package namespace resolves the graph namespace (group id) and saga name
// for a note.
package namespace

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/soundprediction/megamem/pkg/config"
)

// Resolve picks the namespace for a note with the documented priority:
// config-level override, then the g_group_id frontmatter property, then
// folder mappings, then the namespace strategy.
func Resolve(notePath string, metadata map[string]any, cfg *config.Config, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.GroupID != "" {
		return cfg.GroupID
	}

	if cfg.EnablePropertyNamespacing {
		if raw, ok := metadata["g_group_id"]; ok {
			if ns := strings.TrimSpace(fmt.Sprint(raw)); ns != "" && raw != nil {
				if cfg.Debug {
					logger.Debug("Using property namespace", "namespace", ns)
				}
				return ns
			}
		}
	}

	if cfg.EnableFolderNamespacing && len(cfg.FolderMappings) > 0 {
		relative := vaultRelative(notePath, cfg.VaultPath)
		if gid := resolveFolderMapping(relative, cfg.FolderMappings); gid != "" {
			if cfg.Debug {
				logger.Debug("Using custom folder mapping", "group_id", gid)
			}
			return gid
		}
	}

	// Both the vault and custom strategies resolve to the configured default
	// namespace; for the vault strategy the plugin stores the vault name
	// there.
	return cfg.DefaultNamespace
}

// MatchFolderMapping returns the most specific mapping whose folder contains
// the note, or nil.
func MatchFolderMapping(notePath string, cfg *config.Config) *config.FolderMapping {
	relative := vaultRelative(notePath, cfg.VaultPath)
	folder := noteFolder(relative)

	mappings := sortedByPathLength(cfg.FolderMappings)
	for i := range mappings {
		m := &mappings[i]
		if m.FolderPath == "" {
			continue
		}
		mapped := path.Clean(strings.ReplaceAll(m.FolderPath, "\\", "/"))
		if folder == mapped || strings.HasPrefix(folder, mapped+"/") {
			return m
		}
	}
	return nil
}

// resolveFolderMapping walks mappings longest-path-first and returns the
// group id of the first whose folder contains the note's folder.
func resolveFolderMapping(notePath string, mappings []config.FolderMapping) string {
	folder := noteFolder(notePath)

	for _, m := range sortedByPathLength(mappings) {
		if m.FolderPath == "" || m.GroupID == "" {
			continue
		}
		mapped := path.Clean(strings.ReplaceAll(m.FolderPath, "\\", "/"))
		if folder == mapped || strings.HasPrefix(folder, mapped+"/") {
			return m.GroupID
		}
	}
	return ""
}

func sortedByPathLength(mappings []config.FolderMapping) []config.FolderMapping {
	sorted := make([]config.FolderMapping, len(mappings))
	copy(sorted, mappings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].FolderPath) > len(sorted[j].FolderPath)
	})
	return sorted
}

// vaultRelative normalizes a note path to forward slashes and strips the
// vault prefix case-insensitively when present.
func vaultRelative(notePath, vaultPath string) string {
	note := strings.ReplaceAll(notePath, "\\", "/")
	vault := strings.TrimRight(strings.ReplaceAll(vaultPath, "\\", "/"), "/")
	if vault != "" && strings.HasPrefix(strings.ToLower(note), strings.ToLower(vault)+"/") {
		return note[len(vault)+1:]
	}
	return note
}

func noteFolder(notePath string) string {
	if idx := strings.LastIndex(notePath, "/"); idx >= 0 {
		return notePath[:idx]
	}
	return ""
}

// ResolveSagaName derives the saga an episode belongs to from the folder
// mapping's grouping strategy. An empty result means the episode joins no
// saga.
func ResolveSagaName(sagaGrouping, sagaPropertyKey, groupID, noteType string, frontmatter map[string]any) string {
	switch sagaGrouping {
	case "none":
		return ""
	case "singleSaga":
		return fmt.Sprintf("all-%s", groupID)
	case "customProperty":
		if sagaPropertyKey == "" {
			// Without a property key the default byNoteType behavior applies.
			break
		}
		raw, ok := frontmatter[sagaPropertyKey]
		if !ok || raw == nil {
			return ""
		}
		value := fmt.Sprint(raw)
		if value == "" {
			return ""
		}
		return fmt.Sprintf("%s-%s", slug(value, 80), groupID)
	}

	// Default: byNoteType.
	if noteType == "" {
		return ""
	}
	return fmt.Sprintf("%s-%s", slug(noteType, 40), groupID)
}

func slug(value string, maxLen int) string {
	s := strings.ReplaceAll(strings.ToLower(value), " ", "-")
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
