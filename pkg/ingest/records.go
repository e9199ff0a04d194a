package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// SyncEntry is one synced note inside a sync record.
type SyncEntry struct {
	NotePath    string `json:"note_path"`
	SagaName    string `json:"saga_name"`
	EpisodeUUID string `json:"episode_uuid"`
	LastSync    string `json:"last_sync"`
}

// SyncRecord groups the entries of one sync run.
type SyncRecord struct {
	Syncs []SyncEntry `json:"syncs"`
}

type syncFile struct {
	SyncRecords []SyncRecord `json:"sync_records"`
}

// LoadSyncRecords reads the plugin's sync.json for saga chain lookups.
// Missing or unreadable files yield no records rather than an error.
func LoadSyncRecords(vaultPath string) []SyncRecord {
	if vaultPath == "" {
		return nil
	}
	path := filepath.Join(vaultPath, ".obsidian", "plugins", "megamem-mcp", "sync.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var parsed syncFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}
	return parsed.SyncRecords
}

// LookupSagaPreviousUUID finds the most recent episode UUID in a saga from
// existing sync records.
func LookupSagaPreviousUUID(sagaName string, records []SyncRecord) string {
	var matching []SyncEntry
	for _, record := range records {
		for _, entry := range record.Syncs {
			if entry.SagaName == sagaName && entry.EpisodeUUID != "" {
				matching = append(matching, entry)
			}
		}
	}
	if len(matching) == 0 {
		return ""
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].LastSync > matching[j].LastSync
	})
	return matching[0].EpisodeUUID
}
