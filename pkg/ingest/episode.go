package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/soundprediction/megamem/pkg/config"
)

// defaultSourceDescription marks episodes whose notes carry no type.
const defaultSourceDescription = "obsidian_mm_default"

// mergeFrontmatterBody prepends the note's frontmatter to the cleaned text so
// the extractor sees both. Complex values are JSON encoded; keys are emitted
// in sorted order to keep episode bodies stable.
func mergeFrontmatterBody(metadata map[string]any, cleanText string) string {
	if len(metadata) == 0 {
		return cleanText
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{"---"}
	for _, k := range keys {
		v := metadata[k]
		var val string
		switch v.(type) {
		case map[string]any, []any:
			encoded, err := json.Marshal(v)
			if err != nil {
				val = fmt.Sprint(v)
			} else {
				val = string(encoded)
			}
		default:
			val = fmt.Sprint(v)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", k, val))
	}
	lines = append(lines, "---")

	return strings.Join(lines, "\n") + "\n" + cleanText
}

// sourceDescription prefers the note's frontmatter type, then the configured
// description, then the default marker.
func sourceDescription(metadata map[string]any, cfg *config.Config) string {
	if raw, ok := metadata["type"]; ok && raw != nil {
		if s := fmt.Sprint(raw); s != "" {
			return s
		}
	}
	if cfg != nil && cfg.SourceDescription != "" {
		return cfg.SourceDescription
	}
	return defaultSourceDescription
}
