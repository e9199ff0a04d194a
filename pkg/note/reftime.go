package note

import (
	"time"

	"github.com/spf13/cast"
)

// referenceTimeFields are checked in order; the first parseable value wins.
var referenceTimeFields = []string{"date", "created", "created_at", "timestamp", "modified"}

var referenceTimeLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ExtractReferenceTime picks a timestamp for an episode from frontmatter
// metadata. Date-only values resolve to midnight. Values without a zone are
// treated as UTC. When no field parses, the current UTC time is used.
func ExtractReferenceTime(metadata map[string]any) time.Time {
	for _, field := range referenceTimeFields {
		raw, ok := metadata[field]
		if !ok || raw == nil {
			continue
		}

		if t, ok := raw.(time.Time); ok {
			if t.Location() == time.Local {
				return t.UTC()
			}
			return t
		}

		s := cast.ToString(raw)
		if s == "" {
			continue
		}
		for _, layout := range referenceTimeLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t
			}
		}
	}

	return time.Now().UTC()
}
