// Package note parses Obsidian markdown notes: YAML frontmatter, plain-text
// extraction, and reference time discovery.
package note

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// The closing fence may sit at end of input with no trailing newline.
var frontmatterPattern = regexp.MustCompile(`(?s)^---[ \t]*\n(.*?)\n---[ \t]*(\n|$)`)

// ExtractFrontmatter splits a note into its frontmatter map and the
// remaining body. Notes without a frontmatter block return an empty map and
// the content unchanged. Malformed YAML falls back to a line-based
// key/value parser rather than failing the note.
func ExtractFrontmatter(content string) (map[string]any, string) {
	match := frontmatterPattern.FindStringSubmatchIndex(content)
	if match == nil {
		return map[string]any{}, content
	}

	text := content[match[2]:match[3]]
	rest := content[match[1]:]

	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(text), &parsed); err != nil || parsed == nil {
		if err != nil {
			slog.Warn("Failed to parse frontmatter", "error", err)
		}
		return parseSimpleFrontmatter(text), rest
	}
	return parsed, rest
}

// parseSimpleFrontmatter handles basic "key: value" lines with quote
// stripping and scalar coercion.
func parseSimpleFrontmatter(text string) map[string]any {
	frontmatter := map[string]any{}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") || !strings.Contains(line, ":") {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
				frontmatter[key] = value
				continue
			}
		}

		switch strings.ToLower(value) {
		case "true":
			frontmatter[key] = true
			continue
		case "false":
			frontmatter[key] = false
			continue
		}
		if n, err := strconv.Atoi(value); err == nil {
			frontmatter[key] = n
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			frontmatter[key] = f
			continue
		}
		frontmatter[key] = value
	}

	return frontmatter
}

var (
	wikiLinkPattern  = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	mdLinkPattern    = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	headerPattern    = regexp.MustCompile(`(?m)^#+\s+`)
	boldPattern      = regexp.MustCompile(`\*\*([^\*]+)\*\*`)
	italicPattern    = regexp.MustCompile(`\*([^\*]+)\*`)
	underPattern     = regexp.MustCompile(`_([^_]+)_`)
	codeBlockPattern = regexp.MustCompile("(?s)```[^`]*```")
	inlineCodeRe     = regexp.MustCompile("`([^`]+)`")
	htmlTagPattern   = regexp.MustCompile(`<[^>]+>`)
	blankRunPattern  = regexp.MustCompile(`\n\s*\n`)
)

// ExtractText strips frontmatter and markdown formatting, leaving plain
// text suitable for episode bodies.
func ExtractText(content string) string {
	_, clean := ExtractFrontmatter(content)

	clean = wikiLinkPattern.ReplaceAllString(clean, "$1")
	clean = mdLinkPattern.ReplaceAllString(clean, "$1")
	clean = headerPattern.ReplaceAllString(clean, "")
	clean = boldPattern.ReplaceAllString(clean, "$1")
	clean = italicPattern.ReplaceAllString(clean, "$1")
	clean = underPattern.ReplaceAllString(clean, "$1")
	clean = codeBlockPattern.ReplaceAllString(clean, "")
	clean = inlineCodeRe.ReplaceAllString(clean, "$1")
	clean = htmlTagPattern.ReplaceAllString(clean, "")
	clean = blankRunPattern.ReplaceAllString(clean, "\n\n")

	return strings.TrimSpace(clean)
}

var (
	invalidPropChar = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	underscoreRun   = regexp.MustCompile(`_+`)
)

// SanitizePropertyName normalizes a frontmatter key into a valid graph
// property identifier.
func SanitizePropertyName(name string) string {
	sanitized := invalidPropChar.ReplaceAllString(name, "_")
	if sanitized != "" && sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "prop_" + sanitized
	}
	sanitized = underscoreRun.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		return "property"
	}
	return sanitized
}
