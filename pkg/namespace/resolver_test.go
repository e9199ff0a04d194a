package namespace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/megamem/pkg/config"
)

func baseConfig() *config.Config {
	return config.FromMap(map[string]any{
		"defaultNamespace":        "my-vault",
		"namespaceStrategy":       "vault",
		"enableFolderNamespacing": true,
		"folderNamespaceMappings": []any{
			map[string]any{"folderPath": "Projects", "groupId": "projects"},
			map[string]any{"folderPath": "Projects/Alpha", "groupId": "alpha"},
		},
	})
}

func TestResolvePriority(t *testing.T) {
	cfg := baseConfig()
	cfg.EnablePropertyNamespacing = true

	t.Run("config override wins", func(t *testing.T) {
		c := baseConfig()
		c.GroupID = "forced"
		c.EnablePropertyNamespacing = true
		got := Resolve("Projects/Alpha/x.md", map[string]any{"g_group_id": "prop"}, c, nil)
		assert.Equal(t, "forced", got)
	})

	t.Run("property beats folder mapping", func(t *testing.T) {
		got := Resolve("Projects/Alpha/x.md", map[string]any{"g_group_id": "prop"}, cfg, nil)
		assert.Equal(t, "prop", got)
	})

	t.Run("blank property is skipped", func(t *testing.T) {
		got := Resolve("Projects/Alpha/x.md", map[string]any{"g_group_id": "  "}, cfg, nil)
		assert.Equal(t, "alpha", got)
	})

	t.Run("longest folder mapping wins", func(t *testing.T) {
		got := Resolve("Projects/Alpha/Sub/x.md", nil, cfg, nil)
		assert.Equal(t, "alpha", got)
	})

	t.Run("shorter mapping for siblings", func(t *testing.T) {
		got := Resolve("Projects/Beta/x.md", nil, cfg, nil)
		assert.Equal(t, "projects", got)
	})

	t.Run("strategy fallback", func(t *testing.T) {
		got := Resolve("Inbox/x.md", nil, cfg, nil)
		assert.Equal(t, "my-vault", got)
	})
}

func TestResolveFolderMatchingIsExactOrSubfolder(t *testing.T) {
	cfg := baseConfig()

	// "ProjectsArchive" shares a prefix with "Projects" but is a different
	// folder, so the mapping must not apply.
	got := Resolve("ProjectsArchive/x.md", nil, cfg, nil)
	assert.Equal(t, "my-vault", got)
}

func TestResolveStripsVaultPrefix(t *testing.T) {
	cfg := baseConfig()
	cfg.VaultPath = "/home/user/Vault"

	got := Resolve("/home/user/Vault/Projects/Alpha/x.md", nil, cfg, nil)
	assert.Equal(t, "alpha", got)

	// Prefix comparison is case-insensitive.
	got = Resolve("/HOME/USER/VAULT/Projects/Alpha/x.md", nil, cfg, nil)
	assert.Equal(t, "alpha", got)
}

func TestMatchFolderMapping(t *testing.T) {
	cfg := baseConfig()

	m := MatchFolderMapping("Projects/Alpha/x.md", cfg)
	require.NotNil(t, m)
	assert.Equal(t, "alpha", m.GroupID)

	assert.Nil(t, MatchFolderMapping("Inbox/x.md", cfg))
}

func TestResolveSagaName(t *testing.T) {
	fm := map[string]any{"series": "My Great Series", "note_type": "Meeting Notes"}

	tests := []struct {
		name     string
		grouping string
		propKey  string
		noteType string
		want     string
	}{
		{"none", "none", "", "meeting", ""},
		{"single saga", "singleSaga", "", "", "all-gid"},
		{"custom property", "customProperty", "series", "", "my-great-series-gid"},
		{"custom property missing value", "customProperty", "absent", "", ""},
		{"by note type", "byNoteType", "", "Meeting Notes", "meeting-notes-gid"},
		{"by note type without type", "byNoteType", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveSagaName(tt.grouping, tt.propKey, "gid", tt.noteType, fm)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSagaNameTruncation(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := ResolveSagaName("customProperty", "series", "gid", "", map[string]any{"series": long})
	assert.Equal(t, strings.Repeat("x", 80)+"-gid", got)

	got = ResolveSagaName("byNoteType", "", "gid", long, nil)
	assert.Equal(t, strings.Repeat("x", 40)+"-gid", got)
}
