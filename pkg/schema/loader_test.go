package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataJSON(t *testing.T, content string) string {
	t.Helper()
	vault := t.TempDir()
	dir := filepath.Join(vault, ".obsidian", "plugins", "megamem-mcp")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.json"), []byte(content), 0o644))
	return vault
}

func TestLoaderSelectedProperties(t *testing.T) {
	vault := writeDataJSON(t, `{
		"entityDescriptions": {
			"Person": {"description": "A person in my vault"}
		},
		"propertyDescriptions": {
			"Person": {
				"email": {"fieldType": "str", "description": "Contact email"},
				"birthDate": {"fieldType": "datetime"}
			}
		},
		"propertySelections": {
			"Person": {"email": true, "birthDate": false}
		}
	}`)

	l := NewLoader(vault, nil)
	require.NoError(t, l.Load())

	person, ok := l.EntityTypes()["Person"]
	require.True(t, ok)
	assert.Equal(t, "A person in my vault", person.Description)
	assert.Contains(t, person.Properties, "email")
	assert.Equal(t, "Contact email", person.Properties["email"].Description)
	assert.NotContains(t, person.Properties, "birthDate")
	// Universal tags field is always present.
	assert.Contains(t, person.Properties, "tags")
}

func TestLoaderStandardFieldsFallback(t *testing.T) {
	vault := writeDataJSON(t, `{
		"entityDescriptions": {"Technology": {}},
		"propertySelections": {}
	}`)

	l := NewLoader(vault, nil)
	require.NoError(t, l.Load())

	tech := l.EntityTypes()["Technology"]
	assert.Equal(t, "Technology, framework, programming language, or software", tech.Description)
	assert.Contains(t, tech.Properties, "opensource")
	assert.Equal(t, "bool", tech.Properties["opensource"].Type)
}

func TestLoaderBaseEntity(t *testing.T) {
	vault := writeDataJSON(t, `{"entityDescriptions": {"Note": {}}}`)

	l := NewLoader(vault, nil)
	require.NoError(t, l.Load())

	base, ok := l.EntityTypes()["BaseEntity"]
	require.True(t, ok)
	assert.Contains(t, base.Properties, "tags")
	assert.Equal(t, "List[str]", base.Properties["tags"].Type)
}

func TestLoaderEdgeTypesAndMap(t *testing.T) {
	vault := writeDataJSON(t, `{
		"entityDescriptions": {"Person": {}},
		"edgeTypes": {
			"WORKS_ON": {
				"description": "Active contribution",
				"properties": {
					"role": {"fieldType": "str", "required": true}
				}
			}
		},
		"edgeTypeMap": [
			{"sourceEntity": "Person", "targetEntity": "Project", "allowedEdges": ["WORKS_ON"]}
		]
	}`)

	l := NewLoader(vault, nil)
	require.NoError(t, l.Load())

	edge := l.EdgeTypes()["WORKS_ON"]
	assert.Equal(t, "Active contribution", edge.Description)
	assert.True(t, edge.Properties["role"].Required)

	assert.Equal(t, []string{"WORKS_ON"}, l.AllowedEdges("Person", "Project"))
	assert.Nil(t, l.AllowedEdges("Person", "Person"))
}

func TestLoaderRepairsMalformedJSON(t *testing.T) {
	// Trailing comma: invalid JSON, recoverable by repair.
	vault := writeDataJSON(t, `{"entityDescriptions": {"Note": {},}}`)

	l := NewLoader(vault, nil)
	require.NoError(t, l.Load())
	assert.Contains(t, l.EntityTypes(), "Note")
}

func TestLoaderEmptySchema(t *testing.T) {
	vault := writeDataJSON(t, `{}`)

	l := NewLoader(vault, nil)
	err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entity or edge type data")
}

func TestLoaderMissingFile(t *testing.T) {
	l := NewLoader(t.TempDir(), nil)
	err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.json not found")
}

func TestEntityTypeNamesDefault(t *testing.T) {
	l := NewLoader(t.TempDir(), nil)
	assert.Equal(t, builtinEntityNames(), l.EntityTypeNames())
}
