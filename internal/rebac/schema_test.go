package rebac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

func TestNewSchemaStore_BuiltinFileSchema(t *testing.T) {
	s, err := NewSchemaStore("")
	require.NoError(t, err)

	def, err := s.Relation("file", "owner")
	require.NoError(t, err)
	assert.Equal(t, types.RewriteUnion, def.Kind)
	assert.Contains(t, def.Union, "direct_owner")
	assert.Contains(t, def.Union, "parent_owner")
}

func TestSchemaStore_UnknownRelationErrors(t *testing.T) {
	s, err := NewSchemaStore("")
	require.NoError(t, err)

	_, err = s.Relation("file", "nonexistent")
	require.Error(t, err)

	_, err = s.Relation("widget", "owner")
	require.Error(t, err)
}

func TestSchemaStore_LoadFileOverridesAndReloads(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")
	doc := `
namespaces:
  - resource_type: doc
    relations:
      owner:
        name: owner
        kind: direct
`
	require.NoError(t, os.WriteFile(schemaPath, []byte(doc), 0o644))

	s, err := NewSchemaStore(schemaPath)
	require.NoError(t, err)

	def, err := s.Relation("doc", "owner")
	require.NoError(t, err)
	assert.Equal(t, types.RewriteDirect, def.Kind)

	// The built-in file schema is untouched by an unrelated schema file.
	_, err = s.Relation("file", "owner")
	require.NoError(t, err)

	reloaded := false
	s.OnReload(func() { reloaded = true })
	require.NoError(t, s.loadFile(schemaPath))
	assert.True(t, reloaded)
}

func TestSchemaStore_Relations_ReturnsACopy(t *testing.T) {
	s, err := NewSchemaStore("")
	require.NoError(t, err)

	rels := s.Relations("file")
	require.NotEmpty(t, rels)
	delete(rels, "owner")

	_, err = s.Relation("file", "owner")
	require.NoError(t, err, "mutating the returned map must not affect the store")
}
