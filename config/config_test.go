package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbrelay/dbrelay/protocol"
)

func TestParse_AppliesDefaults(t *testing.T) {
	settings, err := Parse([]byte("database: {}\n"))
	require.NoError(t, err)
	assert.True(t, settings.Create, "create defaults to true")
	assert.Empty(t, settings.Path)
	assert.False(t, settings.Readonly)
}

func TestParse_FileDatabase(t *testing.T) {
	settings, err := Parse([]byte(`
database:
  path: ./app.db
  readonly: true
  verbose: true
`))
	require.NoError(t, err)
	assert.Equal(t, "./app.db", settings.Path)
	assert.True(t, settings.Readonly)
	assert.True(t, settings.Verbose)
	assert.True(t, settings.Create)
}

func TestParse_StorageScope(t *testing.T) {
	settings, err := Parse([]byte(`
database:
  storage_scope: session
`))
	require.NoError(t, err)
	assert.Equal(t, protocol.ScopeSession, settings.StorageScope)
}

func TestParse_PathAndScopeAreExclusive(t *testing.T) {
	_, err := Parse([]byte(`
database:
  path: ./app.db
  storage_scope: local
`))
	require.Error(t, err)
}

func TestParse_CreateCanBeDisabled(t *testing.T) {
	settings, err := Parse([]byte(`
database:
  path: ./app.db
  create: false
`))
	require.NoError(t, err)
	assert.False(t, settings.Create)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: ./rel.db\n"), 0o644))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./rel.db", settings.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("database: [not a map"))
	require.Error(t, err)
}
