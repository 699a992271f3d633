package kvstore_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/oauthkeeper/internal/kvstore"
)

func TestFileStore_WritesSecureJSONDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.json")
	store, err := kvstore.NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "clientID", "abc"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, map[string]string{"clientID": "abc"}, doc)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_RejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"refresh":"r"}`), 0644))

	store, err := kvstore.NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestFileStore_RejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	store, err := kvstore.NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "refresh")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, kvstore.ErrNotFound)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.json")

	first, err := kvstore.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(context.Background(), "refresh", "r-1"))

	second, err := kvstore.NewFileStore(path)
	require.NoError(t, err)
	got, err := second.Get(context.Background(), "refresh")
	require.NoError(t, err)
	assert.Equal(t, "r-1", got)
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	_, err := kvstore.NewFileStore("")
	assert.Error(t, err)
}
