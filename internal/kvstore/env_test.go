package kvstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/oauthkeeper/internal/kvstore"
)

func TestEnvStore_VarName(t *testing.T) {
	store, err := kvstore.NewEnvStore("OAUTHKEEPER_")
	require.NoError(t, err)

	tests := map[string]string{
		"refresh":              "OAUTHKEEPER_REFRESH",
		"accessExpires":        "OAUTHKEEPER_ACCESS_EXPIRES",
		"clientID":             "OAUTHKEEPER_CLIENT_ID",
		"externClientRedirect": "OAUTHKEEPER_EXTERN_CLIENT_REDIRECT",
	}
	for key, want := range tests {
		assert.Equal(t, want, store.VarName(key), key)
	}
}

func TestEnvStore_Get(t *testing.T) {
	t.Setenv("TEST_KV_CLIENT_ID", "client-1")
	t.Setenv("TEST_KV_CODE", "")

	store, err := kvstore.NewEnvStore("TEST_KV_")
	require.NoError(t, err)
	ctx := context.Background()

	got, err := store.Get(ctx, "clientID")
	require.NoError(t, err)
	assert.Equal(t, "client-1", got)

	_, err = store.Get(ctx, "code")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	_, err = store.Get(ctx, "state")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestEnvStore_IsReadOnly(t *testing.T) {
	store, err := kvstore.NewEnvStore("TEST_KV_")
	require.NoError(t, err)

	err = store.Set(context.Background(), "access", "x")
	assert.ErrorIs(t, err, kvstore.ErrReadOnly)
}

func TestNewEnvStore_EmptyPrefix(t *testing.T) {
	_, err := kvstore.NewEnvStore("")
	assert.Error(t, err)
}
