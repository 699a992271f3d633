package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{Storage: StorageConfig{Type: StorageTypeMemory}}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestNewManager_RefreshesThroughConfiguredEndpoint(t *testing.T) {
	var grantType string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grantType = r.FormValue("grant_type")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":          "issued",
			"accessTokenExpiresAt": "2099-01-01T00:00:00Z",
		})
	}))
	t.Cleanup(tokenServer.Close)

	cfg := memoryConfig(t)
	cfg.TokenEndpoint.URL = tokenServer.URL

	manager, closeStore, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })

	ctx := context.Background()
	require.NoError(t, manager.SetRefresh(ctx, "r"))
	require.NoError(t, manager.ConfirmAccess(ctx))

	assert.Equal(t, "refresh_token", grantType)
	access, err := manager.Access(ctx)
	require.NoError(t, err)
	assert.Equal(t, "issued", access)
}

func TestNewManager_WithoutEndpoint(t *testing.T) {
	manager, closeStore, err := NewManager(memoryConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })

	ctx := context.Background()
	// Field access works without a token endpoint
	require.NoError(t, manager.SetClientID(ctx, "c"))

	_, err = manager.RefreshToken(ctx)
	assert.ErrorIs(t, err, ErrTokenEndpointNotConfigured)
}

func TestNew_RequiresServeSettings(t *testing.T) {
	_, err := New(memoryConfig(t))
	assert.ErrorContains(t, err, "upstream.base_url")
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Server.Port = 0
	cfg.Upstream.BaseURL = "https://api.example.com"
	cfg.TokenEndpoint.URL = "http://127.0.0.1:1/token"
	cfg.TokenEndpoint.Timeout = 100 * time.Millisecond

	application, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Start(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
