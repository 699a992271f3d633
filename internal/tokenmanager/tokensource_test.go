package tokenmanager_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/oauthkeeper/internal/tokenendpoint"
)

func TestTokenSource_ReturnsStoredToken(t *testing.T) {
	endpoint := &fakeEndpoint{response: newResponse}
	m, _ := newManager(t, endpoint, map[string]string{
		"access":        "current-access",
		"accessExpires": "2025-06-01T12:30:00Z",
	})

	token, err := m.TokenSource(context.Background()).Token()
	require.NoError(t, err)

	assert.Equal(t, "current-access", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), token.Expiry)
	assert.Zero(t, endpoint.calls.Load())
}

func TestClient_RefreshesBeforeRequest(t *testing.T) {
	var authorization string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(api.Close)

	endpoint := &fakeEndpoint{response: newResponse}
	m, _ := newManager(t, endpoint, map[string]string{
		"refresh":       "r",
		"access":        "stale-access",
		"accessExpires": "2020-01-01T00:00:00Z",
	})

	resp, err := m.Client(context.Background(), nil).Get(api.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "Bearer new-access", authorization)
	assert.Equal(t, int32(1), endpoint.calls.Load())
}

func TestClient_RefreshFailureAbortsRequest(t *testing.T) {
	called := false
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(api.Close)

	rejection := &tokenendpoint.AuthServerError{StatusCode: http.StatusUnauthorized}
	m, _ := newManager(t, &fakeEndpoint{err: rejection}, nil)

	_, err := m.Client(context.Background(), nil).Get(api.URL)

	var authErr *tokenendpoint.AuthServerError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, called)
}
