package tokenendpoint_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/oauthkeeper/internal/tokenendpoint"
)

var refreshRequest = tokenendpoint.RefreshRequest{
	GrantType:    tokenendpoint.GrantTypeRefreshToken,
	RefreshToken: "refresh-1",
	ClientID:     "client-1",
}

// newTokenServer starts a server answering every request with status and body.
// Each received request is passed to inspect before responding.
func newTokenServer(t *testing.T, status int, body string, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRefresh_SendsFormEncodedGrant(t *testing.T) {
	var form map[string][]string
	var contentType string
	server := newTokenServer(t, http.StatusOK,
		`{"accessToken":"access-1","accessTokenExpiresAt":"2031-05-06T07:08:09.000Z"}`,
		func(r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			contentType = r.Header.Get("Content-Type")
			require.NoError(t, r.ParseForm())
			form = r.PostForm
		})

	client, err := tokenendpoint.New(server.URL + "/oauth/token")
	require.NoError(t, err)

	resp, err := client.Refresh(context.Background(), refreshRequest)
	require.NoError(t, err)

	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, map[string][]string{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"refresh-1"},
		"client_id":     {"client-1"},
	}, form)
	// Expiry is passed through byte-for-byte
	assert.Equal(t, &tokenendpoint.Response{
		AccessToken:          "access-1",
		AccessTokenExpiresAt: "2031-05-06T07:08:09.000Z",
	}, resp)
}

func TestRefresh_JSONRequests(t *testing.T) {
	var payload map[string]string
	server := newTokenServer(t, http.StatusOK,
		`{"accessToken":"a","accessTokenExpiresAt":"2031-01-01T00:00:00Z"}`,
		func(r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		})

	client, err := tokenendpoint.New(server.URL, tokenendpoint.WithJSONRequests())
	require.NoError(t, err)

	_, err = client.Refresh(context.Background(), refreshRequest)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": "refresh-1",
		"client_id":     "client-1",
	}, payload)
}

func TestRefresh_StandardResponseUsesExpiresIn(t *testing.T) {
	server := newTokenServer(t, http.StatusOK,
		`{"access_token":"std-access","token_type":"bearer","expires_in":3600}`, nil)

	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	client, err := tokenendpoint.New(server.URL, tokenendpoint.WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	resp, err := client.Refresh(context.Background(), refreshRequest)
	require.NoError(t, err)
	assert.Equal(t, "std-access", resp.AccessToken)
	assert.Equal(t, "2030-01-02T03:04:05Z", resp.AccessTokenExpiresAt)
}

func TestRefresh_JWTExpiryFallback(t *testing.T) {
	exp := time.Date(2032, 3, 4, 5, 6, 7, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{"accessToken": signed})
	require.NoError(t, err)
	server := newTokenServer(t, http.StatusOK, string(body), nil)

	client, err := tokenendpoint.New(server.URL)
	require.NoError(t, err)

	resp, err := client.Refresh(context.Background(), refreshRequest)
	require.NoError(t, err)
	assert.Equal(t, "2032-03-04T05:06:07Z", resp.AccessTokenExpiresAt)
}

func TestRefresh_ServerRejection(t *testing.T) {
	server := newTokenServer(t, http.StatusUnauthorized,
		`{"error":"invalid_grant","error_description":"Invalid refresh token"}`, nil)

	client, err := tokenendpoint.New(server.URL)
	require.NoError(t, err)

	_, err = client.Refresh(context.Background(), refreshRequest)

	var authErr *tokenendpoint.AuthServerError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, "invalid_grant", authErr.Code)
	assert.Equal(t, "Invalid refresh token", authErr.Description)
	assert.Contains(t, err.Error(), "Invalid refresh token")
}

func TestRefresh_RejectionWithoutOAuthBody(t *testing.T) {
	server := newTokenServer(t, http.StatusBadGateway, `<html>bad gateway</html>`, nil)

	client, err := tokenendpoint.New(server.URL)
	require.NoError(t, err)

	_, err = client.Refresh(context.Background(), refreshRequest)

	var authErr *tokenendpoint.AuthServerError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadGateway, authErr.StatusCode)
	assert.Empty(t, authErr.Code)
	assert.Equal(t, "token endpoint rejected request: 502 Bad Gateway", err.Error())
}

func TestRefresh_MalformedResponses(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{name: "not json", body: `not json`, reason: "decoding JSON"},
		{name: "missing access token", body: `{"accessTokenExpiresAt":"2031-01-01T00:00:00Z"}`, reason: "missing access token"},
		{name: "missing expiry on opaque token", body: `{"accessToken":"opaque"}`, reason: "missing access token expiry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTokenServer(t, http.StatusOK, tt.body, nil)
			client, err := tokenendpoint.New(server.URL)
			require.NoError(t, err)

			_, err = client.Refresh(context.Background(), refreshRequest)

			var authErr *tokenendpoint.AuthServerError
			require.ErrorAs(t, err, &authErr)
			assert.Contains(t, authErr.Reason, tt.reason)
		})
	}
}

func TestRefresh_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := tokenendpoint.New(url)
	require.NoError(t, err)

	_, err = client.Refresh(context.Background(), refreshRequest)

	var transportErr *tokenendpoint.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "token endpoint unreachable")
}

func TestRefresh_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := tokenendpoint.New(server.URL, tokenendpoint.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Refresh(context.Background(), refreshRequest)

	var transportErr *tokenendpoint.TransportError
	require.ErrorAs(t, err, &transportErr)
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/token", "://bad"} {
		_, err := tokenendpoint.New(raw)
		assert.Error(t, err, raw)
	}
}
