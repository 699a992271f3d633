package tokenendpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GrantTypeRefreshToken is the only grant this client sends.
const GrantTypeRefreshToken = "refresh_token"

// maxResponseBytes bounds how much of a token response is read.
const maxResponseBytes = 1 << 20

// RefreshRequest describes a token-exchange request.
type RefreshRequest struct {
	GrantType    string
	RefreshToken string
	ClientID     string
}

// Response is a successful token-exchange response.
type Response struct {
	AccessToken          string
	AccessTokenExpiresAt string
}

// Option configures a Client.
type Option func(*clientConfig)

// clientConfig holds configuration for New.
type clientConfig struct {
	baseTransport http.RoundTripper
	jsonRequests  bool
	timeout       time.Duration
	now           func() time.Time
}

// WithTransport sets a custom base transport for token requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithJSONRequests sends request parameters as a JSON object instead of a form.
func WithJSONRequests() Option {
	return func(c *clientConfig) {
		c.jsonRequests = true
	}
}

// WithTimeout bounds each token request. Defaults to 30 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithClock overrides the time source used to turn expires_in into a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		c.now = now
	}
}

// Client performs refresh-token exchanges against a single token endpoint.
type Client struct {
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time
}

// New creates a Client for the given token endpoint URL.
func New(tokenURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(tokenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid token endpoint URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid token endpoint URL %q: scheme must be http or https", tokenURL)
	}

	cfg := &clientConfig{
		baseTransport: http.DefaultTransport,
		timeout:       30 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := cfg.baseTransport
	if cfg.jsonRequests {
		transport = &jsonBodyTransport{base: transport}
	}

	return &Client{
		tokenURL: tokenURL,
		httpClient: &http.Client{
			// Refreshes run detached from caller cancellation, so this is the only bound
			Timeout:   cfg.timeout,
			Transport: transport,
		},
		now: cfg.now,
	}, nil
}

// Refresh sends one token-exchange request and returns the issued access token.
// Empty credentials are sent as-is; rejecting them is the server's job.
func (c *Client) Refresh(ctx context.Context, r RefreshRequest) (*Response, error) {
	form := url.Values{
		"grant_type":    {r.GrantType},
		"refresh_token": {r.RefreshToken},
		"client_id":     {r.ClientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading token response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejection(resp.StatusCode, body)
	}

	return c.parseResponse(resp.StatusCode, body)
}

// tokenResponse accepts both camelCase and RFC 6749 field names.
type tokenResponse struct {
	AccessToken          string `json:"accessToken"`
	AccessTokenExpiresAt string `json:"accessTokenExpiresAt"`

	AccessTokenStd string `json:"access_token"`
	ExpiresIn      int64  `json:"expires_in"`
}

func (c *Client) parseResponse(status int, body []byte) (*Response, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &AuthServerError{StatusCode: status, Reason: fmt.Sprintf("decoding JSON: %v", err), Body: truncate(body)}
	}

	access := tr.AccessToken
	if access == "" {
		access = tr.AccessTokenStd
	}
	if access == "" {
		return nil, &AuthServerError{StatusCode: status, Reason: "response missing access token", Body: truncate(body)}
	}

	expiresAt := tr.AccessTokenExpiresAt
	if expiresAt == "" && tr.ExpiresIn > 0 {
		expiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC().Format(time.RFC3339)
	}
	if expiresAt == "" {
		expiresAt = jwtExpiry(access)
	}
	if expiresAt == "" {
		return nil, &AuthServerError{StatusCode: status, Reason: "response missing access token expiry", Body: truncate(body)}
	}

	return &Response{
		AccessToken:          access,
		AccessTokenExpiresAt: expiresAt,
	}, nil
}

// jwtExpiry returns the exp claim of a JWT access token as RFC 3339, or "" if the
// token is opaque or has no exp. The signature is not verified: the value only
// schedules the next refresh and is never trusted for authorization.
func jwtExpiry(accessToken string) string {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return ""
	}
	if claims.ExpiresAt == nil {
		return ""
	}
	return claims.ExpiresAt.UTC().Format(time.RFC3339)
}

// rejection builds an AuthServerError from a non-2xx response.
func rejection(status int, body []byte) *AuthServerError {
	e := &AuthServerError{StatusCode: status, Body: truncate(body)}

	var oauthErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &oauthErr) == nil {
		e.Code = oauthErr.Error
		e.Description = oauthErr.ErrorDescription
	}
	return e
}

func truncate(body []byte) []byte {
	const maxKept = 512
	if len(body) > maxKept {
		body = body[:maxKept]
	}
	return bytes.Clone(body)
}
