package tokenmanager

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// tokenSource adapts a Manager to oauth2.TokenSource.
type tokenSource struct {
	// oauth2.TokenSource.Token() has no context parameter (legacy interface limitation)
	ctx     context.Context
	manager *Manager
}

// Compile-time check to ensure tokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*tokenSource)(nil)

// TokenSource returns an oauth2.TokenSource that confirms access on every call.
// ctx is used for all store reads and refreshes made by the source.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, manager: m}
}

// Token confirms access and returns the stored access token.
func (ts *tokenSource) Token() (*oauth2.Token, error) {
	if err := ts.manager.ConfirmAccess(ts.ctx); err != nil {
		return nil, err
	}

	access, err := ts.manager.lookup(ts.ctx, FieldAccess)
	if err != nil {
		return nil, err
	}
	rawExpiry, err := ts.manager.lookup(ts.ctx, FieldAccessExpires)
	if err != nil {
		return nil, err
	}
	expiry, _ := ParseExpiry(rawExpiry)

	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}

// Client returns an HTTP client that authenticates every request with the stored
// access token, refreshing it first when expired. A nil base uses http.DefaultTransport.
func (m *Manager) Client(ctx context.Context, base http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: m.TokenSource(ctx),
			Base:   base,
		},
	}
}
