// Package tokenmanager owns the client-side lifecycle of an OAuth2 token pair.
//
// A Manager is the only read/write path to the persisted token set (refresh token,
// access token, access expiry), the client identity and the authorization flow
// state. Call ConfirmAccess before every authenticated request: it refreshes the
// access token if the stored expiry is absent, unparseable or in the past.
//
//	m, err := tokenmanager.New(store, endpointClient)
//	if err := m.ConfirmAccess(ctx); err != nil {
//		// refresh failed; re-authentication is the caller's decision
//	}
//
// Concurrent callers share a single in-flight refresh. Failures from the token
// endpoint are returned unchanged: no retry, no backoff.
//
// # oauth2 Integration
//
// TokenSource and Client adapt a Manager to golang.org/x/oauth2 so that every
// request through the returned client passes through ConfirmAccess:
//
//	httpClient := m.Client(ctx, nil)
package tokenmanager
