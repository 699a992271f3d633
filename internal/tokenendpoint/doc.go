// Package tokenendpoint exchanges refresh tokens for access tokens at an
// OAuth2 authorization server's token endpoint.
//
// Two response dialects are accepted:
//   - camelCase bodies ({"accessToken": ..., "accessTokenExpiresAt": ...}), whose
//     expiry timestamp is passed through verbatim
//   - RFC 6749 bodies ({"access_token": ..., "expires_in": ...}), whose expiry
//     is computed from expires_in and formatted as RFC 3339 UTC
//
// If neither expiry is present and the access token is a JWT, its exp claim is used.
//
// # Errors
//
// Failures are reported as *TransportError (the server could not be reached) or
// *AuthServerError (non-2xx status or unusable response body). Nothing is retried.
//
// # Request Encoding
//
// Requests are form-encoded by default. Some servers only accept JSON:
//
//	client, err := tokenendpoint.New(tokenURL, tokenendpoint.WithJSONRequests())
//
// # Custom Base Transport
//
// Configure a custom base transport for token requests (e.g., for proxies or custom timeouts):
//
//	client, err := tokenendpoint.New(
//		tokenURL,
//		tokenendpoint.WithTransport(customTransport),
//	)
package tokenendpoint
