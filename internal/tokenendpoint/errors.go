package tokenendpoint

import (
	"fmt"
	"net/http"
)

// TransportError reports that the token endpoint could not be reached
// (DNS failure, refused connection, timeout).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("token endpoint unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthServerError reports that the authorization server answered but did not
// issue a usable token: a non-2xx status or a malformed response body.
type AuthServerError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code and Description carry the RFC 6749 "error" and "error_description"
	// fields when the server sent them.
	Code        string
	Description string

	// Reason describes why a 2xx response was rejected.
	Reason string

	// Body is the raw response body, truncated.
	Body []byte
}

func (e *AuthServerError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("token endpoint returned unusable response (%d): %s", e.StatusCode, e.Reason)
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token endpoint rejected request (%d): %s: %s", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token endpoint rejected request (%d): %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("token endpoint rejected request: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}
