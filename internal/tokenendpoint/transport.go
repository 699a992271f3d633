package tokenendpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// jsonBodyTransport converts form-encoded token requests to JSON
// for servers whose token endpoint does not accept forms.
// Only token requests built by Client pass through this transport.
type jsonBodyTransport struct {
	base http.RoundTripper
}

// Compile-time check that jsonBodyTransport implements http.RoundTripper.
var _ http.RoundTripper = (*jsonBodyTransport)(nil)

// RoundTrip rewrites the form body as a JSON object and forwards the request.
func (t *jsonBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Defer close since we consume the body entirely and create a new body for the cloned request.
	// Unlike passthrough patterns, we don't forward the original body to the next RoundTripper.
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	jsonData := make(map[string]string, len(formData))
	for key, values := range formData {
		jsonData[key] = values[0] // RFC 6749 parameters are single-valued
	}

	jsonBody, err := json.Marshal(jsonData)
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")

	return t.base.RoundTrip(newReq)
}
