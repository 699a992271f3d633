package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// StatusPath reports whether an access token can currently be obtained.
const StatusPath = "/_oauthkeeper/status"

// Option configures a Proxy.
type Option func(*config)

type config struct {
	baseURL   string
	transport http.RoundTripper
}

// WithBaseURL sets the upstream API base URL. Requests are forwarded relative to it.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithTransport sets the base transport for upstream requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

// Proxy represents the authenticating forward proxy server
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// New creates a proxy that forwards every request to the upstream API with a bearer
// token from ts. ts is consulted per request, so expired tokens are refreshed first.
func New(ts oauth2.TokenSource, opts ...Option) (*Proxy, error) {
	if ts == nil {
		return nil, errors.New("missing token source")
	}

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	upstream, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host required", cfg.baseURL)
	}

	transport := &oauth2.Transport{Source: ts, Base: cfg.transport}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			// Clients authenticate to the proxy, never to the upstream
			pr.Out.Header.Del("Authorization")
		},
		// FlushInterval: -1 disables automatic periodic flushing, flushing only when the backend flushes.
		// Streaming responses (SSE) reach the client as soon as the upstream sends them.
		FlushInterval: -1,
		Transport:     transport,
		ErrorHandler:  upstreamError,
	}

	logger := slog.Default()

	mux := http.NewServeMux()

	mux.Handle("GET "+StatusPath, applyMiddlewares(statusHandler(ts),
		Logging(logger),
		Recovery,
	))

	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		RequestID,
		Logging(logger),
		Recovery,
	))

	return &Proxy{mux: mux}, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request (DoS protection against slow clients)
		WriteTimeout: 15 * time.Minute, // Inbound: Write entire response to client (allows long streams, still bounded)
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

// StatusResponse is the body served at StatusPath.
type StatusResponse struct {
	Valid     bool       `json:"valid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// statusHandler confirms access without exposing the token itself.
func statusHandler(ts oauth2.TokenSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ts.Token()
		if err != nil {
			slog.WarnContext(r.Context(), "access token unavailable", "error", err)
			writeJSON(r.Context(), w, StatusResponse{Valid: false, Error: err.Error()}, http.StatusServiceUnavailable)
			return
		}

		resp := StatusResponse{Valid: true}
		if !token.Expiry.IsZero() {
			resp.ExpiresAt = &token.Expiry
		}
		writeJSON(r.Context(), w, resp, http.StatusOK)
	})
}

// upstreamError reports failed token acquisition or upstream connection errors as JSON.
func upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "proxy request failed", "error", err)
	writeJSONError(r.Context(), w, "upstream request failed: "+err.Error(), http.StatusBadGateway)
}
