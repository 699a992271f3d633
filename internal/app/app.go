package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/oauthkeeper/internal/proxy"
	"github.com/florianilch/oauthkeeper/internal/tokenendpoint"
	"github.com/florianilch/oauthkeeper/internal/tokenmanager"
)

// ErrTokenEndpointNotConfigured is returned by refreshes when token_endpoint.url is unset.
var ErrTokenEndpointNotConfigured = errors.New("token_endpoint.url not configured")

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg        *Config
	manager    *tokenmanager.Manager
	closeStore func() error
	proxy      *proxy.Proxy
}

// New creates a new App instance serving the authenticating proxy.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	manager, closeStore, err := NewManager(cfg)
	if err != nil {
		return nil, err
	}

	// Token source lives for the whole process; per-request contexts don't reach oauth2.TokenSource
	proxyServer, err := proxy.New(manager.TokenSource(context.Background()), proxy.WithBaseURL(cfg.Upstream.BaseURL))
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:        cfg,
		manager:    manager,
		closeStore: closeStore,
		proxy:      proxyServer,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	shutdownFuncs := []func(context.Context) error{
		func(context.Context) error { return a.closeStore() },
	}

	// Surface credential problems at startup instead of on the first proxied request
	if err := a.manager.ConfirmAccess(gCtx); err != nil {
		slog.WarnContext(gCtx, "access token not available yet", "error", err)
	}

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "address", address, "upstream", a.cfg.Upstream.BaseURL)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		_ = a.closeStore()
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// NewManager creates a token manager from application configuration.
// The returned close function releases the store's connections.
func NewManager(cfg *Config) (*tokenmanager.Manager, func() error, error) {
	store, closeStore, err := cfg.Storage.NewStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	endpoint, err := newEndpoint(cfg.TokenEndpoint)
	if err != nil {
		_ = closeStore()
		return nil, nil, fmt.Errorf("failed to create token endpoint client: %w", err)
	}

	manager, err := tokenmanager.New(store, endpoint,
		tokenmanager.WithExpiryLeeway(cfg.TokenEndpoint.ExpiryLeeway),
		tokenmanager.WithLogger(slog.Default().With("component", "tokenmanager")),
	)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}

	return manager, closeStore, nil
}

func newEndpoint(cfg TokenEndpointConfig) (tokenmanager.Endpoint, error) {
	if cfg.URL == "" {
		return unconfiguredEndpoint{}, nil
	}

	opts := []tokenendpoint.Option{tokenendpoint.WithTimeout(cfg.Timeout)}
	if cfg.JSONBody {
		opts = append(opts, tokenendpoint.WithJSONRequests())
	}
	return tokenendpoint.New(cfg.URL, opts...)
}

// unconfiguredEndpoint lets field and state commands run without a token endpoint.
type unconfiguredEndpoint struct{}

func (unconfiguredEndpoint) Refresh(context.Context, tokenendpoint.RefreshRequest) (*tokenendpoint.Response, error) {
	return nil, ErrTokenEndpointNotConfigured
}
