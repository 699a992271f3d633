package tokenmanager

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/oauthkeeper/internal/kvstore"
	"github.com/florianilch/oauthkeeper/internal/tokenendpoint"
)

// Endpoint exchanges a refresh token for a new access token.
type Endpoint interface {
	Refresh(ctx context.Context, r tokenendpoint.RefreshRequest) (*tokenendpoint.Response, error)
}

// Compile-time check that the HTTP client satisfies Endpoint
var _ Endpoint = (*tokenendpoint.Client)(nil)

// Grant is the access token issued by a successful refresh.
type Grant struct {
	Access        string
	AccessExpires string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithExpiryLeeway treats access tokens as expired this long before their stored expiry.
// The default of zero refreshes only once the expiry has strictly passed.
func WithExpiryLeeway(leeway time.Duration) Option {
	return func(m *Manager) {
		m.leeway = leeway
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRandom sets the random source for GenerateState. Defaults to crypto/rand.Reader.
func WithRandom(random io.Reader) Option {
	return func(m *Manager) {
		m.random = random
	}
}

// Manager detects access-token expiry and performs refresh exchanges.
// It is safe for concurrent use.
type Manager struct {
	store    kvstore.Store
	endpoint Endpoint

	now    func() time.Time
	leeway time.Duration
	random io.Reader
	logger *slog.Logger

	// Collapses concurrent refreshes into one exchange
	refreshGroup singleflight.Group
}

// New creates a Manager reading and writing through store and refreshing through endpoint.
func New(store kvstore.Store, endpoint Endpoint, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("missing store")
	}
	if endpoint == nil {
		return nil, errors.New("missing token endpoint")
	}

	m := &Manager{
		store:    store,
		endpoint: endpoint,
		now:      time.Now,
		random:   rand.Reader,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// RefreshToken exchanges the stored refresh token for a new access token and
// persists it together with its expiry. The refresh token itself is not rotated.
//
// Concurrent calls share one exchange. The exchange is not canceled when ctx is;
// ctx only bounds how long this caller waits. Endpoint errors are returned unchanged
// and leave the stored access token untouched.
func (m *Manager) RefreshToken(ctx context.Context) (Grant, error) {
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		// Detached so one canceled caller cannot fail the exchange for the others
		return m.refresh(context.WithoutCancel(ctx))
	})
	return wait(ctx, ch)
}

// ConfirmAccess refreshes the access token if it is expired and returns once a
// valid token is stored. Call it before every authenticated request.
//
// Expiry is checked again inside the shared flight, so a caller that saw a stale
// expiry while another caller's refresh was completing does not exchange again.
func (m *Manager) ConfirmAccess(ctx context.Context) error {
	expired, err := m.Expired(ctx)
	if err != nil {
		return err
	}
	if !expired {
		return nil
	}

	ch := m.refreshGroup.DoChan("confirm", func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)

		expired, err := m.Expired(flightCtx)
		if err != nil {
			return Grant{}, err
		}
		if !expired {
			return Grant{}, nil
		}

		// Join an explicit RefreshToken already in flight
		grant, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
			return m.refresh(flightCtx)
		})
		return grant, err
	})

	_, err = wait(ctx, ch)
	return err
}

// wait blocks for a flight result or until ctx is done.
func wait(ctx context.Context, ch <-chan singleflight.Result) (Grant, error) {
	select {
	case res := <-ch:
		if res.Err != nil {
			return Grant{}, res.Err
		}
		return res.Val.(Grant), nil
	case <-ctx.Done():
		return Grant{}, ctx.Err()
	}
}

// Expired reports whether the stored access token needs a refresh: its expiry is
// absent, unparseable or strictly in the past, or the token itself is missing.
func (m *Manager) Expired(ctx context.Context) (bool, error) {
	rawExpiry, err := m.lookup(ctx, FieldAccessExpires)
	if err != nil {
		return false, err
	}
	expiresAt, ok := ParseExpiry(rawExpiry)
	if !ok {
		return true, nil
	}

	// An expiry without its token is a torn write; don't guess freshness
	access, err := m.lookup(ctx, FieldAccess)
	if err != nil {
		return false, err
	}
	if access == "" {
		return true, nil
	}

	return m.now().After(expiresAt.Add(-m.leeway)), nil
}

func (m *Manager) refresh(ctx context.Context) (Grant, error) {
	ctx, span := otel.Tracer("github.com/florianilch/oauthkeeper/internal/tokenmanager").
		Start(ctx, "tokenmanager.refresh", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	refreshToken, err := m.lookup(ctx, FieldRefresh)
	if err != nil {
		return Grant{}, err
	}
	clientID, err := m.lookup(ctx, FieldClientID)
	if err != nil {
		return Grant{}, err
	}

	m.logger.DebugContext(ctx, "refreshing access token", "client_id", clientID)

	resp, err := m.endpoint.Refresh(ctx, tokenendpoint.RefreshRequest{
		GrantType:    tokenendpoint.GrantTypeRefreshToken,
		RefreshToken: refreshToken,
		ClientID:     clientID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		m.logger.DebugContext(ctx, "access token refresh failed", "error", err)
		return Grant{}, err
	}

	if err := m.storeAccess(ctx, resp.AccessToken, resp.AccessTokenExpiresAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persisting access token failed")
		return Grant{}, fmt.Errorf("persisting refreshed access token: %w", err)
	}

	m.logger.DebugContext(ctx, "access token refreshed", "expires", resp.AccessTokenExpiresAt)

	return Grant{
		Access:        resp.AccessToken,
		AccessExpires: resp.AccessTokenExpiresAt,
	}, nil
}

// storeAccess writes the access token and its expiry as a pair. Stores without
// batch support get the expiry cleared first, so a partial write reads as expired.
func (m *Manager) storeAccess(ctx context.Context, access, accessExpires string) error {
	if batch, ok := m.store.(kvstore.BatchSetter); ok {
		return batch.SetMany(ctx, map[string]string{
			string(FieldAccess):        access,
			string(FieldAccessExpires): accessExpires,
		})
	}

	if err := m.Set(ctx, FieldAccessExpires, ""); err != nil {
		return err
	}
	if err := m.Set(ctx, FieldAccess, access); err != nil {
		return err
	}
	return m.Set(ctx, FieldAccessExpires, accessExpires)
}

// lookup reads f, mapping an absent value to "".
func (m *Manager) lookup(ctx context.Context, f Field) (string, error) {
	value, err := m.Get(ctx, f)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f, err)
	}
	return value, nil
}

// expiryLayouts are the timestamp formats accepted for stored expiries.
var expiryLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	time.DateTime,
	time.DateOnly,
}

// ParseExpiry parses a stored expiry timestamp. Layouts without a zone
// (e.g. "2025-06-01 12:00:00") are read in the local time zone.
func ParseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
