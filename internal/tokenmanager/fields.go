package tokenmanager

import (
	"context"
	"fmt"
)

// Field names a persisted value. The string is the storage key.
type Field string

const (
	FieldRefresh              Field = "refresh"
	FieldAccess               Field = "access"
	FieldAccessExpires        Field = "accessExpires"
	FieldClientID             Field = "clientID"
	FieldClientRedirect       Field = "clientRedirect"
	FieldExternClientID       Field = "externClientID"
	FieldExternClientRedirect Field = "externClientRedirect"
	FieldState                Field = "state"
	FieldCode                 Field = "code"
)

// Fields lists every persisted field in display order.
var Fields = []Field{
	FieldRefresh,
	FieldAccess,
	FieldAccessExpires,
	FieldClientID,
	FieldClientRedirect,
	FieldExternClientID,
	FieldExternClientRedirect,
	FieldState,
	FieldCode,
}

// ParseField returns the Field whose key is s.
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Secret reports whether the field holds a credential that must not be displayed.
func (f Field) Secret() bool {
	switch f {
	case FieldRefresh, FieldAccess, FieldCode:
		return true
	default:
		return false
	}
}

// Get returns the stored value of f, or kvstore.ErrNotFound if it was never set.
func (m *Manager) Get(ctx context.Context, f Field) (string, error) {
	return m.store.Get(ctx, string(f))
}

// Set overwrites the stored value of f. No validation is applied.
func (m *Manager) Set(ctx context.Context, f Field, value string) error {
	return m.store.Set(ctx, string(f), value)
}

// Refresh returns the stored refresh token.
func (m *Manager) Refresh(ctx context.Context) (string, error) { return m.Get(ctx, FieldRefresh) }

// SetRefresh stores the refresh token used for future exchanges.
func (m *Manager) SetRefresh(ctx context.Context, refresh string) error {
	return m.Set(ctx, FieldRefresh, refresh)
}

// Access returns the stored access token without checking its expiry.
func (m *Manager) Access(ctx context.Context) (string, error) { return m.Get(ctx, FieldAccess) }

// SetAccess stores an access token. Pair it with SetAccessExpires.
func (m *Manager) SetAccess(ctx context.Context, access string) error {
	return m.Set(ctx, FieldAccess, access)
}

// AccessExpires returns the stored access token expiry as written.
func (m *Manager) AccessExpires(ctx context.Context) (string, error) {
	return m.Get(ctx, FieldAccessExpires)
}

// SetAccessExpires stores the access token expiry.
func (m *Manager) SetAccessExpires(ctx context.Context, accessExpires string) error {
	return m.Set(ctx, FieldAccessExpires, accessExpires)
}

// ClientID returns the client identifier sent with refresh requests.
func (m *Manager) ClientID(ctx context.Context) (string, error) { return m.Get(ctx, FieldClientID) }

// SetClientID stores the client identifier.
func (m *Manager) SetClientID(ctx context.Context, clientID string) error {
	return m.Set(ctx, FieldClientID, clientID)
}

// ClientRedirect returns the redirect URI registered for this client.
func (m *Manager) ClientRedirect(ctx context.Context) (string, error) {
	return m.Get(ctx, FieldClientRedirect)
}

// SetClientRedirect stores the client redirect URI.
func (m *Manager) SetClientRedirect(ctx context.Context, clientRedirect string) error {
	return m.Set(ctx, FieldClientRedirect, clientRedirect)
}

// ExternClientID returns the external client identifier.
func (m *Manager) ExternClientID(ctx context.Context) (string, error) {
	return m.Get(ctx, FieldExternClientID)
}

// SetExternClientID stores the external client identifier.
func (m *Manager) SetExternClientID(ctx context.Context, externClientID string) error {
	return m.Set(ctx, FieldExternClientID, externClientID)
}

// ExternClientRedirect returns the external client redirect URI.
func (m *Manager) ExternClientRedirect(ctx context.Context) (string, error) {
	return m.Get(ctx, FieldExternClientRedirect)
}

// SetExternClientRedirect stores the external client redirect URI.
func (m *Manager) SetExternClientRedirect(ctx context.Context, externClientRedirect string) error {
	return m.Set(ctx, FieldExternClientRedirect, externClientRedirect)
}

// State returns the stored authorization state.
func (m *Manager) State(ctx context.Context) (string, error) { return m.Get(ctx, FieldState) }

// SetState stores an authorization state, typically from GenerateState.
func (m *Manager) SetState(ctx context.Context, state string) error {
	return m.Set(ctx, FieldState, state)
}

// Code returns the stored authorization code.
func (m *Manager) Code(ctx context.Context) (string, error) { return m.Get(ctx, FieldCode) }

// SetCode stores an authorization code.
func (m *Manager) SetCode(ctx context.Context, code string) error {
	return m.Set(ctx, FieldCode, code)
}
