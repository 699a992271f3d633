package kvstore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// EnvStore provides read-only access to values stored in environment variables.
// Key "accessExpires" with prefix "OAUTHKEEPER_" is read from OAUTHKEEPER_ACCESS_EXPIRES.
// Suitable for inspecting bootstrap values but not for refreshing (requires writable storage).
type EnvStore struct {
	prefix string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading variables with the given prefix.
func NewEnvStore(prefix string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}

	return &EnvStore{
		prefix: prefix,
	}, nil
}

// Get returns the value from the environment. Unset or empty variables read as ErrNotFound.
func (e *EnvStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, ok := os.LookupEnv(e.VarName(key))
	if !ok || value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Set is not supported for environment variables (they are read-only).
func (e *EnvStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("set %s: environment variable storage: %w", key, ErrReadOnly)
}

// VarName returns the environment variable name for key.
func (e *EnvStore) VarName(key string) string {
	var sb strings.Builder
	sb.WriteString(e.prefix)

	runes := []rune(key)
	for i, r := range runes {
		// Word boundary on lower→upper transitions (clientID → CLIENT_ID)
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			sb.WriteByte('_')
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}
