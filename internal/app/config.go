package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/florianilch/oauthkeeper/internal/kvstore"
	"github.com/florianilch/oauthkeeper/internal/observability"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the different backends supported for persisted values.
type StorageType string

const (
	StorageTypeMemory  StorageType = "memory"
	StorageTypeFile    StorageType = "file"
	StorageTypeEnv     StorageType = "env"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeRedis   StorageType = "redis"
	StorageTypeSQLite  StorageType = "sqlite"
)

// Default configuration values
const (
	DefaultConfigLogFormat            = LogFormatText
	DefaultConfigTelemetryExporter    = observability.ExporterNone
	DefaultConfigServerHost           = "127.0.0.1"
	DefaultConfigServerPort           = 4180
	DefaultConfigShutdownTimeout      = 5 * time.Second
	DefaultConfigTokenEndpointTimeout = 30 * time.Second
	DefaultConfigStorageType          = StorageTypeFile
	DefaultConfigStorageEnvPrefix     = "OAUTHKEEPER_VALUE_"
	DefaultConfigStorageKeyring       = "oauthkeeper"
	DefaultConfigStorageRedisURL      = "redis://127.0.0.1:6379/0"
	DefaultConfigStorageRedisPrefix   = "oauthkeeper:"
	DefaultConfigStateLength          = 32
)

// TelemetryConfig holds OpenTelemetry log export configuration.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`
	Endpoint string                 `json:"endpoint,omitempty" validate:"omitempty,url"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds the API the proxy forwards to.
type UpstreamConfig struct {
	BaseURL string `json:"base_url" validate:"omitempty,url"`
}

// TokenEndpointConfig describes the authorization server's token endpoint.
type TokenEndpointConfig struct {
	URL      string        `json:"url" validate:"omitempty,url"`
	JSONBody bool          `json:"json_body"` // Send JSON instead of form-encoded requests
	Timeout  time.Duration `json:"timeout"`

	// ExpiryLeeway refreshes this long before the stored expiry (zero = strictly after)
	ExpiryLeeway time.Duration `json:"expiry_leeway" validate:"gte=0"`
}

// StorageConfig describes where persisted values live.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=memory file env keyring redis sqlite"`

	// Backend-specific settings (only the one matching Type is used)
	File           string `json:"file,omitempty"`            // For file storage: path to JSON document
	EnvPrefix      string `json:"env_prefix,omitempty"`      // For env storage: variable name prefix
	KeyringService string `json:"keyring_service,omitempty"` // For keyring storage: service name
	KeyringUser    string `json:"keyring_user,omitempty"`    // For keyring storage: user identifier
	RedisURL       string `json:"redis_url,omitempty"`       // For redis storage: redis:// URL
	RedisPrefix    string `json:"redis_prefix,omitempty"`    // For redis storage: key prefix
	SQLitePath     string `json:"sqlite_path,omitempty"`     // For sqlite storage: database file
}

// NewStore creates a Store from the storage configuration.
// The returned close function releases backend connections.
func (s *StorageConfig) NewStore() (kvstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch s.Type {
	case StorageTypeMemory:
		return kvstore.NewMemoryStore(), noop, nil
	case StorageTypeFile:
		store, err := kvstore.NewFileStore(s.File)
		return store, noop, err
	case StorageTypeEnv:
		store, err := kvstore.NewEnvStore(s.EnvPrefix)
		return store, noop, err
	case StorageTypeKeyring:
		store, err := kvstore.NewKeyringStore(s.KeyringService, s.KeyringUser)
		return store, noop, err
	case StorageTypeRedis:
		opts, err := redis.ParseURL(s.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		store, err := kvstore.NewRedisStore(client, s.RedisPrefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client.Close, nil
	case StorageTypeSQLite:
		store, err := kvstore.NewSQLiteStore(s.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// StateConfig holds authorization flow state settings.
type StateConfig struct {
	Length int `json:"length" validate:"min=1,max=1024"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel      slog.Level          `json:"log_level"`
	LogFormat     LogFormat           `json:"log_format" validate:"oneof=text json"`
	Telemetry     TelemetryConfig     `json:"telemetry"`
	Server        ServerConfig        `json:"server"`
	Shutdown      ShutdownConfig      `json:"shutdown"`
	Upstream      UpstreamConfig      `json:"upstream"`
	TokenEndpoint TokenEndpointConfig `json:"token_endpoint"`
	Storage       StorageConfig       `json:"storage"`
	State         StateConfig         `json:"state"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.TokenEndpoint.Timeout == 0 {
		c.TokenEndpoint.Timeout = DefaultConfigTokenEndpointTimeout
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorageType
	}
	if c.State.Length == 0 {
		c.State.Length = DefaultConfigStateLength
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.file required (auto-detect failed: %w)", err)
			}
			c.Storage.File = filepath.Join(configDir, "oauthkeeper", "store.json")
		}
	case StorageTypeSQLite:
		if c.Storage.SQLitePath == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.sqlite_path required (auto-detect failed: %w)", err)
			}
			c.Storage.SQLitePath = filepath.Join(configDir, "oauthkeeper", "store.db")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" {
			c.Storage.KeyringService = DefaultConfigStorageKeyring
		}
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
	case StorageTypeEnv:
		if c.Storage.EnvPrefix == "" {
			c.Storage.EnvPrefix = DefaultConfigStorageEnvPrefix
		}
	case StorageTypeRedis:
		if c.Storage.RedisURL == "" {
			c.Storage.RedisURL = DefaultConfigStorageRedisURL
		}
		if c.Storage.RedisPrefix == "" {
			c.Storage.RedisPrefix = DefaultConfigStorageRedisPrefix
		}
	case StorageTypeMemory:
		// nothing to configure
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			return errors.New("file path required for file storage")
		}
	case StorageTypeSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite_path required for sqlite storage")
		}
	case StorageTypeEnv:
		if c.Storage.EnvPrefix == "" {
			return errors.New("env_prefix required for env storage")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringService == "" || c.Storage.KeyringUser == "" {
			return errors.New("keyring_service and keyring_user required for keyring storage")
		}
	case StorageTypeRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("redis_url required for redis storage")
		}
	}

	return nil
}

// ValidateServe checks the settings the proxy needs beyond Validate.
func (c *Config) ValidateServe() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url required to start the proxy")
	}
	if c.TokenEndpoint.URL == "" {
		return errors.New("token_endpoint.url required to start the proxy")
	}
	// Refreshing requires writable storage (env is read-only)
	if c.Storage.Type == StorageTypeEnv {
		return errors.New("proxy requires writable storage, env is read-only")
	}
	return nil
}
