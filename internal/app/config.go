package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/sociallogin/internal/blobstore"
	"github.com/florianilch/sociallogin/internal/observability"
	"github.com/florianilch/sociallogin/internal/provider"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the backends supported for the persisted auth state.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeSQLite  StorageType = "sqlite"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigExporter        = observability.ExporterNone
	DefaultConfigStorage         = StorageTypeFile
	DefaultConfigHTTPTimeout     = 30 * time.Second
	DefaultConfigLoginTimeout    = 5 * time.Minute
	DefaultConfigShutdownTimeout = 5 * time.Second

	keyringService = "sociallogin-auth-state"
	appDirName     = "sociallogin"
)

// TelemetryConfig selects where logs and traces are exported.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// StorageConfig describes the durable slot holding the auth state.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=file keyring sqlite"`

	// Backend-specific settings
	File        string `json:"file,omitempty"`         // For file storage: path to the state file
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
	SQLite      string `json:"sqlite,omitempty"`       // For sqlite storage: database path
}

// NewBlobStore creates the blob store described by the configuration.
func (s *StorageConfig) NewBlobStore(ctx context.Context) (blobstore.Store, error) {
	switch s.Type {
	case StorageTypeFile:
		return blobstore.NewFileStore(s.File)
	case StorageTypeKeyring:
		return blobstore.NewKeyringStore(keyringService, s.KeyringUser)
	case StorageTypeSQLite:
		return blobstore.NewSQLiteStore(ctx, s.SQLite, blobstore.DefaultSQLiteKey)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// HTTPConfig holds outbound HTTP settings.
type HTTPConfig struct {
	// Timeout bounds each request to a provider.
	Timeout time.Duration `json:"timeout"`
}

// LoginConfig holds interactive login settings.
type LoginConfig struct {
	// Timeout bounds how long a login waits for the user.
	Timeout time.Duration `json:"timeout"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown of the redirect receiver.
	Timeout time.Duration `json:"timeout"`
}

// ProviderSettings is the raw configuration record of one provider.
type ProviderSettings struct {
	ClientID                 string `json:"client_id"`
	ClientSecret             string `json:"client_secret,omitempty"`
	ClientSecretEnv          string `json:"client_secret_env,omitempty"`
	AuthorizationScope       string `json:"authorization_scope" validate:"required"`
	RedirectURI              string `json:"redirect_uri" validate:"required"`
	AuthorizationEndpointURI string `json:"authorization_endpoint_uri,omitempty" validate:"omitempty,url"`
	TokenEndpointURI         string `json:"token_endpoint_uri,omitempty" validate:"omitempty,url"`
	IssuerURI                string `json:"issuer_uri,omitempty" validate:"omitempty,url"`
	HTTPSRequired            *bool  `json:"https_required,omitempty"`
}

// Resolve turns the settings into a validated provider configuration. A
// secret referenced through client_secret_env is read from the environment.
func (p *ProviderSettings) Resolve(ctx context.Context, name string) (provider.Config, error) {
	providerName, err := provider.ParseName(name)
	if err != nil {
		return provider.Config{}, err
	}

	redirect, err := provider.ParseRedirectURI(p.RedirectURI)
	if err != nil {
		return provider.Config{}, &provider.ConfigurationError{Provider: providerName, Field: "redirect_uri", Reason: err.Error()}
	}

	cfg := provider.Config{
		Provider:      providerName,
		ClientID:      strings.TrimSpace(p.ClientID),
		ClientSecret:  p.ClientSecret,
		Scope:         strings.TrimSpace(p.AuthorizationScope),
		RedirectURI:   redirect,
		IssuerURI:     p.IssuerURI,
		HTTPSRequired: p.HTTPSRequired == nil || *p.HTTPSRequired,
	}

	if p.ClientSecretEnv != "" {
		env, err := blobstore.NewEnvStore(p.ClientSecretEnv)
		if err != nil {
			return provider.Config{}, err
		}
		secret, err := env.Read(ctx)
		if err != nil {
			return provider.Config{}, &provider.ConfigurationError{Provider: providerName, Field: "client_secret_env", Reason: err.Error()}
		}
		cfg.ClientSecret = secret
	}

	endpoints := []struct {
		field string
		raw   string
		dst   **url.URL
	}{
		{"authorization_endpoint_uri", p.AuthorizationEndpointURI, &cfg.AuthEndpoint},
		{"token_endpoint_uri", p.TokenEndpointURI, &cfg.TokenEndpoint},
	}
	for _, e := range endpoints {
		if e.raw == "" {
			continue
		}
		u, err := url.Parse(e.raw)
		if err != nil {
			return provider.Config{}, &provider.ConfigurationError{Provider: providerName, Field: e.field, Reason: "could not be parsed"}
		}
		*e.dst = u
	}

	if err := cfg.Validate(); err != nil {
		return provider.Config{}, err
	}
	return cfg, nil
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
	Login     LoginConfig     `json:"login"`
	Shutdown  ShutdownConfig  `json:"shutdown"`

	Providers map[string]ProviderSettings `json:"providers" validate:"dive"`
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
		c.Telemetry.Exporter = DefaultConfigExporter
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorage
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultConfigHTTPTimeout
	}
	if c.Login.Timeout == 0 {
		c.Login.Timeout = DefaultConfigLoginTimeout
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.file required (auto-detect failed: %w)", err)
			}
			c.Storage.File = filepath.Join(configDir, appDirName, "state.json")
		}
	case StorageTypeSQLite:
		if c.Storage.SQLite == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.sqlite required (auto-detect failed: %w)", err)
			}
			c.Storage.SQLite = filepath.Join(configDir, appDirName, "state.db")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
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
	case StorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case StorageTypeSQLite:
		if c.Storage.SQLite == "" {
			return errors.New("database path required for sqlite storage")
		}
	}

	for name, settings := range c.Providers {
		if _, err := provider.ParseName(name); err != nil {
			return err
		}
		if settings.ClientSecret != "" && settings.ClientSecretEnv != "" {
			return fmt.Errorf("providers.%s: client_secret and client_secret_env are mutually exclusive", name)
		}
	}

	return nil
}

// ProviderConfig resolves the named provider's settings.
func (c *Config) ProviderConfig(ctx context.Context, name string) (provider.Config, error) {
	settings, ok := c.Providers[strings.ToLower(name)]
	if !ok {
		return provider.Config{}, &provider.ConfigurationError{Field: "providers", Reason: fmt.Sprintf("has no entry for %q", name)}
	}
	return settings.Resolve(ctx, name)
}
