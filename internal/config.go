package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Upstream UpstreamConfig    `yaml:"upstream"`
	Cache    CacheConfig       `yaml:"cache"`
	Images   ImagesConfig      `yaml:"images"`
	Journal  JournalConfig     `yaml:"journal"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Upstream.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return c.Images.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the health listener configuration. Port 0 disables it,
// which is the right choice when the process runs purely over stdio.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the listen address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Enabled reports whether the health listener should start.
func (c *HTTPConfig) Enabled() bool { return c.Port > 0 }

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}

// UpstreamConfig holds the BookStack instance coordinates. The token pair is
// assumed pre-provisioned; no auth flow is implemented.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	TokenID        string `yaml:"token_id"`
	TokenSecret    string `yaml:"token_secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call timeout.
func (c *UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the upstream configuration.
func (c *UpstreamConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.TokenID, validation.Required),
		validation.Field(&c.TokenSecret, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(1), validation.Max(300)),
	)
}

// CacheConfig controls the list-response cache.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// TTL returns the effective TTL; zero when the cache is disabled.
func (c *CacheConfig) TTL() time.Duration {
	if !c.Enabled {
		return 0
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTLSeconds, validation.Min(0), validation.Max(3600)),
	)
}

// ImagesConfig bounds image payload handling.
type ImagesConfig struct {
	MaxBytes            int `yaml:"max_bytes"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

// FetchTimeout returns the remote-URL fetch timeout.
func (c *ImagesConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Validate validates the image limits.
func (c *ImagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Min(1)),
		validation.Field(&c.FetchTimeoutSeconds, validation.Min(1), validation.Max(300)),
	)
}

// JournalConfig enables the local invocation journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether journaling is on.
func (c *JournalConfig) Enabled() bool { return c.Path != "" }

// ApplyEnv overlays the credential-bearing settings from the environment.
// Environment variables win over the config file so tokens can stay out of
// files entirely.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BOOKSTACK_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("BOOKSTACK_TOKEN_ID"); v != "" {
		c.Upstream.TokenID = v
	}
	if v := os.Getenv("BOOKSTACK_TOKEN_SECRET"); v != "" {
		c.Upstream.TokenSecret = v
	}
}

// NewDefaultConfig returns a Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP:     HTTPConfig{Port: 0},
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 30,
		},
		Images: ImagesConfig{
			MaxBytes:            50 << 20,
			FetchTimeoutSeconds: 30,
		},
	}
}
