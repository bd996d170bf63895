package internal

import (
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Upstream.BaseURL = "https://docs.example.com"
	cfg.Upstream.TokenID = "id"
	cfg.Upstream.TokenSecret = "secret"
	return cfg
}

func TestConfig_ValidDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with upstream set should pass: %v", err)
	}
	if cfg.Upstream.Timeout() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Upstream.Timeout())
	}
	if cfg.App.HTTP.Enabled() {
		t.Error("health listener should default to disabled")
	}
}

func TestUpstreamConfig_MissingBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing base_url should fail")
	}
}

func TestUpstreamConfig_BadURL(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.BaseURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("malformed base_url should fail")
	}
}

func TestUpstreamConfig_MissingToken(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.TokenSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing token_secret should fail")
	}
}

func TestCacheConfig_TTL(t *testing.T) {
	c := CacheConfig{Enabled: true, TTLSeconds: 45}
	if c.TTL() != 45*time.Second {
		t.Errorf("ttl = %v", c.TTL())
	}

	c.Enabled = false
	if c.TTL() != 0 {
		t.Errorf("disabled cache ttl = %v, want 0", c.TTL())
	}
}

func TestCacheConfig_TTLBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.TTLSeconds = 4000
	if err := cfg.Validate(); err == nil {
		t.Fatal("ttl above 3600 should fail")
	}
}

func TestConfig_ApplyEnvOverridesFile(t *testing.T) {
	t.Setenv("BOOKSTACK_URL", "https://env.example.com")
	t.Setenv("BOOKSTACK_TOKEN_ID", "env-id")
	t.Setenv("BOOKSTACK_TOKEN_SECRET", "env-secret")

	cfg := validConfig()
	cfg.ApplyEnv()

	if cfg.Upstream.BaseURL != "https://env.example.com" {
		t.Errorf("base_url = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.TokenID != "env-id" || cfg.Upstream.TokenSecret != "env-secret" {
		t.Errorf("tokens = %q / %q", cfg.Upstream.TokenID, cfg.Upstream.TokenSecret)
	}
}

func TestConfig_ApplyEnvLeavesUnsetAlone(t *testing.T) {
	t.Setenv("BOOKSTACK_URL", "")
	t.Setenv("BOOKSTACK_TOKEN_ID", "")
	t.Setenv("BOOKSTACK_TOKEN_SECRET", "")

	cfg := validConfig()
	cfg.ApplyEnv()

	if cfg.Upstream.BaseURL != "https://docs.example.com" {
		t.Errorf("base_url = %q", cfg.Upstream.BaseURL)
	}
}

func TestJournalConfig_Enabled(t *testing.T) {
	j := JournalConfig{}
	if j.Enabled() {
		t.Error("empty path should disable the journal")
	}
	j.Path = "/tmp/libris.db"
	if !j.Enabled() {
		t.Error("set path should enable the journal")
	}
}

func TestHTTPConfig_PortBounds(t *testing.T) {
	cfg := validConfig()
	cfg.App.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("port above 65535 should fail")
	}
}
