// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8970 {
		t.Errorf("Server.Port = %d, want 8970", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want 30s", cfg.Server.Timeout)
	}

	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Errorf("NATS.URL = %q, want nats://127.0.0.1:4222", cfg.NATS.URL)
	}
	if !cfg.NATS.Embedded {
		t.Error("NATS.Embedded should default to true")
	}

	// JWT secret must stay empty so a bare deployment fails loudly
	// instead of running with a known key.
	if cfg.Security.JWTSecret != "" {
		t.Errorf("Security.JWTSecret should be empty by default, got %q", cfg.Security.JWTSecret)
	}
	if cfg.Security.SessionTimeout != 24*time.Hour {
		t.Errorf("Security.SessionTimeout = %v, want 24h", cfg.Security.SessionTimeout)
	}
	if cfg.Security.RateLimitReqs != 120 {
		t.Errorf("Security.RateLimitReqs = %d, want 120", cfg.Security.RateLimitReqs)
	}

	if cfg.Janitor.Interval != 5*time.Minute {
		t.Errorf("Janitor.Interval = %v, want 5m", cfg.Janitor.Interval)
	}
	if cfg.Janitor.Retention != time.Hour {
		t.Errorf("Janitor.Retention = %v, want 1h", cfg.Janitor.Retention)
	}

	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8970}
	if got := s.Addr(); got != "127.0.0.1:8970" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8970", got)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"VIGIL_SERVER_PORT", "server.port"},
		{"VIGIL_SERVER_HOST", "server.host"},
		{"VIGIL_STORE_DIR", "store.dir"},
		{"VIGIL_NATS_URL", "nats.url"},
		{"VIGIL_NATS_EMBEDDED", "nats.embedded"},
		{"VIGIL_SECURITY_JWT_SECRET", "security.jwt_secret"},
		{"VIGIL_SECURITY_RATE_LIMIT_REQS", "security.rate_limit_reqs"},
		{"VIGIL_SECURITY_CORS_ORIGINS", "security.cors_origins"},
		{"VIGIL_LOGGING_LEVEL", "logging.level"},
		{"VIGIL_JANITOR_RETENTION", "janitor.retention"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.env); got != tt.want {
			t.Errorf("envTransform(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

// clearVigilEnv removes any VIGIL_ variables leaking in from the
// test environment and restores them on cleanup.
func clearVigilEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, envPrefix) {
			k, v, _ := strings.Cut(kv, "=")
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	clearVigilEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail without a JWT secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error should mention jwt_secret, got: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearVigilEnv(t)
	t.Setenv("VIGIL_SECURITY_JWT_SECRET", testSecret)
	t.Setenv("VIGIL_SERVER_PORT", "9000")
	t.Setenv("VIGIL_JANITOR_RETENTION", "30m")
	t.Setenv("VIGIL_SECURITY_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Janitor.Retention != 30*time.Minute {
		t.Errorf("Janitor.Retention = %v, want 30m", cfg.Janitor.Retention)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v, want two trimmed origins", cfg.Security.CORSOrigins)
	}
	// Untouched fields keep their defaults.
	if cfg.Janitor.Interval != 5*time.Minute {
		t.Errorf("Janitor.Interval = %v, want default 5m", cfg.Janitor.Interval)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearVigilEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8443
security:
  jwt_secret: ` + testSecret + `
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 8443 {
		t.Errorf("Server.Port = %d, want 8443", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %s/%s, want debug/console", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	clearVigilEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8443
security:
  jwt_secret: ` + testSecret + `
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("VIGIL_SERVER_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want env override 9100", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := defaultConfig()
		c.Security.JWTSecret = testSecret
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"short secret", func(c *Config) { c.Security.JWTSecret = "short" }, "jwt_secret"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad timeout", func(c *Config) { c.Server.Timeout = 0 }, "server.timeout"},
		{"bad nats url", func(c *Config) {
			c.NATS.Embedded = false
			c.NATS.URL = "http://localhost"
		}, "nats.url"},
		{"bad embedded port", func(c *Config) { c.NATS.Port = -1 }, "nats.port"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad rate limit", func(c *Config) { c.Security.RateLimitReqs = 0 }, "rate_limit_reqs"},
		{"bad retention", func(c *Config) { c.Janitor.Retention = 0 }, "janitor.retention"},
		{"bad interval", func(c *Config) { c.Janitor.Interval = -time.Second }, "janitor.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %v should mention %q", err, tt.wantErr)
			}
		})
	}
}
