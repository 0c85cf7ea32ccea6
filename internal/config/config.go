// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Package config loads and validates the Vigil server configuration.
//
// Configuration is layered with clear precedence, highest last:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (VIGIL_ prefix)
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the Vigil server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	NATS     NATSConfig     `koanf:"nats"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	Janitor  JanitorConfig  `koanf:"janitor"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig controls the embedded Badger store.
type StoreConfig struct {
	// Dir is the on-disk location of the store. Empty runs in-memory,
	// which loses all data on restart and is only suitable for tests.
	Dir string `koanf:"dir"`
}

// NATSConfig controls the fan-out broker connection.
type NATSConfig struct {
	URL string `koanf:"url"`

	// Embedded starts an in-process NATS server instead of connecting
	// to an external one. URL is ignored when set.
	Embedded bool   `koanf:"embedded"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
}

// SecurityConfig controls authentication and request limiting.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	SessionTimeout  time.Duration `koanf:"session_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// JanitorConfig controls signal buffer retention.
type JanitorConfig struct {
	Interval  time.Duration `koanf:"interval"`
	Retention time.Duration `koanf:"retention"`
}

// defaultConfig returns the built-in defaults. Every field a fresh
// deployment can reasonably run with is set here; required secrets
// stay empty and fail validation until provided.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8970,
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Dir: "/data/vigil",
		},
		NATS: NATSConfig{
			URL:      "nats://127.0.0.1:4222",
			Embedded: true,
			Host:     "127.0.0.1",
			Port:     4222,
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			SessionTimeout:  24 * time.Hour,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Janitor: JanitorConfig{
			Interval:  5 * time.Minute,
			Retention: time.Hour,
		},
	}
}

// minJWTSecretLen matches the HS256 key size floor enforced by the
// auth package.
const minJWTSecretLen = 32

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true,
}

// Validate checks the configuration for values the server cannot
// start with. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}

	if len(c.Security.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("security.jwt_secret must be at least %d characters", minJWTSecretLen)
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("security.session_timeout must be positive, got %v", c.Security.SessionTimeout)
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("security.rate_limit_reqs must be at least 1, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("security.rate_limit_window must be positive, got %v", c.Security.RateLimitWindow)
	}

	if c.NATS.Embedded {
		if c.NATS.Port < 1 || c.NATS.Port > 65535 {
			return fmt.Errorf("nats.port must be 1-65535, got %d", c.NATS.Port)
		}
	} else {
		u, err := url.Parse(c.NATS.URL)
		if err != nil || u.Scheme != "nats" || u.Host == "" {
			return fmt.Errorf("nats.url must be a nats:// URL, got %q", c.NATS.URL)
		}
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Janitor.Interval <= 0 {
		return fmt.Errorf("janitor.interval must be positive, got %v", c.Janitor.Interval)
	}
	if c.Janitor.Retention <= 0 {
		return fmt.Errorf("janitor.retention must be positive, got %v", c.Janitor.Retention)
	}

	return nil
}
