// Package config reads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration
type Config struct {
	// Port is the HTTP listen port
	Port string

	// DatabaseURL selects the PostgreSQL rule store; empty keeps rules in memory
	DatabaseURL string

	// RedisURL selects the Redis cooldown tracker; empty keeps cooldowns in memory
	RedisURL string

	// Gateway is the outbound platform API
	Gateway GatewayConfig

	// ActionTimeout bounds a single preset execution
	ActionTimeout time.Duration

	// ObserverCapacity is the number of fired events kept for replay
	ObserverCapacity int

	// RulesCacheTTL is how long a tenant's rule snapshot is served from cache
	RulesCacheTTL time.Duration

	LogLevel string
}

// GatewayConfig contains platform gateway configuration
type GatewayConfig struct {
	URL   string
	Token string
}

// LoadFromEnv loads configuration from environment variables. Unset
// variables take their defaults; malformed numbers and durations are errors.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Port:             "8080",
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ActionTimeout:    10 * time.Second,
		ObserverCapacity: 100,
		RulesCacheTTL:    30 * time.Second,
		LogLevel:         "INFO",
		Gateway: GatewayConfig{
			URL:   os.Getenv("GATEWAY_URL"),
			Token: os.Getenv("GATEWAY_TOKEN"),
		},
	}

	if val := os.Getenv("PORT"); val != "" {
		cfg.Port = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	var errs []error
	if val := os.Getenv("ACTION_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("ACTION_TIMEOUT: %w", err))
		}
		cfg.ActionTimeout = d
	}
	if val := os.Getenv("RULES_CACHE_TTL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("RULES_CACHE_TTL: %w", err))
		}
		cfg.RulesCacheTTL = d
	}
	if val := os.Getenv("OBSERVER_CAPACITY"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("OBSERVER_CAPACITY: %w", err))
		}
		cfg.ObserverCapacity = n
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Port))
	}
	if c.ActionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("action timeout must be positive, got %s", c.ActionTimeout))
	}
	if c.ObserverCapacity <= 0 {
		errs = append(errs, fmt.Errorf("observer capacity must be positive, got %d", c.ObserverCapacity))
	}
	if c.RulesCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("rules cache TTL must not be negative, got %s", c.RulesCacheTTL))
	}
	if c.Gateway.URL != "" {
		u, err := url.Parse(c.Gateway.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid gateway URL %q", c.Gateway.URL))
		}
	}

	return errors.Join(errs...)
}
