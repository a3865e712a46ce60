package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Routes    []RouteConfig   `json:"routes"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Health    HealthConfig    `json:"health"`
	Breaker   BreakerConfig   `json:"breaker"`
	Redis     RedisConfig     `json:"redis"`
	Postgres  PostgresConfig  `json:"postgres"`
	Admin     AdminConfig     `json:"admin"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

// RouteConfig maps a path prefix to one upstream service.
type RouteConfig struct {
	Name            string `json:"name"`
	Prefix          string `json:"prefix"`
	Upstream        string `json:"upstream"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	RetryIdempotent bool   `json:"retry_idempotent"`
	StripPrefix     bool   `json:"strip_prefix"`
	RequiredScope   string `json:"required_scope,omitempty"`
}

type AuthConfig struct {
	// Secret comes from JWT_SECRET, never from the config file.
	Secret        string   `json:"-"`
	ExcludedPaths []string `json:"excluded_paths"`
}

type WindowLimits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// RateLimitConfig holds separate ceilings for anonymous (per-IP) and
// authenticated (per-subject) traffic.
type RateLimitConfig struct {
	Anonymous     WindowLimits `json:"anonymous"`
	Authenticated WindowLimits `json:"authenticated"`
}

type HealthConfig struct {
	Endpoint        string `json:"endpoint"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// BreakerConfig tunes the per-upstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `json:"failure_threshold"`
	RecoverySeconds  int `json:"recovery_seconds"`
}

func (b BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(b.RecoverySeconds) * time.Second
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

type PostgresConfig struct {
	// DSN comes from POSTGRES_DSN; request logging is disabled when empty.
	DSN string `json:"-"`
}

type AdminConfig struct {
	// SecretHash is a bcrypt hash of the admin secret, from ADMIN_SECRET_HASH.
	// Admin endpoints are disabled when empty.
	SecretHash string `json:"-"`
}

func (r RouteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

func (h HealthConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

func (h HealthConfig) CacheTTL() time.Duration {
	return time.Duration(h.CacheTTLSeconds) * time.Second
}

func (h HealthConfig) Interval() time.Duration {
	return time.Duration(h.IntervalSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8000"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	for i := range c.Routes {
		if c.Routes[i].TimeoutSeconds <= 0 {
			c.Routes[i].TimeoutSeconds = 30
		}
	}
	if c.RateLimit.Anonymous.PerMinute <= 0 {
		c.RateLimit.Anonymous.PerMinute = 60
	}
	if c.RateLimit.Anonymous.PerHour <= 0 {
		c.RateLimit.Anonymous.PerHour = 1000
	}
	if c.RateLimit.Authenticated.PerMinute <= 0 {
		c.RateLimit.Authenticated.PerMinute = 120
	}
	if c.RateLimit.Authenticated.PerHour <= 0 {
		c.RateLimit.Authenticated.PerHour = 5000
	}
	if c.Health.Endpoint == "" {
		c.Health.Endpoint = "/health"
	}
	if c.Health.TimeoutSeconds <= 0 {
		c.Health.TimeoutSeconds = 5
	}
	if c.Health.CacheTTLSeconds <= 0 {
		c.Health.CacheTTLSeconds = 30
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.RecoverySeconds <= 0 {
		c.Breaker.RecoverySeconds = 60
	}
	if len(c.Auth.ExcludedPaths) == 0 {
		c.Auth.ExcludedPaths = []string{
			"/",
			"/health",
			"/gateway",
			"/docs",
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/refresh",
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.Redis.Port = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("ADMIN_SECRET_HASH"); v != "" {
		c.Admin.SecretHash = v
	}
}

func (c *Config) Validate() error {
	if len(c.Routes) == 0 {
		return errors.New("at least one route is required")
	}

	seen := make(map[string]bool)
	for _, route := range c.Routes {
		if route.Name == "" {
			return fmt.Errorf("route %q: name is required", route.Prefix)
		}
		if !strings.HasPrefix(route.Prefix, "/") {
			return fmt.Errorf("route %q: prefix must start with /", route.Name)
		}
		if seen[route.Prefix] {
			return fmt.Errorf("route %q: duplicate prefix %s", route.Name, route.Prefix)
		}
		seen[route.Prefix] = true

		u, err := url.Parse(route.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("route %q: invalid upstream URL %q", route.Name, route.Upstream)
		}
	}

	if c.Auth.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}

	return nil
}
