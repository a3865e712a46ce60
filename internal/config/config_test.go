package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const validConfig = `{
  "server": {"port": "8000"},
  "routes": [
    {"name": "auth", "prefix": "/api/auth", "upstream": "http://localhost:3001", "timeout_seconds": 30},
    {"name": "users", "prefix": "/api/users", "upstream": "http://localhost:3002"}
  ]
}`

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(cfg.Routes))
	}
	if cfg.Routes[1].TimeoutSeconds != 30 {
		t.Errorf("default timeout = %d, want 30", cfg.Routes[1].TimeoutSeconds)
	}
	if cfg.Auth.Secret != "secret" {
		t.Errorf("secret not taken from env")
	}
	if cfg.RateLimit.Anonymous.PerMinute != 60 {
		t.Errorf("default anonymous per-minute = %d, want 60", cfg.RateLimit.Anonymous.PerMinute)
	}
	if cfg.Health.CacheTTLSeconds != 30 {
		t.Errorf("default health cache TTL = %d, want 30", cfg.Health.CacheTTLSeconds)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.RecoverySeconds != 60 {
		t.Errorf("default breaker = %+v, want threshold 5 / recovery 60s", cfg.Breaker)
	}
	if len(cfg.Auth.ExcludedPaths) == 0 {
		t.Error("default exclusion list is empty")
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(writeConfig(t, validConfig)); err == nil {
		t.Fatal("expected error for missing JWT_SECRET")
	}
}

func TestLoadRejectsDuplicatePrefix(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load(writeConfig(t, `{
  "routes": [
    {"name": "a", "prefix": "/api/x", "upstream": "http://localhost:3001"},
    {"name": "b", "prefix": "/api/x", "upstream": "http://localhost:3002"}
  ]
}`))
	if err == nil || !strings.Contains(err.Error(), "duplicate prefix") {
		t.Fatalf("err = %v, want duplicate prefix error", err)
	}
}

func TestLoadRejectsBadUpstreamURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load(writeConfig(t, `{
  "routes": [
    {"name": "a", "prefix": "/api/x", "upstream": "not a url"}
  ]
}`))
	if err == nil || !strings.Contains(err.Error(), "invalid upstream URL") {
		t.Fatalf("err = %v, want invalid upstream URL error", err)
	}
}

func TestLoadRejectsNoRoutes(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	if _, err := Load(writeConfig(t, `{"routes": []}`)); err == nil {
		t.Fatal("expected error for empty route list")
	}
}

func TestLoadRejectsPrefixWithoutSlash(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load(writeConfig(t, `{
  "routes": [
    {"name": "a", "prefix": "api/x", "upstream": "http://localhost:3001"}
  ]
}`))
	if err == nil || !strings.Contains(err.Error(), "must start with /") {
		t.Fatalf("err = %v, want prefix error", err)
	}
}

func TestRedisAddr(t *testing.T) {
	if addr := (RedisConfig{}).Addr(); addr != "" {
		t.Errorf("empty host Addr() = %q, want empty", addr)
	}
	if addr := (RedisConfig{Host: "localhost"}).Addr(); addr != "localhost:6379" {
		t.Errorf("Addr() = %q, want localhost:6379", addr)
	}
	if addr := (RedisConfig{Host: "cache", Port: "6380"}).Addr(); addr != "cache:6380" {
		t.Errorf("Addr() = %q, want cache:6380", addr)
	}
}
