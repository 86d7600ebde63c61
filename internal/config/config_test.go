package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}

	if cfg.RunnerEnabled() {
		t.Error("Runner should be disabled by default")
	}
	if cfg.ReviewEnabled() {
		t.Error("Review should be disabled by default")
	}
	if cfg.MongoCatalogEnabled() {
		t.Error("Mongo catalog should be disabled by default")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database", func(c *Config) { c.Database = nil }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"zero ping interval", func(c *Config) { c.WebSocket.PingInterval = 0 }},
		{"zero rate limit", func(c *Config) { c.WebSocket.RateLimit = 0 }},
		{"missing broker", func(c *Config) { c.Broker = nil }},
		{"zero broker buffer", func(c *Config) { c.Broker.BufferSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CODEPAIR_HTTP_PORT", "9090")
	t.Setenv("CODEPAIR_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("CODEPAIR_WEBSOCKET_RATE_LIMIT", "50")
	t.Setenv("CODEPAIR_RUNNER_BASE_URL", "https://judge0.example.com")
	t.Setenv("CODEPAIR_OPENAI_API_KEY", "sk-test")
	t.Setenv("CODEPAIR_MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("CODEPAIR_HTTP_READ_TIMEOUT", "45s")

	cfg := LoadFromEnv()

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database path = %q", cfg.Database.Path)
	}
	if cfg.WebSocket.RateLimit != 50 {
		t.Errorf("Rate limit = %d, want 50", cfg.WebSocket.RateLimit)
	}
	if cfg.HTTP.ReadTimeout != 45*time.Second {
		t.Errorf("Read timeout = %v, want 45s", cfg.HTTP.ReadTimeout)
	}
	if !cfg.RunnerEnabled() || !cfg.ReviewEnabled() || !cfg.MongoCatalogEnabled() {
		t.Error("Env-configured integrations should be enabled")
	}
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("CODEPAIR_HTTP_PORT", "not-a-number")
	t.Setenv("CODEPAIR_HTTP_READ_TIMEOUT", "eleventy")

	cfg := LoadFromEnv()
	defaults := DefaultConfig()

	if cfg.HTTP.Port != defaults.HTTP.Port {
		t.Errorf("Invalid port should keep default, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeout != defaults.HTTP.ReadTimeout {
		t.Errorf("Invalid duration should keep default, got %v", cfg.HTTP.ReadTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"database": {"path": "/tmp/file.db", "timeout": "10s"},
		"http": {"port": 9999, "host": "127.0.0.1"},
		"websocket": {"rate_limit": 120, "ping_interval": "15s"},
		"broker": {"buffer_size": 32},
		"runner": {"base_url": "https://judge0.example.com", "api_key": "k", "timeout": "20s"},
		"review": {"api_key": "sk-file", "model": "gpt-4o-mini"},
		"catalog": {"mongo_uri": "mongodb://db:27017", "database": "interviews"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/file.db" || cfg.Database.Timeout != 10*time.Second {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.HTTP.Port != 9999 || cfg.HTTP.Host != "127.0.0.1" {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.WebSocket.RateLimit != 120 || cfg.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("WebSocket = %+v", cfg.WebSocket)
	}
	if cfg.Broker.BufferSize != 32 {
		t.Errorf("Broker buffer = %d", cfg.Broker.BufferSize)
	}
	if cfg.Runner.BaseURL != "https://judge0.example.com" || cfg.Runner.Timeout != 20*time.Second {
		t.Errorf("Runner = %+v", cfg.Runner)
	}
	if cfg.Review.Model != "gpt-4o-mini" || !cfg.ReviewEnabled() {
		t.Errorf("Review = %+v", cfg.Review)
	}
	if cfg.Catalog.Database != "interviews" || !cfg.MongoCatalogEnabled() {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}

	// Unnamed sections keep defaults.
	if cfg.HTTP.ReadTimeout != DefaultConfig().HTTP.ReadTimeout {
		t.Errorf("ReadTimeout = %v, want default", cfg.HTTP.ReadTimeout)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("CODEPAIR_HTTP_PORT", "9090")

	// No file: environment wins over defaults.
	cfg := LoadConfigWithPrecedence("")
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d, want env value 9090", cfg.HTTP.Port)
	}

	// File wins over environment.
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 7070}}`), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	cfg = LoadConfigWithPrecedence(path)
	if cfg.HTTP.Port != 7070 {
		t.Errorf("Port = %d, want file value 7070", cfg.HTTP.Port)
	}

	// A broken file falls back to the environment layer.
	cfg = LoadConfigWithPrecedence("/nonexistent/config.json")
	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d, want env fallback 9090", cfg.HTTP.Port)
	}
}
