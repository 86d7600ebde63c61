package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds system-wide settings. Runner, Review and Catalog are
// optional integrations: left unconfigured, the corresponding features
// are disabled and the rest of the service runs normally.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Broker    *BrokerConfig    `json:"broker"`
	Runner    *RunnerConfig    `json:"runner"`
	Review    *ReviewConfig    `json:"review"`
	Catalog   *CatalogConfig   `json:"catalog"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// RateLimit is the max inbound patch frames per participant per minute.
	RateLimit int `json:"rate_limit"`
}

type BrokerConfig struct {
	// BufferSize is the per-subscriber snapshot queue depth.
	BufferSize int `json:"buffer_size"`
}

// RunnerConfig configures the code execution backend. Disabled when
// BaseURL is empty.
type RunnerConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	APIHost string        `json:"api_host"`
	Timeout time.Duration `json:"timeout"`
}

// ReviewConfig configures the AI reviewer. Disabled when APIKey is empty.
type ReviewConfig struct {
	APIKey  string        `json:"api_key"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

// CatalogConfig configures the question catalog. With an empty MongoURI
// the built-in static catalog serves questions instead.
type CatalogConfig struct {
	MongoURI   string        `json:"mongo_uri"`
	Database   string        `json:"database"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout"`
}

// DefaultConfig returns production-ready defaults: local SQLite, HTTP on
// 8080, 30s heartbeat, built-in question catalog, execution and review
// disabled.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./codepair.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			RateLimit:    600,
		},
		Broker: &BrokerConfig{
			BufferSize: 16,
		},
		Runner: &RunnerConfig{
			Timeout: 30 * time.Second,
		},
		Review: &ReviewConfig{
			Model:   "gpt-4o",
			Timeout: 60 * time.Second,
		},
		Catalog: &CatalogConfig{
			Database:   "codepair",
			Collection: "questions",
			Timeout:    10 * time.Second,
		},
	}
}

// Validate checks that the configuration can run.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.RateLimit <= 0 {
		return fmt.Errorf("WebSocket rate limit must be positive")
	}

	if c.Broker == nil {
		return fmt.Errorf("broker configuration is required")
	}
	if c.Broker.BufferSize <= 0 {
		return fmt.Errorf("broker buffer size must be positive")
	}

	return nil
}

// RunnerEnabled reports whether a code execution backend is configured.
func (c *Config) RunnerEnabled() bool {
	return c.Runner != nil && c.Runner.BaseURL != ""
}

// ReviewEnabled reports whether the AI reviewer is configured.
func (c *Config) ReviewEnabled() bool {
	return c.Review != nil && c.Review.APIKey != ""
}

// MongoCatalogEnabled reports whether questions come from MongoDB.
func (c *Config) MongoCatalogEnabled() bool {
	return c.Catalog != nil && c.Catalog.MongoURI != ""
}

// LoadFromEnv builds a config from defaults overridden by CODEPAIR_*
// environment variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("CODEPAIR_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("CODEPAIR_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if readTimeout := os.Getenv("CODEPAIR_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("CODEPAIR_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if dbPath := os.Getenv("CODEPAIR_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("CODEPAIR_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	if pingInterval := os.Getenv("CODEPAIR_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if rateLimit := os.Getenv("CODEPAIR_WEBSOCKET_RATE_LIMIT"); rateLimit != "" {
		if limit, err := strconv.Atoi(rateLimit); err == nil {
			config.WebSocket.RateLimit = limit
		}
	}

	if bufferSize := os.Getenv("CODEPAIR_BROKER_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.Broker.BufferSize = size
		}
	}

	if baseURL := os.Getenv("CODEPAIR_RUNNER_BASE_URL"); baseURL != "" {
		config.Runner.BaseURL = baseURL
	}
	if apiKey := os.Getenv("CODEPAIR_RUNNER_API_KEY"); apiKey != "" {
		config.Runner.APIKey = apiKey
	}
	if apiHost := os.Getenv("CODEPAIR_RUNNER_API_HOST"); apiHost != "" {
		config.Runner.APIHost = apiHost
	}

	if apiKey := os.Getenv("CODEPAIR_OPENAI_API_KEY"); apiKey != "" {
		config.Review.APIKey = apiKey
	}
	if model := os.Getenv("CODEPAIR_REVIEW_MODEL"); model != "" {
		config.Review.Model = model
	}

	if mongoURI := os.Getenv("CODEPAIR_MONGO_URI"); mongoURI != "" {
		config.Catalog.MongoURI = mongoURI
	}
	if database := os.Getenv("CODEPAIR_MONGO_DATABASE"); database != "" {
		config.Catalog.Database = database
	}
	if collection := os.Getenv("CODEPAIR_MONGO_COLLECTION"); collection != "" {
		config.Catalog.Collection = collection
	}

	return config
}

// ConfigFile mirrors Config for JSON parsing, with durations as strings.
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Broker    *BrokerConfig        `json:"broker"`
	Runner    *RunnerConfigFile    `json:"runner"`
	Review    *ReviewConfigFile    `json:"review"`
	Catalog   *CatalogConfigFile   `json:"catalog"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	RateLimit    int    `json:"rate_limit"`
}

type RunnerConfigFile struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	APIHost string `json:"api_host"`
	Timeout string `json:"timeout"`
}

type ReviewConfigFile struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	Timeout string `json:"timeout"`
}

type CatalogConfigFile struct {
	MongoURI   string `json:"mongo_uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
	Timeout    string `json:"timeout"`
}

// LoadFromFile loads configuration from a JSON file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		setDuration(&config.Database.Timeout, configFile.Database.Timeout)
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		setDuration(&config.HTTP.ReadTimeout, configFile.HTTP.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, configFile.HTTP.WriteTimeout)
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.RateLimit > 0 {
			config.WebSocket.RateLimit = configFile.WebSocket.RateLimit
		}
		setDuration(&config.WebSocket.PingInterval, configFile.WebSocket.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, configFile.WebSocket.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, configFile.WebSocket.WriteTimeout)
	}

	if configFile.Broker != nil && configFile.Broker.BufferSize > 0 {
		config.Broker.BufferSize = configFile.Broker.BufferSize
	}

	if configFile.Runner != nil {
		if configFile.Runner.BaseURL != "" {
			config.Runner.BaseURL = configFile.Runner.BaseURL
		}
		if configFile.Runner.APIKey != "" {
			config.Runner.APIKey = configFile.Runner.APIKey
		}
		if configFile.Runner.APIHost != "" {
			config.Runner.APIHost = configFile.Runner.APIHost
		}
		setDuration(&config.Runner.Timeout, configFile.Runner.Timeout)
	}

	if configFile.Review != nil {
		if configFile.Review.APIKey != "" {
			config.Review.APIKey = configFile.Review.APIKey
		}
		if configFile.Review.Model != "" {
			config.Review.Model = configFile.Review.Model
		}
		setDuration(&config.Review.Timeout, configFile.Review.Timeout)
	}

	if configFile.Catalog != nil {
		if configFile.Catalog.MongoURI != "" {
			config.Catalog.MongoURI = configFile.Catalog.MongoURI
		}
		if configFile.Catalog.Database != "" {
			config.Catalog.Database = configFile.Catalog.Database
		}
		if configFile.Catalog.Collection != "" {
			config.Catalog.Collection = configFile.Catalog.Collection
		}
		setDuration(&config.Catalog.Timeout, configFile.Catalog.Timeout)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence loads configuration as file > environment >
// defaults. A missing or invalid file falls back silently to the
// environment layer.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}

func setDuration(dst *time.Duration, value string) {
	if value == "" {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		*dst = parsed
	}
}
