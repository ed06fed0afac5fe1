// Package config provides configuration loading for knowledged.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/knowledged/internal/logging"
)

// envPrefix is the prefix for environment variable overrides,
// e.g. KNOWLEDGED_SERVER_PORT -> server.port.
const envPrefix = "KNOWLEDGED_"

// Config is the root configuration for the daemon.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Qdrant    QdrantConfig    `koanf:"qdrant"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	LLM       LLMConfig       `koanf:"llm"`
	Store     StoreConfig     `koanf:"store"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// QdrantConfig holds vector store connection settings.
// Enabled=false leaves the daemon running without a vector store:
// ingestion becomes a no-op and retrieval reports unavailable.
type QdrantConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	UseTLS         bool          `koanf:"use_tls"`
	APIKey         string        `koanf:"api_key"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	// DefaultDimension is reported before the model's real output length
	// has been observed.
	DefaultDimension int `koanf:"default_dimension"`
}

// LLMConfig holds language model endpoint settings.
type LLMConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
}

// StoreConfig holds record store settings.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `koanf:"path"`
}

// RetrievalConfig holds multi-collection search settings.
type RetrievalConfig struct {
	// Collections is the ordered list of logical collections searched per query.
	Collections []string `koanf:"collections"`
	// TopK is the default per-collection result budget.
	TopK int `koanf:"top_k"`
}

// NewDefaultConfig returns config with defaults for local development.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Logging: *logging.NewDefaultConfig(),
		Qdrant: QdrantConfig{
			Enabled:        true,
			Host:           "localhost",
			Port:           6334,
			RequestTimeout: 30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL:          "http://localhost:8080",
			Model:            "Qwen/Qwen3-Embedding-0.6B",
			DefaultDimension: 1024,
		},
		LLM: LLMConfig{
			BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Model:   "qwen-plus",
		},
		Store: StoreConfig{
			Path: "knowledged.db",
		},
		Retrieval: RetrievalConfig{
			Collections: []string{"documents", "employees", "users", "chat_messages"},
			TopK:        4,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Qdrant.Enabled {
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required when qdrant is enabled")
		}
		if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port)
		}
	}
	if c.Embedding.DefaultDimension <= 0 {
		return fmt.Errorf("embedding default dimension must be > 0")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be > 0")
	}
	if len(c.Retrieval.Collections) == 0 {
		return fmt.Errorf("at least one retrieval collection is required")
	}
	return nil
}

// Load reads configuration from an optional YAML file, then overrides with
// KNOWLEDGED_* environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (KNOWLEDGED_QDRANT_HOST, KNOWLEDGED_LLM_API_KEY, ...)
//  2. YAML config file
//  3. Defaults
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	cfg := NewDefaultConfig()

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envTransformer maps KNOWLEDGED_QDRANT_API_KEY to qdrant.api_key.
// Only the first underscore becomes a section separator; the rest stay
// underscores so multi-word keys round-trip.
func envTransformer(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}
