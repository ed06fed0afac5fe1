package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.True(t, cfg.Qdrant.Enabled)
	assert.Equal(t, 1024, cfg.Embedding.DefaultDimension)
	assert.Equal(t, []string{"documents", "employees", "users", "chat_messages"}, cfg.Retrieval.Collections)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging",
		},
		{
			name:    "qdrant host required when enabled",
			mutate:  func(c *Config) { c.Qdrant.Host = "" },
			wantErr: "qdrant host is required",
		},
		{
			name: "qdrant host not required when disabled",
			mutate: func(c *Config) {
				c.Qdrant.Enabled = false
				c.Qdrant.Host = ""
			},
		},
		{
			name:    "non-positive dimension",
			mutate:  func(c *Config) { c.Embedding.DefaultDimension = 0 },
			wantErr: "dimension must be > 0",
		},
		{
			name:    "non-positive top_k",
			mutate:  func(c *Config) { c.Retrieval.TopK = -1 },
			wantErr: "top_k must be > 0",
		},
		{
			name:    "no collections",
			mutate:  func(c *Config) { c.Retrieval.Collections = nil },
			wantErr: "at least one retrieval collection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "qwen-plus", cfg.LLM.Model)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
qdrant:
  host: qdrant.internal
  request_timeout: 5s
retrieval:
  top_k: 8
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 5*time.Second, cfg.Qdrant.RequestTimeout)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, "localhost", cfg.Server.Host, "untouched keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600))

	t.Setenv("KNOWLEDGED_SERVER_PORT", "7777")
	t.Setenv("KNOWLEDGED_LLM_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey, "multi-word keys keep their underscores")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	t.Setenv("KNOWLEDGED_SERVER_PORT", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestEnvTransformer(t *testing.T) {
	assert.Equal(t, "server.port", envTransformer("KNOWLEDGED_SERVER_PORT"))
	assert.Equal(t, "llm.api_key", envTransformer("KNOWLEDGED_LLM_API_KEY"))
	assert.Equal(t, "embedding.default_dimension", envTransformer("KNOWLEDGED_EMBEDDING_DEFAULT_DIMENSION"))
}
