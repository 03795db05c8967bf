package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, "embedding:\n  provider: openai\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 3, cfg.Embedding.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)

	assert.Equal(t, 400, cfg.Split.TargetTokens)
	assert.Equal(t, 800, cfg.Split.MaxTokens)
	assert.Equal(t, 2, cfg.Split.SentenceOverlap)

	assert.True(t, cfg.Vector.Enabled)
	assert.Equal(t, "local", cfg.Vector.Backend)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.Equal(t, 200, cfg.Search.SnippetLimit)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfigFile(t, `
embedding:
  provider: gemini
  model: text-embedding-004
  dimension: 768
  timeout: 10s
split:
  target_tokens: 200
vector:
  enabled: false
  backend: milvus
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Embedding.Provider)
	assert.Equal(t, "text-embedding-004", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 10*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 200, cfg.Split.TargetTokens)
	assert.False(t, cfg.Vector.Enabled)
	assert.Equal(t, "milvus", cfg.Vector.Backend)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigEnvSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	path := writeConfigFile(t, "embedding:\n  provider: openai\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
}
