package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t, "PORT", "MONGODB_URI", "REPOS_DIR", "CHUNK_SIZE", "CHUNK_OVERLAP",
		"SUPPORTED_EXTENSIONS", "EXCLUDE_GLOBS", "RETRIEVAL_TOP_K", "CLONE_TIMEOUT_SEC",
		"EMBEDDING_PROVIDER", "GITHUB_PREFLIGHT", "MAX_REPO_SIZE_MB", "MAX_FILE_SIZE_BYTES")

	cfg := FromEnv()

	assert.Equal(t, "8000", cfg.Port)
	assert.Empty(t, cfg.MongoURI)
	assert.Equal(t, "repos", cfg.ReposDir)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 100, cfg.MaxRepoSizeMB)
	assert.Equal(t, int64(1024*1024), cfg.MaxFileSizeBytes)
	assert.Equal(t, 300*time.Second, cfg.CloneTimeout)
	assert.Equal(t, ProviderVertex, cfg.EmbeddingProvider)
	assert.True(t, cfg.GitHubPreflight)
	assert.Contains(t, cfg.SupportedExtensions, ".go")
	assert.Contains(t, cfg.SupportedExtensions, ".md")
	assert.Empty(t, cfg.ExcludeGlobs)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("EXCLUDE_GLOBS", " *.min.js , testdata ,,")
	t.Setenv("EMBEDDING_PROVIDER", "HASH")
	t.Setenv("GITHUB_PREFLIGHT", "false")
	t.Setenv("EMBED_RATE_PER_SEC", "2.5")
	t.Setenv("PROCESS_TIMEOUT_SEC", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, []string{"*.min.js", "testdata"}, cfg.ExcludeGlobs)
	assert.Equal(t, ProviderHash, cfg.EmbeddingProvider)
	assert.False(t, cfg.GitHubPreflight)
	assert.Equal(t, 2.5, cfg.EmbedRatePerSec)
	assert.Equal(t, 1800*time.Second, cfg.ProcessTimeout, "invalid values fall back to the default")
}

func TestValidate(t *testing.T) {
	valid := Config{
		EmbeddingProvider:  ProviderHash,
		EmbeddingDimension: 64,
		LLMProvider:        ProviderEcho,
		ChunkSize:          1000,
		ChunkOverlap:       100,
		MaxChunkSize:       2000,
		TopK:               5,
		EmbedBatchSize:     8,
		EmbedConcurrency:   2,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown embedder", func(c *Config) { c.EmbeddingProvider = "nope" }, "EMBEDDING_PROVIDER"},
		{"vertex without project", func(c *Config) { c.LLMProvider = ProviderVertex }, "GCP_PROJECT_ID"},
		{"overlap too large", func(c *Config) { c.ChunkOverlap = 1000 }, "CHUNK_OVERLAP"},
		{"max below size", func(c *Config) { c.MaxChunkSize = 10 }, "MAX_CHUNK_SIZE"},
		{"zero top k", func(c *Config) { c.TopK = 0 }, "RETRIEVAL_TOP_K"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
