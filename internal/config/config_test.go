package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderetrieve/internal/searcher"
	"github.com/dshills/coderetrieve/internal/storage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, searcher.DefaultConfig().Weights, cfg.Search.Weights)
	assert.Equal(t, storage.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1000, cfg.Embedder.Text.CacheSize)
}

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "coderetrieve.yaml", `
search:
  fetchMultiplier: 8
  defaultMinScore: 0.25
  timeout: 3s
  weights:
    text: 0.5
    code: 0.2
    lexical: 0.2
    bm25: 0.1
  retry:
    maxAttempts: 5
embedder:
  text:
    provider: local
    dimension: 128
  code:
    provider: jina
    model: jina-embeddings-v2-base-code
store:
  backend: sqlite
  path: /tmp/chunks.db
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Search.FetchMultiplier)
	assert.Equal(t, 30, cfg.Search.FetchMin, "unset keys keep defaults")
	require.NotNil(t, cfg.Search.DefaultMinScore)
	assert.InDelta(t, 0.25, *cfg.Search.DefaultMinScore, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.Search.Timeout)
	assert.InDelta(t, 0.5, cfg.Search.Weights.Text, 1e-9)
	assert.Equal(t, 5, cfg.Search.Retry.MaxAttempts)
	assert.Equal(t, "local", cfg.Embedder.Text.Provider)
	assert.Equal(t, 128, cfg.Embedder.Text.Dimension)
	assert.Equal(t, "jina-embeddings-v2-base-code", cfg.Embedder.Code.Model)
	assert.Equal(t, storage.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/chunks.db", cfg.Store.Path)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"search": {"defaultTopK": 20}, "store": {"backend": "qdrant", "url": "http://qdrant:6333"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Search.DefaultTopK)
	assert.Equal(t, "http://qdrant:6333", cfg.Store.URL)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", "[indexer]\nworkers = 3\nbatchSize = 10\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Indexer.Workers)
	assert.Equal(t, 10, cfg.Indexer.BatchSize)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "coderetrieve.yaml", "search:\n  fetchMin: 40\n")
	t.Setenv("CODERETRIEVE_SEARCH_FETCHMIN", "50")
	t.Setenv("CODERETRIEVE_SEARCH_WEIGHTS_TEXT", "0.6")
	t.Setenv("CODERETRIEVE_SEARCH_DEFAULTMINSCORE", "0.3")
	t.Setenv("CODERETRIEVE_SEARCH_TIMEOUT", "2s")
	t.Setenv("CODERETRIEVE_STORE_BACKEND", "qdrant")
	t.Setenv("CODERETRIEVE_EMBEDDER_CODE_APIKEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Search.FetchMin, "environment beats file")
	assert.InDelta(t, 0.6, cfg.Search.Weights.Text, 1e-9)
	require.NotNil(t, cfg.Search.DefaultMinScore)
	assert.InDelta(t, 0.3, *cfg.Search.DefaultMinScore, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Search.Timeout)
	assert.Equal(t, storage.BackendQdrant, cfg.Store.Backend)
	assert.Equal(t, "secret", cfg.Embedder.Code.APIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad search config", content: "search:\n  fetchMin: 0\n"},
		{name: "sqlite without path", content: "store:\n  backend: sqlite\n"},
		{name: "unknown backend", content: "store:\n  backend: cassandra\n"},
		{name: "bad log format", content: "log:\n  format: xml\n"},
		{name: "malformed yaml", content: "search: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = "sqlite"

	err := cfg.Validate()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "store.path", cfgErr.Field)
	assert.Contains(t, err.Error(), "store.path")
}

func TestIndexerConfigFollowsSearchCollections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.TextCollection = "t"
	cfg.Search.CodeCollection = "c"

	ic := cfg.IndexerConfig()
	assert.Equal(t, "t", ic.TextCollection)
	assert.Equal(t, "c", ic.CodeCollection)
}

func TestLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	cfg.Logger(&buf).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
