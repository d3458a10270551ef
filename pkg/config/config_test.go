package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "gpt-4", cfg.Model)
	require.Equal(t, 1000, cfg.MaxResponseTokens)
	require.Equal(t, 512, cfg.ChunkSize)
	require.Equal(t, 0, cfg.ChunkOverlap)
	require.Equal(t, 256, cfg.MaxSummaryTokens)
	require.Equal(t, 3, cfg.TopK)
	require.InDelta(t, 0.7, cfg.SimilarityCutoff, 1e-9)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, "cl100k_base", cfg.Encoding)
	require.Equal(t, "memory", cfg.History.Backend)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: gpt-3.5-turbo
top_k: 5
history:
  backend: sqlite
  sqlite_path: /tmp/recall.db
events:
  transport: gochannel
model_max_tokens:
  my-model: 2048
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gpt-3.5-turbo", cfg.Model)
	require.Equal(t, 5, cfg.TopK)
	require.Equal(t, "sqlite", cfg.History.Backend)
	require.Equal(t, "/tmp/recall.db", cfg.History.SQLitePath)
	require.Equal(t, "gochannel", cfg.Events.Transport)
	require.Equal(t, 2048, cfg.ModelMaxTokens["my-model"])
	// untouched fields keep defaults
	require.Equal(t, 1000, cfg.MaxResponseTokens)
	require.Equal(t, 512, cfg.ChunkSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("top_k: 0\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	mutate := func(f func(*Config)) Config {
		cfg := DefaultConfig()
		f(&cfg)
		return cfg
	}
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty model", mutate(func(c *Config) { c.Model = " " })},
		{"zero response tokens", mutate(func(c *Config) { c.MaxResponseTokens = 0 })},
		{"one template slot", mutate(func(c *Config) { c.PromptTemplate = "History: %s" })},
		{"three template slots", mutate(func(c *Config) { c.PromptTemplate = "%s %s %s" })},
		{"stray template verb", mutate(func(c *Config) { c.PromptTemplate = "%s %s turn %d" })},
		{"bare trailing percent", mutate(func(c *Config) { c.PromptTemplate = "%s %s %" })},
		{"zero chunk size", mutate(func(c *Config) { c.ChunkSize = 0 })},
		{"negative overlap", mutate(func(c *Config) { c.ChunkOverlap = -1 })},
		{"overlap swallows chunk", mutate(func(c *Config) { c.ChunkOverlap = c.ChunkSize })},
		{"zero summary tokens", mutate(func(c *Config) { c.MaxSummaryTokens = 0 })},
		{"zero top_k", mutate(func(c *Config) { c.TopK = 0 })},
		{"zero retries", mutate(func(c *Config) { c.MaxRetries = 0 })},
		{"bad history backend", mutate(func(c *Config) { c.History.Backend = "dynamo" })},
		{"bad events transport", mutate(func(c *Config) { c.Events.Transport = "kafka" })},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}
