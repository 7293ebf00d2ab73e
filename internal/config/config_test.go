package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.InDelta(t, 0.75, cfg.Engine.SimilarityThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Engine.MaxSuggestions)
	assert.True(t, cfg.Security.RateLimit.Enabled)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := `
server:
  port: 9090
engine:
  similarity_threshold: 0.8
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.8, cfg.Engine.SimilarityThreshold, 1e-9)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5, cfg.Engine.MaxSuggestions)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("server:\n  port: 9090\n"), 0644))
	t.Setenv("FLOWFORGE_SERVER_PORT", "7070")
	t.Setenv("FLOWFORGE_ENGINE_MAX_SUGGESTIONS", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Engine.MaxSuggestions)
}

func TestLoadExplicitConfigPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0644))
	t.Setenv("FLOWFORGE_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"threshold above one", func(c *Config) { c.Engine.SimilarityThreshold = 1.5 }},
		{"zero suggestions", func(c *Config) { c.Engine.MaxSuggestions = 0 }},
		{"frequency ratio above one", func(c *Config) { c.Engine.MinFrequencyRatio = 1.5 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("server: [not a map"), 0644))

	_, err := Load()
	assert.Error(t, err)
}
