package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogFormat, "")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.LanguageEnabled("python"))
	assert.True(t, cfg.LanguageEnabled("typescript"))
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce.Duration)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogFormat, "")

	dir := t.TempDir()
	writeConfig(t, dir, `
[index]
exclude = ["**/testdata/**"]
languages = ["python"]

[python]
command = "/opt/bin/scip-python"
project_name = "acme"

[log]
level = "debug"
format = "text"

[history]
enabled = false

[watch]
debounce = "2s"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"**/testdata/**"}, cfg.Index.Exclude)
	assert.True(t, cfg.LanguageEnabled("Python"))
	assert.False(t, cfg.LanguageEnabled("typescript"))
	assert.Equal(t, "/opt/bin/scip-python", cfg.Python.Command)
	assert.Equal(t, "acme", cfg.Python.ProjectName)
	// Untouched keys keep their defaults.
	assert.Equal(t, []string{"npm", "install", "-g", "@sourcegraph/scip-python"}, cfg.Python.InstallCommand)
	assert.Equal(t, "scip-typescript", cfg.TypeScript.Command)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce.Duration)

	m, err := cfg.Matcher()
	require.NoError(t, err)
	assert.True(t, m.SkipFile("a/testdata/b.py"))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvDBPath, "/tmp/history.db")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "text")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/history.db", cfg.History.DBPath)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[index\nexclude = 3")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown language", func(c *Config) { c.Index.Languages = []string{"cobol"} }},
		{"bad glob", func(c *Config) { c.Index.Exclude = []string{"src/["} }},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"empty command", func(c *Config) { c.Python.Command = "" }},
		{"zero debounce", func(c *Config) { c.Watch.Debounce = Duration{} }},
	}

	assert.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.scip-indexer/history.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".scip-indexer", "history.db"), got)

	got, err = ExpandHome("/abs/path.db")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path.db", got)

	got, err = ExpandHome(":memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", got)
}
