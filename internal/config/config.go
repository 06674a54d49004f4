// Package config loads per-project settings for scip-indexer.
//
// Settings live in <root>/.scip-indexer.toml. A missing file yields the
// defaults; environment variables override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dshills/scip-indexer/internal/ignore"
	"github.com/dshills/scip-indexer/internal/logging"
)

// FileName is the project configuration file, relative to the project root.
const FileName = ".scip-indexer.toml"

// Environment overrides.
const (
	EnvDBPath    = "SCIP_INDEXER_DB_PATH"
	EnvLogLevel  = "SCIP_INDEXER_LOG_LEVEL"
	EnvLogFormat = "SCIP_INDEXER_LOG_FORMAT"
)

// DefaultDBPath is where run history is stored unless overridden.
const DefaultDBPath = "~/.scip-indexer/history.db"

// Known language names accepted in [index] languages.
var KnownLanguages = []string{"python", "typescript"}

// Config is the complete project configuration.
type Config struct {
	Index      IndexConfig   `toml:"index"`
	Python     IndexerConfig `toml:"python"`
	TypeScript IndexerConfig `toml:"typescript"`
	Log        LogConfig     `toml:"log"`
	History    HistoryConfig `toml:"history"`
	Watch      WatchConfig   `toml:"watch"`
}

// IndexConfig controls detection and scanning.
type IndexConfig struct {
	// Exclude holds doublestar globs applied on top of the fixed ignore set.
	Exclude []string `toml:"exclude"`
	// Languages restricts the adapters considered; empty means all.
	Languages []string `toml:"languages"`
}

// IndexerConfig configures one external SCIP indexer.
type IndexerConfig struct {
	Command        string   `toml:"command"`
	InstallCommand []string `toml:"install_command"`
	ProjectName    string   `toml:"project_name"`
}

// LogConfig controls lifecycle event rendering.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// HistoryConfig controls the sqlite run history.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce Duration `toml:"debounce"`
}

// Duration decodes TOML strings such as "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Python: IndexerConfig{
			Command:        "scip-python",
			InstallCommand: []string{"npm", "install", "-g", "@sourcegraph/scip-python"},
		},
		TypeScript: IndexerConfig{
			Command:        "scip-typescript",
			InstallCommand: []string{"npm", "install", "-g", "@sourcegraph/scip-typescript"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  DefaultDBPath,
		},
		Watch: WatchConfig{
			Debounce: Duration{500 * time.Millisecond},
		},
	}
}

// Load reads <projectRoot>/.scip-indexer.toml over the defaults and applies
// environment overrides.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(projectRoot, FileName)
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.History.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
}

// Validate checks the configuration for values the rest of the program
// cannot act on.
func (c *Config) Validate() error {
	for _, lang := range c.Index.Languages {
		if !isKnownLanguage(lang) {
			return fmt.Errorf("unknown language %q (known: %s)", lang, strings.Join(KnownLanguages, ", "))
		}
	}
	if _, err := ignore.New(c.Index.Exclude...); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Python.Command == "" || c.TypeScript.Command == "" {
		return errors.New("indexer command cannot be empty")
	}
	if c.Watch.Debounce.Duration <= 0 {
		return fmt.Errorf("watch debounce must be positive, got %s", c.Watch.Debounce.Duration)
	}
	return nil
}

// LanguageEnabled reports whether the named adapter may run.
func (c *Config) LanguageEnabled(name string) bool {
	if len(c.Index.Languages) == 0 {
		return true
	}
	for _, l := range c.Index.Languages {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// Matcher builds the ignore matcher for the configured excludes.
func (c *Config) Matcher() (*ignore.Matcher, error) {
	return ignore.New(c.Index.Exclude...)
}

// ResolveDBPath expands a leading "~" in the history database path.
func (c *Config) ResolveDBPath() (string, error) {
	return ExpandHome(c.History.DBPath)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func isKnownLanguage(name string) bool {
	for _, l := range KnownLanguages {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}
