package languages

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/scip-indexer/internal/config"
	"github.com/dshills/scip-indexer/internal/ignore"
)

// Registry holds the known adapters in priority order.
type Registry struct {
	adapters []Adapter
	ignore   *ignore.Matcher
}

// NewRegistry creates a registry over adapters, tried in the given order.
// A nil matcher applies the fixed ignore set only.
func NewRegistry(m *ignore.Matcher, adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters, ignore: m}
}

// NewDefaultRegistry registers the built-in adapters (python, then
// typescript) enabled by cfg.
func NewDefaultRegistry(cfg *config.Config, runner CommandRunner, m *ignore.Matcher) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}

	var adapters []Adapter
	if cfg.LanguageEnabled("python") {
		adapters = append(adapters, NewPythonAdapter(fromConfig(cfg.Python), runner))
	}
	if cfg.LanguageEnabled("typescript") {
		adapters = append(adapters, NewTypeScriptAdapter(fromConfig(cfg.TypeScript), runner))
	}
	return NewRegistry(m, adapters...)
}

func fromConfig(c config.IndexerConfig) IndexerConfig {
	return IndexerConfig{
		Command:        c.Command,
		InstallCommand: c.InstallCommand,
		ProjectName:    c.ProjectName,
	}
}

// Adapters returns every registered adapter.
func (r *Registry) Adapters() []Adapter {
	return append([]Adapter(nil), r.adapters...)
}

// DetectLanguages returns the adapters whose extensions occur somewhere under
// projectRoot, in registration order. Each adapter's scan stops at the first
// matching file.
func (r *Registry) DetectLanguages(projectRoot string) []Adapter {
	var detected []Adapter
	for _, a := range r.adapters {
		if r.hasFiles(projectRoot, a.Extensions()) {
			detected = append(detected, a)
		}
	}
	return detected
}

func (r *Registry) hasFiles(root string, exts []string) bool {
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			rel, _ := filepath.Rel(root, path)

			if entry.IsDir() {
				if !r.ignore.SkipDir(rel, entry.Name()) {
					stack = append(stack, path)
				}
				continue
			}
			if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			if hasExtension(entry.Name(), exts) && !r.ignore.SkipFile(rel) {
				return true
			}
		}
	}
	return false
}

func hasExtension(name string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
