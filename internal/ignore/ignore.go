// Package ignore decides which directories and files are excluded from
// language detection and freshness scanning.
package ignore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IndexDirName is the directory holding the SCIP artifact, relative to the project root.
const IndexDirName = ".scip"

// defaultDirs are never descended into.
var defaultDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	IndexDirName:   {},
	".venv":        {},
	".poetry":      {},
	"dist":         {},
	"build":        {},
	"out":          {},
}

// IsIgnoredDir reports whether a directory name is in the fixed ignore set
// or is dot-prefixed.
func IsIgnoredDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := defaultDirs[name]
	return ok
}

// Matcher combines the fixed ignore set with optional doublestar globs
// matched against slash-separated paths relative to the project root.
// A nil *Matcher applies the fixed set only.
type Matcher struct {
	globs []string
}

// New builds a Matcher from extra exclude globs such as "**/testdata/**".
func New(globs ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid exclude pattern %q", g)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Globs returns the extra exclude patterns.
func (m *Matcher) Globs() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.globs...)
}

// SkipDir reports whether the directory at rel (relative to the root) with
// base name name must not be descended into.
func (m *Matcher) SkipDir(rel, name string) bool {
	if IsIgnoredDir(name) {
		return true
	}
	return m.matchGlob(rel, true)
}

// SkipFile reports whether the file at rel is excluded by an extra glob.
func (m *Matcher) SkipFile(rel string) bool {
	return m.matchGlob(rel, false)
}

func (m *Matcher) matchGlob(rel string, isDir bool) bool {
	if m == nil || len(m.globs) == 0 {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range m.globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
		// "**/testdata/**" should also prune the testdata directory itself.
		if isDir {
			if ok, _ := doublestar.Match(g, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}

// SkipPath reports whether any directory component of rel is ignored or the
// file itself is excluded. Used by the watcher, which sees absolute event
// paths rather than walking the tree.
func (m *Matcher) SkipPath(rel string) bool {
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	for i := 0; i < len(parts)-1; i++ {
		if m.SkipDir(strings.Join(parts[:i+1], "/"), parts[i]) {
			return true
		}
	}
	return m.SkipFile(rel)
}
