package indexer

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/scip-indexer/internal/ignore"
)

// SourceExtensions are the suffixes whose mtimes feed the freshness check.
var SourceExtensions = []string{".py", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}

// Freshness decides whether the SCIP artifact is older than the sources it
// was built from. It holds no state between calls.
type Freshness struct {
	root      string
	indexPath string
	ignore    *ignore.Matcher
}

// NewFreshness creates an oracle for the artifact at indexPath covering the
// tree under root.
func NewFreshness(root, indexPath string, m *ignore.Matcher) *Freshness {
	return &Freshness{root: root, indexPath: indexPath, ignore: m}
}

// NeedsReindex reports whether the artifact is missing or older than the
// newest recognized source file. Any stat failure answers true.
func (f *Freshness) NeedsReindex() bool {
	indexInfo, err := os.Stat(f.indexPath)
	if err != nil {
		return true
	}

	newest, found, err := f.newestSource()
	if err != nil {
		return true
	}
	if !found {
		return false
	}
	return newest.After(indexInfo.ModTime())
}

// newestSource returns the largest mtime among recognized source files
// outside ignored subtrees. found is false when there are none.
func (f *Freshness) newestSource() (newest time.Time, found bool, err error) {
	err = filepath.WalkDir(f.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return skipUnreadable(d)
		}

		rel, _ := filepath.Rel(f.root, path)
		if d.IsDir() {
			if path != f.root && f.ignore.SkipDir(rel, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") || !IsSourceFile(d.Name()) || f.ignore.SkipFile(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !found || info.ModTime().After(newest) {
			newest = info.ModTime()
			found = true
		}
		return nil
	})
	if errors.Is(err, filepath.SkipDir) {
		err = nil
	}
	return newest, found, err
}

// skipUnreadable handles a traversal error on d: an unreadable directory
// is pruned and any other entry is passed over, so neither contributes an
// mtime nor aborts the scan.
func skipUnreadable(d fs.DirEntry) error {
	if d == nil || d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}

// IsSourceFile reports whether name has one of SourceExtensions.
func IsSourceFile(name string) bool {
	for _, ext := range SourceExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
