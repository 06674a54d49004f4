// Package watch regenerates a project's SCIP index when its sources change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/scip-indexer/internal/ignore"
	"github.com/dshills/scip-indexer/internal/indexer"
)

// DefaultDebounce is used when Options.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// Generator produces the index for one root. *indexer.Indexer satisfies it.
type Generator interface {
	Root() string
	GenerateIndex(ctx context.Context, opts indexer.GenerateOptions) (*indexer.Result, error)
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	Ignore   *ignore.Matcher
	// Locks, when set, serializes runs with other users of the same set.
	// A busy root postpones the run by one debounce interval.
	Locks *indexer.LockSet
	// Generate is the base for every run; Incremental is set per run.
	Generate indexer.GenerateOptions
	// SkipInitial disables the catch-up run made before watching starts.
	SkipInitial bool
	// OnRun is called after every run.
	OnRun func(Run)
}

// Run describes one triggered generation.
type Run struct {
	// Changed lists the absolute paths that triggered the run, sorted. Empty
	// for the initial run.
	Changed []string
	// Full is set when something was removed. Deletions do not advance any
	// source mtime, so the freshness check cannot see them.
	Full   bool
	Result *indexer.Result
	Err    error
}

type change int

const (
	changeNone change = iota
	changeModified
	changeRemoved
)

// Watcher watches a project tree recursively.
type Watcher struct {
	gen  Generator
	opts Options
	root string
	dirs map[string]bool
}

// New creates a Watcher for gen's root.
func New(gen Generator, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		gen:  gen,
		opts: opts,
		root: filepath.Clean(gen.Root()),
		dirs: make(map[string]bool),
	}
}

// Run watches until ctx is done. Failed index runs are reported through
// OnRun and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.root); err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false
	full := false
	changed := map[string]bool{}

	schedule := func() {
		if pending && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.opts.Debounce)
		pending = true
	}

	if !w.opts.SkipInitial && !w.generate(ctx, nil, false) {
		schedule()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)

			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(path); err == nil && info.IsDir() && !w.skipDir(path) {
					if err := w.addRecursive(fw, path); err != nil {
						log.Printf("Warning: failed to watch %s: %v", path, err)
					}
				}
			}

			switch w.classify(event) {
			case changeNone:
				continue
			case changeRemoved:
				full = true
			}
			changed[path] = true
			schedule()

		case <-timer.C:
			if !pending {
				continue
			}
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			sort.Strings(paths)

			if !w.generate(ctx, paths, full) {
				schedule()
				continue
			}
			pending = false
			full = false
			changed = map[string]bool{}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were dropped; only a full rebuild is safe.
				full = true
				schedule()
				continue
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}

// generate runs the index once. It returns false when the root is locked by
// another run and nothing was done.
func (w *Watcher) generate(ctx context.Context, changed []string, full bool) bool {
	if w.opts.Locks != nil {
		if !w.opts.Locks.TryAcquire(w.root) {
			return false
		}
		defer w.opts.Locks.Release(w.root)
	}

	opts := w.opts.Generate
	opts.Incremental = !full
	res, err := w.gen.GenerateIndex(ctx, opts)
	if w.opts.OnRun != nil {
		w.opts.OnRun(Run{Changed: changed, Full: full, Result: res, Err: err})
	}
	return true
}

// classify decides whether an event should trigger a run.
func (w *Watcher) classify(event fsnotify.Event) change {
	path := filepath.Clean(event.Name)
	rel, ok := w.rel(path)
	if !ok {
		return changeNone
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		if w.dirs[path] {
			delete(w.dirs, path)
			return changeRemoved
		}
		if w.isSource(rel) {
			return changeRemoved
		}
		return changeNone
	}

	if event.Op.Has(fsnotify.Create) && w.dirs[path] {
		return changeModified
	}
	if (event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write)) && w.isSource(rel) {
		return changeModified
	}
	return changeNone
}

func (w *Watcher) isSource(rel string) bool {
	base := filepath.Base(rel)
	if strings.HasPrefix(base, ".") || !indexer.IsSourceFile(base) {
		return false
	}
	return !w.opts.Ignore.SkipPath(rel)
}

// rel returns path relative to the root; false when it is the root itself or
// outside it.
func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// skipDir reports whether path or any directory between it and the root is
// ignored.
func (w *Watcher) skipDir(path string) bool {
	rel, ok := w.rel(path)
	if !ok {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := range parts {
		if w.opts.Ignore.SkipDir(strings.Join(parts[:i+1], "/"), parts[i]) {
			return true
		}
	}
	return false
}

// addRecursive watches dir and every directory below it that is not ignored.
// Unreadable subdirectories are skipped.
func (w *Watcher) addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		w.dirs[filepath.Clean(path)] = true
		return nil
	})
}
