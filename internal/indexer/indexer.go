package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/scip-indexer/internal/config"
	"github.com/dshills/scip-indexer/internal/ignore"
	"github.com/dshills/scip-indexer/internal/languages"
	"github.com/dshills/scip-indexer/internal/logging"
)

const (
	// IndexFileName is the artifact name inside the index directory.
	IndexFileName = "index.scip"
	// BackupSuffix is appended to the artifact path for the previous index.
	BackupSuffix = ".bak"

	eventSource = "indexer"
)

// Lifecycle actions, in the order a successful run emits them.
const (
	ActionSkipped         = "generate_index_skipped"
	ActionStart           = "generate_index_start"
	ActionGitignore       = "gitignore_updated"
	ActionGitignoreFailed = "gitignore_update_failed"
	ActionAdapterStart    = "adapter_start"
	ActionAdapterInstall  = "adapter_install"
	ActionAdapterComplete = "adapter_complete"
	ActionAdapterFailed   = "adapter_failed"
	ActionComplete        = "generate_index_complete"
	ActionFailed          = "generate_index_failed"
)

// ErrNoLanguageDetected is returned when no adapter recognizes the project.
var ErrNoLanguageDetected = errors.New("no supported language detected in project")

// Detector returns the adapters applicable to a project, in run order.
type Detector interface {
	DetectLanguages(projectRoot string) []languages.Adapter
}

// Config contains the collaborators of an Indexer.
type Config struct {
	// Detector picks adapters (default: the built-in registry).
	Detector Detector
	// Logger receives lifecycle events (default: discard).
	Logger logging.Logger
	// Ignore adds exclude globs to the fixed ignore set.
	Ignore *ignore.Matcher
}

// GenerateOptions controls one GenerateIndex call. Cancellation is carried
// by the context passed alongside.
type GenerateOptions struct {
	// Incremental skips the run when the artifact is already fresh.
	Incremental bool
	OnProgress  languages.ProgressFunc
	// ConfirmInstall is forwarded to adapters that need installing.
	ConfirmInstall languages.ConfirmFunc
}

// Result describes a finished GenerateIndex call.
type Result struct {
	RunID      string
	Skipped    bool
	Adapters   []string
	IndexPath  string
	BackupPath string // empty when there was no previous index
	Checksum   string // xxhash64 of the new artifact, if it could be read
	Duration   time.Duration
}

// Indexer coordinates SCIP index generation for one project root.
// Concurrent GenerateIndex calls for the same root are not supported;
// callers serialize them (see LockSet).
type Indexer struct {
	root      string
	indexPath string
	detector  Detector
	logger    logging.Logger
	freshness *Freshness

	newRunID func() string
}

// New creates an Indexer for projectRoot, which is made absolute.
func New(projectRoot string, cfg *Config) (*Indexer, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	idx := &Indexer{
		root:      root,
		indexPath: filepath.Join(root, ignore.IndexDirName, IndexFileName),
		detector:  cfg.Detector,
		logger:    cfg.Logger,
		newRunID:  uuid.NewString,
	}
	if idx.detector == nil {
		idx.detector = languages.NewDefaultRegistry(nil, nil, cfg.Ignore)
	}
	if idx.logger == nil {
		idx.logger = logging.Nop
	}
	idx.freshness = NewFreshness(root, idx.indexPath, cfg.Ignore)
	return idx, nil
}

// NewFromConfig wires an Indexer from project configuration: exclude globs,
// enabled languages and indexer commands. A nil runner executes real
// processes.
func NewFromConfig(projectRoot string, cfg *config.Config, logger logging.Logger, runner languages.CommandRunner) (*Indexer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	m, err := cfg.Matcher()
	if err != nil {
		return nil, err
	}
	return New(projectRoot, &Config{
		Detector: languages.NewDefaultRegistry(cfg, runner, m),
		Logger:   logger,
		Ignore:   m,
	})
}

// Root returns the absolute project root.
func (idx *Indexer) Root() string { return idx.root }

// IndexPath returns <root>/.scip/index.scip.
func (idx *Indexer) IndexPath() string { return idx.indexPath }

// BackupPath returns the path the previous artifact is copied to.
func (idx *Indexer) BackupPath() string { return idx.indexPath + BackupSuffix }

// IndexExists reports whether the artifact is present.
func (idx *Indexer) IndexExists() bool {
	_, err := os.Stat(idx.indexPath)
	return err == nil
}

// NeedsReindex reports whether the artifact is missing or stale.
func (idx *Indexer) NeedsReindex() bool {
	return idx.freshness.NeedsReindex()
}

// GenerateIndex runs every detected adapter to (re)build the artifact. The
// first failing adapter aborts the run and its error is returned unchanged.
func (idx *Indexer) GenerateIndex(ctx context.Context, opts GenerateOptions) (*Result, error) {
	startTime := time.Now()
	result := &Result{
		RunID:     idx.newRunID(),
		IndexPath: idx.indexPath,
	}

	if opts.Incremental && !idx.NeedsReindex() {
		idx.emit(result.RunID, logging.Event{
			Action:      ActionSkipped,
			Incremental: logging.Bool(true),
		})
		result.Skipped = true
		result.Duration = time.Since(startTime)
		return result, nil
	}

	idx.emit(result.RunID, logging.Event{
		Action:      ActionStart,
		Incremental: logging.Bool(opts.Incremental),
	})

	if err := idx.run(ctx, opts, result); err != nil {
		idx.emit(result.RunID, logging.Event{
			Action:  ActionFailed,
			Level:   logging.LevelError,
			Message: err.Error(),
		})
		return nil, err
	}

	// A missing or unreadable artifact leaves the checksum empty.
	if sum, err := Fingerprint(idx.indexPath); err == nil {
		result.Checksum = sum
	}
	result.Duration = time.Since(startTime)

	idx.emit(result.RunID, logging.Event{
		Action:   ActionComplete,
		Path:     idx.indexPath,
		Checksum: result.Checksum,
	})
	return result, nil
}

func (idx *Indexer) run(ctx context.Context, opts GenerateOptions, result *Result) error {
	adapters := idx.detector.DetectLanguages(idx.root)
	if len(adapters) == 0 {
		return ErrNoLanguageDetected
	}

	if err := idx.ensureIndexDir(result.RunID); err != nil {
		return err
	}

	copied, err := backupArtifact(idx.indexPath, idx.BackupPath())
	if err != nil {
		return err
	}
	if copied {
		result.BackupPath = idx.BackupPath()
	}

	// A single adapter writes the artifact directly. Several adapters each
	// write a part that is concatenated into the artifact once all succeed.
	if len(adapters) == 1 {
		if err := idx.runAdapter(ctx, result.RunID, adapters[0], idx.indexPath, opts); err != nil {
			return err
		}
		result.Adapters = append(result.Adapters, adapters[0].Name())
		return nil
	}

	parts := make([]string, 0, len(adapters))
	defer func() {
		for _, p := range parts {
			_ = os.Remove(p)
		}
	}()
	for _, adapter := range adapters {
		part := partPath(idx.indexPath, adapter.Name())
		if err := os.Remove(part); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear stale %s output: %w", adapter.Name(), err)
		}
		parts = append(parts, part)
		if err := idx.runAdapter(ctx, result.RunID, adapter, part, opts); err != nil {
			return err
		}
		result.Adapters = append(result.Adapters, adapter.Name())
	}
	_, err = mergeArtifacts(idx.indexPath, parts)
	return err
}

// ensureIndexDir creates <root>/.scip. When this call created it, the
// directory is added to .gitignore; failures there are reported and dropped.
func (idx *Indexer) ensureIndexDir(runID string) error {
	dir := filepath.Dir(idx.indexPath)

	_, statErr := os.Stat(dir)
	firstRun := errors.Is(statErr, os.ErrNotExist)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if !firstRun {
		return nil
	}

	changed, err := ensureGitignored(idx.root)
	if err != nil {
		idx.emit(runID, logging.Event{
			Action:  ActionGitignoreFailed,
			Level:   logging.LevelWarning,
			Message: err.Error(),
		})
		return nil
	}
	if changed {
		idx.emit(runID, logging.Event{
			Action: ActionGitignore,
			Path:   filepath.Join(idx.root, ".gitignore"),
		})
	}
	return nil
}

func (idx *Indexer) runAdapter(ctx context.Context, runID string, adapter languages.Adapter, output string, opts GenerateOptions) error {
	name := adapter.Name()
	notify(opts.OnProgress, fmt.Sprintf("Detected %s project", name))
	idx.emit(runID, logging.Event{Action: ActionAdapterStart, Adapter: name})

	err := idx.prepareAdapter(ctx, runID, adapter, opts)
	if err == nil {
		err = adapter.GenerateIndex(ctx, languages.GenerateRequest{
			ProjectRoot: idx.root,
			OutputPath:  output,
			Incremental: opts.Incremental,
			OnProgress:  opts.OnProgress,
		})
	}
	if err != nil {
		idx.emit(runID, logging.Event{
			Action:  ActionAdapterFailed,
			Adapter: name,
			Level:   logging.LevelError,
			Message: err.Error(),
		})
		return err
	}

	idx.emit(runID, logging.Event{Action: ActionAdapterComplete, Adapter: name})
	return nil
}

// prepareAdapter installs the adapter's indexer when it is not available.
func (idx *Indexer) prepareAdapter(ctx context.Context, runID string, adapter languages.Adapter, opts GenerateOptions) error {
	if adapter.IsIndexerAvailable(ctx, idx.root) {
		return nil
	}
	name := adapter.Name()
	notify(opts.OnProgress, fmt.Sprintf("Preparing %s indexer...", name))
	idx.emit(runID, logging.Event{Action: ActionAdapterInstall, Adapter: name})
	return adapter.InstallIndexer(ctx, idx.root, languages.InstallOptions{Confirm: opts.ConfirmInstall})
}

func (idx *Indexer) emit(runID string, e logging.Event) {
	e.Time = time.Now()
	e.RunID = runID
	e.ProjectRoot = idx.root
	e.Source = eventSource
	idx.logger.Log(e)
}

func notify(fn languages.ProgressFunc, message string) {
	if fn != nil {
		fn(message)
	}
}
