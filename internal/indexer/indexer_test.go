package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/scip-indexer/internal/config"
	"github.com/dshills/scip-indexer/internal/languages"
	"github.com/dshills/scip-indexer/internal/logging"
)

// mockAdapter implements languages.Adapter for testing
type mockAdapter struct {
	name        string
	available   bool
	installErr  error
	generateErr error
	output      string

	mu        sync.Mutex
	calls     []string
	requests  []languages.GenerateRequest
	confirmed []bool
}

func (m *mockAdapter) Name() string         { return m.name }
func (m *mockAdapter) Extensions() []string { return []string{"." + m.name} }

func (m *mockAdapter) IsIndexerAvailable(ctx context.Context, projectRoot string) bool {
	m.record("available")
	return m.available
}

func (m *mockAdapter) InstallIndexer(ctx context.Context, projectRoot string, opts languages.InstallOptions) error {
	m.record("install")
	if opts.Confirm != nil {
		ok, err := opts.Confirm(ctx, "install "+m.name+"?")
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.confirmed = append(m.confirmed, ok)
		m.mu.Unlock()
		if !ok {
			return languages.ErrInstallCancelled
		}
	}
	if m.installErr != nil {
		return m.installErr
	}
	m.available = true
	return nil
}

func (m *mockAdapter) GenerateIndex(ctx context.Context, req languages.GenerateRequest) error {
	m.record("generate")
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.generateErr != nil {
		return m.generateErr
	}
	if req.OnProgress != nil {
		req.OnProgress(m.name + " indexed")
	}
	out := m.output
	if out == "" {
		out = "index from " + m.name
	}
	return os.WriteFile(req.OutputPath, []byte(out), 0644)
}

func (m *mockAdapter) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockAdapter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// staticDetector returns a fixed adapter list.
type staticDetector []languages.Adapter

func (s staticDetector) DetectLanguages(string) []languages.Adapter { return s }

func newTestIndexer(t *testing.T, root string, adapters ...languages.Adapter) (*Indexer, *logging.Recorder) {
	t.Helper()
	rec := &logging.Recorder{}
	idx, err := New(root, &Config{Detector: staticDetector(adapters), Logger: rec})
	require.NoError(t, err)
	return idx, rec
}

func TestIndexPaths(t *testing.T) {
	root := t.TempDir()
	idx, _ := newTestIndexer(t, root)

	assert.Equal(t, root, idx.Root())
	assert.Equal(t, filepath.Join(root, ".scip", "index.scip"), idx.IndexPath())
	assert.Equal(t, filepath.Join(root, ".scip", "index.scip.bak"), idx.BackupPath())
	assert.False(t, idx.IndexExists())

	createTestFile(t, root, ".scip/index.scip", "")
	assert.True(t, idx.IndexExists())
}

func TestNewResolvesRelativeRoot(t *testing.T) {
	idx, err := New(".", nil)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(idx.Root()))
}

func TestGenerateIndexSuccess(t *testing.T) {
	root := t.TempDir()
	py := &mockAdapter{name: "python", available: true}
	ts := &mockAdapter{name: "typescript", available: true, output: "final"}
	idx, rec := newTestIndexer(t, root, py, ts)

	var progress []string
	res, err := idx.GenerateIndex(context.Background(), GenerateOptions{
		OnProgress: func(m string) { progress = append(progress, m) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		ActionStart,
		ActionAdapterStart, ActionAdapterComplete,
		ActionAdapterStart, ActionAdapterComplete,
		ActionComplete,
	}, rec.Actions())
	assert.Equal(t, []string{
		"Detected python project", "python indexed",
		"Detected typescript project", "typescript indexed",
	}, progress)

	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"python", "typescript"}, res.Adapters)
	assert.Equal(t, idx.IndexPath(), res.IndexPath)
	assert.Empty(t, res.BackupPath)

	// Each adapter's output survives in the artifact, in run order.
	data, err := os.ReadFile(idx.IndexPath())
	require.NoError(t, err)
	assert.Equal(t, "index from pythonfinal", string(data))
	assert.NoFileExists(t, partPath(idx.IndexPath(), "python"))
	assert.NoFileExists(t, partPath(idx.IndexPath(), "typescript"))

	sum, err := Fingerprint(idx.IndexPath())
	require.NoError(t, err)
	assert.Equal(t, sum, res.Checksum)
	assert.Len(t, res.Checksum, 16)

	events := rec.Events()
	for _, e := range events {
		assert.Equal(t, "indexer", e.Source)
		assert.Equal(t, res.RunID, e.RunID)
		assert.Equal(t, root, e.ProjectRoot)
		assert.False(t, e.Time.IsZero())
	}
	require.NotNil(t, events[0].Incremental)
	assert.False(t, *events[0].Incremental)
	assert.Equal(t, "python", events[1].Adapter)
	assert.Equal(t, "typescript", events[3].Adapter)
	assert.Equal(t, res.Checksum, events[5].Checksum)
	assert.Equal(t, idx.IndexPath(), events[5].Path)

	req := py.requests[0]
	assert.Equal(t, root, req.ProjectRoot)
	assert.Equal(t, partPath(idx.IndexPath(), "python"), req.OutputPath)
	assert.Equal(t, partPath(idx.IndexPath(), "typescript"), ts.requests[0].OutputPath)
	assert.False(t, req.Incremental)
}

func TestGenerateIndexSingleAdapterWritesArtifact(t *testing.T) {
	root := t.TempDir()
	py := &mockAdapter{name: "python", available: true}
	idx, _ := newTestIndexer(t, root, py)

	_, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, idx.IndexPath(), py.requests[0].OutputPath)

	data, err := os.ReadFile(idx.IndexPath())
	require.NoError(t, err)
	assert.Equal(t, "index from python", string(data))
}

func TestGenerateIndexPolyglotFailureKeepsArtifact(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, ".scip/index.scip", "previous")
	py := &mockAdapter{name: "python", available: true}
	ts := &mockAdapter{name: "typescript", available: true, generateErr: errors.New("scip-typescript crashed")}
	idx, _ := newTestIndexer(t, root, py, ts)

	_, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
	require.Error(t, err)

	data, err := os.ReadFile(idx.IndexPath())
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	assert.NoFileExists(t, partPath(idx.IndexPath(), "python"))
	assert.NoFileExists(t, idx.IndexPath()+".tmp")
}

func TestMergeArtifacts(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "index.scip")
	a := createTestFile(t, dir, "a.part", "AAA")
	missing := filepath.Join(dir, "missing.part")
	b := createTestFile(t, dir, "b.part", "BBB")

	merged, err := mergeArtifacts(dst, []string{a, missing, b})
	require.NoError(t, err)
	assert.True(t, merged)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "AAABBB", string(data))

	// No parts on disk leaves the artifact as it was.
	merged, err = mergeArtifacts(dst, []string{missing})
	require.NoError(t, err)
	assert.False(t, merged)
	data, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "AAABBB", string(data))
	assert.NoFileExists(t, dst+".tmp")
}

func TestGenerateIndexIncrementalSkip(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	setMtime(t, createTestFile(t, root, "main.py", ""), now.Add(-time.Minute))
	createTestFile(t, root, ".scip/index.scip", "existing")
	setMtime(t, filepath.Join(root, ".scip", "index.scip"), now)

	py := &mockAdapter{name: "python", available: true}
	idx, rec := newTestIndexer(t, root, py)

	res, err := idx.GenerateIndex(context.Background(), GenerateOptions{Incremental: true})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, []string{ActionSkipped}, rec.Actions())
	events := rec.Events()
	require.NotNil(t, events[0].Incremental)
	assert.True(t, *events[0].Incremental)

	assert.Empty(t, py.Calls())
	assert.NoFileExists(t, idx.BackupPath())
}

func TestGenerateIndexIncrementalStale(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	createTestFile(t, root, ".scip/index.scip", "old")
	setMtime(t, filepath.Join(root, ".scip", "index.scip"), now.Add(-time.Minute))
	setMtime(t, createTestFile(t, root, "main.py", ""), now)

	py := &mockAdapter{name: "python", available: true}
	idx, rec := newTestIndexer(t, root, py)

	res, err := idx.GenerateIndex(context.Background(), GenerateOptions{Incremental: true})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, ActionStart, rec.Actions()[0])
	assert.True(t, *rec.Events()[0].Incremental)
	assert.True(t, py.requests[0].Incremental)
}

func TestGenerateIndexNonIncrementalIgnoresFreshness(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, ".scip/index.scip", "current")

	py := &mockAdapter{name: "python", available: true}
	idx, _ := newTestIndexer(t, root, py)

	res, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"available", "generate"}, py.Calls())
}

func TestGenerateIndexNoLanguageDetected(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	idx, rec := newTestIndexer(t, root)

	res, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
	require.ErrorIs(t, err, ErrNoLanguageDetected)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "no supported language detected")

	assert.Equal(t, []string{ActionStart, ActionFailed}, rec.Actions())
	failed := rec.Events()[1]
	assert.Equal(t, logging.LevelError, failed.Level)
	assert.Equal(t, ErrNoLanguageDetected.Error(), failed.Message)

	// Nothing was written.
	assert.NoDirExists(t, filepath.Join(root, ".scip"))
	assert.NoFileExists(t, filepath.Join(root, ".gitignore"))
}

func TestGenerateIndexBackup(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, ".scip/index.scip", "previous")
	createTestFile(t, root, ".scip/index.scip.bak", "ancient")

	idx, _ := newTestIndexer(t, root, &mockAdapter{name: "python", available: true, output: "fresh"})

	res, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, idx.BackupPath(), res.BackupPath)

	backup, err := os.ReadFile(idx.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, "previous", string(backup))

	current, err := os.ReadFile(idx.IndexPath())
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(current))
}

func TestGenerateIndexInstallsUnavailableIndexer(t *testing.T) {
	root := t.TempDir()
	py := &mockAdapter{name: "python"}
	idx, rec := newTestIndexer(t, root, py)

	var asked []string
	var progress []string
	_, err := idx.GenerateIndex(context.Background(), GenerateOptions{
		OnProgress: func(m string) { progress = append(progress, m) },
		ConfirmInstall: func(ctx context.Context, message string) (bool, error) {
			asked = append(asked, message)
			return true, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"available", "install", "generate"}, py.Calls())
	assert.Equal(t, []string{"install python?"}, asked)
	assert.Equal(t, []string{"Detected python project", "Preparing python indexer...", "python indexed"}, progress)
	assert.Equal(t, []string{
		ActionStart, ActionAdapterStart, ActionAdapterInstall, ActionAdapterComplete, ActionComplete,
	}, rec.Actions())
	assert.Equal(t, "python", rec.Events()[2].Adapter)
}

func TestGenerateIndexInstallDeclined(t *testing.T) {
	root := t.TempDir()
	py := &mockAdapter{name: "python"}
	ts := &mockAdapter{name: "typescript", available: true}
	idx, rec := newTestIndexer(t, root, py, ts)

	_, err := idx.GenerateIndex(context.Background(), GenerateOptions{
		ConfirmInstall: func(ctx context.Context, message string) (bool, error) { return false, nil },
	})
	require.ErrorIs(t, err, languages.ErrInstallCancelled)
	assert.Contains(t, err.Error(), "cancelled")

	assert.Equal(t, []string{"available", "install"}, py.Calls())
	assert.Empty(t, ts.Calls())
	assert.Equal(t, []string{
		ActionStart, ActionAdapterStart, ActionAdapterInstall, ActionAdapterFailed, ActionFailed,
	}, rec.Actions())
	assert.NoFileExists(t, idx.IndexPath())
}

func TestGenerateIndexAdapterFailureAborts(t *testing.T) {
	root := t.TempDir()
	boom := errors.New("scip-python exited with status 2")
	py := &mockAdapter{name: "python", available: true, generateErr: boom}
	ts := &mockAdapter{name: "typescript", available: true}
	idx, rec := newTestIndexer(t, root, py, ts)

	res, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
	assert.Same(t, boom, err)
	assert.Nil(t, res)
	assert.Empty(t, ts.Calls())

	assert.Equal(t, []string{ActionStart, ActionAdapterStart, ActionAdapterFailed, ActionFailed}, rec.Actions())
	events := rec.Events()
	assert.Equal(t, "python", events[2].Adapter)
	assert.Equal(t, logging.LevelError, events[2].Level)
	assert.Equal(t, boom.Error(), events[2].Message)
	assert.Equal(t, boom.Error(), events[3].Message)
}

func TestGenerateIndexCancellation(t *testing.T) {
	root := t.TempDir()
	py := &mockAdapter{name: "python", available: true}
	idx, rec := newTestIndexer(t, root, py)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.GenerateIndex(ctx, GenerateOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ActionFailed, rec.Actions()[len(rec.Actions())-1])
}

func TestGenerateIndexGitignore(t *testing.T) {
	gitRoot := func(t *testing.T) string {
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
		return root
	}
	run := func(t *testing.T, root string) []string {
		idx, rec := newTestIndexer(t, root, &mockAdapter{name: "python", available: true})
		_, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
		require.NoError(t, err)
		return rec.Actions()
	}
	readGitignore := func(t *testing.T, root string) string {
		data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
		require.NoError(t, err)
		return string(data)
	}

	t.Run("creates gitignore", func(t *testing.T) {
		root := gitRoot(t)
		actions := run(t, root)
		assert.Equal(t, ".scip/\n", readGitignore(t, root))
		assert.Contains(t, actions, ActionGitignore)
		assert.Equal(t, []string{ActionStart, ActionGitignore}, actions[:2])
	})

	t.Run("appends with newline", func(t *testing.T) {
		root := gitRoot(t)
		createTestFile(t, root, ".gitignore", "node_modules")
		run(t, root)
		assert.Equal(t, "node_modules\n.scip/\n", readGitignore(t, root))
	})

	for _, spelling := range []string{".scip", ".scip/", "/.scip", "/.scip/", "  .scip/  "} {
		t.Run(fmt.Sprintf("already has %q", spelling), func(t *testing.T) {
			root := gitRoot(t)
			content := "dist\n" + spelling + "\n"
			createTestFile(t, root, ".gitignore", content)
			actions := run(t, root)
			assert.Equal(t, content, readGitignore(t, root))
			assert.NotContains(t, actions, ActionGitignore)
		})
	}

	t.Run("not a git repository", func(t *testing.T) {
		root := t.TempDir()
		actions := run(t, root)
		assert.NoFileExists(t, filepath.Join(root, ".gitignore"))
		assert.NotContains(t, actions, ActionGitignore)
	})

	t.Run("only on first run", func(t *testing.T) {
		root := gitRoot(t)
		run(t, root)
		require.NoError(t, os.Remove(filepath.Join(root, ".gitignore")))

		actions := run(t, root)
		assert.NoFileExists(t, filepath.Join(root, ".gitignore"))
		assert.NotContains(t, actions, ActionGitignore)
	})

	t.Run("failure is a warning", func(t *testing.T) {
		root := gitRoot(t)
		require.NoError(t, os.Mkdir(filepath.Join(root, ".gitignore"), 0755))

		idx, rec := newTestIndexer(t, root, &mockAdapter{name: "python", available: true})
		res, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
		require.NoError(t, err)
		assert.NotNil(t, res)

		assert.Equal(t, []string{
			ActionStart, ActionGitignoreFailed, ActionAdapterStart, ActionAdapterComplete, ActionComplete,
		}, rec.Actions())
		warn := rec.Events()[1]
		assert.Equal(t, logging.LevelWarning, warn.Level)
		assert.NotEmpty(t, warn.Message)
	})
}

func TestHasGitignoreEntry(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"", false},
		{".scip", true},
		{"a\n/.scip/\nb", true},
		{".scipx", false},
		{"# .scip", false},
		{"foo/.scip", false},
		{"\r\n.scip/\r\n", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hasGitignoreEntry([]byte(tt.content)), "content %q", tt.content)
	}
}

// stubRunner pretends every indexer is on PATH and writes the --output file.
type stubRunner struct {
	mu       sync.Mutex
	commands []languages.Command
}

func (s *stubRunner) LookPath(name string) (string, error) { return "/usr/bin/" + name, nil }

func (s *stubRunner) Run(ctx context.Context, cmd languages.Command) error {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	for i, arg := range cmd.Args {
		if arg == "--output" && i+1 < len(cmd.Args) {
			return os.WriteFile(cmd.Args[i+1], []byte(filepath.Base(cmd.Name)), 0644)
		}
	}
	return nil
}

func (s *stubRunner) Output(ctx context.Context, cmd languages.Command) (string, error) {
	return "", nil
}

func TestNewFromConfig(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "app/main.py", "")
	createTestFile(t, root, "web/index.ts", "")

	cfg := config.Default()
	cfg.Index.Languages = []string{"python"}
	rec := &logging.Recorder{}
	runner := &stubRunner{}

	idx, err := NewFromConfig(root, cfg, rec, runner)
	require.NoError(t, err)

	res, err := idx.GenerateIndex(context.Background(), GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"python"}, res.Adapters)
	require.Len(t, runner.commands, 1)
	assert.Equal(t, "/usr/bin/scip-python", runner.commands[0].Name)

	data, err := os.ReadFile(idx.IndexPath())
	require.NoError(t, err)
	assert.Equal(t, "scip-python", string(data))
}

func TestNewFromConfigExcludes(t *testing.T) {
	root := t.TempDir()
	createTestFile(t, root, "generated/api.ts", "")

	cfg := config.Default()
	cfg.Index.Exclude = []string{"generated/**"}

	idx, err := NewFromConfig(root, cfg, nil, &stubRunner{})
	require.NoError(t, err)

	_, err = idx.GenerateIndex(context.Background(), GenerateOptions{})
	assert.ErrorIs(t, err, ErrNoLanguageDetected)

	cfg.Index.Exclude = []string{"["}
	_, err = NewFromConfig(root, cfg, nil, nil)
	assert.Error(t, err)
}

func TestLockSet(t *testing.T) {
	var locks LockSet

	assert.True(t, locks.TryAcquire("/a"))
	assert.False(t, locks.TryAcquire("/a"))
	assert.True(t, locks.TryAcquire("/b"))

	locks.Release("/a")
	assert.True(t, locks.TryAcquire("/a"))

	var wg sync.WaitGroup
	var acquired int32
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if locks.TryAcquire("/c") {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), acquired)
}

func TestFingerprint(t *testing.T) {
	root := t.TempDir()
	a := createTestFile(t, root, "a", "same")
	b := createTestFile(t, root, "b", "same")
	c := createTestFile(t, root, "c", "different")

	sa, err := Fingerprint(a)
	require.NoError(t, err)
	sb, err := Fingerprint(b)
	require.NoError(t, err)
	sc, err := Fingerprint(c)
	require.NoError(t, err)

	assert.Equal(t, sa, sb)
	assert.NotEqual(t, sa, sc)

	_, err = Fingerprint(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
