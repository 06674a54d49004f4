package languages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IndexerConfig is the per-adapter command configuration.
type IndexerConfig struct {
	Command        string
	InstallCommand []string
	// ProjectName overrides the name detected from project metadata.
	ProjectName string
	// InstallRetry bounds retries of a failing install (default
	// DefaultInstallRetry).
	InstallRetry RetryPolicy
}

// PythonAdapter drives scip-python.
type PythonAdapter struct {
	cfg    IndexerConfig
	runner CommandRunner
}

// NewPythonAdapter creates a Python adapter. Empty config fields fall back
// to scip-python defaults; a nil runner uses ExecRunner.
func NewPythonAdapter(cfg IndexerConfig, runner CommandRunner) *PythonAdapter {
	if cfg.Command == "" {
		cfg.Command = "scip-python"
	}
	if len(cfg.InstallCommand) == 0 {
		cfg.InstallCommand = []string{"npm", "install", "-g", "@sourcegraph/scip-python"}
	}
	if cfg.InstallRetry.Attempts == 0 {
		cfg.InstallRetry = DefaultInstallRetry
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PythonAdapter{cfg: cfg, runner: runner}
}

// Name implements Adapter.
func (a *PythonAdapter) Name() string { return "python" }

// Extensions implements Adapter.
func (a *PythonAdapter) Extensions() []string { return []string{".py"} }

// IsIndexerAvailable implements Adapter.
func (a *PythonAdapter) IsIndexerAvailable(ctx context.Context, projectRoot string) bool {
	_, err := resolveCommand(a.runner, projectRoot, a.cfg.Command)
	return err == nil
}

// InstallIndexer implements Adapter.
func (a *PythonAdapter) InstallIndexer(ctx context.Context, projectRoot string, opts InstallOptions) error {
	msg := fmt.Sprintf("scip-python is not installed. Run %q to install it?", strings.Join(a.cfg.InstallCommand, " "))
	if err := confirmInstall(ctx, opts, msg); err != nil {
		return err
	}
	return runInstall(ctx, a.runner, projectRoot, a.cfg)
}

// GenerateIndex implements Adapter.
func (a *PythonAdapter) GenerateIndex(ctx context.Context, req GenerateRequest) error {
	bin, err := resolveCommand(a.runner, req.ProjectRoot, a.cfg.Command)
	if err != nil {
		return err
	}

	name, version := readPyprojectMeta(req.ProjectRoot)
	if a.cfg.ProjectName != "" {
		name = a.cfg.ProjectName
	}
	if name == "" {
		name = filepath.Base(req.ProjectRoot)
	}

	args := []string{"index", ".", "--output", req.OutputPath, "--project-name", name}
	if version != "" {
		args = append(args, "--project-version", version)
	}

	progress(req.OnProgress, "Running scip-python on %s", name)
	return a.runner.Run(ctx, Command{
		Name:   bin,
		Args:   args,
		Dir:    req.ProjectRoot,
		OnLine: req.OnProgress,
	})
}

// resolveCommand prefers a project-local node_modules/.bin binary, then
// the PATH. Absolute commands are used as-is when they exist.
func resolveCommand(runner CommandRunner, projectRoot, command string) (string, error) {
	if filepath.IsAbs(command) {
		if _, err := os.Stat(command); err != nil {
			return "", fmt.Errorf("indexer %s not found: %w", command, err)
		}
		return command, nil
	}

	local := filepath.Join(projectRoot, "node_modules", ".bin", command)
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local, nil
	}

	path, err := runner.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("indexer %s not found: %w", command, err)
	}
	return path, nil
}

// runInstall runs cfg.InstallCommand, retrying per cfg.InstallRetry.
func runInstall(ctx context.Context, runner CommandRunner, projectRoot string, cfg IndexerConfig) error {
	command := cfg.InstallCommand
	if len(command) == 0 {
		return errors.New("no install command configured")
	}
	return retryWithBackoff(ctx, cfg.InstallRetry, func() error {
		return runner.Run(ctx, Command{
			Name: command[0],
			Args: command[1:],
			Dir:  projectRoot,
		})
	})
}
