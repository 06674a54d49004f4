package languages

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+[0-9A-Za-z.+-]*`)

// TypeScriptAdapter drives scip-typescript. It covers JavaScript sources too.
type TypeScriptAdapter struct {
	cfg    IndexerConfig
	runner CommandRunner
}

// NewTypeScriptAdapter creates a TypeScript adapter. Empty config fields fall
// back to scip-typescript defaults; a nil runner uses ExecRunner.
func NewTypeScriptAdapter(cfg IndexerConfig, runner CommandRunner) *TypeScriptAdapter {
	if cfg.Command == "" {
		cfg.Command = "scip-typescript"
	}
	if len(cfg.InstallCommand) == 0 {
		cfg.InstallCommand = []string{"npm", "install", "-g", "@sourcegraph/scip-typescript"}
	}
	if cfg.InstallRetry.Attempts == 0 {
		cfg.InstallRetry = DefaultInstallRetry
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &TypeScriptAdapter{cfg: cfg, runner: runner}
}

// Name implements Adapter.
func (a *TypeScriptAdapter) Name() string { return "typescript" }

// Extensions implements Adapter.
func (a *TypeScriptAdapter) Extensions() []string {
	return []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}
}

// IsIndexerAvailable implements Adapter.
func (a *TypeScriptAdapter) IsIndexerAvailable(ctx context.Context, projectRoot string) bool {
	_, err := resolveCommand(a.runner, projectRoot, a.cfg.Command)
	return err == nil
}

// InstallIndexer implements Adapter.
func (a *TypeScriptAdapter) InstallIndexer(ctx context.Context, projectRoot string, opts InstallOptions) error {
	msg := fmt.Sprintf("scip-typescript is not installed. Run %q to install it?", strings.Join(a.cfg.InstallCommand, " "))
	if err := confirmInstall(ctx, opts, msg); err != nil {
		return err
	}
	return runInstall(ctx, a.runner, projectRoot, a.cfg)
}

// GenerateIndex implements Adapter.
func (a *TypeScriptAdapter) GenerateIndex(ctx context.Context, req GenerateRequest) error {
	bin, err := resolveCommand(a.runner, req.ProjectRoot, a.cfg.Command)
	if err != nil {
		return err
	}

	progress(req.OnProgress, "Running scip-typescript")
	return a.runner.Run(ctx, Command{
		Name:   bin,
		Args:   typescriptArgs(req.ProjectRoot, req.OutputPath),
		Dir:    req.ProjectRoot,
		OnLine: req.OnProgress,
	})
}

// IndexerVersion returns the installed scip-typescript version.
func (a *TypeScriptAdapter) IndexerVersion(ctx context.Context, projectRoot string) (*semver.Version, error) {
	bin, err := resolveCommand(a.runner, projectRoot, a.cfg.Command)
	if err != nil {
		return nil, err
	}
	out, err := a.runner.Output(ctx, Command{Name: bin, Args: []string{"--version"}, Dir: projectRoot})
	if err != nil {
		return nil, err
	}
	return parseVersion(out)
}

func parseVersion(out string) (*semver.Version, error) {
	raw := versionPattern.FindString(out)
	if raw == "" {
		return nil, fmt.Errorf("no version in %q", out)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return v, nil
}

func typescriptArgs(projectRoot, outputPath string) []string {
	args := []string{"index", "--output", outputPath}
	if !fileExists(filepath.Join(projectRoot, "tsconfig.json")) {
		args = append(args, "--infer-tsconfig")
	}
	if fileExists(filepath.Join(projectRoot, "pnpm-workspace.yaml")) {
		args = append(args, "--pnpm-workspaces")
	} else if fileExists(filepath.Join(projectRoot, "yarn.lock")) && hasYarnWorkspaces(projectRoot) {
		args = append(args, "--yarn-workspaces")
	}
	return args
}

func hasYarnWorkspaces(projectRoot string) bool {
	data, err := os.ReadFile(filepath.Join(projectRoot, "package.json"))
	if err != nil {
		return false
	}
	var pkg map[string]json.RawMessage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg["workspaces"]
	return ok
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
