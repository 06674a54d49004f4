// Package languages defines the contract each SCIP language adapter
// satisfies, the built-in adapters, and the registry that picks the ones
// applicable to a project.
package languages

import (
	"context"
	"errors"
	"fmt"
)

// ErrInstallCancelled is returned when installation needs consent and the
// confirm callback declines.
var ErrInstallCancelled = errors.New("installation cancelled")

// ConfirmFunc asks for consent before a persistent change. Returning false
// declines.
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

// ProgressFunc receives human-readable progress messages.
type ProgressFunc func(message string)

// InstallOptions is passed to InstallIndexer.
type InstallOptions struct {
	// Confirm, when set, is consulted before anything is installed.
	Confirm ConfirmFunc
}

// GenerateRequest is passed to GenerateIndex.
type GenerateRequest struct {
	ProjectRoot string
	OutputPath  string
	Incremental bool
	OnProgress  ProgressFunc
}

// Adapter is implemented by every supported language.
type Adapter interface {
	// Name is a stable identifier such as "python".
	Name() string
	// Extensions are the file suffixes that mark the language as present.
	Extensions() []string
	IsIndexerAvailable(ctx context.Context, projectRoot string) bool
	InstallIndexer(ctx context.Context, projectRoot string, opts InstallOptions) error
	// GenerateIndex writes a SCIP index to req.OutputPath. Cancellation of
	// ctx must stop the underlying process.
	GenerateIndex(ctx context.Context, req GenerateRequest) error
}

// confirmInstall runs the consent gate shared by the built-in adapters.
func confirmInstall(ctx context.Context, opts InstallOptions, message string) error {
	if opts.Confirm == nil {
		return nil
	}
	ok, err := opts.Confirm(ctx, message)
	if err != nil {
		return fmt.Errorf("install confirmation failed: %w", err)
	}
	if !ok {
		return ErrInstallCancelled
	}
	return nil
}

func progress(fn ProgressFunc, format string, args ...interface{}) {
	if fn != nil {
		fn(fmt.Sprintf(format, args...))
	}
}
