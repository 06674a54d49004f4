package languages

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

func TestInstallRetries(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	t.Run("transient failure then success", func(t *testing.T) {
		runner := &fakeRunner{failFirst: 2}
		a := NewPythonAdapter(IndexerConfig{InstallRetry: fastRetry}, runner)
		require.NoError(t, a.InstallIndexer(ctx, root, InstallOptions{}))
		assert.Len(t, runner.commands, 3)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		runner := &fakeRunner{failFirst: 5}
		a := NewTypeScriptAdapter(IndexerConfig{InstallRetry: fastRetry}, runner)
		err := a.InstallIndexer(ctx, root, InstallOptions{})
		assert.ErrorIs(t, err, errTransient)
		assert.Len(t, runner.commands, 3)
	})

	t.Run("missing npm is not retried", func(t *testing.T) {
		runner := &fakeRunner{runErr: &CommandError{Command: "npm", Err: fmt.Errorf("exec: %w", exec.ErrNotFound)}}
		a := NewPythonAdapter(IndexerConfig{InstallRetry: fastRetry}, runner)
		err := a.InstallIndexer(ctx, root, InstallOptions{})
		assert.ErrorIs(t, err, exec.ErrNotFound)
		assert.Len(t, runner.commands, 1)
	})

	t.Run("default policy", func(t *testing.T) {
		a := NewPythonAdapter(IndexerConfig{}, &fakeRunner{})
		assert.Equal(t, DefaultInstallRetry, a.cfg.InstallRetry)
	})
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retryWithBackoff(ctx, RetryPolicy{Attempts: 5, BaseDelay: time.Hour}, func() error {
			calls++
			cancel()
			return errTransient
		})
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), RetryPolicy{}, func() error {
			calls++
			return errors.New("fail")
		})
		assert.EqualError(t, err, "fail")
		assert.Equal(t, 1, calls)
	})

	t.Run("delay is capped", func(t *testing.T) {
		calls := 0
		start := time.Now()
		err := retryWithBackoff(context.Background(), RetryPolicy{
			Attempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 100,
		}, func() error {
			calls++
			return errTransient
		})
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 4, calls)
		assert.Less(t, time.Since(start), time.Second)
	})
}
