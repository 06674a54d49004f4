package languages

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// RetryPolicy configures exponential backoff for install commands.
type RetryPolicy struct {
	Attempts   int           // total tries, including the first
	BaseDelay  time.Duration // delay before the second try
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultInstallRetry absorbs transient npm registry failures.
var DefaultInstallRetry = RetryPolicy{
	Attempts:   3,
	BaseDelay:  2 * time.Second,
	MaxDelay:   10 * time.Second,
	Multiplier: 2,
}

// retryWithBackoff calls fn until it succeeds, the attempts run out, or ctx
// is done. A missing executable is not retried.
func retryWithBackoff(ctx context.Context, p RetryPolicy, fn func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, exec.ErrNotFound) {
			return err
		}
		if attempt == p.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
