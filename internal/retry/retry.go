// Package retry implements the per-target retry policy: retryable failures
// are re-attempted with bounded jittered backoff up to a configured budget;
// non-retryable failures terminate immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Crusty-rs/crusty/internal/errors"
	"github.com/Crusty-rs/crusty/internal/logging"
	"github.com/Crusty-rs/crusty/internal/sshx"
	"github.com/Crusty-rs/crusty/internal/target"
)

// Attempt performs one full establish+run cycle against a target. Each
// invocation must open a fresh session.
type Attempt func(ctx context.Context) (*sshx.Outcome, error)

// Policy holds the retry budget for a run. Shared read-only by all tasks.
type Policy struct {
	MaxRetries uint
	Logger     *logging.Logger

	// Backoff bounds between attempts. Zero values pick the defaults.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

const (
	defaultInitialInterval = 250 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// Do runs the attempt for one target, re-attempting retryable failures up
// to MaxRetries times. It reports the outcome of the last attempt, the
// total number of attempts made, and the last error when all attempts
// failed. Attempts for a single target are strictly sequential.
func (p *Policy) Do(ctx context.Context, t target.Target, attempt Attempt) (*sshx.Outcome, uint, error) {
	initial := p.InitialInterval
	if initial <= 0 {
		initial = defaultInitialInterval
	}
	max := p.MaxInterval
	if max <= 0 {
		max = defaultMaxInterval
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxInterval = max
	exp.MaxElapsedTime = 0 // attempt count is the only bound

	bo := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)

	var outcome *sshx.Outcome
	var attempts uint

	op := func() error {
		attempts++
		o, err := attempt(ctx)
		if err == nil {
			outcome = o
			return nil
		}
		if !errors.IsRetryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if p.Logger != nil && attempts <= p.MaxRetries {
			p.Logger.LogRetry(t, attempts, errors.KindOf(err).String())
		}
		return err
	}

	err := backoff.Retry(op, bo)
	return outcome, attempts, err
}
