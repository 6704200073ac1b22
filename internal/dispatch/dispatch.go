// Package dispatch owns the bounded pool of simultaneous per-target
// executions and the result stream they feed.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/Crusty-rs/crusty/internal/logging"
	"github.com/Crusty-rs/crusty/internal/retry"
	"github.com/Crusty-rs/crusty/internal/sshx"
	"github.com/Crusty-rs/crusty/internal/target"
)

// Result is the single terminal outcome produced for one target. Ownership
// passes to the consumer when it leaves the dispatcher's channel.
type Result struct {
	Target    target.Target
	Attempts  uint
	Success   bool
	ExitCode  *int // nil when the mechanism itself failed
	Stdout    string
	Stderr    string
	Duration  time.Duration
	Err       error // classified; nil on mechanism success
	Timestamp time.Time
}

// StdoutLines splits stdout on line boundaries, excluding the trailing
// empty segment from a final newline.
func (r *Result) StdoutLines() []string {
	o := sshx.Outcome{Stdout: r.Stdout}
	return o.StdoutLines()
}

// AttemptFunc performs a single connect+run attempt against one target,
// opening a fresh session.
type AttemptFunc func(ctx context.Context, t target.Target) (*sshx.Outcome, error)

// SSHAttempt builds the production attempt: establish a session, run the
// command with the io timeout, close the session.
func SSHAttempt(est *sshx.Establisher, command string, ioTimeout time.Duration) AttemptFunc {
	return func(ctx context.Context, t target.Target) (*sshx.Outcome, error) {
		sess, err := est.Establish(ctx, t)
		if err != nil {
			return nil, err
		}
		defer sess.Close()
		return sshx.Run(ctx, sess, command, ioTimeout)
	}
}

// Dispatcher launches one retry-wrapped task per target behind a counting
// admission gate of the configured size.
type Dispatcher struct {
	concurrency int
	policy      *retry.Policy
	attempt     AttemptFunc
	logger      *logging.Logger
}

// New builds a dispatcher. Concurrency is clamped to a minimum of 1.
func New(concurrency int, policy *retry.Policy, attempt AttemptFunc, logger *logging.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		concurrency: concurrency,
		policy:      policy,
		attempt:     attempt,
		logger:      logger,
	}
}

// Run starts one task per target and returns the stream of results in true
// completion order. The channel is closed once every target has produced
// exactly one result. A slow or stalled host occupies only its own
// admission slot; it never blocks another target's delivery.
func (d *Dispatcher) Run(ctx context.Context, targets []target.Target) <-chan *Result {
	d.logger.LogDispatchStart(len(targets), d.concurrency, d.policy.MaxRetries)

	results := make(chan *Result, len(targets))
	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup

	for _, t := range targets {
		wg.Add(1)
		go func(t target.Target) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- d.runTarget(ctx, t)
		}(t)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// runTarget executes the retry-wrapped attempt cycle for one target and
// folds the last attempt's outcome into the terminal Result. Errors never
// propagate out of the task; they are captured into the result.
func (d *Dispatcher) runTarget(ctx context.Context, t target.Target) *Result {
	start := time.Now()
	outcome, attempts, err := d.policy.Do(ctx, t, func(ctx context.Context) (*sshx.Outcome, error) {
		return d.attempt(ctx, t)
	})

	r := &Result{
		Target:    t,
		Attempts:  attempts,
		Timestamp: time.Now(),
	}

	if err != nil {
		r.Err = err
		r.Duration = time.Since(start)
		d.logger.LogTargetFailed(t, err, attempts)
		return r
	}

	exit := outcome.ExitCode
	r.ExitCode = &exit
	r.Stdout = outcome.Stdout
	r.Stderr = outcome.Stderr
	r.Duration = outcome.Duration
	r.Success = exit == 0
	d.logger.LogTargetDone(t, exit, outcome.Duration, attempts)
	return r
}
