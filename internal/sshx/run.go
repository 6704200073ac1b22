package sshx

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/Crusty-rs/crusty/internal/errors"
)

// Outcome is the raw result of one command execution over one session.
// Non-zero exit is a normal outcome at this layer, not an error.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// StdoutLines splits stdout on line boundaries, excluding the trailing
// empty segment produced by a final newline.
func (o *Outcome) StdoutLines() []string {
	if o.Stdout == "" {
		return nil
	}
	lines := strings.Split(o.Stdout, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// activityBuffer accumulates output while recording when data last arrived,
// so the idle watchdog can distinguish a slow command from a dead one.
type activityBuffer struct {
	mu   *sync.Mutex
	last *time.Time
	buf  strings.Builder
}

func (b *activityBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	*b.last = time.Now()
	return b.buf.Write(p)
}

func (b *activityBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run executes command verbatim on the session, capturing stdout and stderr
// as they arrive. If no output and no completion signal arrive within
// ioTimeout of the last observed activity, the session is aborted and a
// timeout error reported. Duration runs from the request send to the exit
// status (or the abort).
func Run(ctx context.Context, sess *Session, command string, ioTimeout time.Duration) (*Outcome, error) {
	channel, err := sess.client.NewSession()
	if err != nil {
		return nil, errors.New(errors.KindExecution, "cannot open exec channel", err)
	}
	defer channel.Close()

	var mu sync.Mutex
	lastActivity := time.Now()
	stdout := &activityBuffer{mu: &mu, last: &lastActivity}
	stderr := &activityBuffer{mu: &mu, last: &lastActivity}
	channel.Stdout = stdout
	channel.Stderr = stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- channel.Run(command)
	}()

	// Idle watchdog: poll at a fraction of the timeout so an abort fires
	// close to the configured budget.
	tick := ioTimeout / 10
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			outcome := &Outcome{
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
				Duration: time.Since(start),
			}
			if err != nil {
				if exitErr, ok := err.(*ssh.ExitError); ok {
					outcome.ExitCode = exitErr.ExitStatus()
					return outcome, nil
				}
				return nil, errors.New(errors.KindExecution, "remote execution failed", err)
			}
			return outcome, nil

		case <-ticker.C:
			mu.Lock()
			idle := time.Since(lastActivity)
			mu.Unlock()
			if idle >= ioTimeout {
				abort(channel, done)
				return nil, errors.New(errors.KindTimeout,
					"no activity for "+ioTimeout.String(), nil)
			}

		case <-ctx.Done():
			abort(channel, done)
			return nil, errors.New(errors.KindTimeout, "execution canceled", ctx.Err())
		}
	}
}

// abort signals the remote process and tears the channel down, giving a
// short grace period for SIGTERM to land before the hard close.
func abort(channel *ssh.Session, done <-chan error) {
	_ = channel.Signal(ssh.SIGTERM)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = channel.Signal(ssh.SIGKILL)
	}
	_ = channel.Close()
}
