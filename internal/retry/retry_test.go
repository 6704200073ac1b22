package retry

import (
	"context"
	"testing"
	"time"

	"github.com/Crusty-rs/crusty/internal/errors"
	"github.com/Crusty-rs/crusty/internal/logging"
	"github.com/Crusty-rs/crusty/internal/sshx"
	"github.com/Crusty-rs/crusty/internal/target"
)

// fastPolicy keeps backoff delays negligible in tests.
func fastPolicy(maxRetries uint) *Policy {
	return &Policy{
		MaxRetries:      maxRetries,
		Logger:          logging.Nop(),
		InitialInterval: time.Microsecond,
		MaxInterval:     time.Microsecond,
	}
}

var testTarget = target.Target{Host: "web1", Port: 22}

func TestSuccessFirstAttempt(t *testing.T) {
	p := fastPolicy(3)
	var calls uint
	outcome, attempts, err := p.Do(context.Background(), testTarget, func(ctx context.Context) (*sshx.Outcome, error) {
		calls++
		return &sshx.Outcome{ExitCode: 0, Stdout: "ok\n"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("calls=%d attempts=%d, want 1/1", calls, attempts)
	}
	if outcome.Stdout != "ok\n" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestRetryableFailureConsumesBudget(t *testing.T) {
	p := fastPolicy(2)
	var calls uint
	_, attempts, err := p.Do(context.Background(), testTarget, func(ctx context.Context) (*sshx.Outcome, error) {
		calls++
		return nil, errors.New(errors.KindConnect, "refused", nil)
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 || attempts != 3 {
		t.Errorf("calls=%d attempts=%d, want max_retries+1 = 3", calls, attempts)
	}
	if kind := errors.KindOf(err); kind != errors.KindConnect {
		t.Errorf("error kind = %v, want connect", kind)
	}
}

func TestAuthFailureNeverRetried(t *testing.T) {
	p := fastPolicy(5)
	var calls uint
	_, attempts, err := p.Do(context.Background(), testTarget, func(ctx context.Context) (*sshx.Outcome, error) {
		calls++
		return nil, errors.New(errors.KindAuth, "authentication failed", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("calls=%d attempts=%d, want exactly one attempt", calls, attempts)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	p := fastPolicy(3)
	var calls uint
	outcome, attempts, err := p.Do(context.Background(), testTarget, func(ctx context.Context) (*sshx.Outcome, error) {
		calls++
		if calls < 3 {
			return nil, errors.New(errors.KindTimeout, "idle", nil)
		}
		return &sshx.Outcome{ExitCode: 0}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if outcome == nil || outcome.ExitCode != 0 {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestNonZeroExitIsNotRetried(t *testing.T) {
	// A failing remote command is a legitimate outcome, not a mechanism
	// failure; it must not consume the retry budget.
	p := fastPolicy(3)
	var calls uint
	outcome, attempts, err := p.Do(context.Background(), testTarget, func(ctx context.Context) (*sshx.Outcome, error) {
		calls++
		return &sshx.Outcome{ExitCode: 7, Stderr: "boom\n"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("calls=%d attempts=%d, want 1/1", calls, attempts)
	}
	if outcome.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", outcome.ExitCode)
	}
}

func TestContextCancellationStopsRetries(t *testing.T) {
	p := fastPolicy(100)
	ctx, cancel := context.WithCancel(context.Background())
	var calls uint
	_, _, err := p.Do(ctx, testTarget, func(ctx context.Context) (*sshx.Outcome, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return nil, errors.New(errors.KindConnect, "refused", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls > 3 {
		t.Errorf("calls = %d, want retries to stop promptly after cancel", calls)
	}
}
