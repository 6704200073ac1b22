package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Crusty-rs/crusty/internal/errors"
	"github.com/Crusty-rs/crusty/internal/logging"
	"github.com/Crusty-rs/crusty/internal/retry"
	"github.com/Crusty-rs/crusty/internal/sshx"
	"github.com/Crusty-rs/crusty/internal/target"
)

func fastPolicy(maxRetries uint) *retry.Policy {
	return &retry.Policy{
		MaxRetries:      maxRetries,
		Logger:          logging.Nop(),
		InitialInterval: time.Microsecond,
		MaxInterval:     time.Microsecond,
	}
}

func makeTargets(n int) []target.Target {
	targets := make([]target.Target, n)
	for i := range targets {
		targets[i] = target.Target{Host: fmt.Sprintf("host%d", i), Port: 22}
	}
	return targets
}

func drain(results <-chan *Result) map[string]*Result {
	byHost := make(map[string]*Result)
	for r := range results {
		byHost[r.Target.Host] = r
	}
	return byHost
}

func TestOneResultPerTarget(t *testing.T) {
	targets := makeTargets(10)
	attempt := func(ctx context.Context, tg target.Target) (*sshx.Outcome, error) {
		return &sshx.Outcome{ExitCode: 0, Stdout: tg.Host + "\n"}, nil
	}
	d := New(4, fastPolicy(0), attempt, logging.Nop())

	byHost := drain(d.Run(context.Background(), targets))
	if len(byHost) != len(targets) {
		t.Fatalf("got %d results, want %d", len(byHost), len(targets))
	}
	for _, tg := range targets {
		r, ok := byHost[tg.Host]
		if !ok {
			t.Fatalf("missing result for %s", tg.Host)
		}
		if !r.Success || r.ExitCode == nil || *r.ExitCode != 0 {
			t.Errorf("result for %s = %+v", tg.Host, r)
		}
	}
}

func TestConcurrencyBound(t *testing.T) {
	const limit = 5
	var inFlight, peak int64
	var mu sync.Mutex

	attempt := func(ctx context.Context, tg target.Target) (*sshx.Outcome, error) {
		n := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return &sshx.Outcome{ExitCode: 0}, nil
	}

	d := New(limit, fastPolicy(0), attempt, logging.Nop())
	drain(d.Run(context.Background(), makeTargets(20)))

	mu.Lock()
	defer mu.Unlock()
	if peak > limit {
		t.Errorf("peak in-flight = %d, exceeds limit %d", peak, limit)
	}
	if peak < limit {
		t.Logf("peak in-flight = %d (scheduler never saturated the limit)", peak)
	}
}

func TestSlowHostDoesNotBlockOthers(t *testing.T) {
	slow := make(chan struct{})
	attempt := func(ctx context.Context, tg target.Target) (*sshx.Outcome, error) {
		if tg.Host == "host0" {
			<-slow
			return nil, errors.New(errors.KindTimeout, "idle", nil)
		}
		return &sshx.Outcome{ExitCode: 0}, nil
	}

	d := New(3, fastPolicy(0), attempt, logging.Nop())
	results := d.Run(context.Background(), makeTargets(6))

	// All fast hosts must deliver while host0 is still stuck.
	fast := 0
	for r := range results {
		if r.Target.Host != "host0" {
			fast++
			if fast == 5 {
				close(slow)
			}
			continue
		}
		if r.Success {
			t.Error("stalled host reported success")
		}
	}
	if fast != 5 {
		t.Errorf("fast results = %d, want 5", fast)
	}
}

func TestFailureCapturedNotPropagated(t *testing.T) {
	attempt := func(ctx context.Context, tg target.Target) (*sshx.Outcome, error) {
		return nil, errors.New(errors.KindAuth, "authentication failed", nil)
	}
	d := New(2, fastPolicy(3), attempt, logging.Nop())

	byHost := drain(d.Run(context.Background(), makeTargets(3)))
	for host, r := range byHost {
		if r.Success {
			t.Errorf("%s: expected failure", host)
		}
		if r.ExitCode != nil {
			t.Errorf("%s: exit code should be nil on mechanism failure, got %d", host, *r.ExitCode)
		}
		if r.Attempts != 1 {
			t.Errorf("%s: auth failure made %d attempts, want 1", host, r.Attempts)
		}
		if kind := errors.KindOf(r.Err); kind != errors.KindAuth {
			t.Errorf("%s: error kind = %v, want auth", host, kind)
		}
	}
}

func TestRetriesAnnotatedInResult(t *testing.T) {
	var calls sync.Map
	attempt := func(ctx context.Context, tg target.Target) (*sshx.Outcome, error) {
		n, _ := calls.LoadOrStore(tg.Host, new(int64))
		count := atomic.AddInt64(n.(*int64), 1)
		if count < 2 {
			return nil, errors.New(errors.KindConnect, "refused", nil)
		}
		return &sshx.Outcome{ExitCode: 0}, nil
	}

	d := New(2, fastPolicy(2), attempt, logging.Nop())
	byHost := drain(d.Run(context.Background(), makeTargets(2)))

	for host, r := range byHost {
		if !r.Success {
			t.Errorf("%s: expected eventual success, got %+v", host, r)
		}
		if r.Attempts != 2 {
			t.Errorf("%s: attempts = %d, want 2", host, r.Attempts)
		}
	}
}

func TestWaveTiming(t *testing.T) {
	// 10 targets at ~50ms each with concurrency 5 completes in two waves,
	// far below the serial time.
	attempt := func(ctx context.Context, tg target.Target) (*sshx.Outcome, error) {
		time.Sleep(50 * time.Millisecond)
		return &sshx.Outcome{ExitCode: 0}, nil
	}
	d := New(5, fastPolicy(0), attempt, logging.Nop())

	start := time.Now()
	drain(d.Run(context.Background(), makeTargets(10)))
	elapsed := time.Since(start)

	if elapsed > 250*time.Millisecond {
		t.Errorf("elapsed = %v, want bounded by two waves (~100ms)", elapsed)
	}
}

func TestConcurrencyClampedToOne(t *testing.T) {
	d := New(0, fastPolicy(0), func(ctx context.Context, tg target.Target) (*sshx.Outcome, error) {
		return &sshx.Outcome{ExitCode: 0}, nil
	}, logging.Nop())
	if d.concurrency != 1 {
		t.Errorf("concurrency = %d, want clamped to 1", d.concurrency)
	}
}

func TestNonZeroExitIsFailureResult(t *testing.T) {
	attempt := func(ctx context.Context, tg target.Target) (*sshx.Outcome, error) {
		return &sshx.Outcome{ExitCode: 3, Stderr: "nope\n"}, nil
	}
	d := New(1, fastPolicy(0), attempt, logging.Nop())
	byHost := drain(d.Run(context.Background(), makeTargets(1)))

	r := byHost["host0"]
	if r.Success {
		t.Error("non-zero exit reported as success")
	}
	if r.Err != nil {
		t.Errorf("non-zero exit is not a mechanism error, got %v", r.Err)
	}
	if r.ExitCode == nil || *r.ExitCode != 3 {
		t.Errorf("exit code = %v, want 3", r.ExitCode)
	}
}
