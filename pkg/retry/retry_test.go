package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.NewNopLogger(),
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, fastConfig(3))

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errors.Navigation("page load failed")
		}
		return nil
	}, fastConfig(5))

	if err != nil {
		t.Fatalf("Expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errors.Navigation("always failing")
	}, fastConfig(3))

	if err == nil {
		t.Fatal("Expected failure after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errors.Validation("malformed designer record")
	}, fastConfig(5))

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Validation errors must not be retried, got %d calls", calls)
	}
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(0) // unlimited attempts
	cfg.Context = ctx

	calls := 0
	err := Do(func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.Navigation("transient")
	}, cfg)

	if err == nil {
		t.Fatal("Expected error after cancellation")
	}
	if calls > 3 {
		t.Errorf("Expected retries to stop promptly after cancel, got %d calls", calls)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.Storage("write conflict")
		}
		return "done", nil
	}, fastConfig(3))

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if got != "done" {
		t.Errorf("Expected result %q, got %q", "done", got)
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{errors.Validation("x"), false},
		{errors.NotFound("x"), false},
		{errors.Navigation("x"), true},
		{errors.Storage("x"), true},
		{fmt.Errorf("wrapped: %w", errors.Navigation("x")), true},
		{fmt.Errorf("unknown"), true},
	}

	for _, tt := range tests {
		if got := DefaultRetryIf(tt.err); got != tt.want {
			t.Errorf("DefaultRetryIf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestOnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = Do(func() error {
		return errors.Navigation("transient")
	}, cfg)

	if len(attempts) != 3 {
		t.Errorf("Expected a callback per failed attempt, got %d", len(attempts))
	}
}

func TestExponentialBackoffGrowth(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}

	if eb.NextDelay(0) != 0 {
		t.Error("Attempt 0 must have no delay")
	}
	if got := eb.NextDelay(1); got != time.Second {
		t.Errorf("Attempt 1 delay = %v, want 1s", got)
	}
	if got := eb.NextDelay(2); got != 2*time.Second {
		t.Errorf("Attempt 2 delay = %v, want 2s", got)
	}
	if got := eb.NextDelay(10); got != 10*time.Second {
		t.Errorf("Delay must cap at MaxDelay, got %v", got)
	}
}

func TestRetrierBuilder(t *testing.T) {
	calls := 0
	r := NewRetrier(fastConfig(5)).WithMaxAttempts(2)

	err := r.Do(func() error {
		calls++
		return errors.Navigation("transient")
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}
