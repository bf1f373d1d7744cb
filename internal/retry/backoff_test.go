package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := Do(context.Background(), DefaultConfig(), zerolog.Nop(), func() error {
		calls++
		return nil
	})

	if !result.Success {
		t.Fatalf("expected success, got failure: %v", result.LastError)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesRetryableError(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	result := Do(context.Background(), cfg, zerolog.Nop(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if !result.Success {
		t.Fatalf("expected eventual success, got: %v", result.LastError)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(result.RetryReasons) != 2 {
		t.Errorf("expected 2 recorded reasons, got %d", len(result.RetryReasons))
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	result := Do(context.Background(), cfg, zerolog.Nop(), func() error {
		calls++
		return errors.New("invalid api key")
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	cfg := Config{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Do(ctx, cfg, zerolog.Nop(), func() error {
		calls++
		return errors.New("timeout")
	})

	if result.Success {
		t.Fatal("expected failure after cancellation")
	}
	if !errors.Is(result.LastError, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.LastError)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []string{
		"connection refused",
		"HTTP 429 Too Many Requests",
		"rate limit exceeded",
		"context deadline exceeded",
		"503 service unavailable",
	}
	for _, msg := range retryable {
		if !IsRetryable(errors.New(msg)) {
			t.Errorf("expected %q to be retryable", msg)
		}
	}

	if IsRetryable(nil) {
		t.Error("nil error must not be retryable")
	}
	if IsRetryable(errors.New("invalid request payload")) {
		t.Error("validation errors must not be retryable")
	}
}

func TestCalculateDelayCapped(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2.0}

	if d := calculateDelay(cfg, 0); d != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", d)
	}
	if d := calculateDelay(cfg, 10); d != 4*time.Second {
		t.Errorf("attempt 10: expected cap of 4s, got %v", d)
	}
}
