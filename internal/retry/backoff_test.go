package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"civicrelay/internal/models"
)

func fastConfig(attempts int) BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
	}
}

func TestBackoff_DefaultConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	if config.InitialDelay != time.Second {
		t.Errorf("Expected initial delay of 1s, got %v", config.InitialDelay)
	}
	if config.MaxDelay != time.Minute {
		t.Errorf("Expected max delay of 1m, got %v", config.MaxDelay)
	}
	if config.MaxAttempts != 3 {
		t.Errorf("Expected max attempts of 3, got %v", config.MaxAttempts)
	}
	if !config.Jitter {
		t.Error("Expected jitter to be enabled by default")
	}
}

func TestFromConfig(t *testing.T) {
	config := FromConfig(models.RetryConfig{InitialBackoffMs: 250, MaxBackoffMs: 4000, MaxAttempts: 7})
	if config.InitialDelay != 250*time.Millisecond {
		t.Errorf("Expected initial delay of 250ms, got %v", config.InitialDelay)
	}
	if config.MaxDelay != 4*time.Second {
		t.Errorf("Expected max delay of 4s, got %v", config.MaxDelay)
	}
	if config.MaxAttempts != 7 {
		t.Errorf("Expected 7 attempts, got %d", config.MaxAttempts)
	}

	defaults := FromConfig(models.RetryConfig{})
	if defaults != DefaultBackoffConfig() {
		t.Errorf("Expected defaults for an empty retry section, got %+v", defaults)
	}
}

func TestBackoff_SuccessFirstAttempt(t *testing.T) {
	attempts := 0
	err := NewBackoff(fastConfig(3)).Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	var notified []int
	backoff := NewBackoff(fastConfig(5)).OnRetry(func(attempt int, delay time.Duration, err error) {
		notified = append(notified, attempt)
	})

	err := backoff.Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("portal unavailable")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Errorf("Expected retry notifications for attempts 1 and 2, got %v", notified)
	}
}

func TestBackoff_FailureAfterMaxAttempts(t *testing.T) {
	attempts := 0
	want := errors.New("persistent failure")

	err := NewBackoff(fastConfig(3)).Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return want
	})

	if !errors.Is(err, want) {
		t.Errorf("Expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestBackoff_ContextCancellation(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
		MaxAttempts:  3,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- backoff.Retry(ctx, func(ctx context.Context) error {
			attempts++
			return errors.New("failure")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestBackoff_ContextCancelledBeforeOperation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewBackoff(fastConfig(3)).Retry(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("Operation must not run with a cancelled context")
	}
}

func TestBackoff_ExponentialIncrease(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
	})

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for i, want := range expected {
		if got := backoff.GetNextDelay(i + 1); got != want {
			t.Errorf("Attempt %d: expected delay %v, got %v", i+1, want, got)
		}
	}
}

func TestBackoff_MaxDelayConstraint(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   10.0,
		MaxAttempts:  5,
	})

	if got := backoff.GetNextDelay(3); got != 2*time.Second {
		t.Errorf("Expected delay capped at 2s, got %v", got)
	}
	if got := backoff.GetNextDelay(1000); got != 2*time.Second {
		t.Errorf("Expected delay capped at 2s for high attempt numbers, got %v", got)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       true,
	})

	for i := 0; i < 100; i++ {
		delay := backoff.GetNextDelay(1)
		if delay < 75*time.Millisecond || delay > 125*time.Millisecond {
			t.Fatalf("Delay %v outside of ±25%% jitter bounds", delay)
		}
	}
}

func TestBackoff_WithPredicate_NonRetryableError(t *testing.T) {
	attempts := 0
	fatal := errors.New("bad request")

	err := NewBackoff(fastConfig(5)).RetryWithPredicate(context.Background(), func(ctx context.Context) error {
		attempts++
		return fatal
	}, func(err error) bool { return !errors.Is(err, fatal) })

	if !errors.Is(err, fatal) {
		t.Errorf("Expected non-retryable error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestDo_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), NewBackoff(fastConfig(3)), func(ctx context.Context) ([]string, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("timeout")
		}
		return []string{"a", "b"}, nil
	}, func(error) bool { return true })

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(got) != 2 || attempts != 2 {
		t.Errorf("Expected 2 results after 2 attempts, got %v after %d", got, attempts)
	}
}

func TestNewBackoff_SanitizesConfig(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	_ = backoff.Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("failure")
	})
	if attempts != 1 {
		t.Errorf("Expected a zero attempt config to run once, got %d", attempts)
	}
	if got := backoff.GetNextDelay(5); got != time.Millisecond {
		t.Errorf("Expected a zero multiplier to keep the initial delay, got %v", got)
	}
}

func TestDo_NilPredicateRetriesEverything(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), NewBackoff(fastConfig(3)), func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("connection refused")
	}, nil)

	if err == nil {
		t.Fatal("Expected error after all attempts")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}
