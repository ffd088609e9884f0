package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithContextSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	got, err := RetryWithContext(context.Background(), 3, func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("RetryWithContext() error = %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3", attempts)
	}
}

func TestRetryWithContextReturnsLastError(t *testing.T) {
	wantErr := errors.New("persistent")
	attempts := 0
	_, err := RetryWithContext(context.Background(), 3, func(ctx context.Context) (int, error) {
		attempts++
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got err = %v, want %v", err, wantErr)
	}
	if attempts != 3 {
		t.Errorf("got %d attempts, want 3", attempts)
	}
}

func TestRetryDelayWithContextStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	start := time.Now()
	_, err := RetryDelayWithContext(ctx, 5, time.Minute, func(ctx context.Context) (int, error) {
		attempts++
		cancel()
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got err = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("got %d attempts, want 1", attempts)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation should cut the delay short")
	}
}

func TestRetryWithContextAbortsOnContextError(t *testing.T) {
	attempts := 0
	_, err := RetryWithContext(context.Background(), 5, func(ctx context.Context) (int, error) {
		attempts++
		return 0, context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got err = %v, want deadline exceeded", err)
	}
	if attempts != 1 {
		t.Errorf("got %d attempts, want 1 (no retry on context errors)", attempts)
	}
}
