// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection reset by peer")
	permanent := errors.New("manifest unknown")

	tests := []struct {
		name        string
		maxAttempts int
		failFor     int
		retry       bool
		wantErr     error
		wantCalls   int
	}{
		{name: "succeeds first attempt", maxAttempts: 3, failFor: 0, retry: true, wantCalls: 1},
		{name: "retries then succeeds", maxAttempts: 5, failFor: 2, retry: true, wantCalls: 3},
		{name: "exhausts retries", maxAttempts: 3, failFor: 10, retry: true, wantErr: transient, wantCalls: 3},
		{name: "permanent error stops", maxAttempts: 5, failFor: 10, retry: false, wantErr: permanent, wantCalls: 1},
		{name: "zero attempts runs once", maxAttempts: 0, failFor: 10, retry: true, wantErr: transient, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := RetryWithBackoff(context.Background(), tt.maxAttempts, time.Millisecond, func(attempt int) (bool, error) {
				calls++
				if attempt < tt.failFor {
					if tt.retry {
						return true, transient
					}
					return false, permanent
				}
				return false, nil
			})

			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryWithBackoff_ContextCancelledBetweenRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, 5, 10*time.Millisecond, func(attempt int) (bool, error) {
		calls++
		if attempt == 0 {
			cancel()
			return true, errors.New("transient")
		}
		t.Error("should not reach second attempt")
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_BackoffTiming(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_ = RetryWithBackoff(context.Background(), 3, 50*time.Millisecond, func(int) (bool, error) {
		return true, errors.New("retry")
	})
	// 50ms then 100ms between the three attempts.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("expected at least 100ms of backoff, got %v", elapsed)
	}
}
