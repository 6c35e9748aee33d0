package gen

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("got 429 Too Many Requests"), true},
		{"server error", errors.New("upstream returned 503"), true},
		{"timeout", errors.New("request timeout exceeded"), true},
		{"unavailable", errors.New("service unavailable"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("model call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"bad request", errors.New("invalid argument: empty prompt"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryConfigDefaults(t *testing.T) {
	cfg := RetryConfig{}.withDefaults()

	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialInterval != 500*time.Millisecond {
		t.Errorf("InitialInterval = %v, want 500ms", cfg.InitialInterval)
	}
	if cfg.MaxInterval != 10*time.Second {
		t.Errorf("MaxInterval = %v, want 10s", cfg.MaxInterval)
	}

	custom := RetryConfig{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Minute}.withDefaults()
	if custom != (RetryConfig{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Minute}) {
		t.Errorf("withDefaults overwrote explicit values: %+v", custom)
	}
}
