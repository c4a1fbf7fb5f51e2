package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"lexiscan/internal/llm"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &llm.InvocationError{Kind: llm.KindRateLimited}, true},
		{"unavailable", &llm.InvocationError{Kind: llm.KindUnavailable}, true},
		{"timeout", &llm.InvocationError{Kind: llm.KindTimeout}, true},
		{"auth", &llm.InvocationError{Kind: llm.KindAuth}, false},
		{"refused", &llm.InvocationError{Kind: llm.KindRefused}, false},
		{"bad request", &llm.InvocationError{Kind: llm.KindBadRequest}, false},
		{"wrapped transient", fmt.Errorf("stage: %w", &llm.InvocationError{Kind: llm.KindUnavailable}), true},
		{"stage deadline", context.DeadlineExceeded, true},
		{"cancellation", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	for _, tt := range []struct {
		attempt  int
		min, max time.Duration
	}{
		{0, time.Second, 1500 * time.Millisecond},
		{1, 2 * time.Second, 3 * time.Second},
		{2, 4 * time.Second, 6 * time.Second},
		{10, 30 * time.Second, 45 * time.Second},
	} {
		got := Backoff(tt.attempt)
		if got < tt.min || got > tt.max {
			t.Errorf("Backoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.min, tt.max)
		}
	}
}

func TestBackoff_Jitters(t *testing.T) {
	seen := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		seen[Backoff(3)] = true
	}
	if len(seen) < 2 {
		t.Error("expected jitter to vary the delay")
	}
}
