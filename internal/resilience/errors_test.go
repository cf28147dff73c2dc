package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"), 429)
	wrapped := fmt.Errorf("api call failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_DeadlineExceeded(t *testing.T) {
	if !IsTransient(fmt.Errorf("classify: %w", context.DeadlineExceeded)) {
		t.Error("per-call deadline should be transient")
	}
	if IsTransient(context.Canceled) {
		t.Error("cancellation should not be transient")
	}
}

func TestIsTransient_Syscalls(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if !IsTransient(fmt.Errorf("dial tcp: %w", errno)) {
			t.Errorf("%v should be transient", errno)
		}
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	for _, msg := range []string{
		"read: connection reset by peer",
		"anthropic: Overloaded",
		"429 rate limit exceeded",
		"dial tcp: i/o timeout",
	} {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("%q should be transient", msg)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	tests := map[int]bool{
		200: false,
		400: false,
		401: false,
		404: false,
		408: true,
		429: true,
		500: true,
		502: true,
		503: true,
		504: true,
		529: true,
	}
	for code, want := range tests {
		if got := IsTransientHTTPStatus(code); got != want {
			t.Errorf("status %d: expected %v, got %v", code, want, got)
		}
	}
}
