package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"rate limited", RateLimited(2*time.Minute, nil), KindRateLimited},
		{"wrapped forbidden", fmt.Errorf("post: %w", Forbidden(errors.New("private channel"))), KindForbidden},
		{"banned", Banned(errors.New("user deactivated")), KindBanned},
		{"network", Network(errors.New("connection reset")), KindNetwork},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindNetwork},
		{"net.Error", timeoutErr{}, KindNetwork},
		{"plain", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("post: %w", RateLimited(120*time.Second, nil))
	if got := RetryAfter(err); got != 120*time.Second {
		t.Errorf("RetryAfter = %s, want 2m0s", got)
	}
	if got := RetryAfter(errors.New("x")); got != 0 {
		t.Errorf("RetryAfter(plain) = %s, want 0", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := RateLimited(30*time.Second, errors.New("FLOOD_WAIT"))
	want := "transport rate_limited (retry after 30s): FLOOD_WAIT"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("does-not-exist", nil)
	var ue *UnknownDriverError
	if !errors.As(err, &ue) {
		t.Fatalf("Open unknown driver error = %v, want *UnknownDriverError", err)
	}
}

func TestRegisterAndOpen(t *testing.T) {
	called := false
	Register("registry-test", func(opts map[string]string) (Connector, error) {
		called = true
		if opts["endpoint"] != "x" {
			return nil, errors.New("missing endpoint")
		}
		return nil, nil
	})

	if _, err := Open("registry-test", map[string]string{"endpoint": "x"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !called {
		t.Error("factory was not invoked")
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	Register("registry-test", func(map[string]string) (Connector, error) { return nil, nil })
}
