package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network timeout", timeoutErr{}, true},
		{"wrapped network timeout", fmt.Errorf("query: %w", timeoutErr{}), true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tc := range cases {
		if got := isTransient(tc.err); got != tc.want {
			t.Errorf("%s: isTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	s := &EventStore{}
	calls := 0
	err := s.withRetry(context.Background(), "op", func() error {
		calls++
		return &pgconn.PgError{Code: "23505"}
	})
	if err == nil {
		t.Fatal("expected the permanent error to surface")
	}
	if calls != 1 {
		t.Errorf("op ran %d times, want 1 for a permanent error", calls)
	}
}

func TestWithRetryRecoversFromTransientError(t *testing.T) {
	s := &EventStore{}
	calls := 0
	err := s.withRetry(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return timeoutErr{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery after transient failures: %v", err)
	}
	if calls != 3 {
		t.Errorf("op ran %d times, want 3", calls)
	}
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	s := &EventStore{}
	calls := 0
	err := s.withRetry(context.Background(), "op", func() error {
		calls++
		return timeoutErr{}
	})
	if err == nil {
		t.Fatal("expected an error once attempts are exhausted")
	}
	if calls != storeMaxAttempts {
		t.Errorf("op ran %d times, want %d", calls, storeMaxAttempts)
	}
}
