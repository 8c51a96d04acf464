package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	calls := 0
	fail := func() error { calls++; return boom }
	ok := func() error { calls++; return nil }

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), fail); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: got %v, want boom", i, err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	if err := cb.Execute(context.Background(), ok); !errors.Is(err, ErrOpen) {
		t.Fatalf("got %v, want ErrOpen", err)
	}
	if calls != 2 {
		t.Fatalf("fn called while open: calls = %d", calls)
	}

	now = now.Add(11 * time.Second)
	if err := cb.Execute(context.Background(), ok); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.GetState())
	}
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func() error { return errors.New("down") })
	now = now.Add(2 * time.Second)
	_ = cb.Execute(context.Background(), func() error { return errors.New("still down") })

	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}
}
