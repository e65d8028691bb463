package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker(name string) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
	})
	cb.now = func() time.Time { return now }
	return cb, &now
}

var errDown = errors.New("down")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker("opens")

	calls := 0
	fail := func() error { calls++; return errDown }
	for i := 0; i < 5; i++ {
		_ = cb.Execute(fail)
	}

	if calls != 3 {
		t.Errorf("expected 3 calls before opening, got %d", calls)
	}
	if cb.State() != StateOpen {
		t.Errorf("state = %s, want open", cb.State())
	}
	if err := cb.Execute(fail); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb, now := newTestBreaker("recovers")

	var transitions []string
	cb.OnStateChange(func(_ string, from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errDown })
	}
	*now = now.Add(2 * time.Minute)

	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open after cooldown", cb.State())
	}
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker("reopens")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errDown })
	}
	*now = now.Add(2 * time.Minute)

	_ = cb.Execute(func() error { return errDown })
	if cb.State() != StateOpen {
		t.Errorf("state = %s, want open", cb.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	cb, _ := newTestBreaker("cancel")
	for i := 0; i < 10; i++ {
		_ = cb.Execute(func() error { return context.Canceled })
	}
	if cb.State() != StateClosed {
		t.Errorf("cancellation should not open the circuit, got %s", cb.State())
	}
}

func TestSnapshot(t *testing.T) {
	cb, _ := newTestBreaker("snapshot-probe")
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errDown })
	}

	if got := Snapshot()["snapshot-probe"]; got != "open" {
		t.Errorf("Snapshot()[snapshot-probe] = %q, want open", got)
	}

	cb.Reset()
	if got := Snapshot()["snapshot-probe"]; got != "closed" {
		t.Errorf("after Reset = %q, want closed", got)
	}
}
