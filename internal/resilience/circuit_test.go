package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sells-group/tailorreach/internal/config"
)

func failing(_ context.Context) error { return errors.New("fail") }

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("claude", DefaultCircuitBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
	if cb.Name() != "claude" {
		t.Errorf("unexpected name %q", cb.Name())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("claude", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker("claude", CircuitBreakerConfig{FailureThreshold: 3})

	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return nil })
	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), failing)

	if cb.State() != CircuitClosed {
		t.Errorf("non-consecutive failures should not trip, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("claude", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(11 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("claude", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), failing)
	now = now.Add(11 * time.Second)
	_ = cb.Execute(context.Background(), failing)

	if cb.State() != CircuitOpen {
		t.Errorf("expected re-opened, got %s", cb.State())
	}
}

func TestCircuitBreaker_ShouldTripIgnoresPermanent(t *testing.T) {
	cb := NewCircuitBreaker("claude", CircuitBreakerConfig{FailureThreshold: 2, ShouldTrip: IsTransient})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("bad request") })
	}
	if cb.State() != CircuitClosed {
		t.Errorf("permanent errors should not trip, got %s", cb.State())
	}

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return NewTransientError(errors.New("overloaded"), 529)
		})
	}
	if cb.State() != CircuitOpen {
		t.Errorf("transient errors should trip, got %s", cb.State())
	}
}

func TestCircuitBreaker_OnStateChangeAndReset(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cfg := CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to CircuitState) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	}
	cb := NewCircuitBreaker("haiku", cfg)

	_ = cb.Execute(context.Background(), failing)
	cb.Reset()
	cb.Reset() // no-op when already closed

	want := []string{"haiku:closed->open", "haiku:open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("claude", CircuitBreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(_ context.Context) error {
				if i%2 == 0 {
					return errors.New("fail")
				}
				return nil
			})
			_ = cb.State()
		}(i)
	}
	wg.Wait()
}

func TestExecuteVal(t *testing.T) {
	cb := NewCircuitBreaker("claude", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) { return "ok", nil })
	if err != nil || val != "ok" {
		t.Fatalf("expected ok, got %q, %v", val, err)
	}

	_, _ = ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) { return "", errors.New("x") })
	val, err = ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) { return "never", nil })
	if !errors.Is(err, ErrCircuitOpen) || val != "" {
		t.Errorf("expected open circuit and zero value, got %q, %v", val, err)
	}
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1})

	a := sb.Get("claude-haiku")
	if sb.Get("claude-haiku") != a {
		t.Error("expected the same breaker for the same key")
	}
	b := sb.Get("claude-sonnet")
	_ = b.Execute(context.Background(), failing)

	states := sb.States()
	if states["claude-haiku"] != "closed" || states["claude-sonnet"] != "open" {
		t.Errorf("unexpected states %v", states)
	}
}

func TestBreakerFromConfig(t *testing.T) {
	cfg := BreakerFromConfig(config.CircuitConfig{FailureThreshold: 7, ResetTimeoutSecs: 12})
	if cfg.FailureThreshold != 7 || cfg.ResetTimeout != 12*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.ShouldTrip == nil || cfg.ShouldTrip(errors.New("bad request")) {
		t.Error("permanent errors should not trip configured breakers")
	}
	cfg.OnStateChange("claude", CircuitClosed, CircuitOpen)
}

func TestCircuitState_String(t *testing.T) {
	for state, want := range map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	} {
		if state.String() != want {
			t.Errorf("expected %s, got %s", want, state.String())
		}
	}
}
