package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 2})
	if b.State() != Closed {
		t.Fatalf("initial state = %v, want Closed", b.State())
	}

	for i := 0; i < 3; i++ {
		b.Failure()
	}

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
	if err := b.Allow(); err != ErrOpen {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		fail      bool
		want      State
	}{
		{"closes after enough successes", 2, false, Closed},
		{"stays half-open below quota", 1, false, HalfOpen},
		{"reopens on failure", 1, true, Open},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 2})
			b.Failure()
			time.Sleep(5 * time.Millisecond)

			if err := b.Allow(); err != nil {
				t.Fatalf("Allow() = %v, want nil", err)
			}
			if b.State() != HalfOpen {
				t.Fatalf("state = %v, want HalfOpen", b.State())
			}
			for i := 0; i < tt.successes; i++ {
				b.Success()
			}
			if tt.fail {
				b.Failure()
			}
			if b.State() != tt.want {
				t.Errorf("state = %v, want %v", b.State(), tt.want)
			}
		})
	}
}

func TestBreakerReset(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	b.Failure()
	b.Reset()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerExecute(t *testing.T) {
	b := New(Config{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute success = %v, want nil", err)
	}

	testErr := errors.New("write failed")
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return testErr }); err != testErr {
			t.Errorf("Execute failure = %v, want %v", err, testErr)
		}
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != ErrOpen {
		t.Errorf("Execute while open = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
	if got := b.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	b := New(Config{
		Threshold:         1,
		ResetTimeout:      time.Hour,
		HalfOpenSuccesses: 1,
		IsFailure:         func(err error) bool { return !errors.Is(err, context.Canceled) },
	})

	if err := b.Execute(func() error { return context.Canceled }); !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() = %v, want context.Canceled", err)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerRecord(t *testing.T) {
	b := New(Config{
		Threshold:         1,
		ResetTimeout:      time.Millisecond,
		HalfOpenSuccesses: 1,
		IsFailure:         func(err error) bool { return !errors.Is(err, context.Canceled) },
	})

	b.Record(context.Canceled)
	if b.State() != Closed {
		t.Fatalf("state after ignored error = %v, want Closed", b.State())
	}

	b.Record(errors.New("boom"))
	if b.State() != Open {
		t.Fatalf("state after failure = %v, want Open", b.State())
	}

	time.Sleep(5 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after reset timeout = %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}

	b.Record(nil)
	if b.State() != Closed {
		t.Errorf("state after success = %v, want Closed", b.State())
	}
}

func TestBreakerConcurrentSafety(t *testing.T) {
	b := New(Config{Threshold: 100, ResetTimeout: time.Second, HalfOpenSuccesses: 10})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Allow()
			if i%2 == 0 {
				b.Success()
			} else {
				b.Failure()
			}
		}()
	}
	wg.Wait()

	_ = b.Stats()
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.Threshold != DefaultThreshold || cfg.ResetTimeout != DefaultResetTimeout || cfg.HalfOpenSuccesses != DefaultHalfOpenSuccesses {
		t.Errorf("withDefaults() = %+v", cfg)
	}
	if cfg.Name != "default" {
		t.Errorf("Name = %q, want default", cfg.Name)
	}
	if !cfg.IsFailure(errors.New("x")) || cfg.IsFailure(nil) {
		t.Error("default IsFailure should count every non-nil error")
	}

	dev := DeviceConfig()
	if dev.ResetTimeout >= DefaultResetTimeout {
		t.Errorf("device ResetTimeout = %v, want shorter than default", dev.ResetTimeout)
	}
	if s := New(dev).Stats(); s.Name != "device" || s.State != "closed" {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	b := New(Config{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}
