package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NovaGlider/musicboom/internal/dsp"
	apperrors "github.com/NovaGlider/musicboom/internal/errors"
	"github.com/NovaGlider/musicboom/internal/orchestrator/haptic"
	"github.com/NovaGlider/musicboom/internal/resilience"
)

type mockVibrator struct {
	mu    sync.Mutex
	calls [][]float64
	errs  []error // returned in order, nil once exhausted
	fail  error   // returned once errs is exhausted
}

func (m *mockVibrator) SetIntensities(_ context.Context, values []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]float64(nil), values...))
	if len(m.errs) == 0 {
		return m.fail
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func (m *mockVibrator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// captureLogs routes the default slog logger to a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func frame(seq uint64, low, high float64) haptic.Frame {
	f := haptic.Frame{Seq: seq, GlobalPeak: 0.5}
	f.Intensities[dsp.Low] = low
	f.Intensities[dsp.High] = high
	f.BandPeaks = [dsp.NumBands]float64{0.25, 0.125}
	return f
}

func TestDispatchSendsIntensities(t *testing.T) {
	vib := &mockVibrator{}
	d := New(vib, Config{})

	if err := d.Dispatch(context.Background(), frame(1, 0.3, 0.7)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(vib.calls) != 1 || vib.calls[0][0] != 0.3 || vib.calls[0][1] != 0.7 {
		t.Errorf("calls = %v, want [[0.3 0.7]]", vib.calls)
	}
	if s := d.Stats(); s.Sent != 1 || s.Failed != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestDispatchErrorHandling(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErr   bool
		wantCode  apperrors.Code
		wantStats Stats
	}{
		{
			name:      "command failure is logged and swallowed",
			err:       apperrors.New(apperrors.CodeDeviceCommandFailed, "busy"),
			wantStats: Stats{Failed: 1},
		},
		{
			name:      "timeout is swallowed",
			err:       apperrors.New(apperrors.CodeTimeout, "no reply"),
			wantStats: Stats{Failed: 1},
		},
		{
			name:     "connection lost stops the pipeline",
			err:      apperrors.New(apperrors.CodeDeviceConnectionLost, "gone"),
			wantErr:  true,
			wantCode: apperrors.CodeDeviceConnectionLost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vib := &mockVibrator{errs: []error{tt.err}}
			d := New(vib, Config{})

			err := d.Dispatch(context.Background(), frame(1, 0.1, 0.2))
			if tt.wantErr {
				if !apperrors.IsCode(err, tt.wantCode) {
					t.Fatalf("Dispatch() error = %v, want %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Dispatch() error = %v, want nil", err)
			}
			s := d.Stats()
			if s.Sent != tt.wantStats.Sent || s.Failed != tt.wantStats.Failed {
				t.Errorf("Stats() = %+v, want %+v", s, tt.wantStats)
			}

			// next block still goes out
			if err := d.Dispatch(context.Background(), frame(2, 0.1, 0.2)); err != nil {
				t.Fatalf("second Dispatch() error = %v", err)
			}
			if len(vib.calls) != 2 {
				t.Errorf("got %d calls, want 2", len(vib.calls))
			}
		})
	}
}

func TestDispatchEveryBlockReachesDevice(t *testing.T) {
	fail := apperrors.New(apperrors.CodeDeviceCommandFailed, "busy")
	errs := make([]error, resilience.DeviceThreshold)
	for i := range errs {
		errs[i] = fail
	}
	vib := &mockVibrator{errs: errs}
	d := New(vib, Config{})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := d.Dispatch(ctx, frame(uint64(i), 0.5, 0.5)); err != nil {
			t.Fatalf("Dispatch(%d) error = %v", i, err)
		}
	}

	if n := vib.callCount(); n != 100 {
		t.Errorf("device called %d times, want 100", n)
	}
	s := d.Stats()
	if s.Failed != resilience.DeviceThreshold || s.Sent != 100-resilience.DeviceThreshold {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestDispatchBreakerOpenWarnings(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     int // "failing while breaker open" warnings
	}{
		{name: "rate limited", interval: time.Hour, want: 1},
		{name: "every failure past interval", interval: time.Nanosecond, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			vib := &mockVibrator{fail: apperrors.New(apperrors.CodeDeviceCommandFailed, "busy")}
			d := New(vib, Config{
				WarnInterval: tt.interval,
				Breaker: resilience.Config{
					Name: "test", Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1,
				},
			})
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				if tt.interval < time.Millisecond {
					time.Sleep(time.Millisecond)
				}
				if err := d.Dispatch(ctx, frame(uint64(i), 0.5, 0.5)); err != nil {
					t.Fatalf("Dispatch(%d) error = %v", i, err)
				}
			}

			if n := vib.callCount(); n != 5 {
				t.Errorf("device called %d times, want 5", n)
			}
			s := d.Stats()
			if s.Failed != 5 || s.Breaker.State != "open" {
				t.Errorf("Stats() = %+v", s)
			}
			out := logs.String()
			if n := strings.Count(out, "device command failed"); n != 1 {
				t.Errorf("got %d closed-state warnings, want 1:\n%s", n, out)
			}
			if n := strings.Count(out, "failing while breaker open"); n != tt.want {
				t.Errorf("got %d open-state warnings, want %d:\n%s", n, tt.want, out)
			}
		})
	}
}

func TestDispatchBreakerOpenReportsLostConnection(t *testing.T) {
	fail := apperrors.New(apperrors.CodeDeviceCommandFailed, "busy")
	vib := &mockVibrator{errs: []error{fail}}
	d := New(vib, Config{Breaker: resilience.Config{
		Name: "test", Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1,
	}})
	ctx := context.Background()

	if err := d.Dispatch(ctx, frame(1, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if st := d.Stats().Breaker.State; st != "open" {
		t.Fatalf("breaker state = %s, want open", st)
	}

	vib.mu.Lock()
	vib.fail = apperrors.New(apperrors.CodeDeviceConnectionLost, "gone")
	vib.mu.Unlock()

	err := d.Dispatch(ctx, frame(2, 0, 0))
	if !apperrors.IsCode(err, apperrors.CodeDeviceConnectionLost) {
		t.Fatalf("Dispatch() error = %v, want DEVICE_CONNECTION_LOST", err)
	}
}

func TestDispatchBreakerRecovers(t *testing.T) {
	fail := apperrors.New(apperrors.CodeDeviceCommandFailed, "busy")
	vib := &mockVibrator{errs: []error{fail}}
	d := New(vib, Config{Breaker: resilience.Config{
		Name: "test", Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 1,
	}})
	ctx := context.Background()

	if err := d.Dispatch(ctx, frame(1, 0, 0)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := d.Dispatch(ctx, frame(2, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if s := d.Stats(); s.Breaker.State != "closed" || s.Sent != 1 || s.Failed != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	vib := &mockVibrator{errs: []error{context.Canceled}}
	d := New(vib, Config{})

	err := d.Dispatch(context.Background(), frame(1, 0, 0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want context.Canceled", err)
	}
	if s := d.Stats(); s.Breaker.Failures != 0 {
		t.Errorf("cancellation counted against breaker: %+v", s.Breaker)
	}
}

func TestDispatchDebugOutput(t *testing.T) {
	var out bytes.Buffer
	d := New(&mockVibrator{}, Config{Debug: true, BarWidth: 5, Out: &out})

	if err := d.Dispatch(context.Background(), frame(1, 0.5, 1)); err != nil {
		t.Fatal(err)
	}

	want := "0.5000 [0.2500 0.1250] ███░░ █████\n"
	if out.String() != want {
		t.Errorf("debug line = %q, want %q", out.String(), want)
	}
}

func TestDispatchNoDebugOutput(t *testing.T) {
	var out bytes.Buffer
	d := New(&mockVibrator{}, Config{Out: &out})
	_ = d.Dispatch(context.Background(), frame(1, 0.5, 1))
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		x    float64
		n    int
		want string
	}{
		{0, 5, "█░░░░"},
		{1, 5, "█████"},
		{0.5, 5, "███░░"},
		{0.74, 5, "███░░"},
		{0.75, 5, "████░"},
		{-0.1, 3, "░░░"},
		{0.3, 1, "░"},
		{1, 1, "░"},
		{0.3, 0, ""},
	}

	for _, tt := range tests {
		if got := Bar(tt.x, tt.n); got != tt.want {
			t.Errorf("Bar(%v, %d) = %q, want %q", tt.x, tt.n, got, tt.want)
		}
		if tt.n > 0 && len([]rune(Bar(tt.x, tt.n))) != tt.n {
			t.Errorf("Bar(%v, %d) has wrong width", tt.x, tt.n)
		}
	}
}

func TestBarFilledCountMonotonic(t *testing.T) {
	prev := 0
	for i := 0; i <= 100; i++ {
		filled := strings.Count(Bar(float64(i)/100, 20), string(filledGlyph))
		if filled < prev {
			t.Fatalf("filled count dropped at x=%v", float64(i)/100)
		}
		prev = filled
	}
	if prev != 20 {
		t.Errorf("Bar(1, 20) filled %d, want 20", prev)
	}
}
