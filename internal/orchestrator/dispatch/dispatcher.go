// Package dispatch sends processed frames to the haptic device
package dispatch

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	apperrors "github.com/NovaGlider/musicboom/internal/errors"
	"github.com/NovaGlider/musicboom/internal/orchestrator/haptic"
	"github.com/NovaGlider/musicboom/internal/resilience"
	"github.com/NovaGlider/musicboom/internal/trace"
)

// Vibrator sets one intensity per band on the device.
type Vibrator interface {
	SetIntensities(ctx context.Context, values []float64) error
}

// Config for the dispatcher
type Config struct {
	Debug    bool
	BarWidth int
	Out      io.Writer // debug lines, required when Debug is set
	Breaker  resilience.Config

	// WarnInterval limits failure warnings while the breaker is open.
	WarnInterval time.Duration
}

// Stats counts dispatch outcomes.
type Stats struct {
	Sent    uint64           `json:"sent"`
	Failed  uint64           `json:"failed"`
	Breaker resilience.Stats `json:"breaker"`
}

// Dispatcher forwards every frame's intensities to a Vibrator. The circuit
// breaker only tracks device health: while it is open failures are still
// counted but their warnings are rate limited. Recoverable failures are
// swallowed; a lost connection is returned to the caller.
//
// Dispatch is called from a single goroutine; Stats may be called from any.
type Dispatcher struct {
	vib      Vibrator
	cfg      Config
	breaker  *resilience.Breaker
	renderer *Renderer

	sent   atomic.Uint64
	failed atomic.Uint64

	lastWarn   time.Time
	suppressed uint64
}

// New creates a dispatcher for vib.
func New(vib Vibrator, cfg Config) *Dispatcher {
	bc := cfg.Breaker
	if bc.Name == "" {
		bc = resilience.DeviceConfig()
	}
	bc.IsFailure = func(err error) bool {
		return !apperrors.IsFatal(err) && !errors.Is(err, context.Canceled)
	}

	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = DefaultWarnInterval
	}

	d := &Dispatcher{
		vib:     vib,
		cfg:     cfg,
		breaker: resilience.New(bc),
	}
	if cfg.Debug && cfg.Out != nil {
		d.renderer = NewRenderer(cfg.Out, cfg.BarWidth)
	}
	return d
}

// Dispatch renders the debug line (if enabled) and sends f's intensities.
// It returns an error only when the pipeline must stop.
func (d *Dispatcher) Dispatch(ctx context.Context, f haptic.Frame) error {
	if d.renderer != nil {
		_, _ = io.WriteString(d.cfg.Out, d.renderer.Line(f)+"\n")
	}

	// Allow moves an open breaker to half-open once the reset timeout has
	// passed; the device is called either way.
	open := d.breaker.Allow() != nil

	values := f.Intensities
	err := d.vib.SetIntensities(ctx, values[:])
	d.breaker.Record(err)

	switch {
	case err == nil:
		d.sent.Add(1)
		return nil
	case apperrors.IsFatal(err), errors.Is(err, context.Canceled):
		return err
	default:
		d.failed.Add(1)
		d.warn(ctx, f.Seq, err, open || d.breaker.State() == resilience.Open)
		return nil
	}
}

func (d *Dispatcher) warn(ctx context.Context, seq uint64, err error, open bool) {
	log := trace.Logger(ctx)
	if !open {
		log.Warn("device command failed", "seq", seq, "error", err)
		return
	}

	now := time.Now()
	if !d.lastWarn.IsZero() && now.Sub(d.lastWarn) < d.cfg.WarnInterval {
		d.suppressed++
		return
	}
	log.Warn("device command failing while breaker open",
		"seq", seq, "error", err, "suppressed", d.suppressed)
	d.lastWarn = now
	d.suppressed = 0
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Breaker: d.breaker.Stats(),
	}
}
