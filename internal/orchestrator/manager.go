// Package orchestrator wires capture, processing and dispatch into one pipeline
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/NovaGlider/musicboom/internal/audio"
	"github.com/NovaGlider/musicboom/internal/config"
	apperrors "github.com/NovaGlider/musicboom/internal/errors"
	"github.com/NovaGlider/musicboom/internal/orchestrator/dispatch"
	"github.com/NovaGlider/musicboom/internal/orchestrator/haptic"
	"github.com/NovaGlider/musicboom/internal/orchestrator/history"
	"github.com/NovaGlider/musicboom/internal/syncx"
	"github.com/NovaGlider/musicboom/internal/trace"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	Source     string         `json:"source"`
	Device     string         `json:"device,omitempty"`
	Running    bool           `json:"running"`
	Blocks     uint64         `json:"blocks"`
	Backlog    int            `json:"backlog"`
	Produced   uint64         `json:"produced"`
	Dropped    uint64         `json:"dropped"`
	SampleRate int            `json:"sample_rate"`
	Latest     *haptic.Frame  `json:"latest,omitempty"`
	Dispatch   dispatch.Stats `json:"dispatch"`
	Error      string         `json:"error,omitempty"`
}

// named is implemented by vibrators that know their device name.
type named interface {
	Name() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithOutput sets where debug intensity lines are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Manager) { m.out = w }
}

// Manager owns the block queue and the single consumer that processes and
// dispatches blocks in capture order.
type Manager struct {
	cfg    *config.Config
	source audio.Source
	vib    dispatch.Vibrator
	out    io.Writer

	queue    *syncx.Queue[audio.Message]
	producer *audio.Producer
	proc     *haptic.Processor
	disp     *dispatch.Dispatcher
	history  *history.Store
	latest   *syncx.Latest[haptic.Frame]

	mu       sync.Mutex
	started  bool
	err      error
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
	backlog  atomic.Bool
}

// New builds a pipeline reading from source and driving vib.
func New(cfg *config.Config, source audio.Source, vib dispatch.Vibrator, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	q := syncx.NewQueue[audio.Message]()
	m := &Manager{
		cfg:      cfg,
		source:   source,
		vib:      vib,
		out:      os.Stdout,
		queue:    q,
		producer: audio.NewProducer(q),
		history:  history.NewStore(HistoryMaxFrames, HistoryEventBuffer),
		latest:   syncx.NewLatest(haptic.Frame{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.proc = haptic.NewProcessor(haptic.Config{
		LowCutoff:     cfg.LowCutoff,
		HighCutoff:    cfg.HighCutoff,
		Amplification: cfg.Amplification,
		Reduction:     cfg.ReductionMode(),
	})
	m.disp = dispatch.New(vib, dispatch.Config{
		Debug:    cfg.Debug,
		BarWidth: cfg.BarWidth,
		Out:      m.out,
	})
	return m, nil
}

// Start launches the consumer and then the source. Blocks are processed
// until Stop enqueues Quit, a fatal error occurs, or ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return apperrors.New(apperrors.CodeInternal, "pipeline already started")
	}
	m.started = true
	m.mu.Unlock()

	ctx, tc := trace.EnsureContext(ctx)
	go m.consume(ctx)

	if err := m.source.Start(ctx, m.producer.Handle); err != nil {
		m.producer.Quit()
		<-m.done
		return err
	}
	trace.Logger(ctx).Info("pipeline started", "source", m.source.Name(), "session", tc.TraceID)
	return nil
}

func (m *Manager) consume(ctx context.Context) {
	defer close(m.done)
	log := trace.Logger(ctx)

	for {
		msg, err := m.queue.Receive(ctx)
		if err != nil {
			if !errors.Is(err, syncx.ErrClosed) {
				log.Info("pipeline consumer cancelled", "error", err)
			}
			return
		}

		switch msg := msg.(type) {
		case audio.Quit:
			log.Info("pipeline consumer finished", "blocks", m.history.Total())
			return
		case audio.Data:
			m.checkBacklog(log)
			if err := m.handle(ctx, msg.Block); err != nil {
				m.fail(log, err)
				return
			}
		}
	}
}

func (m *Manager) handle(ctx context.Context, b audio.Block) error {
	ctx, span := trace.StartSpan(ctx, "process_block")
	defer span.Finish(ctx, "block processed")
	span.SetAttr("seq", b.Seq)
	span.SetAttr("samples", len(b.Samples))

	f, err := m.proc.Process(ctx, b)
	if err != nil {
		span.SetAttr("error", err.Error())
		return err
	}
	m.history.Add(f)
	m.latest.Publish(f)

	if err := m.disp.Dispatch(ctx, f); err != nil {
		span.SetAttr("error", err.Error())
		return err
	}
	return nil
}

func (m *Manager) checkBacklog(log *slog.Logger) {
	n := m.queue.Len()
	switch {
	case n > BacklogWarnThreshold && !m.backlog.Load():
		m.backlog.Store(true)
		log.Warn("processing is falling behind capture", "queued_blocks", n)
	case n < BacklogWarnThreshold/2 && m.backlog.Load():
		m.backlog.Store(false)
		log.Info("processing caught up", "queued_blocks", n)
	}
}

// fail records a fatal error. Closing the queue makes later callbacks drop
// their blocks instead of piling up behind a consumer that is gone.
func (m *Manager) fail(log *slog.Logger, err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.queue.Close()
	log.Error("pipeline stopped", "error", err)
}

// Stop halts the source, lets the consumer drain every queued block and
// returns the fatal error that ended the pipeline, if any. Safe to call
// more than once.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		if err := m.source.Stop(); err != nil {
			slog.Warn("stopping audio source failed", "source", m.source.Name(), "error", err)
		}
		m.producer.Quit()

		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
		m.queue.Close()
		m.stopErr = m.Err()
	})
	return m.stopErr
}

// Done is closed when the consumer exits.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Err returns the fatal error that ended the consumer, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// History returns the store of recent frames.
func (m *Manager) History() *history.Store { return m.history }

// Status reports counters and the latest frame.
func (m *Manager) Status() Status {
	f, version := m.latest.LoadVersion()
	st := Status{
		Source:   m.source.Name(),
		Blocks:   version,
		Backlog:  m.queue.Len(),
		Produced: m.producer.Produced(),
		Dropped:  m.producer.Dropped(),
		Dispatch: m.disp.Stats(),
	}
	if n, ok := m.vib.(named); ok {
		st.Device = n.Name()
	}
	if version > 0 {
		st.SampleRate = f.SampleRate
		st.Latest = &f
	}

	m.mu.Lock()
	st.Running = m.started
	if m.err != nil {
		st.Error = m.err.Error()
	}
	m.mu.Unlock()
	select {
	case <-m.done:
		st.Running = false
	default:
	}
	return st
}
