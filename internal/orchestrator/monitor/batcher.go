// Package monitor batches processed frames for delivery to monitor clients
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/NovaGlider/musicboom/internal/orchestrator/haptic"
	"github.com/NovaGlider/musicboom/internal/trace"
)

// Sink receives one batch of frames, oldest first.
type Sink func(ctx context.Context, frames []haptic.Frame) error

// Batcher accumulates frames and flushes them in batches.
type Batcher struct {
	sink       Sink
	maxSize    int
	flushDelay time.Duration
	mu         sync.Mutex
	items      []haptic.Frame
	timer      *time.Timer
	stopped    bool
	wg         sync.WaitGroup
}

// NewBatcher creates a frame batcher.
func NewBatcher(sink Sink, maxSize int, flushDelay time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultBatcherMaxSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultBatcherFlushDelay
	}
	return &Batcher{
		sink:       sink,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		items:      make([]haptic.Frame, 0, maxSize),
	}
}

// Add queues a frame. The first frame of a batch arms the flush timer, so
// a batch is delivered at most flushDelay after it starts.
func (b *Batcher) Add(f haptic.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	b.items = append(b.items, f)

	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	}
}

// Run feeds frames from ch until it closes or ctx is done.
func (b *Batcher) Run(ctx context.Context, ch <-chan haptic.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-ch:
			if !ok {
				return
			}
			b.Add(f)
		}
	}
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.items) == 0 {
		return
	}
	items := b.items
	b.items = make([]haptic.Frame, 0, b.maxSize)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, span := trace.StartSpan(context.Background(), "monitor_batch_flush")
		defer span.Finish(ctx, "monitor batch flushed")
		span.SetAttr("count", len(items))

		if err := b.sink(ctx, items); err != nil {
			span.SetAttr("error", err.Error())
			trace.Logger(ctx).Debug("monitor batch delivery failed", "error", err, "count", len(items))
		}
	}()
}

// Flush forces immediate flush of pending frames.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Stop flushes remaining frames and waits for in-flight deliveries.
// Frames added afterwards are ignored.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.flushLocked()
	b.mu.Unlock()
	b.wg.Wait()
}
