package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NovaGlider/musicboom/internal/orchestrator/haptic"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]uint64
	err     error
}

func (r *recordingSink) deliver(_ context.Context, frames []haptic.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seqs := make([]uint64, len(frames))
	for i, f := range frames {
		seqs[i] = f.Seq
	}
	r.batches = append(r.batches, seqs)
	return r.err
}

func (r *recordingSink) get() [][]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]uint64(nil), r.batches...)
}

func TestBatcher_FlushOnMaxSize(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(sink.deliver, 3, time.Hour)

	for i := uint64(1); i <= 7; i++ {
		b.Add(haptic.Frame{Seq: i})
	}
	b.Stop()

	got := sink.get()
	want := [][]uint64{{1, 2, 3}, {4, 5, 6}, {7}}
	if len(got) != len(want) {
		t.Fatalf("batches = %v, want %v", got, want)
	}
	// deliveries run concurrently, so match batches by first seq
	byFirst := make(map[uint64][]uint64)
	for _, batch := range got {
		byFirst[batch[0]] = batch
	}
	for _, w := range want {
		g := byFirst[w[0]]
		if len(g) != len(w) {
			t.Errorf("batch starting at %d = %v, want %v", w[0], g, w)
		}
	}
}

func TestBatcher_FlushOnDelay(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(sink.deliver, 100, 20*time.Millisecond)
	defer b.Stop()

	b.Add(haptic.Frame{Seq: 1})
	b.Add(haptic.Frame{Seq: 2})

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.get()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timer flush did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := sink.get()[0]; len(got) != 2 {
		t.Errorf("batch = %v, want 2 frames", got)
	}
}

func TestBatcher_StopIgnoresLateFrames(t *testing.T) {
	sink := &recordingSink{err: errors.New("client gone")}
	b := NewBatcher(sink.deliver, 10, time.Hour)

	b.Add(haptic.Frame{Seq: 1})
	b.Stop()
	b.Add(haptic.Frame{Seq: 2})
	b.Flush()

	got := sink.get()
	if len(got) != 1 || len(got[0]) != 1 || got[0][0] != 1 {
		t.Errorf("batches = %v, want [[1]]", got)
	}
}

func TestBatcher_Run(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(sink.deliver, 2, time.Hour)
	ch := make(chan haptic.Frame, 4)
	ch <- haptic.Frame{Seq: 1}
	ch <- haptic.Frame{Seq: 2}
	close(ch)

	b.Run(context.Background(), ch)
	b.Stop()

	if got := sink.get(); len(got) != 1 || len(got[0]) != 2 {
		t.Errorf("batches = %v, want one batch of 2", got)
	}
}

func TestNewBatcher_Defaults(t *testing.T) {
	b := NewBatcher(func(context.Context, []haptic.Frame) error { return nil }, 0, 0)
	if b.maxSize != DefaultBatcherMaxSize || b.flushDelay != DefaultBatcherFlushDelay {
		t.Errorf("defaults = %d/%v", b.maxSize, b.flushDelay)
	}
}
