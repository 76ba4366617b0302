package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/NovaGlider/musicboom/internal/syncx"
)

func TestProducerHandleCopiesSamples(t *testing.T) {
	q := syncx.NewQueue[Message]()
	p := NewProducer(q)

	buf := []float32{0.1, 0.2, 0.3}
	p.Handle(buf, 48000)
	buf[0] = 9

	msg, ok := q.TryReceive()
	if !ok {
		t.Fatal("expected a message")
	}
	data, ok := msg.(Data)
	if !ok {
		t.Fatalf("got %T, want Data", msg)
	}
	if data.Block.Samples[0] != 0.1 {
		t.Errorf("block aliases callback buffer: got %v", data.Block.Samples[0])
	}
	if data.Block.SampleRate != 48000 || data.Block.Seq != 1 {
		t.Errorf("block = rate %d seq %d, want 48000 1", data.Block.SampleRate, data.Block.Seq)
	}
}

func TestProducerQuitIsLast(t *testing.T) {
	q := syncx.NewQueue[Message]()
	p := NewProducer(q)

	p.Handle([]float32{0}, 8000)
	p.Handle([]float32{0}, 8000)
	if !p.Quit() {
		t.Fatal("first Quit should enqueue")
	}
	if p.Quit() {
		t.Error("second Quit should be a no-op")
	}
	p.Handle([]float32{0}, 8000)

	var kinds []string
	for {
		msg, ok := q.TryReceive()
		if !ok {
			break
		}
		switch msg.(type) {
		case Data:
			kinds = append(kinds, "data")
		case Quit:
			kinds = append(kinds, "quit")
		}
	}

	want := []string{"data", "data", "quit"}
	if len(kinds) != len(want) {
		t.Fatalf("messages = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("messages = %v, want %v", kinds, want)
		}
	}
	if p.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", p.Dropped())
	}
	if p.Produced() != 2 {
		t.Errorf("Produced() = %d, want 2", p.Produced())
	}
}

func TestProducerConcurrentHandle(t *testing.T) {
	q := syncx.NewQueue[Message]()
	p := NewProducer(q)

	const workers, perWorker = 4, 250
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				p.Handle([]float32{1}, 8000)
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for {
		msg, ok := q.TryReceive()
		if !ok {
			break
		}
		seq := msg.(Data).Block.Seq
		if seen[seq] {
			t.Fatalf("duplicate seq %d", seq)
		}
		seen[seq] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("received %d blocks, want %d", len(seen), workers*perWorker)
	}
}

func TestBlockDuration(t *testing.T) {
	b := Block{Samples: make([]float32, 480), SampleRate: 48000}
	if got := b.Duration(); got != 10*time.Millisecond {
		t.Errorf("Duration() = %v, want 10ms", got)
	}
	if got := (Block{Samples: make([]float32, 10)}).Duration(); got != 0 {
		t.Errorf("Duration() with zero rate = %v, want 0", got)
	}
}
