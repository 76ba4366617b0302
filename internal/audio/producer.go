package audio

import (
	"sync/atomic"
	"time"

	"github.com/NovaGlider/musicboom/internal/syncx"
)

// Producer turns capture callbacks into Data messages on a queue.
// Handle is safe to call from a real-time thread: it copies the samples,
// links one queue node and returns without waiting on the consumer.
type Producer struct {
	q       *syncx.Queue[Message]
	seq     atomic.Uint64
	quit    atomic.Bool
	dropped atomic.Uint64
}

// NewProducer creates a producer writing to q.
func NewProducer(q *syncx.Queue[Message]) *Producer {
	return &Producer{q: q}
}

// Handle is an audio.Handler.
func (p *Producer) Handle(samples []float32, sampleRate int) {
	if p.quit.Load() {
		p.dropped.Add(1)
		return
	}
	block := Block{
		Samples:    append([]float32(nil), samples...),
		SampleRate: sampleRate,
		Seq:        p.seq.Add(1),
		Captured:   time.Now(),
	}
	if !p.q.Send(Data{Block: block}) {
		p.dropped.Add(1)
	}
}

// Quit enqueues the Quit message. Later Handle calls are dropped.
// It reports whether Quit was enqueued by this call.
func (p *Producer) Quit() bool {
	if p.quit.Swap(true) {
		return false
	}
	return p.q.Send(Quit{})
}

// Produced returns the number of blocks built from callbacks, including dropped ones.
func (p *Producer) Produced() uint64 { return p.seq.Load() }

// Dropped returns the number of callbacks discarded after Quit or Close.
func (p *Producer) Dropped() uint64 { return p.dropped.Load() }
