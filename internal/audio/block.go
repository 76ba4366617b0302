// Package audio handles audio capture and the block messages handed to the pipeline
package audio

import (
	"context"
	"time"
)

// Block is one fixed-size chunk of mono samples from a single capture callback.
// It is immutable once constructed.
type Block struct {
	Samples    []float32
	SampleRate int
	Seq        uint64
	Captured   time.Time
}

// Duration returns the audio time the block covers.
func (b Block) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Message is the unit transferred from the capture callback to the consumer.
// It is either Data or Quit.
type Message interface {
	message()
}

// Data carries one captured block.
type Data struct {
	Block Block
}

// Quit is the last message the consumer acts on.
type Quit struct{}

func (Data) message() {}
func (Quit) message() {}

// Handler receives one block of samples per capture period.
// It runs on the capture thread and must not block.
type Handler func(samples []float32, sampleRate int)

// Source delivers periodic sample blocks to a Handler.
type Source interface {
	// Name identifies the capture device or file.
	Name() string
	// Start begins invoking h periodically.
	Start(ctx context.Context, h Handler) error
	// Stop halts capture; once it returns h is not invoked again.
	Stop() error
}
