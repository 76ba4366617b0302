// Package history keeps the most recent processed frames for the monitor surface
package history

import (
	"sync"

	"github.com/NovaGlider/musicboom/internal/orchestrator/haptic"
)

// Store is a fixed-size ring of recent frames plus a non-blocking event feed.
type Store struct {
	mu     sync.RWMutex
	frames []haptic.Frame
	next   int
	full   bool
	total  uint64

	eventsCh chan haptic.Frame
	dropped  uint64
}

// NewStore creates a store holding maxFrames frames.
func NewStore(maxFrames, eventBuffer int) *Store {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	if eventBuffer < 0 {
		eventBuffer = 0
	}
	return &Store{
		frames:   make([]haptic.Frame, maxFrames),
		eventsCh: make(chan haptic.Frame, eventBuffer),
	}
}

// Add stores f, evicting the oldest frame when full, and emits it.
func (s *Store) Add(f haptic.Frame) {
	s.mu.Lock()
	s.frames[s.next] = f
	s.next = (s.next + 1) % len(s.frames)
	if s.next == 0 {
		s.full = true
	}
	s.total++
	s.mu.Unlock()

	s.emit(f)
}

// Recent returns up to n frames, oldest first. n <= 0 returns all stored frames.
func (s *Store) Recent(n int) []haptic.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.frames)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]haptic.Frame, n)
	start := (s.next - n + len(s.frames)) % len(s.frames)
	for i := 0; i < n; i++ {
		out[i] = s.frames[(start+i)%len(s.frames)]
	}
	return out
}

// Latest returns the newest frame.
func (s *Store) Latest() (haptic.Frame, bool) {
	recent := s.Recent(1)
	if len(recent) == 0 {
		return haptic.Frame{}, false
	}
	return recent[0], true
}

// Total returns how many frames were ever added.
func (s *Store) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Events returns the channel of added frames.
func (s *Store) Events() <-chan haptic.Frame {
	return s.eventsCh
}

// Dropped returns how many events were discarded because nobody was reading.
func (s *Store) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// emit never blocks the consumer loop.
func (s *Store) emit(f haptic.Frame) {
	select {
	case s.eventsCh <- f:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}
