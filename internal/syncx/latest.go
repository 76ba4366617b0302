package syncx

import "sync"

// Latest holds the most recently published value of T together with a
// version counter. One writer publishes; any number of readers load.
type Latest[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
}

// NewLatest creates a cell holding initial at version 0.
func NewLatest[T any](initial T) *Latest[T] {
	return &Latest[T]{value: initial}
}

// Publish replaces the value and bumps the version.
func (l *Latest[T]) Publish(v T) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = v
	l.version++
	return l.version
}

// Load returns a copy of the value (T should be a value type or immutable).
func (l *Latest[T]) Load() T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value
}

// LoadVersion returns the value and the version it was published at.
func (l *Latest[T]) LoadVersion() (T, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.version
}
