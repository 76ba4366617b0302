// Package syncx provides extended synchronization primitives
package syncx

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Receive once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

type node[T any] struct {
	next atomic.Pointer[node[T]]
	val  T
}

// Queue is an unbounded multi-producer single-consumer FIFO.
//
// Send never blocks and takes no lock: producers link a node with one atomic
// swap and signal a 1-buffered channel without waiting. Only one goroutine
// may call Receive/TryReceive.
//
// Every Send that returned true is delivered by Receive before it reports
// ErrClosed, even when the Send raced Close.
type Queue[T any] struct {
	head   atomic.Pointer[node[T]] // last linked node, producers swap here
	tail   *node[T]                // consumer-owned stub
	notify chan struct{}

	length    atomic.Int64
	sending   atomic.Int64 // producers between the closed check and linking
	closed    atomic.Bool
	closedCh  chan struct{}
	closeOnce sync.Once
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	stub := &node[T]{}
	q := &Queue[T]{
		tail:     stub,
		notify:   make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
	q.head.Store(stub)
	return q
}

// Send enqueues v. It returns false if the queue has been closed.
func (q *Queue[T]) Send(v T) bool {
	q.sending.Add(1)
	defer q.sending.Add(-1)
	if q.closed.Load() {
		return false
	}
	n := &node[T]{val: v}
	prev := q.head.Swap(n)
	prev.next.Store(n)
	q.length.Add(1)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// TryReceive dequeues the oldest value without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	var zero T
	next := q.tail.next.Load()
	if next == nil {
		return zero, false
	}
	v := next.val
	next.val = zero
	q.tail = next
	q.length.Add(-1)
	return v, true
}

// Receive blocks until a value is available, the queue is closed and
// drained (ErrClosed), or ctx is done.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryReceive(); ok {
			return v, nil
		}
		if q.closed.Load() {
			return q.drainClosed()
		}

		select {
		case <-q.notify:
		case <-q.closedCh:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// drainClosed waits out producers that passed the closed check before Close
// and are still linking their node.
func (q *Queue[T]) drainClosed() (T, error) {
	for {
		if v, ok := q.TryReceive(); ok {
			return v, nil
		}
		if q.sending.Load() == 0 {
			break
		}
		runtime.Gosched()
	}
	if v, ok := q.TryReceive(); ok {
		return v, nil
	}
	var zero T
	return zero, ErrClosed
}

// Close stops further sends. Values already queued remain receivable.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.closedCh)
	})
}

// Len returns the approximate number of queued values.
func (q *Queue[T]) Len() int { return int(q.length.Load()) }
