// Package contracts holds the small concurrency and caching primitives
// shared across the feed pipeline: the bounded hand-off queue, a
// read-through memoizer, a fixed-size dedup queue, a circular buffer, and
// scoped read/write lock tokens. These are the "contract glue" of spec §4.9.
package contracts

import (
	"context"
	"errors"
	"sync"
)

// Queue is a single-producer, single-consumer bounded hand-off queue (spec
// §4.1). It is safe to call Add from one goroutine and Take/Consume from
// another; calling either concurrently from multiple goroutines is not
// supported, matching the spec's single-producer/single-consumer contract.
type Queue[T any] struct {
	capacity int
	mu       sync.Mutex
	items    []T
	adding   bool // true until CompleteAdding

	notFull  chan struct{} // signalled when capacity frees up
	notEmpty chan struct{} // signalled when an item is available

	idleMu sync.Mutex
	idleCh chan struct{} // closed while idle; replaced on the next publish
}

// NewQueue builds a bounded queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	q := &Queue[T]{
		capacity: capacity,
		adding:   true,
		notFull:  make(chan struct{}, 1),
		notEmpty: make(chan struct{}, 1),
		idleCh:   make(chan struct{}),
	}
	close(q.idleCh) // starts empty => starts idle
	return q
}

func (q *Queue[T]) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// resetIdle marks the queue busy. Must be called with idleMu held.
func (q *Queue[T]) resetIdle() {
	select {
	case <-q.idleCh:
		// was idle (closed); replace with a fresh open channel
		q.idleCh = make(chan struct{})
	default:
		// already busy, nothing to do
	}
}

// markIdleLocked closes the idle channel if the queue is still empty. Must be
// called with idleMu held, and only while q.mu confirms emptiness.
func (q *Queue[T]) markIdleLocked() {
	select {
	case <-q.idleCh:
		// already idle
	default:
		close(q.idleCh)
	}
}

// Add enqueues item, blocking while the queue is at capacity. Returns
// ctx.Err() if cancelled before a slot opens. Marks the queue busy
// atomically with the enqueue, per spec §4.1's linearization requirement.
func (q *Queue[T]) Add(ctx context.Context, item T) error {
	for {
		q.idleMu.Lock()
		q.mu.Lock()
		if !q.adding {
			q.mu.Unlock()
			q.idleMu.Unlock()
			return errors.New("contracts: add after CompleteAdding")
		}
		if len(q.items) < q.capacity {
			q.items = append(q.items, item)
			q.resetIdle()
			q.mu.Unlock()
			q.idleMu.Unlock()
			q.signal(q.notEmpty)
			return nil
		}
		q.mu.Unlock()
		q.idleMu.Unlock()

		select {
		case <-q.notFull:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CompleteAdding declares no further Add calls will succeed. Subsequent adds
// return an error; Consume drains remaining items then terminates.
func (q *Queue[T]) CompleteAdding() {
	q.mu.Lock()
	q.adding = false
	q.mu.Unlock()
	q.signal(q.notEmpty)
}

// Take removes and returns one item, blocking until one is available or the
// queue is complete-and-empty (ok=false) or ctx is cancelled (err set).
func (q *Queue[T]) Take(ctx context.Context) (item T, ok bool, err error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item = q.items[0]
			q.items = q.items[1:]
			done := len(q.items) == 0
			q.mu.Unlock()
			q.signal(q.notFull)
			if done {
				// re-check under idleMu before publishing idle, per the
				// linearization invariant: only mark idle while holding the
				// producer-synchronising lock and after re-checking emptiness.
				q.idleMu.Lock()
				q.mu.Lock()
				if len(q.items) == 0 {
					q.markIdleLocked()
				}
				q.mu.Unlock()
				q.idleMu.Unlock()
			}
			return item, true, nil
		}
		adding := q.adding
		q.mu.Unlock()

		if !adding {
			var zero T
			return zero, false, nil
		}

		select {
		case <-q.notEmpty:
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}
}

// Consume returns a channel yielding items until the queue is empty and
// adding is complete, or ctx is cancelled. The channel is closed on either
// termination condition; no error is surfaced to the consumer (spec §4.1:
// cancellation ends the sequence cleanly).
func (q *Queue[T]) Consume(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			item, ok, err := q.Take(ctx)
			if err != nil || !ok {
				return
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// WaitIdle blocks until the queue is empty with no pending Take, or ctx is
// cancelled.
func (q *Queue[T]) WaitIdle(ctx context.Context) error {
	for {
		q.idleMu.Lock()
		ch := q.idleCh
		q.idleMu.Unlock()

		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Len reports the current item count (best-effort, for diagnostics).
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
