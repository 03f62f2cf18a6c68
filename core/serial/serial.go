// Package serial runs work serialized per key while work for different keys
// proceeds in parallel.
//
// Typical use-case: event-sourced aggregates, where commands for one
// aggregate identity should execute sequentially, but different identities
// may be handled concurrently. The same applies to process-manager passes,
// which must never run concurrently for the same subscriber.
package serial

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("serial queue is closed")

type task struct {
	fn   func() error
	done chan error
}

type lane struct {
	tasks chan *task
}

// Queue executes submitted functions such that, for any given key, they run
// sequentially in submission order. Functions for different keys run in
// parallel.
type Queue[K comparable] struct {
	mu     sync.Mutex
	lanes  map[K]*lane
	closed bool
	wg     sync.WaitGroup
	buffer int
}

// New creates a Queue. buffer is the per-key task backlog; values < 1 fall
// back to 16.
func New[K comparable](buffer int) *Queue[K] {
	if buffer < 1 {
		buffer = 16
	}
	return &Queue[K]{
		lanes:  make(map[K]*lane),
		buffer: buffer,
	}
}

// Do runs fn for key, blocking until fn finishes, and returns its error.
// Calls for the same key never overlap. If ctx is cancelled while waiting,
// Do returns the context error; a task already enqueued still executes.
func (q *Queue[K]) Do(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.wg.Add(1)
	l := q.laneLocked(key)
	q.mu.Unlock()

	t := &task{fn: fn, done: make(chan error, 1)}

	select {
	case l.tasks <- t:
	case <-ctx.Done():
		q.wg.Done()
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		q.wg.Done()
		return err
	case <-ctx.Done():
		q.wg.Done()
		return ctx.Err()
	}
}

// Close stops accepting work and shuts down all lanes. Tasks already queued
// still run.
func (q *Queue[K]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// wait for in-flight Do calls to finish enqueueing, then close lanes
	q.wg.Wait()

	q.mu.Lock()
	for _, l := range q.lanes {
		close(l.tasks)
	}
	q.lanes = nil
	q.mu.Unlock()
}

func (q *Queue[K]) laneLocked(key K) *lane {
	l, ok := q.lanes[key]
	if ok {
		return l
	}
	l = &lane{tasks: make(chan *task, q.buffer)}
	q.lanes[key] = l
	go func() {
		for t := range l.tasks {
			t.done <- t.fn()
		}
	}()
	return l
}
