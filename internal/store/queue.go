package store

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when work is submitted to a closed store.
var ErrClosed = errors.New("store closed")

// Queue is a single-writer work queue. Every store owns exactly one; all of
// its reads and writes pass through it, so a read submitted after a write
// observes that write.
type Queue struct {
	jobs chan func()
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts the queue's worker goroutine.
func NewQueue(buffer int) *Queue {
	q := &Queue{
		jobs: make(chan func(), buffer),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for job := range q.jobs {
		job()
	}
}

// Go enqueues a job without waiting for it to run.
func (q *Queue) Go(job func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	q.jobs <- job
	return nil
}

// Do enqueues fn and blocks until it has run or ctx is done. A job abandoned
// by its caller still runs; fn must not write state the caller owns.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	_, err := query(ctx, q, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// query runs fn on the queue and hands its result back only if the caller is
// still waiting. fn builds its result in locals, so a job that outlives a
// cancelled caller never touches the caller's variables.
func query[T any](ctx context.Context, q *Queue, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	ch := make(chan result, 1)
	if err := q.Go(func() {
		v, err := fn()
		ch <- result{v, err}
	}); err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Flush waits until every job enqueued before the call has run.
func (q *Queue) Flush(ctx context.Context) error {
	return q.Do(ctx, func() error { return nil })
}

// Close drains pending jobs and stops the worker.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}
