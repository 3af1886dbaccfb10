package worker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/roach88/loomstore/internal/logger"
)

// ErrClosed is returned when submitting to a closed worker.
var ErrClosed = errors.New("worker: closed")

// Worker runs submitted jobs one at a time, in submission order, on a single
// dedicated goroutine.
//
// Jobs that touch a storage component must all go through the same Worker;
// that serialization is the only locking the components get.
type Worker struct {
	name  string
	queue *jobQueue
	log   zerolog.Logger
	done  chan struct{}
}

// New starts a worker goroutine. name identifies it in logs.
func New(name string, log *zerolog.Logger) *Worker {
	w := &Worker{
		name:  name,
		queue: newJobQueue(),
		log:   logger.Component(logger.OrNop(log), "worker").With().Str("worker", name).Logger(),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.done)
	w.log.Debug().Msg("worker started")

	for {
		if j, ok := w.queue.tryDequeue(); ok {
			j()
			continue
		}

		// The signal channel is closed on Close; an empty queue then means
		// every accepted job has run.
		<-w.queue.wait()
		if w.queue.len() == 0 && w.closed() {
			w.log.Debug().Msg("worker stopped")
			return
		}
	}
}

func (w *Worker) closed() bool {
	w.queue.mu.Lock()
	defer w.queue.mu.Unlock()
	return w.queue.closed
}

// Submit queues fn without waiting for it. Returns ErrClosed after Close.
func (w *Worker) Submit(fn func()) error {
	if !w.queue.enqueue(fn) {
		return ErrClosed
	}
	return nil
}

// Call runs fn on w and waits for its result.
//
// ctx bounds only the wait: if ctx ends first, Call returns ctx.Err() and fn
// still runs to completion on the worker, its result discarded. A job that
// has not started yet is skipped once its caller is gone.
func Call[T any](ctx context.Context, w *Worker, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		val T
		err error
	}
	results := make(chan result, 1)

	err := w.Submit(func() {
		if ctx.Err() != nil {
			return
		}
		v, err := fn()
		results <- result{val: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-results:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Do is Call for jobs that only return an error.
func Do(ctx context.Context, w *Worker, fn func() error) error {
	_, err := Call(ctx, w, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Close stops accepting jobs, waits for queued jobs to finish and stops the
// goroutine. Safe to call more than once.
func (w *Worker) Close() {
	w.queue.close()
	<-w.done
}
