package flow

import (
	"context"
	"sync"
)

// task is a unit of background work. run delivers its result on a channel
// owned by the submitter.
type task struct {
	ctx context.Context
	run func(ctx context.Context)
}

// worker executes tasks one at a time on a single goroutine.
type worker struct {
	tasks chan task
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newWorker() *worker {
	w := &worker{
		tasks: make(chan task),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		select {
		case t := <-w.tasks:
			t.run(t.ctx)
		case <-w.quit:
			return
		}
	}
}

// stop waits for the task in progress, if any, and stops the worker.
func (w *worker) stop() {
	w.once.Do(func() { close(w.quit) })
	<-w.done
}

type result[T any] struct {
	value T
	err   error
}

// await runs fn on the worker and waits for its result. It returns the
// context's error as soon as ctx is done; a call already handed to the worker
// keeps running and its result is dropped. No work is submitted once ctx is
// done.
func await[T any](ctx context.Context, w *worker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// Buffered so the worker never blocks on an abandoned future
	future := make(chan result[T], 1)
	t := task{
		ctx: ctx,
		run: func(ctx context.Context) {
			if err := ctx.Err(); err != nil {
				future <- result[T]{err: err}
				return
			}
			v, err := fn(ctx)
			future <- result[T]{value: v, err: err}
		},
	}

	select {
	case w.tasks <- t:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-w.quit:
		return zero, errWorkerClosed
	}

	select {
	case r := <-future:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
