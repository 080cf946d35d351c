package operator

import (
	"context"
	"sync"

	"github.com/trainkit/trainkit/pkg/parallel"
)

// backgroundDispatcher runs background-lane hook buckets off the calling
// worker's goroutine, bounding concurrently-running buckets to the
// configured background pool size. Dispatch never blocks the caller: the
// task is hung off its own goroutine onto an internal queue, and a single
// loop goroutine drains that queue in batches and executes each batch on a
// parallel.WorkerPool sized to the pool's worker count — the same generic
// worker-pool abstraction the demo trainer uses for its parameter-group
// updates, standing in here for the scheduler's worker-count semaphore.
type backgroundDispatcher struct {
	tasks chan func()
	wg    sync.WaitGroup
	pool  *parallel.WorkerPool[func(), struct{}]
}

func newBackgroundDispatcher(size int) *backgroundDispatcher {
	if size < 1 {
		size = 1
	}
	d := &backgroundDispatcher{
		tasks: make(chan func()),
		pool:  parallel.NewWorkerPool[func(), struct{}](parallel.DefaultPoolConfig().WithWorkers(size)),
	}
	go d.run()
	return d
}

// run drains queued tasks in batches and executes each batch on the pool,
// which bounds the concurrently-running tasks to the pool's worker count
// regardless of how large a batch drain collects.
func (d *backgroundDispatcher) run() {
	for fn := range d.tasks {
		batch := []func(){fn}
		batch = append(batch, d.drainPending()...)
		d.pool.ExecuteFunc(context.Background(), batch, func(_ context.Context, task func()) (struct{}, error) {
			defer d.wg.Done()
			task()
			return struct{}{}, nil
		})
	}
}

// drainPending collects whatever tasks are already queued without blocking,
// so a burst of dispatches lands in one pool batch instead of one at a time.
func (d *backgroundDispatcher) drainPending() []func() {
	var rest []func()
	for {
		select {
		case fn := <-d.tasks:
			rest = append(rest, fn)
		default:
			return rest
		}
	}
}

// Dispatch runs fn on the pool; it never blocks the caller.
func (d *backgroundDispatcher) Dispatch(fn func()) {
	d.wg.Add(1)
	go func() { d.tasks <- fn }()
}

// Wait blocks until every dispatched task has completed. Used by tests and
// by a clean Stop().
func (d *backgroundDispatcher) Wait() {
	d.wg.Wait()
}
