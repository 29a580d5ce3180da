package installer

import (
	"context"
	"sync"
)

// task is one iteration of a loop task. Returning true re-queues it at the
// tail, so two loop tasks sharing a worker interleave.
type task func(ctx context.Context) bool

// worker is a FIFO task queue drained by n goroutines. A task value is
// queued at most once, so a loop task never runs concurrently with itself.
type worker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []task
	closed bool
}

func newWorker(ctx context.Context, n int) *worker {
	if n <= 0 {
		n = 1
	}
	w := &worker{}
	w.cond = sync.NewCond(&w.mu)
	for i := 0; i < n; i++ {
		go w.loop(ctx)
	}
	return w
}

// post reports false if the worker is closed.
func (w *worker) post(t task) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.tasks = append(w.tasks, t)
	w.cond.Signal()
	return true
}

// close drops queued tasks; running tasks finish their current iteration.
func (w *worker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.tasks = nil
	w.cond.Broadcast()
}

func (w *worker) loop(ctx context.Context) {
	for {
		w.mu.Lock()
		for len(w.tasks) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		t := w.tasks[0]
		w.tasks = w.tasks[1:]
		w.mu.Unlock()

		if t(ctx) {
			w.post(t)
		}
	}
}
