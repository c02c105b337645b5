package worker

import (
	"context"
)

// taskOperations runs the queued tasks one at a time.
func (w *Worker) taskOperations() {
	w.evHandler("worker: taskOperations: G started")
	defer w.evHandler("worker: taskOperations: G completed")

	for {
		select {
		case t := <-w.tasks:
			if !w.isShutdown() {
				w.runTask(t)
			}
		case <-w.shut:
			w.evHandler("worker: taskOperations: received shut signal")
			return
		}
	}
}

// runTask performs the work for one task. Failures are logged, the next
// task runs regardless.
func (w *Worker) runTask(t task) {
	ctx, cancel := context.WithTimeout(w.ctx, taskTimeout)
	defer cancel()

	defer w.processed.Inc()

	switch t.kind {
	case taskReceive:
		if err := w.router.Dispatch(ctx, t.env); err != nil {
			w.evHandler("worker: runTask: receive: ERROR: %s", err)
		}

	case taskSend:
		if err := w.router.Deliver(ctx, t.env); err != nil {
			w.evHandler("worker: runTask: send: WARNING: %s", err)
		}

	case taskConnect:
		if err := w.state.RequestCrawl(t.env.Peer, 0); err != nil {
			w.evHandler("worker: runTask: connect: ERROR: %s", err)
		}
	}
}
