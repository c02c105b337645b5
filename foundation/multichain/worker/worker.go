// Package worker implements the task scheduler for the multichain node:
// inbound messages, outbound messages and periodic crawls all run on it.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/multichain/foundation/multichain/router"
	"github.com/ardanlabs/multichain/foundation/multichain/signature"
	"github.com/ardanlabs/multichain/foundation/multichain/state"
	"github.com/ardanlabs/multichain/foundation/multichain/wire"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Defaults used when the config leaves a value empty.
const (
	defaultQueueSize = 1024
	taskTimeout      = 10 * time.Second
)

// Config represents the configuration required to run the worker.
type Config struct {
	QueueSize      int
	CrawlInterval  time.Duration
	CrawlOnConnect bool
	EvHandler      state.EventHandler
}

// Stats are the counters kept by the worker.
type Stats struct {
	Queued    int    `json:"queued"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
}

// =============================================================================

type taskKind int

const (
	taskReceive taskKind = iota
	taskSend
	taskConnect
)

type task struct {
	kind taskKind
	env  wire.Envelope
}

// Worker runs every protocol task on a single goroutine.
type Worker struct {
	state          *state.State
	router         *router.Router
	crawlOnConnect bool
	evHandler      state.EventHandler

	ticker   *time.Ticker
	tasks    chan task
	shut     chan struct{}
	shutOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group

	processed atomic.Uint64
	dropped   atomic.Uint64
}

// Run creates a worker, registers the worker with the state and router
// packages, and starts up all the background processes.
func Run(st *state.State, rtr *router.Router, cfg Config) *Worker {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		state:          st,
		router:         rtr,
		crawlOnConnect: cfg.CrawlOnConnect,
		evHandler:      ev,
		tasks:          make(chan task, queueSize),
		shut:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		group:          &errgroup.Group{},
	}

	// Register this worker with the state and router packages.
	st.Worker = &w
	rtr.Scheduler = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.taskOperations,
	}

	if cfg.CrawlInterval > 0 {
		w.ticker = time.NewTicker(cfg.CrawlInterval)
		operations = append(operations, w.crawlOperations)
	}

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		op := op
		w.group.Go(func() error {
			hasStarted <- true
			op()
			return nil
		})
	}

	// Wait for the G's to report they are running.
	for range operations {
		<-hasStarted
	}

	return &w
}

// Stats returns the current counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Queued:    len(w.tasks),
		Processed: w.processed.Load(),
		Dropped:   w.dropped.Load(),
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work. Queued tasks are
// dropped.
func (w *Worker) Shutdown() {
	w.shutOnce.Do(func() {
		w.evHandler("worker: shutdown: started")
		defer w.evHandler("worker: shutdown: completed")

		if w.ticker != nil {
			w.evHandler("worker: shutdown: stop ticker")
			w.ticker.Stop()
		}

		w.evHandler("worker: shutdown: terminate goroutines")
		close(w.shut)
		w.cancel()
		w.group.Wait()
	})
}

// SignalSend queues a message for delivery. It reports false when the queue
// is full and the message was dropped.
func (w *Worker) SignalSend(env wire.Envelope) bool {
	return w.signal(task{kind: taskSend, env: env})
}

// =============================================================================
// These methods implement the router.Scheduler interface.

// SignalReceive queues an inbound message for dispatch. It reports false
// when the queue is full and the message was dropped.
func (w *Worker) SignalReceive(env wire.Envelope) bool {
	return w.signal(task{kind: taskReceive, env: env})
}

// SignalConnect is told about every new peer. When configured the peer's
// chain is crawled.
func (w *Worker) SignalConnect(publicKey signature.PublicKey) {
	if !w.crawlOnConnect {
		return
	}

	if !w.signal(task{kind: taskConnect, env: wire.Envelope{Peer: publicKey}}) {
		w.evHandler("worker: SignalConnect: WARNING: queue full, crawl of %s skipped", publicKey.Mid())
	}
}

// =============================================================================

func (w *Worker) signal(t task) bool {
	if w.isShutdown() {
		w.dropped.Inc()
		return false
	}

	select {
	case w.tasks <- t:
		return true
	default:
		w.dropped.Inc()
		return false
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
