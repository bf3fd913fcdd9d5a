package engine

import (
	"github.com/gbxfabric/fabric/fabric"
	"github.com/gbxfabric/fabric/kernel/utils"
)

// idleParkTimeoutMillis bounds how long Park blocks per idle sweep even
// with no doorbell activity, so RequestShutdown is noticed promptly on
// backends whose Notify32 wakes a parked waiter but races the store that
// preceded it.
const idleParkTimeoutMillis = 250

// WorkerRuntime hosts a fixed set of service engines on one worker thread
// (native) or worker (browser) and round-robins poll_once across them,
// parking on the fabric's global doorbell once a full sweep does nothing.
// Grounded on the starvation-bound round robin described in §4.3,
// structured the way kernel/threads/supervisor's JobQueue-draining loop
// repeatedly dequeues and processes, generalized to many queues at once.
type WorkerRuntime struct {
	engines   []ServiceEngine
	doorbells *fabric.Doorbells
	logger    *utils.Logger

	// done is closed once Run observes the shutdown flag and returns, so
	// a Coordinator can Register a wait on it without the runtime needing
	// to know anything about graceful shutdown itself.
	done chan struct{}
}

// NewWorkerRuntime builds a runtime over engines, sharing one doorbells
// region for parking and shutdown.
func NewWorkerRuntime(doorbells *fabric.Doorbells, logger *utils.Logger, engines ...ServiceEngine) *WorkerRuntime {
	if logger == nil {
		logger = utils.DefaultLogger("worker-runtime")
	}
	return &WorkerRuntime{engines: engines, doorbells: doorbells, logger: logger, done: make(chan struct{})}
}

// Done returns a channel closed once Run has observed the shutdown flag
// and returned, for a Coordinator to wait on.
func (r *WorkerRuntime) Done() <-chan struct{} { return r.done }

// Run executes sweeps until the shutdown flag is observed, parking between
// idle sweeps. Intended to be the entire body of a worker goroutine/thread.
func (r *WorkerRuntime) Run() error {
	defer close(r.done)
	for {
		shouldStop, err := r.doorbells.ShouldShutdown()
		if err != nil {
			return err
		}
		if shouldStop {
			r.logger.Info("worker runtime shutting down")
			return nil
		}

		lastSeen, err := r.doorbells.GlobalSeq()
		if err != nil {
			return err
		}

		totalWork, err := r.Sweep()
		if err != nil {
			return err
		}
		if totalWork > 0 {
			continue
		}

		if _, err := r.doorbells.Park(lastSeen, idleParkTimeoutMillis); err != nil {
			return err
		}
	}
}

// Sweep calls poll_once on every engine exactly once, in round-robin
// order, and returns the total work_done across the sweep. A single
// Sweep call never drains more than one command of any class per engine,
// so in any R-round window of Sweep calls every engine receives at least
// one poll_once (§4.3's starvation bound).
func (r *WorkerRuntime) Sweep() (totalWork int, err error) {
	for _, e := range r.engines {
		did, err := e.PollOnce()
		if err != nil {
			r.logger.Error("engine poll_once error", utils.String("engine", e.Name()), utils.Err(err))
			return totalWork, err
		}
		totalWork += did
	}
	return totalWork, nil
}
