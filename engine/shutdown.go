package engine

import (
	"context"
	"time"

	"github.com/gbxfabric/fabric/fabric"
	"github.com/gbxfabric/fabric/kernel/utils"
)

// Coordinator is the main context's handle for tearing the fabric down: it
// flips the shutdown flag every worker runtime polls between sweeps, then
// waits for each one to actually return, bounded by a timeout. Built on
// kernel/utils.GracefulShutdown's registered-funcs-run-then-wait shape,
// applied to the one teardown sequence this spec's cancellation model
// describes (§5: "Cancellation is by shutdown flag... workers check it
// between sweeps and exit cleanly").
type Coordinator struct {
	doorbells *fabric.Doorbells
	shutdown  *utils.GracefulShutdown
	logger    *utils.Logger
}

// NewCoordinator builds a Coordinator over doorbells, giving every watched
// runtime up to timeout to notice the flag and return from Run.
func NewCoordinator(doorbells *fabric.Doorbells, timeout time.Duration, logger *utils.Logger) *Coordinator {
	if logger == nil {
		logger = utils.DefaultLogger("shutdown")
	}
	return &Coordinator{
		doorbells: doorbells,
		shutdown:  utils.NewGracefulShutdown(timeout, logger),
		logger:    logger,
	}
}

// Watch registers rt so Shutdown waits for its Run goroutine to exit.
func (c *Coordinator) Watch(name string, rt *WorkerRuntime) {
	c.shutdown.Register(func() error {
		<-rt.Done()
		return nil
	})
	c.logger.Info("watching worker runtime for shutdown", utils.String("runtime", name))
}

// Shutdown sets the fabric's shutdown flag, wakes every parked runtime,
// and waits for all watched runtimes to exit or ctx/timeout to elapse.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if err := c.doorbells.RequestShutdown(); err != nil {
		return err
	}
	return c.shutdown.Shutdown(ctx)
}
