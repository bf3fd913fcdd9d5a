package utils

import (
	"context"
	"sync"
	"time"
)

// GracefulShutdown runs a set of registered teardown functions
// concurrently, bounded by a single timeout. engine.Coordinator uses
// one to stop a worker runtime and wait for its Done channel without the
// runtime itself knowing anything about orchestrated shutdown.
type GracefulShutdown struct {
	mu      sync.Mutex
	fns     []func() error
	timeout time.Duration
	logger  *Logger
}

// NewGracefulShutdown returns an empty shutdown manager bounded by timeout.
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = DefaultLogger("shutdown")
	}
	return &GracefulShutdown{timeout: timeout, logger: logger}
}

// Register appends fn to the set run by Shutdown. Shutdown starts the
// functions in reverse registration order, but they run concurrently, so
// no completion order is guaranteed.
func (g *GracefulShutdown) Register(fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fns = append(g.fns, fn)
}

// Shutdown runs every registered function concurrently and waits until all
// of them return, ctx is done, or g.timeout elapses, whichever comes first.
// Every per-function error is logged and none stops the others from
// running; Shutdown itself only fails on timeout.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	fns := make([]func() error, len(g.fns))
	copy(fns, g.fns)
	g.mu.Unlock()

	g.logger.Info("shutdown starting", Int("components", len(fns)))

	deadline, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(len(fns))
	for i := len(fns) - 1; i >= 0; i-- {
		idx, fn := i, fns[i]
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				g.logger.Error("shutdown function failed", Int("index", idx), Err(err))
			}
		}()
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
		g.logger.Info("shutdown complete")
		return nil
	case <-deadline.Done():
		g.logger.Warn("shutdown timed out")
		return TimeoutError("graceful shutdown")
	}
}
