package hub

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gbxfabric/fabric/commands"
	"github.com/gbxfabric/fabric/fabric"
	"github.com/gbxfabric/fabric/kernel/utils"
	"github.com/gbxfabric/fabric/ports"
)

// errServiceFault is fed to the adapter's circuit breaker by MarkFault; it
// never escapes Adapter's public API.
var errServiceFault = errors.New("hub: service fault")

// Adapter is the main-side view of one service's endpoint: it implements
// TrySubmit/Drain per §4.6, routing each command to the right port class
// and mapping the port's result to a SubmitOutcome. A gobreaker
// CircuitBreaker turns repeated MarkFault calls (corruption, version
// mismatch, a dead worker) into the sticky Closed outcome §7 describes;
// ordinary WouldBlock/Dropped backpressure never touches the breaker, since
// that is expected steady-state behavior, not a fault.
type Adapter struct {
	name string
	ep   *fabric.ServiceRegions

	lossless   *ports.RingProducer
	besteffort *ports.RingProducer
	reps       *ports.RingConsumer

	metrics   *fabric.Metrics
	anomaly   *fabric.AnomalyTracker
	doorbells *fabric.Doorbells
	logger    *utils.Logger

	breaker *gobreaker.CircuitBreaker
}

// NewAdapter builds the main-side adapter for a resolved endpoint. metrics
// and anomaly may be nil in tests that don't exercise the observability
// path. doorbells may be nil in tests that submit and drain synchronously
// without a parked worker runtime to wake; when non-nil, submit() rings it
// on every non-Closed outcome (including WouldBlock/Dropped — the spec's
// "increments the global doorbell when submitting any command" is not
// conditioned on acceptance) so a worker parked on the fabric's global
// doorbell wakes immediately instead of waiting out its idle-sweep
// timeout (§4.7).
func NewAdapter(name string, ep *fabric.ServiceRegions, metrics *fabric.Metrics, anomaly *fabric.AnomalyTracker, doorbells *fabric.Doorbells, logger *utils.Logger) *Adapter {
	if logger == nil {
		logger = utils.DefaultLogger("hub." + name)
	}
	a := &Adapter{
		name:      name,
		ep:        ep,
		metrics:   metrics,
		anomaly:   anomaly,
		doorbells: doorbells,
		logger:    logger,
	}
	if ep.LosslessCmds != nil {
		a.lossless = ep.LosslessCmds.Producer()
	}
	if ep.BesteffortCmds != nil {
		a.besteffort = ep.BesteffortCmds.Producer()
	}
	if ep.Reps != nil {
		a.reps = ep.Reps.Consumer()
	}

	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hub." + name,
		MaxRequests: 1,
		Interval:    0, // never reset counts on a timer; only a Timeout-elapsed half-open probe clears them
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				utils.String("adapter", name),
				utils.String("from", from.String()),
				utils.String("to", to.String()))
		},
	})
	return a
}

// MarkFault records a genuine service fault (corruption, schema skew past
// tolerance, a dead worker thread) against the breaker. Enough consecutive
// faults trip the adapter sticky Closed.
func (a *Adapter) MarkFault(err error) {
	_, _ = a.breaker.Execute(func() (interface{}, error) {
		return nil, errServiceFault
	})
	if a.logger != nil {
		a.logger.Error("service fault recorded", utils.String("adapter", a.name), utils.Err(err))
	}
}

// IsClosed reports whether the breaker is open, i.e. the adapter is
// sticking Closed for both submit and drain.
func (a *Adapter) IsClosed() bool {
	return a.breaker.State() == gobreaker.StateOpen
}

// TrySubmitWork routes cmd per DefaultWorkPolicy and never blocks.
func (a *Adapter) TrySubmitWork(cmd commands.WorkCmd) SubmitOutcome {
	policy := DefaultWorkPolicy(cmd)
	return a.submit(policy, func() (uint8, []byte, error) { return commands.ArchiveWorkCmd(cmd) })
}

// TrySubmitAV routes cmd per DefaultAvPolicy against the given display
// lane and never blocks.
func (a *Adapter) TrySubmitAV(cmd commands.AvCmd, displayLane uint32) SubmitOutcome {
	policy := DefaultAvPolicy(cmd, displayLane)
	return a.submit(policy, func() (uint8, []byte, error) { return commands.ArchiveAvCmd(cmd) })
}

func (a *Adapter) submit(policy Policy, archive func() (uint8, []byte, error)) SubmitOutcome {
	if a.IsClosed() {
		return Closed
	}

	tag, payload, err := archive()
	if err != nil {
		a.MarkFault(err)
		return Closed
	}

	var outcome SubmitOutcome
	_, execErr := a.breaker.Execute(func() (interface{}, error) {
		outcome = a.route(policy, tag, payload)
		return nil, nil
	})
	if execErr != nil {
		// ErrOpenState / ErrTooManyRequests: the breaker itself rejected
		// this attempt (already open, or a half-open probe slot is busy).
		return Closed
	}

	if outcome != Closed && a.doorbells != nil {
		if err := a.doorbells.Ring(); err != nil {
			a.MarkFault(err)
			return Closed
		}
	}
	return outcome
}

func (a *Adapter) route(policy Policy, tag uint8, payload []byte) SubmitOutcome {
	env := ports.Envelope{Tag: tag, Ver: commands.CurrentVer}

	switch policy {
	case PolicyCoalesce:
		if a.ep.CoalesceCmd == nil {
			return Dropped
		}
		outcome, err := a.ep.CoalesceCmd.Write(env, payload)
		if err != nil {
			a.MarkFault(err)
			return Closed
		}
		if outcome == ports.WriteCoalesced {
			if a.metrics != nil {
				_, _ = a.metrics.IncCoalescedCount()
			}
			return Coalesced
		}
		return Accepted

	case PolicyBestEffort:
		if a.besteffort == nil {
			return Dropped
		}
		grant, err := a.besteffort.TryReserve(env, uint32(len(payload)))
		if err != nil {
			if errors.Is(err, ports.ErrRingFull) {
				if a.metrics != nil {
					_, _ = a.metrics.IncBesteffortDrops()
				}
				return Dropped
			}
			a.MarkFault(err)
			return Closed
		}
		if err := a.besteffort.Commit(grant, payload); err != nil {
			a.MarkFault(err)
			return Closed
		}
		return Accepted

	case PolicyLossless, PolicyMust:
		if a.lossless == nil {
			return Dropped
		}
		grant, err := a.lossless.TryReserve(env, uint32(len(payload)))
		if err != nil {
			if errors.Is(err, ports.ErrRingFull) {
				return WouldBlock
			}
			a.MarkFault(err)
			return Closed
		}
		if err := a.lossless.Commit(grant, payload); err != nil {
			a.MarkFault(err)
			return Closed
		}
		return Accepted

	default:
		return Dropped
	}
}

// PullOne pops and dearchives exactly one reply from this adapter's reply
// ring without blocking, transparently skipping (and counting) any
// schema-skewed or corrupted records it encounters along the way. ok is
// false only once the ring is genuinely empty.
func (a *Adapter) PullOne() (report commands.Report, ok bool, err error) {
	if a.IsClosed() || a.reps == nil {
		return commands.Report{}, false, nil
	}

	for {
		rec, err := a.reps.Peek()
		if err != nil {
			a.MarkFault(err)
			return commands.Report{}, false, err
		}
		if rec == nil {
			return commands.Report{}, false, nil
		}
		if err := a.reps.PopAdvance(); err != nil {
			a.MarkFault(err)
			return commands.Report{}, false, err
		}

		if rec.Env.Ver != commands.CurrentVer {
			a.recordSchemaSkew(rec.Env.Tag, rec.Env.Ver)
			continue
		}
		report, err := commands.DearchiveReport(rec.Env.Tag, rec.Env.Ver, rec.Payload)
		if err != nil {
			a.recordSchemaSkew(rec.Env.Tag, rec.Env.Ver)
			continue
		}
		return report, true, nil
	}
}

// Drain pulls up to max replies from this adapter's reply ring without
// blocking.
func (a *Adapter) Drain(max int) ([]commands.Report, error) {
	reports := make([]commands.Report, 0, max)
	for len(reports) < max {
		report, ok, err := a.PullOne()
		if err != nil {
			return reports, err
		}
		if !ok {
			break
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (a *Adapter) recordSchemaSkew(tag, ver uint8) {
	if a.anomaly == nil {
		return
	}
	firstOfKind, err := a.anomaly.RecordSchemaSkew(fabric.AnomalySignature{Endpoint: a.name, Tag: tag, Ver: ver})
	if err == nil && firstOfKind && a.logger != nil {
		a.logger.Warn("schema skew: dropping record",
			utils.String("adapter", a.name),
			utils.Uint32("tag", uint32(tag)),
			utils.Uint32("ver", uint32(ver)))
	}
}
