// Package engine hosts the worker side of the fabric: a ServiceEngine per
// endpoint, each draining at most one command per priority class per
// poll_once, and a WorkerRuntime that round-robins a fixed set of engines
// and parks on the shared global doorbell once a full sweep finds nothing
// to do. Grounded on kernel/threads/supervisor's JobQueue/ChannelSet
// (Dequeue-one, process, repeat) generalized from one FIFO queue to the
// fabric's three-class-per-endpoint priority drain.
package engine

import (
	"errors"

	"github.com/gbxfabric/fabric/commands"
	"github.com/gbxfabric/fabric/fabric"
	"github.com/gbxfabric/fabric/kernel/utils"
	"github.com/gbxfabric/fabric/ports"
)

// Handler processes one decoded WorkCmd and returns the reports it
// produces, if any. Implementations are supplied per service (kernel, fs,
// gpu, audio); engine.Engine itself only owns the port-draining mechanics.
type Handler interface {
	HandleWorkCmd(cmd commands.WorkCmd) ([]commands.Report, error)
}

// ServiceEngine is what a WorkerRuntime round-robins: one poll_once call
// per turn, draining at most one command per priority class.
type ServiceEngine interface {
	PollOnce() (workDone int, err error)
	Name() string
}

// Engine is the worker-side view of one endpoint: it owns the consumer end
// of every command port and the producer end of the reply port, and drains
// them in lossless > coalesce > besteffort order per poll_once, per §4.3's
// starvation bound (lossless commands are never permanently starved by a
// stream of best-effort submissions).
type Engine struct {
	name string
	ep   *fabric.ServiceRegions

	lossless   *ports.RingConsumer
	besteffort *ports.RingConsumer
	reps       *ports.RingProducer

	handler Handler
	metrics *fabric.Metrics
	anomaly *fabric.AnomalyTracker
	logger  *utils.Logger
}

// NewEngine builds the worker-side engine for a resolved endpoint.
func NewEngine(name string, ep *fabric.ServiceRegions, handler Handler, metrics *fabric.Metrics, anomaly *fabric.AnomalyTracker, logger *utils.Logger) *Engine {
	if logger == nil {
		logger = utils.DefaultLogger("engine." + name)
	}
	e := &Engine{name: name, ep: ep, handler: handler, metrics: metrics, anomaly: anomaly, logger: logger}
	if ep.LosslessCmds != nil {
		e.lossless = ep.LosslessCmds.Consumer()
	}
	if ep.BesteffortCmds != nil {
		e.besteffort = ep.BesteffortCmds.Consumer()
	}
	if ep.Reps != nil {
		e.reps = ep.Reps.Producer()
	}
	return e
}

func (e *Engine) Name() string { return e.name }

// PollOnce drains at most one lossless command; failing that, at most one
// coalesced command from the endpoint's mailbox; failing that, at most one
// best-effort command. workDone is 1 if any command was processed, 0
// otherwise, matching §4.3's "an engine may not drain more than one
// command of any class per poll_once" bound.
func (e *Engine) PollOnce() (workDone int, err error) {
	if did, err := e.pollLossless(); err != nil || did {
		return boolToInt(did), err
	}
	if did, err := e.pollCoalesced(); err != nil || did {
		return boolToInt(did), err
	}
	if did, err := e.pollBestEffort(); err != nil || did {
		return boolToInt(did), err
	}
	return 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (e *Engine) pollLossless() (bool, error) {
	if e.lossless == nil {
		return false, nil
	}
	rec, err := e.lossless.Peek()
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if err := e.lossless.PopAdvance(); err != nil {
		return false, err
	}
	return true, e.dispatch(rec.Env.Tag, rec.Env.Ver, rec.Payload)
}

func (e *Engine) pollCoalesced() (bool, error) {
	if e.ep.CoalesceCmd == nil {
		return false, nil
	}
	rec, _, ok, err := e.ep.CoalesceCmd.Take()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, e.dispatch(rec.Env.Tag, rec.Env.Ver, rec.Payload)
}

func (e *Engine) pollBestEffort() (bool, error) {
	if e.besteffort == nil {
		return false, nil
	}
	rec, err := e.besteffort.Peek()
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if err := e.besteffort.PopAdvance(); err != nil {
		return false, err
	}
	return true, e.dispatch(rec.Env.Tag, rec.Env.Ver, rec.Payload)
}

func (e *Engine) dispatch(tag, ver uint8, payload []byte) error {
	if ver != commands.CurrentVer {
		return e.recordSchemaSkew(tag, ver)
	}
	cmd, err := commands.DearchiveWorkCmd(tag, ver, payload)
	if err != nil {
		return e.recordCorruption(tag, ver)
	}

	reports, err := e.handler.HandleWorkCmd(cmd)
	if err != nil {
		e.logger.Error("handler error", utils.String("engine", e.name), utils.Err(err))
		return nil
	}
	for _, r := range reports {
		if err := e.submitReport(r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) submitReport(r commands.Report) error {
	if e.reps == nil {
		return nil
	}
	tag, payload, err := commands.ArchiveReport(r)
	if err != nil {
		return err
	}
	env := ports.Envelope{Tag: tag, Ver: commands.CurrentVer}
	grant, err := e.reps.TryReserve(env, uint32(len(payload)))
	if err != nil {
		if errors.Is(err, ports.ErrRingFull) {
			// The reply ring is the engine's only outbound port and has
			// no best-effort fallback; a full reply ring means the main
			// context is not draining fast enough. Drop and count it
			// rather than block the worker thread.
			if e.metrics != nil {
				_, _ = e.metrics.IncBesteffortDrops()
			}
			return nil
		}
		return err
	}
	return e.reps.Commit(grant, payload)
}

func (e *Engine) recordSchemaSkew(tag, ver uint8) error {
	if e.anomaly == nil {
		return nil
	}
	firstOfKind, err := e.anomaly.RecordSchemaSkew(fabric.AnomalySignature{Endpoint: e.name, Tag: tag, Ver: ver})
	if err == nil && firstOfKind {
		e.logger.Warn("schema skew: dropping command",
			utils.String("engine", e.name),
			utils.Uint32("tag", uint32(tag)),
			utils.Uint32("ver", uint32(ver)))
	}
	return err
}

func (e *Engine) recordCorruption(tag, ver uint8) error {
	if e.anomaly == nil {
		return nil
	}
	firstOfKind, err := e.anomaly.RecordCorruption(fabric.AnomalySignature{Endpoint: e.name, Tag: tag, Ver: ver})
	if err == nil && firstOfKind {
		e.logger.Warn("corrupt record: dropping command",
			utils.String("engine", e.name),
			utils.Uint32("tag", uint32(tag)),
			utils.Uint32("ver", uint32(ver)))
	}
	return err
}
