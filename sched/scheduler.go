// Package sched implements the single-threaded cooperative frame loop that
// ties world, hub, and the fabric together: priority intent queues, a
// count-based intent pull budget, the hub's round-robin report drain, and
// the health flags that make backpressure and service failure visible to
// an orchestrator instead of panicking. Grounded on the teacher's
// kernel/threads/supervisor congestion state machine (per-target flags
// toggled by outcome) generalized to the frame-shaped two-phase loop this
// spec's scheduler describes.
package sched

import (
	"github.com/gbxfabric/fabric/commands"
	"github.com/gbxfabric/fabric/hub"
	"github.com/gbxfabric/fabric/kernel/utils"
	"github.com/gbxfabric/fabric/world"
)

// DefaultIntentPullBudget and DefaultReportBudget are the scheduler
// parameter defaults fixed by the external interface.
const (
	DefaultIntentPullBudget = 3
	DefaultReportBudget     = 32
	maxStallReliefFrames    = 10
)

// HealthFlags surfaces backpressure and failure state an orchestrator (or
// a debug HUD) can read without touching World, which stays the pure
// reducers' exclusive domain.
type HealthFlags struct {
	GpuBlocked        bool
	ServicePressure   bool
	Fatal             bool
	StallReliefFrames uint8
}

// Scheduler owns the authoritative World, the service Hub, and the three
// FIFO priority intent queues. Tick is the entire per-frame entry point; no
// other method mutates World.
type Scheduler struct {
	World world.World
	Hub   *hub.Hub

	queues [3][]world.Intent

	IntentPullBudget int
	ReportBudget     int

	Health    HealthFlags
	Inspector InspectorState

	logger *utils.Logger
}

// New builds a scheduler over an already-registered Hub, with the
// external interface's default budgets.
func New(w world.World, h *hub.Hub, logger *utils.Logger) *Scheduler {
	if logger == nil {
		logger = utils.DefaultLogger("sched")
	}
	return &Scheduler{
		World:            w,
		Hub:              h,
		IntentPullBudget: DefaultIntentPullBudget,
		ReportBudget:     DefaultReportBudget,
		logger:           logger,
	}
}

// Enqueue adds intent to the back of priority p's queue.
func (s *Scheduler) Enqueue(p world.Priority, intent world.Intent) {
	s.queues[p] = append(s.queues[p], intent)
}

func (s *Scheduler) enqueueFront(p world.Priority, intent world.Intent) {
	s.queues[p] = append([]world.Intent{intent}, s.queues[p]...)
}

// popIntent removes and returns the oldest intent from the highest
// nonempty priority queue (P0 first), or ok=false if every queue is empty.
func (s *Scheduler) popIntent() (intent world.Intent, ok bool) {
	for p := world.P0; p <= world.P2; p++ {
		q := s.queues[p]
		if len(q) > 0 {
			s.queues[p] = q[1:]
			return q[0], true
		}
	}
	return world.Intent{}, false
}

// ClearFatal is called by an orchestrator after it has respawned a failed
// service and re-issued the resync sequence (LoadRom, SetInputs, ...), per
// §7's "service closed" recovery path. Tick refuses to pump new work while
// Fatal is set.
func (s *Scheduler) ClearFatal() {
	s.Health.Fatal = false
}

// Tick runs exactly one frame: UI intents are enqueued at P0, one
// PumpFrame is enqueued at P1, then Phase A (intents) and Phase B
// (reports) run per §4.8. Count-based budgets only; Tick never consults a
// clock.
func (s *Scheduler) Tick(uiIntents []world.Intent) {
	for _, in := range uiIntents {
		s.Enqueue(world.P0, in)
	}
	s.Enqueue(world.P1, world.Intent{Kind: world.IntentPumpFrame, DisplayLane: s.World.DisplayLane})

	s.Health.ServicePressure = false

	if !s.Health.Fatal {
		s.phaseIntents()
	}
	if !s.Health.Fatal {
		s.phaseReports()
	}

	if s.Health.StallReliefFrames > 0 && !s.Health.GpuBlocked {
		s.Health.StallReliefFrames--
	}
}

// phaseIntents pops up to IntentPullBudget intents by priority and submits
// the work commands reduce_intent emits for each, per §4.8 step 2. The pop
// phase runs to completion before any intent is processed, so an intent
// requeued at P0 front by a WouldBlock this frame is not immediately
// re-popped within the same frame's budget.
func (s *Scheduler) phaseIntents() {
	batch := make([]world.Intent, 0, s.IntentPullBudget)
	for i := 0; i < s.IntentPullBudget; i++ {
		intent, ok := s.popIntent()
		if !ok {
			break
		}
		batch = append(batch, intent)
	}

	for _, intent := range batch {
		cmds := world.ReduceIntent(&s.World, intent)
		for _, cmd := range cmds {
			policy := hub.DefaultWorkPolicy(cmd)
			outcome := s.Hub.TrySubmitWork(cmd)

			if outcome == hub.Closed {
				s.Health.Fatal = true
			}

			if policy == hub.PolicyLossless && (outcome == hub.WouldBlock || outcome == hub.Closed) {
				s.Health.ServicePressure = true
				s.enqueueFront(world.P0, intent)
				s.logger.Warn("lossless submit blocked, requeuing origin intent",
					utils.String("outcome", outcome.String()))
				break
			}
		}

		if s.Health.Fatal {
			return
		}
	}
}

// phaseReports drains up to ReportBudget reports round-robin across every
// registered service and feeds each through reduce_report, per §4.8 step
// 3.
func (s *Scheduler) phaseReports() {
	reports, err := s.Hub.DrainAllRR(s.ReportBudget)
	if err != nil {
		s.logger.Error("hub drain error", utils.Err(err))
	}

	for _, r := range reports {
		if s.routeDebugReport(r) {
			continue
		}

		eff := world.ReduceReport(&s.World, r)

		for _, av := range eff.ImmediateAV {
			s.submitImmediateAV(av)
			if s.Health.Fatal {
				return
			}
		}
		for _, d := range eff.DeferredIntents {
			s.Enqueue(d.Priority, d.Intent)
		}
	}
}

func (s *Scheduler) submitImmediateAV(av commands.AvCmd) {
	policy := hub.DefaultAvPolicy(av, s.World.DisplayLane)

	if s.Health.GpuBlocked && policy == hub.PolicyBestEffort && av.Kind == commands.AvGpu {
		return
	}

	outcome := s.Hub.TrySubmitAV(av, s.World.DisplayLane)

	if av.Kind == commands.AvGpu && policy == hub.PolicyMust {
		switch outcome {
		case hub.WouldBlock:
			s.Health.GpuBlocked = true
			if s.Health.StallReliefFrames < maxStallReliefFrames {
				s.Health.StallReliefFrames = maxStallReliefFrames
			}
		case hub.Accepted, hub.Coalesced:
			s.Health.GpuBlocked = false
		}
	}

	if outcome == hub.Closed {
		s.Health.Fatal = true
	}
}
