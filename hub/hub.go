package hub

import (
	"github.com/gbxfabric/fabric/commands"
	"github.com/gbxfabric/fabric/fabric"
)

// shardGroup is one service's set of endpoints, sharded by a stable group
// key so per-group command ordering holds even when a service is split
// across multiple physical endpoints (§5's "per-group command ordering"
// guarantee). Most services register with exactly one shard.
type shardGroup struct {
	name   string
	shards []*Adapter

	// drainCursor is the shard index the next PullOne call starts its
	// search from, so the k-way merge resumes where the previous call
	// left off rather than always favoring shard 0 (§4.6's "round-robin
	// merge from the last position").
	drainCursor int
}

func (g *shardGroup) shardFor(group uint32) *Adapter {
	return g.shards[group%uint32(len(g.shards))]
}

// PullOne round-robins across this service's shards starting from
// drainCursor, returning the first reply found and leaving the cursor just
// past the shard it pulled from.
func (g *shardGroup) PullOne() (commands.Report, bool, error) {
	n := len(g.shards)
	for i := 0; i < n; i++ {
		idx := (g.drainCursor + i) % n
		report, ok, err := g.shards[idx].PullOne()
		if err != nil {
			return commands.Report{}, false, err
		}
		if ok {
			g.drainCursor = (idx + 1) % n
			return report, true, nil
		}
	}
	return commands.Report{}, false, nil
}

// Hub dispatches typed commands to the right service by inspecting the
// command's own kind (§4.6: the adapter is found by what the command is,
// not by an out-of-band name) and drains every registered service's
// replies fairly (§4.9).
//
// Grounded on kernel/threads/supervisor/flow_control.go's per-target
// registry shape (a map keyed by a small enum, looked up on every send)
// generalized from one FlowController into the fixed four-service routing
// table this spec's endpoint kinds describe.
type Hub struct {
	services map[fabric.EndpointKind]*shardGroup
	order    []fabric.EndpointKind
}

// NewHub returns an empty hub; call Register for each service before use.
func NewHub() *Hub {
	return &Hub{services: make(map[fabric.EndpointKind]*shardGroup)}
}

// Register adds a service under kind with one or more shard adapters. Call
// once per service at startup, before the frame loop begins.
func (h *Hub) Register(kind fabric.EndpointKind, name string, shards ...*Adapter) {
	if _, exists := h.services[kind]; !exists {
		h.order = append(h.order, kind)
	}
	h.services[kind] = &shardGroup{name: name, shards: shards}
}

func workKind(c commands.WorkCmd) fabric.EndpointKind {
	switch c.Kind {
	case commands.WorkKernel:
		return fabric.EndpointKernel
	case commands.WorkFs:
		return fabric.EndpointFs
	default:
		return fabric.EndpointKernel
	}
}

func avKind(c commands.AvCmd) fabric.EndpointKind {
	switch c.Kind {
	case commands.AvGpu:
		return fabric.EndpointGpu
	case commands.AvAudio:
		return fabric.EndpointAudio
	default:
		return fabric.EndpointGpu
	}
}

// TrySubmitWork dispatches cmd to the service its Kind names, sharded by
// its group key, and never blocks.
func (h *Hub) TrySubmitWork(cmd commands.WorkCmd) SubmitOutcome {
	svc, ok := h.services[workKind(cmd)]
	if !ok || len(svc.shards) == 0 {
		return Dropped
	}
	return svc.shardFor(workGroup(cmd)).TrySubmitWork(cmd)
}

// TrySubmitAV dispatches cmd to the service its Kind names, sharded by its
// group key (lane, for Gpu), and never blocks.
func (h *Hub) TrySubmitAV(cmd commands.AvCmd, displayLane uint32) SubmitOutcome {
	svc, ok := h.services[avKind(cmd)]
	if !ok || len(svc.shards) == 0 {
		return Dropped
	}
	return svc.shardFor(avGroup(cmd)).TrySubmitAV(cmd, displayLane)
}

// DrainAllRR pulls up to maxTotal reports across every registered service,
// one at a time in a round-robin pass over h.order, stopping early if a
// full pass yields nothing (§4.9). This is the shared budget the
// scheduler's Phase B spends every frame.
func (h *Hub) DrainAllRR(maxTotal int) ([]commands.Report, error) {
	reports := make([]commands.Report, 0, maxTotal)
	for len(reports) < maxTotal {
		progressed := false
		for _, kind := range h.order {
			if len(reports) >= maxTotal {
				break
			}
			svc := h.services[kind]
			report, ok, err := svc.PullOne()
			if err != nil {
				return reports, err
			}
			if ok {
				reports = append(reports, report)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return reports, nil
}
