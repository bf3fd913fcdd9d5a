// Package hub implements the main-side service adapter and the hub that
// dispatches typed commands to the right service and performs a fair
// round-robin drain over all of them (§4.6, §4.9). Grounded on
// kernel/threads/supervisor/flow_control.go's congestion bookkeeping
// (per-target state, a boolean backpressure signal) generalized from one
// hand-rolled counter to the five-outcome SubmitOutcome this spec defines,
// plus github.com/sony/gobreaker for the sticky Closed state the teacher's
// kernel module declares but never wires up.
package hub

import "github.com/gbxfabric/fabric/commands"

// Policy is the submit-routing decision a command is mapped to by
// DefaultWorkPolicy/DefaultAvPolicy, per §3's policy table.
type Policy uint8

const (
	PolicyLossless Policy = iota
	PolicyCoalesce
	PolicyBestEffort
	PolicyMust
)

func (p Policy) String() string {
	switch p {
	case PolicyLossless:
		return "Lossless"
	case PolicyCoalesce:
		return "Coalesce"
	case PolicyBestEffort:
		return "BestEffort"
	case PolicyMust:
		return "Must"
	default:
		return "Unknown"
	}
}

// DefaultWorkPolicy is the pure function of a WorkCmd (and, for Tick, the
// purpose the reducer already resolved against world.display_lane) that
// decides which port class carries it: Tick(Display) -> Coalesce,
// Tick(Exploration) -> BestEffort, every other KernelCmd -> Lossless,
// Fs::Persist manual -> Lossless, autosave -> Coalesce.
func DefaultWorkPolicy(c commands.WorkCmd) Policy {
	switch c.Kind {
	case commands.WorkKernel:
		if c.Kernel.Kind == commands.KernelTick {
			if c.Kernel.Purpose == commands.TickDisplay {
				return PolicyCoalesce
			}
			return PolicyBestEffort
		}
		return PolicyLossless
	case commands.WorkFs:
		if c.Fs.Manual {
			return PolicyLossless
		}
		return PolicyCoalesce
	default:
		return PolicyLossless
	}
}

// DefaultAvPolicy is the pure function of an AvCmd and the world's current
// display_lane: Gpu::UploadFrame is Must on the display lane, BestEffort
// elsewhere (speculative/thumbnail lanes); Audio::Submit is always Must.
func DefaultAvPolicy(c commands.AvCmd, displayLane uint32) Policy {
	switch c.Kind {
	case commands.AvGpu:
		if c.Gpu.Lane == displayLane {
			return PolicyMust
		}
		return PolicyBestEffort
	case commands.AvAudio:
		return PolicyMust
	default:
		return PolicyBestEffort
	}
}

// workGroup extracts the stable sharding key a WorkCmd carries, per §4.6's
// "pick a shard by a stable key (e.g., group id)".
func workGroup(c commands.WorkCmd) uint32 {
	if c.Kind == commands.WorkKernel {
		return c.Kernel.Group
	}
	return 0
}

// avGroup extracts the stable sharding key an AvCmd carries.
func avGroup(c commands.AvCmd) uint32 {
	if c.Kind == commands.AvGpu {
		return c.Gpu.Lane
	}
	return 0
}

// SubmitOutcome is the public result of Adapter.TrySubmit*, mapped from the
// underlying port's result per §4.6 step 3.
type SubmitOutcome uint8

const (
	Accepted SubmitOutcome = iota
	Coalesced
	Dropped
	WouldBlock
	Closed
)

func (o SubmitOutcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case Coalesced:
		return "Coalesced"
	case Dropped:
		return "Dropped"
	case WouldBlock:
		return "WouldBlock"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}
