// Package world holds the scheduler's authoritative mutable state and the
// two pure functions that are the only code allowed to touch it:
// ReduceIntent and ReduceReport. Grounded on the teacher's
// kernel/threads/foundation/types.go Job/Result shapes (plain data structs
// passed by value into pure-ish transforms) but specialized to the single
// World struct this spec's reducers close over.
package world

import (
	"math"

	"github.com/gbxfabric/fabric/commands"
)

// Priority orders the scheduler's intent queues, P0 highest.
type Priority uint8

const (
	P0 Priority = iota
	P1
	P2
)

// IntentKind enumerates the UI/timer events the main loop feeds in.
type IntentKind uint8

const (
	IntentTogglePause IntentKind = iota
	IntentSetSpeed
	IntentSetDisplayLane
	IntentLoadRom
	IntentSetInputs
	IntentPumpFrame
	IntentPersist
	IntentTerminate
	IntentDebug
)

// Intent is the closed set of events reduce_intent accepts.
type Intent struct {
	Kind IntentKind

	Speed       float64
	DisplayLane uint32
	RomBytes    []byte
	InputMask   uint32
	JoyMask     uint32
	PersistPath string
	Manual      bool
	Debug       commands.DebugCmd
}

const (
	minSpeed = 0.1
	maxSpeed = 10.0

	// DisplayTickBudgetBase is the cycles-per-frame budget at speed=1.0,
	// per original_source/crates world/src/reduce_intent.rs.
	DisplayTickBudgetBase = 70224
)

// World is the scheduler's authoritative state. Only ReduceIntent and
// ReduceReport may mutate it, and only for the duration of one call each.
type World struct {
	RomLoaded   bool
	Paused      bool
	Speed       float64
	DisplayLane uint32
	LaneCount   uint32
	AutoPump    bool
	FrameID     uint64
}

// NewWorld returns a fresh World with the invariant defaults: speed 1.0,
// lane 0 of at least one lane, not paused, no ROM loaded.
func NewWorld(laneCount uint32) World {
	if laneCount == 0 {
		laneCount = 1
	}
	return World{
		Speed:     1.0,
		LaneCount: laneCount,
		AutoPump:  true,
	}
}

func clampSpeed(s float64) float64 {
	return math.Min(maxSpeed, math.Max(minSpeed, s))
}

// ReduceIntent is the sole function allowed to interpret an Intent against
// World, mutating world in place and returning the WorkCmds it translates
// to (zero or more; PumpFrame yields exactly one Tick unless the world is
// paused, in which case it yields none). Pure modulo
// the world mutation: calling it twice from the same initial world with the
// same intent sequence produces structurally equal worlds (§8 invariant 4).
func ReduceIntent(w *World, intent Intent) []commands.WorkCmd {
	switch intent.Kind {
	case IntentTogglePause:
		w.Paused = !w.Paused
		return nil

	case IntentSetSpeed:
		w.Speed = clampSpeed(intent.Speed)
		return nil

	case IntentSetDisplayLane:
		if intent.DisplayLane < w.LaneCount {
			w.DisplayLane = intent.DisplayLane
		}
		return nil

	case IntentLoadRom:
		return []commands.WorkCmd{{
			Kind: commands.WorkKernel,
			Kernel: commands.KernelCmd{
				Kind:  commands.KernelLoadRom,
				Group: w.DisplayLane,
			},
		}}

	case IntentSetInputs:
		return []commands.WorkCmd{{
			Kind: commands.WorkKernel,
			Kernel: commands.KernelCmd{
				Kind:      commands.KernelSetInputs,
				Group:     w.DisplayLane,
				InputMask: intent.InputMask,
				JoyMask:   intent.JoyMask,
			},
		}}

	case IntentPumpFrame:
		if w.Paused {
			return nil
		}
		purpose := commands.TickDisplay
		if intent.DisplayLane != w.DisplayLane {
			purpose = commands.TickExploration
		}
		budget := uint32(math.Round(DisplayTickBudgetBase * w.Speed))
		return []commands.WorkCmd{{
			Kind: commands.WorkKernel,
			Kernel: commands.KernelCmd{
				Kind:    commands.KernelTick,
				Group:   w.DisplayLane,
				Budget:  budget,
				Purpose: purpose,
			},
		}}

	case IntentPersist:
		return []commands.WorkCmd{{
			Kind: commands.WorkFs,
			Fs:   commands.FsCmd{Path: intent.PersistPath, Manual: intent.Manual},
		}}

	case IntentTerminate:
		return []commands.WorkCmd{{
			Kind: commands.WorkKernel,
			Kernel: commands.KernelCmd{
				Kind:  commands.KernelTerminate,
				Group: w.DisplayLane,
			},
		}}

	case IntentDebug:
		return []commands.WorkCmd{{
			Kind: commands.WorkKernel,
			Kernel: commands.KernelCmd{
				Kind:  commands.KernelDebug,
				Group: w.DisplayLane,
				Debug: intent.Debug,
			},
		}}

	default:
		return nil
	}
}

// DeferredIntent pairs a future-frame intent with the priority it should be
// enqueued at.
type DeferredIntent struct {
	Priority Priority
	Intent   Intent
}

// ReportEffect is what ReduceReport hands back to the scheduler: immediate
// A/V commands to submit this frame, and intents to enqueue for a future
// frame.
type ReportEffect struct {
	ImmediateAV     []commands.AvCmd
	DeferredIntents []DeferredIntent
}

// ReduceReport is the sole function allowed to interpret a Report against
// World. A LaneFrame report (on any lane) requests a GPU upload now; a
// TickDone report records its frame id and, if auto_pump is set, defers a
// PumpFrame intent for next frame.
func ReduceReport(w *World, r commands.Report) ReportEffect {
	var eff ReportEffect

	switch r.Kind {
	case commands.ReportKernel:
		switch r.Kernel.Kind {
		case commands.KernelRepTickDone:
			w.FrameID = r.Kernel.FrameID
			if w.AutoPump {
				eff.DeferredIntents = append(eff.DeferredIntents, DeferredIntent{
					Priority: P1,
					Intent:   Intent{Kind: IntentPumpFrame, DisplayLane: w.DisplayLane},
				})
			}

		case commands.KernelRepLaneFrame:
			eff.ImmediateAV = append(eff.ImmediateAV, commands.AvCmd{
				Kind: commands.AvGpu,
				Gpu: commands.GpuCmd{
					Lane:    r.Kernel.Lane,
					Span:    r.Kernel.Span,
					FrameID: r.Kernel.FrameID,
				},
			})

		case commands.KernelRepRomLoaded:
			w.RomLoaded = true

		case commands.KernelRepAudioReady:
			// Nothing to defer; audio submission is driven by the audio
			// service's own ready ring, not by this report.

		case commands.KernelRepDroppedThumb:
			// Observability only: a best-effort exploration-lane thumbnail
			// was dropped upstream of the fabric. No world mutation.
		}

	case commands.ReportGpu:
		// FrameShown carries nothing the world tracks; the scheduler's
		// gpu health flags follow submit outcomes, not this report.

	case commands.ReportAudio:
		// Underrun/Played are observability signals; no world mutation.

	case commands.ReportFs:
		// Saved{path, ok} is observability; no world mutation.
	}

	return eff
}
