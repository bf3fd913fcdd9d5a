package world

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gbxfabric/fabric/commands"
)

func TestTogglePauseIsInvolution(t *testing.T) {
	w := NewWorld(4)
	start := w.Paused
	ReduceIntent(&w, Intent{Kind: IntentTogglePause})
	ReduceIntent(&w, Intent{Kind: IntentTogglePause})
	assert.Equal(t, start, w.Paused)
}

func TestSetSpeedClamps(t *testing.T) {
	w := NewWorld(1)
	ReduceIntent(&w, Intent{Kind: IntentSetSpeed, Speed: 0.001})
	assert.Equal(t, minSpeed, w.Speed)

	ReduceIntent(&w, Intent{Kind: IntentSetSpeed, Speed: 99})
	assert.Equal(t, maxSpeed, w.Speed)

	ReduceIntent(&w, Intent{Kind: IntentSetSpeed, Speed: 2.5})
	assert.Equal(t, 2.5, w.Speed)
}

func TestReduceIntentIsPure(t *testing.T) {
	intents := []Intent{
		{Kind: IntentSetSpeed, Speed: 2.0},
		{Kind: IntentSetDisplayLane, DisplayLane: 0},
		{Kind: IntentPumpFrame},
		{Kind: IntentTogglePause},
		{Kind: IntentPumpFrame},
	}

	run := func() World {
		w := NewWorld(2)
		for _, in := range intents {
			ReduceIntent(&w, in)
		}
		return w
	}

	a := run()
	b := run()
	assert.Equal(t, a, b)
}

func TestPumpFrameDisplayTick(t *testing.T) {
	w := NewWorld(4)
	cmds := ReduceIntent(&w, Intent{Kind: IntentPumpFrame, DisplayLane: w.DisplayLane})
	if assert.Len(t, cmds, 1) {
		tick := cmds[0].Kernel
		assert.Equal(t, commands.KernelTick, tick.Kind)
		assert.Equal(t, uint32(DisplayTickBudgetBase), tick.Budget)
		assert.Equal(t, commands.TickDisplay, tick.Purpose)
	}
}

func TestPumpFrameWhilePausedEmitsNothing(t *testing.T) {
	w := NewWorld(1)
	ReduceIntent(&w, Intent{Kind: IntentTogglePause})
	cmds := ReduceIntent(&w, Intent{Kind: IntentPumpFrame})
	assert.Empty(t, cmds)
}

func TestReduceReportTickDoneDefersPumpFrame(t *testing.T) {
	w := NewWorld(1)
	eff := ReduceReport(&w, commands.Report{
		Kind:   commands.ReportKernel,
		Kernel: commands.KernelRep{Kind: commands.KernelRepTickDone, Group: 0, FrameID: 1},
	})
	assert.Equal(t, uint64(1), w.FrameID)
	if assert.Len(t, eff.DeferredIntents, 1) {
		assert.Equal(t, P1, eff.DeferredIntents[0].Priority)
		assert.Equal(t, IntentPumpFrame, eff.DeferredIntents[0].Intent.Kind)
	}
}

func TestReduceReportLaneFrameEmitsGpuUpload(t *testing.T) {
	w := NewWorld(1)
	span := commands.KernelRep{}.Span
	_ = span
	eff := ReduceReport(&w, commands.Report{
		Kind: commands.ReportKernel,
		Kernel: commands.KernelRep{
			Kind:    commands.KernelRepLaneFrame,
			Lane:    0,
			FrameID: 1,
		},
	})
	if assert.Len(t, eff.ImmediateAV, 1) {
		assert.Equal(t, commands.AvGpu, eff.ImmediateAV[0].Kind)
		assert.Equal(t, uint64(1), eff.ImmediateAV[0].Gpu.FrameID)
	}
}
