package hub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gbxfabric/fabric/atomicmem"
	"github.com/gbxfabric/fabric/commands"
	"github.com/gbxfabric/fabric/fabric"
	"github.com/gbxfabric/fabric/ports"
)

// fourServiceRig lays out the real, fixed four-service fabric (kernel,
// gpu, audio, fs) with generous reply-ring capacity, for hub-level drain
// fairness tests. Each EndpointKind names exactly one logical service, so
// S5's "4 services" scenario maps onto the fabric's actual four endpoint
// kinds rather than four shards of one kind.
type fourServiceRig struct {
	layout *fabric.FabricLayout
	kernel, gpu, audio, fs *fabric.ServiceRegions
	adapters               map[fabric.EndpointKind]*Adapter
}

func newFourServiceRig(t *testing.T) *fourServiceRig {
	t.Helper()
	specs := []fabric.PortSpec{
		{ServiceName: "kernel", Kind: fabric.EndpointKernel, LosslessCmdCapacity: 4096, RepsCapacity: 32768},
		{ServiceName: "gpu", Kind: fabric.EndpointGpu, LosslessCmdCapacity: 4096, RepsCapacity: 32768},
		{ServiceName: "audio", Kind: fabric.EndpointAudio, LosslessCmdCapacity: 4096, RepsCapacity: 32768},
		{ServiceName: "fs", Kind: fabric.EndpointFs, LosslessCmdCapacity: 4096, RepsCapacity: 32768},
	}
	plan, err := fabric.PlanFabric(specs)
	require.NoError(t, err)
	mem := atomicmem.NewInProcess(plan.TotalSize())
	layout, err := fabric.Populate(mem, plan)
	require.NoError(t, err)

	rig := &fourServiceRig{layout: layout, adapters: make(map[fabric.EndpointKind]*Adapter, 4)}
	rig.kernel, _ = layout.Service("kernel")
	rig.gpu, _ = layout.Service("gpu")
	rig.audio, _ = layout.Service("audio")
	rig.fs, _ = layout.Service("fs")

	rig.adapters[fabric.EndpointKernel] = NewAdapter("kernel", rig.kernel, layout.Metrics, fabric.NewAnomalyTracker(layout.Metrics), layout.Doorbells, nil)
	rig.adapters[fabric.EndpointGpu] = NewAdapter("gpu", rig.gpu, layout.Metrics, fabric.NewAnomalyTracker(layout.Metrics), layout.Doorbells, nil)
	rig.adapters[fabric.EndpointAudio] = NewAdapter("audio", rig.audio, layout.Metrics, fabric.NewAnomalyTracker(layout.Metrics), layout.Doorbells, nil)
	rig.adapters[fabric.EndpointFs] = NewAdapter("fs", rig.fs, layout.Metrics, fabric.NewAnomalyTracker(layout.Metrics), layout.Doorbells, nil)
	return rig
}

// pushReport writes r directly onto ep's Reps ring, the way a service
// engine's worker-side producer would, bypassing the main side's submit
// path entirely.
func pushReport(t *testing.T, ep *fabric.ServiceRegions, r commands.Report) {
	t.Helper()
	tag, payload, err := commands.ArchiveReport(r)
	require.NoError(t, err)

	prod := ep.Reps.Producer()
	grant, err := prod.TryReserve(ports.Envelope{Tag: tag, Ver: commands.CurrentVer}, uint32(len(payload)))
	require.NoError(t, err)
	require.NoError(t, prod.Commit(grant, payload))
}

func TestHubDrainAllRRIsFairAcrossServices(t *testing.T) {
	rig := newFourServiceRig(t)

	for i := 0; i < 100; i++ {
		pushReport(t, rig.kernel, commands.Report{Kind: commands.ReportKernel, Kernel: commands.KernelRep{Kind: commands.KernelRepTickDone, FrameID: uint64(i)}})
		pushReport(t, rig.gpu, commands.Report{Kind: commands.ReportGpu, Gpu: commands.GpuRep{Kind: commands.GpuRepFrameShown, FrameID: uint64(i)}})
		pushReport(t, rig.audio, commands.Report{Kind: commands.ReportAudio, Audio: commands.AudioRep{Kind: commands.AudioRepPlayed, Frames: uint32(i)}})
		pushReport(t, rig.fs, commands.Report{Kind: commands.ReportFs, Fs: commands.FsRep{Path: "save.sav", OK: true}})
	}

	h := NewHub()
	h.Register(fabric.EndpointKernel, "kernel", rig.adapters[fabric.EndpointKernel])
	h.Register(fabric.EndpointGpu, "gpu", rig.adapters[fabric.EndpointGpu])
	h.Register(fabric.EndpointAudio, "audio", rig.adapters[fabric.EndpointAudio])
	h.Register(fabric.EndpointFs, "fs", rig.adapters[fabric.EndpointFs])

	var allReports []commands.Report
	for pass := 0; pass < 4; pass++ {
		reports, err := h.DrainAllRR(32)
		require.NoError(t, err)
		require.Len(t, reports, 32)
		allReports = append(allReports, reports...)

		byKind := map[commands.ReportKind]int{}
		for _, r := range reports {
			byKind[r.Kind]++
		}
		require.Equal(t, 8, byKind[commands.ReportKernel])
		require.Equal(t, 8, byKind[commands.ReportGpu])
		require.Equal(t, 8, byKind[commands.ReportAudio])
		require.Equal(t, 8, byKind[commands.ReportFs])
	}
	require.Len(t, allReports, 128)

	// The remaining 400-128=272 reports (68 per service) are still there,
	// in FIFO order: the kernel reports drained so far must be frame_ids
	// 0..31 in order.
	var kernelFrameIDs []uint64
	for _, r := range allReports {
		if r.Kind == commands.ReportKernel {
			kernelFrameIDs = append(kernelFrameIDs, r.Kernel.FrameID)
		}
	}
	require.Len(t, kernelFrameIDs, 32)
	for i, id := range kernelFrameIDs {
		require.Equal(t, uint64(i), id)
	}

	final, err := h.DrainAllRR(1000)
	require.NoError(t, err)
	require.Len(t, final, 400-128)
}

func TestHubDispatchesByCommandKind(t *testing.T) {
	rig := newFourServiceRig(t)

	h := NewHub()
	h.Register(fabric.EndpointKernel, "kernel", rig.adapters[fabric.EndpointKernel])

	outcome := h.TrySubmitWork(commands.WorkCmd{
		Kind:   commands.WorkKernel,
		Kernel: commands.KernelCmd{Kind: commands.KernelSetInputs, Group: 0},
	})
	require.Equal(t, Accepted, outcome)
}

func TestHubDropsWhenServiceUnregistered(t *testing.T) {
	h := NewHub()
	outcome := h.TrySubmitWork(commands.WorkCmd{Kind: commands.WorkFs, Fs: commands.FsCmd{Manual: true}})
	require.Equal(t, Dropped, outcome)
}

// TestAdapterSubmitRingsDoorbell checks §4.7's "main context increments
// the global doorbell when submitting any command": a worker parked on
// Doorbells.GlobalSeq must see it move after a successful submit, without
// waiting out its idle-sweep timeout.
func TestAdapterSubmitRingsDoorbell(t *testing.T) {
	rig := newFourServiceRig(t)

	before, err := rig.layout.Doorbells.GlobalSeq()
	require.NoError(t, err)

	outcome := rig.adapters[fabric.EndpointKernel].TrySubmitWork(commands.WorkCmd{
		Kind:   commands.WorkKernel,
		Kernel: commands.KernelCmd{Kind: commands.KernelSetInputs, Group: 0},
	})
	require.Equal(t, Accepted, outcome)

	after, err := rig.layout.Doorbells.GlobalSeq()
	require.NoError(t, err)
	require.Equal(t, before+1, after)
}
