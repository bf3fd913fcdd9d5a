package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbxfabric/fabric/ports"
)

func TestArchiveWorkCmdRoundTrip(t *testing.T) {
	cases := []WorkCmd{
		{Kind: WorkKernel, Kernel: KernelCmd{Kind: KernelTick, Group: 0, Budget: 70224, Purpose: TickDisplay}},
		{Kind: WorkKernel, Kernel: KernelCmd{Kind: KernelLoadRom, Group: 1, RomSpan: ports.Span{SlotIdx: 2, Generation: 3, ByteLength: 4096}}},
		{Kind: WorkKernel, Kernel: KernelCmd{Kind: KernelSetInputs, Group: 0, InputMask: 0xFF, JoyMask: 0x0F}},
		{Kind: WorkKernel, Kernel: KernelCmd{Kind: KernelTerminate, Group: 5}},
		{Kind: WorkKernel, Kernel: KernelCmd{Kind: KernelDebug, Group: 0, Debug: DebugCmd{Kind: DebugMemWindow, WindowOffset: 16, WindowLength: 256}}},
		{Kind: WorkFs, Fs: FsCmd{Path: "save/slot0.sav", Manual: true}},
		{Kind: WorkFs, Fs: FsCmd{Path: "save/auto.sav", Manual: false}},
	}
	for _, c := range cases {
		tag, payload, err := ArchiveWorkCmd(c)
		require.NoError(t, err)
		got, err := DearchiveWorkCmd(tag, CurrentVer, payload)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestArchiveAvCmdRoundTrip(t *testing.T) {
	cases := []AvCmd{
		{Kind: AvGpu, Gpu: GpuCmd{Lane: 0, Span: ports.Span{SlotIdx: 3, Generation: 1, ByteLength: 92160}, FrameID: 42}},
		{Kind: AvAudio, Audio: AudioCmd{Span: ports.Span{SlotIdx: 7, Generation: 2, ByteLength: 2048}, Frames: 441}},
	}
	for _, c := range cases {
		tag, payload, err := ArchiveAvCmd(c)
		require.NoError(t, err)
		got, err := DearchiveAvCmd(tag, CurrentVer, payload)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestArchiveReportRoundTrip(t *testing.T) {
	cases := []Report{
		{Kind: ReportKernel, Kernel: KernelRep{Kind: KernelRepTickDone, Group: 0, FrameID: 1}},
		{Kind: ReportKernel, Kernel: KernelRep{Kind: KernelRepLaneFrame, Group: 0, FrameID: 1, Lane: 0, Span: ports.Span{SlotIdx: 0, Generation: 0, ByteLength: 92160}}},
		{Kind: ReportKernel, Kernel: KernelRep{Kind: KernelRepRomLoaded, Group: 0}},
		{Kind: ReportKernel, Kernel: KernelRep{Kind: KernelRepAudioReady, Group: 0}},
		{Kind: ReportKernel, Kernel: KernelRep{Kind: KernelRepDroppedThumb, Group: 2}},
		{Kind: ReportKernel, Kernel: KernelRep{Kind: KernelRepDebug, Group: 0, Debug: DebugRep{Kind: DebugSnapshot, Payload: []byte{1, 2, 3}}}},
		{Kind: ReportGpu, Gpu: GpuRep{Lane: 0, Span: ports.Span{SlotIdx: 0, Generation: 0, ByteLength: 92160}, FrameID: 1}},
		{Kind: ReportAudio, Audio: AudioRep{Kind: AudioRepUnderrun}},
		{Kind: ReportAudio, Audio: AudioRep{Kind: AudioRepPlayed, Frames: 441}},
		{Kind: ReportFs, Fs: FsRep{Path: "save/slot0.sav", OK: true}},
	}
	for _, c := range cases {
		tag, payload, err := ArchiveReport(c)
		require.NoError(t, err)
		got, err := DearchiveReport(tag, CurrentVer, payload)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}
