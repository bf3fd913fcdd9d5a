// Package commands defines the fabric's typed command and report vocabulary
// (§3 of the spec) and the fixed byte archival format each variant is
// written to and read from a MsgRing/Mailbox record in (§6). Go has no
// native sum type, so each family is modeled the way the teacher's own
// kernel/gen/system syscall envelope would be hand-rolled without its
// Cap'n Proto generator: a small Kind enum plus the union of fields every
// variant of that kind might use, left zero when unused by the active Kind.
package commands

import (
	"encoding/binary"
	"fmt"

	"github.com/gbxfabric/fabric/ports"
)

// CurrentVer is the schema version stamped on every record this build
// writes. A schema change bumps this and the consumer's Dearchive* switch
// grows a case for the old version, per §6's "ver starts at 1 per tag;
// schema changes require a ver bump" rule.
const CurrentVer uint8 = 1

// TickPurpose distinguishes a display-lane tick (coalesced, one per frame)
// from an exploration-lane tick (best-effort, speculative/background).
type TickPurpose uint8

const (
	TickDisplay TickPurpose = iota
	TickExploration
)

// KernelCmdKind enumerates KernelCmd's closed variant set.
type KernelCmdKind uint8

const (
	KernelTick KernelCmdKind = iota
	KernelLoadRom
	KernelSetInputs
	KernelTerminate
	KernelDebug // supplemented from original_source's inspector vertical slice
)

// DebugCmdKind enumerates the inspector commands supplemented from
// original_source/crates (world/src/inspector.rs), dropped by spec.md's
// distillation but restored here per SPEC_FULL.md §12.
type DebugCmdKind uint8

const (
	DebugSnapshot DebugCmdKind = iota
	DebugMemWindow
	DebugStepInstruction
	DebugStepFrame
)

// DebugCmd is the inspector command payload, routed Lossless like every
// other non-Tick KernelCmd per §3's policy table.
type DebugCmd struct {
	Kind         DebugCmdKind
	WindowOffset uint32
	WindowLength uint32
}

// KernelCmd is the closed set of commands the kernel service engine
// accepts: frame ticks, ROM loads, input updates, termination, and the
// supplemented inspector debug branch.
type KernelCmd struct {
	Kind KernelCmdKind

	Group uint32

	// KernelTick
	Budget  uint32
	Purpose TickPurpose

	// KernelLoadRom
	RomSpan ports.Span

	// KernelSetInputs
	InputMask uint32
	JoyMask   uint32

	// KernelDebug
	Debug DebugCmd
}

// FsCmd is the filesystem service's sole command: persist the current
// save state. Manual distinguishes a user-initiated save (Lossless) from
// an autosave (Coalesce), resolving spec.md's §9 open question per
// SPEC_FULL.md §12.
type FsCmd struct {
	Path   string
	Manual bool
}

// WorkCmdKind enumerates WorkCmd's two families.
type WorkCmdKind uint8

const (
	WorkKernel WorkCmdKind = iota
	WorkFs
)

// WorkCmd is the top-level command sum the intent reducer emits.
type WorkCmd struct {
	Kind   WorkCmdKind
	Kernel KernelCmd
	Fs     FsCmd
}

// GpuCmdKind enumerates GpuCmd's variant set (currently one: UploadFrame).
type GpuCmdKind uint8

const (
	GpuUploadFrame GpuCmdKind = iota
)

// GpuCmd carries a frame-pool span to present, along with the lane it
// belongs to and the frame_id carried by the kernel's LaneFrame report it
// was built from.
type GpuCmd struct {
	Kind    GpuCmdKind
	Lane    uint32
	Span    ports.Span
	FrameID uint64
}

// AudioCmdKind enumerates AudioCmd's variant set (currently one: Submit).
type AudioCmdKind uint8

const (
	AudioSubmit AudioCmdKind = iota
)

// AudioCmd carries an audio-pool span of interleaved f32 stereo samples.
type AudioCmd struct {
	Kind   AudioCmdKind
	Span   ports.Span
	Frames uint32
}

// AvCmdKind enumerates AvCmd's two families.
type AvCmdKind uint8

const (
	AvGpu AvCmdKind = iota
	AvAudio
)

// AvCmd is the immediate audio/video command the report reducer emits.
type AvCmd struct {
	Kind  AvCmdKind
	Gpu   GpuCmd
	Audio AudioCmd
}

// KernelRepKind enumerates KernelRep's variant set.
type KernelRepKind uint8

const (
	KernelRepTickDone KernelRepKind = iota
	KernelRepLaneFrame
	KernelRepRomLoaded // supplemented from original_source
	KernelRepAudioReady
	KernelRepDroppedThumb
	KernelRepDebug // supplemented from original_source
)

// DebugRep is the inspector's reply payload: an opaque snapshot/window of
// bytes, shape left to the engine producing it.
type DebugRep struct {
	Kind    DebugCmdKind
	Payload []byte
}

// KernelRep is the kernel service's report sum.
type KernelRep struct {
	Kind KernelRepKind

	Group   uint32
	FrameID uint64

	// KernelRepLaneFrame
	Lane uint32
	Span ports.Span

	// KernelRepDebug
	Debug DebugRep
}

// GpuRepKind enumerates GpuRep's variant set (currently one: FrameShown).
type GpuRepKind uint8

const (
	GpuRepFrameShown GpuRepKind = iota
)

// GpuRep is the GPU service's report sum.
type GpuRep struct {
	Kind    GpuRepKind
	Lane    uint32
	Span    ports.Span
	FrameID uint64
}

// AudioRepKind enumerates AudioRep's variant set.
type AudioRepKind uint8

const (
	AudioRepUnderrun AudioRepKind = iota
	AudioRepPlayed // supplemented from original_source
)

// AudioRep is the audio service's report sum.
type AudioRep struct {
	Kind   AudioRepKind
	Frames uint32
}

// FsRep is the filesystem service's sole report: Saved{path, ok}.
type FsRep struct {
	Path string
	OK   bool
}

// ReportKind enumerates Report's four families.
type ReportKind uint8

const (
	ReportKernel ReportKind = iota
	ReportGpu
	ReportAudio
	ReportFs
)

// Report is the top-level report sum the hub's drain surfaces to the
// scheduler's report reducer.
type Report struct {
	Kind   ReportKind
	Kernel KernelRep
	Gpu    GpuRep
	Audio  AudioRep
	Fs     FsRep
}

var errUnknownVariant = fmt.Errorf("commands: unknown variant")

func putSpan(buf []byte, s ports.Span) {
	binary.LittleEndian.PutUint32(buf[0:4], s.SlotIdx)
	binary.LittleEndian.PutUint32(buf[4:8], s.Generation)
	binary.LittleEndian.PutUint32(buf[8:12], s.ByteLength)
}

func getSpan(buf []byte) ports.Span {
	return ports.Span{
		SlotIdx:    binary.LittleEndian.Uint32(buf[0:4]),
		Generation: binary.LittleEndian.Uint32(buf[4:8]),
		ByteLength: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

const spanSize = 12
