package commands

import (
	"encoding/binary"
	"fmt"

	"github.com/gbxfabric/fabric/ports"
)

func putString(dst []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("commands: truncated string length")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return "", nil, fmt.Errorf("commands: truncated string body")
	}
	return string(buf[:n]), buf[n:], nil
}

func putBytes(dst []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

func getBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("commands: truncated bytes length")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, fmt.Errorf("commands: truncated bytes body")
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, buf[n:], nil
}

// ArchiveWorkCmd encodes c into the tag/payload pair a MsgRing/Mailbox
// record is committed with.
func ArchiveWorkCmd(c WorkCmd) (tag uint8, payload []byte, err error) {
	switch c.Kind {
	case WorkKernel:
		return ports.TagKernelCmd, archiveKernelCmd(c.Kernel), nil
	case WorkFs:
		return ports.TagFsCmd, archiveFsCmd(c.Fs), nil
	default:
		return 0, nil, fmt.Errorf("%w: WorkCmdKind %d", errUnknownVariant, c.Kind)
	}
}

// DearchiveWorkCmd decodes a record previously written by ArchiveWorkCmd.
// ver selects the decode path; only CurrentVer is understood today.
func DearchiveWorkCmd(tag, ver uint8, payload []byte) (WorkCmd, error) {
	if ver != CurrentVer {
		return WorkCmd{}, fmt.Errorf("commands: unsupported ver %d for tag %#x", ver, tag)
	}
	switch tag {
	case ports.TagKernelCmd:
		k, err := dearchiveKernelCmd(payload)
		return WorkCmd{Kind: WorkKernel, Kernel: k}, err
	case ports.TagFsCmd:
		f, err := dearchiveFsCmd(payload)
		return WorkCmd{Kind: WorkFs, Fs: f}, err
	default:
		return WorkCmd{}, fmt.Errorf("commands: unknown WorkCmd tag %#x", tag)
	}
}

func archiveKernelCmd(k KernelCmd) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(k.Kind))
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], k.Group)
	buf = append(buf, u32[:]...)

	switch k.Kind {
	case KernelTick:
		binary.LittleEndian.PutUint32(u32[:], k.Budget)
		buf = append(buf, u32[:]...)
		buf = append(buf, byte(k.Purpose))
	case KernelLoadRom:
		var span [spanSize]byte
		putSpan(span[:], k.RomSpan)
		buf = append(buf, span[:]...)
	case KernelSetInputs:
		binary.LittleEndian.PutUint32(u32[:], k.InputMask)
		buf = append(buf, u32[:]...)
		binary.LittleEndian.PutUint32(u32[:], k.JoyMask)
		buf = append(buf, u32[:]...)
	case KernelTerminate:
		// no extra fields
	case KernelDebug:
		buf = append(buf, byte(k.Debug.Kind))
		binary.LittleEndian.PutUint32(u32[:], k.Debug.WindowOffset)
		buf = append(buf, u32[:]...)
		binary.LittleEndian.PutUint32(u32[:], k.Debug.WindowLength)
		buf = append(buf, u32[:]...)
	}
	return buf
}

func dearchiveKernelCmd(buf []byte) (KernelCmd, error) {
	if len(buf) < 5 {
		return KernelCmd{}, fmt.Errorf("commands: truncated KernelCmd")
	}
	k := KernelCmd{Kind: KernelCmdKind(buf[0])}
	k.Group = binary.LittleEndian.Uint32(buf[1:5])
	rest := buf[5:]

	switch k.Kind {
	case KernelTick:
		if len(rest) < 5 {
			return k, fmt.Errorf("commands: truncated KernelTick")
		}
		k.Budget = binary.LittleEndian.Uint32(rest[0:4])
		k.Purpose = TickPurpose(rest[4])
	case KernelLoadRom:
		if len(rest) < spanSize {
			return k, fmt.Errorf("commands: truncated KernelLoadRom")
		}
		k.RomSpan = getSpan(rest[:spanSize])
	case KernelSetInputs:
		if len(rest) < 8 {
			return k, fmt.Errorf("commands: truncated KernelSetInputs")
		}
		k.InputMask = binary.LittleEndian.Uint32(rest[0:4])
		k.JoyMask = binary.LittleEndian.Uint32(rest[4:8])
	case KernelTerminate:
		// nothing to read
	case KernelDebug:
		if len(rest) < 9 {
			return k, fmt.Errorf("commands: truncated KernelDebug")
		}
		k.Debug.Kind = DebugCmdKind(rest[0])
		k.Debug.WindowOffset = binary.LittleEndian.Uint32(rest[1:5])
		k.Debug.WindowLength = binary.LittleEndian.Uint32(rest[5:9])
	default:
		return k, fmt.Errorf("%w: KernelCmdKind %d", errUnknownVariant, k.Kind)
	}
	return k, nil
}

func archiveFsCmd(f FsCmd) []byte {
	buf := make([]byte, 0, 16+len(f.Path))
	if f.Manual {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return putString(buf, f.Path)
}

func dearchiveFsCmd(buf []byte) (FsCmd, error) {
	if len(buf) < 1 {
		return FsCmd{}, fmt.Errorf("commands: truncated FsCmd")
	}
	f := FsCmd{Manual: buf[0] != 0}
	path, _, err := getString(buf[1:])
	if err != nil {
		return f, err
	}
	f.Path = path
	return f, nil
}

// ArchiveAvCmd encodes c into the tag/payload pair for a GpuCmd or
// AudioCmd record.
func ArchiveAvCmd(c AvCmd) (tag uint8, payload []byte, err error) {
	switch c.Kind {
	case AvGpu:
		return ports.TagGpuCmd, archiveGpuCmd(c.Gpu), nil
	case AvAudio:
		return ports.TagAudioCmd, archiveAudioCmd(c.Audio), nil
	default:
		return 0, nil, fmt.Errorf("%w: AvCmdKind %d", errUnknownVariant, c.Kind)
	}
}

// DearchiveAvCmd decodes a record previously written by ArchiveAvCmd.
func DearchiveAvCmd(tag, ver uint8, payload []byte) (AvCmd, error) {
	if ver != CurrentVer {
		return AvCmd{}, fmt.Errorf("commands: unsupported ver %d for tag %#x", ver, tag)
	}
	switch tag {
	case ports.TagGpuCmd:
		g, err := dearchiveGpuCmd(payload)
		return AvCmd{Kind: AvGpu, Gpu: g}, err
	case ports.TagAudioCmd:
		a, err := dearchiveAudioCmd(payload)
		return AvCmd{Kind: AvAudio, Audio: a}, err
	default:
		return AvCmd{}, fmt.Errorf("commands: unknown AvCmd tag %#x", tag)
	}
}

func archiveGpuCmd(g GpuCmd) []byte {
	buf := make([]byte, 0, 4+spanSize+8)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], g.Lane)
	buf = append(buf, u32[:]...)
	var span [spanSize]byte
	putSpan(span[:], g.Span)
	buf = append(buf, span[:]...)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], g.FrameID)
	return append(buf, u64[:]...)
}

func dearchiveGpuCmd(buf []byte) (GpuCmd, error) {
	if len(buf) < 4+spanSize+8 {
		return GpuCmd{}, fmt.Errorf("commands: truncated GpuCmd")
	}
	g := GpuCmd{Kind: GpuUploadFrame}
	g.Lane = binary.LittleEndian.Uint32(buf[0:4])
	g.Span = getSpan(buf[4 : 4+spanSize])
	g.FrameID = binary.LittleEndian.Uint64(buf[4+spanSize : 4+spanSize+8])
	return g, nil
}

func archiveAudioCmd(a AudioCmd) []byte {
	buf := make([]byte, 0, spanSize+4)
	var span [spanSize]byte
	putSpan(span[:], a.Span)
	buf = append(buf, span[:]...)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], a.Frames)
	return append(buf, u32[:]...)
}

func dearchiveAudioCmd(buf []byte) (AudioCmd, error) {
	if len(buf) < spanSize+4 {
		return AudioCmd{}, fmt.Errorf("commands: truncated AudioCmd")
	}
	a := AudioCmd{Kind: AudioSubmit}
	a.Span = getSpan(buf[:spanSize])
	a.Frames = binary.LittleEndian.Uint32(buf[spanSize : spanSize+4])
	return a, nil
}

// ArchiveReport encodes r into the tag/payload pair for a reply record.
func ArchiveReport(r Report) (tag uint8, payload []byte, err error) {
	switch r.Kind {
	case ReportKernel:
		return ports.TagKernelRep, archiveKernelRep(r.Kernel), nil
	case ReportGpu:
		return ports.TagGpuRep, archiveGpuRep(r.Gpu), nil
	case ReportAudio:
		return ports.TagAudioRep, archiveAudioRep(r.Audio), nil
	case ReportFs:
		return ports.TagFsRep, archiveFsRep(r.Fs), nil
	default:
		return 0, nil, fmt.Errorf("%w: ReportKind %d", errUnknownVariant, r.Kind)
	}
}

// DearchiveReport decodes a reply record previously written by
// ArchiveReport.
func DearchiveReport(tag, ver uint8, payload []byte) (Report, error) {
	if ver != CurrentVer {
		return Report{}, fmt.Errorf("commands: unsupported ver %d for tag %#x", ver, tag)
	}
	switch tag {
	case ports.TagKernelRep:
		k, err := dearchiveKernelRep(payload)
		return Report{Kind: ReportKernel, Kernel: k}, err
	case ports.TagGpuRep:
		g, err := dearchiveGpuRep(payload)
		return Report{Kind: ReportGpu, Gpu: g}, err
	case ports.TagAudioRep:
		a, err := dearchiveAudioRep(payload)
		return Report{Kind: ReportAudio, Audio: a}, err
	case ports.TagFsRep:
		f, err := dearchiveFsRep(payload)
		return Report{Kind: ReportFs, Fs: f}, err
	default:
		return Report{}, fmt.Errorf("commands: unknown Report tag %#x", tag)
	}
}

func archiveKernelRep(k KernelRep) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, byte(k.Kind))
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], k.Group)
	buf = append(buf, u32[:]...)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], k.FrameID)
	buf = append(buf, u64[:]...)

	switch k.Kind {
	case KernelRepLaneFrame:
		binary.LittleEndian.PutUint32(u32[:], k.Lane)
		buf = append(buf, u32[:]...)
		var span [spanSize]byte
		putSpan(span[:], k.Span)
		buf = append(buf, span[:]...)
	case KernelRepTickDone, KernelRepRomLoaded, KernelRepAudioReady, KernelRepDroppedThumb:
		// group+frame_id only
	case KernelRepDebug:
		buf = append(buf, byte(k.Debug.Kind))
		buf = putBytes(buf, k.Debug.Payload)
	}
	return buf
}

func dearchiveKernelRep(buf []byte) (KernelRep, error) {
	if len(buf) < 13 {
		return KernelRep{}, fmt.Errorf("commands: truncated KernelRep")
	}
	k := KernelRep{Kind: KernelRepKind(buf[0])}
	k.Group = binary.LittleEndian.Uint32(buf[1:5])
	k.FrameID = binary.LittleEndian.Uint64(buf[5:13])
	rest := buf[13:]

	switch k.Kind {
	case KernelRepLaneFrame:
		if len(rest) < 4+spanSize {
			return k, fmt.Errorf("commands: truncated KernelRepLaneFrame")
		}
		k.Lane = binary.LittleEndian.Uint32(rest[0:4])
		k.Span = getSpan(rest[4 : 4+spanSize])
	case KernelRepTickDone, KernelRepRomLoaded, KernelRepAudioReady, KernelRepDroppedThumb:
		// nothing further
	case KernelRepDebug:
		if len(rest) < 1 {
			return k, fmt.Errorf("commands: truncated KernelRepDebug")
		}
		k.Debug.Kind = DebugCmdKind(rest[0])
		payload, _, err := getBytes(rest[1:])
		if err != nil {
			return k, err
		}
		k.Debug.Payload = payload
	default:
		return k, fmt.Errorf("%w: KernelRepKind %d", errUnknownVariant, k.Kind)
	}
	return k, nil
}

func archiveGpuRep(g GpuRep) []byte {
	buf := make([]byte, 0, 4+spanSize+8)
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], g.Lane)
	buf = append(buf, u32[:]...)
	var span [spanSize]byte
	putSpan(span[:], g.Span)
	buf = append(buf, span[:]...)
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], g.FrameID)
	return append(buf, u64[:]...)
}

func dearchiveGpuRep(buf []byte) (GpuRep, error) {
	if len(buf) < 4+spanSize+8 {
		return GpuRep{}, fmt.Errorf("commands: truncated GpuRep")
	}
	g := GpuRep{Kind: GpuRepFrameShown}
	g.Lane = binary.LittleEndian.Uint32(buf[0:4])
	g.Span = getSpan(buf[4 : 4+spanSize])
	g.FrameID = binary.LittleEndian.Uint64(buf[4+spanSize : 4+spanSize+8])
	return g, nil
}

func archiveAudioRep(a AudioRep) []byte {
	buf := make([]byte, 0, 5)
	buf = append(buf, byte(a.Kind))
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], a.Frames)
	return append(buf, u32[:]...)
}

func dearchiveAudioRep(buf []byte) (AudioRep, error) {
	if len(buf) < 5 {
		return AudioRep{}, fmt.Errorf("commands: truncated AudioRep")
	}
	return AudioRep{Kind: AudioRepKind(buf[0]), Frames: binary.LittleEndian.Uint32(buf[1:5])}, nil
}

func archiveFsRep(f FsRep) []byte {
	buf := make([]byte, 0, 8+len(f.Path))
	if f.OK {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return putString(buf, f.Path)
}

func dearchiveFsRep(buf []byte) (FsRep, error) {
	if len(buf) < 1 {
		return FsRep{}, fmt.Errorf("commands: truncated FsRep")
	}
	f := FsRep{OK: buf[0] != 0}
	path, _, err := getString(buf[1:])
	if err != nil {
		return f, err
	}
	f.Path = path
	return f, nil
}
