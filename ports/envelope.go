// Package ports implements the fabric's typed channel primitives on top of
// atomicmem.Mem: the lossless/best-effort MsgRing, the IndexRing used by
// slot pools, the SlotPool itself, and the coalescing Mailbox. All four are
// parametric over a byte range (an offset and length into a shared Mem) and
// do their bookkeeping with plain offset arithmetic, the way
// kernel/threads/foundation/message_queue.go lays out a ring directly over
// unsafe.Pointer arithmetic into a SharedArrayBuffer.
package ports

import "encoding/binary"

// Command/report tag assignments, fixed by the wire layout.
const (
	TagKernelCmd uint8 = 0x01
	TagFsCmd     uint8 = 0x02
	TagGpuCmd    uint8 = 0x03
	TagAudioCmd  uint8 = 0x04
	TagKernelRep uint8 = 0x11
	TagFsRep     uint8 = 0x12
	TagGpuRep    uint8 = 0x13
	TagAudioRep  uint8 = 0x14
)

// EnvelopeSize is the fixed header every MsgRing record carries ahead of its
// payload bytes: total_len:u32, tag:u8, ver:u8, flags:u16.
const EnvelopeSize = 8

// WrapSentinel marks a record slot that is actually a skip-to-zero marker
// rather than a real record.
const WrapSentinel uint32 = 0xFFFFFFFF

// Envelope is the fixed header prefixing every record in a MsgRing.
type Envelope struct {
	Tag   uint8
	Ver   uint8
	Flags uint16
}

// PutEnvelope writes tag/ver/flags (but not total_len, which the caller
// fills in once the final padded length is known) into buf[0:8].
func PutEnvelope(buf []byte, env Envelope) {
	buf[4] = env.Tag
	buf[5] = env.Ver
	binary.LittleEndian.PutUint16(buf[6:8], env.Flags)
}

// GetEnvelope reads the tag/ver/flags fields out of a record header.
func GetEnvelope(buf []byte) Envelope {
	return Envelope{
		Tag:   buf[4],
		Ver:   buf[5],
		Flags: binary.LittleEndian.Uint16(buf[6:8]),
	}
}

// alignUp8 rounds n up to the next multiple of 8, the record alignment
// every MsgRing slot observes.
func alignUp8(n uint32) uint32 {
	return (n + 7) &^ 7
}
