package ports

import (
	"encoding/binary"

	"github.com/gbxfabric/fabric/atomicmem"
)

// MailboxHeaderSize is the fixed prefix ahead of a Mailbox's cell storage:
// seq:u32, consumed_seq:u32, capacity:u32, magic:u64, reserved:u64.
const MailboxHeaderSize = 32

const mailboxDebugMagic = 0x424F5821 // "MAILBOX!" (low 32 bits)

const (
	mbHdrSeq         = 0
	mbHdrConsumedSeq = 4
	mbHdrCapacity    = 8
	mbHdrMagic       = 16
)

// WriteOutcome reports whether a Mailbox write replaced an already-read
// cell (Accepted) or clobbered one the consumer never got to (Coalesced).
type WriteOutcome int

const (
	WriteAccepted WriteOutcome = iota
	WriteCoalesced
)

// Mailbox is a single-cell coalescing channel: each write replaces the
// cell wholesale and bumps a monotonic sequence number, so a slow consumer
// only ever sees the latest value rather than a backlog. This is the
// transport-level building block behind the fabric's Coalesce submit
// policy (display-lane ticks, autosave persists).
//
// Grounded on kernel/threads/foundation/epoch.go's EnhancedEpoch counter
// pattern (a monotonic u32 advanced with Release, read with Acquire) but
// specialized to carry a variable-length payload in the cell rather than
// being a bare signal.
type Mailbox struct {
	mem      atomicmem.Mem
	base     uint32
	capacity uint32 // cell bytes (envelope + payload), fixed at build time
}

// NewMailbox attaches to a Mailbox region previously laid out by the fabric
// builder at [base, base+MailboxHeaderSize+capacity).
func NewMailbox(mem atomicmem.Mem, base uint32, capacity uint32) *Mailbox {
	return &Mailbox{mem: mem, base: base, capacity: capacity}
}

// InitMailboxHeader writes a fresh empty header (seq=0 means never written).
func InitMailboxHeader(mem atomicmem.Mem, base uint32, capacity uint32) error {
	if err := mem.Store32(base+mbHdrSeq, 0); err != nil {
		return err
	}
	if err := mem.Store32(base+mbHdrConsumedSeq, 0); err != nil {
		return err
	}
	if err := mem.Store32(base+mbHdrCapacity, capacity); err != nil {
		return err
	}
	return mem.Store32(base+mbHdrMagic, mailboxDebugMagic)
}

func (m *Mailbox) seqAddr() uint32      { return m.base + mbHdrSeq }
func (m *Mailbox) consumedAddr() uint32 { return m.base + mbHdrConsumedSeq }
func (m *Mailbox) cellAddr() uint32     { return m.base + MailboxHeaderSize }

// Write replaces the cell's contents and bumps seq. Accepted means the
// previous occupant (if any) had already been taken; Coalesced means a
// write the consumer never read is being overwritten.
func (m *Mailbox) Write(env Envelope, payload []byte) (WriteOutcome, error) {
	total := EnvelopeSize + uint32(len(payload))
	if total > m.capacity {
		return WriteAccepted, ErrSlotTooLarge
	}

	prevSeq, err := m.mem.Load32(m.seqAddr())
	if err != nil {
		return WriteAccepted, err
	}
	consumedSeq, err := m.mem.Load32(m.consumedAddr())
	if err != nil {
		return WriteAccepted, err
	}

	var hdr [EnvelopeSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], total)
	PutEnvelope(hdr[:], env)
	if err := m.mem.CopyFrom(m.cellAddr(), hdr[:]); err != nil {
		return WriteAccepted, err
	}
	if len(payload) > 0 {
		if err := m.mem.CopyFrom(m.cellAddr()+EnvelopeSize, payload); err != nil {
			return WriteAccepted, err
		}
	}

	if err := m.mem.Store32(m.seqAddr(), prevSeq+1); err != nil {
		return WriteAccepted, err
	}

	if prevSeq == 0 || consumedSeq == prevSeq {
		return WriteAccepted, nil
	}
	return WriteCoalesced, nil
}

// Take returns the current cell if it carries a sequence number the caller
// has not already consumed. Retries internally if a concurrent Write races
// the read, so it never returns bytes spliced from two different writes.
func (m *Mailbox) Take() (rec *Record, seq uint32, ok bool, err error) {
	for {
		seqBefore, err := m.mem.Load32(m.seqAddr())
		if err != nil {
			return nil, 0, false, err
		}
		if seqBefore == 0 {
			return nil, 0, false, nil
		}
		consumedSeq, err := m.mem.Load32(m.consumedAddr())
		if err != nil {
			return nil, 0, false, err
		}
		if consumedSeq == seqBefore {
			return nil, seqBefore, false, nil
		}

		var hdr [EnvelopeSize]byte
		if err := m.mem.CopyTo(m.cellAddr(), hdr[:]); err != nil {
			return nil, 0, false, err
		}
		totalLen := binary.LittleEndian.Uint32(hdr[0:4])
		envl := GetEnvelope(hdr[:])
		payloadLen := totalLen - EnvelopeSize
		var payload []byte
		if payloadLen > 0 {
			payload = make([]byte, payloadLen)
			if err := m.mem.CopyTo(m.cellAddr()+EnvelopeSize, payload); err != nil {
				return nil, 0, false, err
			}
		}

		seqAfter, err := m.mem.Load32(m.seqAddr())
		if err != nil {
			return nil, 0, false, err
		}
		if seqAfter != seqBefore {
			continue
		}

		if err := m.mem.Store32(m.consumedAddr(), seqBefore); err != nil {
			return nil, 0, false, err
		}
		return &Record{Env: envl, Payload: payload}, seqBefore, true, nil
	}
}
