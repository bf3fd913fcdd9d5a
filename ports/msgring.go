package ports

import (
	"encoding/binary"
	"errors"

	"github.com/gbxfabric/fabric/atomicmem"
)

// ErrRingFull is returned by TryReserve when no contiguous slot, with or
// without a wrap, can hold the requested record.
var ErrRingFull = errors.New("ports: ring full")

// MsgRingHeaderSize is the fixed prefix ahead of a MsgRing's record storage:
// capacity:u32, head:u32, tail:u32, flags:u32, magic:u64, reserved:u64.
const MsgRingHeaderSize = 32

// msgRingDebugMagic tags a freshly initialized MsgRing header so a reader
// attaching to an unexpected offset fails fast instead of misreading
// garbage as a valid ring.
const msgRingDebugMagic = 0x4D53475F52494E47 // "MSG_RING" in ASCII bytes, LE

const (
	ringHdrCapacity = 0
	ringHdrHead     = 4
	ringHdrTail     = 8
	ringHdrFlags    = 12
	ringHdrMagic    = 16
)

// MsgRing is a lock-free SPSC byte ring carrying variable-length, 8-byte
// aligned envelope+payload records. It implements the wire layout fixed by
// the fabric's external interface: a 32-byte header followed by
// capacity_bytes of record storage, with a total_len==0xFFFFFFFF sentinel
// standing in for a wraparound skip.
//
// Grounded on kernel/threads/foundation/message_queue.go's ring bookkeeping
// (head/tail atomics guarding a byte region in a SharedArrayBuffer), adapted
// from fixed 256-byte slots to variable-length aligned records with an
// explicit wrap sentinel, per the byte layout in the external interface.
type MsgRing struct {
	mem      atomicmem.Mem
	base     uint32 // offset of the 32-byte header
	capacity uint32 // power-of-two record-storage length, excludes header
}

// NewMsgRing attaches to a MsgRing region previously laid out by the fabric
// builder at [base, base+MsgRingHeaderSize+capacity).
func NewMsgRing(mem atomicmem.Mem, base uint32, capacity uint32) *MsgRing {
	return &MsgRing{mem: mem, base: base, capacity: capacity}
}

// InitMsgRingHeader writes a fresh zeroed header with head=tail=0 and the
// debug magic set. Called once by the fabric builder at construction time.
func InitMsgRingHeader(mem atomicmem.Mem, base uint32, capacity uint32) error {
	if err := mem.Store32(base+ringHdrCapacity, capacity); err != nil {
		return err
	}
	if err := mem.Store32(base+ringHdrHead, 0); err != nil {
		return err
	}
	if err := mem.Store32(base+ringHdrTail, 0); err != nil {
		return err
	}
	if err := mem.Store32(base+ringHdrFlags, 0); err != nil {
		return err
	}
	var magic [8]byte
	binary.LittleEndian.PutUint64(magic[:], msgRingDebugMagic)
	if err := mem.CopyFrom(base+ringHdrMagic, magic[:]); err != nil {
		return err
	}
	return nil
}

func (r *MsgRing) headAddr() uint32 { return r.base + ringHdrHead }
func (r *MsgRing) tailAddr() uint32 { return r.base + ringHdrTail }

// recordAddr converts a position within [0, capacity) to an absolute Mem
// offset in the record storage area.
func (r *MsgRing) recordAddr(pos uint32) uint32 {
	return r.base + MsgRingHeaderSize + pos
}

// Producer returns the producer-side handle. Exactly one should exist for
// the lifetime of the ring.
func (r *MsgRing) Producer() *RingProducer { return &RingProducer{ring: r} }

// Consumer returns the consumer-side handle. Exactly one should exist for
// the lifetime of the ring.
func (r *MsgRing) Consumer() *RingConsumer { return &RingConsumer{ring: r} }

// Grant is a reserved, not-yet-committed writable slot returned by
// TryReserve. At most one Grant may be outstanding per producer.
type Grant struct {
	ring        *MsgRing
	pos         uint32
	reservedLen uint32
	env         Envelope
}

// RingProducer is the exclusive write side of a MsgRing.
type RingProducer struct {
	ring *MsgRing
}

// TryReserve finds room for a record with the given envelope and payload
// length, writing a wrap sentinel immediately if the tail-ward run before
// the end of the record area is too small to hold it. It never blocks.
func (p *RingProducer) TryReserve(env Envelope, payloadLen uint32) (*Grant, error) {
	r := p.ring
	total := EnvelopeSize + payloadLen
	aligned := alignUp8(total)
	if aligned > r.capacity {
		return nil, ErrRingFull
	}

	tail, err := r.mem.Load32(r.tailAddr())
	if err != nil {
		return nil, err
	}
	head, err := r.mem.Load32(r.headAddr())
	if err != nil {
		return nil, err
	}

	// A reservation that would advance head to exactly tail is rejected
	// even when the bytes would otherwise fit: head==tail is the ring's
	// only empty representation (see Peek), so letting a commit land
	// exactly on tail would make a full ring indistinguishable from an
	// empty one. This costs at most one record's worth of capacity.
	normalizeHead := func(pos uint32) uint32 {
		if pos == r.capacity {
			return 0
		}
		return pos
	}

	if head >= tail {
		toEnd := r.capacity - head
		if toEnd >= aligned {
			newHead := normalizeHead(head + aligned)
			if newHead == tail {
				return nil, ErrRingFull
			}
			return &Grant{ring: r, pos: head, reservedLen: aligned, env: env}, nil
		}
		if tail >= aligned {
			newHead := normalizeHead(aligned)
			if newHead == tail {
				return nil, ErrRingFull
			}
			if toEnd > 0 {
				if err := r.mem.Store32(r.recordAddr(head), WrapSentinel); err != nil {
					return nil, err
				}
			}
			return &Grant{ring: r, pos: 0, reservedLen: aligned, env: env}, nil
		}
		return nil, ErrRingFull
	}

	room := tail - head
	if room >= aligned {
		newHead := normalizeHead(head + aligned)
		if newHead == tail {
			return nil, ErrRingFull
		}
		return &Grant{ring: r, pos: head, reservedLen: aligned, env: env}, nil
	}
	return nil, ErrRingFull
}

// Commit writes the record's envelope and payload into the reserved slot
// and publishes it by storing the new head with Release ordering. actual
// payload length must be <= the length reserved for the grant.
func (p *RingProducer) Commit(g *Grant, payload []byte) error {
	if g.ring != p.ring {
		return errors.New("ports: grant belongs to a different ring")
	}
	total := EnvelopeSize + uint32(len(payload))
	if alignUp8(total) > g.reservedLen {
		return errors.New("ports: payload exceeds reserved grant")
	}

	var hdr [EnvelopeSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], total)
	PutEnvelope(hdr[:], g.env)

	addr := g.ring.recordAddr(g.pos)
	if err := g.ring.mem.CopyFrom(addr, hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if err := g.ring.mem.CopyFrom(addr+EnvelopeSize, payload); err != nil {
			return err
		}
	}

	newHead := g.pos + g.reservedLen
	if newHead == g.ring.capacity {
		newHead = 0
	}
	return g.ring.mem.Store32(g.ring.headAddr(), newHead)
}

// Record is a consumer's borrowed view of one popped MsgRing entry.
type Record struct {
	Env     Envelope
	Payload []byte
}

// RingConsumer is the exclusive read side of a MsgRing.
type RingConsumer struct {
	ring           *MsgRing
	pendingAdvance uint32
}

// Peek returns the oldest unread record without advancing the tail, or nil
// if the ring is empty. Skips and advances past any wrap sentinel
// transparently. At most one peeked record may be outstanding; call
// PopAdvance before peeking again.
func (c *RingConsumer) Peek() (*Record, error) {
	r := c.ring
	head, err := r.mem.Load32(r.headAddr())
	if err != nil {
		return nil, err
	}
	tail, err := r.mem.Load32(r.tailAddr())
	if err != nil {
		return nil, err
	}
	if head == tail {
		return nil, nil
	}

	addr := r.recordAddr(tail)
	var hdr [EnvelopeSize]byte
	if err := r.mem.CopyTo(addr, hdr[:]); err != nil {
		return nil, err
	}
	totalLen := binary.LittleEndian.Uint32(hdr[0:4])

	if totalLen == WrapSentinel {
		if err := r.mem.Store32(r.tailAddr(), 0); err != nil {
			return nil, err
		}
		return c.Peek()
	}

	env := GetEnvelope(hdr[:])
	payloadLen := totalLen - EnvelopeSize
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if err := r.mem.CopyTo(addr+EnvelopeSize, payload); err != nil {
			return nil, err
		}
	}

	c.pendingAdvance = alignUp8(totalLen)
	return &Record{Env: env, Payload: payload}, nil
}

// PopAdvance advances the tail past the most recently peeked record. It is
// a no-op if nothing is pending.
func (c *RingConsumer) PopAdvance() error {
	if c.pendingAdvance == 0 {
		return nil
	}
	r := c.ring
	tail, err := r.mem.Load32(r.tailAddr())
	if err != nil {
		return err
	}
	newTail := tail + c.pendingAdvance
	if newTail == r.capacity {
		newTail = 0
	}
	c.pendingAdvance = 0
	return r.mem.Store32(r.tailAddr(), newTail)
}
