package ports

import (
	"errors"

	"github.com/gbxfabric/fabric/atomicmem"
)

// ErrSlotTooLarge is returned when a write exceeds the pool's fixed slot
// size.
var ErrSlotTooLarge = errors.New("ports: payload exceeds slot size")

// Span identifies a slot-pool chunk by index and generation so a late
// consumer can detect a stale reference to a slot that has since been
// recycled, per the fabric's backreference-free span convention.
type Span struct {
	SlotIdx    uint32
	Generation uint32
	ByteLength uint32
}

// SlotPool is a flat array of N fixed-size byte slots plus a free index
// ring and a ready index ring, giving zero-copy payload transfer by index
// rather than by value. A per-slot generation counter, bumped every time a
// slot returns to the free ring, lets a consumer holding a Span detect that
// the slot it names has since been recycled for different bytes.
//
// Grounded on kernel/threads/foundation/message_queue.go's zero-copy
// enqueue pattern (callers get an offset to write into directly rather than
// a value to hand over) combined with the directory-level generation
// counter called for in the fabric's span/backreference design.
type SlotPool struct {
	mem       atomicmem.Mem
	slotBase  uint32
	slotSize  uint32
	slotCount uint32
	genBase   uint32 // slotCount*4 bytes of generation counters

	Free  *IndexRing
	Ready *IndexRing
}

// NewSlotPool attaches to a slot array plus its free/ready rings previously
// laid out by the fabric builder.
func NewSlotPool(mem atomicmem.Mem, slotBase, slotSize, slotCount, genBase uint32, free, ready *IndexRing) *SlotPool {
	return &SlotPool{
		mem:       mem,
		slotBase:  slotBase,
		slotSize:  slotSize,
		slotCount: slotCount,
		genBase:   genBase,
		Free:      free,
		Ready:     ready,
	}
}

func (p *SlotPool) slotAddr(idx uint32) uint32 { return p.slotBase + idx*p.slotSize }
func (p *SlotPool) genAddr(idx uint32) uint32  { return p.genBase + idx*4 }

// CurrentGeneration returns the live generation counter for idx, for
// validating a Span received from a ring.
func (p *SlotPool) CurrentGeneration(idx uint32) (uint32, error) {
	return p.mem.Load32(p.genAddr(idx))
}

// TryAcquireFree pops a slot index from the free ring. The caller now
// exclusively owns that slot's bytes until it pushes the index to ready or
// releases it back to free.
func (p *SlotPool) TryAcquireFree() (idx uint32, generation uint32, ok bool, err error) {
	idx, ok, err = p.Free.TryPop()
	if err != nil || !ok {
		return 0, 0, ok, err
	}
	generation, err = p.CurrentGeneration(idx)
	return idx, generation, true, err
}

// SlotWrite copies data into slot idx. data must not exceed the pool's
// fixed slot size.
func (p *SlotPool) SlotWrite(idx uint32, data []byte) error {
	if uint32(len(data)) > p.slotSize {
		return ErrSlotTooLarge
	}
	return p.mem.CopyFrom(p.slotAddr(idx), data)
}

// SlotRead copies length bytes out of slot idx.
func (p *SlotPool) SlotRead(idx uint32, length uint32) ([]byte, error) {
	if length > p.slotSize {
		return nil, ErrSlotTooLarge
	}
	buf := make([]byte, length)
	if err := p.mem.CopyTo(p.slotAddr(idx), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// PushReady publishes idx on the ready ring, making it visible to the
// consumer. Returns false (WouldBlock at the port level) if the ready ring
// is full.
func (p *SlotPool) PushReady(idx uint32) (bool, error) {
	return p.Ready.TryPush(idx)
}

// PopReady pops the oldest ready slot index, or ok=false if none are ready.
func (p *SlotPool) PopReady() (idx uint32, ok bool, err error) {
	return p.Ready.TryPop()
}

// ReleaseFree bumps idx's generation counter and returns it to the free
// ring, invalidating any Span a late consumer might still be holding.
func (p *SlotPool) ReleaseFree(idx uint32) error {
	if _, err := p.mem.FetchAdd32(p.genAddr(idx), 1); err != nil {
		return err
	}
	ok, err := p.Free.TryPush(idx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("ports: free ring full on release, pool misconfigured")
	}
	return nil
}
