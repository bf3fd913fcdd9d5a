package ports

import "github.com/gbxfabric/fabric/atomicmem"

// IndexRingHeaderSize is the fixed prefix ahead of an IndexRing's slot
// storage: capacity:u32, head:u32, tail:u32, pad:u32, magic:u64, reserved:u64.
const IndexRingHeaderSize = 32

const indexRingDebugMagic = 0x52494E47 // "IDX_RING" (low 32 bits)

const (
	idxHdrCapacity = 0
	idxHdrHead     = 4
	idxHdrTail     = 8
	idxHdrMagic    = 16
)

// IndexRing is a lock-free SPSC ring of fixed 32-bit slot indices, used by
// SlotPool for its free and ready queues. Unlike MsgRing, head and tail are
// monotonically increasing counters rather than byte positions; the
// physical slot is head/tail modulo capacity. Grounded on the same
// head/tail-atomics shape as kernel/threads/foundation/message_queue.go's
// ring, specialized to fixed 4-byte entries with no payload or alignment
// concerns.
type IndexRing struct {
	mem      atomicmem.Mem
	base     uint32
	capacity uint32 // power of two
}

// NewIndexRing attaches to an IndexRing region previously laid out by the
// fabric builder at [base, base+IndexRingHeaderSize+capacity*4).
func NewIndexRing(mem atomicmem.Mem, base uint32, capacity uint32) *IndexRing {
	return &IndexRing{mem: mem, base: base, capacity: capacity}
}

// InitIndexRingHeader writes a fresh empty header (head=tail=0).
func InitIndexRingHeader(mem atomicmem.Mem, base uint32, capacity uint32) error {
	if err := mem.Store32(base+idxHdrCapacity, capacity); err != nil {
		return err
	}
	if err := mem.Store32(base+idxHdrHead, 0); err != nil {
		return err
	}
	if err := mem.Store32(base+idxHdrTail, 0); err != nil {
		return err
	}
	return mem.Store32(base+idxHdrMagic, indexRingDebugMagic)
}

// SeedFIFO pre-populates the ring by pushing 0..n-1 in order, used to fill a
// slot pool's free ring at build time.
func SeedFIFO(mem atomicmem.Mem, base uint32, capacity uint32, n uint32) error {
	r := NewIndexRing(mem, base, capacity)
	for i := uint32(0); i < n; i++ {
		if ok, err := r.TryPush(i); err != nil {
			return err
		} else if !ok {
			return ErrRingFull
		}
	}
	return nil
}

func (r *IndexRing) headAddr() uint32 { return r.base + idxHdrHead }
func (r *IndexRing) tailAddr() uint32 { return r.base + idxHdrTail }

func (r *IndexRing) slotAddr(counter uint32) uint32 {
	return r.base + IndexRingHeaderSize + (counter&(r.capacity-1))*4
}

// TryPush appends idx to the ring. Returns false if the ring is full
// (head-tail >= capacity).
func (r *IndexRing) TryPush(idx uint32) (bool, error) {
	head, err := r.mem.Load32(r.headAddr())
	if err != nil {
		return false, err
	}
	tail, err := r.mem.Load32(r.tailAddr())
	if err != nil {
		return false, err
	}
	if head-tail >= r.capacity {
		return false, nil
	}
	if err := r.mem.Store32(r.slotAddr(head), idx); err != nil {
		return false, err
	}
	if err := r.mem.Store32(r.headAddr(), head+1); err != nil {
		return false, err
	}
	return true, nil
}

// TryPop removes and returns the oldest index in the ring, or ok=false if
// empty.
func (r *IndexRing) TryPop() (idx uint32, ok bool, err error) {
	tail, err := r.mem.Load32(r.tailAddr())
	if err != nil {
		return 0, false, err
	}
	head, err := r.mem.Load32(r.headAddr())
	if err != nil {
		return 0, false, err
	}
	if head == tail {
		return 0, false, nil
	}
	idx, err = r.mem.Load32(r.slotAddr(tail))
	if err != nil {
		return 0, false, err
	}
	if err := r.mem.Store32(r.tailAddr(), tail+1); err != nil {
		return 0, false, err
	}
	return idx, true, nil
}

// Len returns the current count of entries in the ring.
func (r *IndexRing) Len() (uint32, error) {
	head, err := r.mem.Load32(r.headAddr())
	if err != nil {
		return 0, err
	}
	tail, err := r.mem.Load32(r.tailAddr())
	if err != nil {
		return 0, err
	}
	return head - tail, nil
}
