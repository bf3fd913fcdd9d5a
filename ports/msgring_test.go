package ports

import (
	"testing"

	"github.com/gbxfabric/fabric/atomicmem"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, capacity uint32) (*MsgRing, atomicmem.Mem) {
	t.Helper()
	mem := atomicmem.NewInProcess(MsgRingHeaderSize + capacity)
	require.NoError(t, InitMsgRingHeader(mem, 0, capacity))
	return NewMsgRing(mem, 0, capacity), mem
}

func TestMsgRingRoundTrip(t *testing.T) {
	ring, _ := newTestRing(t, 256)
	producer := ring.Producer()
	consumer := ring.Consumer()

	payload := []byte("hello fabric")
	grant, err := producer.TryReserve(Envelope{Tag: TagKernelCmd, Ver: 1}, uint32(len(payload)))
	require.NoError(t, err)
	require.NoError(t, producer.Commit(grant, payload))

	rec, err := consumer.Peek()
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, TagKernelCmd, rec.Env.Tag)
	require.Equal(t, payload, rec.Payload)
	require.NoError(t, consumer.PopAdvance())

	rec, err = consumer.Peek()
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestMsgRingMultipleRecordsPreserveOrder(t *testing.T) {
	ring, _ := newTestRing(t, 512)
	producer := ring.Producer()
	consumer := ring.Consumer()

	for i := 0; i < 5; i++ {
		payload := []byte{byte(i)}
		grant, err := producer.TryReserve(Envelope{Tag: TagKernelCmd, Ver: 1}, 1)
		require.NoError(t, err)
		require.NoError(t, producer.Commit(grant, payload))
	}

	for i := 0; i < 5; i++ {
		rec, err := consumer.Peek()
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.Equal(t, []byte{byte(i)}, rec.Payload)
		require.NoError(t, consumer.PopAdvance())
	}
}

func TestMsgRingFullReturnsErrRingFull(t *testing.T) {
	// Capacity holds exactly two 16-byte aligned records (8 envelope + 8
	// payload each); the second reservation is refused because landing
	// head exactly on tail would make a full ring indistinguishable from
	// an empty one.
	ring, _ := newTestRing(t, 32)
	producer := ring.Producer()

	grant, err := producer.TryReserve(Envelope{Tag: TagKernelCmd}, 8)
	require.NoError(t, err)
	require.NoError(t, producer.Commit(grant, make([]byte, 8)))

	_, err = producer.TryReserve(Envelope{Tag: TagKernelCmd}, 8)
	require.ErrorIs(t, err, ErrRingFull)
}

func TestMsgRingWrapSentinelWhenTailRoomInsufficient(t *testing.T) {
	// capacity-8 boundary: ring is empty (head==tail==56) but the 8 bytes
	// left before the end of the record area can't hold a 16-byte aligned
	// record, so the producer writes a wrap sentinel at 56 and places the
	// record at offset 0.
	capacity := uint32(64)
	ring, mem := newTestRing(t, capacity)
	producer := ring.Producer()
	consumer := ring.Consumer()

	require.NoError(t, mem.Store32(ring.headAddr(), 56))
	require.NoError(t, mem.Store32(ring.tailAddr(), 56))

	grant, err := producer.TryReserve(Envelope{Tag: TagKernelCmd}, 8)
	require.NoError(t, err)
	require.Equal(t, uint32(0), grant.pos)
	require.NoError(t, producer.Commit(grant, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	newHead, err := mem.Load32(ring.headAddr())
	require.NoError(t, err)
	require.Equal(t, uint32(16), newHead)

	sentinel, err := mem.Load32(ring.recordAddr(56))
	require.NoError(t, err)
	require.Equal(t, WrapSentinel, sentinel)

	rec, err := consumer.Peek()
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, rec.Payload)

	tailAfterSkip, err := mem.Load32(ring.tailAddr())
	require.NoError(t, err)
	require.Equal(t, uint32(0), tailAfterSkip)
}

func TestMsgRingEmptyPeekReturnsNil(t *testing.T) {
	ring, _ := newTestRing(t, 64)
	rec, err := ring.Consumer().Peek()
	require.NoError(t, err)
	require.Nil(t, rec)
}
