package ports

import (
	"testing"

	"github.com/gbxfabric/fabric/atomicmem"
	"github.com/stretchr/testify/require"
)

func newTestIndexRing(t *testing.T, capacity uint32) *IndexRing {
	t.Helper()
	mem := atomicmem.NewInProcess(IndexRingHeaderSize + capacity*4)
	require.NoError(t, InitIndexRingHeader(mem, 0, capacity))
	return NewIndexRing(mem, 0, capacity)
}

func TestIndexRingPushPopFIFO(t *testing.T) {
	r := newTestIndexRing(t, 8)
	for i := uint32(0); i < 4; i++ {
		ok, err := r.TryPush(i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := uint32(0); i < 4; i++ {
		idx, ok, err := r.TryPop()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, idx)
	}
}

func TestIndexRingFullAtCapacity(t *testing.T) {
	r := newTestIndexRing(t, 4)
	for i := uint32(0); i < 4; i++ {
		ok, err := r.TryPush(i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := r.TryPush(99)
	require.NoError(t, err)
	require.False(t, ok)

	idx, ok, err := r.TryPop()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0), idx)

	ok, err = r.TryPush(99)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIndexRingEmptyPopFails(t *testing.T) {
	r := newTestIndexRing(t, 4)
	_, ok, err := r.TryPop()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSeedFIFOPopulatesInOrder(t *testing.T) {
	mem := atomicmem.NewInProcess(IndexRingHeaderSize + 8*4)
	require.NoError(t, InitIndexRingHeader(mem, 0, 8))
	require.NoError(t, SeedFIFO(mem, 0, 8, 8))

	r := NewIndexRing(mem, 0, 8)
	for i := uint32(0); i < 8; i++ {
		idx, ok, err := r.TryPop()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, idx)
	}
}

func TestIndexRingWrapsAcrossManyCycles(t *testing.T) {
	r := newTestIndexRing(t, 4)
	for cycle := 0; cycle < 100; cycle++ {
		for i := uint32(0); i < 4; i++ {
			ok, err := r.TryPush(i)
			require.NoError(t, err)
			require.True(t, ok)
		}
		for i := uint32(0); i < 4; i++ {
			idx, ok, err := r.TryPop()
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, i, idx)
		}
	}
}
