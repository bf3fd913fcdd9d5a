package atomicmem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessLoadStore(t *testing.T) {
	m := NewInProcess(64)
	defer m.Close()

	require.NoError(t, m.Store32(0, 0xdeadbeef))
	got, err := m.Load32(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), got)
}

func TestInProcessFetchAddReturnsPrevious(t *testing.T) {
	m := NewInProcess(16)
	defer m.Close()

	require.NoError(t, m.Store32(4, 10))
	prev, err := m.FetchAdd32(4, 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), prev)

	cur, err := m.Load32(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(15), cur)
}

func TestOutOfBounds(t *testing.T) {
	m := NewInProcess(8)
	defer m.Close()

	_, err := m.Load32(8)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	err = m.Store32(5, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestMisaligned(t *testing.T) {
	m := NewInProcess(16)
	defer m.Close()

	_, err := m.Load32(1)
	assert.ErrorIs(t, err, ErrMisaligned)

	err = m.Store32(2, 1)
	assert.ErrorIs(t, err, ErrMisaligned)
}

func TestCopyFromCopyToRoundTrip(t *testing.T) {
	m := NewInProcess(32)
	defer m.Close()

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, m.CopyFrom(8, payload))

	out := make([]byte, len(payload))
	require.NoError(t, m.CopyTo(8, out))
	assert.Equal(t, payload, out)
}

func TestCopyOutOfBounds(t *testing.T) {
	m := NewInProcess(8)
	defer m.Close()

	err := m.CopyFrom(4, []byte{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestWait32ReturnsImmediatelyWhenAlreadyChanged(t *testing.T) {
	m := NewInProcess(16)
	defer m.Close()

	require.NoError(t, m.Store32(0, 7))
	woken, err := m.Wait32(0, 0, 50)
	require.NoError(t, err)
	assert.True(t, woken)
}

func TestWait32TimesOutWhenUnchanged(t *testing.T) {
	m := NewInProcess(16)
	defer m.Close()

	start := time.Now()
	woken, err := m.Wait32(0, 0, 30)
	require.NoError(t, err)
	assert.False(t, woken)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestWait32ZeroTimeoutIsNonBlockingCheck(t *testing.T) {
	m := NewInProcess(16)
	defer m.Close()

	start := time.Now()
	woken, err := m.Wait32(0, 0, 0)
	require.NoError(t, err)
	assert.False(t, woken)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestNotify32WakesWaiter(t *testing.T) {
	m := NewInProcess(16)
	defer m.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var woken bool
	go func() {
		defer wg.Done()
		w, err := m.Wait32(0, 0, 1000)
		require.NoError(t, err)
		woken = w
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Store32(0, 1))
	require.NoError(t, m.Notify32(0, 1))

	wg.Wait()
	assert.True(t, woken)
}

func TestNotify32RespectsCount(t *testing.T) {
	m := NewInProcess(16)
	defer m.Close()

	const waiters = 4
	var wg sync.WaitGroup
	results := make([]bool, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			w, err := m.Wait32(0, 0, 500)
			require.NoError(t, err)
			results[idx] = w
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Store32(0, 1))
	require.NoError(t, m.Notify32(0, 2))

	wg.Wait()
	woken := 0
	for _, r := range results {
		if r {
			woken++
		}
	}
	// At least the two explicitly notified waiters observed the change;
	// since the word already changed before some goroutines re-checked
	// post-registration, more than 2 may also see it.
	assert.GreaterOrEqual(t, woken, 2)
}

func TestNotify32OutOfBounds(t *testing.T) {
	m := NewInProcess(8)
	defer m.Close()

	err := m.Notify32(8, 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestSharedNativeMmapRoundTrip(t *testing.T) {
	path := t.TempDir() + "/fabric.shm"

	writer, err := OpenShared(SharedOptions{Path: path, Size: 4096, Create: true})
	require.NoError(t, err)

	require.NoError(t, writer.Store32(0, 0xabcd1234))

	reader, err := OpenShared(SharedOptions{Path: path})
	require.NoError(t, err)

	got, err := reader.Load32(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xabcd1234), got)

	require.NoError(t, reader.Close())
	require.NoError(t, writer.Close())
}

func TestSharedNativeRequiresSizeOnCreate(t *testing.T) {
	path := t.TempDir() + "/fabric2.shm"
	_, err := OpenShared(SharedOptions{Path: path, Create: true})
	assert.Error(t, err)
}
