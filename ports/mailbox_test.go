package ports

import (
	"testing"

	"github.com/gbxfabric/fabric/atomicmem"
	"github.com/stretchr/testify/require"
)

func newTestMailbox(t *testing.T, capacity uint32) *Mailbox {
	t.Helper()
	mem := atomicmem.NewInProcess(MailboxHeaderSize + capacity)
	require.NoError(t, InitMailboxHeader(mem, 0, capacity))
	return NewMailbox(mem, 0, capacity)
}

func TestMailboxFirstWriteIsAccepted(t *testing.T) {
	mb := newTestMailbox(t, 64)
	outcome, err := mb.Write(Envelope{Tag: TagKernelCmd}, []byte("tick"))
	require.NoError(t, err)
	require.Equal(t, WriteAccepted, outcome)
}

func TestMailboxCoalescesUnreadWrite(t *testing.T) {
	mb := newTestMailbox(t, 64)

	outcome, err := mb.Write(Envelope{Tag: TagKernelCmd}, []byte("first"))
	require.NoError(t, err)
	require.Equal(t, WriteAccepted, outcome)

	outcome, err = mb.Write(Envelope{Tag: TagKernelCmd}, []byte("second"))
	require.NoError(t, err)
	require.Equal(t, WriteCoalesced, outcome)

	rec, seq, ok, err := mb.Take()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), seq)
	require.Equal(t, []byte("second"), rec.Payload)
}

func TestMailboxAcceptedAfterRead(t *testing.T) {
	mb := newTestMailbox(t, 64)

	_, err := mb.Write(Envelope{Tag: TagKernelCmd}, []byte("first"))
	require.NoError(t, err)
	_, _, ok, err := mb.Take()
	require.NoError(t, err)
	require.True(t, ok)

	outcome, err := mb.Write(Envelope{Tag: TagKernelCmd}, []byte("second"))
	require.NoError(t, err)
	require.Equal(t, WriteAccepted, outcome)
}

func TestMailboxTakeWithoutNewWriteReturnsFalse(t *testing.T) {
	mb := newTestMailbox(t, 64)

	_, err := mb.Write(Envelope{Tag: TagKernelCmd}, []byte("only"))
	require.NoError(t, err)

	_, _, ok, err := mb.Take()
	require.NoError(t, err)
	require.True(t, ok)

	_, _, ok, err = mb.Take()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMailboxTakeOnEmptyReturnsFalse(t *testing.T) {
	mb := newTestMailbox(t, 64)
	_, _, ok, err := mb.Take()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMailboxSeqMonotonic(t *testing.T) {
	mb := newTestMailbox(t, 64)
	var lastSeq uint32
	for i := 0; i < 5; i++ {
		_, err := mb.Write(Envelope{Tag: TagKernelCmd}, []byte{byte(i)})
		require.NoError(t, err)
		_, seq, ok, err := mb.Take()
		require.NoError(t, err)
		require.True(t, ok)
		require.Greater(t, seq, lastSeq)
		lastSeq = seq
	}
}
