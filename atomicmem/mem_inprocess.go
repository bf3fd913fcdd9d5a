package atomicmem

// InProcess is a Mem backed by a plain heap-allocated byte slice, shared
// between goroutines within a single OS process. It is the Go analogue of a
// native multi-threaded build where the "workers" are goroutines rather than
// separate OS processes or browser workers: the byte slice already satisfies
// Go's shared-memory-between-goroutines model without an OS primitive.
//
// Grounded on kernel/threads/sab/hal_memory.go's InMemoryProvider.
type InProcess struct {
	*core
}

// NewInProcess allocates a zeroed buffer of the given size.
func NewInProcess(size uint32) *InProcess {
	return &InProcess{core: newCore(make([]byte, size))}
}

// Close releases the backing slice. InProcess holds no OS resources, so this
// only drops the reference to let the slice be collected.
func (m *InProcess) Close() error {
	m.data = nil
	return nil
}
