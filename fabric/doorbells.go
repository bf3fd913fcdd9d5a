package fabric

import "github.com/gbxfabric/fabric/atomicmem"

// Doorbells is the region backing the worker runtime's park/notify
// handshake: one global "did work" word the main context bumps on every
// submit, a shutdown flag the main context sets once at teardown, and one
// wake word per endpoint for a future targeted wake (unused by the generic
// round-robin runtime in package engine today, reserved for it).
//
// Grounded on kernel/threads/foundation/epoch.go's EnhancedEpoch: a
// monotonic counter advanced with Release and observed with Acquire, with
// waiters parked on a change rather than a fixed value.
type Doorbells struct {
	mem   atomicmem.Mem
	base  uint32
	count uint32 // number of per-service wake words
}

const (
	doorbellGlobalOff      = 0
	doorbellShutdownOff    = 4
	doorbellPerServiceBase = 8
)

// GlobalAddr is the offset of the global doorbell word every worker
// runtime parks on between idle sweeps.
func (d *Doorbells) GlobalAddr() uint32 { return d.base + doorbellGlobalOff }

// ShutdownAddr is the offset of the shutdown flag. Workers poll it between
// sweeps rather than waiting on it, per the spec's cancellation model.
func (d *Doorbells) ShutdownAddr() uint32 { return d.base + doorbellShutdownOff }

// ServiceAddr is the offset of endpoint i's individual wake word.
func (d *Doorbells) ServiceAddr(i uint32) uint32 {
	return d.base + doorbellPerServiceBase + i*4
}

// Ring bumps the global doorbell and wakes any worker runtime parked on it.
// Called by the main context whenever it submits a command, never by a
// worker.
func (d *Doorbells) Ring() error {
	if _, err := d.mem.FetchAdd32(d.GlobalAddr(), 1); err != nil {
		return err
	}
	return d.mem.Notify32(d.GlobalAddr(), ^uint32(0))
}

// GlobalSeq returns the current value of the global doorbell, for a worker
// runtime to remember before parking.
func (d *Doorbells) GlobalSeq() (uint32, error) {
	return d.mem.Load32(d.GlobalAddr())
}

// Park blocks the calling worker runtime until the global doorbell's value
// differs from lastSeen or timeoutMillis elapses. Must never be called from
// the main context.
func (d *Doorbells) Park(lastSeen uint32, timeoutMillis float64) (woken bool, err error) {
	return d.mem.Wait32(d.GlobalAddr(), lastSeen, timeoutMillis)
}

// RequestShutdown sets the shutdown flag and wakes every parked worker
// runtime so it can observe it promptly.
func (d *Doorbells) RequestShutdown() error {
	if err := d.mem.Store32(d.ShutdownAddr(), 1); err != nil {
		return err
	}
	return d.mem.Notify32(d.GlobalAddr(), ^uint32(0))
}

// ShouldShutdown reports whether the main context has requested shutdown.
func (d *Doorbells) ShouldShutdown() (bool, error) {
	v, err := d.mem.Load32(d.ShutdownAddr())
	return v != 0, err
}
