//go:build js && wasm

package atomicmem

import (
	"fmt"
	"syscall/js"
)

// Linear is a Mem backed by a WebAssembly.Memory's shared linear memory,
// viewed through a JS Int32Array so head/tail/doorbell words can use the
// real Atomics.load/store/add/wait/notify primitives the main thread and
// service workers both see. This is the worker-side counterpart to Shared:
// same wire layout, different atomics intrinsic.
//
// Grounded on kernel/utils/logger_wasm.go's syscall/js bridging style; the
// atomics themselves mirror what kernel/threads/foundation/epoch.go does in
// Go terms (wait for a word to change, notify waiters) but call through to
// the JS engine's Atomics object instead of a channel-based waiter registry,
// since only the JS Atomics object can wake a *different* worker thread.
type Linear struct {
	buffer  js.Value // ArrayBuffer or SharedArrayBuffer
	view    js.Value // Int32Array over buffer
	byteLen uint32
}

// NewLinear wraps an existing JS SharedArrayBuffer (or ArrayBuffer, for
// single-worker testing) in a Mem.
func NewLinear(buffer js.Value) (*Linear, error) {
	byteLength := buffer.Get("byteLength").Int()
	if byteLength%4 != 0 {
		return nil, fmt.Errorf("atomicmem: buffer length %d not 4-byte aligned", byteLength)
	}
	view := js.Global().Get("Int32Array").New(buffer)
	return &Linear{buffer: buffer, view: view, byteLen: uint32(byteLength)}, nil
}

func (l *Linear) Size() uint32 { return l.byteLen }

func (l *Linear) idx(off uint32) (int, error) {
	if off+4 > l.byteLen {
		return 0, ErrOutOfBounds
	}
	if off%4 != 0 {
		return 0, ErrMisaligned
	}
	return int(off / 4), nil
}

func (l *Linear) CopyFrom(dst uint32, src []byte) error {
	if uint64(dst)+uint64(len(src)) > uint64(l.byteLen) {
		return ErrOutOfBounds
	}
	u8 := js.Global().Get("Uint8Array").New(l.buffer)
	dstArr := js.Global().Get("Uint8Array").New(u8.Get("buffer"), int(dst), len(src))
	js.CopyBytesToJS(dstArr, src)
	return nil
}

func (l *Linear) CopyTo(src uint32, dst []byte) error {
	if uint64(src)+uint64(len(dst)) > uint64(l.byteLen) {
		return ErrOutOfBounds
	}
	u8 := js.Global().Get("Uint8Array").New(l.buffer)
	srcArr := js.Global().Get("Uint8Array").New(u8.Get("buffer"), int(src), len(dst))
	js.CopyBytesToGo(dst, srcArr)
	return nil
}

func (l *Linear) Load32(off uint32) (uint32, error) {
	i, err := l.idx(off)
	if err != nil {
		return 0, err
	}
	v := js.Global().Get("Atomics").Call("load", l.view, i)
	return uint32(int64(v.Int())), nil
}

func (l *Linear) Store32(off uint32, val uint32) error {
	i, err := l.idx(off)
	if err != nil {
		return err
	}
	js.Global().Get("Atomics").Call("store", l.view, i, int32(val))
	return nil
}

func (l *Linear) FetchAdd32(off uint32, delta uint32) (uint32, error) {
	i, err := l.idx(off)
	if err != nil {
		return 0, err
	}
	v := js.Global().Get("Atomics").Call("add", l.view, i, int32(delta))
	return uint32(int64(v.Int())), nil
}

// Wait32 calls Atomics.wait, which blocks the current worker thread. Callers
// must never invoke this from the main/UI thread (Atomics.wait throws
// TypeError there in every browser).
func (l *Linear) Wait32(off uint32, expected uint32, timeoutMillis float64) (bool, error) {
	i, err := l.idx(off)
	if err != nil {
		return false, err
	}
	result := js.Global().Get("Atomics").Call("wait", l.view, i, int32(expected), timeoutMillis)
	return result.String() == "ok", nil
}

// Notify32 calls Atomics.notify to wake up to count waiters parked on off.
func (l *Linear) Notify32(off uint32, count uint32) error {
	i, err := l.idx(off)
	if err != nil {
		return err
	}
	js.Global().Get("Atomics").Call("notify", l.view, i, int32(count))
	return nil
}

// Close drops the JS references. The underlying SharedArrayBuffer's
// lifetime is owned by the JS host, not this Mem.
func (l *Linear) Close() error {
	l.buffer = js.Undefined()
	l.view = js.Undefined()
	return nil
}
