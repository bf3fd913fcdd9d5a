//go:build !js || !wasm
// +build !js !wasm

package utils

// redirectLogToBridge is a no-op on every non-wasm target: the Logger's
// own io.Writer (stdout by default) is already the right sink, so there is
// nothing else to mirror a line to.
func (l *Logger) redirectLogToBridge(LogLevel, string) bool {
	return false
}
