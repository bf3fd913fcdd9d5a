//go:build js && wasm
// +build js,wasm

package utils

import "syscall/js"

// consoleMethodByLevel picks the browser console method that best matches
// a LogLevel; DEBUG/INFO/WARN map onto their same-named console method,
// ERROR and FATAL both map onto console.error since FATAL terminates the
// process right after this call returns.
var consoleMethodByLevel = [...]string{"debug", "info", "warn", "error", "error"}

// redirectLogToBridge mirrors logLine to the host page's JS console, since
// stdout isn't visible from a browser worker the way it is on native. Logs
// are otherwise unreachable once this module instance is gone.
func (l *Logger) redirectLogToBridge(level LogLevel, logLine string) bool {
	console := js.Global().Get("console")
	if consoleUnavailable(console) {
		return false
	}
	console.Call(consoleMethodByLevel[level], logLine)
	return true
}

func consoleUnavailable(v js.Value) bool {
	return v.Type() == js.TypeNull || v.Type() == js.TypeUndefined
}
