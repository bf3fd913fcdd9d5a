package utils

import "fmt"

// NewError builds a plain error from msg. It routes through fmt.Errorf with
// a %s verb rather than errors.New so callers can't accidentally inject a
// format directive via a dynamic message.
func NewError(msg string) error {
	return fmt.Errorf("%s", msg)
}

// WrapError attaches msg as context ahead of err, or behaves like NewError
// if err is nil. Used at native-backend I/O boundaries (atomicmem's mmap
// open/stat/truncate) where the underlying syscall error is worth keeping.
func WrapError(err error, msg string) error {
	if err == nil {
		return NewError(msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// TimeoutError reports that operation did not complete before its deadline.
// GracefulShutdown.Shutdown returns it when its bounded wait expires.
func TimeoutError(operation string) error {
	return fmt.Errorf("%s: timed out", operation)
}
