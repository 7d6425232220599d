package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrCameraClosed is returned when operating on a closed facade.
	ErrCameraClosed = errors.New("camera: camera closed")

	// ErrNilDevice is returned when constructing a facade without a device.
	ErrNilDevice = errors.New("camera: nil device")

	// ErrControlUnsupported is returned by backends for unknown controls.
	ErrControlUnsupported = errors.New("camera: control not supported")
)

// PropertyOp distinguishes reads from writes in a PropertyError.
type PropertyOp string

const (
	OpGet PropertyOp = "get"
	OpSet PropertyOp = "set"
)

// PropertyError reports a failed property access. It carries the property
// name, the rejected value for writes, and the underlying device cause.
type PropertyError struct {
	// Op is whether the property was being read or written.
	Op PropertyOp

	// Property is the property name ("resolution", "frame rate", ...).
	Property string

	// Value is the rejected value, set only for writes.
	Value string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PropertyError) Error() string {
	if e.Op == OpSet && e.Value != "" {
		return fmt.Sprintf("camera: set %s to %s: %v", e.Property, e.Value, e.Err)
	}
	return fmt.Sprintf("camera: %s %s: %v", e.Op, e.Property, e.Err)
}

// Unwrap returns the underlying error.
func (e *PropertyError) Unwrap() error {
	return e.Err
}

// CaptureError reports a failed single-frame capture. The capture worker
// recovers from these by skipping the iteration; PollFrame surfaces them
// to the caller.
type CaptureError struct {
	Err error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("camera: capture frame: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// ShutdownError reports a failure while stopping the stream or closing
// the device. The termination signal is set regardless, so the capture
// worker still exits.
type ShutdownError struct {
	Err error
}

// Error implements the error interface.
func (e *ShutdownError) Error() string {
	return fmt.Sprintf("camera: shutdown: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ShutdownError) Unwrap() error {
	return e.Err
}

// CallbackPanicError records a panic raised by a user callback. The
// capture worker recovers the panic so the capture loop survives; the
// error is retrievable via LastError. Shared state touched by the
// panicking callback is the caller's responsibility.
type CallbackPanicError struct {
	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e *CallbackPanicError) Error() string {
	return fmt.Sprintf("camera: frame callback panicked: %v", e.Value)
}
