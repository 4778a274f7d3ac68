package camcap

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDeviceUnsupported  = errors.New("device not supported")
	ErrAllocationFailed   = errors.New("buffer allocation failed")
	ErrStreamStartFailed  = errors.New("unable to start capture")
	ErrDeviceIO           = errors.New("device i/o error")
	ErrDecodeFailed       = errors.New("frame decode failed")
	ErrControlUnsupported = errors.New("control not supported")
)

// Error describes a failed device operation.
type Error struct {
	Kind   error
	Device string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, device, op string, err error) *Error {
	return &Error{Kind: kind, Device: device, Op: op, Err: err}
}
