package compute

import (
	"errors"
	"fmt"
)

// Op names a fallible runtime call. It is carried by StatusError so that a
// failure can be attributed to the call that produced it.
type Op string

// Runtime operations.
const (
	OpGetPlatforms  Op = "get platforms"
	OpGetDevices    Op = "get devices"
	OpCreateContext Op = "create context"
	OpCreateQueue   Op = "create command queue"
	OpCreateProgram Op = "create program"
	OpBuildProgram  Op = "build program"
	OpBuildLog      Op = "get build log"
	OpCreateKernel  Op = "create kernel"
	OpCreateBuffer  Op = "create buffer"
	OpSetKernelArg  Op = "set kernel arg"
	OpWorkGroupInfo Op = "get kernel work group info"
	OpEnqueueKernel Op = "enqueue kernel"
	OpReadBuffer    Op = "read buffer"
	OpFinish        Op = "finish"
	OpRelease       Op = "release"
)

// StatusError is the error returned by runtimes for a failed call.
type StatusError struct {
	Op     Op
	Status Status

	// Err is an optional backend error with more detail.
	Err error
}

// Errorf returns a *StatusError for op with the given status.
func Errorf(op Op, status Status) error {
	return &StatusError{Op: op, Status: status}
}

// Wrap returns a *StatusError for op that keeps err as its cause.
func Wrap(op Op, status Status, err error) error {
	return &StatusError{Op: op, Status: status, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compute: %s: %s (%d): %v", e.Op, e.Status, int32(e.Status), e.Err)
	}
	return fmt.Sprintf("compute: %s: %s (%d)", e.Op, e.Status, int32(e.Status))
}

func (e *StatusError) Unwrap() error { return e.Err }

// StatusOf extracts the runtime status from err.
// A nil error is StatusSuccess; an error without a status is StatusUnknown.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusUnknown
}
