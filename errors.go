package dispatch

import (
	"errors"
	"fmt"

	"github.com/gogpu/dispatch/compute"
)

// Class is the category of a runtime status code.
type Class int

// Status classes.
const (
	ClassSuccess Class = iota
	ClassPlatformUnavailable
	ClassDeviceUnavailable
	ClassCompileFailure
	ClassInvalidArgument
	ClassInvalidObject
	ClassResourceExhausted
	ClassMemoryMapFailure
	ClassProfilingUnavailable
	ClassImageUnsupported
	ClassUnknown
)

var classNames = [...]string{
	ClassSuccess:              "success",
	ClassPlatformUnavailable:  "platform unavailable",
	ClassDeviceUnavailable:    "device unavailable",
	ClassCompileFailure:       "compile failure",
	ClassInvalidArgument:      "invalid argument",
	ClassInvalidObject:        "invalid object",
	ClassResourceExhausted:    "resource exhausted",
	ClassMemoryMapFailure:     "memory map failure",
	ClassProfilingUnavailable: "profiling unavailable",
	ClassImageUnsupported:     "image unsupported",
	ClassUnknown:              "unknown",
}

func (c Class) String() string {
	if c >= 0 && int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Classify maps a runtime status code to its class. Codes outside the known
// table are ClassUnknown.
func Classify(s compute.Status) Class {
	switch s {
	case compute.StatusSuccess:
		return ClassSuccess
	case compute.StatusPlatformNotFound, compute.StatusInvalidPlatform:
		return ClassPlatformUnavailable
	case compute.StatusDeviceNotFound, compute.StatusDeviceNotAvailable,
		compute.StatusInvalidDevice, compute.StatusInvalidDeviceType:
		return ClassDeviceUnavailable
	case compute.StatusCompilerNotAvailable, compute.StatusBuildProgramFailure,
		compute.StatusInvalidBinary, compute.StatusInvalidBuildOptions,
		compute.StatusInvalidProgramExecutable:
		return ClassCompileFailure
	case compute.StatusInvalidValue, compute.StatusInvalidQueueProperties,
		compute.StatusInvalidHostPtr, compute.StatusInvalidKernelName,
		compute.StatusInvalidKernelDefinition, compute.StatusInvalidArgIndex,
		compute.StatusInvalidArgValue, compute.StatusInvalidArgSize,
		compute.StatusInvalidKernelArgs, compute.StatusInvalidWorkDimension,
		compute.StatusInvalidWorkGroupSize, compute.StatusInvalidWorkItemSize,
		compute.StatusInvalidGlobalOffset, compute.StatusInvalidEventWaitList,
		compute.StatusInvalidBufferSize, compute.StatusInvalidGlobalWorkSize,
		compute.StatusInvalidOperation:
		return ClassInvalidArgument
	case compute.StatusInvalidContext, compute.StatusInvalidCommandQueue,
		compute.StatusInvalidMemObject, compute.StatusInvalidSampler,
		compute.StatusInvalidProgram, compute.StatusInvalidKernel,
		compute.StatusInvalidEvent, compute.StatusInvalidGLObject:
		return ClassInvalidObject
	case compute.StatusMemObjectAllocationFailure, compute.StatusOutOfResources,
		compute.StatusOutOfHostMemory:
		return ClassResourceExhausted
	case compute.StatusMapFailure, compute.StatusMemCopyOverlap:
		return ClassMemoryMapFailure
	case compute.StatusProfilingInfoNotAvailable:
		return ClassProfilingUnavailable
	case compute.StatusImageFormatMismatch, compute.StatusImageFormatNotSupported,
		compute.StatusInvalidImageFormatDescriptor, compute.StatusInvalidImageSize,
		compute.StatusInvalidMipLevel:
		return ClassImageUnsupported
	default:
		return ClassUnknown
	}
}

// Kind identifies the pipeline step that failed.
type Kind int

// Failure kinds.
const (
	KindPlatformUnavailable Kind = iota + 1
	KindDeviceUnavailable
	KindContextCreationFailure
	KindQueueCreationFailure
	KindProgramCreationFailure
	KindCompileFailure
	KindKernelResolutionFailure
	KindBufferAllocationFailure
	KindInvalidKernelArgument
	KindEnqueueFailure
	KindReadbackFailure
	KindWorkGroupQueryFailure
	KindBadArgument
	KindKernelSource
	KindCanceled
)

// Sentinel errors, one per Kind. An *Error matches the sentinel of its kind
// with errors.Is.
var (
	ErrPlatformUnavailable   = errors.New("dispatch: platform unavailable")
	ErrDeviceUnavailable     = errors.New("dispatch: device unavailable")
	ErrContextCreation       = errors.New("dispatch: context creation failure")
	ErrQueueCreation         = errors.New("dispatch: queue creation failure")
	ErrProgramCreation       = errors.New("dispatch: program creation failure")
	ErrCompile               = errors.New("dispatch: compile failure")
	ErrKernelResolution      = errors.New("dispatch: kernel resolution failure")
	ErrBufferAllocation      = errors.New("dispatch: buffer allocation failure")
	ErrInvalidKernelArgument = errors.New("dispatch: invalid kernel argument")
	ErrEnqueue               = errors.New("dispatch: enqueue failure")
	ErrReadback              = errors.New("dispatch: readback failure")
	ErrWorkGroupQuery        = errors.New("dispatch: work-group query failure")
	ErrBadArgument           = errors.New("dispatch: bad argument")
	ErrKernelSource          = errors.New("dispatch: kernel source unavailable")
	ErrCanceled              = errors.New("dispatch: canceled")
)

var kindInfo = map[Kind]struct {
	name     string
	sentinel error
	fatal    bool
}{
	KindPlatformUnavailable:     {"platform unavailable", ErrPlatformUnavailable, false},
	KindDeviceUnavailable:       {"device unavailable", ErrDeviceUnavailable, false},
	KindContextCreationFailure:  {"context creation failure", ErrContextCreation, false},
	KindQueueCreationFailure:    {"queue creation failure", ErrQueueCreation, false},
	KindProgramCreationFailure:  {"program creation failure", ErrProgramCreation, false},
	KindCompileFailure:          {"compile failure", ErrCompile, true},
	KindKernelResolutionFailure: {"kernel resolution failure", ErrKernelResolution, true},
	KindBufferAllocationFailure: {"buffer allocation failure", ErrBufferAllocation, true},
	KindInvalidKernelArgument:   {"invalid kernel argument", ErrInvalidKernelArgument, true},
	KindEnqueueFailure:          {"enqueue failure", ErrEnqueue, true},
	KindReadbackFailure:         {"readback failure", ErrReadback, true},
	KindWorkGroupQueryFailure:   {"work-group query failure", ErrWorkGroupQuery, false},
	KindBadArgument:             {"bad argument", ErrBadArgument, false},
	KindKernelSource:            {"kernel source unavailable", ErrKernelSource, true},
	KindCanceled:                {"canceled", ErrCanceled, false},
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether a failure of this kind is unrecoverable for the
// caller: a missing kernel source and every step from the program build
// onwards. Creation of the context, queue and program object, device
// resolution, bad input and a tolerated work-group query are not fatal.
func (k Kind) Fatal() bool {
	return kindInfo[k].fatal
}

// Error is the error returned by a pipeline run.
type Error struct {
	// Kind is the failed step.
	Kind Kind

	// Stage is the last state the run reached before failing.
	Stage State

	// Op is the runtime call that failed, if any.
	Op compute.Op

	// Status is the runtime status of the failed call and Class its
	// classification. StatusUnknown when the failure did not come from the
	// runtime.
	Status compute.Status
	Class  Class

	// BuildLog holds the compiler log, bounded by WithBuildLogLimit, for
	// KindCompileFailure.
	BuildLog string

	// Err is the underlying error.
	Err error
}

// newError classifies err as a failure of kind at stage.
func newError(kind Kind, stage State, err error) *Error {
	e := &Error{Kind: kind, Stage: stage, Err: err, Status: compute.StatusOf(err)}
	var se *compute.StatusError
	if errors.As(err, &se) {
		e.Op = se.Op
	}
	e.Class = Classify(e.Status)
	return e
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "dispatch: " + e.Kind.String()
	}
	if e.Status != compute.StatusUnknown {
		return fmt.Sprintf("dispatch: %s (%s): %v", e.Kind, e.Class, e.Err)
	}
	return fmt.Sprintf("dispatch: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel error of e's kind.
func (e *Error) Is(target error) bool {
	info, ok := kindInfo[e.Kind]
	return ok && target == info.sentinel
}

// Fatal reports whether the failure is unrecoverable for this run. See
// Kind.Fatal.
func (e *Error) Fatal() bool { return e.Kind.Fatal() }

// Recoverable is the inverse of Fatal.
func (e *Error) Recoverable() bool { return !e.Kind.Fatal() }

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
