// Package dispatch runs an integer kernel on a compute accelerator.
//
// # Overview
//
// A Pipeline takes a sequence of int32 values, runs a kernel over it on a
// compute device and returns the transformed sequence. Each run is a
// single, synchronous pass through the same steps:
//
//	Init → DeviceResolved → ContextReady → ProgramBuilt → BuffersReady
//	     → ArgsBound → Dispatched → Completed
//
// Any failure moves the run to Aborted and returns an *Error that names the
// failed step (Kind), the runtime status and its class. Every runtime
// object the run created is released on every exit path.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/dispatch"
//	    "github.com/gogpu/dispatch/backend/cpu"
//	    "github.com/gogpu/dispatch/kernels"
//	)
//
//	p, err := dispatch.New(cpu.New(), dispatch.Kernel{Source: kernels.SampleWGSL})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := p.Run(ctx, []int32{1, 2, 3, 4}) // [1 4 9 16]
//
// # Runtimes
//
// The compute package defines the runtime interfaces. Backends:
//   - backend/cpu: reference runtime on the host (WGSL)
//   - backend/wgpu: Vulkan through gogpu/wgpu (WGSL)
//   - backend/opencl: OpenCL through cgo, built with -tags opencl (OpenCL C)
//
// # Errors
//
// Failures are *Error values. errors.Is matches them against the sentinel
// of their kind, e.g. ErrCompile or ErrBadArgument. Error.Fatal reports
// whether the failure should end the caller; resolution failures and bad
// input are recoverable. Nothing in this package exits the process.
//
// # Geometry
//
// With the default GeometryPad policy the global work size is rounded up to
// the kernel's work-group size and the buffers are padded, so any input
// length works on runtimes that require uniform work-groups. GeometryExact
// launches exactly one work-item per element.
package dispatch

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
