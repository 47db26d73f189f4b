// Package compute defines the boundary between the dispatch pipeline and a
// compute runtime.
//
// The interfaces mirror the object model of the accelerator APIs the
// pipeline drives: platforms expose devices, a device creates a context, the
// context owns queues, programs and buffers, and programs yield kernels.
// Every object that holds device memory or driver state has a Release
// method; releasing an object twice is a no-op.
//
// Backends live under backend/ and register themselves by name:
//
//	import _ "github.com/gogpu/dispatch/backend/cpu"
//
//	rt, err := compute.Open("cpu")
package compute

// DeviceType filters device enumeration.
type DeviceType uint32

// Device types.
const (
	DeviceTypeDefault DeviceType = 1 << iota
	DeviceTypeCPU
	DeviceTypeGPU
	DeviceTypeAccelerator

	DeviceTypeAll DeviceType = 0xFFFFFFFF
)

// String returns the device type name.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeDefault:
		return "Default"
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeGPU:
		return "GPU"
	case DeviceTypeAccelerator:
		return "Accelerator"
	case DeviceTypeAll:
		return "All"
	default:
		return "Unknown"
	}
}

// MemFlags describe how a kernel may access a buffer and how it is
// initialized.
type MemFlags uint32

// Buffer flags.
const (
	MemReadWrite MemFlags = 1 << iota
	MemWriteOnly
	MemReadOnly

	// MemCopyHostPtr initializes the buffer from the host slice passed to
	// CreateBuffer.
	MemCopyHostPtr
)

// Has reports whether all bits of f2 are set in f.
func (f MemFlags) Has(f2 MemFlags) bool { return f&f2 == f2 }

// PlatformInfo describes a platform.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
}

// DeviceInfo describes a device.
type DeviceInfo struct {
	Name    string
	Vendor  string
	Version string
	Type    DeviceType

	// MaxWorkGroupSize is the device-wide upper bound on work-items per
	// work-group. Zero when unknown.
	MaxWorkGroupSize int
}

// Runtime is the entry point of a compute backend.
type Runtime interface {
	// Name returns the backend name it was registered under.
	Name() string

	// Platforms enumerates the available platforms. An empty result is
	// reported either as an empty slice or as StatusPlatformNotFound.
	Platforms() ([]Platform, error)
}

// Platform groups the devices of one vendor implementation.
type Platform interface {
	Info() PlatformInfo

	// Devices enumerates the devices of type t. An empty result is reported
	// either as an empty slice or as StatusDeviceNotFound.
	Devices(t DeviceType) ([]Device, error)

	// Release frees the platform and invalidates its devices.
	Release() error
}

// Device is an opaque handle to one accelerator.
type Device interface {
	Info() DeviceInfo

	// CreateContext creates a context scoped to exactly this device.
	CreateContext() (Context, error)
}

// Context owns the queues, programs and buffers created through it. All of
// them must be released before the context.
type Context interface {
	// CreateQueue creates an in-order command queue on the context's device.
	CreateQueue() (Queue, error)

	// CreateProgram creates an unbuilt program from kernel source text.
	CreateProgram(source string) (Program, error)

	// CreateBuffer allocates size bytes of device memory. When flags include
	// MemCopyHostPtr the buffer is initialized from host, which must hold at
	// least size bytes.
	CreateBuffer(flags MemFlags, size int, host []byte) (Buffer, error)

	Release() error
}

// Program is kernel source compiled for the context's device.
type Program interface {
	// Build compiles the program. A compile error is reported as
	// StatusBuildProgramFailure and its diagnostics are available through
	// BuildLog.
	Build(options string) error

	// BuildLog returns the compiler log, truncated to limit bytes. A
	// negative limit returns the whole log.
	BuildLog(limit int) (string, error)

	// CreateKernel resolves an exported entry point of a built program.
	CreateKernel(name string) (Kernel, error)

	Release() error
}

// Kernel is a bound entry point of a program.
type Kernel interface {
	Name() string

	// SetArg binds buf to the argument slot index.
	SetArg(index int, buf Buffer) error

	// WorkGroupSize reports the maximum work-group size usable to launch the
	// kernel on the context's device.
	WorkGroupSize() (int, error)

	Release() error
}

// Queue is an in-order command queue: commands execute in submission order.
type Queue interface {
	// EnqueueKernel submits a one-dimensional launch of k over global
	// work-items. A local size of zero lets the runtime choose the grouping.
	EnqueueKernel(k Kernel, global, local int) error

	// ReadBuffer copies len(dst) bytes from the start of buf into dst. A
	// blocking read returns after all previously enqueued commands and the
	// copy itself have completed.
	ReadBuffer(buf Buffer, blocking bool, dst []byte) error

	// Finish blocks until all enqueued commands have completed.
	Finish() error

	Release() error
}

// Buffer is a region of device memory.
type Buffer interface {
	Size() int
	Flags() MemFlags
	Release() error
}
