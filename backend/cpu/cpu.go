// Package cpu is a reference compute runtime that runs on the host.
//
// Programs are WGSL. Build compiles the source to SPIR-V with naga, so syntax
// and type errors produce a real compiler log, and reflects the entry points
// and their declared work-group size from the SPIR-V module. Execution does
// not interpret SPIR-V: each entry point is backed by a host implementation
// registered with RegisterKernel for one exact source text. A kernel can
// only be created when the compiled module exports the entry point and an
// implementation is registered for that source and entry point; any other
// source fails CreateKernel with StatusInvalidKernelDefinition. The builtin
// kernels of the kernels package are registered. Work-groups are spread
// over a worker pool owned by the context.
//
// Buffers hold 32-bit signed integers; their byte size must be a multiple of
// four.
//
// The backend registers itself as "cpu":
//
//	import _ "github.com/gogpu/dispatch/backend/cpu"
package cpu

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/dispatch/compute"
	"github.com/gogpu/dispatch/kernels"
)

// Name is the name the backend registers under.
const Name = "cpu"

// DefaultMaxWorkGroupSize is the device-wide work-group limit reported when
// no WithMaxWorkGroupSize option is given.
const DefaultMaxWorkGroupSize = 256

func init() {
	compute.Register(Name, func() (compute.Runtime, error) {
		return New(), nil
	})
}

// KernelFunc computes the work-item gid of a launch. in and out are the
// buffers bound to argument slots 0 and 1.
type KernelFunc func(gid int, in, out []int32)

// hostKey identifies a host implementation: the SHA-256 of the WGSL source
// and the entry point name.
type hostKey struct {
	source [sha256.Size]byte
	entry  string
}

func keyOf(source, entry string) hostKey {
	return hostKey{source: sha256.Sum256([]byte(source)), entry: entry}
}

var (
	hostMu      sync.RWMutex
	hostKernels = map[hostKey]KernelFunc{
		keyOf(kernels.SampleWGSL, kernels.EntrySample):    func(i int, in, out []int32) { out[i] = in[i] * in[i] },
		keyOf(kernels.SampleWGSL, kernels.EntryIncrement): func(i int, in, out []int32) { out[i] = in[i] + 1 },
	}
)

// RegisterKernel installs fn as the host implementation of the entry point
// entry of the WGSL program source. The source must match the program text
// byte for byte; fn must compute what the WGSL entry point computes.
func RegisterKernel(source, entry string, fn KernelFunc) {
	if source == "" || entry == "" || fn == nil {
		panic("cpu: RegisterKernel requires a source, an entry point and a function")
	}
	hostMu.Lock()
	hostKernels[keyOf(source, entry)] = fn
	hostMu.Unlock()
}

func hostKernel(source, entry string) (KernelFunc, bool) {
	hostMu.RLock()
	defer hostMu.RUnlock()
	fn, ok := hostKernels[keyOf(source, entry)]
	return fn, ok
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithWorkers sets the number of worker goroutines per context.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runtime) { r.workers = n }
}

// WithMaxWorkGroupSize sets the device-wide work-group limit.
func WithMaxWorkGroupSize(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxGroup = n
		}
	}
}

// Runtime is the cpu compute runtime. It exposes one platform with one
// device.
type Runtime struct {
	workers  int
	maxGroup int

	logger atomic.Pointer[slog.Logger]
}

var _ compute.Runtime = (*Runtime)(nil)

// New creates a cpu runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{maxGroup: DefaultMaxWorkGroupSize}
	for _, opt := range opts {
		opt(r)
	}
	r.logger.Store(slog.New(nopHandler{}))
	return r
}

// Name implements compute.Runtime.
func (r *Runtime) Name() string { return Name }

// SetLogger sets the logger used for build and launch diagnostics.
func (r *Runtime) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	r.logger.Store(l)
}

func (r *Runtime) log() *slog.Logger { return r.logger.Load() }

// Platforms implements compute.Runtime.
func (r *Runtime) Platforms() ([]compute.Platform, error) {
	return []compute.Platform{&platform{rt: r}}, nil
}

type platform struct {
	rt *Runtime
}

func (p *platform) Info() compute.PlatformInfo {
	return compute.PlatformInfo{Name: "gogpu CPU reference", Vendor: "gogpu", Version: "1.0"}
}

func (p *platform) Devices(t compute.DeviceType) ([]compute.Device, error) {
	if t&(compute.DeviceTypeCPU|compute.DeviceTypeDefault) == 0 {
		return nil, compute.Errorf(compute.OpGetDevices, compute.StatusDeviceNotFound)
	}
	return []compute.Device{&device{rt: p.rt}}, nil
}

func (p *platform) Release() error { return nil }

type device struct {
	rt *Runtime
}

func (d *device) Info() compute.DeviceInfo {
	return compute.DeviceInfo{
		Name:             "cpu",
		Vendor:           "gogpu",
		Version:          "1.0",
		Type:             compute.DeviceTypeCPU,
		MaxWorkGroupSize: d.rt.maxGroup,
	}
}

func (d *device) CreateContext() (compute.Context, error) {
	return newContext(d), nil
}

// nopHandler discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
