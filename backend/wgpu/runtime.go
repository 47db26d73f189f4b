//go:build !nogpu

package wgpu

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dispatch/compute"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Name is the name the backend registers under.
const Name = "wgpu"

// maxInvocations is the WebGPU default for maxComputeInvocationsPerWorkgroup,
// the limit devices are opened with.
const maxInvocations = 256

func init() {
	compute.Register(Name, func() (compute.Runtime, error) {
		return New(), nil
	})
}

// Runtime is the wgpu compute runtime. It exposes the Vulkan instance as a
// single platform whose devices are the instance's adapters.
type Runtime struct {
	shared *sharedDevice
	logger atomic.Pointer[slog.Logger]
}

var _ compute.Runtime = (*Runtime)(nil)

// sharedDevice is a device owned by someone else.
type sharedDevice struct {
	device hal.Device
	queue  hal.Queue
}

// New creates a runtime that opens its own Vulkan instance and devices.
func New() *Runtime {
	r := &Runtime{}
	r.logger.Store(slog.New(nopHandler{}))
	return r
}

// NewShared creates a runtime that runs on the device of an existing GPU
// context, e.g. a gogpu window. The provider must also expose the HAL
// objects through HalDevice() any and HalQueue() any. The shared device is
// never destroyed by the runtime.
func NewShared(provider gpucontext.DeviceProvider) (*Runtime, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	r := New()
	r.shared = &sharedDevice{device: device, queue: queue}
	return r, nil
}

// Name implements compute.Runtime.
func (r *Runtime) Name() string { return Name }

// SetLogger sets the logger used for adapter selection and launch
// diagnostics.
func (r *Runtime) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	r.logger.Store(l)
}

func (r *Runtime) log() *slog.Logger { return r.logger.Load() }

// Platforms implements compute.Runtime.
func (r *Runtime) Platforms() ([]compute.Platform, error) {
	if r.shared != nil {
		return []compute.Platform{&platform{rt: r}}, nil
	}

	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, compute.Wrap(compute.OpGetPlatforms, compute.StatusPlatformNotFound,
			fmt.Errorf("vulkan backend not available"))
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, compute.Wrap(compute.OpGetPlatforms, compute.StatusPlatformNotFound,
			fmt.Errorf("create instance: %w", err))
	}
	return []compute.Platform{&platform{rt: r, instance: instance}}, nil
}

type platform struct {
	rt       *Runtime
	instance hal.Instance // nil for a shared device
	released bool
}

func (p *platform) Info() compute.PlatformInfo {
	return compute.PlatformInfo{Name: "gogpu/wgpu Vulkan", Vendor: "gogpu", Version: "Vulkan"}
}

func (p *platform) Devices(t compute.DeviceType) ([]compute.Device, error) {
	if p.released {
		return nil, compute.Errorf(compute.OpGetDevices, compute.StatusInvalidPlatform)
	}
	if p.instance == nil {
		if t&(compute.DeviceTypeGPU|compute.DeviceTypeDefault) == 0 {
			return nil, compute.Errorf(compute.OpGetDevices, compute.StatusDeviceNotFound)
		}
		return []compute.Device{&device{rt: p.rt, name: "shared", typ: compute.DeviceTypeGPU}}, nil
	}

	adapters := p.instance.EnumerateAdapters(nil)
	devices := make([]*device, 0, len(adapters))
	for i := range adapters {
		typ := deviceType(adapters[i].Info.DeviceType)
		if t&typ == 0 && t != compute.DeviceTypeDefault {
			continue
		}
		devices = append(devices, &device{rt: p.rt, adapter: &adapters[i], name: adapters[i].Info.Name, typ: typ})
	}
	if len(devices) == 0 {
		return nil, compute.Errorf(compute.OpGetDevices, compute.StatusDeviceNotFound)
	}

	// Hardware GPUs first, in enumeration order.
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].typ == compute.DeviceTypeGPU && devices[j].typ != compute.DeviceTypeGPU
	})
	if t == compute.DeviceTypeDefault {
		devices = devices[:1]
	}
	out := make([]compute.Device, len(devices))
	for i, d := range devices {
		out[i] = d
	}
	return out, nil
}

func deviceType(t gputypes.DeviceType) compute.DeviceType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
		return compute.DeviceTypeGPU
	default:
		// Software and virtual adapters.
		return compute.DeviceTypeAccelerator
	}
}

func (p *platform) Release() error {
	if p.released {
		return nil
	}
	p.released = true
	if p.instance != nil {
		p.instance.Destroy()
		p.instance = nil
	}
	return nil
}

type device struct {
	rt      *Runtime
	adapter *hal.ExposedAdapter // nil for a shared device
	name    string
	typ     compute.DeviceType
}

func (d *device) Info() compute.DeviceInfo {
	return compute.DeviceInfo{
		Name:             d.name,
		Vendor:           "gogpu",
		Version:          "Vulkan",
		Type:             d.typ,
		MaxWorkGroupSize: maxInvocations,
	}
}

func (d *device) CreateContext() (compute.Context, error) {
	if d.adapter == nil {
		s := d.rt.shared
		return &gpuContext{rt: d.rt, device: s.device, queue: s.queue, shared: true}, nil
	}
	openDev, err := d.adapter.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, compute.Wrap(compute.OpCreateContext, compute.StatusDeviceNotAvailable,
			fmt.Errorf("open device: %w", err))
	}
	d.rt.log().Info("wgpu: device opened", "adapter", d.name, "type", d.typ)
	return &gpuContext{rt: d.rt, device: openDev.Device, queue: openDev.Queue}, nil
}

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
