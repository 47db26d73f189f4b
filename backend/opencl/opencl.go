//go:build opencl && cgo

package opencl

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/dispatch/compute"
)

// Name is the name the backend registers under.
const Name = "opencl"

func init() {
	compute.Register(Name, func() (compute.Runtime, error) {
		return New(), nil
	})
}

// Runtime is the OpenCL compute runtime.
type Runtime struct {
	logger atomic.Pointer[slog.Logger]
}

var _ compute.Runtime = (*Runtime)(nil)

// New creates an OpenCL runtime.
func New() *Runtime {
	r := &Runtime{}
	r.logger.Store(slog.New(nopHandler{}))
	return r
}

// Name implements compute.Runtime.
func (r *Runtime) Name() string { return Name }

// SetLogger sets the logger used for driver diagnostics.
func (r *Runtime) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	r.logger.Store(l)
}

func (r *Runtime) log() *slog.Logger { return r.logger.Load() }

// Platforms implements compute.Runtime.
func (r *Runtime) Platforms() ([]compute.Platform, error) {
	var count C.cl_uint
	if st := C.clGetPlatformIDs(0, nil, &count); st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpGetPlatforms, st)
	}
	if count == 0 {
		return nil, nil
	}
	ids := make([]C.cl_platform_id, int(count))
	if st := C.clGetPlatformIDs(count, &ids[0], nil); st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpGetPlatforms, st)
	}

	out := make([]compute.Platform, len(ids))
	for i, id := range ids {
		out[i] = &platform{rt: r, id: id}
	}
	return out, nil
}

// platform ids are owned by the ICD loader; Release only invalidates the
// handle.
type platform struct {
	rt       *Runtime
	id       C.cl_platform_id
	released atomic.Bool
}

func (p *platform) Info() compute.PlatformInfo {
	return compute.PlatformInfo{
		Name:    platformString(p.id, C.CL_PLATFORM_NAME),
		Vendor:  platformString(p.id, C.CL_PLATFORM_VENDOR),
		Version: platformString(p.id, C.CL_PLATFORM_VERSION),
	}
}

// Devices passes t through unchanged: compute.DeviceType uses the
// CL_DEVICE_TYPE_* bit values.
func (p *platform) Devices(t compute.DeviceType) ([]compute.Device, error) {
	if p.released.Load() {
		return nil, compute.Errorf(compute.OpGetDevices, compute.StatusInvalidPlatform)
	}
	var count C.cl_uint
	if st := C.clGetDeviceIDs(p.id, C.cl_device_type(t), 0, nil, &count); st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpGetDevices, st)
	}
	if count == 0 {
		return nil, nil
	}
	ids := make([]C.cl_device_id, int(count))
	if st := C.clGetDeviceIDs(p.id, C.cl_device_type(t), count, &ids[0], nil); st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpGetDevices, st)
	}

	out := make([]compute.Device, len(ids))
	for i, id := range ids {
		out[i] = &device{rt: p.rt, id: id}
	}
	return out, nil
}

func (p *platform) Release() error {
	p.released.Store(true)
	return nil
}

type device struct {
	rt *Runtime
	id C.cl_device_id
}

func (d *device) Info() compute.DeviceInfo {
	var rawType C.cl_device_type
	C.clGetDeviceInfo(d.id, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(rawType)), unsafe.Pointer(&rawType), nil)
	var maxGroup C.size_t
	C.clGetDeviceInfo(d.id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(maxGroup)), unsafe.Pointer(&maxGroup), nil)
	return compute.DeviceInfo{
		Name:             deviceString(d.id, C.CL_DEVICE_NAME),
		Vendor:           deviceString(d.id, C.CL_DEVICE_VENDOR),
		Version:          deviceString(d.id, C.CL_DEVICE_VERSION),
		Type:             deviceType(rawType),
		MaxWorkGroupSize: int(maxGroup),
	}
}

func (d *device) CreateContext() (compute.Context, error) {
	var st C.cl_int
	ctx := C.clCreateContext(nil, 1, &d.id, nil, nil, &st)
	if st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpCreateContext, st)
	}
	return &clContext{dev: d, id: ctx}, nil
}

func deviceType(t C.cl_device_type) compute.DeviceType {
	switch {
	case t&C.CL_DEVICE_TYPE_GPU != 0:
		return compute.DeviceTypeGPU
	case t&C.CL_DEVICE_TYPE_CPU != 0:
		return compute.DeviceTypeCPU
	case t&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return compute.DeviceTypeAccelerator
	default:
		return compute.DeviceTypeDefault
	}
}

func platformString(id C.cl_platform_id, param C.cl_platform_info) string {
	var size C.size_t
	if C.clGetPlatformInfo(id, param, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	if C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil) != C.CL_SUCCESS {
		return ""
	}
	return trimNull(buf)
}

func deviceString(id C.cl_device_id, param C.cl_device_info) string {
	var size C.size_t
	if C.clGetDeviceInfo(id, param, 0, nil, &size) != C.CL_SUCCESS || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	if C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil) != C.CL_SUCCESS {
		return ""
	}
	return trimNull(buf)
}

func trimNull(buf []byte) string {
	if n := len(buf); n > 0 && buf[n-1] == 0 {
		buf = buf[:n-1]
	}
	return string(buf)
}

// statusErr reports a driver status. compute.Status shares the OpenCL
// numbering, so codes pass through unchanged.
func statusErr(op compute.Op, st C.cl_int) error {
	return compute.Errorf(op, compute.Status(st))
}

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
