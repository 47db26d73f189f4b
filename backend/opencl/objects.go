//go:build opencl && cgo

package opencl

/*
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>
#include <string.h>

static cl_program dispatch_create_program(cl_context ctx, const char *src, size_t len, cl_int *st) {
	return clCreateProgramWithSource(ctx, 1, &src, &len, st);
}

static cl_int dispatch_set_mem_arg(cl_kernel k, cl_uint index, cl_mem mem) {
	return clSetKernelArg(k, index, sizeof(cl_mem), &mem);
}
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/gogpu/dispatch/compute"
)

type clContext struct {
	dev *device
	id  C.cl_context

	mu       sync.Mutex
	released bool
}

func (c *clContext) live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.released
}

func (c *clContext) CreateQueue() (compute.Queue, error) {
	if !c.live() {
		return nil, compute.Errorf(compute.OpCreateQueue, compute.StatusInvalidContext)
	}
	var st C.cl_int
	q := C.clCreateCommandQueue(c.id, c.dev.id, 0, &st)
	if st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpCreateQueue, st)
	}
	return &queue{ctx: c, id: q}, nil
}

func (c *clContext) CreateProgram(source string) (compute.Program, error) {
	if !c.live() {
		return nil, compute.Errorf(compute.OpCreateProgram, compute.StatusInvalidContext)
	}
	if source == "" {
		return nil, compute.Errorf(compute.OpCreateProgram, compute.StatusInvalidValue)
	}
	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))

	var st C.cl_int
	p := C.dispatch_create_program(c.id, csrc, C.size_t(len(source)), &st)
	if st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpCreateProgram, st)
	}
	return &program{ctx: c, id: p}, nil
}

func (c *clContext) CreateBuffer(flags compute.MemFlags, size int, host []byte) (compute.Buffer, error) {
	if !c.live() {
		return nil, compute.Errorf(compute.OpCreateBuffer, compute.StatusInvalidContext)
	}
	if size <= 0 {
		return nil, compute.Errorf(compute.OpCreateBuffer, compute.StatusInvalidBufferSize)
	}
	copyIn := flags.Has(compute.MemCopyHostPtr)
	if copyIn != (host != nil) || (copyIn && len(host) < size) {
		return nil, compute.Errorf(compute.OpCreateBuffer, compute.StatusInvalidHostPtr)
	}

	var hostPtr unsafe.Pointer
	if copyIn {
		hostPtr = unsafe.Pointer(&host[0])
	}
	var st C.cl_int
	mem := C.clCreateBuffer(c.id, memFlags(flags), C.size_t(size), hostPtr, &st)
	if st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpCreateBuffer, st)
	}
	return &buffer{ctx: c, id: mem, flags: flags, size: size}, nil
}

func memFlags(f compute.MemFlags) C.cl_mem_flags {
	var out C.cl_mem_flags
	if f.Has(compute.MemReadWrite) {
		out |= C.CL_MEM_READ_WRITE
	}
	if f.Has(compute.MemWriteOnly) {
		out |= C.CL_MEM_WRITE_ONLY
	}
	if f.Has(compute.MemReadOnly) {
		out |= C.CL_MEM_READ_ONLY
	}
	if f.Has(compute.MemCopyHostPtr) {
		out |= C.CL_MEM_COPY_HOST_PTR
	}
	return out
}

func (c *clContext) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	if st := C.clReleaseContext(c.id); st != C.CL_SUCCESS {
		return statusErr(compute.OpRelease, st)
	}
	return nil
}

type buffer struct {
	ctx   *clContext
	id    C.cl_mem
	flags compute.MemFlags
	size  int

	mu       sync.Mutex
	released bool
}

func (b *buffer) Size() int               { return b.size }
func (b *buffer) Flags() compute.MemFlags { return b.flags }

func (b *buffer) live() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.released
}

func (b *buffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	if st := C.clReleaseMemObject(b.id); st != C.CL_SUCCESS {
		return statusErr(compute.OpRelease, st)
	}
	return nil
}

type program struct {
	ctx *clContext
	id  C.cl_program

	mu       sync.Mutex
	released bool
}

func (p *program) Build(options string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return compute.Errorf(compute.OpBuildProgram, compute.StatusInvalidProgram)
	}

	var copts *C.char
	if options != "" {
		copts = C.CString(options)
		defer C.free(unsafe.Pointer(copts))
	}
	if st := C.clBuildProgram(p.id, 1, &p.ctx.dev.id, copts, nil, nil); st != C.CL_SUCCESS {
		return statusErr(compute.OpBuildProgram, st)
	}
	return nil
}

func (p *program) BuildLog(limit int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return "", compute.Errorf(compute.OpBuildLog, compute.StatusInvalidProgram)
	}

	dev := p.ctx.dev.id
	var size C.size_t
	if st := C.clGetProgramBuildInfo(p.id, dev, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size); st != C.CL_SUCCESS {
		return "", statusErr(compute.OpBuildLog, st)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, int(size))
	if st := C.clGetProgramBuildInfo(p.id, dev, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil); st != C.CL_SUCCESS {
		return "", statusErr(compute.OpBuildLog, st)
	}
	log := trimNull(buf)
	if limit >= 0 && len(log) > limit {
		log = log[:limit]
	}
	return log, nil
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, compute.Errorf(compute.OpCreateKernel, compute.StatusInvalidProgram)
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var st C.cl_int
	k := C.clCreateKernel(p.id, cname, &st)
	if st != C.CL_SUCCESS {
		return nil, statusErr(compute.OpCreateKernel, st)
	}
	return &kernel{prog: p, id: k, name: name}, nil
}

func (p *program) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	if st := C.clReleaseProgram(p.id); st != C.CL_SUCCESS {
		return statusErr(compute.OpRelease, st)
	}
	return nil
}

type kernel struct {
	prog *program
	id   C.cl_kernel
	name string

	mu       sync.Mutex
	released bool
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetArg(index int, buf compute.Buffer) error {
	if index < 0 {
		return compute.Errorf(compute.OpSetKernelArg, compute.StatusInvalidArgIndex)
	}
	b, ok := buf.(*buffer)
	if !ok || b == nil || !b.live() || b.ctx != k.prog.ctx {
		return compute.Errorf(compute.OpSetKernelArg, compute.StatusInvalidMemObject)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return compute.Errorf(compute.OpSetKernelArg, compute.StatusInvalidKernel)
	}
	if st := C.dispatch_set_mem_arg(k.id, C.cl_uint(index), b.id); st != C.CL_SUCCESS {
		return statusErr(compute.OpSetKernelArg, st)
	}
	return nil
}

func (k *kernel) WorkGroupSize() (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return 0, compute.Errorf(compute.OpWorkGroupInfo, compute.StatusInvalidKernel)
	}
	var size C.size_t
	st := C.clGetKernelWorkGroupInfo(k.id, k.prog.ctx.dev.id, C.CL_KERNEL_WORK_GROUP_SIZE,
		C.size_t(unsafe.Sizeof(size)), unsafe.Pointer(&size), nil)
	if st != C.CL_SUCCESS {
		return 0, statusErr(compute.OpWorkGroupInfo, st)
	}
	return int(size), nil
}

func (k *kernel) Release() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return nil
	}
	k.released = true
	if st := C.clReleaseKernel(k.id); st != C.CL_SUCCESS {
		return statusErr(compute.OpRelease, st)
	}
	return nil
}

// pendingRead is a non-blocking read into C memory, copied to dst once the
// queue has finished.
type pendingRead struct {
	src unsafe.Pointer
	dst []byte
}

type queue struct {
	ctx *clContext
	id  C.cl_command_queue

	mu       sync.Mutex
	reads    []pendingRead
	released bool
}

func (q *queue) EnqueueKernel(k compute.Kernel, global, local int) error {
	kk, ok := k.(*kernel)
	if !ok || kk == nil || kk.prog.ctx != q.ctx {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidKernel)
	}
	if global <= 0 {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidGlobalWorkSize)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidCommandQueue)
	}

	g := C.size_t(global)
	var lp *C.size_t
	if local != 0 {
		l := C.size_t(local)
		lp = &l
	}
	if st := C.clEnqueueNDRangeKernel(q.id, kk.id, 1, nil, &g, lp, 0, nil, nil); st != C.CL_SUCCESS {
		return statusErr(compute.OpEnqueueKernel, st)
	}
	q.ctx.dev.rt.log().Debug("opencl: kernel enqueued", "kernel", kk.name, "global", global, "local", local)
	return nil
}

// ReadBuffer never hands Go memory to the driver beyond the call: blocking
// reads copy synchronously and non-blocking reads land in C memory first.
func (q *queue) ReadBuffer(buf compute.Buffer, blocking bool, dst []byte) error {
	b, ok := buf.(*buffer)
	if !ok || b == nil || !b.live() || b.ctx != q.ctx {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidMemObject)
	}
	if len(dst) > b.size {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidValue)
	}
	if len(dst) == 0 {
		if blocking {
			return q.Finish()
		}
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidCommandQueue)
	}

	n := C.size_t(len(dst))
	if blocking {
		st := C.clEnqueueReadBuffer(q.id, b.id, C.CL_TRUE, 0, n, unsafe.Pointer(&dst[0]), 0, nil, nil)
		if st != C.CL_SUCCESS {
			return statusErr(compute.OpReadBuffer, st)
		}
		return nil
	}

	src := C.malloc(n)
	if src == nil {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusOutOfHostMemory)
	}
	if st := C.clEnqueueReadBuffer(q.id, b.id, C.CL_FALSE, 0, n, src, 0, nil, nil); st != C.CL_SUCCESS {
		C.free(src)
		return statusErr(compute.OpReadBuffer, st)
	}
	q.reads = append(q.reads, pendingRead{src: src, dst: dst})
	return nil
}

func (q *queue) Finish() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return compute.Errorf(compute.OpFinish, compute.StatusInvalidCommandQueue)
	}
	st := C.clFinish(q.id)
	q.completeReads(st == C.CL_SUCCESS)
	if st != C.CL_SUCCESS {
		return statusErr(compute.OpFinish, st)
	}
	return nil
}

// completeReads delivers or drops the non-blocking reads. Callers hold q.mu.
func (q *queue) completeReads(deliver bool) {
	for _, r := range q.reads {
		if deliver {
			C.memcpy(unsafe.Pointer(&r.dst[0]), r.src, C.size_t(len(r.dst)))
		}
		C.free(r.src)
	}
	q.reads = nil
}

func (q *queue) Release() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return nil
	}
	q.released = true
	C.clFinish(q.id)
	q.completeReads(false)
	if st := C.clReleaseCommandQueue(q.id); st != C.CL_SUCCESS {
		return statusErr(compute.OpRelease, st)
	}
	return nil
}
