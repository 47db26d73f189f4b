// Package computetest provides a scriptable in-memory compute runtime for
// testing code that drives a compute.Runtime.
//
// The runtime executes kernels as Go functions, can be told to fail any
// runtime operation with a chosen status, and counts the objects that are
// still alive so tests can check that every exit path releases what it
// created.
package computetest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/dispatch/compute"
)

// KernelFunc computes work-item gid. in and out are argument slots 0 and 1.
type KernelFunc func(gid int, in, out []int32)

// Square is the reference "sample" kernel: out[i] = in[i] * in[i].
func Square(gid int, in, out []int32) { out[gid] = in[gid] * in[gid] }

// Increment computes out[i] = in[i] + 1.
func Increment(gid int, in, out []int32) { out[gid] = in[gid] + 1 }

// Launch records one EnqueueKernel call that was accepted.
type Launch struct {
	Kernel string
	Global int
	Local  int
}

// Runtime is a fake compute.Runtime. Configure the exported fields before
// the first call to Platforms.
type Runtime struct {
	// PlatformCount and DeviceCount set how many platforms, and devices per
	// platform, are enumerated. Zero means none.
	PlatformCount int
	DeviceCount   int

	// DeviceType is the type of every device. Devices only match a
	// DeviceType filter that contains this type.
	DeviceType compute.DeviceType

	// GroupSize is reported by Kernel.WorkGroupSize.
	GroupSize int

	// MaxWorkGroupSize bounds the local size accepted by EnqueueKernel.
	MaxWorkGroupSize int

	// Kernels maps entry point names to their implementation. Only names in
	// the map can be created from a built program.
	Kernels map[string]KernelFunc

	// BuildLog is the compiler log reported after a failed build.
	BuildLog string

	mu       sync.Mutex
	failures map[compute.Op]compute.Status
	live     int
	calls    []compute.Op
	released []string
	launches []Launch
	pending  int
	early    []string
}

// New returns a runtime with one platform holding one GPU device, a
// work-group size of 4 and the Square kernel registered as "sample" and
// Increment as "increment".
func New() *Runtime {
	return &Runtime{
		PlatformCount:    1,
		DeviceCount:      1,
		DeviceType:       compute.DeviceTypeGPU,
		GroupSize:        4,
		MaxWorkGroupSize: 256,
		Kernels: map[string]KernelFunc{
			"sample":    Square,
			"increment": Increment,
		},
		BuildLog: "error: expected ';'",
	}
}

// Name implements compute.Runtime.
func (r *Runtime) Name() string { return "fake" }

// Fail makes every subsequent call of op fail with status.
func (r *Runtime) Fail(op compute.Op, status compute.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = make(map[compute.Op]compute.Status)
	}
	r.failures[op] = status
}

// Live returns the number of created objects that have not been released.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Calls returns the operations invoked so far, in order.
func (r *Runtime) Calls() []compute.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]compute.Op(nil), r.calls...)
}

// Called reports whether op was invoked at least once.
func (r *Runtime) Called(op compute.Op) bool {
	for _, c := range r.Calls() {
		if c == op {
			return true
		}
	}
	return false
}

// Released returns the kinds of the released objects in release order, e.g.
// "buffer", "kernel", "program", "queue", "context", "platform".
func (r *Runtime) Released() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

// Launches returns the accepted kernel launches.
func (r *Runtime) Launches() []Launch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Launch(nil), r.launches...)
}

// ReleasedInFlight returns the kinds of the buffers, kernels and programs
// released while an enqueued launch had not yet been completed by Finish or
// a successful blocking read.
func (r *Runtime) ReleasedInFlight() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.early...)
}

// call records op and returns the injected failure for it, if any.
func (r *Runtime) call(op compute.Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
	if st, ok := r.failures[op]; ok {
		return compute.Wrap(op, st, fmt.Errorf("injected failure"))
	}
	return nil
}

func (r *Runtime) acquire() {
	r.mu.Lock()
	r.live++
	r.mu.Unlock()
}

// handle is embedded in every releasable object.
type handle struct {
	rt       *Runtime
	kind     string
	released bool
}

func (h *handle) Release() error {
	h.rt.mu.Lock()
	defer h.rt.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	h.rt.live--
	h.rt.released = append(h.rt.released, h.kind)
	if h.rt.pending > 0 && (h.kind == "buffer" || h.kind == "kernel" || h.kind == "program") {
		h.rt.early = append(h.rt.early, h.kind)
	}
	if st, ok := h.rt.failures[compute.OpRelease]; ok {
		return compute.Errorf(compute.OpRelease, st)
	}
	return nil
}

func (h *handle) alive() bool {
	h.rt.mu.Lock()
	defer h.rt.mu.Unlock()
	return !h.released
}

func (r *Runtime) newHandle(kind string) handle {
	r.acquire()
	return handle{rt: r, kind: kind}
}

// Platforms implements compute.Runtime.
func (r *Runtime) Platforms() ([]compute.Platform, error) {
	if err := r.call(compute.OpGetPlatforms); err != nil {
		return nil, err
	}
	platforms := make([]compute.Platform, r.PlatformCount)
	for i := range platforms {
		platforms[i] = &platform{handle: r.newHandle("platform"), index: i}
	}
	return platforms, nil
}

type platform struct {
	handle
	index int
}

func (p *platform) Info() compute.PlatformInfo {
	return compute.PlatformInfo{
		Name:    fmt.Sprintf("fake platform %d", p.index),
		Vendor:  "computetest",
		Version: "OpenCL 1.2 fake",
	}
}

func (p *platform) Devices(t compute.DeviceType) ([]compute.Device, error) {
	if err := p.rt.call(compute.OpGetDevices); err != nil {
		return nil, err
	}
	if t&p.rt.DeviceType == 0 {
		return nil, compute.Errorf(compute.OpGetDevices, compute.StatusDeviceNotFound)
	}
	devices := make([]compute.Device, p.rt.DeviceCount)
	for i := range devices {
		devices[i] = &device{rt: p.rt, name: fmt.Sprintf("fake device %d.%d", p.index, i)}
	}
	return devices, nil
}

type device struct {
	rt   *Runtime
	name string
}

func (d *device) Info() compute.DeviceInfo {
	return compute.DeviceInfo{
		Name:             d.name,
		Vendor:           "computetest",
		Version:          "1.0",
		Type:             d.rt.DeviceType,
		MaxWorkGroupSize: d.rt.MaxWorkGroupSize,
	}
}

func (d *device) CreateContext() (compute.Context, error) {
	if err := d.rt.call(compute.OpCreateContext); err != nil {
		return nil, err
	}
	return &fakeContext{handle: d.rt.newHandle("context")}, nil
}

type fakeContext struct {
	handle
}

func (c *fakeContext) CreateQueue() (compute.Queue, error) {
	if err := c.rt.call(compute.OpCreateQueue); err != nil {
		return nil, err
	}
	return &queue{handle: c.rt.newHandle("queue"), ctx: c}, nil
}

func (c *fakeContext) CreateProgram(source string) (compute.Program, error) {
	if err := c.rt.call(compute.OpCreateProgram); err != nil {
		return nil, err
	}
	if source == "" {
		return nil, compute.Errorf(compute.OpCreateProgram, compute.StatusInvalidValue)
	}
	return &program{handle: c.rt.newHandle("program"), source: source}, nil
}

func (c *fakeContext) CreateBuffer(flags compute.MemFlags, size int, host []byte) (compute.Buffer, error) {
	if err := c.rt.call(compute.OpCreateBuffer); err != nil {
		return nil, err
	}
	if size <= 0 || size%4 != 0 {
		return nil, compute.Errorf(compute.OpCreateBuffer, compute.StatusInvalidBufferSize)
	}
	copyIn := flags.Has(compute.MemCopyHostPtr)
	if copyIn != (host != nil) || (copyIn && len(host) < size) {
		return nil, compute.Errorf(compute.OpCreateBuffer, compute.StatusInvalidHostPtr)
	}
	b := &buffer{handle: c.rt.newHandle("buffer"), flags: flags, data: make([]int32, size/4)}
	if copyIn {
		for i := range b.data {
			b.data[i] = int32(binary.LittleEndian.Uint32(host[i*4:])) //nolint:gosec // two's complement
		}
	}
	return b, nil
}

type buffer struct {
	handle
	flags compute.MemFlags
	data  []int32
}

func (b *buffer) Size() int               { return len(b.data) * 4 }
func (b *buffer) Flags() compute.MemFlags { return b.flags }

type program struct {
	handle
	source string
	built  bool
	log    string
}

func (p *program) Build(options string) error {
	if err := p.rt.call(compute.OpBuildProgram); err != nil {
		p.log = p.rt.BuildLog
		return err
	}
	p.built = true
	return nil
}

func (p *program) BuildLog(limit int) (string, error) {
	if err := p.rt.call(compute.OpBuildLog); err != nil {
		return "", err
	}
	if limit >= 0 && len(p.log) > limit {
		return p.log[:limit], nil
	}
	return p.log, nil
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	if err := p.rt.call(compute.OpCreateKernel); err != nil {
		return nil, err
	}
	if !p.built {
		return nil, compute.Errorf(compute.OpCreateKernel, compute.StatusInvalidProgramExecutable)
	}
	fn, ok := p.rt.Kernels[name]
	if !ok {
		return nil, compute.Errorf(compute.OpCreateKernel, compute.StatusInvalidKernelName)
	}
	return &kernel{handle: p.rt.newHandle("kernel"), name: name, fn: fn}, nil
}

type kernel struct {
	handle
	name string
	fn   KernelFunc
	args [2]*buffer
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetArg(index int, buf compute.Buffer) error {
	if err := k.rt.call(compute.OpSetKernelArg); err != nil {
		return err
	}
	if index < 0 || index >= len(k.args) {
		return compute.Errorf(compute.OpSetKernelArg, compute.StatusInvalidArgIndex)
	}
	b, ok := buf.(*buffer)
	if !ok || b == nil || !b.alive() {
		return compute.Errorf(compute.OpSetKernelArg, compute.StatusInvalidMemObject)
	}
	k.args[index] = b
	return nil
}

func (k *kernel) WorkGroupSize() (int, error) {
	if err := k.rt.call(compute.OpWorkGroupInfo); err != nil {
		return 0, err
	}
	return k.rt.GroupSize, nil
}

type queue struct {
	handle
	ctx *fakeContext
}

// EnqueueKernel runs the kernel immediately. Like an OpenCL 1.x runtime it
// rejects a local size that does not divide the global size, and it fails
// with StatusOutOfResources when a work-item would index past a bound
// buffer.
func (q *queue) EnqueueKernel(k compute.Kernel, global, local int) error {
	if err := q.rt.call(compute.OpEnqueueKernel); err != nil {
		return err
	}
	kk, ok := k.(*kernel)
	if !ok || !kk.alive() {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidKernel)
	}
	in, out := kk.args[0], kk.args[1]
	if in == nil || out == nil {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidKernelArgs)
	}
	if global <= 0 {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidGlobalWorkSize)
	}
	if local < 0 || local > q.rt.MaxWorkGroupSize || (local > 0 && global%local != 0) {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidWorkGroupSize)
	}
	if global > len(in.data) || global > len(out.data) {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusOutOfResources)
	}
	for gid := range global {
		kk.fn(gid, in.data, out.data)
	}

	q.rt.mu.Lock()
	q.rt.launches = append(q.rt.launches, Launch{Kernel: kk.name, Global: global, Local: local})
	q.rt.pending++
	q.rt.mu.Unlock()
	return nil
}

func (q *queue) ReadBuffer(buf compute.Buffer, blocking bool, dst []byte) error {
	if err := q.rt.call(compute.OpReadBuffer); err != nil {
		return err
	}
	b, ok := buf.(*buffer)
	if !ok || b == nil || !b.alive() {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidMemObject)
	}
	if len(dst) > b.Size() {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidValue)
	}
	for i := 0; i+4 <= len(dst); i += 4 {
		binary.LittleEndian.PutUint32(dst[i:], uint32(b.data[i/4])) //nolint:gosec // two's complement
	}
	if blocking {
		q.complete()
	}
	return nil
}

func (q *queue) Finish() error {
	if err := q.rt.call(compute.OpFinish); err != nil {
		return err
	}
	q.complete()
	return nil
}

// complete marks every launch on the runtime as done.
func (q *queue) complete() {
	q.rt.mu.Lock()
	q.rt.pending = 0
	q.rt.mu.Unlock()
}

var (
	_ compute.Runtime = (*Runtime)(nil)
	_ compute.Context = (*fakeContext)(nil)
	_ compute.Queue   = (*queue)(nil)
	_ compute.Program = (*program)(nil)
	_ compute.Kernel  = (*kernel)(nil)
	_ compute.Buffer  = (*buffer)(nil)
)
