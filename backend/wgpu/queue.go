//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dispatch/compute"
)

// waitTimeout bounds a single fence wait.
const waitTimeout = 5 * time.Second

// submission is a command buffer in flight and the objects it references.
type submission struct {
	fence     hal.Fence
	cmdBuf    hal.CommandBuffer
	bindGroup hal.BindGroup
}

// queue submits every command on its own fence. Submissions on one
// hal.Queue execute in order, so waiting on the last fence observes all
// earlier work.
type queue struct {
	ctx *gpuContext

	mu       sync.Mutex
	inflight []submission
	released bool
}

func (q *queue) EnqueueKernel(k compute.Kernel, global, local int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released || !q.ctx.live() {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidCommandQueue)
	}

	kk, ok := k.(*kernel)
	if !ok || kk == nil || kk.prog.ctx != q.ctx {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidKernel)
	}
	kk.mu.Lock()
	in, out, released, pipeline, layout := kk.args[0], kk.args[1], kk.released, kk.pipeline, kk.bindLayout
	kk.mu.Unlock()
	if released {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidKernel)
	}
	if in == nil || out == nil {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidKernelArgs)
	}
	if global <= 0 {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidGlobalWorkSize)
	}
	if local < 0 || local > maxInvocations || (local > 0 && global%local != 0) {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidWorkGroupSize)
	}

	size, _ := kk.WorkGroupSize()
	groups := (global + size - 1) / size

	dev := q.ctx.device
	bg, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  kk.name + "_bind_group",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: in.buf.NativeHandle(), Offset: 0, Size: uint64(in.size)}},   //nolint:gosec // buffer sizes are positive
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: out.buf.NativeHandle(), Offset: 0, Size: uint64(out.size)}}, //nolint:gosec // buffer sizes are positive
		},
	})
	if err != nil {
		return compute.Wrap(compute.OpEnqueueKernel, compute.StatusOutOfResources,
			fmt.Errorf("create bind group: %w", err))
	}

	err = q.submit(compute.OpEnqueueKernel, bg, func(enc hal.CommandEncoder) {
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: kk.name + "_pass"})
		pass.SetPipeline(pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(uint32(groups), 1, 1) //nolint:gosec // groups bounded by global
		pass.End()
	})
	if err != nil {
		return err
	}
	q.ctx.rt.log().Debug("wgpu: kernel enqueued",
		"kernel", kk.name, "global", global, "local", size, "groups", groups)
	return nil
}

// submit records one command buffer and submits it. On success bg is owned
// by the submission; on failure it is destroyed. Callers hold q.mu.
func (q *queue) submit(op compute.Op, bg hal.BindGroup, record func(hal.CommandEncoder)) error {
	dev := q.ctx.device
	fail := func(err error) error {
		if bg != nil {
			dev.DestroyBindGroup(bg)
		}
		return compute.Wrap(op, compute.StatusOutOfResources, err)
	}

	encoder, err := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "dispatch_encoder"})
	if err != nil {
		return fail(fmt.Errorf("create command encoder: %w", err))
	}
	if err := encoder.BeginEncoding("dispatch"); err != nil {
		return fail(fmt.Errorf("begin encoding: %w", err))
	}
	record(encoder)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fail(fmt.Errorf("end encoding: %w", err))
	}
	fence, err := dev.CreateFence()
	if err != nil {
		dev.FreeCommandBuffer(cmdBuf)
		return fail(fmt.Errorf("create fence: %w", err))
	}
	if err := q.ctx.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		dev.DestroyFence(fence)
		dev.FreeCommandBuffer(cmdBuf)
		return fail(fmt.Errorf("submit: %w", err))
	}
	q.inflight = append(q.inflight, submission{fence: fence, cmdBuf: cmdBuf, bindGroup: bg})
	return nil
}

// ReadBuffer copies through a mappable staging buffer. Reads always
// complete before returning, so blocking and non-blocking reads behave the
// same.
func (q *queue) ReadBuffer(buf compute.Buffer, _ bool, dst []byte) error {
	b, ok := buf.(*buffer)
	if !ok || b == nil || !b.live() || b.ctx != q.ctx {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidMemObject)
	}
	if len(dst) > b.Size() {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidValue)
	}
	if len(dst) == 0 {
		return q.Finish()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidCommandQueue)
	}

	dev := q.ctx.device
	size := uint64(len(dst))
	staging, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "dispatch_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return compute.Wrap(compute.OpReadBuffer, compute.StatusMemObjectAllocationFailure,
			fmt.Errorf("create staging buffer: %w", err))
	}
	defer dev.DestroyBuffer(staging)

	err = q.submit(compute.OpReadBuffer, nil, func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: size},
		})
	})
	if err != nil {
		return err
	}
	if err := q.drain(compute.OpReadBuffer); err != nil {
		return err
	}
	if err := q.ctx.queue.ReadBuffer(staging, 0, dst); err != nil {
		return compute.Wrap(compute.OpReadBuffer, compute.StatusOutOfResources,
			fmt.Errorf("readback: %w", err))
	}
	return nil
}

func (q *queue) Finish() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return compute.Errorf(compute.OpFinish, compute.StatusInvalidCommandQueue)
	}
	return q.drain(compute.OpFinish)
}

// drain waits for every submission in flight and frees its objects. Callers
// hold q.mu.
func (q *queue) drain(op compute.Op) error {
	dev := q.ctx.device
	var firstErr error
	for _, s := range q.inflight {
		ok, err := dev.Wait(s.fence, 1, waitTimeout)
		if (err != nil || !ok) && firstErr == nil {
			firstErr = compute.Wrap(op, compute.StatusOutOfResources,
				fmt.Errorf("wait for GPU: ok=%v err=%w", ok, err))
		}
		dev.DestroyFence(s.fence)
		dev.FreeCommandBuffer(s.cmdBuf)
		if s.bindGroup != nil {
			dev.DestroyBindGroup(s.bindGroup)
		}
	}
	q.inflight = nil
	return firstErr
}

// Release waits for work in flight so its objects can be freed.
func (q *queue) Release() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return nil
	}
	q.released = true
	if err := q.drain(compute.OpRelease); err != nil {
		q.ctx.rt.log().Warn("wgpu: queue released with failed work", "err", err)
	}
	return nil
}
