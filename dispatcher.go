package dispatch

import "github.com/gogpu/dispatch/compute"

// geometry is the launch shape of a run.
type geometry struct {
	global int
	local  int // zero lets the runtime choose
}

// planGeometry queries the kernel's work-group size and derives the launch
// shape for n elements under the pipeline's geometry and fallback policies.
func (r *run) planGeometry(kern compute.Kernel, n int) (geometry, error) {
	local, err := kern.WorkGroupSize()
	if err == nil && local <= 0 {
		err = compute.Errorf(compute.OpWorkGroupInfo, compute.StatusInvalidValue)
	}
	if err != nil {
		if r.p.opts.fallback == FallbackFail {
			return geometry{}, r.fail(KindWorkGroupQueryFailure, err)
		}
		e := newError(KindWorkGroupQueryFailure, r.state, err)
		r.log.Warn("dispatch: work-group size query failed, runtime chooses grouping",
			"kind", e.Kind, "class", e.Class, "status", e.Status, "err", err)
		return geometry{global: n}, nil
	}

	g := geometry{global: n, local: local}
	if r.p.opts.geometry == GeometryPad {
		g.global = (n + local - 1) / local * local
	}
	r.log.Debug("dispatch: geometry",
		"policy", r.p.opts.geometry, "n", n, "global", g.global, "local", g.local)
	return g, nil
}

// bindArgs binds the input buffer to slot 0 and the output buffer to slot 1.
func (r *run) bindArgs(kern compute.Kernel, bufs *buffers) error {
	if err := kern.SetArg(0, bufs.in); err != nil {
		return r.fail(KindInvalidKernelArgument, err)
	}
	if err := kern.SetArg(1, bufs.out); err != nil {
		return r.fail(KindInvalidKernelArgument, err)
	}
	return nil
}

// launch enqueues the kernel and reads back the first n output elements
// with a blocking read, which waits for the launch on the in-order queue.
func (r *run) launch(ec *execContext, kern compute.Kernel, bufs *buffers, g geometry, n int) ([]int32, error) {
	if err := ec.queue.EnqueueKernel(kern, g.global, g.local); err != nil {
		return nil, r.fail(KindEnqueueFailure, err)
	}
	r.inflight = ec.queue
	r.enter(StateDispatched)

	dst := make([]byte, n*elementSize)
	if err := ec.queue.ReadBuffer(bufs.out, true, dst); err != nil {
		return nil, r.fail(KindReadbackFailure, err)
	}
	r.inflight = nil
	r.log.Debug("dispatch: readback complete", "size", len(dst))
	return decodeInts(dst), nil
}
