package cpu

import (
	"sync"

	"github.com/gogpu/dispatch/compute"
)

// queue is an in-order command queue. Commands are recorded by the enqueue
// calls and executed, in order, by Finish or by a blocking read.
type queue struct {
	ctx *cpuContext

	mu       sync.Mutex
	pending  []func()
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
	in, out, released := kk.args[0], kk.args[1], kk.released
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

	limit := q.ctx.dev.rt.maxGroup
	if local == 0 {
		size, _ := kk.WorkGroupSize()
		local = gcd(global, size)
	}
	if local < 0 || local > limit || global%local != 0 {
		return compute.Errorf(compute.OpEnqueueKernel, compute.StatusInvalidWorkGroupSize)
	}

	fn := kk.fn
	groups := global / local
	pool := q.ctx.pool
	q.pending = append(q.pending, func() {
		pool.Dispatch(groups, func(g int) {
			for gid := g * local; gid < (g+1)*local; gid++ {
				if gid >= len(in.data) || gid >= len(out.data) {
					return
				}
				fn(gid, in.data, out.data)
			}
		})
	})
	q.ctx.dev.rt.log().Debug("cpu: kernel enqueued",
		"kernel", kk.name, "global", global, "local", local, "groups", groups)
	return nil
}

func (q *queue) ReadBuffer(buf compute.Buffer, blocking bool, dst []byte) error {
	b, ok := buf.(*buffer)
	if !ok || b == nil || !b.live() || b.ctx != q.ctx {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidMemObject)
	}
	if len(dst) > b.Size() {
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidValue)
	}

	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return compute.Errorf(compute.OpReadBuffer, compute.StatusInvalidCommandQueue)
	}
	q.pending = append(q.pending, func() { encodeFrom(dst, b.data) })
	q.mu.Unlock()

	if blocking {
		return q.flush(compute.OpReadBuffer)
	}
	return nil
}

func (q *queue) Finish() error {
	return q.flush(compute.OpFinish)
}

func (q *queue) flush(op compute.Op) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return compute.Errorf(op, compute.StatusInvalidCommandQueue)
	}
	cmds := q.pending
	q.pending = nil
	for _, cmd := range cmds {
		cmd()
	}
	return nil
}

// Release drops commands that were never flushed.
func (q *queue) Release() error {
	q.mu.Lock()
	q.released = true
	q.pending = nil
	q.mu.Unlock()
	return nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
