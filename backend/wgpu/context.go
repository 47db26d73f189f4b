//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dispatch/compute"
)

type gpuContext struct {
	rt     *Runtime
	device hal.Device
	queue  hal.Queue
	shared bool

	mu       sync.Mutex
	released bool
	queues   []*queue
}

func (c *gpuContext) live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.released
}

func (c *gpuContext) CreateQueue() (compute.Queue, error) {
	if !c.live() {
		return nil, compute.Errorf(compute.OpCreateQueue, compute.StatusInvalidContext)
	}
	q := &queue{ctx: c}
	c.mu.Lock()
	c.queues = append(c.queues, q)
	c.mu.Unlock()
	return q, nil
}

// idle waits for the work in flight on every live queue of the context.
// Objects a submission may reference are destroyed only after idle, which
// gives Release the deferred semantics of clRelease*.
func (c *gpuContext) idle() {
	c.mu.Lock()
	queues := append([]*queue(nil), c.queues...)
	c.mu.Unlock()
	for _, q := range queues {
		q.mu.Lock()
		if !q.released && len(q.inflight) > 0 {
			if err := q.drain(compute.OpRelease); err != nil {
				c.rt.log().Warn("wgpu: work in flight failed before release", "err", err)
			}
		}
		q.mu.Unlock()
	}
}

// pending reports the number of submissions in flight across the queues.
func (c *gpuContext) pending() int {
	c.mu.Lock()
	queues := append([]*queue(nil), c.queues...)
	c.mu.Unlock()
	n := 0
	for _, q := range queues {
		q.mu.Lock()
		n += len(q.inflight)
		q.mu.Unlock()
	}
	return n
}

func (c *gpuContext) CreateProgram(source string) (compute.Program, error) {
	if !c.live() {
		return nil, compute.Errorf(compute.OpCreateProgram, compute.StatusInvalidContext)
	}
	if source == "" {
		return nil, compute.Errorf(compute.OpCreateProgram, compute.StatusInvalidValue)
	}
	return &program{ctx: c, source: source}, nil
}

func (c *gpuContext) CreateBuffer(flags compute.MemFlags, size int, host []byte) (compute.Buffer, error) {
	if !c.live() {
		return nil, compute.Errorf(compute.OpCreateBuffer, compute.StatusInvalidContext)
	}
	if size <= 0 || size%4 != 0 {
		return nil, compute.Errorf(compute.OpCreateBuffer, compute.StatusInvalidBufferSize)
	}
	copyIn := flags.Has(compute.MemCopyHostPtr)
	if copyIn != (host != nil) || (copyIn && len(host) < size) {
		return nil, compute.Errorf(compute.OpCreateBuffer, compute.StatusInvalidHostPtr)
	}

	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "dispatch_storage",
		Size:  uint64(size), //nolint:gosec // size checked positive
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, compute.Wrap(compute.OpCreateBuffer, compute.StatusMemObjectAllocationFailure,
			fmt.Errorf("create storage buffer: %w", err))
	}
	if copyIn {
		c.queue.WriteBuffer(buf, 0, host[:size])
	}
	return &buffer{ctx: c, buf: buf, flags: flags, size: size}, nil
}

// Release destroys the device unless it belongs to a shared GPU context.
func (c *gpuContext) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.mu.Unlock()

	if !c.shared {
		c.device.Destroy()
	}
	return nil
}

type buffer struct {
	ctx   *gpuContext
	buf   hal.Buffer
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
	b.ctx.idle()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	b.ctx.device.DestroyBuffer(b.buf)
	return nil
}
