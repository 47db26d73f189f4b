package cpu

import (
	"sync"

	"github.com/gogpu/dispatch/compute"
	"github.com/gogpu/dispatch/internal/parallel"
)

type cpuContext struct {
	dev  *device
	pool *parallel.Pool

	mu       sync.Mutex
	released bool
}

func newContext(d *device) *cpuContext {
	return &cpuContext{dev: d, pool: parallel.NewPool(d.rt.workers)}
}

func (c *cpuContext) live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.released
}

func (c *cpuContext) CreateQueue() (compute.Queue, error) {
	if !c.live() {
		return nil, compute.Errorf(compute.OpCreateQueue, compute.StatusInvalidContext)
	}
	return &queue{ctx: c}, nil
}

func (c *cpuContext) CreateProgram(source string) (compute.Program, error) {
	if !c.live() {
		return nil, compute.Errorf(compute.OpCreateProgram, compute.StatusInvalidContext)
	}
	if source == "" {
		return nil, compute.Errorf(compute.OpCreateProgram, compute.StatusInvalidValue)
	}
	return &program{ctx: c, source: source}, nil
}

func (c *cpuContext) CreateBuffer(flags compute.MemFlags, size int, host []byte) (compute.Buffer, error) {
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

	b := &buffer{ctx: c, flags: flags, data: make([]int32, size/4)}
	if copyIn {
		decodeInto(b.data, host)
	}
	return b, nil
}

// Release stops the context's workers. Objects created from the context
// must be released first.
func (c *cpuContext) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return nil
	}
	c.released = true
	c.mu.Unlock()

	c.pool.Close()
	return nil
}

type buffer struct {
	ctx   *cpuContext
	flags compute.MemFlags
	data  []int32

	mu       sync.Mutex
	released bool
}

func (b *buffer) Size() int               { return len(b.data) * 4 }
func (b *buffer) Flags() compute.MemFlags { return b.flags }

func (b *buffer) live() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.released
}

func (b *buffer) Release() error {
	b.mu.Lock()
	b.released = true
	b.mu.Unlock()
	return nil
}

func decodeInto(dst []int32, src []byte) {
	for i := range dst {
		dst[i] = int32(uint32(src[i*4]) | uint32(src[i*4+1])<<8 | uint32(src[i*4+2])<<16 | uint32(src[i*4+3])<<24) //nolint:gosec // two's complement reinterpretation
	}
}

func encodeFrom(dst []byte, src []int32) {
	for i := 0; i+4 <= len(dst) && i/4 < len(src); i += 4 {
		v := uint32(src[i/4]) //nolint:gosec // two's complement reinterpretation
		dst[i] = byte(v)
		dst[i+1] = byte(v >> 8)
		dst[i+2] = byte(v >> 16)
		dst[i+3] = byte(v >> 24)
	}
}
