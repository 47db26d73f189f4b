package dispatch

import (
	"encoding/binary"

	"github.com/dustin/go-humanize"

	"github.com/gogpu/dispatch/compute"
)

// elementSize is the byte size of one sequence element.
const elementSize = 4

// buffers are the device buffers of one run.
type buffers struct {
	in, out compute.Buffer
}

// allocBuffers allocates a read-only input buffer initialized from input
// and a write-only output buffer, both holding n elements. Elements of the
// input buffer past len(input) are zero.
func (r *run) allocBuffers(ec *execContext, input []int32, n int) (*buffers, error) {
	size := n * elementSize
	in, err := ec.ctx.CreateBuffer(compute.MemReadOnly|compute.MemCopyHostPtr, size, encodeInts(input, n))
	if err != nil {
		return nil, r.fail(KindBufferAllocationFailure, err)
	}
	r.own("input buffer", in)

	out, err := ec.ctx.CreateBuffer(compute.MemWriteOnly, size, nil)
	if err != nil {
		return nil, r.fail(KindBufferAllocationFailure, err)
	}
	r.own("output buffer", out)

	r.log.Debug("dispatch: buffers allocated",
		"elements", n,
		"padding", n-len(input),
		"size", humanize.IBytes(uint64(size)))
	if len(input) >= 2 {
		r.log.Debug("dispatch: input", "data[1]", input[1])
	}
	return &buffers{in: in, out: out}, nil
}

// encodeInts encodes values as n little-endian int32 elements, zero-padded.
func encodeInts(values []int32, n int) []byte {
	b := make([]byte, n*elementSize)
	for i, v := range values[:min(len(values), n)] {
		binary.LittleEndian.PutUint32(b[i*elementSize:], uint32(v)) //nolint:gosec // two's complement
	}
	return b
}

// decodeInts decodes little-endian int32 elements.
func decodeInts(b []byte) []int32 {
	out := make([]int32, len(b)/elementSize)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*elementSize:])) //nolint:gosec // two's complement
	}
	return out
}
