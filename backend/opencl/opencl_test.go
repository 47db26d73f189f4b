//go:build opencl && cgo

package opencl

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/dispatch/compute"
	"github.com/gogpu/dispatch/kernels"
)

func TestFlagsMatchDriver(t *testing.T) {
	if memFlags(compute.MemReadOnly|compute.MemCopyHostPtr) == 0 {
		t.Error("memFlags dropped all bits")
	}
	if got := deviceType(4); got != compute.DeviceTypeGPU {
		t.Errorf("deviceType(CL_DEVICE_TYPE_GPU) = %v", got)
	}
}

func openContext(t *testing.T) compute.Context {
	t.Helper()
	platforms, err := New().Platforms()
	if err != nil || len(platforms) == 0 {
		t.Skipf("no OpenCL platform: %v", err)
	}
	devices, err := platforms[0].Devices(compute.DeviceTypeAll)
	if err != nil || len(devices) == 0 {
		t.Skipf("no OpenCL device: %v", err)
	}
	ctx, err := devices[0].CreateContext()
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Release() })
	return ctx
}

func TestSample(t *testing.T) {
	ctx := openContext(t)

	const n = 64
	input := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(input[i*4:], uint32(i))
	}

	prog, err := ctx.CreateProgram(kernels.SampleCL)
	if err != nil {
		t.Fatal(err)
	}
	defer prog.Release()
	if err := prog.Build(""); err != nil {
		t.Fatalf("Build: %v", err)
	}
	kern, err := prog.CreateKernel(kernels.EntrySample)
	if err != nil {
		t.Fatal(err)
	}
	defer kern.Release()

	in, _ := ctx.CreateBuffer(compute.MemReadOnly|compute.MemCopyHostPtr, len(input), input)
	defer in.Release()
	out, _ := ctx.CreateBuffer(compute.MemWriteOnly, len(input), nil)
	defer out.Release()
	q, err := ctx.CreateQueue()
	if err != nil {
		t.Fatal(err)
	}
	defer q.Release()

	_ = kern.SetArg(0, in)
	_ = kern.SetArg(1, out)
	if err := q.EnqueueKernel(kern, n, 0); err != nil {
		t.Fatalf("EnqueueKernel: %v", err)
	}
	got := make([]byte, n*4)
	if err := q.ReadBuffer(out, false, got); err != nil {
		t.Fatal(err)
	}
	if err := q.Finish(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if v := int32(binary.LittleEndian.Uint32(got[i*4:])); v != int32(i*i) { //nolint:gosec // test data
			t.Fatalf("out[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestBuildLog(t *testing.T) {
	ctx := openContext(t)

	prog, err := ctx.CreateProgram("__kernel void sample(__global int *a) { a[0] = }")
	if err != nil {
		t.Fatal(err)
	}
	defer prog.Release()

	if err := prog.Build(""); compute.StatusOf(err) != compute.StatusBuildProgramFailure {
		t.Fatalf("Build() = %v, want CL_BUILD_PROGRAM_FAILURE", err)
	}
	log, err := prog.BuildLog(16)
	if err != nil {
		t.Fatal(err)
	}
	if log == "" || len(log) > 16 {
		t.Errorf("BuildLog(16) = %q", log)
	}
}
