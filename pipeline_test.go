package dispatch

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/dispatch/compute"
	"github.com/gogpu/dispatch/compute/computetest"
)

var testKernel = Kernel{Source: "__kernel void sample(...)"}

func newTestPipeline(t *testing.T, rt compute.Runtime, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(rt, testKernel, opts...)
	require.NoError(t, err)
	return p
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok, "error %v is not *Error", err)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	return e
}

func TestRunSquares(t *testing.T) {
	rt := computetest.New()
	p := newTestPipeline(t, rt)

	out, err := p.Run(context.Background(), []int32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4, 9, 16}, out)
	assert.Zero(t, rt.Live(), "objects left unreleased")
}

func TestOutputLengthMatchesInput(t *testing.T) {
	rt := computetest.New()
	p := newTestPipeline(t, rt)

	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 9, 63, 64, 65, 1000} {
		input := make([]int32, n)
		for i := range input {
			input[i] = int32(i - n/2)
		}
		out, err := p.Run(context.Background(), input)
		require.NoError(t, err, "n=%d", n)
		require.Len(t, out, n)
		for i := range input {
			require.Equal(t, input[i]*input[i], out[i], "n=%d i=%d", n, i)
		}
	}
	assert.Zero(t, rt.Live())
}

func TestEmptyInputShortCircuits(t *testing.T) {
	rt := computetest.New()
	p := newTestPipeline(t, rt)

	res, err := p.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Output)
	assert.Empty(t, res.Output)
	assert.Empty(t, rt.Calls(), "runtime was touched for an empty input")
	assert.Equal(t, []State{StateInit, StateCompleted}, res.States)
}

func TestExecuteReport(t *testing.T) {
	rt := computetest.New()
	p := newTestPipeline(t, rt)

	res, err := p.Execute(context.Background(), []int32{3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, []int32{9, 16, 25}, res.Output)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "fake device 0.0", res.Device.Name)
	assert.Equal(t, 4, res.Global)
	assert.Equal(t, 4, res.Local)
	assert.Equal(t, []State{
		StateInit, StateDeviceResolved, StateContextReady, StateProgramBuilt,
		StateBuffersReady, StateArgsBound, StateDispatched, StateCompleted,
	}, res.States)
}

func TestIdempotent(t *testing.T) {
	p := newTestPipeline(t, computetest.New())
	input := []int32{-7, 0, 11, 46340}

	first, err := p.Run(context.Background(), input)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestZeroPlatforms(t *testing.T) {
	rt := computetest.New()
	rt.PlatformCount = 0
	p := newTestPipeline(t, rt)

	_, err := p.Run(context.Background(), []int32{1})
	e := requireKind(t, err, KindPlatformUnavailable)
	assert.ErrorIs(t, err, ErrPlatformUnavailable)
	assert.False(t, e.Fatal())
	assert.True(t, e.Recoverable())
	assert.Equal(t, compute.StatusPlatformNotFound, e.Status)
	assert.Equal(t, ClassPlatformUnavailable, e.Class)
	assert.Equal(t, StateInit, e.Stage)
}

func TestZeroDevices(t *testing.T) {
	rt := computetest.New()
	rt.DeviceCount = 0
	p := newTestPipeline(t, rt)

	_, err := p.Run(context.Background(), []int32{1})
	e := requireKind(t, err, KindDeviceUnavailable)
	assert.False(t, e.Fatal())
	assert.Equal(t, ClassDeviceUnavailable, e.Class)
	assert.Zero(t, rt.Live(), "platform not released")
}

func TestExtraPlatformsReleased(t *testing.T) {
	rt := computetest.New()
	rt.PlatformCount = 3
	p := newTestPipeline(t, rt)

	res, err := p.Execute(context.Background(), []int32{2})
	require.NoError(t, err)
	assert.Equal(t, "fake platform 0", res.Platform.Name)
	assert.Zero(t, rt.Live())
}

func TestFailureReleasesEverything(t *testing.T) {
	tests := []struct {
		op    compute.Op
		kind  Kind
		fatal bool
		stage State
	}{
		{compute.OpGetPlatforms, KindPlatformUnavailable, false, StateInit},
		{compute.OpGetDevices, KindDeviceUnavailable, false, StateInit},
		{compute.OpCreateContext, KindContextCreationFailure, false, StateDeviceResolved},
		{compute.OpCreateQueue, KindQueueCreationFailure, false, StateDeviceResolved},
		{compute.OpCreateProgram, KindProgramCreationFailure, false, StateContextReady},
		{compute.OpBuildProgram, KindCompileFailure, true, StateContextReady},
		{compute.OpCreateKernel, KindKernelResolutionFailure, true, StateContextReady},
		{compute.OpCreateBuffer, KindBufferAllocationFailure, true, StateProgramBuilt},
		{compute.OpSetKernelArg, KindInvalidKernelArgument, true, StateBuffersReady},
		{compute.OpEnqueueKernel, KindEnqueueFailure, true, StateArgsBound},
		{compute.OpReadBuffer, KindReadbackFailure, true, StateDispatched},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			rt := computetest.New()
			rt.Fail(tt.op, compute.StatusOutOfResources)

			var states []State
			p := newTestPipeline(t, rt, WithStateHook(func(s State) { states = append(states, s) }))

			_, err := p.Run(context.Background(), []int32{1, 2, 3})
			e := requireKind(t, err, tt.kind)
			assert.Equal(t, tt.fatal, e.Fatal())
			assert.Equal(t, tt.stage, e.Stage)
			assert.Equal(t, tt.op, e.Op)
			assert.Equal(t, compute.StatusOutOfResources, e.Status)
			assert.Equal(t, ClassResourceExhausted, e.Class)
			assert.Equal(t, StateAborted, states[len(states)-1])
			assert.Zero(t, rt.Live(), "objects left unreleased: %v", rt.Released())
		})
	}
}

func TestReadbackFailureFinishesBeforeRelease(t *testing.T) {
	rt := computetest.New()
	rt.Fail(compute.OpReadBuffer, compute.StatusOutOfResources)
	p := newTestPipeline(t, rt)

	_, err := p.Run(context.Background(), []int32{1, 2, 3})
	requireKind(t, err, KindReadbackFailure)
	require.Len(t, rt.Launches(), 1)
	assert.True(t, rt.Called(compute.OpFinish))
	assert.Empty(t, rt.ReleasedInFlight())
	assert.Zero(t, rt.Live())
}

func TestFinishFailureBeforeReleaseIsTolerated(t *testing.T) {
	rt := computetest.New()
	rt.Fail(compute.OpReadBuffer, compute.StatusOutOfResources)
	rt.Fail(compute.OpFinish, compute.StatusOutOfHostMemory)
	p := newTestPipeline(t, rt)

	_, err := p.Run(context.Background(), []int32{1, 2, 3})
	requireKind(t, err, KindReadbackFailure)
	assert.Zero(t, rt.Live())
}

func TestReleaseOrder(t *testing.T) {
	rt := computetest.New()
	p := newTestPipeline(t, rt)

	_, err := p.Run(context.Background(), []int32{1, 2})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"buffer", "buffer", "kernel", "program", "queue", "context", "platform"},
		rt.Released())
}

func TestReleaseErrorsAreTolerated(t *testing.T) {
	rt := computetest.New()
	rt.Fail(compute.OpRelease, compute.StatusInvalidMemObject)
	p := newTestPipeline(t, rt)

	out, err := p.Run(context.Background(), []int32{5})
	require.NoError(t, err)
	assert.Equal(t, []int32{25}, out)
	assert.Zero(t, rt.Live())
}

func TestCompileFailureCarriesBuildLog(t *testing.T) {
	rt := computetest.New()
	rt.BuildLog = strings.Repeat("x", 5000)
	rt.Fail(compute.OpBuildProgram, compute.StatusBuildProgramFailure)

	_, err := newTestPipeline(t, rt).Run(context.Background(), []int32{1})
	e := requireKind(t, err, KindCompileFailure)
	assert.ErrorIs(t, err, ErrCompile)
	assert.True(t, e.Fatal())
	assert.Equal(t, ClassCompileFailure, e.Class)
	assert.Len(t, e.BuildLog, DefaultBuildLogLimit)

	_, err = newTestPipeline(t, rt, WithBuildLogLimit(10)).Run(context.Background(), []int32{1})
	e = requireKind(t, err, KindCompileFailure)
	assert.Len(t, e.BuildLog, 10)
}

func TestBuildLogUnavailable(t *testing.T) {
	rt := computetest.New()
	rt.Fail(compute.OpBuildProgram, compute.StatusBuildProgramFailure)
	rt.Fail(compute.OpBuildLog, compute.StatusInvalidProgram)

	_, err := newTestPipeline(t, rt).Run(context.Background(), []int32{1})
	e := requireKind(t, err, KindCompileFailure)
	assert.Empty(t, e.BuildLog)
	assert.Zero(t, rt.Live())
}

func TestProgramCreationFailureIsRecoverable(t *testing.T) {
	rt := computetest.New()
	rt.Fail(compute.OpCreateProgram, compute.StatusOutOfHostMemory)
	p := newTestPipeline(t, rt)

	_, err := p.Run(context.Background(), []int32{1})
	e := requireKind(t, err, KindProgramCreationFailure)
	assert.ErrorIs(t, err, ErrProgramCreation)
	assert.NotErrorIs(t, err, ErrCompile)
	assert.True(t, e.Recoverable())
	assert.Empty(t, e.BuildLog)
	assert.False(t, rt.Called(compute.OpBuildProgram))
	assert.Zero(t, rt.Live())
}

func TestWorkGroupQueryFallback(t *testing.T) {
	rt := computetest.New()
	rt.Fail(compute.OpWorkGroupInfo, compute.StatusInvalidKernel)

	res, err := newTestPipeline(t, rt).Execute(context.Background(), []int32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4, 9}, res.Output)
	assert.Equal(t, 3, res.Global)
	assert.Zero(t, res.Local)
	assert.Equal(t, []computetest.Launch{{Kernel: "sample", Global: 3, Local: 0}}, rt.Launches())
}

func TestWorkGroupQueryFail(t *testing.T) {
	rt := computetest.New()
	rt.Fail(compute.OpWorkGroupInfo, compute.StatusInvalidKernel)

	_, err := newTestPipeline(t, rt, WithWorkGroupFallback(FallbackFail)).Run(context.Background(), []int32{1})
	e := requireKind(t, err, KindWorkGroupQueryFailure)
	assert.ErrorIs(t, err, ErrWorkGroupQuery)
	assert.False(t, rt.Called(compute.OpCreateBuffer))
	assert.Equal(t, ClassInvalidObject, e.Class)
	assert.Zero(t, rt.Live())
}

func TestGeometryPad(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		global int
	}{
		{"single element", 1, 4},
		{"one work-group", 4, 4},
		{"not a multiple", 5, 8},
		{"two work-groups", 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := computetest.New()
			input := make([]int32, tt.n)
			for i := range input {
				input[i] = int32(i + 1)
			}
			res, err := newTestPipeline(t, rt).Execute(context.Background(), input)
			require.NoError(t, err)
			require.Len(t, res.Output, tt.n)
			for i, v := range input {
				assert.Equal(t, v*v, res.Output[i])
			}
			assert.Equal(t, tt.global, res.Global)
			assert.Equal(t, 4, res.Local)
		})
	}
}

func TestGeometryExact(t *testing.T) {
	rt := computetest.New()
	p := newTestPipeline(t, rt, WithGeometry(GeometryExact))

	out, err := p.Run(context.Background(), []int32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4, 9, 16}, out)

	_, err = p.Run(context.Background(), []int32{1, 2, 3, 4, 5})
	e := requireKind(t, err, KindEnqueueFailure)
	assert.Equal(t, compute.StatusInvalidWorkGroupSize, e.Status)
	assert.Equal(t, ClassInvalidArgument, e.Class)
	assert.Zero(t, rt.Live())
}

func TestEntryPoint(t *testing.T) {
	rt := computetest.New()
	p, err := New(rt, Kernel{Source: "src", EntryPoint: "increment"})
	require.NoError(t, err)
	assert.Equal(t, "increment", p.Kernel().EntryPoint)

	out, err := p.Run(context.Background(), []int32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 3, 4}, out)

	p, err = New(rt, Kernel{Source: "src", EntryPoint: "missing"})
	require.NoError(t, err)
	_, err = p.Run(context.Background(), []int32{1})
	e := requireKind(t, err, KindKernelResolutionFailure)
	assert.Equal(t, compute.StatusInvalidKernelName, e.Status)
}

func TestDefaultEntryPoint(t *testing.T) {
	p, err := New(computetest.New(), Kernel{Source: "src"})
	require.NoError(t, err)
	assert.Equal(t, DefaultEntryPoint, p.Kernel().EntryPoint)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, testKernel)
	assert.Error(t, err)

	_, err = New(computetest.New(), Kernel{})
	requireKind(t, err, KindKernelSource)
	assert.ErrorIs(t, err, ErrKernelSource)

	_, err = New(computetest.New(), Kernel{Source: strings.Repeat(" ", MaxSourceSize+1)})
	requireKind(t, err, KindKernelSource)
}

func TestCanceled(t *testing.T) {
	rt := computetest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t, rt).Run(ctx, []int32{1})
	e := requireKind(t, err, KindCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, e.Fatal())
	assert.Empty(t, rt.Calls())
}

func TestCanceledMidRun(t *testing.T) {
	rt := computetest.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestPipeline(t, rt, WithStateHook(func(s State) {
		if s == StateContextReady {
			cancel()
		}
	}))
	_, err := p.Run(ctx, []int32{1})
	e := requireKind(t, err, KindCanceled)
	assert.Equal(t, StateContextReady, e.Stage)
	assert.False(t, rt.Called(compute.OpCreateProgram))
	assert.Zero(t, rt.Live())
}

func TestInvoke(t *testing.T) {
	rt := computetest.New()
	p := newTestPipeline(t, rt)

	out, err := p.Invoke(context.Background(), []any{1, int64(2), 3.0, uint8(4)})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4, 9, 16}, out)

	_, err = p.Invoke(context.Background(), []any{1, "two"})
	e := requireKind(t, err, KindBadArgument)
	assert.ErrorIs(t, err, ErrBadArgument)
	assert.False(t, e.Fatal())

	_, err = p.Invoke(context.Background(), []any{1, []any{2}})
	requireKind(t, err, KindBadArgument)
}

func TestInvokeBadArgumentTouchesNoDevice(t *testing.T) {
	rt := computetest.New()
	_, err := newTestPipeline(t, rt).Invoke(context.Background(), []any{2.5})
	requireKind(t, err, KindBadArgument)
	assert.Empty(t, rt.Calls())
}

func TestFailureIsLogged(t *testing.T) {
	rt := computetest.New()
	rt.Fail(compute.OpBuildProgram, compute.StatusBuildProgramFailure)

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := newTestPipeline(t, rt, WithLogger(l)).Run(context.Background(), []int32{1, 2})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `kind="compile failure"`)
	assert.Contains(t, out, "status=CL_BUILD_PROGRAM_FAILURE")
	assert.Contains(t, out, `description="build program failure"`)
	assert.Contains(t, out, "run=")
}

func TestDebugDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := newTestPipeline(t, computetest.New(), WithLogger(l)).Run(context.Background(), []int32{1, 7, 3})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "data[1]=7")
	assert.Contains(t, out, "device selected")
	assert.Contains(t, out, "size=\"16 B\"")
	assert.NotContains(t, out, "level=ERROR")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "args bound", StateArgsBound.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestEncodeInts(t *testing.T) {
	b := encodeInts([]int32{-1, 2}, 4)
	assert.Len(t, b, 16)
	assert.Equal(t, []int32{-1, 2, 0, 0}, decodeInts(b))
}
