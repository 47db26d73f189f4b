package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/dispatch/compute"
)

// DefaultEntryPoint is the kernel entry point used when Kernel.EntryPoint is
// empty.
const DefaultEntryPoint = "sample"

// MaxSourceSize bounds the kernel source text.
const MaxSourceSize = 1 << 20

// Kernel identifies the code a pipeline runs: source text for the runtime's
// compiler and the entry point to launch. The entry point takes the input
// buffer as argument 0 and the output buffer as argument 1.
type Kernel struct {
	Source     string
	EntryPoint string
}

// State is a step of a pipeline run.
type State int

// Run states, in the order a successful run visits them.
const (
	StateInit State = iota
	StateDeviceResolved
	StateContextReady
	StateProgramBuilt
	StateBuffersReady
	StateArgsBound
	StateDispatched
	StateCompleted
	StateAborted
)

var stateNames = [...]string{
	StateInit:           "init",
	StateDeviceResolved: "device resolved",
	StateContextReady:   "context ready",
	StateProgramBuilt:   "program built",
	StateBuffersReady:   "buffers ready",
	StateArgsBound:      "args bound",
	StateDispatched:     "dispatched",
	StateCompleted:      "completed",
	StateAborted:        "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is the report of a completed run.
type Result struct {
	// RunID tags the run's log records.
	RunID string

	// Output holds one value per input element.
	Output []int32

	Platform compute.PlatformInfo
	Device   compute.DeviceInfo

	// Global and Local are the launch geometry. Local is zero when the
	// runtime chose the grouping.
	Global int
	Local  int

	// States lists the states the run visited, starting with StateInit.
	States []State

	Elapsed time.Duration
}

// Pipeline runs one kernel over integer sequences. Every run creates and
// releases its own device, context, program and buffers; nothing is shared
// between runs, so a Pipeline may be used from several goroutines.
type Pipeline struct {
	rt     compute.Runtime
	kernel Kernel
	opts   options
}

// New creates a pipeline that runs k on rt. An empty entry point selects
// DefaultEntryPoint. The source is checked for presence and size only;
// compilation happens on every run.
func New(rt compute.Runtime, k Kernel, opts ...Option) (*Pipeline, error) {
	if rt == nil {
		return nil, errors.New("dispatch: runtime must not be nil")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if k.EntryPoint == "" {
		k.EntryPoint = DefaultEntryPoint
	}

	p := &Pipeline{rt: rt, kernel: k, opts: o}
	switch {
	case k.Source == "":
		return nil, p.reject(KindKernelSource, errors.New("empty kernel source"))
	case len(k.Source) > MaxSourceSize:
		return nil, p.reject(KindKernelSource,
			fmt.Errorf("kernel source is %d bytes, limit %d", len(k.Source), MaxSourceSize))
	}
	return p, nil
}

// Kernel returns the kernel the pipeline runs.
func (p *Pipeline) Kernel() Kernel { return p.kernel }

func (p *Pipeline) logger() *slog.Logger {
	if p.opts.logger != nil {
		return p.opts.logger
	}
	return Logger()
}

// reject classifies a failure found outside a run.
func (p *Pipeline) reject(kind Kind, err error) *Error {
	e := newError(kind, StateInit, err)
	logFailure(p.logger(), e)
	return e
}

// Run executes the kernel over input and returns one output per element.
// An empty input returns an empty result without touching the runtime.
// Failures are returned as *Error.
func (p *Pipeline) Run(ctx context.Context, input []int32) ([]int32, error) {
	res, err := p.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// Invoke extracts integers from values with ExtractInts and runs the
// kernel over them. Extraction failures are KindBadArgument.
func (p *Pipeline) Invoke(ctx context.Context, values []any) ([]int32, error) {
	input, err := ExtractInts(values, len(values))
	if err != nil {
		return nil, p.reject(KindBadArgument, err)
	}
	return p.Run(ctx, input)
}

// Execute runs the pipeline and returns the full run report.
//
// The run is synchronous. ctx is checked before every step up to the
// launch; once the kernel is enqueued the run completes regardless of ctx.
// Every runtime object the run created is released before Execute returns,
// in the reverse order of creation.
func (p *Pipeline) Execute(ctx context.Context, input []int32) (*Result, error) {
	start := time.Now()
	r := p.newRun()
	res := &Result{RunID: r.id}

	if len(input) == 0 {
		r.log.Debug("dispatch: empty input, nothing to dispatch")
		r.enter(StateCompleted)
		res.Output = []int32{}
		res.States = r.states
		res.Elapsed = time.Since(start)
		return res, nil
	}

	propagateLogger(p.rt, p.logger())
	out, err := r.execute(ctx, input, res)
	res.States = r.states
	res.Elapsed = time.Since(start)
	if err != nil {
		return nil, err
	}
	res.Output = out
	r.log.Info("dispatch: run completed",
		"n", len(input), "global", res.Global, "local", res.Local, "elapsed", res.Elapsed)
	return res, nil
}

// run carries the per-invocation state of a Pipeline.
type run struct {
	p     *Pipeline
	id    string
	log   *slog.Logger
	state State

	states   []State
	releases []release

	// inflight is the queue holding an enqueued launch that no completed
	// blocking read has waited for yet.
	inflight compute.Queue
}

type release struct {
	name string
	obj  interface{ Release() error }
}

func (p *Pipeline) newRun() *run {
	id := uuid.NewString()
	r := &run{
		p:      p,
		id:     id,
		log:    p.logger().With("run", id),
		states: []State{StateInit},
	}
	return r
}

func (r *run) enter(s State) {
	r.state = s
	r.states = append(r.states, s)
	r.log.Debug("dispatch: state", "state", s)
	if r.p.opts.stateHook != nil {
		r.p.opts.stateHook(s)
	}
}

// own registers obj for release at the end of the run.
func (r *run) own(name string, obj interface{ Release() error }) {
	r.releases = append(r.releases, release{name: name, obj: obj})
}

// releaseAll releases owned objects in reverse order of creation, so that
// buffers and kernels go before their program, and everything goes before
// the context and platform. A launch still in flight is finished first.
func (r *run) releaseAll() {
	if q := r.inflight; q != nil {
		r.inflight = nil
		if err := q.Finish(); err != nil {
			r.log.Warn("dispatch: finish before release failed", "err", err)
		}
	}
	for i := len(r.releases) - 1; i >= 0; i-- {
		rel := r.releases[i]
		if err := rel.obj.Release(); err != nil {
			r.log.Warn("dispatch: release failed", "object", rel.name, "err", err)
		}
	}
	r.releases = nil
}

// fail classifies err as a failure of kind, logs it and aborts the run.
func (r *run) fail(kind Kind, err error) *Error {
	e := newError(kind, r.state, err)
	logFailure(r.log, e)
	r.enter(StateAborted)
	return e
}

func (r *run) canceled(ctx context.Context) *Error {
	if err := ctx.Err(); err != nil {
		return r.fail(KindCanceled, err)
	}
	return nil
}

// logFailure emits the classified diagnostic for e.
func logFailure(l *slog.Logger, e *Error) {
	attrs := []any{
		"stage", e.Stage,
		"kind", e.Kind,
		"class", e.Class,
		"fatal", e.Fatal(),
	}
	if e.Status != compute.StatusUnknown {
		attrs = append(attrs, "status", e.Status, "description", e.Status.Description())
	}
	if e.Op != "" {
		attrs = append(attrs, "op", string(e.Op))
	}
	if e.BuildLog != "" {
		attrs = append(attrs, "build_log", e.BuildLog)
	}
	attrs = append(attrs, "err", e.Err)
	l.Error("dispatch: "+e.Kind.String(), attrs...)
}

func (r *run) execute(ctx context.Context, input []int32, res *Result) ([]int32, error) {
	defer r.releaseAll()

	if err := r.canceled(ctx); err != nil {
		return nil, err
	}
	plat, dev, err := r.resolveDevice()
	if err != nil {
		return nil, err
	}
	res.Platform, res.Device = plat.Info(), dev.Info()
	r.enter(StateDeviceResolved)

	if err := r.canceled(ctx); err != nil {
		return nil, err
	}
	ec, err := r.newExecContext(dev)
	if err != nil {
		return nil, err
	}
	r.enter(StateContextReady)

	if err := r.canceled(ctx); err != nil {
		return nil, err
	}
	kern, err := r.buildProgram(ec)
	if err != nil {
		return nil, err
	}
	geo, err := r.planGeometry(kern, len(input))
	if err != nil {
		return nil, err
	}
	res.Global, res.Local = geo.global, geo.local
	r.enter(StateProgramBuilt)

	if err := r.canceled(ctx); err != nil {
		return nil, err
	}
	bufs, err := r.allocBuffers(ec, input, geo.global)
	if err != nil {
		return nil, err
	}
	r.enter(StateBuffersReady)

	if err := r.bindArgs(kern, bufs); err != nil {
		return nil, err
	}
	r.enter(StateArgsBound)

	if err := r.canceled(ctx); err != nil {
		return nil, err
	}
	out, err := r.launch(ec, kern, bufs, geo, len(input))
	if err != nil {
		return nil, err
	}
	r.enter(StateCompleted)
	return out, nil
}
