package cpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/naga"

	"github.com/gogpu/dispatch/compute"
	"github.com/gogpu/dispatch/internal/spirv"
)

type program struct {
	ctx    *cpuContext
	source string

	mu       sync.Mutex
	log      string
	module   *spirv.Module
	released bool
}

func (p *program) Build(options string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return compute.Errorf(compute.OpBuildProgram, compute.StatusInvalidProgram)
	}
	if options != "" {
		return compute.Errorf(compute.OpBuildProgram, compute.StatusInvalidBuildOptions)
	}

	spirvBytes, err := naga.Compile(p.source)
	if err != nil {
		p.log = err.Error()
		return compute.Wrap(compute.OpBuildProgram, compute.StatusBuildProgramFailure, err)
	}
	words, err := spirv.Words(spirvBytes)
	if err != nil {
		p.log = err.Error()
		return compute.Wrap(compute.OpBuildProgram, compute.StatusBuildProgramFailure, err)
	}
	module, err := spirv.Parse(words)
	if err != nil {
		p.log = err.Error()
		return compute.Wrap(compute.OpBuildProgram, compute.StatusBuildProgramFailure, err)
	}

	p.module = module
	p.log = ""
	p.ctx.dev.rt.log().Debug("cpu: program built",
		"spirv_bytes", len(spirvBytes), "entry_points", len(module.EntryPoints))
	return nil
}

func (p *program) BuildLog(limit int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return "", compute.Errorf(compute.OpBuildLog, compute.StatusInvalidProgram)
	}
	if limit >= 0 && len(p.log) > limit {
		return p.log[:limit], nil
	}
	return p.log, nil
}

func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil, compute.Errorf(compute.OpCreateKernel, compute.StatusInvalidProgram)
	}
	if p.module == nil {
		return nil, compute.Errorf(compute.OpCreateKernel, compute.StatusInvalidProgramExecutable)
	}
	ep, ok := p.module.EntryPoint(name)
	if !ok || ep.Model != spirv.ModelGLCompute {
		return nil, compute.Wrap(compute.OpCreateKernel, compute.StatusInvalidKernelName,
			fmt.Errorf("no compute entry point %q", name))
	}
	fn, ok := hostKernel(p.source, name)
	if !ok {
		return nil, compute.Wrap(compute.OpCreateKernel, compute.StatusInvalidKernelDefinition,
			fmt.Errorf("no host implementation registered for entry point %q of this source", name))
	}
	return &kernel{prog: p, name: name, fn: fn, groupSize: ep.Invocations()}, nil
}

func (p *program) Release() error {
	p.mu.Lock()
	p.released = true
	p.module = nil
	p.mu.Unlock()
	return nil
}

type kernel struct {
	prog      *program
	name      string
	fn        KernelFunc
	groupSize int

	mu       sync.Mutex
	args     [2]*buffer
	released bool
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetArg(index int, buf compute.Buffer) error {
	if index < 0 || index >= len(k.args) {
		return compute.Errorf(compute.OpSetKernelArg, compute.StatusInvalidArgIndex)
	}
	b, ok := buf.(*buffer)
	if !ok || b == nil || !b.live() || b.ctx != k.prog.ctx {
		return compute.Errorf(compute.OpSetKernelArg, compute.StatusInvalidMemObject)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return compute.Errorf(compute.OpSetKernelArg, compute.StatusInvalidKernel)
	}
	k.args[index] = b
	return nil
}

// WorkGroupSize reports the size declared by @workgroup_size, bounded by the
// device limit. Entry points without a declared size use the device limit.
func (k *kernel) WorkGroupSize() (int, error) {
	k.mu.Lock()
	released := k.released
	k.mu.Unlock()
	if released {
		return 0, compute.Errorf(compute.OpWorkGroupInfo, compute.StatusInvalidKernel)
	}

	limit := k.prog.ctx.dev.rt.maxGroup
	if k.groupSize <= 0 || k.groupSize > limit {
		return limit, nil
	}
	return k.groupSize, nil
}

func (k *kernel) Release() error {
	k.mu.Lock()
	k.released = true
	k.args = [2]*buffer{}
	k.mu.Unlock()
	return nil
}
