//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/dispatch/compute"
	"github.com/gogpu/dispatch/internal/spirv"
)

type program struct {
	ctx    *gpuContext
	source string

	mu       sync.Mutex
	log      string
	module   *spirv.Module
	shader   hal.ShaderModule
	released bool
}

// Build compiles WGSL to SPIR-V and creates the shader module. The SPIR-V
// is also reflected so that CreateKernel can reject unknown entry points
// before pipeline creation.
func (p *program) Build(options string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return compute.Errorf(compute.OpBuildProgram, compute.StatusInvalidProgram)
	}
	if options != "" {
		return compute.Errorf(compute.OpBuildProgram, compute.StatusInvalidBuildOptions)
	}
	if p.shader != nil {
		return nil
	}

	fail := func(err error) error {
		p.log = err.Error()
		return compute.Wrap(compute.OpBuildProgram, compute.StatusBuildProgramFailure, err)
	}
	spirvBytes, err := naga.Compile(p.source)
	if err != nil {
		return fail(err)
	}
	words, err := spirv.Words(spirvBytes)
	if err != nil {
		return fail(err)
	}
	module, err := spirv.Parse(words)
	if err != nil {
		return fail(err)
	}
	shader, err := p.ctx.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "dispatch_program",
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return fail(fmt.Errorf("create shader module: %w", err))
	}

	p.module = module
	p.shader = shader
	p.log = ""
	p.ctx.rt.log().Debug("wgpu: program built",
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

// CreateKernel builds the compute pipeline for the entry point. The bind
// group layout is fixed: binding 0 is the read-only input and binding 1 the
// output.
func (p *program) CreateKernel(name string) (compute.Kernel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil, compute.Errorf(compute.OpCreateKernel, compute.StatusInvalidProgram)
	}
	if p.shader == nil {
		return nil, compute.Errorf(compute.OpCreateKernel, compute.StatusInvalidProgramExecutable)
	}
	ep, ok := p.module.EntryPoint(name)
	if !ok || ep.Model != spirv.ModelGLCompute {
		return nil, compute.Wrap(compute.OpCreateKernel, compute.StatusInvalidKernelName,
			fmt.Errorf("no compute entry point %q", name))
	}

	dev := p.ctx.device
	k := &kernel{prog: p, name: name, groupSize: ep.Invocations()}
	var err error
	k.bindLayout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: name + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return nil, compute.Wrap(compute.OpCreateKernel, compute.StatusInvalidKernelDefinition,
			fmt.Errorf("create bind group layout: %w", err))
	}
	k.pipeLayout, err = dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{k.bindLayout},
	})
	if err != nil {
		k.destroy()
		return nil, compute.Wrap(compute.OpCreateKernel, compute.StatusInvalidKernelDefinition,
			fmt.Errorf("create pipeline layout: %w", err))
	}
	k.pipeline, err = dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   name + "_pipeline",
		Layout:  k.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: name},
	})
	if err != nil {
		k.destroy()
		return nil, compute.Wrap(compute.OpCreateKernel, compute.StatusInvalidKernelDefinition,
			fmt.Errorf("create compute pipeline: %w", err))
	}
	return k, nil
}

func (p *program) Release() error {
	p.ctx.idle()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	p.module = nil
	if p.shader != nil {
		p.ctx.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
	return nil
}

type kernel struct {
	prog      *program
	name      string
	groupSize int

	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

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

// WorkGroupSize reports the @workgroup_size of the entry point. The size is
// fixed when the shader is compiled, so it is the only usable grouping.
func (k *kernel) WorkGroupSize() (int, error) {
	k.mu.Lock()
	released := k.released
	k.mu.Unlock()
	if released {
		return 0, compute.Errorf(compute.OpWorkGroupInfo, compute.StatusInvalidKernel)
	}
	if k.groupSize <= 0 || k.groupSize > maxInvocations {
		return maxInvocations, nil
	}
	return k.groupSize, nil
}

// Release waits for submissions in flight before destroying the pipeline.
// The queue locks a kernel while holding its own lock, so the wait happens
// before k.mu is taken.
func (k *kernel) Release() error {
	k.prog.ctx.idle()
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.released {
		return nil
	}
	k.released = true
	k.args = [2]*buffer{}
	k.destroy()
	return nil
}

func (k *kernel) destroy() {
	dev := k.prog.ctx.device
	if k.pipeline != nil {
		dev.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		dev.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		dev.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
}
