package dispatch

import "github.com/gogpu/dispatch/compute"

// buildProgram compiles the pipeline's kernel source for the context's
// device and resolves the entry point. On a build failure the compiler log,
// bounded by the build log limit, is attached to the returned error.
func (r *run) buildProgram(ec *execContext) (compute.Kernel, error) {
	k := r.p.kernel
	prog, err := ec.ctx.CreateProgram(k.Source)
	if err != nil {
		return nil, r.fail(KindProgramCreationFailure, err)
	}
	r.own("program", prog)

	if err := prog.Build(""); err != nil {
		buildLog, logErr := prog.BuildLog(r.p.opts.buildLogLimit)
		if logErr != nil {
			r.log.Warn("dispatch: build log unavailable", "err", logErr)
		}
		e := newError(KindCompileFailure, r.state, err)
		e.BuildLog = buildLog
		logFailure(r.log, e)
		r.enter(StateAborted)
		return nil, e
	}
	r.log.Debug("dispatch: program built", "source_bytes", len(k.Source))

	kern, err := prog.CreateKernel(k.EntryPoint)
	if err != nil {
		return nil, r.fail(KindKernelResolutionFailure, err)
	}
	r.own("kernel", kern)
	return kern, nil
}
