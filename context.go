package dispatch

import "github.com/gogpu/dispatch/compute"

// execContext is the context and in-order queue of one run.
type execContext struct {
	ctx   compute.Context
	queue compute.Queue
}

// newExecContext creates a context scoped to dev and a single command queue
// on it. Both are owned by the run.
func (r *run) newExecContext(dev compute.Device) (*execContext, error) {
	ctx, err := dev.CreateContext()
	if err != nil {
		return nil, r.fail(KindContextCreationFailure, err)
	}
	r.own("context", ctx)

	q, err := ctx.CreateQueue()
	if err != nil {
		return nil, r.fail(KindQueueCreationFailure, err)
	}
	r.own("queue", q)
	return &execContext{ctx: ctx, queue: q}, nil
}
