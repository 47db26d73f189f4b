package dispatch

import "context"

// MustRun is like Run but panics with the *Error on failure. It is meant
// for callers that treat any failure as fatal, e.g. together with
// github.com/gomlx/exceptions.TryCatch.
func (p *Pipeline) MustRun(ctx context.Context, input []int32) []int32 {
	out, err := p.Run(ctx, input)
	if err != nil {
		panic(err)
	}
	return out
}
