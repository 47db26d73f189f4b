package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool executes the work-groups of a kernel launch on a fixed set of worker
// goroutines.
//
// Work-groups are handed out through a shared counter, so a worker that
// finishes early keeps pulling groups until none are left. Dispatch blocks
// until every group has run, which gives the caller the completion barrier
// an in-order queue needs.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int

	// jobs feeds the workers. A job drains groups from its launch counter.
	jobs chan func()

	done chan struct{}
	wg   sync.WaitGroup

	running atomic.Bool
}

// NewPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		workers: workers,
		jobs:    make(chan func(), workers),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			// Run jobs that were handed over before Close.
			for {
				select {
				case job := <-p.jobs:
					job()
				default:
					return
				}
			}
		case job := <-p.jobs:
			job()
		}
	}
}

// Dispatch runs fn once for every group index in [0, groups) and returns
// when all calls have completed. After Close, the groups run on the calling
// goroutine.
func (p *Pool) Dispatch(groups int, fn func(group int)) {
	if groups <= 0 || fn == nil {
		return
	}
	if !p.running.Load() {
		for g := range groups {
			fn(g)
		}
		return
	}

	var next atomic.Int64
	drain := func() {
		for {
			g := int(next.Add(1) - 1)
			if g >= groups {
				return
			}
			fn(g)
		}
	}

	n := min(p.workers, groups)
	var launch sync.WaitGroup
	launch.Add(n)
	for range n {
		job := func() {
			defer launch.Done()
			drain()
		}
		select {
		case p.jobs <- job:
		case <-p.done:
			job()
		}
	}
	launch.Wait()
}

// Close stops the workers. It is safe to call Close more than once.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still has live workers.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}
