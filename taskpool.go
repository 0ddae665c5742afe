package fastclose

import (
	"context"
	"io"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// sharedGroup is the process-wide task group used by a [TaskPool] with no Group.
var sharedGroup = sync.OnceValue(func() *errgroup.Group {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	return &g
})

// TaskPool submits releases as tasks to a shared [errgroup.Group],
// instead of owning a dedicated pool.
//
// The zero value is ready to use.
type TaskPool struct {
	// Group is the task group to submit releases to. It may be shared with
	// other work, and may have a limit set. Close errors are never reported
	// to the group.
	//
	// If nil, a process-wide group limited to GOMAXPROCS tasks is used.
	Group *errgroup.Group

	// Metrics, if not nil, records releases.
	Metrics *Metrics

	inflight inflight
}

func (p *TaskPool) group() *errgroup.Group {
	if p.Group != nil {
		return p.Group
	}
	return sharedGroup()
}

// Release implements [Backend.Release].
//
// If the group is at its limit, a helper goroutine waits for a free slot,
// so the caller never blocks.
func (p *TaskPool) Release(c io.Closer) {
	p.Metrics.onSubmit(KindTaskPool.String())
	p.inflight.add()

	task := func() error {
		defer p.inflight.done()
		closeAndRecord(KindTaskPool.String(), p.Metrics, c)
		return nil
	}

	g := p.group()
	if !g.TryGo(task) {
		go g.Go(task)
	}
}

// Wait implements [Backend.Wait].
// It only waits for releases submitted through p, not for other tasks in the group.
func (p *TaskPool) Wait(ctx context.Context) error {
	return p.inflight.wait(ctx)
}

// Pending returns the number of releases that have not completed yet.
func (p *TaskPool) Pending() int {
	return p.inflight.pending()
}
