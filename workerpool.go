package fastclose

import (
	"context"
	"io"
	"runtime"
	"sync"

	"github.com/database64128/fastclose-go/internal/logger"
)

// DefaultQueueSize is the default capacity of a [WorkerPool]'s queue.
const DefaultQueueSize = 1024

// WorkerPool is a dedicated pool of goroutines that close handles.
//
// The workers are started on the first call to Release and run for the rest
// of the process. The zero value is ready to use. Configuration fields must
// not be modified after the first call to Release.
type WorkerPool struct {
	// Workers is the number of worker goroutines.
	// If zero or negative, runtime.NumCPU() is used.
	Workers int

	// QueueSize is the number of releases that can wait for a worker.
	// If zero or negative, DefaultQueueSize is used.
	//
	// When the queue is full, the release is performed on a new goroutine
	// instead, so Release never blocks and never drops a handle.
	QueueSize int

	// Metrics, if not nil, records releases.
	Metrics *Metrics

	startOnce sync.Once
	queue     chan io.Closer
	inflight  inflight
}

func (p *WorkerPool) start() {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	queueSize := p.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	p.queue = make(chan io.Closer, queueSize)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	logger.Info("Started close worker pool", "workers", workers, "queue_size", queueSize)
}

func (p *WorkerPool) worker() {
	for c := range p.queue {
		closeAndRecord(KindWorkerPool.String(), p.Metrics, c)
		p.inflight.done()
	}
}

// Release implements [Backend.Release].
func (p *WorkerPool) Release(c io.Closer) {
	p.startOnce.Do(p.start)
	p.Metrics.onSubmit(KindWorkerPool.String())
	p.inflight.add()

	select {
	case p.queue <- c:
	default:
		logger.Debug("Close queue full, spilling release to a new goroutine", "queue_size", cap(p.queue))
		go func() {
			defer p.inflight.done()
			closeAndRecord(KindWorkerPool.String(), p.Metrics, c)
		}()
	}
}

// Wait implements [Backend.Wait].
func (p *WorkerPool) Wait(ctx context.Context) error {
	return p.inflight.wait(ctx)
}

// Pending returns the number of releases that have not completed yet.
func (p *WorkerPool) Pending() int {
	return p.inflight.pending()
}
