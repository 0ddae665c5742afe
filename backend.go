package fastclose

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/database64128/fastclose-go/internal/logger"
)

// Backend closes handles somewhere other than the calling goroutine.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Release arranges for c to be closed as soon as convenient.
	// It must not block beyond trivial bookkeeping, and it must close c
	// exactly once.
	Release(c io.Closer)

	// Wait blocks until no release is pending or ctx is done.
	Wait(ctx context.Context) error
}

// Kind identifies one of the built-in backends.
type Kind uint8

const (
	// KindWorkerPool is a dedicated pool of worker goroutines. See [WorkerPool].
	KindWorkerPool Kind = iota

	// KindTaskPool submits releases to a shared [errgroup.Group]. See [TaskPool].
	KindTaskPool

	// KindGoroutine spawns a detached goroutine per release. See [GoroutineBackend].
	KindGoroutine

	// KindInline closes handles on the calling goroutine. See [InlineBackend].
	KindInline
)

// BuildBackend returns the backend kind selected at build time.
func BuildBackend() Kind {
	return buildBackend // kind_workerpool.go, kind_taskpool.go, kind_goroutine.go, kind_inline.go
}

func (k Kind) String() string {
	switch k {
	case KindWorkerPool:
		return "workerpool"
	case KindTaskPool:
		return "taskpool"
	case KindGoroutine:
		return "goroutine"
	case KindInline:
		return "inline"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind parses a single backend name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "workerpool", "threadpool":
		return KindWorkerPool, nil
	case "taskpool":
		return KindTaskPool, nil
	case "goroutine":
		return KindGoroutine, nil
	case "inline", "none":
		return KindInline, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// parseSelection parses a backend selection, which may list at most one
// backend name. An empty selection yields the build-time backend.
func parseSelection(s string) (Kind, error) {
	names := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '+' || r == ' '
	})
	switch len(names) {
	case 0:
		return buildBackend, nil
	case 1:
		return ParseKind(names[0])
	default:
		return 0, fmt.Errorf("%w: %s", ErrMultipleBackends, strings.Join(names, ", "))
	}
}

// newBackend builds the backend of kind k.
func newBackend(k Kind, workers, queueSize int, m *Metrics) (Backend, error) {
	switch k {
	case KindWorkerPool:
		return &WorkerPool{Workers: workers, QueueSize: queueSize, Metrics: m}, nil
	case KindTaskPool:
		return &TaskPool{Metrics: m}, nil
	case KindGoroutine:
		return &GoroutineBackend{Metrics: m}, nil
	case KindInline:
		return &InlineBackend{Metrics: m}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownBackend, k)
	}
}

// inflight counts pending releases.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
	f.mu.Unlock()
}

func (f *inflight) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	if f.n == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleName returns the name of c for log output, if it has one.
func handleName(c io.Closer) string {
	if n, ok := c.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}

// closeAndRecord closes c and records the outcome.
// Nobody is left to return the error to, so it is logged.
func closeAndRecord(backend string, m *Metrics, c io.Closer) {
	start := time.Now()
	err := c.Close()
	m.onRelease(backend, time.Since(start), err)
	if err != nil {
		logger.Warn("Deferred close failed",
			"backend", backend,
			"handle", handleName(c),
			"error", err)
	}
}

// InlineBackend closes handles on the calling goroutine.
//
// The zero value is ready to use.
type InlineBackend struct {
	// Metrics, if not nil, records releases.
	Metrics *Metrics
}

// Release implements [Backend.Release].
func (b *InlineBackend) Release(c io.Closer) {
	b.Metrics.onSubmit(KindInline.String())
	closeAndRecord(KindInline.String(), b.Metrics, c)
}

// Wait implements [Backend.Wait]. It returns immediately.
func (*InlineBackend) Wait(context.Context) error {
	return nil
}

// GoroutineBackend closes each handle on its own detached goroutine,
// leaving the scheduling to the Go runtime.
//
// The zero value is ready to use.
type GoroutineBackend struct {
	// Metrics, if not nil, records releases.
	Metrics *Metrics

	inflight inflight
}

// Release implements [Backend.Release].
func (b *GoroutineBackend) Release(c io.Closer) {
	b.Metrics.onSubmit(KindGoroutine.String())
	b.inflight.add()
	go func() {
		defer b.inflight.done()
		closeAndRecord(KindGoroutine.String(), b.Metrics, c)
	}()
}

// Wait implements [Backend.Wait].
func (b *GoroutineBackend) Wait(ctx context.Context) error {
	return b.inflight.wait(ctx)
}

// Pending returns the number of releases that have not completed yet.
func (b *GoroutineBackend) Pending() int {
	return b.inflight.pending()
}

// Executor runs fn outside the calling goroutine.
// Execute must not block beyond trivial bookkeeping.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to an [Executor].
type ExecutorFunc func(fn func())

// Execute calls f(fn).
func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

// ExecutorBackend releases handles on an existing [Executor], e.g. an
// application-wide task scheduler.
type ExecutorBackend struct {
	// Executor runs the releases. It must not be nil.
	Executor Executor

	// Metrics, if not nil, records releases.
	Metrics *Metrics

	inflight inflight
}

const executorBackendName = "executor"

// Release implements [Backend.Release].
// It panics if b.Executor is nil.
func (b *ExecutorBackend) Release(c io.Closer) {
	if b.Executor == nil {
		panic("fastclose: ExecutorBackend has no Executor")
	}
	b.Metrics.onSubmit(executorBackendName)
	b.inflight.add()
	b.Executor.Execute(func() {
		defer b.inflight.done()
		closeAndRecord(executorBackendName, b.Metrics, c)
	})
}

// Wait implements [Backend.Wait].
func (b *ExecutorBackend) Wait(ctx context.Context) error {
	return b.inflight.wait(ctx)
}

// Pending returns the number of releases that have not completed yet.
func (b *ExecutorBackend) Pending() int {
	return b.inflight.pending()
}
