package fastclose

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/database64128/fastclose-go/internal/logger"
)

// runtimeState is the process-wide release configuration.
// It is immutable once published.
type runtimeState struct {
	backend    Backend
	deferClose bool
}

var (
	stateMu sync.Mutex
	state   atomic.Pointer[runtimeState]
)

// current returns the process-wide state, building it from DefaultConfig
// on first use.
func current() *runtimeState {
	if s := state.Load(); s != nil {
		return s
	}

	stateMu.Lock()
	defer stateMu.Unlock()
	if s := state.Load(); s != nil {
		return s
	}
	s, err := newState(DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("fastclose: invalid default config: %v", err))
	}
	state.Store(s)
	return s
}

// Configure sets the process-wide release behavior.
//
// Configure must be called before the first [Handle.Close], typically
// from main. Later calls return [ErrAlreadyConfigured].
func Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	stateMu.Lock()
	defer stateMu.Unlock()
	if state.Load() != nil {
		return ErrAlreadyConfigured
	}
	s, err := newState(cfg)
	if err != nil {
		return err
	}
	state.Store(s)
	return nil
}

func newState(cfg Config) (*runtimeState, error) {
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, err
	}

	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	backend := cfg.Custom
	if backend == nil {
		kind, err := parseSelection(cfg.Backend)
		if err != nil {
			return nil, err
		}
		if backend, err = newBackend(kind, cfg.Workers, cfg.QueueSize, cfg.Metrics); err != nil {
			return nil, err
		}
	}

	logger.Debug("Configured deferred close",
		"mode", mode.String(),
		"defer", mode.deferClose(),
		"backend", fmt.Sprintf("%T", backend))

	return &runtimeState{
		backend:    backend,
		deferClose: mode.deferClose(),
	}, nil
}

// Drain waits until no release is pending on the active backend, or until
// ctx is done. Releases submitted while Drain is waiting are waited for too.
//
// Deferred releases are not waited for when the process exits. Programs that
// need every handle closed before exiting drain at the end of main:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	if err := fastclose.Drain(ctx); err != nil {
//		log.Printf("pending closes not drained: %v", err)
//	}
func Drain(ctx context.Context) error {
	s := state.Load()
	if s == nil {
		return nil
	}
	if err := s.backend.Wait(ctx); err != nil {
		logger.Error("Pending releases not drained", "error", err)
		return err
	}
	return nil
}

// Deferred reports whether [Handle.Close] defers releases to a backend
// in the current process. Like Close, it fixes the configuration.
func Deferred() bool {
	return current().deferClose
}
