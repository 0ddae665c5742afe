// Package fastclose provides a wrapper around owned file handles that moves
// the act of closing the handle off the calling goroutine. The wrapper and
// the Open, Create and OpenFile functions can be used as drop-in replacements
// for *os.File and their counterparts in Go 'os' with minimal changes required.
//
// On Windows, CloseHandle can take milliseconds per file when antivirus or
// indexing filters are installed, so Close hands the handle to a background
// backend and returns immediately. On every other platform closing is cheap,
// and Close closes the handle inline, exactly like the raw handle would.
// Set Config.Mode to force either behavior.
//
// Deferred closes are fire-and-forget. Close returns nil and the error of the
// underlying Close, if any, is logged and counted but never returned. Pending
// closes are not waited for when the process exits. Call Drain at the end of
// main to wait for them.
//
// The backend is selected at build time with at most one of the build tags
// fastclose_taskpool, fastclose_goroutine or fastclose_inline. Selecting none
// is not an error: the dedicated worker pool is the defined default.
// Selecting two fails to compile. Config.Backend overrides the choice for the
// process, as long as Configure is called before the first Close.
package fastclose

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync/atomic"
)

var (
	// ErrReleased is returned when operating on a [Handle] whose inner handle
	// has already been closed or reclaimed with [Handle.IntoInner].
	ErrReleased = fmt.Errorf("fastclose: handle released: %w", fs.ErrClosed)

	ErrAlreadyConfigured = errors.New("fastclose: already configured, Configure must be called before the first Close")
	ErrMultipleBackends  = errors.New("fastclose: more than one backend selected")
	ErrUnknownBackend    = errors.New("fastclose: unknown backend")
	ErrUnknownMode       = errors.New("fastclose: unknown mode")
)

// Closeable is the set of handle types that can be wrapped in a [Handle].
//
// A handle type qualifies if it is an owned pointer type whose Close method
// releases the underlying resource, e.g. *os.File. Do not wrap handles that
// are shared or reference counted. Put the [Handle] inside the shared owner
// instead.
type Closeable[T any] interface {
	*T
	io.Closer
}

// Handle owns a *T and closes it in the background when closed.
//
// A Handle has the same size as *T. It must not be copied after first use.
type Handle[T any] struct {
	p atomic.Pointer[T]
}

// New wraps h in a [Handle]. The returned Handle owns h:
// h must not be closed directly afterwards.
func New[T any, H Closeable[T]](h H) *Handle[T] {
	var w Handle[T]
	w.p.Store((*T)(h))
	return &w
}

// Open is like [os.Open] but returns a [Handle].
func Open(name string) (*Handle[os.File], error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// Create is like [os.Create] but returns a [Handle].
func Create(name string) (*Handle[os.File], error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// OpenFile is like [os.OpenFile] but returns a [Handle].
func OpenFile(name string, flag int, perm os.FileMode) (*Handle[os.File], error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// Get returns the inner handle, or nil if it has been released or reclaimed.
// The returned handle remains owned by h.
func (h *Handle[T]) Get() *T {
	return h.p.Load()
}

// IntoInner reclaims the inner handle without closing it.
// The caller becomes responsible for closing the returned handle.
//
// IntoInner returns nil if the handle has already been released or reclaimed.
func (h *Handle[T]) IntoInner() *T {
	return h.p.Swap(nil)
}

// Close releases the inner handle.
//
// If closing is deferred, the handle is submitted to the active backend and
// Close returns nil without waiting. Otherwise the inner handle is closed
// inline and its error is returned.
//
// Close returns [ErrReleased] if the handle has already been released or reclaimed.
func (h *Handle[T]) Close() error {
	p := h.p.Swap(nil)
	if p == nil {
		return ErrReleased
	}
	return release(any(p).(io.Closer))
}

// release closes c inline or hands it to the active backend.
func release(c io.Closer) error {
	s := current()
	if !s.deferClose {
		return c.Close()
	}
	s.backend.Release(c)
	return nil
}
