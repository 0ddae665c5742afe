package fastclose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"syscall"
	"time"
)

// aLongTimeAgo is a non-zero time, far in the past, used for immediate deadlines.
var aLongTimeAgo = time.Unix(0, 0)

// as returns the inner handle as I.
func as[I, T any](h *Handle[T]) (I, error) {
	var zero I
	p := h.p.Load()
	if p == nil {
		return zero, ErrReleased
	}
	i, ok := any(p).(I)
	if !ok {
		return zero, unsupported[I](p)
	}
	return i, nil
}

func unsupported[I any](p any) error {
	return fmt.Errorf("fastclose: %T does not implement %v: %w", p, reflect.TypeOf((*I)(nil)).Elem(), errors.ErrUnsupported)
}

// Read implements [io.Reader].
func (h *Handle[T]) Read(b []byte) (int, error) {
	r, err := as[io.Reader](h)
	if err != nil {
		return 0, err
	}
	return r.Read(b)
}

// ReadAt implements [io.ReaderAt].
func (h *Handle[T]) ReadAt(b []byte, off int64) (int, error) {
	r, err := as[io.ReaderAt](h)
	if err != nil {
		return 0, err
	}
	return r.ReadAt(b, off)
}

// Write implements [io.Writer].
func (h *Handle[T]) Write(b []byte) (int, error) {
	w, err := as[io.Writer](h)
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

// WriteAt implements [io.WriterAt].
func (h *Handle[T]) WriteAt(b []byte, off int64) (int, error) {
	w, err := as[io.WriterAt](h)
	if err != nil {
		return 0, err
	}
	return w.WriteAt(b, off)
}

// WriteString implements [io.StringWriter].
func (h *Handle[T]) WriteString(s string) (int, error) {
	w, err := as[io.Writer](h)
	if err != nil {
		return 0, err
	}
	return io.WriteString(w, s)
}

// Seek implements [io.Seeker].
func (h *Handle[T]) Seek(offset int64, whence int) (int64, error) {
	s, err := as[io.Seeker](h)
	if err != nil {
		return 0, err
	}
	return s.Seek(offset, whence)
}

// writerOnly hides the ReadFrom method of the wrapped writer.
type writerOnly struct {
	io.Writer
}

// readerOnly hides the WriteTo method of the wrapped reader.
type readerOnly struct {
	io.Reader
}

// ReadFrom implements [io.ReaderFrom].
// It uses the inner handle's ReadFrom if available, e.g. copy_file_range(2) on Linux.
func (h *Handle[T]) ReadFrom(r io.Reader) (int64, error) {
	p := h.p.Load()
	if p == nil {
		return 0, ErrReleased
	}
	if rf, ok := any(p).(io.ReaderFrom); ok {
		return rf.ReadFrom(r)
	}
	w, ok := any(p).(io.Writer)
	if !ok {
		return 0, unsupported[io.Writer](p)
	}
	return io.Copy(writerOnly{w}, r)
}

// WriteTo implements [io.WriterTo].
// It uses the inner handle's WriteTo if available, e.g. sendfile(2) on Linux.
func (h *Handle[T]) WriteTo(w io.Writer) (int64, error) {
	p := h.p.Load()
	if p == nil {
		return 0, ErrReleased
	}
	if wt, ok := any(p).(io.WriterTo); ok {
		return wt.WriteTo(w)
	}
	r, ok := any(p).(io.Reader)
	if !ok {
		return 0, unsupported[io.Reader](p)
	}
	return io.Copy(w, readerOnly{r})
}

// Sync commits the contents of the inner handle to stable storage.
func (h *Handle[T]) Sync() error {
	s, err := as[interface{ Sync() error }](h)
	if err != nil {
		return err
	}
	return s.Sync()
}

// Truncate changes the size of the inner file.
func (h *Handle[T]) Truncate(size int64) error {
	t, err := as[interface{ Truncate(int64) error }](h)
	if err != nil {
		return err
	}
	return t.Truncate(size)
}

// Stat returns the [fs.FileInfo] describing the inner file.
func (h *Handle[T]) Stat() (fs.FileInfo, error) {
	s, err := as[interface {
		Stat() (fs.FileInfo, error)
	}](h)
	if err != nil {
		return nil, err
	}
	return s.Stat()
}

// Chmod changes the mode of the inner file.
func (h *Handle[T]) Chmod(mode fs.FileMode) error {
	c, err := as[interface{ Chmod(fs.FileMode) error }](h)
	if err != nil {
		return err
	}
	return c.Chmod(mode)
}

// Name returns the name of the inner file, or an empty string if
// the inner handle has no name or has been released.
func (h *Handle[T]) Name() string {
	n, err := as[interface{ Name() string }](h)
	if err != nil {
		return ""
	}
	return n.Name()
}

// Fd returns the file descriptor or handle of the inner file.
// Like [os.File.Fd], it returns ^uintptr(0) if there is none.
func (h *Handle[T]) Fd() uintptr {
	f, err := as[interface{ Fd() uintptr }](h)
	if err != nil {
		return ^uintptr(0)
	}
	return f.Fd()
}

// SyscallConn returns a raw connection to the inner file.
func (h *Handle[T]) SyscallConn() (syscall.RawConn, error) {
	c, err := as[syscall.Conn](h)
	if err != nil {
		return nil, err
	}
	return c.SyscallConn()
}

type deadliner interface {
	SetDeadline(time.Time) error
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(time.Time) error
}

// SetDeadline sets the read and write deadlines of the inner handle.
// See [os.File.SetDeadline].
func (h *Handle[T]) SetDeadline(t time.Time) error {
	d, err := as[deadliner](h)
	if err != nil {
		return err
	}
	return d.SetDeadline(t)
}

// SetReadDeadline sets the read deadline of the inner handle.
func (h *Handle[T]) SetReadDeadline(t time.Time) error {
	d, err := as[readDeadliner](h)
	if err != nil {
		return err
	}
	return d.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline of the inner handle.
func (h *Handle[T]) SetWriteDeadline(t time.Time) error {
	d, err := as[writeDeadliner](h)
	if err != nil {
		return err
	}
	return d.SetWriteDeadline(t)
}

// ReadContext is like Read, but returns early with ctx's error when ctx is
// done while the read is parked on the runtime poller.
//
// Cancellation only works if the inner handle supports read deadlines,
// e.g. pipes on Unix. Regular files block until the read completes, exactly
// as they would without the wrapper. The read deadline is cleared on return.
func (h *Handle[T]) ReadContext(ctx context.Context, b []byte) (int, error) {
	r, err := as[io.Reader](h)
	if err != nil {
		return 0, err
	}
	var set func(time.Time) error
	if d, ok := r.(readDeadliner); ok {
		set = d.SetReadDeadline
	}
	return doContext(ctx, set, func() (int, error) {
		return r.Read(b)
	})
}

// WriteContext is like Write, but returns early with ctx's error when ctx is
// done while the write is parked on the runtime poller.
// See [Handle.ReadContext] for which handles can be interrupted.
func (h *Handle[T]) WriteContext(ctx context.Context, b []byte) (int, error) {
	w, err := as[io.Writer](h)
	if err != nil {
		return 0, err
	}
	var set func(time.Time) error
	if d, ok := w.(writeDeadliner); ok {
		set = d.SetWriteDeadline
	}
	return doContext(ctx, set, func() (int, error) {
		return w.Write(b)
	})
}

// doContext runs op with the deadline controlled by set tied to ctx.
func doContext(ctx context.Context, set func(time.Time) error, op func() (int, error)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if set == nil || ctx.Done() == nil {
		return op()
	}

	deadline, _ := ctx.Deadline()
	if err := set(deadline); err != nil {
		// os.ErrNoDeadline: the handle is not pollable.
		return op()
	}
	defer set(time.Time{})

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		set(aLongTimeAgo)
		close(done)
	})

	n, err := op()
	if !stop() {
		<-done
	}
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
	}
	return n, err
}
