package fastclose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// countingCloser counts calls to Close.
type countingCloser struct {
	closes atomic.Int32
	err    error
}

func (c *countingCloser) Close() error {
	c.closes.Add(1)
	return c.err
}

// writeOnlyHandle has Write but no ReadFrom.
type writeOnlyHandle struct {
	buf bytes.Buffer
}

func (w *writeOnlyHandle) Write(b []byte) (int, error) { return w.buf.Write(b) }
func (w *writeOnlyHandle) Close() error                { return nil }

// readOnlyHandle has Read but no WriteTo.
type readOnlyHandle struct {
	r io.Reader
}

func (r *readOnlyHandle) Read(b []byte) (int, error) { return r.r.Read(b) }
func (r *readOnlyHandle) Close() error               { return nil }

// keyedHandle brings its own equality and ordering.
type keyedHandle struct {
	key int
}

func (k *keyedHandle) Close() error               { return nil }
func (k *keyedHandle) Equal(o *keyedHandle) bool  { return k.key == o.key }
func (k *keyedHandle) Compare(o *keyedHandle) int { return k.key - o.key }

// withState replaces the process-wide state for the duration of the test.
// Tests calling it must not run in parallel.
func withState(t *testing.T, b Backend, deferClose bool) {
	t.Helper()
	setState(t, &runtimeState{backend: b, deferClose: deferClose})
}

// resetState clears the process-wide state for the duration of the test,
// as if Configure had never been called.
func resetState(t *testing.T) {
	t.Helper()
	setState(t, nil)
}

func setState(t *testing.T, s *runtimeState) {
	stateMu.Lock()
	prev := state.Load()
	state.Store(s)
	stateMu.Unlock()

	t.Cleanup(func() {
		stateMu.Lock()
		state.Store(prev)
		stateMu.Unlock()
	})
}

func drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, Drain(ctx))
}

func createTemp(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "fastclose")
	require.NoError(t, err)
	return f
}

func TestHandleSize(t *testing.T) {
	var h Handle[os.File]
	var p *os.File
	assert.Equal(t, unsafe.Sizeof(p), unsafe.Sizeof(h))
}

func TestFormatMatchesInner(t *testing.T) {
	withState(t, &InlineBackend{}, false)
	f := createTemp(t)
	h := New(f)
	defer h.Close()

	for _, verb := range []string{"%v", "%+v", "%#v", "%s", "%x", "%d"} {
		assert.Equal(t, fmt.Sprintf(verb, f), fmt.Sprintf(verb, h), verb)
	}

	// fmt resolves %T and %p without calling Format.
	assert.Equal(t, "*fastclose.Handle[os.File]", fmt.Sprintf("%T", h))
	assert.Equal(t, fmt.Sprintf("%p", unsafe.Pointer(h)), fmt.Sprintf("%p", h))

	s := fmt.Sprintf("%#v", h)
	assert.Contains(t, s, "os.File")
	assert.NotContains(t, s, "atomic")
	assert.NotContains(t, s, "Handle")
}

func TestFormatReleased(t *testing.T) {
	h := New(&countingCloser{})
	h.IntoInner()
	assert.Equal(t, fmt.Sprintf("%v", (*countingCloser)(nil)), fmt.Sprintf("%v", h))
}

func TestIntoInnerDoesNotClose(t *testing.T) {
	withState(t, &recordingBackend{}, true)
	c := &countingCloser{}
	h := New(c)

	inner := h.IntoInner()
	assert.Same(t, c, inner)
	assert.Nil(t, h.Get())
	assert.Nil(t, h.IntoInner())

	err := h.Close()
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.Zero(t, c.closes.Load())
}

func TestCloseInline(t *testing.T) {
	b := &recordingBackend{}
	withState(t, b, false)
	c := &countingCloser{err: errBoom}
	h := New(c)

	assert.ErrorIs(t, h.Close(), errBoom)
	assert.EqualValues(t, 1, c.closes.Load())
	assert.Empty(t, b.closers())

	assert.ErrorIs(t, h.Close(), ErrReleased)
	assert.EqualValues(t, 1, c.closes.Load())
}

func TestCloseDeferred(t *testing.T) {
	withState(t, &GoroutineBackend{}, true)
	c := &countingCloser{err: errBoom}
	h := New(c)

	assert.NoError(t, h.Close())
	drain(t)
	assert.EqualValues(t, 1, c.closes.Load())
	assert.ErrorIs(t, h.Close(), ErrReleased)
}

func TestConcurrentHandles(t *testing.T) {
	withState(t, &WorkerPool{Workers: 4, QueueSize: 8}, true)

	const goroutines, perGoroutine = 64, 16
	closers := make([]*countingCloser, goroutines*perGoroutine)
	for i := range closers {
		closers[i] = &countingCloser{}
	}

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(cs []*countingCloser) {
			defer wg.Done()
			for _, c := range cs {
				assert.NoError(t, New(c).Close())
			}
		}(closers[g*perGoroutine : (g+1)*perGoroutine])
	}
	wg.Wait()
	drain(t)

	for i, c := range closers {
		assert.EqualValues(t, 1, c.closes.Load(), "closer %d", i)
	}
}

func TestConcurrentCloseSameHandle(t *testing.T) {
	withState(t, &GoroutineBackend{}, true)
	c := &countingCloser{}
	h := New(c)

	var (
		wg       sync.WaitGroup
		released atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.Close() == nil {
				released.Add(1)
			}
		}()
	}
	wg.Wait()
	drain(t)

	assert.EqualValues(t, 1, released.Load())
	assert.EqualValues(t, 1, c.closes.Load())
}

func TestFileOperations(t *testing.T) {
	withState(t, &InlineBackend{}, false)
	f := createTemp(t)
	h := New(f)

	assert.Equal(t, f.Name(), h.Name())
	assert.Equal(t, f.Fd(), h.Fd())

	n, err := h.Write([]byte("hello, "))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	_, err = h.WriteString("world")
	require.NoError(t, err)
	_, err = h.WriteAt([]byte("W"), 7)
	require.NoError(t, err)
	require.NoError(t, h.Sync())

	off, err := h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Zero(t, off)
	data, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "hello, World", string(data))

	b := make([]byte, 5)
	_, err = h.ReadAt(b, 7)
	require.NoError(t, err)
	assert.Equal(t, "World", string(b))

	require.NoError(t, h.Truncate(5))
	info, err := h.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 5, info.Size())

	require.NoError(t, h.Close())
	_, err = h.Read(b)
	assert.ErrorIs(t, err, ErrReleased)
	_, err = h.Stat()
	assert.ErrorIs(t, err, ErrReleased)
	assert.Empty(t, h.Name())
	assert.Equal(t, ^uintptr(0), h.Fd())
}

func TestCopyThroughHandles(t *testing.T) {
	withState(t, &InlineBackend{}, false)
	dir := t.TempDir()
	src, err := Create(filepath.Join(dir, "src"))
	require.NoError(t, err)
	_, err = src.WriteString("copy me")
	require.NoError(t, err)
	_, err = src.Seek(0, io.SeekStart)
	require.NoError(t, err)

	dst, err := Create(filepath.Join(dir, "dst"))
	require.NoError(t, err)
	n, err := io.Copy(dst, src)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	require.NoError(t, src.Close())
	require.NoError(t, dst.Close())

	r, err := OpenFile(filepath.Join(dir, "dst"), os.O_RDONLY, 0)
	require.NoError(t, err)
	defer r.Close()
	var sb strings.Builder
	_, err = r.WriteTo(&sb)
	require.NoError(t, err)
	assert.Equal(t, "copy me", sb.String())
}

func TestOpenMissing(t *testing.T) {
	h, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Nil(t, h)
}

func TestUnsupported(t *testing.T) {
	h := New(&countingCloser{})

	_, err := h.Read(nil)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	_, err = h.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.ErrorIs(t, h.Sync(), errors.ErrUnsupported)
	_, err = h.SyscallConn()
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.ErrorIs(t, h.SetDeadline(time.Now()), errors.ErrUnsupported)
	_, err = h.ReadFrom(strings.NewReader("x"))
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	_, err = h.ReadContext(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	assert.Empty(t, h.Name())
}

func TestReadFromWriteToFallback(t *testing.T) {
	w := &writeOnlyHandle{}
	hw := New(w)
	n, err := hw.ReadFrom(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, "abc", w.buf.String())

	hr := New(&readOnlyHandle{r: strings.NewReader("xyz")})
	var buf bytes.Buffer
	n, err = hr.WriteTo(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, "xyz", buf.String())
}

func TestEqualCompareIdentity(t *testing.T) {
	a, b := &countingCloser{}, &countingCloser{}
	ha1, ha2, hb := New(a), New(a), New(b)

	assert.True(t, ha1.Equal(ha2))
	assert.False(t, ha1.Equal(hb))
	assert.Zero(t, ha1.Compare(ha2))
	assert.NotZero(t, ha1.Compare(hb))
	assert.Equal(t, ha1.Compare(hb), -hb.Compare(ha1))

	hb.IntoInner()
	assert.Equal(t, 1, ha1.Compare(hb))
	assert.Equal(t, -1, hb.Compare(ha1))

	ha1.IntoInner()
	assert.True(t, ha1.Equal(hb))
	assert.Zero(t, ha1.Compare(hb))
}

func TestEqualCompareNil(t *testing.T) {
	var nilHandle *Handle[countingCloser]
	h := New(&countingCloser{})

	assert.False(t, h.Equal(nil))
	assert.False(t, nilHandle.Equal(h))
	assert.True(t, nilHandle.Equal(nil))
	assert.Equal(t, 1, h.Compare(nil))
	assert.Equal(t, -1, nilHandle.Compare(h))
	assert.Zero(t, nilHandle.Compare(nil))

	h.IntoInner()
	assert.True(t, h.Equal(nil))
	assert.Zero(t, h.Compare(nilHandle))
	assert.Equal(t, "<nil>", fmt.Sprintf("%v", nilHandle))
}

func TestEqualCompareDelegates(t *testing.T) {
	h1, h2, h3 := New(&keyedHandle{key: 1}), New(&keyedHandle{key: 1}), New(&keyedHandle{key: 2})

	assert.True(t, h1.Equal(h2))
	assert.False(t, h1.Equal(h3))
	assert.Zero(t, h1.Compare(h2))
	assert.Negative(t, h1.Compare(h3))
	assert.Positive(t, h3.Compare(h1))
}

func TestReadContextCanceled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pipes are not pollable on Windows")
	}
	withState(t, &InlineBackend{}, false)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	hr, hw := New(r), New(w)
	defer hr.Close()
	defer hw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	b := make([]byte, 16)
	_, err = hr.ReadContext(ctx, b)
	assert.ErrorIs(t, err, context.Canceled)

	// The deadline is cleared, so the handle is usable again.
	_, err = hw.WriteContext(context.Background(), []byte("ping"))
	require.NoError(t, err)
	n, err := hr.ReadContext(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(b[:n]))
}

func TestReadContextDeadline(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pipes are not pollable on Windows")
	}
	withState(t, &InlineBackend{}, false)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	hr := New(r)
	defer hr.Close()
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = hr.ReadContext(ctx, make([]byte, 1))
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded), "got %v", err)
}

func TestReadContextDone(t *testing.T) {
	h := New(&readOnlyHandle{r: strings.NewReader("data")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := h.ReadContext(ctx, make([]byte, 4))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestReadContextRegularFile(t *testing.T) {
	withState(t, &InlineBackend{}, false)
	f := createTemp(t)
	_, err := f.WriteString("regular")
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	h := New(f)
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	b := make([]byte, 16)
	n, err := h.ReadContext(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "regular", string(b[:n]))
}
