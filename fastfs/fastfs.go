// Package fastfs provides replacements for the whole-file helpers in Go 'os'
// that release their file handles through [fastclose.Handle].
//
// The functions have the same signatures as their counterparts in 'os', so
// they can be swapped in one for one. The I/O itself is unchanged: only the
// final close is deferred, on platforms where that is worth it.
package fastfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"

	"github.com/database64128/fastclose-go"
)

// ErrInvalidUTF8 is returned by ReadFileString when the file is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("stream did not contain valid UTF-8")

// ReadFile reads the named file and returns the contents, like [os.ReadFile].
// A successful call returns err == nil, not err == EOF.
//
// The file size, if it can be determined, is used as a hint for the
// initial buffer size.
func ReadFile(name string) ([]byte, error) {
	f, err := fastclose.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var size int
	if info, err := f.Stat(); err == nil {
		size64 := info.Size()
		if int64(int(size64)) == size64 {
			size = int(size64)
		}
	}
	size++ // one byte for final read at EOF

	// If a file claims a small size, read at least 512 bytes.
	// In particular, files in Linux's /proc claim size 0 but
	// then do not work right if read in small pieces,
	// so an initial read of 1 byte would not work correctly.
	if size < 512 {
		size = 512
	}

	data := make([]byte, 0, size)
	for {
		n, err := f.Read(data[len(data):cap(data)])
		data = data[:len(data)+n]
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return data, err
		}

		if len(data) >= cap(data) {
			d := append(data[:cap(data)], 0)
			data = d[:len(data)]
		}
	}
}

// ReadFileString reads the named file and returns the contents as a string.
//
// If the contents are not valid UTF-8, ReadFileString returns a
// [*fs.PathError] wrapping [ErrInvalidUTF8].
func ReadFileString(name string) (string, error) {
	data, err := ReadFile(name)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", &fs.PathError{Op: "read", Path: name, Err: ErrInvalidUTF8}
	}
	return string(data), nil
}

// WriteFile writes data to the named file, creating it if necessary,
// like [os.WriteFile]. If the file does not exist, WriteFile creates it with
// permissions perm (before umask); otherwise WriteFile truncates it before
// writing, without changing permissions.
func WriteFile(name string, data []byte, perm fs.FileMode) error {
	f, err := fastclose.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err1 := f.Close(); err1 != nil && err == nil {
		err = err1
	}
	return err
}

// Copy copies the contents of src to dst, then copies the permission bits
// of src to dst. dst is created if it does not exist, and truncated if it does.
//
// On success, the number of bytes copied is returned, and it is equal to the
// size of dst. If copying the permission bits fails, the error is returned
// along with the number of bytes already copied.
//
// If src and dst refer to the same file, the file is likely to be truncated.
func Copy(src, dst string) (written int64, err error) {
	in, err := fastclose.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := fastclose.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	// Copy between the inner files so that os can use copy_file_range(2) and friends.
	written, err = io.Copy(out.Get(), in.Get())
	if err != nil {
		return written, err
	}

	info, err := in.Stat()
	if err != nil {
		return written, err
	}
	return written, setPermissions(out.Get(), dst, info.Mode()) // perm_unix.go, perm_windows.go, perm_other.go
}
