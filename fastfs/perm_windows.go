package fastfs

import (
	"io/fs"
	"os"

	"golang.org/x/sys/windows"
)

// setPermissions mirrors the owner-writable bit of mode as the
// read-only attribute of the named file, the only permission Windows has.
func setPermissions(_ *os.File, name string, mode fs.FileMode) error {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return &fs.PathError{Op: "chmod", Path: name, Err: err}
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return &fs.PathError{Op: "chmod", Path: name, Err: err}
	}
	if mode&0o200 != 0 {
		attrs &^= windows.FILE_ATTRIBUTE_READONLY
	} else {
		attrs |= windows.FILE_ATTRIBUTE_READONLY
	}
	if err := windows.SetFileAttributes(p, attrs); err != nil {
		return &fs.PathError{Op: "chmod", Path: name, Err: err}
	}
	return nil
}
