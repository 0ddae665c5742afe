//go:build unix

package fastfs

import (
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// setPermissions applies the permission bits of mode to the open file f.
func setPermissions(f *os.File, name string, mode fs.FileMode) error {
	if err := unix.Fchmod(int(f.Fd()), unixMode(mode)); err != nil {
		return &fs.PathError{Op: "chmod", Path: name, Err: err}
	}
	return nil
}

// unixMode converts the permission bits of m to a unix mode.
func unixMode(m fs.FileMode) uint32 {
	o := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		o |= unix.S_ISUID
	}
	if m&fs.ModeSetgid != 0 {
		o |= unix.S_ISGID
	}
	if m&fs.ModeSticky != 0 {
		o |= unix.S_ISVTX
	}
	return o
}
