//go:build !unix && !windows

package fastfs

import (
	"io/fs"
	"os"
)

func setPermissions(_ *os.File, name string, mode fs.FileMode) error {
	return os.Chmod(name, mode)
}
