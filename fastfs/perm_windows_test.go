package fastfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyReadOnly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, WriteFile(src, []byte("read only"), 0o644))
	require.NoError(t, os.Chmod(src, 0o444))
	t.Cleanup(func() {
		os.Chmod(src, 0o666)
		os.Chmod(dst, 0o666)
	})

	_, err := Copy(src, dst)
	require.NoError(t, err)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Zero(t, info.Mode().Perm()&0o200)
}
