package resultreceiver

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"rdistcc/internal/wire"
)

func TestReceiveSuccessWithDeps(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	require.NoError(t, w.Int("STAT", 0))
	require.NoError(t, w.String("SERR", ""))
	require.NoError(t, w.String("DOTO", "object-bytes"))
	require.NoError(t, w.String("DOTD", "a.o: a.c a.h\n"))
	require.NoError(t, w.Flush())

	outPath := filepath.Join(dir, "a.o")
	depsPath := filepath.Join(dir, "a.d")
	errPath := filepath.Join(dir, "server.err")

	r := wire.NewReader(&buf)
	res, err := Receive(r, outPath, depsPath, errPath)
	require.NoError(t, err)
	require.True(t, res.Status.Success())

	obj, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "object-bytes", string(obj))

	deps, err := os.ReadFile(depsPath)
	require.NoError(t, err)
	require.Equal(t, "a.o: a.c a.h\n", string(deps))
}

func TestReceiveFailureSkipsObjectAndDeps(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	require.NoError(t, w.Int("STAT", 1))
	require.NoError(t, w.String("SERR", "a.c:1: error: boom\n"))
	require.NoError(t, w.Flush())

	outPath := filepath.Join(dir, "a.o")
	r := wire.NewReader(&buf)
	res, err := Receive(r, outPath, filepath.Join(dir, "a.d"), filepath.Join(dir, "server.err"))
	require.NoError(t, err)
	require.False(t, res.Status.Success())

	_, err = os.Stat(outPath)
	require.True(t, os.IsNotExist(err))
}
