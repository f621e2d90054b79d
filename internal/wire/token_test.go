package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.String("CWD_", "/home/build"))
	require.NoError(t, w.Int("GCDA", 1))
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	cwd, err := r.TokenExpect("CWD_")
	require.NoError(t, err)
	require.Equal(t, "/home/build", string(cwd))

	gcda, err := r.Int("GCDA")
	require.NoError(t, err)
	require.Equal(t, 1, gcda)
}

func TestCopyRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	payload := bytes.Repeat([]byte("x"), 4096)
	n, err := w.Copy("DOTI", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	var out bytes.Buffer
	written, err := r.CopyTo("DOTI", &out)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), written)
	require.Equal(t, payload, out.Bytes())
}

func TestTokenExpectMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Int("GCDA", 0))
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	_, err := r.TokenExpect("DOTI")
	require.Error(t, err)
}

func TestCorkFlushesOnUncork(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Cork(true))
	require.NoError(t, w.String("ARGV", "cc"))
	require.Zero(t, buf.Len(), "corked writer should not have flushed yet")
	require.NoError(t, w.Cork(false))
	require.NotZero(t, buf.Len(), "uncorking must flush buffered tokens")
}
