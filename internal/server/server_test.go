package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rdistcc/internal/wire"
)

func TestHandleClientSiteCompilesAndReturnsObject(t *testing.T) {
	dir := t.TempDir()
	s := New("127.0.0.1:0", "127.0.0.1:0", 4, false, dir, true)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.handleConn(conn)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	w := wire.NewWriter(conn)
	require.NoError(t, w.Int("DIST", 1))
	require.NoError(t, w.Int("ARGC", 5))
	for _, a := range []string{"cc", "-c", "a.i", "-o", "a.o"} {
		require.NoError(t, w.String("ARGV", a))
	}
	src := "int main(void) { return 0; }\n"
	_, err = w.Copy("DOTI", strings.NewReader(src), int64(len(src)))
	require.NoError(t, err)
	require.NoError(t, w.Int("GCDA", 0))
	require.NoError(t, w.Flush())

	r := wire.NewReader(conn)
	stat, err := r.Int("STAT")
	require.NoError(t, err)
	require.Equal(t, 0, stat)

	serr, err := r.TokenExpect("SERR")
	require.NoError(t, err)
	require.Empty(t, string(serr))

	obj, err := r.TokenExpect("DOTO")
	require.NoError(t, err)
	require.NotEmpty(t, obj)
}

func TestHealthzAndStatus(t *testing.T) {
	s := New("127.0.0.1:0", "127.0.0.1:0", 4, false, t.TempDir(), true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Close()
	httpLn.Close()

	s.listenAddr = ln.Addr().String()
	s.httpAddr = httpLn.Addr().String()

	go s.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + s.httpAddr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get("http://" + s.httpAddr + "/status")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}
