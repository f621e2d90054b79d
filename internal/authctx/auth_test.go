package authctx

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultHandshakeSucceeds(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 4)
		if _, err := serverConn.Read(buf); err != nil {
			done <- err
			return
		}
		_, err := serverConn.Write([]byte{1})
		done <- err
	}()

	hs := Default([]byte("tok1"))
	err := hs(clientConn, clientConn)
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestDefaultHandshakeRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		buf := make([]byte, 4)
		serverConn.Read(buf)
		serverConn.Write([]byte{0})
	}()

	hs := Default([]byte("tok1"))
	err := hs(clientConn, clientConn)
	require.Error(t, err)
}
