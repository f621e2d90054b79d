// Package transport opens the send/receive descriptors used to talk to a
// chosen remote host: either one bidirectional TCP socket, or a pair of
// pipes bound to a spawned tunnel child (e.g. ssh).
package transport

import (
	"fmt"
	"io"
	"net"
	"os/exec"
	"time"

	"rdistcc/internal/hostdef"
)

// Channel is the transport channel: a send/recv pair, equal for TCP,
// possibly distinct for a tunnel, plus the tunnel child's pid (0 if
// there is none) so the caller can reap it at teardown.
type Channel struct {
	Send io.WriteCloser
	Recv io.ReadCloser

	tunnelCmd *exec.Cmd
	conn      net.Conn
}

// TunnelPID returns the spawned tunnel child's pid, or 0 if this channel
// is a plain TCP connection.
func (c *Channel) TunnelPID() int {
	if c.tunnelCmd == nil || c.tunnelCmd.Process == nil {
		return 0
	}
	return c.tunnelCmd.Process.Pid
}

// SetNoDelay forwards to the underlying *net.TCPConn when there is one,
// implementing wire.Corker so the coalescing hint has something real to
// toggle for the common TCP case.
func (c *Channel) SetNoDelay(cork bool) error {
	if tc, ok := c.conn.(*net.TCPConn); ok {
		// Corking means "don't send small packets immediately", i.e.
		// disable Nagle-avoidance: SetNoDelay(false).
		return tc.SetNoDelay(!cork)
	}
	return nil
}

// Close closes both descriptors exactly once, handling the TCP case (one
// fd) and the tunnel case (two distinct fds).
func (c *Channel) Close() error {
	if c.conn != nil {
		// TCP: Send and Recv are the same underlying socket.
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("transport: close: %w", err)
		}
		return nil
	}
	var sendErr, recvErr error
	if c.Send != nil {
		sendErr = c.Send.Close()
	}
	if c.Recv != nil {
		recvErr = c.Recv.Close()
	}
	if sendErr != nil {
		return fmt.Errorf("transport: close send: %w", sendErr)
	}
	if recvErr != nil {
		return fmt.Errorf("transport: close recv: %w", recvErr)
	}
	return nil
}

// Reap waits for a spawned tunnel child to exit, ignoring its exit status
// so it never zombifies. It is a no-op for TCP channels.
func (c *Channel) Reap() {
	if c.tunnelCmd != nil {
		_ = c.tunnelCmd.Wait()
	}
}

// dialTimeout bounds how long a TCP connect attempt may take. This is
// this package's own opaque policy, not part of any caller's contract.
const dialTimeout = 30 * time.Second

// Open establishes a Channel for host.
func Open(host hostdef.Host) (*Channel, error) {
	switch host.Mode {
	case hostdef.ModeTCP:
		return openTCP(host)
	case hostdef.ModeTunnel:
		return openTunnel(host)
	default:
		// Resolve() already rejects unknown mode strings at load time;
		// this is only reachable via a hand-built Host, and is a
		// programmer error, not a runtime condition to handle.
		host.AssertKnownMode()
		panic("unreachable")
	}
}

func openTCP(host hostdef.Host) (*Channel, error) {
	addr := fmt.Sprintf("%s:%d", host.Hostname, host.Port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", addr, err)
	}
	return &Channel{Send: conn, Recv: conn, conn: conn}, nil
}

func openTunnel(host hostdef.Host) (*Channel, error) {
	args := tunnelArgs(host)
	cmd := exec.Command(host.TunnelCommand, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: tunnel stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("transport: tunnel stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("transport: spawn tunnel %s: %w", host.TunnelCommand, err)
	}

	return &Channel{Send: stdin, Recv: stdout, tunnelCmd: cmd}, nil
}

// tunnelArgs builds the argument vector for the configured tunnel
// command, following the shape of an ssh invocation: [user@]host plus the
// remote-side command distcc's ssh transport pipes through.
func tunnelArgs(host hostdef.Host) []string {
	target := host.Hostname
	if host.TunnelUser != "" {
		target = host.TunnelUser + "@" + host.Hostname
	}
	return []string{target, "rdistcc", "--pump"}
}
