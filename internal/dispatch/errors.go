package dispatch

import "fmt"

// TransportError covers connect, tunnel-spawn, and read/write failures on
// the channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("dispatch: transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError covers token write failures while framing or streaming
// the request (preamble, file bundle, DOTI, GCDA). Read failures on the
// result stream are reported as TransportError; no protocol version check
// is made.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("dispatch: protocol %s: %v", e.Op, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError covers a failed authentication handshake.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("dispatch: auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// IOError covers local file failures while streaming the request:
// opening, stat-ing or compressing the preprocessed source or the staged
// .gcda file. GCDA staging errors (tmpdir, copy, cleanup registration)
// degrade to "GCDA 0" instead of surfacing here.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("dispatch: io %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// ChildError covers the preprocessor failing to be reaped at all, distinct
// from the preprocessor exiting non-zero (which is a non-error "CPP
// failed" signal carried in Outcome.Remote).
type ChildError struct {
	Err error
}

func (e *ChildError) Error() string { return fmt.Sprintf("dispatch: child: %v", e.Err) }
func (e *ChildError) Unwrap() error { return e.Err }
