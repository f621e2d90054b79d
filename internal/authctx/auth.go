// Package authctx performs the optional authentication handshake: it
// negotiates a security context on the channel, then discards it
// immediately since confidentiality/integrity services are not used
// beyond the handshake itself. The context's key material is held in
// guarded memory (memguard) for the brief window it exists.
package authctx

import (
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

// Handshake performs a minimal challenge/response exchange over ch,
// producing (and immediately destroying) a locked-memory security
// context. It is injectable so tests can substitute a fake without a
// real Kerberos/GSSAPI environment.
type Handshake func(send io.Writer, recv io.Reader) error

// Default is a simple shared-token exchange: the client sends its raw
// token bytes (no length prefix), the server answers with one
// acknowledgement byte, 1 meaning accepted. Production deployments are
// expected to inject a stronger Handshake (e.g. backed by TLS client
// certs) — this default only exists so the AUTH state has something real
// to do in tests. internal/server does not perform this handshake.
func Default(token []byte) Handshake {
	return func(send io.Writer, recv io.Reader) error {
		ctx := memguard.NewBuffer(len(token))
		if ctx == nil {
			return fmt.Errorf("authctx: allocate security context")
		}
		defer ctx.Destroy()
		copy(ctx.Bytes(), token)

		if _, err := send.Write(ctx.Bytes()); err != nil {
			return fmt.Errorf("authctx: send token: %w", err)
		}
		ack := make([]byte, 1)
		if _, err := io.ReadFull(recv, ack); err != nil {
			return fmt.Errorf("authctx: read ack: %w", err)
		}
		if ack[0] != 1 {
			return fmt.Errorf("authctx: handshake rejected")
		}
		// ctx.Destroy() above discards the security context on return.
		return nil
	}
}
