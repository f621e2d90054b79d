// Package dispatch implements the top-level remote-compile state machine:
// it composes the transport opener, request framer, preprocessor waiter,
// and GCDA staging, streams the preprocessed source (or file bundle),
// triggers result retrieval, and guarantees teardown of every descriptor,
// child, and lock on every exit path.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"rdistcc/internal/authctx"
	"rdistcc/internal/bulk"
	"rdistcc/internal/gcda"
	"rdistcc/internal/hostdef"
	"rdistcc/internal/job"
	"rdistcc/internal/observability"
	"rdistcc/internal/preprocessor"
	"rdistcc/internal/resultreceiver"
	"rdistcc/internal/transport"
	"rdistcc/internal/wire"
)

// Outcome is the dispatch outcome: the remote compiler's wait status plus
// whatever stderr it produced. A nil error from Run only means the
// transport succeeded; callers must still inspect Outcome.Remote before
// assuming a successful compile.
type Outcome struct {
	Remote    preprocessor.WaitStatus
	Stderr    []byte
	DotiBytes int64
}

// Options bundles the collaborators Run composes but does not own the
// lifecycle of: the process-wide GCDA cleanup registry, the
// authentication handshake to run when the host requires one, and the
// observability notifier for phase/summary reporting.
type Options struct {
	Registry  *gcda.CleanupRegistry
	Handshake authctx.Handshake
	Notifier  *observability.Notifier
}

// corkedWriter adapts a plain io.Writer plus a wire.Corker into the single
// value wire.NewWriter expects, since transport.Channel implements
// SetNoDelay but Channel.Send (the pipe or socket half) does not.
type corkedWriter struct {
	raw    io.Writer
	corker wire.Corker
}

func (c corkedWriter) Write(p []byte) (int, error) { return c.raw.Write(p) }
func (c corkedWriter) SetNoDelay(cork bool) error  { return c.corker.SetNoDelay(cork) }

// Run drives one dispatch of desc against host, implementing the
// CONNECT -> [AUTH] -> SEND -> [CPP-WAIT] -> STREAM -> [GCDA] -> FLUSH ->
// COMPILE-WAIT -> RECEIVE -> TEARDOWN state machine. TEARDOWN always runs,
// via a single deferred closure, regardless of which state the function
// exits from.
func Run(ctx context.Context, host hostdef.Host, desc *job.Descriptor, opts Options) (Outcome, error) {
	host.AssertKnownMode()
	observability.LogDebugf("dispatch: exec argv=%v", desc.Argv)

	var out Outcome
	var ch *transport.Channel
	lockReleased := false

	releaseLock := func() {
		if lockReleased || desc.Lock == nil {
			return
		}
		lockReleased = true
		if err := desc.Lock.Release(); err != nil {
			observability.LogDebugf("dispatch: release lock: %v", err)
		}
	}

	// Teardown is bound to the single return path via defer so every
	// early return above still closes descriptors, reaps the tunnel
	// child, and releases the lock exactly once.
	defer func() {
		releaseLock()
		if ch != nil {
			if err := ch.Close(); err != nil {
				observability.LogDebugf("dispatch: close channel: %v", err)
			}
			ch.Reap()
		}
	}()

	finishConnect := opts.Notifier.Note(observability.PhaseConnect, observability.Remote)
	var err error
	ch, err = transport.Open(host)
	finishConnect()
	if err != nil {
		return out, &TransportError{Op: "connect", Err: err}
	}

	if host.Authenticate {
		if opts.Handshake == nil {
			return out, &AuthError{Err: fmt.Errorf("host %q requires authentication but no handshake was configured", host.Name)}
		}
		if err := opts.Handshake(ch.Send, ch.Recv); err != nil {
			return out, &AuthError{Err: err}
		}
	}

	w := wire.NewWriter(corkedWriter{raw: ch.Send, corker: ch})
	if err := w.Cork(true); err != nil {
		return out, &TransportError{Op: "cork", Err: err}
	}

	finishSend := opts.Notifier.Note(observability.PhaseSend, observability.Remote)
	err = frame(w, host, desc)
	finishSend()
	if err != nil {
		return out, &ProtocolError{Op: "frame request", Err: err}
	}

	switch host.PreprocessSite {
	case hostdef.SiteServer:
		if err := bulk.SendFiles(w, desc.Files, host.Compress); err != nil {
			return out, &ProtocolError{Op: "send file bundle", Err: err}
		}

	case hostdef.SiteClient:
		finishCPP := opts.Notifier.Note(observability.PhaseCPP, observability.Local)
		status, waitErr := preprocessor.Wait(ctx, desc.Cpp)
		finishCPP()
		releaseLock() // release exactly after CPP-WAIT, before STREAM.
		if waitErr != nil {
			return out, &ChildError{Err: waitErr}
		}
		out.Remote = status
		if !status.Success() {
			// A failed preprocessor means no DOTI/GCDA is sent and no
			// receive is attempted; the caller only learns the
			// preprocessor's own status.
			return out, nil
		}

		n, err := streamPreprocessed(w, host, desc)
		if err != nil {
			var ioErr *IOError
			if errors.As(err, &ioErr) {
				return out, ioErr
			}
			return out, &ProtocolError{Op: "stream preprocessed source", Err: err}
		}
		out.DotiBytes = n

		if err := sendGCDA(w, opts, host, desc); err != nil {
			var ioErr *IOError
			if errors.As(err, &ioErr) {
				return out, ioErr
			}
			return out, &ProtocolError{Op: "gcda", Err: err}
		}
	}

	if err := w.Cork(false); err != nil {
		return out, &TransportError{Op: "flush", Err: err}
	}

	finishCompile := opts.Notifier.Note(observability.PhaseCompile, observability.Remote)
	defer finishCompile()

	r := wire.NewReader(ch.Recv)
	result, err := resultreceiver.Receive(r, desc.OutputFname, desc.DepsFname, desc.ServerStderrFname)
	if err != nil {
		return out, &TransportError{Op: "receive result", Err: err}
	}
	out.Remote = result.Status
	out.Stderr = result.Stderr

	opts.Notifier.ObserveBytes("DOTI", out.DotiBytes)
	opts.Notifier.Summary(out.DotiBytes)

	return out, nil
}

// frame writes the request preamble: protocol version, an optional CWD
// (site=SERVER only), then the argument vector.
func frame(w *wire.Writer, host hostdef.Host, desc *job.Descriptor) error {
	if err := w.Int("DIST", host.ProtocolVersion); err != nil {
		return err
	}
	if host.PreprocessSite == hostdef.SiteServer {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w", err)
		}
		if err := w.String("CWD_", cwd); err != nil {
			return err
		}
	}
	if err := w.Int("ARGC", len(desc.Argv)); err != nil {
		return err
	}
	for _, a := range desc.Argv {
		if err := w.String("ARGV", a); err != nil {
			return err
		}
	}
	return nil
}

// streamPreprocessed sends the preprocessed source under DOTI, ordered
// strictly before any GCDA token, lz4-compressed when host.Compress is
// set (the same flag bulk.SendFiles honors for SERVER-site bundles, and
// internal/server expects to see honored on receipt).
func streamPreprocessed(w *wire.Writer, host hostdef.Host, desc *job.Descriptor) (int64, error) {
	f, err := os.Open(desc.CppFname)
	if err != nil {
		return 0, &IOError{Op: "open preprocessed source", Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, &IOError{Op: "stat preprocessed source", Err: err}
	}
	return writeDOTI(w, f, info.Size(), host.Compress)
}

// writeDOTI streams f under the "DOTI" tag, optionally lz4-compressing it
// first. lz4 changes the payload length, so the compressed form has to
// be buffered before framing: the wire format's length prefix must be
// known before the first byte of payload goes out, mirroring
// bulk.sendOneFile's handling of the same constraint for bundled files.
func writeDOTI(w *wire.Writer, f *os.File, size int64, compress bool) (int64, error) {
	if !compress {
		return w.Copy("DOTI", f, size)
	}
	buf := new(bytes.Buffer)
	zw := lz4.NewWriter(buf)
	if _, err := io.Copy(zw, f); err != nil {
		return 0, &IOError{Op: "compress DOTI payload", Err: err}
	}
	if err := zw.Close(); err != nil {
		return 0, &IOError{Op: "finalize DOTI compression", Err: err}
	}
	return w.Copy("DOTI", buf, int64(buf.Len()))
}

// sendGCDA implements the announce-and-send step for profile data, and
// the invariant that exactly one GCDA token is emitted per request when
// active. Staging errors degrade to "GCDA 0" rather than aborting the
// dispatch: they are locally recovered, not fatal.
func sendGCDA(w *wire.Writer, opts Options, host hostdef.Host, desc *job.Descriptor) error {
	if desc.DistLTO {
		return nil
	}

	requested, explicitPath := gcda.ProfileUse(desc.Argv)
	if !requested {
		return w.Int("GCDA", 0)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return w.Int("GCDA", 0)
	}
	expected := gcda.ExpectedPath(cwd, desc.OutputFname, explicitPath)

	staging, ok, err := gcda.Stage(opts.Registry, os.TempDir(), expected, desc.CppFname)
	if err != nil || !ok {
		if err != nil {
			observability.LogDebugf("dispatch: gcda staging degraded to absent: %v", err)
		}
		return w.Int("GCDA", 0)
	}

	if err := w.Int("GCDA", 1); err != nil {
		return err
	}
	f, err := os.Open(staging.StagedPath)
	if err != nil {
		return &IOError{Op: "open staged gcda", Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return &IOError{Op: "stat staged gcda", Err: err}
	}
	_, err = writeDOTI(w, f, info.Size(), host.Compress)
	return err
}
