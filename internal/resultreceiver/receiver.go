// Package resultreceiver implements the response side of the wire
// protocol: reading back the remote compiler's wait status, its stderr,
// the object file, and an optional dependency file, and writing each to
// the caller-supplied paths.
package resultreceiver

import (
	"fmt"
	"os"

	"rdistcc/internal/preprocessor"
	"rdistcc/internal/wire"
)

// Result is what came back from the server.
type Result struct {
	Status preprocessor.WaitStatus
	Stderr []byte
}

// Receive reads STAT, SERR, and — only if the compile succeeded — DOTO
// and an optional DOTD, writing the object and dependency payloads to
// outputFname and depsFname respectively, and the stderr payload to
// serverStderrFname.
func Receive(r *wire.Reader, outputFname, depsFname, serverStderrFname string) (Result, error) {
	statusCode, err := r.Int("STAT")
	if err != nil {
		return Result{}, fmt.Errorf("resultreceiver: read status: %w", err)
	}
	status := preprocessor.WaitStatus{ExitCode: statusCode}

	stderr, err := r.TokenExpect("SERR")
	if err != nil {
		return Result{}, fmt.Errorf("resultreceiver: read stderr: %w", err)
	}
	if serverStderrFname != "" {
		if err := os.WriteFile(serverStderrFname, stderr, 0o644); err != nil {
			return Result{}, fmt.Errorf("resultreceiver: write stderr to %s: %w", serverStderrFname, err)
		}
	}

	if !status.Success() {
		return Result{Status: status, Stderr: stderr}, nil
	}

	if err := receiveFileToken(r, "DOTO", outputFname); err != nil {
		return Result{}, fmt.Errorf("resultreceiver: object file: %w", err)
	}

	tag, payload, err := r.Token()
	if err == nil && tag == "DOTD" && depsFname != "" {
		if err := os.WriteFile(depsFname, payload, 0o644); err != nil {
			return Result{}, fmt.Errorf("resultreceiver: write deps to %s: %w", depsFname, err)
		}
	}

	return Result{Status: status, Stderr: stderr}, nil
}

func receiveFileToken(r *wire.Reader, tag, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()
	if _, err := r.CopyTo(tag, f); err != nil {
		return err
	}
	return nil
}
