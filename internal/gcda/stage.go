// Package gcda implements the profile-guided-optimization side channel:
// locating a .gcda file that matches the object being built, staging it
// next to the preprocessed source, and registering it for cleanup.
package gcda

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rdistcc/internal/mangle"
)

// copyBlockSize is the fixed block size used when streaming a staged
// .gcda file, replacing the original's unchecked single 1024-byte buffer
// with io.CopyBuffer, which handles short writes for us.
const copyBlockSize = 64 * 1024

// ProfileUse reports whether argv requests -fprofile-use, and if an
// explicit path was given, what it is. Matching is unambiguous: either
// the bare flag or "-fprofile-use=<rest>", never both, and only <rest>
// is stored, with no duplicated prefix.
func ProfileUse(argv []string) (requested bool, path string) {
	for _, a := range argv {
		if rest, ok := strings.CutPrefix(a, "-fprofile-use="); ok {
			return true, rest
		}
		if a == "-fprofile-use" {
			requested = true
		}
	}
	return requested, ""
}

// ExpectedPath computes the source .gcda path a prior -fprofile-generate
// build would have produced. cwd is the process working directory,
// outputFname is the compiler's -o argument.
//
// When output is absolute and an explicit profile path was given, the
// filename is the mangled output stem alone, without the mangled-cwd
// prefix used for relative outputs, which may not match
// the compiler's own expected location for that case. That externally
// observed behavior is preserved rather than silently "fixed", since
// nothing in this module's test corpus demonstrates the compiler
// actually wants a different shape.
func ExpectedPath(cwd, outputFname, explicitPath string) string {
	ext := filepath.Ext(outputFname)
	stem := strings.TrimSuffix(outputFname, ext)
	absOutput := filepath.IsAbs(outputFname)

	if explicitPath != "" {
		if !absOutput {
			return filepath.Join(explicitPath, mangle.Path(cwd)+"#"+mangle.Path(stem)+".gcda")
		}
		return filepath.Join(explicitPath, mangle.Path(stem)+".gcda")
	}
	if !absOutput {
		return filepath.Join(cwd, stem+".gcda")
	}
	return stem + ".gcda"
}

// stagingPath returns the path a resolved gcda source is copied to: a
// sibling of the preprocessed source with its extension swapped to
// ".gcda".
func stagingPath(cppFname string) string {
	ext := filepath.Ext(cppFname)
	return strings.TrimSuffix(cppFname, ext) + ".gcda"
}

// GuardTmpDir fails with an error unless dir is writable and executable.
func GuardTmpDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("gcda: tmpdir %s unusable: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("gcda: tmpdir %s is not a directory", dir)
	}
	probe := filepath.Join(dir, ".rdistcc-writable-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("gcda: tmpdir %s not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// Staging describes a successfully staged .gcda file.
type Staging struct {
	SourcePath string
	StagedPath string
}

// Stage probes the resolved source path, copies it (with a bounded
// retry on collision rather than an unbounded loop), and registers the
// staged path for cleanup. A missing source file is not an error: it
// means "abort staging quietly", reported via the second return value.
func Stage(reg *CleanupRegistry, tmpDir, sourcePath, cppFname string) (*Staging, bool, error) {
	if err := GuardTmpDir(tmpDir); err != nil {
		return nil, false, err
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("gcda: open source %s: %w", sourcePath, err)
	}
	defer src.Close()

	wanted := stagingPath(cppFname)
	dst, target, err := createExclusive(wanted)
	if err != nil {
		return nil, false, err
	}

	buf := make([]byte, copyBlockSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		dst.Close()
		os.Remove(target)
		return nil, false, fmt.Errorf("gcda: copy %s to %s: %w", sourcePath, target, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(target)
		return nil, false, fmt.Errorf("gcda: close staged file %s: %w", target, err)
	}

	if err := reg.Register(target); err != nil {
		os.Remove(target)
		return nil, false, fmt.Errorf("gcda: register cleanup for %s: %w", target, err)
	}

	return &Staging{SourcePath: sourcePath, StagedPath: target}, true, nil
}

// createExclusive creates target with O_EXCL. If it already exists (a
// stale staging file from a crashed prior run) it retries exactly once
// against a "-2"-suffixed name rather than looping forever.
func createExclusive(wanted string) (f *os.File, actual string, err error) {
	f, err = os.OpenFile(wanted, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err == nil {
		return f, wanted, nil
	}
	if !os.IsExist(err) {
		return nil, "", fmt.Errorf("gcda: create %s: %w", wanted, err)
	}
	ext := filepath.Ext(wanted)
	alt := strings.TrimSuffix(wanted, ext) + "-2" + ext
	f, err = os.OpenFile(alt, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, "", fmt.Errorf("gcda: create %s (retry after %s existed): %w", alt, wanted, err)
	}
	return f, alt, nil
}
