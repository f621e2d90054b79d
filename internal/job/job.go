// Package job carries the job descriptor: everything about a single
// compile invocation the dispatch engine needs, independent of which
// host it ends up going to.
package job

import "rdistcc/internal/preprocessor"

// Descriptor is one compiler invocation to dispatch remotely.
type Descriptor struct {
	// ID is a process-unique identifier used for logging/tracing
	// correlation, generated by the CLI with google/uuid.
	ID string

	// Argv is the full compiler argument vector, argv[0] included.
	Argv []string

	// InputFname is the original source filename, used only for
	// logging/state.
	InputFname string

	// CppFname is the preprocessed-source path. Only meaningful when
	// the host's PreprocessSite is Client.
	CppFname string

	// Files is the file list shipped to the server for SERVER-site
	// preprocessing. Only meaningful when PreprocessSite is Server.
	Files []string

	OutputFname       string
	DepsFname         string
	ServerStderrFname string

	// Cpp is the running (or already-exited) local preprocessor, nil
	// if there is none to wait for.
	Cpp *preprocessor.Handle

	// Lock is the local concurrency slot held on entry, nil if none.
	Lock Locker

	// DistLTO disables the GCDA side channel entirely: no GCDA token is
	// ever emitted for an LTO dispatch.
	DistLTO bool
}

// Locker is the local-lock handle contract: a descriptor, or none.
// internal/lock.Handle implements it; tests substitute fakes.
type Locker interface {
	Release() error
}
