package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rdistcc/internal/authctx"
	"rdistcc/internal/config"
	"rdistcc/internal/dispatch"
	"rdistcc/internal/gcda"
	"rdistcc/internal/hostdef"
	"rdistcc/internal/job"
	"rdistcc/internal/lock"
	"rdistcc/internal/observability"
	"rdistcc/internal/preprocessor"
)

var dispatchCmd = &cobra.Command{
	Use:                "dispatch -- <compiler> [args...]",
	Short:              "Dispatch one compiler invocation to the first configured host",
	DisableFlagParsing: true,
	RunE:               runDispatch,
}

// runDispatch is the CLI's client entrypoint: it does the argument
// bookkeeping the dispatch engine deliberately stays out of (picking the
// input and output filenames), then hands a fully-populated
// job.Descriptor to internal/dispatch.Run for a single host with no retry.
// It does not inspect argv to decide whether a remote compile is
// appropriate: every invocation is dispatched.
func runDispatch(cmd *cobra.Command, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("dispatch: no compiler command given")
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	observability.InitializeLogger(cfg.Logging.Level)
	logger := observability.NewLogger(cfg.Logging.Level)

	hosts, err := hostdef.LoadList(cfg.Hosts.Path)
	if err != nil {
		return err
	}
	host, ok := hosts.First()
	if !ok {
		return fmt.Errorf("dispatch: no hosts configured in %s", cfg.Hosts.Path)
	}
	if err := host.Resolve(); err != nil {
		return err
	}

	ctx := context.Background()
	desc := &job.Descriptor{
		ID:         uuid.NewString(),
		Argv:       argv,
		InputFname: inputFile(argv),
	}
	desc.OutputFname, _ = outputFile(argv)
	if desc.OutputFname == "" {
		desc.OutputFname = defaultObjectName(desc.InputFname)
	}

	reg := gcda.NewCleanupRegistry()
	defer reg.Drain()

	switch host.PreprocessSite {
	case hostdef.SiteClient:
		l, err := lock.Acquire(ctx, cfg.Dispatch.LockDir, host.Name)
		if err != nil {
			return err
		}
		desc.Lock = l

		scratch, err := os.MkdirTemp(cfg.GetTempDir(), "rdistcc-")
		if err != nil {
			l.Release()
			return fmt.Errorf("dispatch: create scratch dir: %w", err)
		}
		desc.CppFname = filepath.Join(scratch, filepath.Base(strings.TrimSuffix(desc.InputFname, filepath.Ext(desc.InputFname)))+".i")

		cpp, err := spawnPreprocessor(argv, desc.CppFname)
		if err != nil {
			l.Release()
			return err
		}
		desc.Cpp = cpp

	case hostdef.SiteServer:
		desc.Files = []string{desc.InputFname}
	}

	var handshake authctx.Handshake
	if host.Authenticate {
		handshake = authctx.Default([]byte(os.Getenv("RDISTCC_AUTH_TOKEN")))
	}

	spanCtx, notifier := observability.Start(ctx, logger, host.Hostname, desc.InputFname)
	defer notifier.Finish()

	out, err := dispatch.Run(spanCtx, host, desc, dispatch.Options{
		Registry:  reg,
		Handshake: handshake,
		Notifier:  notifier,
	})
	if err != nil {
		return err
	}

	if len(out.Stderr) > 0 {
		os.Stderr.Write(out.Stderr)
	}
	// The dispatch engine reports the outcome; it never falls back
	// locally or retries a different host, so the CLI's only remaining
	// job is to propagate the remote compiler's exit code. Returning it
	// as an exitStatusError instead of calling os.Exit here lets every
	// deferred cleanup up the call stack (cleanup registry drain, span
	// finish, tracer shutdown) run before the process actually exits.
	if !out.Remote.Success() {
		return &exitStatusError{code: nonZeroExit(out.Remote.ExitCode)}
	}
	return nil
}

// exitStatusError carries a process exit code through cobra's error
// return path without a message: main prints nothing for it and exits
// with the carried code once all of runDispatch's defers have run.
type exitStatusError struct{ code int }

func (e *exitStatusError) Error() string { return "" }

func nonZeroExit(code int) int {
	if code == 0 {
		return 1
	}
	return code
}

// spawnPreprocessor runs the preprocessing form of argv (see cppArgvOf),
// redirecting stdout to cppFname. The child inherits its own duplicated
// descriptor once Start() returns inside preprocessor.Spawn, so the
// parent's *os.File can close immediately afterward without truncating
// the child's output.
func spawnPreprocessor(argv []string, cppFname string) (*preprocessor.Handle, error) {
	f, err := os.Create(cppFname)
	if err != nil {
		return nil, fmt.Errorf("dispatch: create preprocessed output %s: %w", cppFname, err)
	}
	h, err := preprocessor.Spawn(cppArgvOf(argv), f)
	f.Close()
	if err != nil {
		return nil, err
	}
	return h, nil
}

// cppArgvOf builds the argv for the local preprocessing pass: argv plus
// "-E", with any "-o <file>" stripped so the compiler writes the
// preprocessed text to stdout (captured into cppFname) instead of
// overwriting the eventual object file argument.
func cppArgvOf(argv []string) []string {
	out := make([]string, 0, len(argv)+1)
	for i := 1; i < len(argv); i++ {
		if argv[i] == "-o" {
			i++
			continue
		}
		out = append(out, argv[i])
	}
	return append(append([]string{argv[0]}, out...), "-E")
}

// inputFile picks the last non-flag argument as the source file, mirroring
// the common convention (and distcc's own) that the compiler invocation
// carries exactly one source per dispatch.
func inputFile(argv []string) string {
	var input string
	skip := false
	for i := 1; i < len(argv); i++ {
		if skip {
			skip = false
			continue
		}
		a := argv[i]
		if a == "-o" {
			skip = true
			continue
		}
		if !strings.HasPrefix(a, "-") {
			input = a
		}
	}
	return input
}

func outputFile(argv []string) (string, bool) {
	for i := 1; i < len(argv)-1; i++ {
		if argv[i] == "-o" {
			return argv[i+1], true
		}
	}
	return "", false
}

func defaultObjectName(input string) string {
	if input == "" {
		return "a.out"
	}
	ext := filepath.Ext(input)
	return strings.TrimSuffix(filepath.Base(input), ext) + ".o"
}
