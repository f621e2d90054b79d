// Package server implements the reference compile server used by
// `rdistcc serve` and by integration tests: it accepts the wire-protocol
// requests internal/dispatch produces, materializes them to a
// scratch directory, execs the actual compiler, and streams the result
// back via the shape internal/resultreceiver expects. It is explicitly a
// supplemental component — internal/dispatch never imports this package,
// keeping server-side compilation strictly out of the core dispatch
// engine's decision-making.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pierrec/lz4/v4"

	"rdistcc/internal/bulk"
	"rdistcc/internal/observability"
	"rdistcc/internal/wire"
)

// Server is a build server that accepts compile-dispatch connections on a
// raw TCP socket, plus a small HTTP control plane for health and status,
// kept as two side-by-side listeners instead of one merged protocol.
type Server struct {
	id         string
	listenAddr string
	httpAddr   string
	capacity   int
	compress   bool
	tempDir    string
	keepTemp   bool

	activeJobs int64

	mu      sync.RWMutex
	clients map[string]net.Addr
}

// New creates a Server, generating a fresh UUID (google/uuid) as its
// instance id.
func New(listenAddr, httpAddr string, capacity int, compress bool, tempDir string, keepTemp bool) *Server {
	return &Server{
		id:         uuid.NewString(),
		listenAddr: listenAddr,
		httpAddr:   httpAddr,
		capacity:   capacity,
		compress:   compress,
		tempDir:    tempDir,
		keepTemp:   keepTemp,
		clients:    make(map[string]net.Addr),
	}
}

// ListenAndServe runs the TCP compile socket and the HTTP control plane
// until ctx is cancelled or either listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.listenAddr, err)
	}
	defer ln.Close()

	httpSrv := &http.Server{Addr: s.httpAddr, Handler: s.router()}
	errCh := make(chan error, 2)

	go func() {
		observability.LogInfof("server %s: compile socket listening on %s", s.id, s.listenAddr)
		errCh <- s.serveTCP(ln)
	}()
	go func() {
		observability.LogInfof("server %s: http control plane listening on %s", s.id, s.httpAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		httpSrv.Close()
		ln.Close()
		return ctx.Err()
	case err := <-errCh:
		httpSrv.Close()
		ln.Close()
		return err
	}
}

func (s *Server) serveTCP(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// statusPayload is what /status reports over JSON.
type statusPayload struct {
	ID         string `json:"id"`
	Capacity   int    `json:"capacity"`
	ActiveJobs int64  `json:"active_jobs"`
	Clients    int    `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	n := len(s.clients)
	s.mu.RUnlock()

	payload := statusPayload{
		ID:         s.id,
		Capacity:   s.capacity,
		ActiveJobs: atomic.LoadInt64(&s.activeJobs),
		Clients:    n,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode status", http.StatusInternalServerError)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr()

	s.mu.Lock()
	s.clients[addr.String()] = addr
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, addr.String())
		s.mu.Unlock()
	}()

	atomic.AddInt64(&s.activeJobs, 1)
	defer atomic.AddInt64(&s.activeJobs, -1)

	observability.LogInfof("server %s: connection from %s", s.id, addr)

	if err := s.handleRequest(conn); err != nil {
		observability.LogDebugf("server %s: request from %s failed: %v", s.id, addr, err)
	}
}

func (s *Server) handleRequest(conn net.Conn) error {
	scratch, err := os.MkdirTemp(s.effectiveTempDir(), "rdistcc-job-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	if !s.keepTemp {
		defer os.RemoveAll(scratch)
	}

	r := wire.NewReader(conn)
	w := wire.NewWriter(conn)

	if _, err := r.Int("DIST"); err != nil {
		return fmt.Errorf("read preamble: %w", err)
	}

	tag, payload, err := r.Token()
	if err != nil {
		return fmt.Errorf("read next token: %w", err)
	}

	switch tag {
	case "CWD_":
		return s.handleServerSite(r, w, scratch, string(payload))
	case "ARGC":
		argc, err := decodeHexInt(payload)
		if err != nil {
			return fmt.Errorf("decode argc: %w", err)
		}
		return s.handleClientSite(r, w, scratch, argc)
	default:
		return fmt.Errorf("unexpected token %s after preamble", tag)
	}
}

// handleClientSite reconstructs the CLIENT-site request: an argument
// vector, a preprocessed source, and an optional gcda counters file, then
// execs the compiler tail against the staged input.
func (s *Server) handleClientSite(r *wire.Reader, w *wire.Writer, scratch string, argc int) error {
	argv, err := readArgv(r, argc)
	if err != nil {
		return err
	}

	stagedInput := filepath.Join(scratch, "input.i")
	if err := receiveFile(r, "DOTI", stagedInput, s.compress); err != nil {
		return fmt.Errorf("receive preprocessed source: %w", err)
	}

	gcdaVal, err := r.Int("GCDA")
	if err != nil {
		return fmt.Errorf("read gcda presence: %w", err)
	}
	if gcdaVal == 1 {
		stagedGcda := filepath.Join(scratch, "input.gcda")
		if err := receiveFile(r, "DOTI", stagedGcda, s.compress); err != nil {
			return fmt.Errorf("receive gcda file: %w", err)
		}
	}

	rewritten, outputRel := rewriteArgvForStagedInput(argv, "input.i")
	return s.compileAndRespond(w, scratch, rewritten, outputRel)
}

// handleServerSite reconstructs the SERVER-site request: working
// directory (logged only — compilation runs with Dir=scratch regardless),
// argument vector, and a file bundle, then execs the full argument vector
// against the materialized files.
func (s *Server) handleServerSite(r *wire.Reader, w *wire.Writer, scratch, cwd string) error {
	observability.LogDebugf("server: SERVER-site request, client cwd=%s", cwd)

	argc, err := r.Int("ARGC")
	if err != nil {
		return fmt.Errorf("read argc: %w", err)
	}
	argv, err := readArgv(r, argc)
	if err != nil {
		return err
	}
	if _, err := bulk.RecvFiles(r, scratch, s.compress); err != nil {
		return fmt.Errorf("receive file bundle: %w", err)
	}

	_, outputRel := findOutputArg(argv)
	return s.compileAndRespond(w, scratch, argv, outputRel)
}

// findOutputArg locates the value of a -o flag in argv, if any.
func findOutputArg(argv []string) (found bool, outputRel string) {
	skipNext := false
	for i := 1; i < len(argv); i++ {
		if skipNext {
			skipNext = false
			continue
		}
		if argv[i] == "-o" && i+1 < len(argv) {
			return true, argv[i+1]
		}
	}
	return false, ""
}

func (s *Server) effectiveTempDir() string {
	if s.tempDir != "" {
		return s.tempDir
	}
	return os.TempDir()
}

// compileAndRespond execs argv (Dir=scratch) and streams STAT/SERR/DOTO
// back to w, mirroring resultreceiver.Receive's wire shape.
func (s *Server) compileAndRespond(w *wire.Writer, scratch string, argv []string, outputRel string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty argument vector")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = scratch

	var stderr strings.Builder
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return fmt.Errorf("exec %s: %w", argv[0], runErr)
		}
	}
	observability.LogDebugf("server: compiled %v in %s, exit=%d", argv, time.Since(start), exitCode)

	if err := w.Int("STAT", exitCode); err != nil {
		return err
	}
	if err := w.String("SERR", stderr.String()); err != nil {
		return err
	}
	if exitCode != 0 {
		return w.Flush()
	}

	if outputRel == "" {
		outputRel = "input.o"
	}
	objPath := filepath.Join(scratch, outputRel)
	f, err := os.Open(objPath)
	if err != nil {
		return fmt.Errorf("open compiled object %s: %w", objPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if _, err := w.Copy("DOTO", f, info.Size()); err != nil {
		return err
	}
	return w.Flush()
}

func readArgv(r *wire.Reader, argc int) ([]string, error) {
	argv := make([]string, 0, argc)
	for i := 0; i < argc; i++ {
		payload, err := r.TokenExpect("ARGV")
		if err != nil {
			return nil, fmt.Errorf("read argv[%d]: %w", i, err)
		}
		argv = append(argv, string(payload))
	}
	return argv, nil
}

func receiveFile(r *wire.Reader, tag, dest string, compress bool) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	if !compress {
		_, err = r.CopyTo(tag, f)
		return err
	}

	var raw bytes.Buffer
	if _, err := r.CopyTo(tag, &raw); err != nil {
		return err
	}
	_, err = io.Copy(f, lz4.NewReader(&raw))
	return err
}

func decodeHexInt(payload []byte) (int, error) {
	var v int
	if _, err := fmt.Sscanf(string(payload), "%x", &v); err != nil {
		return 0, fmt.Errorf("decode hex int: %w", err)
	}
	return v, nil
}

// rewriteArgvForStagedInput replaces the first bare (non-flag) source-like
// argument with stagedInput and reports the relative path named by -o, so
// the caller knows where to look for the compiled object afterward. This
// is a simplified heuristic standing in for distcc's fuller argument
// scanner (args.c), adequate for the reference server and integration
// tests but not a general-purpose compiler driver.
func rewriteArgvForStagedInput(argv []string, stagedInput string) (rewritten []string, outputRel string) {
	rewritten = append([]string(nil), argv...)
	skipNext := false
	replaced := false
	for i := 1; i < len(rewritten); i++ {
		if skipNext {
			skipNext = false
			continue
		}
		a := rewritten[i]
		if a == "-o" && i+1 < len(rewritten) {
			outputRel = rewritten[i+1]
			skipNext = true
			continue
		}
		if !replaced && !strings.HasPrefix(a, "-") && looksLikeSourceArg(a) {
			rewritten[i] = stagedInput
			replaced = true
		}
	}
	return rewritten, outputRel
}

func looksLikeSourceArg(a string) bool {
	switch filepath.Ext(a) {
	case ".c", ".i", ".cc", ".cpp", ".cxx", ".ii":
		return true
	default:
		return false
	}
}
