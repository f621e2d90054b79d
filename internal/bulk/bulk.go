// Package bulk implements the multi-file bundle transfer used when a
// host's PreprocessSite is Server: the client ships the job's file list
// (job.Descriptor.Files) instead of a single preprocessed file. rdistcc
// dispatch puts only the input source in that list; headers are not
// collected.
package bulk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"rdistcc/internal/wire"
)

// SendFiles writes an "NFIL <n>" token followed by, per file, a "NAME"
// token (the path as shipped) and a "FILE" token (its contents),
// optionally lz4-compressed when compress is set.
func SendFiles(w *wire.Writer, files []string, compress bool) error {
	if err := w.Int("NFIL", len(files)); err != nil {
		return fmt.Errorf("bulk: write file count: %w", err)
	}
	for _, path := range files {
		if err := w.String("NAME", path); err != nil {
			return fmt.Errorf("bulk: write name for %s: %w", path, err)
		}
		if err := sendOneFile(w, path, compress); err != nil {
			return err
		}
	}
	return nil
}

func sendOneFile(w *wire.Writer, path string, compress bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("bulk: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("bulk: stat %s: %w", path, err)
	}

	if !compress {
		if _, err := w.Copy("FILE", f, info.Size()); err != nil {
			return fmt.Errorf("bulk: send %s: %w", path, err)
		}
		return nil
	}

	// lz4 changes the payload length, so we must buffer the compressed
	// form before framing it: the wire format's length prefix has to be
	// known before the first byte of payload goes out.
	buf := new(lenTrackingBuffer)
	zw := lz4.NewWriter(buf)
	if _, err := io.Copy(zw, f); err != nil {
		return fmt.Errorf("bulk: compress %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("bulk: finalize compression for %s: %w", path, err)
	}
	if _, err := w.Copy("FILE", buf, int64(buf.Len())); err != nil {
		return fmt.Errorf("bulk: send compressed %s: %w", path, err)
	}
	return nil
}

// RecvFiles reads back what SendFiles wrote, materializing each file
// under destDir using its shipped name.
func RecvFiles(r *wire.Reader, destDir string, compress bool) ([]string, error) {
	n, err := r.Int("NFIL")
	if err != nil {
		return nil, fmt.Errorf("bulk: read file count: %w", err)
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		nameBytes, err := r.TokenExpect("NAME")
		if err != nil {
			return nil, fmt.Errorf("bulk: read name %d: %w", i, err)
		}
		name := string(nameBytes)
		if err := recvOneFile(r, destDir, name, compress); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func recvOneFile(r *wire.Reader, destDir, name string, compress bool) error {
	path := filepath.Join(destDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("bulk: mkdir for %s: %w", name, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bulk: create %s: %w", path, err)
	}
	defer f.Close()

	if !compress {
		if _, err := r.CopyTo("FILE", f); err != nil {
			return fmt.Errorf("bulk: receive %s: %w", name, err)
		}
		return nil
	}

	var raw lenTrackingBuffer
	if _, err := r.CopyTo("FILE", &raw); err != nil {
		return fmt.Errorf("bulk: receive compressed %s: %w", name, err)
	}
	if _, err := io.Copy(f, lz4.NewReader(&raw)); err != nil {
		return fmt.Errorf("bulk: decompress %s: %w", name, err)
	}
	return nil
}

// lenTrackingBuffer is a minimal io.ReadWriter with a Len() accessor,
// avoiding a bytes.Buffer import purely for that one method's sake would
// not save anything, but keeping the type local documents that this
// buffer only ever holds one file's worth of compressed bytes at a time.
type lenTrackingBuffer struct {
	data []byte
	off  int
}

func (b *lenTrackingBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *lenTrackingBuffer) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func (b *lenTrackingBuffer) Len() int { return len(b.data) }
