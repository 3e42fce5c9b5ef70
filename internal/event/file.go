package event

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// File appends patches to a local file. The file doubles as the patch
// log, so consecutive patches are chained.
type File struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFile creates a file publisher
func NewFile(fs afero.Fs, path string) *File {
	return &File{fs: fs, path: path}
}

// Publish appends the full patch text
func (f *File) Publish(_ context.Context, p Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create patch directory: %w", err)
	}
	out, err := f.fs.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open patch file: %w", err)
	}
	if _, err := io.WriteString(out, p.Text()+"\n"); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write patch: %w", err)
	}
	return out.Close()
}

// LatestPatchID returns the id of the last patch in the file
func (f *File) LatestPatchID(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	in, err := f.fs.Open(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open patch file: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()

	var latest string
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "H id "); ok {
			latest = trimID(strings.TrimSuffix(strings.TrimSpace(rest), " ."))
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read patch file: %w", err)
	}
	return latest, nil
}

// Writer prints patches to w, e.g. stdout for a dry run.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a writer publisher
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Publish writes the full patch text
func (w *Writer) Publish(_ context.Context, p Patch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.w, p.Text())
	return err
}
