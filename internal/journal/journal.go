// Package journal implements append-only line files that are flushed to
// stable storage on every append.
package journal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/viant/afs"
)

// Journal is an open append-only line file.
type Journal struct {
	path string
	f    *os.File
	mu   sync.Mutex
}

// Open opens (creating when needed) path for appending.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &Journal{path: path, f: f}, nil
}

// Append writes line followed by a newline and syncs the file before
// returning.
func (j *Journal) Append(line string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return fmt.Errorf("journal %s is closed", j.path)
	}
	if _, err := j.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", j.path, err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", j.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// ReadLines returns the trimmed, non-empty, newline-terminated lines of URL.
// A missing file yields no lines. An unterminated trailing fragment is
// ignored: it is an append still in flight.
func ReadLines(ctx context.Context, fs afs.Service, URL string) ([]string, error) {
	exists, err := fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check if %s exists: %w", URL, err)
	}
	if !exists {
		return nil, nil
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", URL, err)
	}
	return SplitLines(data), nil
}

// SplitLines splits complete lines out of data.
func SplitLines(data []byte) []string {
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[:i+1]
	} else {
		return nil
	}
	var lines []string
	for _, raw := range strings.Split(string(data), "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
