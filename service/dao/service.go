package dao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// stagingPattern names the temporary file written before a replace.
const stagingPattern = ".tmp-*"

// Replace writes data to the local file at URL through a synced staging file
// in the same directory renamed over the target, so the target always holds
// either the old or the new content, even across a crash.
func Replace(ctx context.Context, URL string, data []byte) error {
	if URL == "" {
		return ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := url.Path(URL)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, file.DefaultDirOsMode.Perm()); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, stagingPattern)
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", dest, err)
	}
	staging := tmp.Name()
	abort := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("failed to stage %s: %w", dest, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return abort(err)
	}
	if err := tmp.Chmod(file.DefaultFileOsMode); err != nil {
		return abort(err)
	}
	if err := tmp.Sync(); err != nil {
		return abort(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("failed to stage %s: %w", dest, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	return syncDir(dir)
}

// syncDir persists the rename in the parent directory.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}

// Document is a single JSON document persisted with replace-on-write.
type Document[T any] struct {
	fs  afs.Service
	url string
	mu  sync.Mutex
}

// NewDocument creates a document stored at URL.
func NewDocument[T any](fs afs.Service, URL string) *Document[T] {
	return &Document[T]{fs: fs, url: URL}
}

// Load reads the document. It returns ErrNotFound when the file is absent or
// empty.
func (d *Document[T]) Load(ctx context.Context) (*T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exists, err := d.fs.Exists(ctx, d.url)
	if err != nil {
		return nil, fmt.Errorf("failed to check if %s exists: %w", d.url, err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	data, err := d.fs.DownloadWithURL(ctx, d.url)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.url, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNotFound
	}
	var t T
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", d.url, err)
	}
	return &t, nil
}

// Save persists t.
func (d *Document[T]) Save(ctx context.Context, t *T) error {
	if t == nil {
		return ErrNilEntity
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", d.url, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return Replace(ctx, d.url, data)
}
