package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/handlegen/internal/clock"
	"github.com/viant/handlegen/internal/journal"
	"github.com/viant/handlegen/service/dao"
)

// State root relative directories.
const (
	BatchesDir   = "batches"
	ProcessedDir = "processed"
)

const (
	filePrefix      = "random_"
	dataSuffix      = ".txt"
	provenanceExt   = ".prov"
	metaSuffix      = ".meta.json"
	completedSuffix = ".complete"
)

// Provenance maps an identifier to the key of the template that rendered it.
type Provenance map[string]string

// Store locates and reads batch files under a state root. Data and
// provenance lines are appended through journals; everything else is
// replace-on-write.
type Store struct {
	fs   afs.Service
	root string
}

// NewStore creates a store rooted at root.
func NewStore(fs afs.Service, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Dir returns the live batches directory.
func (s *Store) Dir() string { return filepath.Join(s.root, BatchesDir) }

func (s *Store) archiveDir() string { return filepath.Join(s.root, ProcessedDir) }

func name(n uint64, suffix string) string {
	return filePrefix + strconv.FormatUint(n, 10) + suffix
}

// DataPath returns the data file of batch n.
func (s *Store) DataPath(n uint64) string { return filepath.Join(s.Dir(), name(n, dataSuffix)) }

// ProvenancePath returns the provenance journal of batch n.
func (s *Store) ProvenancePath(n uint64) string {
	return filepath.Join(s.Dir(), name(n, provenanceExt))
}

// MetaPath returns the final provenance map of batch n.
func (s *Store) MetaPath(n uint64) string { return filepath.Join(s.Dir(), name(n, metaSuffix)) }

// MarkerPath returns the completion marker of batch n.
func (s *Store) MarkerPath(n uint64) string {
	return filepath.Join(s.Dir(), name(n, completedSuffix))
}

// Lines returns the complete lines of batch n written so far.
func (s *Store) Lines(ctx context.Context, n uint64) ([]string, error) {
	return journal.ReadLines(ctx, s.fs, s.DataPath(n))
}

// HasMarker reports whether batch n is complete.
func (s *Store) HasMarker(ctx context.Context, n uint64) (bool, error) {
	return s.fs.Exists(ctx, s.MarkerPath(n))
}

// HasData reports whether batch n has at least one written line.
func (s *Store) HasData(ctx context.Context, n uint64) (bool, error) {
	lines, err := s.Lines(ctx, n)
	if err != nil {
		return false, err
	}
	return len(lines) > 0, nil
}

// Provenance returns the provenance of batch n: the final map when the batch
// is complete, otherwise whatever the journal holds.
func (s *Store) Provenance(ctx context.Context, n uint64) (Provenance, error) {
	meta := dao.NewDocument[Provenance](s.fs, s.MetaPath(n))
	stored, err := meta.Load(ctx)
	switch {
	case err == nil:
		return *stored, nil
	case !errors.Is(err, dao.ErrNotFound):
		return nil, err
	}
	lines, err := journal.ReadLines(ctx, s.fs, s.ProvenancePath(n))
	if err != nil {
		return nil, err
	}
	result := make(Provenance, len(lines))
	for _, line := range lines {
		id, key, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		result[id] = strings.TrimSpace(key)
	}
	return result, nil
}

// WriteMeta replaces the final provenance map of batch n.
func (s *Store) WriteMeta(ctx context.Context, n uint64, provenance Provenance) error {
	data, err := json.MarshalIndent(provenance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal provenance of batch %d: %w", n, err)
	}
	return dao.Replace(ctx, s.MetaPath(n), data)
}

// WriteMarker creates the completion marker of batch n.
func (s *Store) WriteMarker(ctx context.Context, n uint64) error {
	content := clock.Now().UTC().Format("2006-01-02T15:04:05Z") + "\n"
	if err := s.fs.Upload(ctx, s.MarkerPath(n), file.DefaultFileOsMode, bytes.NewReader([]byte(content))); err != nil {
		return fmt.Errorf("failed to write marker of batch %d: %w", n, err)
	}
	return nil
}

// Archive moves every file of batch n into the processed directory.
func (s *Store) Archive(ctx context.Context, n uint64) error {
	for _, source := range []string{s.DataPath(n), s.ProvenancePath(n), s.MetaPath(n), s.MarkerPath(n)} {
		exists, err := s.fs.Exists(ctx, source)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", source, err)
		}
		if !exists {
			continue
		}
		dest := filepath.Join(s.archiveDir(), filepath.Base(source))
		if err := s.fs.Move(ctx, source, dest); err != nil {
			return fmt.Errorf("failed to archive %s: %w", source, err)
		}
	}
	return nil
}

// Numbers returns the batch numbers with a data file in the live directory,
// ascending.
func (s *Store) Numbers(ctx context.Context) ([]uint64, error) {
	names, err := s.dataFiles(ctx, s.Dir())
	if err != nil {
		return nil, err
	}
	var result []uint64
	for _, fileName := range names {
		digits := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(fileName), filePrefix), dataSuffix)
		n, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// ListIdentifiers returns every identifier in live and archived batch data
// files.
func (s *Store) ListIdentifiers(ctx context.Context) ([]string, error) {
	var result []string
	for _, dir := range []string{s.Dir(), s.archiveDir()} {
		names, err := s.dataFiles(ctx, dir)
		if err != nil {
			return nil, err
		}
		for _, fileName := range names {
			lines, err := journal.ReadLines(ctx, s.fs, fileName)
			if err != nil {
				return nil, err
			}
			result = append(result, lines...)
		}
	}
	return result, nil
}

func (s *Store) dataFiles(ctx context.Context, dir string) ([]string, error) {
	exists, err := s.fs.Exists(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", dir, err)
	}
	if !exists {
		return nil, nil
	}
	objects, err := s.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var result []string
	for _, obj := range objects {
		if obj.IsDir() {
			continue
		}
		base := obj.Name()
		if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, dataSuffix) {
			continue
		}
		result = append(result, filepath.Join(dir, base))
	}
	return result, nil
}
