// Package ledger owns the durable scan logs under the state root: the
// checked and available logs, the resolved-errors log, the pending-retry set
// and the last-checked snapshot.
package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/handlegen/internal/clock"
	"github.com/viant/handlegen/internal/journal"
	"github.com/viant/handlegen/service/dao"
)

// State root relative locations.
const (
	CheckedFile     = "checked_usernames.txt"
	AvailableFile   = "available_usernames.txt"
	ErrorsFile      = "processed/errors.txt"
	PendingFile     = "batches/errors_pending.txt"
	LastCheckedFile = "processed/last_checked.txt"
)

// Position identifies the scan cursor recorded in the last-checked snapshot.
type Position struct {
	Batch uint64
	Index uint64
}

// Ledger is safe for concurrent use.
type Ledger struct {
	fs   afs.Service
	root string

	checked   *journal.Journal
	available *journal.Journal
	resolved  *journal.Journal

	mu         sync.RWMutex
	checkedSet map[string]struct{}
	pending    []string
}

// New creates a ledger rooted at root.
func New(fs afs.Service, root string) *Ledger {
	return &Ledger{fs: fs, root: root, checkedSet: map[string]struct{}{}}
}

func (l *Ledger) path(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

// Open loads the checked log and the pending set and opens the append logs.
func (l *Ledger) Open(ctx context.Context) error {
	checked, err := journal.ReadLines(ctx, l.fs, l.path(CheckedFile))
	if err != nil {
		return err
	}
	pending, err := journal.ReadLines(ctx, l.fs, l.path(PendingFile))
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range checked {
		l.checkedSet[id] = struct{}{}
	}
	l.pending = dedupe(pending)

	if l.checked, err = journal.Open(l.path(CheckedFile)); err != nil {
		return err
	}
	if l.available, err = journal.Open(l.path(AvailableFile)); err != nil {
		return err
	}
	if l.resolved, err = journal.Open(l.path(ErrorsFile)); err != nil {
		return err
	}
	return nil
}

// Close closes the append logs.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for _, j := range []*journal.Journal{l.checked, l.available, l.resolved} {
		if j == nil {
			continue
		}
		if err := j.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Identifiers returns every identifier known to the ledger: checked,
// available and pending.
func (l *Ledger) Identifiers(ctx context.Context) ([]string, error) {
	var result []string
	for _, name := range []string{CheckedFile, AvailableFile} {
		lines, err := journal.ReadLines(ctx, l.fs, l.path(name))
		if err != nil {
			return nil, err
		}
		result = append(result, lines...)
	}
	return append(result, l.Pending()...), nil
}

// IsChecked reports whether id has a definitive outcome.
func (l *Ledger) IsChecked(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.checkedSet[id]
	return ok
}

// CheckedCount returns the number of distinct checked identifiers.
func (l *Ledger) CheckedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.checkedSet)
}

// RecordChecked appends id to the checked log and, when available, to the
// available log.
func (l *Ledger) RecordChecked(id string, available bool) error {
	if l.checked == nil {
		return fmt.Errorf("ledger %s is not open", l.root)
	}
	if err := l.checked.Append(id); err != nil {
		return err
	}
	if available {
		if err := l.available.Append(id); err != nil {
			return err
		}
	}
	l.mu.Lock()
	l.checkedSet[id] = struct{}{}
	l.mu.Unlock()
	return nil
}

// RecordResolved logs a pending identifier that resolved as taken.
func (l *Ledger) RecordResolved(id, info string) error {
	if l.resolved == nil {
		return fmt.Errorf("ledger %s is not open", l.root)
	}
	return l.resolved.Append(fmt.Sprintf("%s  # %s", id, info))
}

// Pending returns the pending-retry identifiers in insertion order.
func (l *Ledger) Pending() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.pending...)
}

// AddPending adds id to the pending-retry set.
func (l *Ledger) AddPending(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, candidate := range l.pending {
		if candidate == id {
			return nil
		}
	}
	next := append(append([]string(nil), l.pending...), id)
	if err := l.writePending(ctx, next); err != nil {
		return err
	}
	l.pending = next
	return nil
}

// RemovePending drops id from the pending-retry set.
func (l *Ledger) RemovePending(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]string, 0, len(l.pending))
	for _, candidate := range l.pending {
		if candidate != id {
			next = append(next, candidate)
		}
	}
	if len(next) == len(l.pending) {
		return nil
	}
	if err := l.writePending(ctx, next); err != nil {
		return err
	}
	l.pending = next
	return nil
}

// ReplacePending rewrites the pending-retry set with ids.
func (l *Ledger) ReplacePending(ctx context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := dedupe(ids)
	if err := l.writePending(ctx, next); err != nil {
		return err
	}
	l.pending = next
	return nil
}

func (l *Ledger) writePending(ctx context.Context, ids []string) error {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	return dao.Replace(ctx, l.path(PendingFile), []byte(sb.String()))
}

// MarkLastChecked replaces the last-checked snapshot.
func (l *Ledger) MarkLastChecked(ctx context.Context, pos Position, id string) error {
	content := fmt.Sprintf("current_batch: %d\ncurrent_index: %d\ncurrent_username: %s\ntimestamp: %s\n",
		pos.Batch, pos.Index, id, clock.Now().Format(time.DateTime))
	return dao.Replace(ctx, l.path(LastCheckedFile), []byte(content))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
