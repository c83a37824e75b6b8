// Package badger provides a persistent exclusion index on BadgerDB so the
// spent set survives restarts without replaying every state file.
package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/viant/handlegen/service/exclusion"
)

const keyPrefix = "x:"

// Config configures the index.
type Config struct {
	// Path is the database directory; required unless InMemory.
	Path string
	// InMemory keeps the database in memory (tests).
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Logger receives badger's internal logs; nil silences them.
	Logger *slog.Logger
}

// Index is a badger-backed exclusion.Index.
type Index struct {
	db    *badger.DB
	count int
}

var _ exclusion.Index = (*Index)(nil)

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (or creates) the index and counts the identifiers it holds.
func Open(cfg Config) (*Index, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent exclusion index")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create exclusion index directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open exclusion index: %w", err)
	}
	idx := &Index{db: db}
	if idx.count, err = idx.scan(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) scan() (int, error) {
	count := 0
	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count exclusion index: %w", err)
	}
	return count, nil
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

// Has reports whether id is present.
func (i *Index) Has(id string) (bool, error) {
	err := i.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put stores id.
func (i *Index) Put(id string) error {
	has, err := i.Has(id)
	if err != nil || has {
		return err
	}
	if err = i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(id), nil)
	}); err != nil {
		return err
	}
	i.count++
	return nil
}

// PutAll stores ids in one write batch.
func (i *Index) PutAll(ids []string) error {
	wb := i.db.NewWriteBatch()
	defer wb.Cancel()
	added := 0
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		has, err := i.Has(id)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if err := wb.Set(key(id), nil); err != nil {
			return err
		}
		added++
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush exclusion index: %w", err)
	}
	i.count += added
	return nil
}

// Len returns the number of stored identifiers.
func (i *Index) Len() int { return i.count }

// Close closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}
