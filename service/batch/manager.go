package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/viant/handlegen/metrics"
	"golang.org/x/sync/errgroup"
)

// Manager keeps a window of batches ahead of the scanner in production.
// EnsureWindow is level-triggered: calling it repeatedly with the same start
// launches nothing new.
type Manager struct {
	producer *Producer
	store    *Store
	window   int
	logger   *slog.Logger
	metrics  *metrics.Metrics

	group    errgroup.Group
	mu       sync.Mutex
	launched map[uint64]bool
}

// NewManager creates a manager. window is the number of batches kept in
// production from the start batch on; limit caps concurrently running
// producers (0 means unlimited).
func NewManager(producer *Producer, store *Store, window, limit int, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if window <= 0 {
		window = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	ret := &Manager{
		producer: producer,
		store:    store,
		window:   window,
		logger:   logger,
		metrics:  m,
		launched: make(map[uint64]bool),
	}
	if limit > 0 {
		ret.group.SetLimit(limit)
	}
	return ret
}

// EnsureWindow launches producers for batches start..start+window-1 that are
// neither complete nor already running. Batches with data but no marker are
// resumed. Producers run until done or ctx is cancelled.
func (m *Manager) EnsureWindow(ctx context.Context, start uint64) error {
	for n := start; n < start+uint64(m.window); n++ {
		if err := m.ensure(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) ensure(ctx context.Context, n uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.launched[n] || m.producer.Active(n) {
		return nil
	}
	done, err := m.store.HasMarker(ctx, n)
	if err != nil || done {
		return err
	}
	partial, err := m.store.HasData(ctx, n)
	if err != nil {
		return err
	}
	run := m.producer.Run
	if partial {
		run = m.producer.Resume
	}
	if !m.group.TryGo(func() error { return m.execute(ctx, n, run) }) {
		return nil
	}
	m.launched[n] = true
	return nil
}

func (m *Manager) execute(ctx context.Context, n uint64, run func(context.Context, uint64) error) error {
	err := run(ctx, n)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.forget(n)
		return nil
	case errors.Is(err, ErrExhausted):
		m.logger.Error("batch producer gave up", "batch", n, "error", err)
	default:
		m.logger.Error("batch producer failed", "batch", n, "error", err)
		m.forget(n)
	}
	m.metrics.ProducerFailed()
	return err
}

// forget lets a later EnsureWindow relaunch batch n.
func (m *Manager) forget(n uint64) {
	m.mu.Lock()
	delete(m.launched, n)
	m.mu.Unlock()
}

// Wait blocks until every launched producer returns and reports the first
// producer failure.
func (m *Manager) Wait() error {
	return m.group.Wait()
}
