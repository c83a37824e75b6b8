package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/handlegen/metrics"
	"github.com/viant/handlegen/progress"
	"github.com/viant/handlegen/service/batch"
	"github.com/viant/handlegen/service/exclusion"
	"github.com/viant/handlegen/service/ledger"
	"github.com/viant/handlegen/service/oracle"
	"github.com/viant/handlegen/service/pacing"
	"github.com/viant/handlegen/service/weight"
	"github.com/viant/handlegen/tracing"
)

// Config represents scanner configuration.
type Config struct {
	// BatchSize is the candidate count of a complete batch.
	BatchSize int
	// Archive moves finished batches to the processed directory.
	Archive bool
	// PollInterval bounds the wait for a growing batch.
	PollInterval time.Duration
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithConfig sets the scanner configuration.
func WithConfig(config Config) Option {
	return func(s *Scanner) {
		s.config = config
	}
}

// WithManager lets the scanner keep the production window ahead of it.
func WithManager(manager *batch.Manager) Option {
	return func(s *Scanner) {
		s.manager = manager
	}
}

// WithWatcher sets the batch change watcher.
func WithWatcher(watcher *batch.Watcher) Option {
	return func(s *Scanner) {
		s.watcher = watcher
	}
}

// WithPacer sets the rate shaping policy.
func WithPacer(pacer *pacing.Pacer) Option {
	return func(s *Scanner) {
		s.pacer = pacer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// Scanner consumes batches in order through the oracle, keeping the
// checkpoint durable after every definitive outcome.
type Scanner struct {
	config    Config
	states    *Store
	batches   *batch.Store
	ledger    *ledger.Ledger
	weights   *weight.Model
	exclusion *exclusion.Set
	oracle    oracle.Oracle
	manager   *batch.Manager
	watcher   *batch.Watcher
	pacer     *pacing.Pacer
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu    sync.RWMutex
	state State

	provenanceBatch uint64
	provenance      batch.Provenance
}

// NewScanner creates a scanner.
func NewScanner(states *Store, batches *batch.Store, ledger *ledger.Ledger, weights *weight.Model, set *exclusion.Set, probe oracle.Oracle, options ...Option) *Scanner {
	s := &Scanner{
		config:    Config{BatchSize: batch.DefaultConfig().Size},
		states:    states,
		batches:   batches,
		ledger:    ledger,
		weights:   weights,
		exclusion: set,
		oracle:    probe,
		logger:    slog.Default(),
		state:     Initial(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.pacer == nil {
		s.pacer = pacing.Zero()
	}
	if s.watcher == nil {
		s.watcher = batch.NewWatcher(batches.Dir(), s.config.PollInterval, s.logger)
	}
	return s
}

// Load reads the checkpoint; a fresh root starts at batch 1, index 0.
func (s *Scanner) Load(ctx context.Context) error {
	state, err := s.states.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.metrics.SetCurrentBatch(state.CurrentBatch)
	return nil
}

// State returns the current checkpoint.
func (s *Scanner) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scanner) save(ctx context.Context, state State) error {
	if err := s.states.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.metrics.SetCurrentBatch(state.CurrentBatch)
	return nil
}

// NextUnprobed returns the identifier under the cursor, re-reading the
// current batch file. It reports false when the cursor is past every line
// written so far.
func (s *Scanner) NextUnprobed(ctx context.Context) (string, bool, error) {
	state := s.State()
	lines, err := s.batches.Lines(ctx, state.CurrentBatch)
	if err != nil {
		return "", false, err
	}
	if state.CurrentIndex >= uint64(len(lines)) {
		return "", false, nil
	}
	return lines[state.CurrentIndex], true, nil
}

// Apply records the outcome of probing id, the identifier under the cursor.
// A definitive outcome is logged, attributed to its template, and advances
// the cursor; a transient one only lands in the pending-retry set.
func (s *Scanner) Apply(ctx context.Context, id string, result oracle.Result) (err error) {
	ctx, span := tracing.Start(context.WithoutCancel(ctx), "scan.apply", tracing.Consumer,
		tracing.AttrIdentifier.String(id), tracing.AttrStatus.String(result.Status.String()))
	defer func() { span.End(err) }()
	logger := s.logger.With("identifier", id, "status", result.Status.String())
	if !result.Status.Definitive() {
		if err := s.ledger.AddPending(ctx, id); err != nil {
			return err
		}
		progress.UpdateCtx(ctx, progress.Delta{Transient: 1})
		logger.Warn("probe failed, kept pending", "info", result.Info)
		return nil
	}

	available := result.Status == oracle.Available
	if err := s.ledger.RecordChecked(id, available); err != nil {
		return err
	}
	state := s.State()
	span.SetAttributes(tracing.AttrBatch.Int64(int64(state.CurrentBatch)))
	if key := s.templateOf(ctx, state.CurrentBatch, id); key != "" {
		span.SetAttributes(tracing.AttrTemplate.String(key))
		if err := s.weights.RecordOutcome(ctx, key, available); err != nil {
			logger.Warn("failed to record outcome", "template", key, "error", err)
		}
	}
	if err := s.exclusion.Add(id); err != nil {
		return err
	}
	if err := s.ledger.RemovePending(ctx, id); err != nil {
		return err
	}
	state.CurrentIndex++
	state.TotalChecks++
	if err := s.save(ctx, state); err != nil {
		return err
	}
	if err := s.ledger.MarkLastChecked(ctx, ledger.Position{Batch: state.CurrentBatch, Index: state.CurrentIndex}, id); err != nil {
		logger.Warn("failed to write last checked", "error", err)
	}

	delta := progress.Delta{Probed: 1, Taken: 1}
	if available {
		delta = progress.Delta{Probed: 1, Available: 1}
		logger.Info("available", "batch", state.CurrentBatch, "index", state.CurrentIndex-1, "total_checks", state.TotalChecks)
	} else {
		logger.Debug("taken", "info", result.Info, "batch", state.CurrentBatch, "total_checks", state.TotalChecks)
	}
	progress.UpdateCtx(ctx, delta)
	return nil
}

// skip moves the cursor over id without probing: it was settled before a
// crash interrupted the checkpoint write, or by the pending pass.
func (s *Scanner) skip(ctx context.Context, id string) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.exclusion.Add(id); err != nil {
		return err
	}
	if err := s.ledger.RemovePending(ctx, id); err != nil {
		return err
	}
	state := s.State()
	state.CurrentIndex++
	s.logger.Debug("skipping checked identifier", "identifier", id, "batch", state.CurrentBatch, "index", state.CurrentIndex-1)
	return s.save(ctx, state)
}

// templateOf returns the key that rendered id in batch n, or "" when unknown.
func (s *Scanner) templateOf(ctx context.Context, n uint64, id string) string {
	if s.provenanceBatch != n || s.provenance == nil {
		s.provenance, s.provenanceBatch = nil, n
	}
	if key, ok := s.provenance[id]; ok {
		return key
	}
	provenance, err := s.batches.Provenance(ctx, n)
	if err != nil {
		s.logger.Warn("failed to read provenance", "batch", n, "error", err)
		return ""
	}
	s.provenance = provenance
	return provenance[id]
}

// AdvanceCheckpoint moves to the next batch when the current one is marked
// complete and fully probed.
func (s *Scanner) AdvanceCheckpoint(ctx context.Context) (bool, error) {
	state := s.State()
	done, err := s.batches.HasMarker(ctx, state.CurrentBatch)
	if err != nil || !done {
		return false, err
	}
	lines, err := s.batches.Lines(ctx, state.CurrentBatch)
	if err != nil {
		return false, err
	}
	if state.CurrentIndex < uint64(len(lines)) {
		return false, nil
	}
	finished := state.CurrentBatch
	next := State{CurrentBatch: finished + 1, TotalChecks: state.TotalChecks}
	if err := s.save(ctx, next); err != nil {
		return false, err
	}
	s.provenance = nil
	s.logger.Info("batch scanned", "batch", finished, "total_checks", next.TotalChecks)
	if s.config.Archive {
		if err := s.batches.Archive(ctx, finished); err != nil {
			s.logger.Warn("failed to archive batch", "batch", finished, "error", err)
		}
	}
	return true, nil
}

func (s *Scanner) probe(ctx context.Context, id string) oracle.Result {
	started := time.Now()
	result, err := s.oracle.Probe(ctx, id)
	if err != nil {
		if !errors.Is(err, oracle.ErrTransient) {
			s.logger.Warn("oracle error", "identifier", id, "error", err)
		}
		result = oracle.Result{Status: oracle.Transient, Info: err.Error()}
	}
	s.metrics.ObserveProbe(result.Status.String(), time.Since(started).Seconds())
	return result
}

// ArchiveScanned moves live batches behind the cursor to the processed
// directory. They are left behind when a run stops between advancing the
// checkpoint and archiving.
func (s *Scanner) ArchiveScanned(ctx context.Context) error {
	if !s.config.Archive {
		return nil
	}
	numbers, err := s.batches.Numbers(ctx)
	if err != nil {
		return err
	}
	current := s.State().CurrentBatch
	for _, n := range numbers {
		if n >= current {
			break
		}
		if err := s.batches.Archive(ctx, n); err != nil {
			return err
		}
		s.logger.Info("archived scanned batch", "batch", n)
	}
	return nil
}

// ProcessPending re-probes the pending-retry set. Settled identifiers are
// logged without a template update; the rest stay pending.
func (s *Scanner) ProcessPending(ctx context.Context) error {
	pending := s.ledger.Pending()
	if len(pending) == 0 {
		return nil
	}
	s.logger.Info("processing pending identifiers", "count", len(pending))
	durable := context.WithoutCancel(ctx)
	var remaining []string
	for i, id := range pending {
		if ctx.Err() != nil {
			remaining = append(remaining, pending[i:]...)
			break
		}
		if s.ledger.IsChecked(id) {
			continue
		}
		result := s.probe(ctx, id)
		if !result.Status.Definitive() {
			s.logger.Warn("pending identifier still failing", "identifier", id, "info", result.Info)
			progress.UpdateCtx(ctx, progress.Delta{Transient: 1})
			remaining = append(remaining, id)
			if err := s.pacer.Pause(ctx); err != nil {
				remaining = append(remaining, pending[i+1:]...)
				break
			}
			continue
		}
		available := result.Status == oracle.Available
		if err := s.ledger.RecordChecked(id, available); err != nil {
			return err
		}
		if !available {
			if err := s.ledger.RecordResolved(id, result.Info); err != nil {
				return err
			}
		}
		if err := s.exclusion.Add(id); err != nil {
			return err
		}
		state := s.State()
		state.TotalChecks++
		if err := s.save(durable, state); err != nil {
			return err
		}
		if available {
			s.logger.Info("available (pending)", "identifier", id, "total_checks", state.TotalChecks)
			progress.UpdateCtx(ctx, progress.Delta{Probed: 1, Available: 1})
		} else {
			progress.UpdateCtx(ctx, progress.Delta{Probed: 1, Taken: 1})
		}
		if err := s.pacer.Wait(ctx, state.TotalChecks); err != nil {
			remaining = append(remaining, pending[i+1:]...)
			break
		}
	}
	if err := s.ledger.ReplacePending(durable, remaining); err != nil {
		return err
	}
	s.logger.Info("pending identifiers processed", "remaining", len(remaining))
	return ctx.Err()
}

// Step performs one unit of scanning: keep the window produced, then probe
// the identifier under the cursor, advance to the next batch, or wait for
// the current batch to grow.
func (s *Scanner) Step(ctx context.Context) error {
	state := s.State()
	if s.manager != nil {
		if err := s.manager.EnsureWindow(ctx, state.CurrentBatch); err != nil {
			s.logger.Warn("failed to ensure batch window", "batch", state.CurrentBatch, "error", err)
		}
	}
	id, ok, err := s.NextUnprobed(ctx)
	if err != nil {
		return err
	}
	if !ok {
		advanced, err := s.AdvanceCheckpoint(ctx)
		if err != nil || advanced {
			return err
		}
		return s.watcher.Wait(ctx)
	}
	if s.ledger.IsChecked(id) {
		return s.skip(ctx, id)
	}
	result := s.probe(ctx, id)
	if err := s.Apply(ctx, id, result); err != nil {
		return err
	}
	if !result.Status.Definitive() {
		return s.pacer.Pause(ctx)
	}
	return s.pacer.Wait(ctx, s.State().TotalChecks)
}

// Run processes the pending set, then scans until ctx is cancelled or a
// durable write fails.
func (s *Scanner) Run(ctx context.Context) error {
	if err := s.ProcessPending(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}
