package handlegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/handlegen/internal/idgen"
	"github.com/viant/handlegen/metrics"
	"github.com/viant/handlegen/model/template"
	"github.com/viant/handlegen/progress"
	"github.com/viant/handlegen/service/batch"
	"github.com/viant/handlegen/service/checkpoint"
	"github.com/viant/handlegen/service/dao"
	"github.com/viant/handlegen/service/exclusion"
	xbadger "github.com/viant/handlegen/service/exclusion/badger"
	"github.com/viant/handlegen/service/generator"
	"github.com/viant/handlegen/service/ledger"
	"github.com/viant/handlegen/service/oracle"
	"github.com/viant/handlegen/service/pacing"
	"github.com/viant/handlegen/service/status"
	"github.com/viant/handlegen/service/weight"
)

// StatsFile is the pattern statistics location relative to the state root.
const StatsFile = "patterns_stats.json"

// Service wires the generator, producers and scanner over one state root.
type Service struct {
	config  *Config
	fs      afs.Service
	logger  *slog.Logger
	metrics *metrics.Metrics
	seed    *uint64
	index   exclusion.Index
	oracle  oracle.Oracle
	pacer   *pacing.Pacer

	runID     string
	tracker   *progress.Progress
	catalog   *template.Catalog
	generator *generator.Generator
	weights   *weight.Model
	exclusion *exclusion.Set
	ledger    *ledger.Ledger
	batches   *batch.Store
	producer  *batch.Producer
	manager   *batch.Manager
	watcher   *batch.Watcher
	scanner   *checkpoint.Scanner

	rndMu sync.Mutex
	rnd   *rand.Rand

	stopMu  sync.Mutex
	stopped bool
	cancels map[int]context.CancelFunc
	nextID  int

	windowMu      sync.Mutex
	windowCtx     context.Context
	windowRelease context.CancelFunc

	initMu      sync.Mutex
	initialized bool
}

// New creates a service for cfg; a nil cfg uses DefaultConfig.
func New(cfg *Config, options ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{config: cfg, fs: afs.New(), logger: slog.Default()}
	for _, opt := range options {
		opt(s)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) init() error {
	cfg := s.config
	root := cfg.StateRoot
	if s.seed == nil && cfg.Seed != 0 {
		seed := cfg.Seed
		s.seed = &seed
	}
	s.runID = idgen.RunID()
	s.logger = s.logger.With("run", s.runID)
	s.tracker = progress.New(s.runID, root)
	s.cancels = make(map[int]context.CancelFunc)
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	s.catalog = template.Default()
	if len(cfg.Templates) > 0 {
		catalog, err := template.FromDefinitions(cfg.Templates)
		if err != nil {
			return err
		}
		s.catalog = catalog
	}
	s.generator = generator.New(s.catalog)
	s.weights = weight.New(s.catalog,
		weight.WithDocument(dao.NewDocument[weight.Stats](s.fs, filepath.Join(root, StatsFile))),
		weight.WithLogger(s.logger))

	if s.seed != nil {
		s.rnd = rand.New(rand.NewPCG(*s.seed, 0))
	} else {
		s.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if s.oracle == nil {
		httpOracle, err := oracle.NewHTTP(cfg.Probe, s.logger)
		if err != nil {
			return err
		}
		s.oracle = httpOracle
	}
	if s.pacer == nil {
		s.pacer = pacing.New(cfg.Pacing, pacing.WithLogger(s.logger))
	}

	if s.index == nil && cfg.Exclusion.Backend == BackendBadger {
		path := cfg.Exclusion.Path
		if path == "" {
			path = filepath.Join(root, "exclusion")
		}
		index, err := xbadger.Open(xbadger.Config{Path: path, SyncWrites: cfg.Exclusion.SyncWrites, Logger: s.logger})
		if err != nil {
			return err
		}
		s.index = index
	}
	s.exclusion = exclusion.New(s.index)
	s.ledger = ledger.New(s.fs, root)
	s.batches = batch.NewStore(s.fs, root)

	producerOptions := []batch.Option{
		batch.WithConfig(batch.Config{Size: cfg.Batch.Size, MaxRejections: cfg.Batch.MaxRejections}),
		batch.WithLogger(s.logger),
		batch.WithMetrics(s.metrics),
	}
	if s.seed != nil {
		producerOptions = append(producerOptions, batch.WithSeed(*s.seed))
	}
	s.producer = batch.NewProducer(s.batches, s.generator, s.weights, s.exclusion, producerOptions...)
	s.manager = batch.NewManager(s.producer, s.batches, cfg.Batch.Window, cfg.Batch.MaxProducers, s.logger, s.metrics)
	s.watcher = batch.NewWatcher(s.batches.Dir(), cfg.Batch.PollInterval, s.logger)
	s.scanner = checkpoint.NewScanner(checkpoint.NewStore(s.fs, root), s.batches, s.ledger, s.weights, s.exclusion, s.oracle,
		checkpoint.WithConfig(checkpoint.Config{BatchSize: cfg.Batch.Size, Archive: cfg.Batch.Archive, PollInterval: cfg.Batch.PollInterval}),
		checkpoint.WithManager(s.manager),
		checkpoint.WithWatcher(s.watcher),
		checkpoint.WithPacer(s.pacer),
		checkpoint.WithLogger(s.logger),
		checkpoint.WithMetrics(s.metrics))
	return nil
}

// scope derives a context cancelled by ctx or by RequestStop, carrying the
// run's progress tracker. RequestStop cancels it before returning.
func (s *Service) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(progress.WithTracker(ctx, s.tracker))
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopped {
		cancel()
		return ctx, cancel
	}
	id := s.nextID
	s.nextID++
	s.cancels[id] = cancel
	return ctx, func() {
		s.stopMu.Lock()
		delete(s.cancels, id)
		s.stopMu.Unlock()
		cancel()
	}
}

// Initialize loads the durable state: statistics, ledgers, checkpoint, and
// seeds the exclusion set from every identifier ever written or probed. It is
// idempotent.
func (s *Service) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}
	root := s.config.StateRoot
	for _, dir := range []string{filepath.Join(root, batch.BatchesDir), filepath.Join(root, batch.ProcessedDir)} {
		exists, err := s.fs.Exists(ctx, dir)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", dir, err)
		}
		if !exists {
			if err := s.fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
	}
	if err := s.weights.Load(ctx); err != nil {
		return err
	}
	if err := s.ledger.Open(ctx); err != nil {
		return err
	}
	if err := s.exclusion.Seed(ctx, s.ledger, exclusion.SourceFunc(s.batches.ListIdentifiers)); err != nil {
		return err
	}
	if err := s.scanner.Load(ctx); err != nil {
		return err
	}
	if err := s.scanner.ArchiveScanned(ctx); err != nil {
		s.logger.Warn("failed to archive scanned batches", "error", err)
	}
	s.watcher.Start()
	s.metrics.SetExclusionSize(s.exclusion.Len())
	state := s.scanner.State()
	s.logger.Info("initialized", "root", root, "excluded", s.exclusion.Len(), "checked", s.ledger.CheckedCount(),
		"batch", state.CurrentBatch, "index", state.CurrentIndex, "total_checks", state.TotalChecks)
	s.initialized = true
	return nil
}

// EnsureWindow starts producers for the window beginning at batch n. The
// producers outlive the call and stop on RequestStop.
func (s *Service) EnsureWindow(ctx context.Context, n uint64) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	return s.manager.EnsureWindow(s.windowContext(), n)
}

// windowContext returns the context shared by producers launched through
// EnsureWindow until the next Wait.
func (s *Service) windowContext() context.Context {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	if s.windowCtx == nil {
		s.windowCtx, s.windowRelease = s.scope(context.Background())
	}
	return s.windowCtx
}

func (s *Service) releaseWindow() {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	if s.windowRelease != nil {
		s.windowRelease()
	}
	s.windowCtx, s.windowRelease = nil, nil
}

// GenerateCandidate renders one valid identifier from the template key, or
// from a weighted choice when key is empty. It does not consult or modify
// the exclusion set.
func (s *Service) GenerateCandidate(key string) (string, string, error) {
	if key == "" {
		key = s.ChooseTemplate()
	}
	t, ok := s.catalog.Lookup(key)
	if !ok {
		return "", "", fmt.Errorf("%w: unknown key %s", template.ErrInvalidTemplate, key)
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.generator.Generate(t, s.rnd)
}

// ChooseTemplate draws a template key by current weights.
func (s *Service) ChooseTemplate() string {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.weights.Choose(s.rnd)
}

// RecordOutcome counts a probe outcome for the template key.
func (s *Service) RecordOutcome(ctx context.Context, key string, success bool) error {
	return s.weights.RecordOutcome(ctx, key, success)
}

// NextUnprobed returns the identifier under the checkpoint cursor.
func (s *Service) NextUnprobed(ctx context.Context) (string, bool, error) {
	if err := s.Initialize(ctx); err != nil {
		return "", false, err
	}
	return s.scanner.NextUnprobed(ctx)
}

// AdvanceCheckpoint moves to the next batch when the current one is complete
// and fully probed.
func (s *Service) AdvanceCheckpoint(ctx context.Context) (bool, error) {
	if err := s.Initialize(ctx); err != nil {
		return false, err
	}
	return s.scanner.AdvanceCheckpoint(ctx)
}

// RequestStop asks every loop to stop after its current atomic step.
func (s *Service) RequestStop() {
	s.logger.Info("stop requested")
	s.cancelAll()
}

func (s *Service) cancelAll() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	s.stopped = true
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
}

// Run initializes the service and scans until RequestStop, ctx cancellation
// or a durable write failure. A requested stop returns nil.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	runCtx, cancel := s.scope(ctx)
	defer cancel()
	err := s.scanner.Run(runCtx)
	state := s.scanner.State()
	if errors.Is(err, context.Canceled) {
		s.logger.Info("scan stopped", "batch", state.CurrentBatch, "index", state.CurrentIndex, "total_checks", state.TotalChecks)
		return nil
	}
	return err
}

// Wait joins the running producers.
func (s *Service) Wait() error {
	err := s.manager.Wait()
	s.releaseWindow()
	return err
}

// Close stops the service, joins producers and releases resources.
func (s *Service) Close() error {
	s.cancelAll()
	if err := s.Wait(); err != nil {
		s.logger.Warn("producer finished with error", "error", err)
	}
	return errors.Join(s.watcher.Close(), s.ledger.Close(), s.exclusion.Close())
}

// RunID returns the run identifier.
func (s *Service) RunID() string { return s.runID }

// Config returns the service configuration.
func (s *Service) Config() *Config { return s.config }

// Metrics returns the metrics sink.
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Tracker returns the run's progress tracker.
func (s *Service) Tracker() *progress.Progress { return s.tracker }

// Checkpoint returns the scan cursor.
func (s *Service) Checkpoint() checkpoint.State { return s.scanner.State() }

// Stats returns the pattern statistics.
func (s *Service) Stats() weight.Stats { return s.weights.Snapshot() }

// Weights returns the current template weights in catalog order.
func (s *Service) Weights() []weight.Weighted { return s.weights.Weights() }

// Status implements status.Provider.
func (s *Service) Status() status.Report {
	p := s.tracker.Snapshot()
	return status.Report{
		RunID:      s.runID,
		StateRoot:  s.config.StateRoot,
		StartedAt:  p.StartedAt,
		Checkpoint: s.scanner.State(),
		Progress: status.Counters{
			Probed:           p.Probed,
			Available:        p.Available,
			Taken:            p.Taken,
			Transient:        p.Transient,
			Generated:        p.Generated,
			BatchesCompleted: p.BatchesCompleted,
		},
		Stats:         s.weights.Snapshot(),
		Weights:       s.weights.Weights(),
		ExclusionSize: s.exclusion.Len(),
		Pending:       len(s.ledger.Pending()),
	}
}
