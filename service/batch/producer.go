package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/viant/handlegen/internal/journal"
	"github.com/viant/handlegen/metrics"
	"github.com/viant/handlegen/progress"
	"github.com/viant/handlegen/service/exclusion"
	"github.com/viant/handlegen/service/generator"
	"github.com/viant/handlegen/service/weight"
	"github.com/viant/handlegen/tracing"
)

var (
	// ErrProducer wraps an I/O failure while writing a batch. It aborts that
	// batch only; the partial file is resumed on a later attempt.
	ErrProducer = errors.New("batch producer failed")

	// ErrExhausted is returned when too many consecutive candidates were
	// already spent.
	ErrExhausted = errors.New("candidate space exhausted")
)

// Config represents producer configuration.
type Config struct {
	// Size is the target number of identifiers per batch.
	Size int
	// MaxRejections bounds consecutive duplicate or invalid candidates before
	// the producer gives up.
	MaxRejections int
}

// DefaultConfig returns the default producer configuration.
func DefaultConfig() Config {
	return Config{Size: 1000, MaxRejections: 100000}
}

// Option configures a Producer.
type Option func(*Producer)

// WithConfig sets the producer configuration.
func WithConfig(config Config) Option {
	return func(p *Producer) {
		p.config = config
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Producer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Producer) {
		p.metrics = m
	}
}

// WithSeed makes every producer's random stream a deterministic function of
// seed and the batch number.
func WithSeed(seed uint64) Option {
	return func(p *Producer) {
		p.random = func(n uint64) *rand.Rand {
			return rand.New(rand.NewPCG(seed, n))
		}
	}
}

// Producer fills batches with unique candidates. One Producer serves every
// batch; each Run keeps its own random stream.
type Producer struct {
	config    Config
	store     *Store
	generator *generator.Generator
	weights   *weight.Model
	exclusion *exclusion.Set
	logger    *slog.Logger
	metrics   *metrics.Metrics
	random    func(n uint64) *rand.Rand

	mu     sync.Mutex
	claims map[uint64]struct{}
}

// NewProducer creates a producer.
func NewProducer(store *Store, gen *generator.Generator, weights *weight.Model, set *exclusion.Set, options ...Option) *Producer {
	p := &Producer{
		config:    DefaultConfig(),
		store:     store,
		generator: gen,
		weights:   weights,
		exclusion: set,
		logger:    slog.Default(),
		claims:    make(map[uint64]struct{}),
		random: func(uint64) *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
	for _, opt := range options {
		opt(p)
	}
	if p.config.Size <= 0 {
		p.config.Size = DefaultConfig().Size
	}
	if p.config.MaxRejections <= 0 {
		p.config.MaxRejections = DefaultConfig().MaxRejections
	}
	return p
}

func (p *Producer) claim(n uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.claims[n]; ok {
		return false
	}
	p.claims[n] = struct{}{}
	return true
}

func (p *Producer) release(n uint64) {
	p.mu.Lock()
	delete(p.claims, n)
	p.mu.Unlock()
}

// Active reports whether batch n is being produced in this process.
func (p *Producer) Active(n uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.claims[n]
	return ok
}

// Run produces batch n from scratch. It is a no-op when batch n is already
// being produced, is complete, or has data.
func (p *Producer) Run(ctx context.Context, n uint64) error {
	return p.produce(ctx, n, false)
}

// Resume continues an unmarked batch left partial by an interrupted or
// failed producer. Existing lines are kept; it never truncates.
func (p *Producer) Resume(ctx context.Context, n uint64) error {
	return p.produce(ctx, n, true)
}

func (p *Producer) produce(ctx context.Context, n uint64, resume bool) (err error) {
	if !p.claim(n) {
		return nil
	}
	defer p.release(n)

	done, err := p.store.HasMarker(ctx, n)
	if err != nil {
		return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
	}
	if done {
		return nil
	}
	lines, err := p.store.Lines(ctx, n)
	if err != nil {
		return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
	}
	if len(lines) > 0 && !resume {
		return nil
	}

	ctx, span := tracing.Start(ctx, "batch.produce", tracing.Producer, tracing.AttrBatch.Int64(int64(n)))
	defer func() { span.End(err) }()

	logger := p.logger.With("batch", n)
	provenance := Provenance{}
	if len(lines) > 0 {
		known, err := p.store.Provenance(ctx, n)
		if err != nil {
			return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
		}
		for _, id := range lines {
			provenance[id] = known[id]
		}
		if err := p.exclusion.AddAll(lines); err != nil {
			return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
		}
		logger.Info("resuming batch", "written", len(lines))
	}

	prov, err := journal.Open(p.store.ProvenancePath(n))
	if err != nil {
		return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
	}
	defer prov.Close()
	data, err := journal.Open(p.store.DataPath(n))
	if err != nil {
		return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
	}
	defer data.Close()

	rnd := p.random(n)
	catalog := p.generator.Catalog()
	count := len(provenance)
	rejections := 0
	for count < p.config.Size {
		if err := ctx.Err(); err != nil {
			logger.Info("batch production stopped", "written", count)
			return err
		}
		if rejections >= p.config.MaxRejections {
			return fmt.Errorf("%w: batch %d after %d consecutive rejections", ErrExhausted, n, rejections)
		}
		t, _ := catalog.Lookup(p.weights.Choose(rnd))
		id, key, genErr := p.generator.Generate(t, rnd)
		if genErr != nil {
			logger.Warn("candidate generation failed", "error", genErr)
			rejections++
			continue
		}
		claimed, err := p.exclusion.Claim(id, func() error {
			if err := prov.Append(id + " " + key); err != nil {
				return err
			}
			return data.Append(id)
		})
		if err != nil {
			return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
		}
		if !claimed {
			rejections++
			continue
		}
		rejections = 0
		provenance[id] = key
		count++
		p.metrics.CandidateGenerated(key)
		progress.UpdateCtx(ctx, progress.Delta{Generated: 1})
	}

	// The batch is fully written; finalise even if a stop was requested.
	final := context.WithoutCancel(ctx)
	if err := p.store.WriteMeta(final, n, provenance); err != nil {
		return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
	}
	if err := p.store.WriteMarker(final, n); err != nil {
		return fmt.Errorf("%w: batch %d: %v", ErrProducer, n, err)
	}
	p.metrics.BatchCompleted()
	p.metrics.SetExclusionSize(p.exclusion.Len())
	progress.UpdateCtx(ctx, progress.Delta{Batches: 1})
	logger.Info("batch completed", "size", count)
	return nil
}
