// Package weight maintains per-template trial/success counters and derives
// the sampling weight used to choose the next template.
package weight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/viant/handlegen/model/template"
	"github.com/viant/handlegen/service/dao"
)

// Record holds the running counters of one template.
type Record struct {
	Tries      uint64  `json:"tries"`
	Successes  uint64  `json:"successes"`
	BaseWeight float64 `json:"base_weight"`
}

// Weight returns the Laplace-smoothed weight
// BaseWeight × (Successes+1)/(Tries+1).
func (r Record) Weight() float64 {
	return r.BaseWeight * float64(r.Successes+1) / float64(r.Tries+1)
}

// Stats maps template keys to their records.
type Stats map[string]Record

// Weighted is a template key with its computed weight.
type Weighted struct {
	Key    string  `json:"key"`
	Weight float64 `json:"weight"`
}

// Model is the feedback-weighted template sampler. Choose is safe to call
// from producers while the scanner records outcomes.
type Model struct {
	catalog *template.Catalog
	doc     *dao.Document[Stats]
	logger  *slog.Logger

	mu    sync.RWMutex
	stats Stats
	// persistMu serialises mutate+save so an older snapshot never overwrites
	// a newer one.
	persistMu sync.Mutex
}

// Option configures a Model.
type Option func(*Model)

// WithDocument persists statistics in doc.
func WithDocument(doc *dao.Document[Stats]) Option {
	return func(m *Model) { m.doc = doc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) { m.logger = logger }
}

// New creates a model with default records for every catalog template.
func New(catalog *template.Catalog, opts ...Option) *Model {
	m := &Model{catalog: catalog, stats: defaults(catalog), logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaults(catalog *template.Catalog) Stats {
	stats := make(Stats, catalog.Len())
	for _, t := range catalog.Templates() {
		stats[t.Key] = Record{BaseWeight: t.BaseWeight}
	}
	return stats
}

// Load reads persisted statistics. A missing or empty document is
// initialised from the catalog and written back. Stored records win over
// catalog defaults; catalog keys absent from the document get defaults, and
// a record without a base weight takes the catalog's.
func (m *Model) Load(ctx context.Context) error {
	if m.doc == nil {
		return nil
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	stored, err := m.doc.Load(ctx)
	switch {
	case errors.Is(err, dao.ErrNotFound):
		stored = &Stats{}
	case err != nil:
		return fmt.Errorf("failed to load pattern stats: %w", err)
	}
	merged := defaults(m.catalog)
	for key, record := range *stored {
		fallback, ok := merged[key]
		if !ok {
			m.logger.Warn("ignoring stats for unknown template", "template", key)
			continue
		}
		if record.BaseWeight == 0 {
			record.BaseWeight = fallback.BaseWeight
		}
		merged[key] = record
	}
	m.mu.Lock()
	m.stats = merged
	m.mu.Unlock()
	return m.doc.Save(ctx, &merged)
}

// Weights returns the weight of every template in catalog order. When every
// computed weight is zero the raw base weights are returned instead.
func (m *Model) Weights() []Weighted {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return weigh(m.catalog, m.stats)
}

func weigh(catalog *template.Catalog, stats Stats) []Weighted {
	result := make([]Weighted, catalog.Len())
	total := 0.0
	for i, t := range catalog.Templates() {
		record, ok := stats[t.Key]
		if !ok {
			record = Record{BaseWeight: t.BaseWeight}
		}
		w := record.Weight()
		result[i] = Weighted{Key: t.Key, Weight: w}
		total += w
	}
	if total == 0 {
		for i, t := range catalog.Templates() {
			if record, ok := stats[t.Key]; ok {
				result[i].Weight = record.BaseWeight
			} else {
				result[i].Weight = t.BaseWeight
			}
		}
	}
	return result
}

// Choose draws a template key with probability proportional to its weight.
func (m *Model) Choose(rnd *rand.Rand) string {
	return Choose(m.Weights(), rnd.Float64())
}

// Choose selects from weights given u uniform in [0,1): it scales u by the
// total weight and returns the first key whose cumulative weight exceeds the
// draw. A zero total degrades to a uniform pick.
func Choose(weights []Weighted, u float64) string {
	if len(weights) == 0 {
		return ""
	}
	total := 0.0
	for _, w := range weights {
		total += w.Weight
	}
	if total <= 0 {
		return weights[int(u*float64(len(weights)))%len(weights)].Key
	}
	draw := u * total
	cumulative := 0.0
	last := ""
	for _, w := range weights {
		if w.Weight <= 0 {
			continue
		}
		cumulative += w.Weight
		last = w.Key
		if cumulative > draw {
			return w.Key
		}
	}
	return last
}

// RecordOutcome counts one probe attributed to key; successes only grow when
// success is true. Unknown keys are ignored.
func (m *Model) RecordOutcome(ctx context.Context, key string, success bool) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	record, ok := m.stats[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	record.Tries++
	if success {
		record.Successes++
	}
	m.stats[key] = record
	snapshot := m.copyLocked()
	m.mu.Unlock()

	if m.doc == nil {
		return nil
	}
	if err := m.doc.Save(ctx, &snapshot); err != nil {
		return fmt.Errorf("failed to save pattern stats: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current statistics.
func (m *Model) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyLocked()
}

func (m *Model) copyLocked() Stats {
	out := make(Stats, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out
}
