package handlegen

import (
	"log/slog"

	"github.com/viant/afs"
	"github.com/viant/handlegen/metrics"
	"github.com/viant/handlegen/service/exclusion"
	"github.com/viant/handlegen/service/oracle"
	"github.com/viant/handlegen/service/pacing"
)

// Option overrides a component of the Service.
type Option func(s *Service)

// WithOracle sets the availability oracle instead of the HTTP one.
func WithOracle(o oracle.Oracle) Option {
	return func(s *Service) { s.oracle = o }
}

// WithPacer sets the probe pacing policy.
func WithPacer(p *pacing.Pacer) Option {
	return func(s *Service) { s.pacer = p }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSeed makes candidate generation reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Service) { s.seed = &seed }
}

// WithExclusionIndex sets the exclusion set backend, overriding the
// configured one.
func WithExclusionIndex(index exclusion.Index) Option {
	return func(s *Service) { s.index = index }
}

// WithFileSystem sets the storage service.
func WithFileSystem(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}
