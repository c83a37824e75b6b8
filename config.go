package handlegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/handlegen/model/template"
	"github.com/viant/handlegen/service/oracle"
	"github.com/viant/handlegen/service/pacing"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the service configuration. It
// is usually populated from YAML; fields left out keep DefaultConfig values.
type Config struct {
	StateRoot string                `json:"stateRoot" yaml:"stateRoot"`
	Seed      uint64                `json:"seed,omitempty" yaml:"seed,omitempty"`
	Batch     BatchConfig           `json:"batch" yaml:"batch"`
	Templates []template.Definition `json:"templates,omitempty" yaml:"templates,omitempty"`
	Probe     oracle.Config         `json:"probe" yaml:"probe"`
	Pacing    pacing.Config         `json:"pacing" yaml:"pacing"`
	Exclusion ExclusionConfig       `json:"exclusion" yaml:"exclusion"`
	Logging   LoggingConfig         `json:"logging" yaml:"logging"`
	Metrics   MetricsConfig         `json:"metrics" yaml:"metrics"`
	Tracing   TracingConfig         `json:"tracing" yaml:"tracing"`
}

// BatchConfig controls batch production.
type BatchConfig struct {
	Size          int           `json:"size" yaml:"size"`
	Window        int           `json:"window" yaml:"window"`
	MaxProducers  int           `json:"maxProducers" yaml:"maxProducers"`
	MaxRejections int           `json:"maxRejections" yaml:"maxRejections"`
	PollInterval  time.Duration `json:"pollInterval" yaml:"pollInterval"`
	Archive       bool          `json:"archive" yaml:"archive"`
}

// Exclusion backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// ExclusionConfig selects the exclusion set backend.
type ExclusionConfig struct {
	Backend    string `json:"backend" yaml:"backend"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	SyncWrites bool   `json:"syncWrites" yaml:"syncWrites"`
}

// LoggingConfig controls the CLI logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// File additionally writes logs/run_<timestamp>.log under the state root.
	File bool `json:"file" yaml:"file"`
}

// MetricsConfig controls the status server; an empty address disables it.
type MetricsConfig struct {
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	File    string `json:"file,omitempty" yaml:"file,omitempty"`
}

// DefaultConfig returns a Config populated with the default values. Callers
// may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		StateRoot: ".",
		Batch: BatchConfig{
			Size:          1000,
			Window:        3,
			MaxRejections: 100000,
			PollInterval:  500 * time.Millisecond,
			Archive:       true,
		},
		Probe:     oracle.DefaultConfig(),
		Pacing:    pacing.DefaultConfig(),
		Exclusion: ExclusionConfig{Backend: BackendMemory, SyncWrites: true},
		Logging:   LoggingConfig{Level: "info", Format: "text", File: true},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.StateRoot == "" {
		errs = append(errs, fmt.Errorf("stateRoot must not be empty"))
	}
	if c.Batch.Size <= 0 {
		errs = append(errs, fmt.Errorf("batch.size must be > 0"))
	}
	if c.Batch.Window <= 0 {
		errs = append(errs, fmt.Errorf("batch.window must be > 0"))
	}
	if c.Batch.MaxProducers < 0 {
		errs = append(errs, fmt.Errorf("batch.maxProducers must be >= 0"))
	}
	if c.Pacing.BaseMax < c.Pacing.BaseMin {
		errs = append(errs, fmt.Errorf("pacing.baseMax must be >= pacing.baseMin"))
	}
	for _, tier := range c.Pacing.Tiers {
		if tier.Every == 0 || tier.Max < tier.Min {
			errs = append(errs, fmt.Errorf("pacing tier %d: every must be > 0 and max >= min", tier.Every))
		}
	}
	switch c.Exclusion.Backend {
	case "", BackendMemory, BackendBadger:
	default:
		errs = append(errs, fmt.Errorf("exclusion.backend %q is not one of %s, %s", c.Exclusion.Backend, BackendMemory, BackendBadger))
	}
	if len(c.Templates) > 0 {
		if _, err := template.FromDefinitions(c.Templates); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML config from URL over DefaultConfig.
func LoadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", URL, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return cfg, nil
}
