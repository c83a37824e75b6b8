// Package pacing shapes the probe rate: a randomized delay after every probe
// plus longer cooldowns at multiples of the cumulative probe count.
package pacing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/viant/handlegen/internal/clock"
	"golang.org/x/time/rate"
)

// Tier is a cooldown applied when the probe count is a multiple of Every.
type Tier struct {
	Every uint64        `yaml:"every" json:"every"`
	Min   time.Duration `yaml:"min" json:"min"`
	Max   time.Duration `yaml:"max" json:"max"`
}

// Config represents pacing configuration.
type Config struct {
	BaseMin time.Duration `yaml:"baseMin" json:"baseMin"`
	BaseMax time.Duration `yaml:"baseMax" json:"baseMax"`
	Tiers   []Tier        `yaml:"tiers" json:"tiers"`
	// MaxPerSecond caps the probe rate; zero disables the ceiling.
	MaxPerSecond float64 `yaml:"maxPerSecond" json:"maxPerSecond"`
}

// DefaultConfig returns the default pacing schedule.
func DefaultConfig() Config {
	return Config{
		BaseMin: 2500 * time.Millisecond,
		BaseMax: 4500 * time.Millisecond,
		Tiers: []Tier{
			{Every: 1000, Min: 15 * time.Minute, Max: 30 * time.Minute},
			{Every: 500, Min: 5 * time.Minute, Max: 10 * time.Minute},
			{Every: 100, Min: 90 * time.Second, Max: 120 * time.Second},
			{Every: 50, Min: 15 * time.Second, Max: 30 * time.Second},
			{Every: 10, Min: 10 * time.Second, Max: 15 * time.Second},
		},
	}
}

// Pacer is safe for concurrent use.
type Pacer struct {
	config  Config
	tiers   []Tier
	limiter *rate.Limiter
	sleep   clock.SleepFunc
	logger  *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithSleep replaces real waiting.
func WithSleep(fn clock.SleepFunc) Option {
	return func(p *Pacer) {
		p.sleep = fn
	}
}

// WithRand sets the random source of the delays.
func WithRand(rnd *rand.Rand) Option {
	return func(p *Pacer) {
		p.rnd = rnd
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pacer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pacer.
func New(config Config, options ...Option) *Pacer {
	p := &Pacer{
		config: config,
		sleep:  clock.Sleep,
		logger: slog.Default(),
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range options {
		opt(p)
	}
	p.tiers = append([]Tier(nil), config.Tiers...)
	sort.SliceStable(p.tiers, func(i, j int) bool { return p.tiers[i].Every > p.tiers[j].Every })
	if config.MaxPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(config.MaxPerSecond), 1)
	}
	return p
}

// Zero returns a pacer that never waits.
func Zero() *Pacer {
	return New(Config{})
}

func (p *Pacer) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rnd.Int64N(int64(max-min)))
}

// Delay returns the base delay and the cooldown owed after total probes. Only
// the largest matching tier applies.
func (p *Pacer) Delay(total uint64) (base, cooldown time.Duration) {
	base = p.uniform(p.config.BaseMin, p.config.BaseMax)
	if total == 0 {
		return base, 0
	}
	for _, tier := range p.tiers {
		if tier.Every > 0 && total%tier.Every == 0 {
			return base, p.uniform(tier.Min, tier.Max)
		}
	}
	return base, 0
}

// Wait blocks for the delay owed after total probes and then for the rate
// ceiling. It returns early with ctx.Err() on cancellation.
func (p *Pacer) Wait(ctx context.Context, total uint64) error {
	base, cooldown := p.Delay(total)
	if err := p.sleep(ctx, base); err != nil {
		return err
	}
	if cooldown > 0 {
		p.logger.Info("cooling down", "total_checks", total, "pause", cooldown.Round(time.Second))
		if err := p.sleep(ctx, cooldown); err != nil {
			return err
		}
	}
	return p.ceiling(ctx)
}

// Pause blocks for a base delay and the rate ceiling only. It follows a
// probe that did not advance the check count, so no cooldown is owed again.
func (p *Pacer) Pause(ctx context.Context) error {
	if err := p.sleep(ctx, p.uniform(p.config.BaseMin, p.config.BaseMax)); err != nil {
		return err
	}
	return p.ceiling(ctx)
}

func (p *Pacer) ceiling(ctx context.Context) error {
	if p.limiter != nil {
		return p.limiter.Wait(ctx)
	}
	return nil
}
