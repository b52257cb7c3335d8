// Package gate throttles outgoing crawl requests per source. Every source
// gets a request budget; once the budget is spent a randomised cooldown
// window opens and callers are told how long to wait before sending again.
package gate

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lysyi3m/product-comb/app/metrics"
)

const (
	DefaultThreshold = 250
	DefaultCooldown  = time.Minute
)

type Config struct {
	Threshold int
	Cooldown  time.Duration
}

func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, Cooldown: DefaultCooldown}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	return c
}

// State is the counter of one source.
type State struct {
	RequestCount  int
	CooldownUntil time.Time
}

type Gate struct {
	mu      sync.Mutex
	def     Config
	configs map[string]Config
	states  map[string]*State
	now     func() time.Time
	random  func() float64
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithRandom sets the source of the cooldown jitter; f must return values in [0, 1).
func WithRandom(f func() float64) Option {
	return func(g *Gate) { g.random = f }
}

func New(def Config, opts ...Option) *Gate {
	g := &Gate{
		def:     def.withDefaults(),
		configs: make(map[string]Config),
		states:  make(map[string]*State),
		now:     time.Now,
		random:  rand.Float64,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configure overrides threshold and cooldown for one source.
func (g *Gate) Configure(source string, cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cfg = cfg.withDefaults()
	if prev, ok := g.configs[source]; ok && prev != cfg {
		slog.Warn("Rate gate reconfigured", "source", source,
			"threshold", cfg.Threshold, "previous_threshold", prev.Threshold,
			"cooldown", cfg.Cooldown, "previous_cooldown", prev.Cooldown)
	}
	g.configs[source] = cfg
}

// BeforeRequest accounts one request for source and returns how long the
// caller has to wait before sending it. The call that spends the budget still
// goes out immediately; the cooldown applies from the next call on.
func (g *Gate) BeforeRequest(source string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	st, ok := g.states[source]
	if !ok {
		st = &State{}
		g.states[source] = st
	}
	cfg, ok := g.configs[source]
	if !ok {
		cfg = g.def
	}

	var delay time.Duration
	if now.Before(st.CooldownUntil) {
		delay = st.CooldownUntil.Sub(now)
	}

	st.RequestCount++
	if st.RequestCount >= cfg.Threshold {
		st.RequestCount = 0
		start := now
		if delay > 0 {
			start = st.CooldownUntil
		}
		window := time.Duration(float64(cfg.Cooldown) * (0.5 + g.random()))
		st.CooldownUntil = start.Add(window)

		metrics.GateCooldowns.WithLabelValues(source).Inc()
		slog.Debug("Rate gate cooldown", "source", source, "until", st.CooldownUntil)
	}

	return delay
}

// Snapshot returns a copy of the state of source.
func (g *Gate) Snapshot(source string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.states[source]; ok {
		return *st
	}
	return State{}
}

// Wait calls BeforeRequest and sleeps for the returned delay unless ctx ends first.
func (g *Gate) Wait(ctx context.Context, source string) error {
	delay := g.BeforeRequest(source)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
