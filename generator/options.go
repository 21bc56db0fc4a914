package generator

import (
	"log/slog"
	"math/rand"
	"time"
)

// Option customizes a Generate call
type Option func(*config)

type config struct {
	rng    *rand.Rand
	seed   int64
	logger *slog.Logger
}

// WithSeed makes the run reproducible; the seed is recorded on the design
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
		c.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand supplies the random source directly. The design then records
// seed 0. Panics on nil.
func WithRand(r *rand.Rand) Option {
	if r == nil {
		panic("generator: WithRand(nil)")
	}
	return func(c *config) {
		c.seed = 0
		c.rng = r
	}
}

// WithLogger routes fallback and violation logging. Panics on nil.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("generator: WithLogger(nil)")
	}
	return func(c *config) {
		c.logger = l
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	if c.rng == nil {
		c.seed = time.Now().UnixNano()
		c.rng = rand.New(rand.NewSource(c.seed))
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}
