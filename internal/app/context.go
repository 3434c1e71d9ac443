package app

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/oggyb/scene-match/internal/cache"
	"github.com/oggyb/scene-match/internal/config"
	"github.com/oggyb/scene-match/internal/logger"
	"github.com/oggyb/scene-match/internal/metrics"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
}

// Option customizes an AppContext.
type Option func(*AppContext)

// WithClock swaps the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(a *AppContext) { a.Clock = c }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *AppContext) { a.Metrics = m }
}

// WithConfig attaches the loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *AppContext) { a.Config = cfg }
}

// New creates a new AppContext
func New(db *gorm.DB, rdb *cache.RedisCache, log *slog.Logger, opts ...Option) *AppContext {
	a := &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     log,
		Clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Logger == nil {
		a.Logger = logger.L()
	}
	if a.Config == nil {
		a.Config = config.New()
	}
	return a
}
