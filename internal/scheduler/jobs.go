package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/scene-match/internal/config"
	"github.com/oggyb/scene-match/internal/repository"
	"github.com/oggyb/scene-match/internal/stats"
)

const (
	JobBulkGeneration    = "bulk_generation"
	JobCleanup           = "cleanup"
	JobStatisticsRefresh = "statistics_refresh"
)

// UserSceneSource pages through (user, scene) pairs with an active profile.
type UserSceneSource interface {
	ListActiveUserScenes(ctx context.Context, after repository.UserScene, limit int) ([]repository.UserScene, error)
}

// Refresher regenerates one user's cached recommendations for a scene.
type Refresher interface {
	Refresh(ctx context.Context, userID uint64, scene string) error
}

// BulkGeneration force-refreshes recommendations for every active
// (user, scene) pair in keyset-paged batches.
type BulkGeneration struct {
	src         UserSceneSource
	rec         Refresher
	every       time.Duration
	batchSize   int
	workers     int
	maxFailures int
	itemTimeout time.Duration
	log         *slog.Logger
}

func NewBulkGeneration(src UserSceneSource, rec Refresher, cfg *config.Config, log *slog.Logger) *BulkGeneration {
	return &BulkGeneration{
		src:         src,
		rec:         rec,
		every:       cfg.Scheduler.BulkEvery,
		batchSize:   max(cfg.Scheduler.BatchSize, 1),
		workers:     max(cfg.Scheduler.Workers, 1),
		maxFailures: cfg.Scheduler.MaxFailures,
		itemTimeout: cfg.Scheduler.ItemTimeout,
		log:         log.With("job", JobBulkGeneration),
	}
}

func (j *BulkGeneration) Name() string         { return JobBulkGeneration }
func (j *BulkGeneration) Every() time.Duration { return j.every }

// Run keeps going past per-item failures. Once ctx is done no new item is
// dispatched; items already running finish under their own timeout.
func (j *BulkGeneration) Run(ctx context.Context) (Result, error) {
	var (
		failures  atomic.Int64
		processed atomic.Int64
		after     repository.UserScene
	)
	result := func() Result {
		n := int(failures.Load())
		return Result{ItemFailures: n, Degraded: n > j.maxFailures}
	}

	for {
		if err := ctx.Err(); err != nil {
			return result(), err
		}
		page, err := j.src.ListActiveUserScenes(ctx, after, j.batchSize)
		if err != nil {
			return result(), fmt.Errorf("list active users: %w", err)
		}
		if len(page) == 0 {
			break
		}

		var g errgroup.Group
		g.SetLimit(j.workers)
		for _, us := range page {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.itemTimeout)
				defer cancel()
				if err := j.rec.Refresh(ictx, us.UserID, us.Scene); err != nil {
					failures.Add(1)
					j.log.Warn("refresh failed", "user_id", us.UserID, "scene", us.Scene, "err", err)
					return nil
				}
				processed.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return result(), err
		}
		if len(page) < j.batchSize {
			break
		}
		after = page[len(page)-1]
	}

	res := result()
	if res.Degraded {
		j.log.Warn("too many refresh failures", "failures", res.ItemFailures, "max", j.maxFailures)
	}
	j.log.Debug("bulk generation done", "processed", processed.Load(), "failures", res.ItemFailures)
	return res, nil
}

// CachePurger drops cached recommendation lists generated before now-retention.
type CachePurger interface {
	PurgeCache(ctx context.Context, retention time.Duration) (int64, error)
}

// Cleanup purges stale actions and cache entries, deactivates idle matches
// and deletes long-closed ones. Matched results are never deleted.
type Cleanup struct {
	actions *repository.ActionRepository
	matches *repository.MatchRepository
	cache   CachePurger
	clock   clockwork.Clock
	every   time.Duration

	actionRetention time.Duration
	cacheRetention  time.Duration
	idleAfter       time.Duration
	closedRetention time.Duration

	log *slog.Logger
}

func NewCleanup(actions *repository.ActionRepository, matches *repository.MatchRepository, purger CachePurger, clock clockwork.Clock, cfg *config.Config, log *slog.Logger) *Cleanup {
	return &Cleanup{
		actions:         actions,
		matches:         matches,
		cache:           purger,
		clock:           clock,
		every:           cfg.Scheduler.CleanupEvery,
		actionRetention: cfg.Scheduler.ActionRetention,
		cacheRetention:  cfg.Scheduler.CacheRetention,
		idleAfter:       cfg.Scheduler.MatchIdleAfter,
		closedRetention: cfg.Scheduler.ClosedMatchRetention,
		log:             log.With("job", JobCleanup),
	}
}

func (j *Cleanup) Name() string         { return JobCleanup }
func (j *Cleanup) Every() time.Duration { return j.every }

// Run attempts every step even when an earlier one fails.
func (j *Cleanup) Run(ctx context.Context) (Result, error) {
	now := j.clock.Now().UTC()

	steps := []struct {
		name string
		fn   func() (int64, error)
	}{
		{"actions", func() (int64, error) { return j.actions.DeleteOlderThan(ctx, now.Add(-j.actionRetention)) }},
		{"cache", func() (int64, error) { return j.cache.PurgeCache(ctx, j.cacheRetention) }},
		{"idle_matches", func() (int64, error) { return j.matches.DeactivateIdle(ctx, now.Add(-j.idleAfter), now) }},
		{"closed_matches", func() (int64, error) { return j.matches.DeleteClosedOlderThan(ctx, now.Add(-j.closedRetention)) }},
	}

	var (
		errs   []error
		failed int
	)
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := step.fn()
		if err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		j.log.Debug("cleanup step done", "step", step.name, "affected", n)
	}
	return Result{ItemFailures: failed}, errors.Join(errs...)
}

// StatsRefresher recomputes the per-scene aggregates.
type StatsRefresher interface {
	Refresh(ctx context.Context) ([]stats.SceneStats, error)
}

// StatisticsRefresh stores fresh per-scene stats for fast reads.
type StatisticsRefresh struct {
	stats StatsRefresher
	every time.Duration
}

func NewStatisticsRefresh(s StatsRefresher, cfg *config.Config) *StatisticsRefresh {
	return &StatisticsRefresh{stats: s, every: cfg.Scheduler.StatsEvery}
}

func (j *StatisticsRefresh) Name() string         { return JobStatisticsRefresh }
func (j *StatisticsRefresh) Every() time.Duration { return j.every }

func (j *StatisticsRefresh) Run(ctx context.Context) (Result, error) {
	_, err := j.stats.Refresh(ctx)
	return Result{}, err
}
