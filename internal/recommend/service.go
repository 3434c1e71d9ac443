package recommend

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oggyb/scene-match/internal/app"
	svcErr "github.com/oggyb/scene-match/internal/errors"
	"github.com/oggyb/scene-match/internal/metrics"
	"github.com/oggyb/scene-match/internal/profile"
	"github.com/oggyb/scene-match/internal/repository"
	"github.com/oggyb/scene-match/internal/scoring"
)

const maxItems = 100

// Request asks for a ranked list.
type Request struct {
	UserID       uint64
	Scene        string
	MaxN         int
	ForceRefresh bool
}

// List is a served recommendation list.
type List struct {
	UserID      uint64
	Scene       string
	Items       []Item
	FromCache   bool
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// Compatibility is the score of one requester/target pair.
type Compatibility struct {
	Score    float64
	Reasons  []string
	Degraded []string
}

// Service serves recommendation lists through the cache and scores single
// pairs on demand.
type Service struct {
	profiles     *repository.ProfileRepository
	scorer       *scoring.Scorer
	generator    *Generator
	cache        *Cache
	clock        clockwork.Clock
	log          *slog.Logger
	metrics      *metrics.Metrics
	defaultLimit int
	depth        int
}

// Option customizes a Service.
type Option func(*Service)

// WithCandidateSource swaps the candidate store used for generation.
func WithCandidateSource(src CandidateSource) Option {
	return func(s *Service) { s.generator.profiles = src }
}

// NewService wires the recommendation service from the shared app context.
// It fails only when the scoring configuration is invalid.
func NewService(appCtx *app.AppContext, opts ...Option) (*Service, error) {
	cfg := appCtx.Config
	scorer, err := scoring.New(scoring.ConfigFrom(cfg))
	if err != nil {
		return nil, err
	}

	log := appCtx.Logger.With("component", "recommend")
	profiles := repository.NewProfileRepository(appCtx.DB)
	s := &Service{
		profiles:     profiles,
		scorer:       scorer,
		generator:    NewGenerator(profiles, scorer, cfg.Recommend.CandidateLimit, cfg.Recommend.TrustThreshold, log, appCtx.Metrics),
		cache:        NewCache(appCtx.RedisCache, appCtx.Clock, cfg.Recommend.TTL, cfg.Recommend.SceneTTL, cfg.Scheduler.CacheRetention),
		clock:        appCtx.Clock,
		log:          log,
		metrics:      appCtx.Metrics,
		defaultLimit: cfg.Recommend.DefaultLimit,
		depth:        cfg.Recommend.CacheDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetRecommendations serves a fresh cache entry when allowed, else generates,
// caches and serves a new list.
//
// Example:
//
//	svc.GetRecommendations(ctx, Request{UserID: 1, Scene: "housing", MaxN: 10})
func (s *Service) GetRecommendations(ctx context.Context, req Request) (List, error) {
	scene, err := profile.ParseScene(req.Scene)
	if err != nil {
		return List{}, err
	}
	if req.UserID == 0 {
		return List{}, svcErr.Validation("user id is required")
	}
	n := req.MaxN
	switch {
	case n <= 0:
		n = s.defaultLimit
	case n > maxItems:
		n = maxItems
	}

	if !req.ForceRefresh {
		entry, ok, err := s.cache.Get(ctx, req.UserID, string(scene))
		if err != nil {
			// the cache is rebuildable; fall through to generation
			s.log.Warn("recommendation cache read failed", "user", req.UserID, "scene", scene, "err", err)
		}
		if ok && entry.Covers(n) {
			s.metrics.RecommendationServed(string(scene), true)
			return listFrom(entry, n, true), nil
		}
	}

	entry, err := s.generate(ctx, req.UserID, scene, max(n, s.depth))
	if err != nil {
		return List{}, err
	}
	s.metrics.RecommendationServed(string(scene), false)
	return listFrom(entry, n, false), nil
}

// Refresh regenerates and caches the full-depth list for (user, scene).
func (s *Service) Refresh(ctx context.Context, userID uint64, scene string) error {
	parsed, err := profile.ParseScene(scene)
	if err != nil {
		return err
	}
	_, err = s.generate(ctx, userID, parsed, s.depth)
	return err
}

func (s *Service) generate(ctx context.Context, userID uint64, scene profile.Scene, depth int) (*Entry, error) {
	items, err := s.generator.Generate(ctx, userID, scene, depth)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		UserID:      userID,
		Scene:       string(scene),
		Items:       items,
		Depth:       depth,
		GeneratedAt: s.clock.Now().UTC(),
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		s.log.Warn("recommendation cache write failed", "user", userID, "scene", scene, "err", err)
		entry.ExpiresAt = entry.GeneratedAt
	}
	return entry, nil
}

// GetCompatibility scores targetCardID from userID's point of view in scene.
func (s *Service) GetCompatibility(ctx context.Context, userID uint64, targetCardID, scene string) (Compatibility, error) {
	parsed, err := profile.ParseScene(scene)
	if err != nil {
		return Compatibility{}, err
	}
	ref, err := s.profiles.GetActive(ctx, userID, parsed)
	if err != nil {
		return Compatibility{}, err
	}
	target, err := s.profiles.GetByCardID(ctx, targetCardID)
	if err != nil {
		return Compatibility{}, err
	}
	if target.Scene != parsed {
		return Compatibility{}, svcErr.Validation("card %s belongs to scene %s", target.CardID, target.Scene)
	}

	res := s.scorer.Score(parsed, ref, target)
	if len(res.Degraded) > 0 {
		s.log.Debug("degraded scoring", "user", userID, "card", targetCardID, "factors", res.Degraded)
	}
	s.metrics.CompatibilityScored(string(parsed), res.Score)
	return Compatibility{Score: res.Score, Reasons: res.Reasons, Degraded: res.Degraded}, nil
}

// Invalidate drops the cached list of one (user, scene).
func (s *Service) Invalidate(ctx context.Context, userID uint64, scene string) error {
	parsed, err := profile.ParseScene(scene)
	if err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, userID, string(parsed))
}

// InvalidateScene drops every cached list of scene.
func (s *Service) InvalidateScene(ctx context.Context, scene string) (int64, error) {
	parsed, err := profile.ParseScene(scene)
	if err != nil {
		return 0, err
	}
	return s.cache.InvalidateScene(ctx, string(parsed))
}

// PurgeCache deletes cached lists generated more than retention ago.
func (s *Service) PurgeCache(ctx context.Context, retention time.Duration) (int64, error) {
	return s.cache.PurgeOlderThan(ctx, retention)
}

func listFrom(e *Entry, n int, fromCache bool) List {
	items := e.Items
	if len(items) > n {
		items = items[:n]
	}
	return List{
		UserID:      e.UserID,
		Scene:       e.Scene,
		Items:       items,
		FromCache:   fromCache,
		GeneratedAt: e.GeneratedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}
