package stats

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/cache"
	svcErr "github.com/oggyb/scene-match/internal/errors"
	"github.com/oggyb/scene-match/internal/profile"
	"github.com/oggyb/scene-match/internal/repository"
)

// SceneStats are the aggregate counters of one scene.
type SceneStats struct {
	Scene           string
	TotalActions    int64
	PositiveActions int64
	TotalMatches    int64
	ActiveMatches   int64
	// MatchRate is TotalMatches per 100 positive actions, two decimals.
	MatchRate   float64
	RefreshedAt time.Time
}

// Key is the Redis hash holding a scene's stats.
func Key(scene string) string { return "stats:scene:" + scene }

// Service recomputes per-scene aggregates and serves the last snapshot.
type Service struct {
	actions *repository.ActionRepository
	matches *repository.MatchRepository
	cache   *cache.RedisCache
	clock   clockwork.Clock
	log     *slog.Logger
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		actions: repository.NewActionRepository(appCtx.DB),
		matches: repository.NewMatchRepository(appCtx.DB),
		cache:   appCtx.RedisCache,
		clock:   appCtx.Clock,
		log:     appCtx.Logger.With("component", "stats"),
	}
}

// Refresh recomputes every scene and overwrites the stored snapshots.
func (s *Service) Refresh(ctx context.Context) ([]SceneStats, error) {
	actions, err := s.actions.CountByScene(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := s.matches.CountByScene(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	out := make([]SceneStats, 0, len(profile.Scenes))
	for _, scene := range profile.Scenes {
		a, m := actions[string(scene)], matches[string(scene)]
		st := SceneStats{
			Scene:           string(scene),
			TotalActions:    a.Total,
			PositiveActions: a.Positive,
			TotalMatches:    m.Total,
			ActiveMatches:   m.Active,
			MatchRate:       matchRate(m.Total, a.Positive),
			RefreshedAt:     now,
		}
		if err := s.cache.SaveHash(ctx, Key(st.Scene), map[string]any{
			"total_actions":    st.TotalActions,
			"positive_actions": st.PositiveActions,
			"total_matches":    st.TotalMatches,
			"active_matches":   st.ActiveMatches,
			"match_rate":       strconv.FormatFloat(st.MatchRate, 'f', 2, 64),
			"refreshed_at":     st.RefreshedAt.Format(time.RFC3339Nano),
		}); err != nil {
			return nil, svcErr.Transient(err)
		}
		out = append(out, st)
	}

	s.log.Debug("scene stats refreshed", "scenes", len(out))
	return out, nil
}

// Get returns the last refreshed snapshot of scene.
func (s *Service) Get(ctx context.Context, scene string) (SceneStats, error) {
	parsed, err := profile.ParseScene(scene)
	if err != nil {
		return SceneStats{}, err
	}
	h, err := s.cache.LoadHash(ctx, Key(string(parsed)))
	if err != nil {
		return SceneStats{}, svcErr.Transient(err)
	}
	if len(h) == 0 {
		return SceneStats{}, svcErr.NotFound("stats for scene %s not computed yet", parsed)
	}

	st := SceneStats{Scene: string(parsed)}
	st.TotalActions, _ = strconv.ParseInt(h["total_actions"], 10, 64)
	st.PositiveActions, _ = strconv.ParseInt(h["positive_actions"], 10, 64)
	st.TotalMatches, _ = strconv.ParseInt(h["total_matches"], 10, 64)
	st.ActiveMatches, _ = strconv.ParseInt(h["active_matches"], 10, 64)
	st.MatchRate, _ = strconv.ParseFloat(h["match_rate"], 64)
	st.RefreshedAt, _ = time.Parse(time.RFC3339Nano, h["refreshed_at"])
	return st, nil
}

func matchRate(matches, positive int64) float64 {
	if positive == 0 {
		return 0
	}
	return math.Round(float64(matches)/float64(positive)*100*100) / 100
}
