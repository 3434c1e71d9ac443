package recommend

import (
	"context"
	"log/slog"
	"sort"

	"github.com/oggyb/scene-match/internal/metrics"
	"github.com/oggyb/scene-match/internal/profile"
	"github.com/oggyb/scene-match/internal/repository"
	"github.com/oggyb/scene-match/internal/scoring"
)

// Item is one ranked candidate.
type Item struct {
	CardID  string   `json:"card_id"`
	UserID  uint64   `json:"user_id"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// CandidateSource is the slice of the profile store the generator needs.
type CandidateSource interface {
	GetActive(ctx context.Context, userID uint64, scene profile.Scene) (profile.Profile, error)
	ListCandidates(ctx context.Context, q repository.CandidateQuery) ([]profile.Profile, []string, error)
}

// Generator scores and ranks candidates for one requester.
type Generator struct {
	profiles       CandidateSource
	scorer         *scoring.Scorer
	candidateLimit int
	minTrust       float64
	log            *slog.Logger
	metrics        *metrics.Metrics
}

func NewGenerator(src CandidateSource, scorer *scoring.Scorer, candidateLimit int, minTrust float64, log *slog.Logger, m *metrics.Metrics) *Generator {
	return &Generator{
		profiles:       src,
		scorer:         scorer,
		candidateLimit: candidateLimit,
		minTrust:       minTrust,
		log:            log,
		metrics:        m,
	}
}

type ranked struct {
	item    Item
	created int64
}

// Generate returns up to n candidates for userID in scene, best first.
//
// Behavior:
//   - Reference profile is the user's newest active card in scene.
//   - Excludes the user, every card the user already acted on, cards of the
//     wrong role and cards under the trust threshold.
//   - Ordered by score DESC, then newest candidate card, then card id.
//   - Cards that fail to decode are skipped, never fail the request.
func (g *Generator) Generate(ctx context.Context, userID uint64, scene profile.Scene, n int) ([]Item, error) {
	ref, err := g.profiles.GetActive(ctx, userID, scene)
	if err != nil {
		return nil, err
	}

	cands, malformed, err := g.profiles.ListCandidates(ctx, repository.CandidateQuery{
		Scene:        scene,
		ExcludeUsers: []uint64{userID},
		ActedBy:      userID,
		Roles:        profile.CounterpartRoles(scene, ref.Role),
		MinTrust:     g.minTrust,
		Limit:        g.candidateLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(malformed) > 0 {
		g.metrics.ProfileMalformed(len(malformed))
		g.log.Warn("skipped malformed candidate profiles", "scene", scene, "cards", malformed)
	}

	out := make([]ranked, 0, len(cands))
	for _, c := range cands {
		res := g.scorer.Score(scene, ref, c)
		for _, f := range res.Degraded {
			g.metrics.FactorDegraded(string(scene), f)
		}
		out = append(out, ranked{
			item:    Item{CardID: c.CardID, UserID: c.UserID, Score: res.Score, Reasons: res.Reasons},
			created: c.CreatedAt.UnixNano(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.item.Score != b.item.Score {
			return a.item.Score > b.item.Score
		}
		if a.created != b.created {
			return a.created > b.created
		}
		return a.item.CardID < b.item.CardID
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}
	items := make([]Item, 0, len(out))
	for _, r := range out {
		items = append(items, r.item)
	}
	return items, nil
}
