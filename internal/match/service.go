package match

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/db"
	svcErr "github.com/oggyb/scene-match/internal/errors"
	"github.com/oggyb/scene-match/internal/metrics"
	"github.com/oggyb/scene-match/internal/profile"
	"github.com/oggyb/scene-match/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var actionTypes = map[string]bool{
	db.ActionLike:      true,
	db.ActionDislike:   true,
	db.ActionSuperlike: true,
	db.ActionPass:      true,
}

// IsPositive reports whether an action type counts towards a double opt-in.
func IsPositive(actionType string) bool {
	return actionType == db.ActionLike || actionType == db.ActionSuperlike
}

// ActionRequest is one submitted action.
type ActionRequest struct {
	ActorID      uint64
	TargetCardID string
	Scene        string
	ActionType   string
}

// Outcome reports whether recording an action created a match.
// MatchID is set whenever a positive action finds the pair matched, also when
// the match existed before or the action was a resubmission.
type Outcome struct {
	CreatedMatch bool
	MatchID      string
}

// Service owns the action store and double opt-in detection.
type Service struct {
	actions  *repository.ActionRepository
	matches  *repository.MatchRepository
	profiles *repository.ProfileRepository
	notifier Notifier
	clock    clockwork.Clock
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier replaces the match-created notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService wires the match service from the shared app context.
// Match events go to Redis pub/sub unless another notifier is given.
func NewService(appCtx *app.AppContext, opts ...Option) *Service {
	s := &Service{
		actions:  repository.NewActionRepository(appCtx.DB),
		matches:  repository.NewMatchRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
		notifier: nopNotifier{},
		clock:    appCtx.Clock,
		log:      appCtx.Logger.With("component", "match"),
		metrics:  appCtx.Metrics,
	}
	if appCtx.RedisCache != nil {
		s.notifier = NewRedisNotifier(appCtx.RedisCache)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordAction stores the action and, for positive actions, checks for a
// reciprocal positive action and creates the match.
//
// Behavior:
//   - Latest wins per (actor, card, scene).
//   - Resubmitting the same type after detection finished is a no-op.
//   - At most one live match per unordered pair and scene, even when both
//     users submit at the same instant. The loser gets the winner's id.
//
// Example:
//
//	svc.RecordAction(ctx, ActionRequest{ActorID: 1, TargetCardID: "c-2", Scene: "dating", ActionType: "like"})
func (s *Service) RecordAction(ctx context.Context, req ActionRequest) (Outcome, error) {
	scene, err := profile.ParseScene(req.Scene)
	if err != nil {
		return Outcome{}, err
	}
	actionType := strings.ToLower(strings.TrimSpace(req.ActionType))
	if !actionTypes[actionType] {
		return Outcome{}, svcErr.Validation("unknown action_type %q", req.ActionType)
	}
	if req.ActorID == 0 || strings.TrimSpace(req.TargetCardID) == "" {
		return Outcome{}, svcErr.Validation("actor and target card are required")
	}

	card, err := s.profiles.GetByCardID(ctx, req.TargetCardID)
	if err != nil {
		return Outcome{}, err
	}
	if card.Scene != scene {
		return Outcome{}, svcErr.Validation("card %s belongs to scene %s", card.CardID, card.Scene)
	}
	if card.UserID == req.ActorID {
		return Outcome{}, svcErr.Validation("cannot act on your own card")
	}

	now := s.now()
	res, err := s.actions.Record(ctx, db.MatchAction{
		ActorID:      req.ActorID,
		TargetID:     card.UserID,
		TargetCardID: card.CardID,
		Scene:        string(scene),
		ActionType:   actionType,
	}, now)
	if err != nil {
		return Outcome{}, err
	}
	if res.Changed {
		s.metrics.ActionRecorded(string(scene), actionType)
	}
	if !res.Changed && res.Action.Processed {
		s.log.Debug("duplicate action ignored", "actor", req.ActorID, "card", card.CardID, "action", actionType)
		if !IsPositive(actionType) {
			return Outcome{}, nil
		}
		live, err := s.matches.FindLive(ctx, req.ActorID, card.UserID, string(scene))
		if err != nil || live == nil {
			return Outcome{}, err
		}
		return Outcome{MatchID: live.ID}, nil
	}

	if !IsPositive(actionType) {
		return Outcome{}, s.actions.MarkProcessed(ctx, res.Action.ID, actionType)
	}

	recip, err := s.actions.FindReciprocal(ctx, card.UserID, req.ActorID, string(scene))
	if err != nil {
		return Outcome{}, err
	}
	if recip == nil {
		return Outcome{}, s.actions.MarkProcessed(ctx, res.Action.ID, actionType)
	}

	m, created, err := s.matches.CreateIfAbsent(ctx, db.MatchResult{
		User1ID:        req.ActorID,
		User2ID:        card.UserID,
		Card1ID:        recip.TargetCardID,
		Card2ID:        card.CardID,
		Scene:          string(scene),
		MatchedAt:      now,
		LastActivityAt: now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Outcome{}, err
	}
	if err := s.actions.MarkProcessed(ctx, res.Action.ID, actionType); err != nil {
		return Outcome{}, err
	}

	if created {
		s.metrics.MatchCreated(m.Scene)
		s.log.Info("match created", "match_id", m.ID, "scene", m.Scene, "user1", m.User1ID, "user2", m.User2ID)
		if err := s.notifier.MatchCreated(ctx, eventFrom(m)); err != nil {
			s.metrics.NotifyFailed()
			s.log.Warn("match notification failed", "match_id", m.ID, "err", err)
		}
	}
	return Outcome{CreatedMatch: created, MatchID: m.ID}, nil
}

// ListMatches returns the user's live matches, newest first.
// scene may be empty to list every scene.
func (s *Service) ListMatches(ctx context.Context, userID uint64, scene string, pageToken *string, limit int) ([]db.MatchResult, *string, error) {
	if userID == 0 {
		return nil, nil, svcErr.Validation("user id is required")
	}
	if scene != "" {
		parsed, err := profile.ParseScene(scene)
		if err != nil {
			return nil, nil, err
		}
		scene = string(parsed)
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return s.matches.ListForUser(ctx, userID, scene, pageToken, limit)
}

// Unmatch closes a match the user takes part in.
func (s *Service) Unmatch(ctx context.Context, userID uint64, matchID string) (db.MatchResult, error) {
	if userID == 0 || strings.TrimSpace(matchID) == "" {
		return db.MatchResult{}, svcErr.Validation("user id and match id are required")
	}
	m, err := s.matches.Unmatch(ctx, matchID, userID, s.now())
	if err != nil {
		return db.MatchResult{}, err
	}
	s.log.Info("match closed", "match_id", m.ID, "by", userID)
	return m, nil
}

// now is millisecond precision so cursors round-trip exactly.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}
