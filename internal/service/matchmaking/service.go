package matchmaking

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/db"
	svcErr "github.com/oggyb/scene-match/internal/errors"
	"github.com/oggyb/scene-match/internal/match"
	"github.com/oggyb/scene-match/internal/recommend"
	"github.com/oggyb/scene-match/internal/scheduler"
	"github.com/oggyb/scene-match/internal/stats"
)

// Service implements the MatchService gRPC API on top of the match,
// recommendation, stats and scheduler components.
type Service struct {
	appCtx    *app.AppContext
	matches   *match.Service
	recs      *recommend.Service
	stats     *stats.Service
	scheduler *scheduler.Scheduler
}

func NewService(appCtx *app.AppContext, m *match.Service, r *recommend.Service, st *stats.Service, sch *scheduler.Scheduler) *Service {
	return &Service{appCtx: appCtx, matches: m, recs: r, stats: st, scheduler: sch}
}

var _ MatchServiceServer = (*Service)(nil)

// RecordAction stores one action and reports a newly created match.
//
// Example request:
//
//	{"actor_id": "1", "target_card_id": "c-2", "scene": "dating", "action_type": "like"}
func (s *Service) RecordAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	actorID, err := f.id("actor_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out, err := s.matches.RecordAction(ctx, match.ActionRequest{
		ActorID:      actorID,
		TargetCardID: f.str("target_card_id"),
		Scene:        f.str("scene"),
		ActionType:   f.str("action_type"),
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return build(map[string]any{
		"created_match": out.CreatedMatch,
		"match_id":      out.MatchID,
	})
}

func (s *Service) GetRecommendations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	userID, err := f.id("user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	list, err := s.recs.GetRecommendations(ctx, recommend.Request{
		UserID:       userID,
		Scene:        f.str("scene"),
		MaxN:         f.num("max_n"),
		ForceRefresh: f.flag("force_refresh"),
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}

	items := make([]any, 0, len(list.Items))
	for _, it := range list.Items {
		items = append(items, map[string]any{
			"card_id": it.CardID,
			"user_id": formatID(it.UserID),
			"score":   it.Score,
			"reasons": strings2list(it.Reasons),
		})
	}
	return build(map[string]any{
		"user_id":      formatID(list.UserID),
		"scene":        list.Scene,
		"items":        items,
		"from_cache":   list.FromCache,
		"generated_at": formatTime(list.GeneratedAt),
		"expires_at":   formatTime(list.ExpiresAt),
	})
}

func (s *Service) GetCompatibility(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	userID, err := f.id("user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	c, err := s.recs.GetCompatibility(ctx, userID, f.str("target_card_id"), f.str("scene"))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return build(map[string]any{
		"score":    c.Score,
		"reasons":  strings2list(c.Reasons),
		"degraded": strings2list(c.Degraded),
	})
}

// InvalidateRecommendations drops one user's cached list, or every list of
// the scene when user_id is omitted.
func (s *Service) InvalidateRecommendations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	scene := f.str("scene")

	if !f.has("user_id") {
		n, err := s.recs.InvalidateScene(ctx, scene)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		return build(map[string]any{"invalidated": n})
	}

	userID, err := f.id("user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.recs.Invalidate(ctx, userID, scene); err != nil {
		return nil, svcErr.Map(err)
	}
	return build(map[string]any{"invalidated": 1})
}

// ListMatches pages through the user's live matches, newest first.
func (s *Service) ListMatches(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	userID, err := f.id("user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	var token *string
	if t := f.str("page_token"); t != "" {
		token = &t
	}
	matches, next, err := s.matches.ListMatches(ctx, userID, f.str("scene"), token, f.num("limit"))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	out := make([]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchFields(m))
	}
	resp := map[string]any{"matches": out}
	if next != nil {
		resp["next_page_token"] = *next
	}
	return build(resp)
}

func (s *Service) Unmatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	userID, err := f.id("user_id")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	m, err := s.matches.Unmatch(ctx, userID, f.str("match_id"))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return build(map[string]any{"match": matchFields(m)})
}

func (s *Service) GetSceneStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.stats.Get(ctx, fields{req}.str("scene"))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return build(map[string]any{
		"scene":            st.Scene,
		"total_actions":    st.TotalActions,
		"positive_actions": st.PositiveActions,
		"total_matches":    st.TotalMatches,
		"active_matches":   st.ActiveMatches,
		"match_rate":       st.MatchRate,
		"refreshed_at":     formatTime(st.RefreshedAt),
	})
}

func (s *Service) GetSchedulerStatus(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	jobs := make([]any, 0, 3)
	for _, st := range s.scheduler.Status() {
		jobs = append(jobs, jobFields(st))
	}
	return build(map[string]any{"jobs": jobs})
}

// TriggerJob runs a job now. The call blocks until the run finishes.
func (s *Service) TriggerJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := fields{req}.str("job")
	if name == "" {
		return nil, svcErr.InvalidArgument("job is required")
	}

	s.appCtx.Logger.Info("manual job trigger", "job", name)
	st, err := s.scheduler.Trigger(ctx, name)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return build(map[string]any{"job": jobFields(st)})
}

// --- helpers ---

type fields struct{ s *structpb.Struct }

func (f fields) value(key string) *structpb.Value {
	if f.s == nil {
		return nil
	}
	return f.s.GetFields()[key]
}

func (f fields) has(key string) bool {
	v := f.value(key)
	if v == nil {
		return false
	}
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	return !isNull
}

func (f fields) str(key string) string {
	return strings.TrimSpace(f.value(key).GetStringValue())
}

func (f fields) flag(key string) bool {
	return f.value(key).GetBoolValue()
}

func (f fields) num(key string) int {
	v := f.value(key)
	if s := v.GetStringValue(); s != "" {
		n, _ := strconv.Atoi(s)
		return n
	}
	return int(v.GetNumberValue())
}

// id accepts ids as decimal strings or JSON numbers.
func (f fields) id(key string) (uint64, error) {
	v := f.value(key)
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		id, err := strconv.ParseUint(strings.TrimSpace(k.StringValue), 10, 64)
		if err != nil {
			return 0, svcErr.Validation("%s must be a valid uint64", key)
		}
		return id, nil
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		// float64(MaxUint64) rounds up to 2^64, which uint64 cannot hold
		if n < 0 || n >= math.MaxUint64 || n != math.Trunc(n) {
			return 0, svcErr.Validation("%s must be a valid uint64", key)
		}
		return uint64(n), nil
	default:
		return 0, svcErr.Validation("%s is required", key)
	}
}

func build(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, svcErr.Map(fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func strings2list(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

func matchFields(m db.MatchResult) map[string]any {
	return map[string]any{
		"match_id":         m.ID,
		"user1_id":         formatID(m.User1ID),
		"user2_id":         formatID(m.User2ID),
		"card1_id":         m.Card1ID,
		"card2_id":         m.Card2ID,
		"scene":            m.Scene,
		"status":           m.Status,
		"is_active":        m.IsActive,
		"matched_at":       formatTime(m.MatchedAt),
		"last_activity_at": formatTime(m.LastActivityAt),
	}
}

func jobFields(st scheduler.JobStatus) map[string]any {
	return map[string]any{
		"name":                 st.Name,
		"every":                st.Every.String(),
		"last_run_at":          formatTimePtr(st.LastRunAt),
		"last_success_at":      formatTimePtr(st.LastSuccessAt),
		"last_status":          st.LastStatus,
		"last_error":           st.LastError,
		"consecutive_failures": st.ConsecutiveFailures,
		"last_item_failures":   st.LastItemFailures,
		"next_due_at":          formatTime(st.NextDueAt),
		"running":              st.Running,
	}
}
