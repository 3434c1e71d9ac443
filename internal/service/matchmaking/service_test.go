package matchmaking_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/cache"
	"github.com/oggyb/scene-match/internal/config"
	"github.com/oggyb/scene-match/internal/db/dbtest"
	"github.com/oggyb/scene-match/internal/match"
	"github.com/oggyb/scene-match/internal/profile"
	"github.com/oggyb/scene-match/internal/recommend"
	"github.com/oggyb/scene-match/internal/repository"
	"github.com/oggyb/scene-match/internal/scheduler"
	"github.com/oggyb/scene-match/internal/server"
	"github.com/oggyb/scene-match/internal/service/matchmaking"
	"github.com/oggyb/scene-match/internal/stats"
)

// setupClient wires every component over SQLite and miniredis and serves them
// on an in-memory listener.
// Dataset: users 1 and 2 each own one dating card, "d1" and "d2".
func setupClient(t *testing.T) *matchmaking.Client {
	t.Helper()
	ctx := context.Background()

	gdb := dbtest.Open(t)
	profiles := repository.NewProfileRepository(gdb)
	for _, card := range []profile.Profile{
		{CardID: "d1", UserID: 1, Scene: profile.SceneDating, Role: profile.RoleMember,
			Dating: &profile.Dating{Age: 28, Interests: []string{"电影", "旅行"}}},
		{CardID: "d2", UserID: 2, Scene: profile.SceneDating, Role: profile.RoleMember,
			Dating: &profile.Dating{Age: 29, Interests: []string{"旅行"}}},
	} {
		require.NoError(t, profiles.Upsert(ctx, card))
	}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(gdb, cache.NewRedisCache(cfg), log,
		app.WithClock(clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))),
		app.WithConfig(cfg))

	matches := match.NewService(appCtx)
	recs, err := recommend.NewService(appCtx)
	require.NoError(t, err)
	st := stats.NewService(appCtx)
	sch, err := scheduler.New(appCtx, scheduler.NewStatisticsRefresh(st, cfg))
	require.NoError(t, err)

	svc := matchmaking.NewService(appCtx, matches, recs, st, sch)
	grpcServer := server.NewGRPCServer(log, matchmaking.NewRegistrar(svc))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return matchmaking.NewClient(conn)
}

func TestMatchFlowOverGRPC(t *testing.T) {
	ctx := context.Background()
	client := setupClient(t)

	recs, err := client.Call(ctx, matchmaking.MethodGetRecommendations, map[string]any{
		"user_id": "1", "scene": "dating", "max_n": 5,
	})
	require.NoError(t, err)
	items := recs.Fields["items"].GetListValue().GetValues()
	require.Len(t, items, 1)
	assert.Equal(t, "d2", items[0].GetStructValue().Fields["card_id"].GetStringValue())
	assert.False(t, recs.Fields["from_cache"].GetBoolValue())

	compat, err := client.Call(ctx, matchmaking.MethodGetCompatibility, map[string]any{
		"user_id": 1, "target_card_id": "d2", "scene": "dating",
	})
	require.NoError(t, err)
	score := compat.Fields["score"].GetNumberValue()
	assert.True(t, score >= 0 && score <= 100)

	first, err := client.Call(ctx, matchmaking.MethodRecordAction, map[string]any{
		"actor_id": "1", "target_card_id": "d2", "scene": "dating", "action_type": "like",
	})
	require.NoError(t, err)
	assert.False(t, first.Fields["created_match"].GetBoolValue())

	second, err := client.Call(ctx, matchmaking.MethodRecordAction, map[string]any{
		"actor_id": "2", "target_card_id": "d1", "scene": "dating", "action_type": "superlike",
	})
	require.NoError(t, err)
	assert.True(t, second.Fields["created_match"].GetBoolValue())
	matchID := second.Fields["match_id"].GetStringValue()
	require.NotEmpty(t, matchID)

	list, err := client.Call(ctx, matchmaking.MethodListMatches, map[string]any{"user_id": "2"})
	require.NoError(t, err)
	rows := list.Fields["matches"].GetListValue().GetValues()
	require.Len(t, rows, 1)
	assert.Equal(t, matchID, rows[0].GetStructValue().Fields["match_id"].GetStringValue())
	_, hasNext := list.Fields["next_page_token"]
	assert.False(t, hasNext)

	un, err := client.Call(ctx, matchmaking.MethodUnmatch, map[string]any{"user_id": "1", "match_id": matchID})
	require.NoError(t, err)
	assert.Equal(t, "unmatched", un.Fields["match"].GetStructValue().Fields["status"].GetStringValue())

	_, err = client.Call(ctx, matchmaking.MethodGetSceneStats, map[string]any{"scene": "dating"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	trig, err := client.Call(ctx, matchmaking.MethodTriggerJob, map[string]any{"job": scheduler.JobStatisticsRefresh})
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusSuccess,
		trig.Fields["job"].GetStructValue().Fields["last_status"].GetStringValue())

	stat, err := client.Call(ctx, matchmaking.MethodGetSceneStats, map[string]any{"scene": "dating"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, stat.Fields["total_actions"].GetNumberValue())
	assert.Equal(t, 1.0, stat.Fields["total_matches"].GetNumberValue())
	assert.Equal(t, 0.0, stat.Fields["active_matches"].GetNumberValue())
	assert.Equal(t, 50.0, stat.Fields["match_rate"].GetNumberValue())

	sched, err := client.Call(ctx, matchmaking.MethodGetSchedulerStatus, map[string]any{})
	require.NoError(t, err)
	jobs := sched.Fields["jobs"].GetListValue().GetValues()
	require.Len(t, jobs, 1)
	assert.Equal(t, scheduler.JobStatisticsRefresh, jobs[0].GetStructValue().Fields["name"].GetStringValue())
}

func TestInvalidateOverGRPC(t *testing.T) {
	ctx := context.Background()
	client := setupClient(t)

	req := map[string]any{"user_id": "1", "scene": "dating"}
	_, err := client.Call(ctx, matchmaking.MethodGetRecommendations, req)
	require.NoError(t, err)
	again, err := client.Call(ctx, matchmaking.MethodGetRecommendations, req)
	require.NoError(t, err)
	assert.True(t, again.Fields["from_cache"].GetBoolValue())

	_, err = client.Call(ctx, matchmaking.MethodInvalidateRecommendations, req)
	require.NoError(t, err)
	fresh, err := client.Call(ctx, matchmaking.MethodGetRecommendations, req)
	require.NoError(t, err)
	assert.False(t, fresh.Fields["from_cache"].GetBoolValue())

	all, err := client.Call(ctx, matchmaking.MethodInvalidateRecommendations, map[string]any{"scene": "dating"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, all.Fields["invalidated"].GetNumberValue())
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	ctx := context.Background()
	client := setupClient(t)

	cases := []struct {
		name   string
		method string
		req    map[string]any
		code   codes.Code
	}{
		{"bad actor id", matchmaking.MethodRecordAction,
			map[string]any{"actor_id": "abc", "target_card_id": "d2", "scene": "dating", "action_type": "like"}, codes.InvalidArgument},
		{"fractional user id", matchmaking.MethodGetRecommendations, map[string]any{"user_id": 1.5, "scene": "dating"}, codes.InvalidArgument},
		{"user id out of range", matchmaking.MethodGetRecommendations, map[string]any{"user_id": 1.9e19, "scene": "dating"}, codes.InvalidArgument},
		{"negative user id", matchmaking.MethodListMatches, map[string]any{"user_id": -3}, codes.InvalidArgument},
		{"missing user", matchmaking.MethodGetRecommendations, map[string]any{"scene": "dating"}, codes.InvalidArgument},
		{"unknown scene", matchmaking.MethodGetRecommendations, map[string]any{"user_id": "1", "scene": "office"}, codes.InvalidArgument},
		{"unknown card", matchmaking.MethodRecordAction,
			map[string]any{"actor_id": "1", "target_card_id": "nope", "scene": "dating", "action_type": "like"}, codes.NotFound},
		{"bad action type", matchmaking.MethodRecordAction,
			map[string]any{"actor_id": "1", "target_card_id": "d2", "scene": "dating", "action_type": "wink"}, codes.InvalidArgument},
		{"unknown match", matchmaking.MethodUnmatch, map[string]any{"user_id": "1", "match_id": "missing"}, codes.NotFound},
		{"missing job", matchmaking.MethodTriggerJob, map[string]any{}, codes.InvalidArgument},
		{"unknown job", matchmaking.MethodTriggerJob, map[string]any{"job": "reindex"}, codes.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Call(ctx, tc.method, tc.req)
			assert.Equal(t, tc.code, status.Code(err))
		})
	}
}
