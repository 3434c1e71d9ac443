package match_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/cache"
	"github.com/oggyb/scene-match/internal/config"
	"github.com/oggyb/scene-match/internal/db"
	"github.com/oggyb/scene-match/internal/db/dbtest"
	svcErr "github.com/oggyb/scene-match/internal/errors"
	"github.com/oggyb/scene-match/internal/match"
	"github.com/oggyb/scene-match/internal/profile"
	"github.com/oggyb/scene-match/internal/repository"
)

//
// Test helpers
//

type recordingNotifier struct {
	mu     sync.Mutex
	events []match.Event
	err    error
}

func (n *recordingNotifier) MatchCreated(_ context.Context, ev match.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	svc      *match.Service
	gdb      *gorm.DB
	notifier *recordingNotifier
	clock    *clockwork.FakeClock
	redis    *cache.RedisCache
}

// setup wires a match service over in-memory SQLite and miniredis.
// Dataset: users 1, 2 and 3 each own one dating card "d<user>", user 1 also
// owns housing card "h1".
func setup(t *testing.T, opts ...match.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	gdb := dbtest.Open(t)
	profiles := repository.NewProfileRepository(gdb)
	for _, card := range []profile.Profile{
		{CardID: "d1", UserID: 1, Scene: profile.SceneDating, Role: profile.RoleMember, Dating: &profile.Dating{Age: 28}},
		{CardID: "d2", UserID: 2, Scene: profile.SceneDating, Role: profile.RoleMember, Dating: &profile.Dating{Age: 29}},
		{CardID: "d3", UserID: 3, Scene: profile.SceneDating, Role: profile.RoleMember, Dating: &profile.Dating{Age: 31}},
		{CardID: "h1", UserID: 1, Scene: profile.SceneHousing, Role: profile.RoleProvider, Housing: &profile.Housing{Price: 3000}},
	} {
		require.NoError(t, profiles.Upsert(ctx, card))
	}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // discard logs in tests
	appCtx := app.New(gdb, redisCache, logger, app.WithClock(clock), app.WithConfig(cfg))

	notifier := &recordingNotifier{}
	svc := match.NewService(appCtx, append([]match.Option{match.WithNotifier(notifier)}, opts...)...)
	return &fixture{svc: svc, gdb: gdb, notifier: notifier, clock: clock, redis: redisCache}
}

func act(actor uint64, card, actionType string) match.ActionRequest {
	return match.ActionRequest{ActorID: actor, TargetCardID: card, Scene: "dating", ActionType: actionType}
}

func (f *fixture) liveMatches(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.gdb.Model(&db.MatchResult{}).Where("status = ?", db.MatchStatusMatched).Count(&n).Error)
	return n
}

//
// Tests
//

func TestMutualLikeCreatesMatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out, err := f.svc.RecordAction(ctx, act(1, "d2", "like"))
	require.NoError(t, err)
	assert.False(t, out.CreatedMatch)
	assert.Empty(t, out.MatchID)

	out, err = f.svc.RecordAction(ctx, act(2, "d1", "superlike"))
	require.NoError(t, err)
	assert.True(t, out.CreatedMatch)
	require.NotEmpty(t, out.MatchID)

	require.Equal(t, 1, f.notifier.count())
	ev := f.notifier.events[0]
	assert.Equal(t, out.MatchID, ev.MatchID)
	assert.Equal(t, uint64(1), ev.User1ID)
	assert.Equal(t, "d1", ev.Card1ID)
	assert.Equal(t, "d2", ev.Card2ID)
}

func TestNegativeActionsNeverMatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.RecordAction(ctx, act(1, "d2", "like"))
	require.NoError(t, err)

	for _, typ := range []string{"pass", "dislike"} {
		out, err := f.svc.RecordAction(ctx, act(2, "d1", typ))
		require.NoError(t, err)
		assert.False(t, out.CreatedMatch)
	}
	assert.Equal(t, int64(0), f.liveMatches(t))
}

func TestIdempotentResubmission(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.RecordAction(ctx, act(1, "d2", "like"))
	require.NoError(t, err)
	first, err := f.svc.RecordAction(ctx, act(2, "d1", "like"))
	require.NoError(t, err)
	require.True(t, first.CreatedMatch)

	f.clock.Advance(time.Minute)
	again, err := f.svc.RecordAction(ctx, act(2, "d1", "like"))
	require.NoError(t, err)
	assert.False(t, again.CreatedMatch)
	assert.Equal(t, first.MatchID, again.MatchID)

	// the other side resubmitting reports the same match
	mirror, err := f.svc.RecordAction(ctx, act(1, "d2", "like"))
	require.NoError(t, err)
	assert.False(t, mirror.CreatedMatch)
	assert.Equal(t, first.MatchID, mirror.MatchID)

	var actions int64
	require.NoError(t, f.gdb.Model(&db.MatchAction{}).Where("actor_id = ?", 2).Count(&actions).Error)
	assert.Equal(t, int64(1), actions)
	assert.Equal(t, int64(1), f.liveMatches(t))
	assert.Equal(t, 1, f.notifier.count())
}

func TestLatestActionWins(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	// user 2 liked, then changed their mind
	_, err := f.svc.RecordAction(ctx, act(2, "d1", "like"))
	require.NoError(t, err)
	_, err = f.svc.RecordAction(ctx, act(2, "d1", "pass"))
	require.NoError(t, err)

	out, err := f.svc.RecordAction(ctx, act(1, "d2", "like"))
	require.NoError(t, err)
	assert.False(t, out.CreatedMatch)
}

func TestRecordActionValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	cases := map[string]match.ActionRequest{
		"unknown action": act(1, "d2", "wink"),
		"unknown scene":  {ActorID: 1, TargetCardID: "d2", Scene: "business", ActionType: "like"},
		"own card":       act(1, "d1", "like"),
		"scene mismatch": {ActorID: 2, TargetCardID: "h1", Scene: "dating", ActionType: "like"},
		"missing actor":  act(0, "d2", "like"),
	}
	for name, req := range cases {
		_, err := f.svc.RecordAction(ctx, req)
		assert.ErrorIs(t, err, svcErr.ErrValidation, name)
	}

	_, err := f.svc.RecordAction(ctx, act(1, "nope", "like"))
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestNotifierFailureDoesNotFailAction(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.notifier.err = errors.New("broker down")

	_, err := f.svc.RecordAction(ctx, act(1, "d2", "like"))
	require.NoError(t, err)
	out, err := f.svc.RecordAction(ctx, act(2, "d1", "like"))
	require.NoError(t, err)
	assert.True(t, out.CreatedMatch)
}

// TestConcurrentMutualLikes races 50 goroutines, half for each side of the pair.
// Exactly one call may report a new match and every caller that sees the
// match gets the same id.
func TestConcurrentMutualLikes(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	const workers = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		matchIDs = map[string]struct{}{}
		errs     []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		req := act(1, "d2", "like")
		if i%2 == 1 {
			req = act(2, "d1", "like")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := f.svc.RecordAction(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if out.CreatedMatch {
				created++
			}
			if out.MatchID != "" {
				matchIDs[out.MatchID] = struct{}{}
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, created)
	assert.Len(t, matchIDs, 1)
	assert.Equal(t, int64(1), f.liveMatches(t))
	assert.Equal(t, 1, f.notifier.count())
}

func TestUnmatchAndRematch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.RecordAction(ctx, act(1, "d2", "like"))
	require.NoError(t, err)
	first, err := f.svc.RecordAction(ctx, act(2, "d1", "like"))
	require.NoError(t, err)

	_, err = f.svc.Unmatch(ctx, 3, first.MatchID)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	closed, err := f.svc.Unmatch(ctx, 1, first.MatchID)
	require.NoError(t, err)
	assert.Equal(t, db.MatchStatusUnmatched, closed.Status)
	assert.Equal(t, int64(0), f.liveMatches(t))

	// user 1 swipes again; user 2's like is still current
	f.clock.Advance(time.Hour)
	_, err = f.svc.RecordAction(ctx, act(1, "d2", "pass"))
	require.NoError(t, err)
	second, err := f.svc.RecordAction(ctx, act(1, "d2", "like"))
	require.NoError(t, err)
	assert.True(t, second.CreatedMatch)
	assert.NotEqual(t, first.MatchID, second.MatchID)
}

func TestListMatches(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	for _, other := range []struct {
		user uint64
		card string
	}{{2, "d2"}, {3, "d3"}} {
		_, err := f.svc.RecordAction(ctx, act(1, other.card, "like"))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
		_, err = f.svc.RecordAction(ctx, act(other.user, "d1", "like"))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	page, token, err := f.svc.ListMatches(ctx, 1, "dating", nil, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(3), page[0].User2ID)
	require.NotNil(t, token)

	page, token, err = f.svc.ListMatches(ctx, 1, "dating", token, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].User2ID)
	assert.Nil(t, token)

	_, _, err = f.svc.ListMatches(ctx, 1, "business", nil, 10)
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestRedisNotifierPublishesJSON(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sub := f.redis.Client.Subscribe(ctx, match.CreatedChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := match.NewRedisNotifier(f.redis)
	require.NoError(t, n.MatchCreated(ctx, match.Event{MatchID: "m-1", Scene: "dating", User1ID: 1, User2ID: 2}))

	select {
	case msg := <-sub.Channel():
		var ev match.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, "m-1", ev.MatchID)
		assert.Equal(t, uint64(2), ev.User2ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}
