package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/scene-match/internal/db"
	"github.com/oggyb/scene-match/internal/db/dbtest"
	"github.com/oggyb/scene-match/internal/repository"
)

func like(actor, target uint64, card, scene string) db.MatchAction {
	return db.MatchAction{ActorID: actor, TargetID: target, TargetCardID: card, Scene: scene, ActionType: db.ActionLike}
}

func TestRecordLatestWins(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	repo := repository.NewActionRepository(gdb)

	// insert like
	res, err := repo.Record(ctx, like(1, 2, "c2", "dating"), base)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.NotEmpty(t, res.Action.ID)

	// same type again → no change
	again, err := repo.Record(ctx, like(1, 2, "c2", "dating"), base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, res.Action.ID, again.Action.ID)

	// overwrite with pass
	pass := like(1, 2, "c2", "dating")
	pass.ActionType = db.ActionPass
	over, err := repo.Record(ctx, pass, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, over.Changed)
	assert.Equal(t, db.ActionPass, over.Action.ActionType)
	assert.Equal(t, res.Action.ID, over.Action.ID)

	var count int64
	require.NoError(t, gdb.Model(&db.MatchAction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMarkProcessedAndReset(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewActionRepository(dbtest.Open(t))

	res, err := repo.Record(ctx, like(1, 2, "c2", "dating"), base)
	require.NoError(t, err)
	assert.False(t, res.Action.Processed)

	require.NoError(t, repo.MarkProcessed(ctx, res.Action.ID, db.ActionLike))
	got, err := repo.Find(ctx, 1, "c2", "dating")
	require.NoError(t, err)
	assert.True(t, got.Processed)

	// a type change re-arms detection
	super := like(1, 2, "c2", "dating")
	super.ActionType = db.ActionSuperlike
	res, err = repo.Record(ctx, super, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Action.Processed)

	// stale mark for the old type is ignored
	require.NoError(t, repo.MarkProcessed(ctx, res.Action.ID, db.ActionLike))
	got, err = repo.Find(ctx, 1, "c2", "dating")
	require.NoError(t, err)
	assert.False(t, got.Processed)
}

func TestFindReciprocal(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewActionRepository(dbtest.Open(t))

	// user 2 liked user 1's dating card
	_, err := repo.Record(ctx, like(2, 1, "c1", "dating"), base)
	require.NoError(t, err)
	// user 3 passed user 1
	pass := like(3, 1, "c1", "dating")
	pass.ActionType = db.ActionPass
	_, err = repo.Record(ctx, pass, base)
	require.NoError(t, err)

	got, err := repo.FindReciprocal(ctx, 2, 1, "dating")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c1", got.TargetCardID)

	got, err = repo.FindReciprocal(ctx, 3, 1, "dating")
	require.NoError(t, err)
	assert.Nil(t, got)

	// other scene does not count
	got, err = repo.FindReciprocal(ctx, 2, 1, "housing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestActionRetentionAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewActionRepository(dbtest.Open(t))

	_, err := repo.Record(ctx, like(1, 2, "c2", "dating"), base)
	require.NoError(t, err)
	_, err = repo.Record(ctx, like(1, 3, "c3", "dating"), base.Add(48*time.Hour))
	require.NoError(t, err)
	pass := like(4, 5, "c5", "housing")
	pass.ActionType = db.ActionPass
	_, err = repo.Record(ctx, pass, base.Add(48*time.Hour))
	require.NoError(t, err)

	counts, err := repo.CountByScene(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["dating"].Total)
	assert.Equal(t, int64(2), counts["dating"].Positive)
	assert.Equal(t, int64(1), counts["housing"].Total)
	assert.Equal(t, int64(0), counts["housing"].Positive)

	n, err := repo.DeleteOlderThan(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Find(ctx, 1, "c2", "dating")
	assert.Error(t, err)
}
