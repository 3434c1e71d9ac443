package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/scene-match/internal/db"
)

// ActionRepository provides data access methods for the MatchAction model.
// It encapsulates all queries related to likes/passes on cards.
type ActionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a new repository bound to the given DB connection.
func NewActionRepository(database *gorm.DB) *ActionRepository {
	return &ActionRepository{db: database}
}

// RecordResult is the outcome of an upsert.
type RecordResult struct {
	Action db.MatchAction
	// Changed is true when the row was inserted or its action type replaced.
	Changed bool
}

// Record upserts the action keyed by (actor_id, target_card_id, scene).
//
// Behavior:
//   - New pair → row inserted, Changed=true.
//   - Existing pair with a different type → type replaced, Processed reset, Changed=true.
//   - Existing pair with the same type → untouched, Changed=false.
//
// The returned Action always reflects the stored row.
func (r *ActionRepository) Record(ctx context.Context, in db.MatchAction, now time.Time) (RecordResult, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	in.CreatedAt, in.UpdatedAt = now, now
	in.Processed = false

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_card_id"}, {Name: "scene"}},
			DoNothing: true,
		}).
		Create(&in)
	if res.Error != nil {
		return RecordResult{}, storeErr(res.Error, "insert action")
	}
	if res.RowsAffected == 1 {
		return RecordResult{Action: in, Changed: true}, nil
	}

	res = r.db.WithContext(ctx).
		Model(&db.MatchAction{}).
		Where("actor_id = ? AND target_card_id = ? AND scene = ? AND action_type <> ?",
			in.ActorID, in.TargetCardID, in.Scene, in.ActionType).
		Updates(map[string]any{
			"action_type": in.ActionType,
			"target_id":   in.TargetID,
			"processed":   false,
			"updated_at":  now,
		})
	if res.Error != nil {
		return RecordResult{}, storeErr(res.Error, "update action")
	}

	current, err := r.Find(ctx, in.ActorID, in.TargetCardID, in.Scene)
	if err != nil {
		return RecordResult{}, err
	}
	return RecordResult{Action: current, Changed: res.RowsAffected > 0}, nil
}

// Find returns the current action of actor on a card.
func (r *ActionRepository) Find(ctx context.Context, actorID uint64, cardID, scene string) (db.MatchAction, error) {
	var a db.MatchAction
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_card_id = ? AND scene = ?", actorID, cardID, scene).
		Take(&a).Error
	return a, storeErr(err, "action")
}

// FindReciprocal returns the most recent positive action of actorID towards
// any card of targetID in scene, or nil if there is none.
//
// Example:
//
//	repo.FindReciprocal(ctx, 2, 1, "dating") // did user 2 like any of user 1's dating cards?
func (r *ActionRepository) FindReciprocal(ctx context.Context, actorID, targetID uint64, scene string) (*db.MatchAction, error) {
	var rows []db.MatchAction
	err := r.db.WithContext(ctx).
		Where("target_id = ? AND actor_id = ? AND scene = ? AND action_type IN ?",
			targetID, actorID, scene, []string{db.ActionLike, db.ActionSuperlike}).
		Order("updated_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr(err, "reciprocal action")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// MarkProcessed flags match detection as finished for the given action type.
// A concurrent type change resets the flag and is not overwritten here.
func (r *ActionRepository) MarkProcessed(ctx context.Context, id, actionType string) error {
	err := r.db.WithContext(ctx).
		Model(&db.MatchAction{}).
		Where("id = ? AND action_type = ?", id, actionType).
		Update("processed", true).Error
	return storeErr(err, "mark action processed")
}

// DeleteOlderThan removes actions not touched since cutoff.
func (r *ActionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&db.MatchAction{})
	return res.RowsAffected, storeErr(res.Error, "delete old actions")
}

// ActionCounts aggregates actions of one scene.
type ActionCounts struct {
	Scene    string
	Total    int64
	Positive int64
}

// CountByScene returns action totals per scene.
func (r *ActionRepository) CountByScene(ctx context.Context) (map[string]ActionCounts, error) {
	var rows []ActionCounts
	err := r.db.WithContext(ctx).
		Model(&db.MatchAction{}).
		Select("scene, COUNT(*) AS total, SUM(CASE WHEN action_type IN ? THEN 1 ELSE 0 END) AS positive",
			[]string{db.ActionLike, db.ActionSuperlike}).
		Group("scene").
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr(err, "count actions")
	}

	out := make(map[string]ActionCounts, len(rows))
	for _, row := range rows {
		out[row.Scene] = row
	}
	return out, nil
}
