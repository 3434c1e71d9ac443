package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/scene-match/internal/db"
	svcErr "github.com/oggyb/scene-match/internal/errors"
	"github.com/oggyb/scene-match/internal/utils/pagination"
)

// createAttempts bounds the insert/lookup loop in CreateIfAbsent. A lookup only
// misses when the winning match was unmatched between our insert and read.
const createAttempts = 3

// MatchRepository provides data access methods for the MatchResult model.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// MatchedKey is the uniqueness key of a live match for an unordered pair.
func MatchedKey(userA, userB uint64, scene string) string {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d:%d:%s", lo, hi, scene)
}

// CreateIfAbsent inserts m as a live match unless one already exists for the
// same pair and scene.
//
// Behavior:
//   - No live match → m is inserted, returns (m, true).
//   - Live match exists (including one inserted concurrently) → returns (winner, false).
//
// The unique index on matched_key makes this a single atomic conditional insert;
// no explicit transaction or row lock is taken.
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, m db.MatchResult) (db.MatchResult, bool, error) {
	if m.User1ID > m.User2ID {
		m.User1ID, m.User2ID = m.User2ID, m.User1ID
		m.Card1ID, m.Card2ID = m.Card2ID, m.Card1ID
	}
	key := MatchedKey(m.User1ID, m.User2ID, m.Scene)
	m.MatchedKey = &key
	m.Status = db.MatchStatusMatched
	m.IsActive = true

	for attempt := 0; attempt < createAttempts; attempt++ {
		m.ID = uuid.NewString()
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "matched_key"}},
				DoNothing: true,
			}).
			Create(&m)
		if res.Error != nil {
			return db.MatchResult{}, false, storeErr(res.Error, "insert match")
		}
		if res.RowsAffected == 1 {
			return m, true, nil
		}

		live, err := r.FindLive(ctx, m.User1ID, m.User2ID, m.Scene)
		if err != nil {
			return db.MatchResult{}, false, err
		}
		if live != nil {
			return *live, false, nil
		}
	}
	return db.MatchResult{}, false, fmt.Errorf("%w: live match for %s kept changing", svcErr.ErrConflict, key)
}

// FindLive returns the live match of the pair in scene, or nil when there is none.
func (r *MatchRepository) FindLive(ctx context.Context, userA, userB uint64, scene string) (*db.MatchResult, error) {
	var rows []db.MatchResult
	err := r.db.WithContext(ctx).
		Where("matched_key = ?", MatchedKey(userA, userB, scene)).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr(err, "load live match")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Get loads a match by id.
func (r *MatchRepository) Get(ctx context.Context, id string) (db.MatchResult, error) {
	var m db.MatchResult
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	return m, storeErr(err, "match "+id)
}

// ListForUser returns the user's live matches, newest first.
//
// Behavior:
//   - Only status = matched rows where the user is either side.
//   - Optional scene filter (empty = all scenes).
//   - Ordered by matched_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
func (r *MatchRepository) ListForUser(
	ctx context.Context,
	userID uint64,
	scene string,
	paginationToken *string,
	limit int,
) ([]db.MatchResult, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Model(&db.MatchResult{}).
		Where("status = ?", db.MatchStatusMatched).
		Where("(user1_id = ? OR user2_id = ?)", userID, userID).
		Order("matched_at DESC, id DESC").
		Limit(limit + 1)
	if scene != "" {
		query = query.Where("scene = ?", scene)
	}

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.MatchedUnix).UTC()
		query = query.Where(
			"(matched_at < ? OR (matched_at = ? AND id < ?))",
			ts, ts, cursor.MatchID,
		)
	}

	var matches []db.MatchResult
	if err := query.Find(&matches).Error; err != nil {
		return nil, nil, storeErr(err, "list matches")
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(matches) > limit {
		last := matches[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			MatchID:     last.ID,
			MatchedUnix: last.MatchedAt.UnixMilli(),
		})
		nextToken = &token
		matches = matches[:limit]
	}
	return matches, nextToken, nil
}

// Unmatch closes a live match on behalf of one of its users and releases the
// pair so a later double opt-in creates a fresh match.
// Unmatching an already closed match returns it unchanged.
func (r *MatchRepository) Unmatch(ctx context.Context, id string, userID uint64, now time.Time) (db.MatchResult, error) {
	m, err := r.Get(ctx, id)
	if err != nil {
		return db.MatchResult{}, err
	}
	if m.User1ID != userID && m.User2ID != userID {
		// do not leak other users' match ids
		return db.MatchResult{}, svcErr.NotFound("match %s", id)
	}
	if m.Status != db.MatchStatusMatched {
		return m, nil
	}

	err = r.db.WithContext(ctx).
		Model(&db.MatchResult{}).
		Where("id = ? AND status = ?", id, db.MatchStatusMatched).
		Updates(map[string]any{
			"status":      db.MatchStatusUnmatched,
			"matched_key": gorm.Expr("NULL"),
			"is_active":   false,
			"updated_at":  now,
		}).Error
	if err != nil {
		return db.MatchResult{}, storeErr(err, "unmatch")
	}
	return r.Get(ctx, id)
}

// DeactivateIdle flags live matches without activity since cutoff as inactive.
// Status stays matched.
func (r *MatchRepository) DeactivateIdle(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.MatchResult{}).
		Where("status = ? AND is_active = ? AND last_activity_at < ?", db.MatchStatusMatched, true, cutoff).
		Updates(map[string]any{"is_active": false, "updated_at": now})
	return res.RowsAffected, storeErr(res.Error, "deactivate idle matches")
}

// DeleteClosedOlderThan purges unmatched/expired rows closed before cutoff.
// Rows with status matched are never touched.
func (r *MatchRepository) DeleteClosedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{db.MatchStatusUnmatched, db.MatchStatusExpired}, cutoff).
		Delete(&db.MatchResult{})
	return res.RowsAffected, storeErr(res.Error, "delete closed matches")
}

// MatchCounts aggregates matches of one scene.
type MatchCounts struct {
	Scene  string
	Total  int64
	Active int64
}

// CountByScene returns match totals per scene. Total counts every row,
// Active only live matches still flagged active.
func (r *MatchRepository) CountByScene(ctx context.Context) (map[string]MatchCounts, error) {
	var rows []MatchCounts
	err := r.db.WithContext(ctx).
		Model(&db.MatchResult{}).
		Select("scene, COUNT(*) AS total, SUM(CASE WHEN status = ? AND is_active = ? THEN 1 ELSE 0 END) AS active",
			db.MatchStatusMatched, true).
		Group("scene").
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr(err, "count matches")
	}

	out := make(map[string]MatchCounts, len(rows))
	for _, row := range rows {
		out[row.Scene] = row
	}
	return out, nil
}
