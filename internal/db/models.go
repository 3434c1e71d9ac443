package db

import (
	"time"
)

// Action types a user can submit on a card.
const (
	ActionLike      = "like"
	ActionDislike   = "dislike"
	ActionSuperlike = "superlike"
	ActionPass      = "pass"
)

// Match statuses.
const (
	MatchStatusMatched   = "matched"
	MatchStatusUnmatched = "unmatched"
	MatchStatusExpired   = "expired"
)

// Profile is one card a user publishes in a scene.
//
// Indexes:
//   - idx_profile_scene_active(scene, active, role, created_at DESC)
//     Candidate scans per scene and counterpart role.
//   - idx_profile_user_scene(user_id, scene, active)
//     Reference profile lookup for a requester.
//
// Attributes holds the scene variant as JSON; it is decoded and validated by
// the profile package before it reaches the scorer.
type Profile struct {
	CardID     string    `gorm:"primaryKey;size:64"`
	UserID     uint64    `gorm:"not null;index:idx_profile_user_scene,priority:1"`
	Scene      string    `gorm:"size:16;not null;index:idx_profile_scene_active,priority:1;index:idx_profile_user_scene,priority:2"`
	Role       string    `gorm:"size:16;not null;index:idx_profile_scene_active,priority:3"`
	Active     bool      `gorm:"not null;index:idx_profile_scene_active,priority:2;index:idx_profile_user_scene,priority:3"`
	Trust      *float64  `gorm:"type:decimal(5,2)"`
	Attributes string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index:idx_profile_scene_active,priority:4,sort:desc"`
	UpdatedAt  time.Time
}

// MatchAction is the current action of an actor on a card in a scene.
//
// Unique key: (ActorID, TargetCardID, Scene)
//   - One row per pair, later submissions overwrite ActionType (latest wins).
//
// Indexes:
//   - idx_action_reciprocal(target_id, actor_id, scene, action_type)
//     Reverse lookup for the double opt-in check.
//   - idx_action_updated(updated_at)
//     Retention sweeps.
//
// Processed is set once match detection for the current ActionType finished.
// A resubmission of the same type is a no-op only when Processed is true.
type MatchAction struct {
	ID           string    `gorm:"primaryKey;size:36"`
	ActorID      uint64    `gorm:"not null;uniqueIndex:uq_action_actor_card_scene,priority:1;index:idx_action_reciprocal,priority:2"`
	TargetID     uint64    `gorm:"not null;index:idx_action_reciprocal,priority:1"`
	TargetCardID string    `gorm:"size:64;not null;uniqueIndex:uq_action_actor_card_scene,priority:2"`
	Scene        string    `gorm:"size:16;not null;uniqueIndex:uq_action_actor_card_scene,priority:3;index:idx_action_reciprocal,priority:3"`
	ActionType   string    `gorm:"size:16;not null;index:idx_action_reciprocal,priority:4"`
	Processed    bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null;index:idx_action_updated"`
}

// MatchResult records a confirmed double opt-in.
//
// User1ID < User2ID always; Card1ID belongs to User1ID.
//
// MatchedKey is "<user1>:<user2>:<scene>" while Status is matched and NULL
// otherwise. Its unique index is what keeps at most one live match per
// unordered pair and scene, even with concurrent writers.
type MatchResult struct {
	ID             string    `gorm:"primaryKey;size:36"`
	User1ID        uint64    `gorm:"not null;index:idx_match_user1,priority:1"`
	User2ID        uint64    `gorm:"not null;index:idx_match_user2,priority:1"`
	Card1ID        string    `gorm:"size:64;not null"`
	Card2ID        string    `gorm:"size:64;not null"`
	Scene          string    `gorm:"size:16;not null;index:idx_match_scene_status,priority:1"`
	Status         string    `gorm:"size:16;not null;index:idx_match_scene_status,priority:2"`
	MatchedKey     *string   `gorm:"size:96;uniqueIndex:uq_match_live"`
	MatchedAt      time.Time `gorm:"not null;index:idx_match_user1,priority:2,sort:desc;index:idx_match_user2,priority:2,sort:desc"`
	LastActivityAt time.Time `gorm:"not null"`
	IsActive       bool      `gorm:"not null"`
	IsBlocked      bool      `gorm:"not null;default:false"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TaskRun is the persisted run record of one scheduler job.
type TaskRun struct {
	TaskName            string     `gorm:"primaryKey;size:64"`
	LastRunAt           *time.Time `gorm:"column:last_run_at"`
	LastSuccessAt       *time.Time `gorm:"column:last_success_at"`
	LastStatus          string     `gorm:"size:16"`
	LastError           string     `gorm:"type:text"`
	ConsecutiveFailures int        `gorm:"not null;default:0"`
	LastItemFailures    int        `gorm:"not null;default:0"`
	UpdatedAt           time.Time  `gorm:"not null"`
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Profile{}, &MatchAction{}, &MatchResult{}, &TaskRun{}}
}
