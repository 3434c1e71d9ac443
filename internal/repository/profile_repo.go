package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/scene-match/internal/db"
	"github.com/oggyb/scene-match/internal/profile"
)

// ProfileRepository reads and writes scene profiles (cards).
// Attributes are validated on the way in and decoded on the way out, so
// callers only ever see well-formed profile.Profile values.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new repository bound to the given DB connection.
func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// Upsert validates p and stores it as an active card.
// An existing card with the same CardID is overwritten.
func (r *ProfileRepository) Upsert(ctx context.Context, p profile.Profile) error {
	if err := profile.Validate(p); err != nil {
		return err
	}
	raw, err := profile.MarshalAttributes(p)
	if err != nil {
		return err
	}

	row := db.Profile{
		CardID:     p.CardID,
		UserID:     p.UserID,
		Scene:      string(p.Scene),
		Role:       string(p.Role),
		Active:     true,
		Trust:      p.Trust,
		Attributes: string(raw),
		CreatedAt:  p.CreatedAt,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "scene", "role", "active", "trust", "attributes", "updated_at"}),
		}).
		Create(&row).Error
	return storeErr(err, "upsert profile")
}

// Deactivate hides a card from candidate pools and batch regeneration.
func (r *ProfileRepository) Deactivate(ctx context.Context, cardID string) error {
	res := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("card_id = ?", cardID).
		Update("active", false)
	if res.Error != nil {
		return storeErr(res.Error, "deactivate profile")
	}
	if res.RowsAffected == 0 {
		return storeErr(gorm.ErrRecordNotFound, "profile "+cardID)
	}
	return nil
}

// GetByCardID loads a card regardless of its active flag.
func (r *ProfileRepository) GetByCardID(ctx context.Context, cardID string) (profile.Profile, error) {
	var row db.Profile
	if err := r.db.WithContext(ctx).Where("card_id = ?", cardID).Take(&row).Error; err != nil {
		return profile.Profile{}, storeErr(err, "profile "+cardID)
	}
	return decode(row)
}

// GetActive returns the user's most recent active card in scene.
// It is the reference profile for recommendations and compatibility.
func (r *ProfileRepository) GetActive(ctx context.Context, userID uint64, scene profile.Scene) (profile.Profile, error) {
	var row db.Profile
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND scene = ? AND active = ?", userID, string(scene), true).
		Order("created_at DESC, card_id ASC").
		Take(&row).Error
	if err != nil {
		return profile.Profile{}, storeErr(err, "active profile")
	}
	return decode(row)
}

// CandidateQuery narrows the candidate pool for one requester.
type CandidateQuery struct {
	Scene profile.Scene
	// ExcludeUsers never appear in the result.
	ExcludeUsers []uint64
	// ActedBy hides every user this user already acted on in Scene, whichever
	// of their cards the action targeted.
	ActedBy uint64
	// Roles restricts the pool. Empty means any role.
	Roles []profile.Role
	// MinTrust drops cards whose trust score is known and below it. Zero disables.
	MinTrust float64
	Limit    int
}

// ListCandidates returns active cards matching q, newest first.
// Cards whose attributes fail to decode are skipped and their ids returned
// separately so the caller can log them.
func (r *ProfileRepository) ListCandidates(ctx context.Context, q CandidateQuery) ([]profile.Profile, []string, error) {
	query := r.db.WithContext(ctx).
		Table("profiles p").
		Where("p.scene = ? AND p.active = ?", string(q.Scene), true)

	if len(q.ExcludeUsers) > 0 {
		query = query.Where("p.user_id NOT IN ?", q.ExcludeUsers)
	}
	if q.ActedBy > 0 {
		query = query.Where(`
			NOT EXISTS (
				SELECT 1 FROM match_actions a
				WHERE a.actor_id = ?
				  AND a.scene = p.scene
				  AND a.target_id = p.user_id
			)`, q.ActedBy)
	}
	if len(q.Roles) > 0 {
		roles := make([]string, 0, len(q.Roles))
		for _, role := range q.Roles {
			roles = append(roles, string(role))
		}
		query = query.Where("p.role IN ?", roles)
	}
	if q.MinTrust > 0 {
		query = query.Where("(p.trust IS NULL OR p.trust >= ?)", q.MinTrust)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rows []db.Profile
	if err := query.Order("p.created_at DESC, p.card_id ASC").Find(&rows).Error; err != nil {
		return nil, nil, storeErr(err, "list candidates")
	}

	out := make([]profile.Profile, 0, len(rows))
	var malformed []string
	for _, row := range rows {
		p, err := decode(row)
		if err != nil {
			malformed = append(malformed, row.CardID)
			continue
		}
		out = append(out, p)
	}
	return out, malformed, nil
}

// UserScene is one (user, scene) pair with at least one active card.
type UserScene struct {
	UserID uint64
	Scene  string
}

// ListActiveUserScenes pages through distinct (user, scene) pairs that have an
// active card, ordered by user then scene. Pass the last pair of the previous
// page as after; the zero value starts from the beginning.
func (r *ProfileRepository) ListActiveUserScenes(ctx context.Context, after UserScene, limit int) ([]UserScene, error) {
	var out []UserScene
	err := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Distinct("user_id", "scene").
		Where("active = ?", true).
		Where("(user_id > ? OR (user_id = ? AND scene > ?))", after.UserID, after.UserID, after.Scene).
		Order("user_id ASC, scene ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, storeErr(err, "list active user scenes")
	}
	return out, nil
}

func decode(row db.Profile) (profile.Profile, error) {
	p := profile.Profile{
		CardID:    row.CardID,
		UserID:    row.UserID,
		Scene:     profile.Scene(row.Scene),
		Role:      profile.Role(row.Role),
		Trust:     row.Trust,
		CreatedAt: row.CreatedAt,
	}
	if err := profile.UnmarshalAttributes(&p, []byte(row.Attributes)); err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}
