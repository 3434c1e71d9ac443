package profile

import (
	"strings"
	"time"

	svcErr "github.com/oggyb/scene-match/internal/errors"
)

// Scene is a matching context with its own profile schema and scoring weights.
type Scene string

const (
	SceneHousing  Scene = "housing"
	SceneDating   Scene = "dating"
	SceneActivity Scene = "activity"
)

// Scenes lists every supported scene in a stable order.
var Scenes = []Scene{SceneHousing, SceneDating, SceneActivity}

// ParseScene validates a scene name coming from the outside world.
func ParseScene(s string) (Scene, error) {
	switch Scene(strings.ToLower(strings.TrimSpace(s))) {
	case SceneHousing:
		return SceneHousing, nil
	case SceneDating:
		return SceneDating, nil
	case SceneActivity:
		return SceneActivity, nil
	}
	return "", svcErr.Validation("unknown scene %q", s)
}

// Role is the side a profile plays inside its scene.
type Role string

const (
	RoleSeeker      Role = "seeker"
	RoleProvider    Role = "provider"
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
	RoleMember      Role = "member"
)

// CounterpartRoles returns the roles a profile with role r should be shown.
// An empty result means no role restriction.
func CounterpartRoles(scene Scene, r Role) []Role {
	switch scene {
	case SceneHousing:
		switch r {
		case RoleSeeker:
			return []Role{RoleProvider}
		case RoleProvider:
			return []Role{RoleSeeker}
		}
	case SceneActivity:
		switch r {
		case RoleOrganizer:
			return []Role{RoleParticipant}
		case RoleParticipant:
			return []Role{RoleOrganizer}
		}
	}
	return nil
}

// Location is a city/district pair. Either part may be empty.
type Location struct {
	City     string `json:"city,omitempty" validate:"max=64"`
	District string `json:"district,omitempty" validate:"max=64"`
}

// IsZero reports whether nothing is known about the location.
func (l Location) IsZero() bool {
	return strings.TrimSpace(l.City) == "" && strings.TrimSpace(l.District) == ""
}

// Housing attributes. Seekers fill the budget range, providers the price.
type Housing struct {
	BudgetMin   float64    `json:"budget_min,omitempty" validate:"gte=0"`
	BudgetMax   float64    `json:"budget_max,omitempty" validate:"omitempty,gtefield=BudgetMin"`
	Price       float64    `json:"price,omitempty" validate:"gte=0"`
	Areas       []Location `json:"areas,omitempty" validate:"max=16,dive"`
	RoomType    string     `json:"room_type,omitempty" validate:"max=32"`
	LeaseMonths int        `json:"lease_months,omitempty" validate:"gte=0,lte=120"`
	MoveInDate  *time.Time `json:"move_in_date,omitempty"`
	Lifestyle   []string   `json:"lifestyle,omitempty" validate:"max=32,dive,max=32"`
}

// HasBudget reports whether a budget range was given.
func (h *Housing) HasBudget() bool { return h != nil && h.BudgetMax > 0 }

// HasPrice reports whether an asking price was given.
func (h *Housing) HasPrice() bool { return h != nil && h.Price > 0 }

// Dating attributes.
type Dating struct {
	Age         int      `json:"age,omitempty" validate:"omitempty,gte=18,lte=120"`
	Height      int      `json:"height,omitempty" validate:"omitempty,gte=100,lte=250"`
	Location    Location `json:"location"`
	Interests   []string `json:"interests,omitempty" validate:"max=32,dive,max=32"`
	Personality []string `json:"personality,omitempty" validate:"max=32,dive,max=32"`
	Education   string   `json:"education,omitempty" validate:"omitempty,oneof=高中 大专 本科 硕士 博士"`
	Occupation  string   `json:"occupation,omitempty" validate:"max=64"`
	Industry    string   `json:"industry,omitempty" validate:"max=64"`
}

// TimeWindow is a half-open [Start, End) interval.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the window is unset or empty.
func (w TimeWindow) IsZero() bool {
	return w.Start.IsZero() || w.End.IsZero() || !w.End.After(w.Start)
}

// Activity attributes. Organizers fill the cost, participants the budget range.
type Activity struct {
	Types     []string   `json:"types,omitempty" validate:"max=16,dive,max=32"`
	Window    TimeWindow `json:"window"`
	Location  Location   `json:"location"`
	Cost      float64    `json:"cost,omitempty" validate:"gte=0"`
	BudgetMin float64    `json:"budget_min,omitempty" validate:"gte=0"`
	BudgetMax float64    `json:"budget_max,omitempty" validate:"omitempty,gtefield=BudgetMin"`
}

// HasBudget reports whether a budget range was given.
func (a *Activity) HasBudget() bool { return a != nil && a.BudgetMax > 0 }

// Profile is an immutable scene-tagged snapshot of a user's card.
// Exactly one of Housing, Dating or Activity is set, matching Scene.
type Profile struct {
	CardID    string   `validate:"required,max=64"`
	UserID    uint64   `validate:"required"`
	Scene     Scene    `validate:"required,oneof=housing dating activity"`
	Role      Role     `validate:"required,oneof=seeker provider organizer participant member"`
	Trust     *float64 `validate:"omitempty,gte=0,lte=100"`
	CreatedAt time.Time

	Housing  *Housing  `validate:"omitempty"`
	Dating   *Dating   `validate:"omitempty"`
	Activity *Activity `validate:"omitempty"`
}
