package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/db"
	"github.com/oggyb/scene-match/internal/match"
	"github.com/oggyb/scene-match/internal/profile"
	"github.com/oggyb/scene-match/internal/repository"
)

var (
	districts = []string{"朝阳区", "海淀区", "东城区", "西城区", "丰台区"}
	interests = []string{"电影", "旅行", "摄影", "健身", "音乐", "读书", "美食", "徒步"}
	activity  = []string{"羽毛球", "桌游", "徒步", "读书会", "摄影"}
	rooms     = []string{"单间", "一居室", "两居室"}
)

// Summary counts what Demo wrote.
type Summary struct {
	Profiles int
	Actions  int
	Matches  int
}

// Demo resets the store and populates it with demo cards and actions.
//
// Behavior:
//  1. Clears match_results, match_actions, task_runs and profiles.
//  2. Creates 30 users: 1-10 housing seekers, 11-20 housing providers, 1-20
//     dating members, 21-25 activity organizers, 26-30 participants.
//  3. Records ~70% likes between counterpart cards through the match
//     service; every 3rd pair is liked back so matches form by double opt-in.
func Demo(ctx context.Context, appCtx *app.AppContext, matches *match.Service) (Summary, error) {
	r := rand.New(rand.NewSource(appCtx.Clock.Now().UnixNano()))
	log := appCtx.Logger.With("component", "seed")

	// --- Fresh start ---
	for _, table := range []string{"match_results", "match_actions", "task_runs", "profiles"} {
		if err := appCtx.DB.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return Summary{}, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Info("cleared existing data")

	// --- Profiles ---
	repo := repository.NewProfileRepository(appCtx.DB)
	var cards []profile.Profile
	now := appCtx.Clock.Now().UTC()
	for user := uint64(1); user <= 30; user++ {
		created := now.Add(-time.Duration(r.Intn(500)) * time.Hour)
		switch {
		case user <= 10:
			lo := float64(1500 + 500*r.Intn(4))
			cards = append(cards, card(user, profile.SceneHousing, profile.RoleSeeker, created, func(p *profile.Profile) {
				p.Housing = &profile.Housing{
					BudgetMin: lo, BudgetMax: lo + 1500,
					Areas:       []profile.Location{{City: "北京", District: pick(r, districts)}},
					RoomType:    pick(r, rooms),
					LeaseMonths: 6 + 6*r.Intn(2),
				}
			}))
		case user <= 20:
			cards = append(cards, card(user, profile.SceneHousing, profile.RoleProvider, created, func(p *profile.Profile) {
				p.Housing = &profile.Housing{
					Price:       float64(2000 + 250*r.Intn(10)),
					Areas:       []profile.Location{{City: "北京", District: pick(r, districts)}},
					RoomType:    pick(r, rooms),
					LeaseMonths: 12,
				}
			}))
		case user <= 25:
			cards = append(cards, card(user, profile.SceneActivity, profile.RoleOrganizer, created, func(p *profile.Profile) {
				start := now.Add(time.Duration(24+r.Intn(72)) * time.Hour).Truncate(time.Hour)
				p.Activity = &profile.Activity{
					Types:    []string{pick(r, activity)},
					Window:   profile.TimeWindow{Start: start, End: start.Add(3 * time.Hour)},
					Location: profile.Location{City: "北京", District: pick(r, districts)},
					Cost:     float64(20 * r.Intn(6)),
				}
			}))
		default:
			cards = append(cards, card(user, profile.SceneActivity, profile.RoleParticipant, created, func(p *profile.Profile) {
				start := now.Add(24 * time.Hour).Truncate(time.Hour)
				p.Activity = &profile.Activity{
					Types:     []string{pick(r, activity), pick(r, activity)},
					Window:    profile.TimeWindow{Start: start, End: start.Add(96 * time.Hour)},
					Location:  profile.Location{City: "北京", District: pick(r, districts)},
					BudgetMax: float64(50 + 50*r.Intn(3)),
				}
			}))
		}
		if user <= 20 {
			cards = append(cards, card(user, profile.SceneDating, profile.RoleMember, created, func(p *profile.Profile) {
				p.Dating = &profile.Dating{
					Age:       22 + r.Intn(15),
					Location:  profile.Location{City: "北京", District: pick(r, districts)},
					Interests: []string{pick(r, interests), pick(r, interests), pick(r, interests)},
				}
			}))
		}
	}
	for _, p := range cards {
		if err := repo.Upsert(ctx, p); err != nil {
			return Summary{}, fmt.Errorf("failed to seed profile %s: %w", p.CardID, err)
		}
	}
	log.Info("seeded profiles", "count", len(cards))

	// --- Actions ---
	sum := Summary{Profiles: len(cards)}
	counter := 0
	for _, actor := range cards {
		for j := 0; j < 6; j++ {
			target := cards[r.Intn(len(cards))]
			if target.UserID == actor.UserID || target.Scene != actor.Scene || !counterpart(actor, target) {
				continue
			}

			// like probability 70%, every 3rd pair is a guaranteed mutual like
			mutual := counter%3 == 0
			counter++
			actionType := db.ActionPass
			if mutual || r.Intn(100) < 70 {
				actionType = db.ActionLike
			}

			if _, err := matches.RecordAction(ctx, match.ActionRequest{
				ActorID: actor.UserID, TargetCardID: target.CardID, Scene: string(actor.Scene), ActionType: actionType,
			}); err != nil {
				return sum, fmt.Errorf("failed to seed action: %w", err)
			}
			sum.Actions++

			if mutual {
				out, err := matches.RecordAction(ctx, match.ActionRequest{
					ActorID: target.UserID, TargetCardID: actor.CardID, Scene: string(actor.Scene), ActionType: db.ActionLike,
				})
				if err != nil {
					return sum, fmt.Errorf("failed to seed reciprocal action: %w", err)
				}
				sum.Actions++
				if out.CreatedMatch {
					sum.Matches++
				}
			}
		}
	}
	log.Info("seeded actions", "actions", sum.Actions, "matches", sum.Matches)
	return sum, nil
}

func card(user uint64, scene profile.Scene, role profile.Role, created time.Time, fill func(*profile.Profile)) profile.Profile {
	p := profile.Profile{
		CardID:    fmt.Sprintf("%s-%d-%s", scene, user, uuid.NewString()[:8]),
		UserID:    user,
		Scene:     scene,
		Role:      role,
		CreatedAt: created,
	}
	fill(&p)
	return p
}

func counterpart(a, b profile.Profile) bool {
	roles := profile.CounterpartRoles(a.Scene, a.Role)
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if b.Role == r {
			return true
		}
	}
	return false
}

func pick(r *rand.Rand, from []string) string {
	return from[r.Intn(len(from))]
}
