package scoring_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/scene-match/internal/profile"
	"github.com/oggyb/scene-match/internal/scoring"
)

func newScorer(t *testing.T) *scoring.Scorer {
	t.Helper()
	s, err := scoring.New(scoring.DefaultConfig())
	require.NoError(t, err)
	return s
}

func housing(user uint64, role profile.Role, h profile.Housing) profile.Profile {
	return profile.Profile{CardID: "h", UserID: user, Scene: profile.SceneHousing, Role: role, Housing: &h}
}

func dating(user uint64, d profile.Dating) profile.Profile {
	return profile.Profile{CardID: "d", UserID: user, Scene: profile.SceneDating, Role: profile.RoleMember, Dating: &d}
}

func activity(user uint64, role profile.Role, a profile.Activity) profile.Profile {
	return profile.Profile{CardID: "a", UserID: user, Scene: profile.SceneActivity, Role: role, Activity: &a}
}

func factor(t *testing.T, res scoring.Result, name string) scoring.FactorScore {
	t.Helper()
	for _, f := range res.Factors {
		if f.Factor == name {
			return f
		}
	}
	t.Fatalf("factor %s not found", name)
	return scoring.FactorScore{}
}

// TestHousing_BudgetAndAreaMatch covers the seeker-with-budget vs listing example:
// price and location both score 100 and their reasons lead, in weight order.
func TestHousing_BudgetAndAreaMatch(t *testing.T) {
	s := newScorer(t)

	x := housing(1, profile.RoleSeeker, profile.Housing{
		BudgetMin: 2000, BudgetMax: 3500,
		Areas: []profile.Location{{District: "朝阳区"}},
	})
	y := housing(2, profile.RoleProvider, profile.Housing{
		Price: 3000,
		Areas: []profile.Location{{District: "朝阳区"}},
	})

	res := s.Score(profile.SceneHousing, x, y)

	assert.Equal(t, 100.0, factor(t, res, scoring.FactorPrice).SubScore)
	assert.Equal(t, 100.0, factor(t, res, scoring.FactorLocation).SubScore)
	require.GreaterOrEqual(t, len(res.Reasons), 2)
	assert.Equal(t, []string{"价格匹配", "地理位置匹配"}, res.Reasons[:2])

	// 30 + 25 from the matched factors, remaining 45 points at neutral 50%.
	assert.Equal(t, 77.5, res.Score)
	assert.ElementsMatch(t, []string{scoring.FactorRoomType, scoring.FactorLease, scoring.FactorLifestyle}, res.Degraded)
}

func TestHousing_PriceToleranceBand(t *testing.T) {
	s := newScorer(t)
	seeker := housing(1, profile.RoleSeeker, profile.Housing{BudgetMin: 2000, BudgetMax: 3500})

	cases := []struct {
		price float64
		want  float64
	}{
		{3500, 100},
		{3750, 50},
		{4000, 0},
		{5000, 0},
		{1750, 50},
	}
	for _, tc := range cases {
		listing := housing(2, profile.RoleProvider, profile.Housing{Price: tc.price})
		res := s.Score(profile.SceneHousing, seeker, listing)
		assert.InDelta(t, tc.want, factor(t, res, scoring.FactorPrice).SubScore, 1e-9, "price %v", tc.price)
	}
}

func TestHousing_ProviderRequesterUsesCandidateBudget(t *testing.T) {
	s := newScorer(t)
	landlord := housing(1, profile.RoleProvider, profile.Housing{Price: 3000})
	tenant := housing(2, profile.RoleSeeker, profile.Housing{BudgetMin: 2000, BudgetMax: 3500})

	res := s.Score(profile.SceneHousing, landlord, tenant)
	assert.Equal(t, 100.0, factor(t, res, scoring.FactorPrice).SubScore)
}

func TestHousing_AdjacentDistrictAndRoomGroup(t *testing.T) {
	s := newScorer(t)
	a := housing(1, profile.RoleSeeker, profile.Housing{
		Areas:    []profile.Location{{City: "北京", District: "朝阳区"}},
		RoomType: "主卧",
	})
	b := housing(2, profile.RoleProvider, profile.Housing{
		Areas:    []profile.Location{{City: "北京", District: "海淀区"}},
		RoomType: "次卧",
	})

	res := s.Score(profile.SceneHousing, a, b)
	assert.Equal(t, 50.0, factor(t, res, scoring.FactorLocation).SubScore)
	assert.Equal(t, 50.0, factor(t, res, scoring.FactorRoomType).SubScore)
	// adjacent values stay below the visibility threshold
	assert.Empty(t, res.Reasons)
}

func TestDating_AgeBand(t *testing.T) {
	s := newScorer(t)
	base := dating(1, profile.Dating{Age: 30})

	cases := map[int]float64{30: 100, 33: 100, 27: 100, 34: 50, 35: 0, 40: 0}
	for age, want := range cases {
		res := s.Score(profile.SceneDating, base, dating(2, profile.Dating{Age: age}))
		assert.InDelta(t, want, factor(t, res, scoring.FactorAge).SubScore, 1e-9, "age %d", age)
	}
}

func TestDating_FullProfileReasonsInWeightOrder(t *testing.T) {
	s := newScorer(t)
	a := dating(1, profile.Dating{
		Age: 28, Location: profile.Location{City: "上海"},
		Interests: []string{"电影", "旅行", "摄影", "音乐"},
		Education: "本科", Occupation: "设计师", Industry: "互联网",
	})
	b := dating(2, profile.Dating{
		Age: 29, Location: profile.Location{City: "上海"},
		Interests: []string{"旅行", "电影", "音乐", "摄影", "游泳"},
		Education: "本科", Occupation: "设计师",
	})

	res := s.Score(profile.SceneDating, a, b)
	assert.Equal(t, 100.0, res.Score)
	require.Len(t, res.Reasons, 5)
	assert.Equal(t, "共同兴趣: 电影, 旅行, 摄影", res.Reasons[0])
	assert.Equal(t, []string{"年龄相近", "同城", "教育背景相当", "职业相近"}, res.Reasons[1:])
	assert.Empty(t, res.Degraded)
}

func TestDating_InterestOverlapUsesRequestedSet(t *testing.T) {
	s := newScorer(t)
	a := dating(1, profile.Dating{Interests: []string{"电影", "旅行", "阅读", "音乐"}})
	b := dating(2, profile.Dating{Interests: []string{"电影", "游戏"}})

	res := s.Score(profile.SceneDating, a, b)
	assert.Equal(t, 25.0, factor(t, res, scoring.FactorInterests).SubScore)
}

func TestActivity_WindowAndBudget(t *testing.T) {
	s := newScorer(t)
	day := time.Date(2026, 6, 6, 0, 0, 0, 0, time.UTC)

	participant := activity(1, profile.RoleParticipant, profile.Activity{
		Types:     []string{"羽毛球", "徒步"},
		Window:    profile.TimeWindow{Start: day.Add(9 * time.Hour), End: day.Add(13 * time.Hour)},
		Location:  profile.Location{City: "杭州", District: "西湖区"},
		BudgetMin: 0, BudgetMax: 100,
	})
	organizer := activity(2, profile.RoleOrganizer, profile.Activity{
		Types:    []string{"羽毛球"},
		Window:   profile.TimeWindow{Start: day.Add(11 * time.Hour), End: day.Add(15 * time.Hour)},
		Location: profile.Location{City: "杭州", District: "西湖区"},
		Cost:     125,
	})

	res := s.Score(profile.SceneActivity, participant, organizer)
	assert.Equal(t, 50.0, factor(t, res, scoring.FactorActivity).SubScore)
	assert.Equal(t, 50.0, factor(t, res, scoring.FactorTimeWindow).SubScore)
	assert.Equal(t, 100.0, factor(t, res, scoring.FactorLocation).SubScore)
	assert.Equal(t, 50.0, factor(t, res, scoring.FactorBudget).SubScore)
	// 35*0.5 + 25*0.5 + 20 + 20*0.5
	assert.Equal(t, 60.0, res.Score)
	assert.Equal(t, []string{"地点便利"}, res.Reasons)
}

func TestActivity_BudgetAgainstCostWhenBothHaveBudgets(t *testing.T) {
	s := newScorer(t)

	participant := activity(1, profile.RoleParticipant, profile.Activity{BudgetMin: 0, BudgetMax: 100})
	organizer := activity(2, profile.RoleOrganizer, profile.Activity{Cost: 80, BudgetMin: 0, BudgetMax: 300})

	res := s.Score(profile.SceneActivity, participant, organizer)
	budget := factor(t, res, scoring.FactorBudget)
	assert.Equal(t, 100.0, budget.SubScore)
	assert.NotContains(t, res.Degraded, scoring.FactorBudget)

	// mirrored roles score the same
	res = s.Score(profile.SceneActivity, organizer, participant)
	assert.Equal(t, 100.0, factor(t, res, scoring.FactorBudget).SubScore)

	// two budgets and no cost have nothing to compare
	other := activity(3, profile.RoleParticipant, profile.Activity{BudgetMax: 200})
	res = s.Score(profile.SceneActivity, participant, other)
	assert.Contains(t, res.Degraded, scoring.FactorBudget)
}

func TestScore_MissingEverythingIsNeutral(t *testing.T) {
	s := newScorer(t)

	for _, scene := range profile.Scenes {
		res := s.Score(scene, profile.Profile{Scene: scene}, profile.Profile{Scene: scene})
		assert.Equal(t, 50.0, res.Score, "scene %s", scene)
		assert.Empty(t, res.Reasons)
		assert.Len(t, res.Degraded, len(res.Factors))
	}

	res := s.Score("business", profile.Profile{}, profile.Profile{})
	assert.Equal(t, 50.0, res.Score)
}

// TestScore_AlwaysWithinBounds runs randomized profile pairs through every scene.
func TestScore_AlwaysWithinBounds(t *testing.T) {
	s := newScorer(t)
	rng := rand.New(rand.NewSource(7))
	tags := []string{"电影", "旅行", "阅读", "音乐", "游戏", "运动"}
	cities := []string{"北京", "上海", ""}
	districts := []string{"朝阳区", "海淀区", ""}
	pick := func(n int) []string {
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, tags[rng.Intn(len(tags))])
		}
		return out
	}
	loc := func() profile.Location {
		return profile.Location{City: cities[rng.Intn(len(cities))], District: districts[rng.Intn(len(districts))]}
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		lo := rng.Float64() * 5000
		h1 := housing(1, profile.RoleSeeker, profile.Housing{BudgetMin: lo, BudgetMax: lo + rng.Float64()*3000, Areas: []profile.Location{loc()}, LeaseMonths: rng.Intn(24), Lifestyle: pick(rng.Intn(4))})
		h2 := housing(2, profile.RoleProvider, profile.Housing{Price: rng.Float64() * 10000, Areas: []profile.Location{loc()}, LeaseMonths: rng.Intn(24), Lifestyle: pick(rng.Intn(4))})
		d1 := dating(1, profile.Dating{Age: 18 + rng.Intn(50), Interests: pick(rng.Intn(5)), Location: loc()})
		d2 := dating(2, profile.Dating{Age: 18 + rng.Intn(50), Interests: pick(rng.Intn(5)), Location: loc()})
		w1 := profile.TimeWindow{Start: start.Add(time.Duration(rng.Intn(48)) * time.Hour)}
		w1.End = w1.Start.Add(time.Duration(rng.Intn(10)) * time.Hour)
		w2 := profile.TimeWindow{Start: start.Add(time.Duration(rng.Intn(48)) * time.Hour)}
		w2.End = w2.Start.Add(time.Duration(rng.Intn(10)) * time.Hour)
		a1 := activity(1, profile.RoleParticipant, profile.Activity{Types: pick(rng.Intn(3)), Window: w1, BudgetMax: rng.Float64() * 300, Location: loc()})
		a2 := activity(2, profile.RoleOrganizer, profile.Activity{Types: pick(rng.Intn(3)), Window: w2, Cost: rng.Float64() * 300, Location: loc()})

		for _, res := range []scoring.Result{
			s.Score(profile.SceneHousing, h1, h2),
			s.Score(profile.SceneHousing, h2, h1),
			s.Score(profile.SceneDating, d1, d2),
			s.Score(profile.SceneActivity, a1, a2),
			s.Score(profile.SceneActivity, a2, a1),
		} {
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, 100.0)
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	s := newScorer(t)
	a := dating(1, profile.Dating{Age: 25, Interests: []string{"音乐", "电影"}})
	b := dating(2, profile.Dating{Age: 26, Interests: []string{"电影"}})

	first := s.Score(profile.SceneDating, a, b)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, s.Score(profile.SceneDating, a, b))
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := scoring.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Weights[profile.SceneDating] = []scoring.Weight{{Factor: scoring.FactorInterests, Weight: 60}, {Factor: scoring.FactorAge, Weight: 30}}
	assert.Error(t, cfg.Validate())

	cfg = scoring.DefaultConfig()
	cfg.Weights[profile.SceneActivity] = []scoring.Weight{{Factor: scoring.FactorBudget, Weight: 20}, {Factor: scoring.FactorActivity, Weight: 80}}
	assert.Error(t, cfg.Validate(), "ascending weights break reason ordering")

	cfg = scoring.DefaultConfig()
	cfg.Weights[profile.SceneDating] = []scoring.Weight{{Factor: "height", Weight: 100}}
	_, err := scoring.New(cfg)
	assert.Error(t, err)
}
