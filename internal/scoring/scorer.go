package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/oggyb/scene-match/internal/profile"
)

// FactorScore is one factor's contribution to a Result.
type FactorScore struct {
	Factor   string
	Weight   float64
	SubScore float64
	// Neutral is set when the factor could not be computed and 50 was substituted.
	Neutral bool
}

// Result is the outcome of scoring one profile pair.
type Result struct {
	Score    float64
	Reasons  []string
	Factors  []FactorScore
	Degraded []string
}

// evalFunc scores requester a against candidate b for one factor.
// ok=false means inputs were missing and the neutral value applies.
type evalFunc func(s *Scorer, a, b profile.Profile) (sub float64, reason string, ok bool)

// Scorer computes deterministic, rule-based compatibility scores.
// It holds no mutable state and is safe for unbounded concurrent use.
type Scorer struct {
	cfg   Config
	evals map[profile.Scene]map[string]evalFunc
}

// New validates cfg and returns a Scorer.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scorer{
		cfg: cfg,
		evals: map[profile.Scene]map[string]evalFunc{
			profile.SceneHousing: {
				FactorPrice:     housingPrice,
				FactorLocation:  housingLocation,
				FactorRoomType:  housingRoomType,
				FactorLease:     housingLease,
				FactorLifestyle: housingLifestyle,
			},
			profile.SceneDating: {
				FactorInterests:  datingInterests,
				FactorAge:        datingAge,
				FactorLocation:   datingLocation,
				FactorEducation:  datingEducation,
				FactorOccupation: datingOccupation,
			},
			profile.SceneActivity: {
				FactorActivity:   activityTypes,
				FactorTimeWindow: activityWindow,
				FactorLocation:   activityLocation,
				FactorBudget:     activityBudget,
			},
		},
	}
	for scene, weights := range cfg.Weights {
		for _, w := range weights {
			if _, ok := s.evals[scene][w.Factor]; !ok {
				return nil, fmt.Errorf("scoring: unknown factor %s for scene %s", w.Factor, scene)
			}
		}
	}
	return s, nil
}

// Score rates candidate b from requester a's point of view.
// It never fails: missing inputs fall back to a neutral sub-score.
func (s *Scorer) Score(scene profile.Scene, a, b profile.Profile) Result {
	weights, ok := s.cfg.Weights[scene]
	if !ok {
		return Result{Score: neutralSubScore, Degraded: []string{"scene"}}
	}

	res := Result{Factors: make([]FactorScore, 0, len(weights))}
	var total float64
	for _, w := range weights {
		sub, reason, ok := s.evals[scene][w.Factor](s, a, b)
		fs := FactorScore{Factor: w.Factor, Weight: w.Weight, SubScore: clamp(sub)}
		if !ok {
			fs.SubScore = neutralSubScore
			fs.Neutral = true
			res.Degraded = append(res.Degraded, w.Factor)
		} else if fs.SubScore >= s.cfg.ReasonThreshold && reason != "" {
			res.Reasons = append(res.Reasons, reason)
		}
		total += w.Weight * fs.SubScore / 100
		res.Factors = append(res.Factors, fs)
	}

	res.Score = math.Round(clamp(total)*10) / 10
	return res
}

// --- housing ---

func housingPrice(s *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Housing == nil || b.Housing == nil {
		return 0, "", false
	}
	switch {
	case a.Housing.HasBudget() && b.Housing.HasPrice():
		return rangeFit(b.Housing.Price, a.Housing.BudgetMin, a.Housing.BudgetMax, s.cfg.PriceTolerance), "价格匹配", true
	case b.Housing.HasBudget() && a.Housing.HasPrice():
		return rangeFit(a.Housing.Price, b.Housing.BudgetMin, b.Housing.BudgetMax, s.cfg.PriceTolerance), "价格匹配", true
	}
	return 0, "", false
}

func housingLocation(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Housing == nil || b.Housing == nil {
		return 0, "", false
	}
	best, found := 0.0, false
	for _, x := range a.Housing.Areas {
		for _, y := range b.Housing.Areas {
			if sub, ok := compareLocation(x, y); ok {
				found = true
				best = math.Max(best, sub)
			}
		}
	}
	return best, "地理位置匹配", found
}

// roomGroups marks room types that are close substitutes.
var roomGroups = map[string]string{
	"整租": "whole", "公寓": "whole", "普通住宅": "whole", "复式": "whole", "别墅": "whole", "酒店式公寓": "whole",
	"合租": "shared", "主卧": "shared", "次卧": "shared",
}

func housingRoomType(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Housing == nil || b.Housing == nil {
		return 0, "", false
	}
	x, y := norm(a.Housing.RoomType), norm(b.Housing.RoomType)
	if x == "" || y == "" {
		return 0, "", false
	}
	switch {
	case x == y:
		return fullSubScore, "房型匹配", true
	case roomGroups[x] != "" && roomGroups[x] == roomGroups[y]:
		return adjacentSubScore, "房型匹配", true
	}
	return 0, "房型匹配", true
}

func housingLease(s *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Housing == nil || b.Housing == nil || a.Housing.LeaseMonths <= 0 || b.Housing.LeaseMonths <= 0 {
		return 0, "", false
	}
	diff := math.Abs(float64(a.Housing.LeaseMonths - b.Housing.LeaseMonths))
	return linearFade(diff, 0, float64(s.cfg.LeaseToleranceMonths)), "租期匹配", true
}

func housingLifestyle(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Housing == nil || b.Housing == nil {
		return 0, "", false
	}
	sub, _, ok := overlap(a.Housing.Lifestyle, b.Housing.Lifestyle)
	return sub, "生活习惯相近", ok
}

// --- dating ---

func datingInterests(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Dating == nil || b.Dating == nil {
		return 0, "", false
	}
	sub, common, ok := overlap(a.Dating.Interests, b.Dating.Interests)
	if len(common) > 3 {
		common = common[:3]
	}
	return sub, "共同兴趣: " + strings.Join(common, ", "), ok
}

func datingAge(s *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Dating == nil || b.Dating == nil || a.Dating.Age <= 0 || b.Dating.Age <= 0 {
		return 0, "", false
	}
	diff := math.Abs(float64(a.Dating.Age - b.Dating.Age))
	return linearFade(diff, float64(s.cfg.AgeFullBand), float64(s.cfg.AgeFadeBand)), "年龄相近", true
}

func datingLocation(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Dating == nil || b.Dating == nil {
		return 0, "", false
	}
	sub, ok := compareLocation(a.Dating.Location, b.Dating.Location)
	return sub, "同城", ok
}

var educationTiers = map[string]int{"高中": 0, "大专": 1, "本科": 2, "硕士": 3, "博士": 4}

func datingEducation(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Dating == nil || b.Dating == nil {
		return 0, "", false
	}
	x, okX := educationTiers[norm(a.Dating.Education)]
	y, okY := educationTiers[norm(b.Dating.Education)]
	if !okX || !okY {
		return 0, "", false
	}
	switch diff := x - y; {
	case diff == 0:
		return fullSubScore, "教育背景相当", true
	case diff == 1 || diff == -1:
		return adjacentSubScore, "教育背景相当", true
	}
	return 0, "教育背景相当", true
}

func datingOccupation(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Dating == nil || b.Dating == nil {
		return 0, "", false
	}
	occA, occB := norm(a.Dating.Occupation), norm(b.Dating.Occupation)
	indA, indB := norm(a.Dating.Industry), norm(b.Dating.Industry)
	switch {
	case occA != "" && occB != "" && occA == occB:
		return fullSubScore, "职业相近", true
	case indA != "" && indB != "" && indA == indB:
		return adjacentSubScore, "职业相近", true
	case (occA != "" && occB != "") || (indA != "" && indB != ""):
		return 0, "职业相近", true
	}
	return 0, "", false
}

// --- activity ---

func activityTypes(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Activity == nil || b.Activity == nil {
		return 0, "", false
	}
	sub, _, ok := overlap(a.Activity.Types, b.Activity.Types)
	return sub, "活动类型匹配", ok
}

func activityWindow(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Activity == nil || b.Activity == nil || a.Activity.Window.IsZero() || b.Activity.Window.IsZero() {
		return 0, "", false
	}
	wa, wb := a.Activity.Window, b.Activity.Window
	start, end := wa.Start, wa.End
	if wb.Start.After(start) {
		start = wb.Start
	}
	if wb.End.Before(end) {
		end = wb.End
	}
	if !end.After(start) {
		return 0, "时间合适", true
	}
	return 100 * end.Sub(start).Seconds() / wa.End.Sub(wa.Start).Seconds(), "时间合适", true
}

func activityLocation(_ *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Activity == nil || b.Activity == nil {
		return 0, "", false
	}
	sub, ok := compareLocation(a.Activity.Location, b.Activity.Location)
	return sub, "地点便利", ok
}

func activityBudget(s *Scorer, a, b profile.Profile) (float64, string, bool) {
	if a.Activity == nil || b.Activity == nil {
		return 0, "", false
	}
	tol := s.cfg.ActivityBudgetTolerance
	// a card with no budget of its own is priced by Cost, free when Cost is zero
	priced := func(x *profile.Activity) bool { return x.Cost > 0 || !x.HasBudget() }
	switch {
	case a.Activity.HasBudget() && priced(b.Activity):
		return rangeFit(b.Activity.Cost, a.Activity.BudgetMin, a.Activity.BudgetMax, tol), "费用合适", true
	case b.Activity.HasBudget() && priced(a.Activity):
		return rangeFit(a.Activity.Cost, b.Activity.BudgetMin, b.Activity.BudgetMax, tol), "费用合适", true
	}
	return 0, "", false
}

// --- shared sub-score policies ---

// rangeFit is 100 inside [lo, hi] and fades linearly to 0 over tol outside it.
func rangeFit(v, lo, hi, tol float64) float64 {
	if v >= lo && v <= hi {
		return fullSubScore
	}
	dist := lo - v
	if v > hi {
		dist = v - hi
	}
	return linearFade(dist, 0, tol)
}

// linearFade is 100 up to full, then falls to 0 across the next fade units.
func linearFade(dist, full, fade float64) float64 {
	if dist <= full {
		return fullSubScore
	}
	if fade <= 0 {
		return 0
	}
	return clamp(fullSubScore * (1 - (dist-full)/fade))
}

// overlap scores |requested ∩ offered| / |requested|, returning the shared
// values in requested order.
func overlap(requested, offered []string) (float64, []string, bool) {
	req := dedupe(requested)
	off := dedupe(offered)
	if len(req) == 0 || len(off) == 0 {
		return 0, nil, false
	}
	have := make(map[string]struct{}, len(off))
	for _, o := range off {
		have[o] = struct{}{}
	}
	var common []string
	for _, r := range req {
		if _, ok := have[r]; ok {
			common = append(common, r)
		}
	}
	return clamp(fullSubScore * float64(len(common)) / float64(len(req))), common, true
}

// compareLocation: same district 100, same city other district 50, else 0.
// When only one side knows the district the comparison happens at city level.
func compareLocation(x, y profile.Location) (float64, bool) {
	cx, cy := norm(x.City), norm(y.City)
	dx, dy := norm(x.District), norm(y.District)

	if dx != "" && dy != "" {
		switch {
		case dx == dy && (cx == "" || cy == "" || cx == cy):
			return fullSubScore, true
		case cx != "" && cx == cy:
			return adjacentSubScore, true
		}
		return 0, true
	}
	if cx != "" && cy != "" {
		if cx == cy {
			return fullSubScore, true
		}
		return 0, true
	}
	return 0, false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = norm(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
