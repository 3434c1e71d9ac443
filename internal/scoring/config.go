package scoring

import (
	"fmt"
	"math"

	"github.com/oggyb/scene-match/internal/config"
	"github.com/oggyb/scene-match/internal/profile"
)

// Factor names. They double as keys in Result.Factors.
const (
	FactorPrice      = "price"
	FactorLocation   = "location"
	FactorRoomType   = "room_type"
	FactorLease      = "lease_duration"
	FactorLifestyle  = "lifestyle"
	FactorInterests  = "interests"
	FactorAge        = "age"
	FactorEducation  = "education"
	FactorOccupation = "occupation"
	FactorActivity   = "activity_type"
	FactorTimeWindow = "time_window"
	FactorBudget     = "budget"
)

const (
	neutralSubScore   = 50.0
	adjacentSubScore  = 50.0
	fullSubScore      = 100.0
	defaultVisibility = 60.0
)

// Weight is one factor's share of a scene's score.
type Weight struct {
	Factor string
	Weight float64
}

// Config holds weights and tolerance bands. Weights per scene sum to 100
// and are listed in descending weight order, which is also reason order.
type Config struct {
	Weights                 map[profile.Scene][]Weight
	ReasonThreshold         float64
	PriceTolerance          float64
	ActivityBudgetTolerance float64
	AgeFullBand             int
	AgeFadeBand             int
	LeaseToleranceMonths    int
}

// DefaultConfig returns the production weights and tolerances.
func DefaultConfig() Config {
	return Config{
		Weights: map[profile.Scene][]Weight{
			profile.SceneHousing: {
				{FactorPrice, 30},
				{FactorLocation, 25},
				{FactorRoomType, 20},
				{FactorLease, 15},
				{FactorLifestyle, 10},
			},
			profile.SceneDating: {
				{FactorInterests, 30},
				{FactorAge, 20},
				{FactorLocation, 20},
				{FactorEducation, 15},
				{FactorOccupation, 15},
			},
			profile.SceneActivity: {
				{FactorActivity, 35},
				{FactorTimeWindow, 25},
				{FactorLocation, 20},
				{FactorBudget, 20},
			},
		},
		ReasonThreshold:         defaultVisibility,
		PriceTolerance:          500,
		ActivityBudgetTolerance: 50,
		AgeFullBand:             3,
		AgeFadeBand:             2,
		LeaseToleranceMonths:    6,
	}
}

// ConfigFrom overlays the tunable tolerances from app config onto the defaults.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.ReasonThreshold = cfg.Scoring.ReasonThreshold
	c.PriceTolerance = cfg.Scoring.PriceTolerance
	c.ActivityBudgetTolerance = cfg.Scoring.ActivityBudgetTolerance
	c.AgeFullBand = cfg.Scoring.AgeFullBand
	c.AgeFadeBand = cfg.Scoring.AgeFadeBand
	c.LeaseToleranceMonths = cfg.Scoring.LeaseToleranceMonths
	return c
}

// Validate checks that every scene has weights summing to 100 in descending order.
func (c Config) Validate() error {
	for _, scene := range profile.Scenes {
		weights, ok := c.Weights[scene]
		if !ok || len(weights) == 0 {
			return fmt.Errorf("scoring: no weights for scene %s", scene)
		}
		var sum float64
		for i, w := range weights {
			if w.Weight < 0 {
				return fmt.Errorf("scoring: negative weight for %s/%s", scene, w.Factor)
			}
			if i > 0 && w.Weight > weights[i-1].Weight {
				return fmt.Errorf("scoring: weights for %s must be in descending order", scene)
			}
			sum += w.Weight
		}
		if math.Abs(sum-100) > 1e-9 {
			return fmt.Errorf("scoring: weights for %s sum to %.2f, want 100", scene, sum)
		}
	}
	if c.PriceTolerance < 0 || c.ActivityBudgetTolerance < 0 || c.AgeFullBand < 0 || c.AgeFadeBand < 0 || c.LeaseToleranceMonths < 0 {
		return fmt.Errorf("scoring: tolerance bands must not be negative")
	}
	return nil
}
