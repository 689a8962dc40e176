package pricing

import (
	"fmt"
	"sort"

	"github.com/okian/tutormarket/internal/domain/similarity"
)

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Tier maps a minimum comparable count onto a confidence level and band.
type Tier struct {
	Name           string  `koanf:"name" json:"name"`
	MinComparables int     `koanf:"min_comparables" json:"minComparables"`
	Band           float64 `koanf:"band" json:"band"`
}

// Config is the immutable parameter set of the pricing engine.
type Config struct {
	Weights             similarity.Weights `koanf:"weights"`
	Floors              similarity.Floors  `koanf:"floors"`
	SimilarityThreshold float64            `koanf:"similarity_threshold"`
	MinObservations     int                `koanf:"min_observations"`
	NewEntrantRank      int                `koanf:"new_entrant_rank"`
	PriceFloor          float64            `koanf:"price_floor"`
	PriceCeiling        float64            `koanf:"price_ceiling"`
	RoundTo             int64              `koanf:"round_to"`
	TrendBaselineMonths int                `koanf:"trend_baseline_months"`
	TrendRatePerMonth   float64            `koanf:"trend_rate_per_month"`
	DefaultMonths       int                `koanf:"default_months"`
	MaxMonths           int                `koanf:"max_months"`
	Tiers               []Tier             `koanf:"tiers"`
	FallbackPrice       float64            `koanf:"fallback_price"`
}

// DefaultConfig returns the standard pricing parameters.
func DefaultConfig() Config {
	return Config{
		Weights:             similarity.DefaultWeights(),
		Floors:              similarity.DefaultFloors(),
		SimilarityThreshold: 0.65,
		MinObservations:     5,
		NewEntrantRank:      1000,
		PriceFloor:          50,
		PriceCeiling:        500,
		RoundTo:             5,
		TrendBaselineMonths: 3,
		TrendRatePerMonth:   0.05,
		DefaultMonths:       3,
		MaxMonths:           12,
		Tiers: []Tier{
			{Name: ConfidenceHigh, MinComparables: 10, Band: 0.15},
			{Name: ConfidenceMedium, MinComparables: 5, Band: 0.25},
			{Name: ConfidenceLow, MinComparables: 0, Band: 0.35},
		},
		FallbackPrice: 150,
	}
}

// Validate checks internal consistency.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Floors.Validate(); err != nil {
		return err
	}
	switch {
	case c.PriceFloor <= 0 || c.PriceCeiling < c.PriceFloor:
		return fmt.Errorf("%w: guardrails [%v, %v]", ErrInvalidConfig, c.PriceFloor, c.PriceCeiling)
	case c.RoundTo <= 0:
		return fmt.Errorf("%w: round_to must be > 0", ErrInvalidConfig)
	case c.DefaultMonths < 1 || c.DefaultMonths > c.MaxMonths:
		return fmt.Errorf("%w: default_months out of range", ErrInvalidConfig)
	case c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1:
		return fmt.Errorf("%w: similarity_threshold must be in [0,1]", ErrInvalidConfig)
	case len(c.Tiers) == 0:
		return fmt.Errorf("%w: no confidence tiers", ErrInvalidConfig)
	}
	tiers := c.sortedTiers()
	if tiers[len(tiers)-1].MinComparables != 0 {
		return fmt.Errorf("%w: a tier with min_comparables 0 is required", ErrInvalidConfig)
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Band < tiers[i-1].Band {
			return fmt.Errorf("%w: band must not narrow as comparables decrease", ErrInvalidConfig)
		}
	}
	return nil
}

// sortedTiers orders tiers by descending MinComparables.
func (c Config) sortedTiers() []Tier {
	out := append([]Tier(nil), c.Tiers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinComparables > out[j].MinComparables })
	return out
}

// TierFor returns the tier reached by similarCount comparables.
func (c Config) TierFor(similarCount int) Tier {
	tiers := c.sortedTiers()
	for _, t := range tiers {
		if similarCount >= t.MinComparables {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// TierNamed returns the tier with the given confidence name.
func (c Config) TierNamed(name string) Tier {
	for _, t := range c.Tiers {
		if t.Name == name {
			return t
		}
	}
	return c.TierFor(0)
}

// TrendMultiplier returns 1 + (months - baseline) * rate.
func (c Config) TrendMultiplier(months int) float64 {
	return 1 + float64(months-c.TrendBaselineMonths)*c.TrendRatePerMonth
}
