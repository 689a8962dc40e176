// Package similarity scores how alike two profile snapshots are across nine
// weighted factors.
package similarity

import (
	"fmt"
	"math"

	"github.com/okian/tutormarket/internal/domain/profile"
	"gonum.org/v1/gonum/floats"
)

const (
	sumTolerance = 1e-9
	scorePerUnit = 5
	scoreCeiling = 100
)

// Weights holds the per-factor weights. They must sum to 1.
type Weights struct {
	Rating      float64 `koanf:"rating" json:"rating"`
	Completion  float64 `koanf:"completion" json:"completion"`
	Location    float64 `koanf:"location" json:"location"`
	Load        float64 `koanf:"load" json:"load"`
	Format      float64 `koanf:"format" json:"format"`
	Grade       float64 `koanf:"grade" json:"grade"`
	Experience  float64 `koanf:"experience" json:"experience"`
	Credentials float64 `koanf:"credentials" json:"credentials"`
	AccountAge  float64 `koanf:"account_age" json:"accountAge"`
}

// DefaultWeights returns the standard weight table.
func DefaultWeights() Weights {
	return Weights{
		Rating:      0.20,
		Completion:  0.16,
		Location:    0.15,
		Load:        0.13,
		Format:      0.12,
		Grade:       0.10,
		Experience:  0.08,
		Credentials: 0.04,
		AccountAge:  0.02,
	}
}

func (w Weights) vector() []float64 {
	return []float64{
		w.Rating, w.Completion, w.Location, w.Load, w.Format,
		w.Grade, w.Experience, w.Credentials, w.AccountAge,
	}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 { return floats.Sum(w.vector()) }

// Validate checks that no weight is negative and that they sum to 1.
func (w Weights) Validate() error {
	if floats.Min(w.vector()) < 0 {
		return fmt.Errorf("%w: negative weight", ErrInvalidWeights)
	}
	if s := w.Sum(); math.Abs(s-1) > sumTolerance {
		return fmt.Errorf("%w: sum is %.12f", ErrInvalidWeights, s)
	}
	return nil
}

// Floors are the guarded denominators and soft mismatch scores.
type Floors struct {
	Load             float64 `koanf:"load" json:"load"`
	Score            float64 `koanf:"score" json:"score"`
	AccountAgeDays   float64 `koanf:"account_age_days" json:"accountAgeDays"`
	GradeCeiling     float64 `koanf:"grade_ceiling" json:"gradeCeiling"`
	RatingScale      float64 `koanf:"rating_scale" json:"ratingScale"`
	LocationMismatch float64 `koanf:"location_mismatch" json:"locationMismatch"`
	FormatMismatch   float64 `koanf:"format_mismatch" json:"formatMismatch"`
}

// DefaultFloors returns the standard floors.
func DefaultFloors() Floors {
	return Floors{
		Load:             100,
		Score:            100,
		AccountAgeDays:   1095,
		GradeCeiling:     profile.MaxGradeOrdinal,
		RatingScale:      5,
		LocationMismatch: 0.3,
		FormatMismatch:   0.5,
	}
}

// Validate rejects non-positive denominators.
func (f Floors) Validate() error {
	for name, v := range map[string]float64{
		"load": f.Load, "score": f.Score, "account_age_days": f.AccountAgeDays,
		"grade_ceiling": f.GradeCeiling, "rating_scale": f.RatingScale,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be > 0", ErrInvalidFloors, name)
		}
	}
	return nil
}

// Factors is the per-factor breakdown of one comparison, each in [0,1].
type Factors struct {
	Rating      float64 `json:"rating"`
	Completion  float64 `json:"completion"`
	Location    float64 `json:"location"`
	Load        float64 `json:"load"`
	Format      float64 `json:"format"`
	Grade       float64 `json:"grade"`
	Experience  float64 `json:"experience"`
	Credentials float64 `json:"credentials"`
	AccountAge  float64 `json:"accountAge"`
}

func (f Factors) vector() []float64 {
	return []float64{
		f.Rating, f.Completion, f.Location, f.Load, f.Format,
		f.Grade, f.Experience, f.Credentials, f.AccountAge,
	}
}

// Scorer computes weighted similarity. It is immutable once built.
type Scorer struct {
	weights Weights
	floors  Floors
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWeights replaces the weight table.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithFloors replaces the denominator floors.
func WithFloors(f Floors) Option {
	return func(s *Scorer) { s.floors = f }
}

// New builds a Scorer and validates its configuration.
func New(opts ...Option) (*Scorer, error) {
	s := &Scorer{weights: DefaultWeights(), floors: DefaultFloors()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.weights.Validate(); err != nil {
		return nil, err
	}
	if err := s.floors.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Weights returns the configured weight table.
func (s *Scorer) Weights() Weights { return s.weights }

// Similarity returns the weighted composite similarity in [0,1].
func (s *Scorer) Similarity(a, b profile.Subject) float64 {
	v, _ := s.Compare(a, b)
	return v
}

// Compare returns the composite similarity and its per-factor breakdown.
func (s *Scorer) Compare(a, b profile.Subject) (float64, Factors) {
	fl := s.floors
	f := Factors{
		Rating:      1 - math.Min(math.Abs(a.Rating-b.Rating)/fl.RatingScale, 1),
		Completion:  1 - math.Min(math.Abs(a.CompletionRate-b.CompletionRate), 1),
		Location:    fl.LocationMismatch,
		Load:        relative(float64(a.CurrentLoad), float64(b.CurrentLoad), fl.Load),
		Format:      fl.FormatMismatch,
		Grade:       1 - math.Min(math.Abs(a.GradeComplexity-b.GradeComplexity)/fl.GradeCeiling, 1),
		Experience:  relative(derivedScore(a.ExperienceYears), derivedScore(b.ExperienceYears), fl.Score),
		Credentials: relative(derivedScore(a.CredentialCount), derivedScore(b.CredentialCount), fl.Score),
		AccountAge:  relative(float64(a.AccountAgeDays), float64(b.AccountAgeDays), fl.AccountAgeDays),
	}
	if a.Country != "" && a.Country == b.Country {
		f.Location = 1
	}
	if a.SessionFormat == b.SessionFormat {
		f.Format = 1
	}
	total := floats.Dot(f.vector(), s.weights.vector())
	return math.Max(0, math.Min(1, total)), f
}

// relative compares two magnitudes against max(a, b, floor).
func relative(a, b, floor float64) float64 {
	den := math.Max(math.Max(a, b), floor)
	return 1 - math.Min(math.Abs(a-b)/den, 1)
}

func derivedScore(n int) float64 {
	return math.Min(scoreCeiling, float64(n*scorePerUnit))
}
