// Package pricing suggests an hourly price for a profile from comparable
// peers, falling back to the base-price rule table for new entrants and
// thin markets.
package pricing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/internal/domain/rules"
	"github.com/okian/tutormarket/internal/domain/similarity"
	"github.com/okian/tutormarket/pkg/logger"
	"github.com/okian/tutormarket/pkg/metrics"
)

// Reader is the storage view the engine needs.
type Reader interface {
	SubjectProfile(ctx context.Context, profileID string) (profile.Subject, error)
	ConfirmedEnrollmentCount(ctx context.Context, profileID string) (int, error)
	CreationRank(ctx context.Context, profileID string) (int, error)
	CourseCategory(ctx context.Context, courseIDs []string) (string, error)
	Observations(ctx context.Context, q profile.ObservationQuery) ([]profile.Observation, error)
}

// Engine computes price suggestions. It holds no per-request state.
type Engine struct {
	reader   Reader
	resolver *rules.Resolver
	scorer   *similarity.Scorer
	cfg      Config
	now      func() time.Time
	log      logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default parameters.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClock sets the time source used for the observation window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an Engine. The config is validated once here.
func New(reader Reader, resolver *rules.Resolver, opts ...Option) (*Engine, error) {
	e := &Engine{
		reader:   reader,
		resolver: resolver,
		cfg:      DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := similarity.New(similarity.WithWeights(e.cfg.Weights), similarity.WithFloors(e.cfg.Floors))
	if err != nil {
		return nil, err
	}
	e.scorer = scorer
	return e, nil
}

// Config returns the engine parameters.
func (e *Engine) Config() Config { return e.cfg }

// normalize fills defaults and validates the window.
func (e *Engine) normalize(req Request) (Request, error) {
	if req.TimePeriodMonths == 0 {
		req.TimePeriodMonths = e.cfg.DefaultMonths
	}
	if req.TimePeriodMonths < 1 || req.TimePeriodMonths > e.cfg.MaxMonths {
		return req, fmt.Errorf("%w: %d", ErrInvalidWindow, req.TimePeriodMonths)
	}
	req.SessionFormat = profile.NormalizeFormat(req.SessionFormat)
	return req, nil
}

// prepare loads the subject and builds the strict observation query.
func (e *Engine) prepare(ctx context.Context, profileID string, req Request) (profile.Subject, profile.ObservationQuery, string, error) {
	subject, err := e.reader.SubjectProfile(ctx, profileID)
	if err != nil {
		return profile.Subject{}, profile.ObservationQuery{}, "", err
	}
	// format similarity is measured against the requested format
	if req.SessionFormat != "" {
		subject.SessionFormat = req.SessionFormat
	}
	category := rules.Any
	if len(req.CourseIDs) > 0 {
		if category, err = e.reader.CourseCategory(ctx, req.CourseIDs); err != nil {
			return profile.Subject{}, profile.ObservationQuery{}, "", err
		}
		if category = strings.ToLower(strings.TrimSpace(category)); category == "" {
			category = rules.Any
		}
	}
	q := profile.ObservationQuery{
		ExcludeProfileID: profileID,
		Since:            e.now().AddDate(0, -req.TimePeriodMonths, 0),
		GradeLevels:      req.GradeLevels,
		SessionFormat:    req.SessionFormat,
	}
	if category != rules.Any {
		q.Category = category
	}
	return subject, q, category, nil
}

// IsNewEntrant reports whether the profile has no confirmed enrollments or
// was among the first NewEntrantRank profiles created.
func (e *Engine) IsNewEntrant(ctx context.Context, profileID string) (bool, error) {
	confirmed, err := e.reader.ConfirmedEnrollmentCount(ctx, profileID)
	if err != nil {
		return false, err
	}
	if confirmed == 0 {
		return true, nil
	}
	rank, err := e.reader.CreationRank(ctx, profileID)
	if err != nil {
		return false, err
	}
	return rank > 0 && rank <= e.cfg.NewEntrantRank, nil
}

// SuggestPrice returns a suggestion for profileID. It only fails on an
// unknown profile, an invalid window or a storage error.
func (e *Engine) SuggestPrice(ctx context.Context, profileID string, req Request) (Suggestion, error) {
	start := time.Now()
	req, err := e.normalize(req)
	if err != nil {
		return Suggestion{}, err
	}
	subject, q, category, err := e.prepare(ctx, profileID, req)
	if err != nil {
		return Suggestion{}, err
	}

	var s Suggestion
	newEntrant, err := e.IsNewEntrant(ctx, profileID)
	switch {
	case err != nil:
		return Suggestion{}, err
	case newEntrant:
		s, err = e.ruleSuggestion(ctx, subject, category, req, ReasonNewEntrant)
		s.Factors.NewEntrant = true
	default:
		var res MatchResult
		if res, err = e.match(ctx, q); err != nil {
			return Suggestion{}, err
		}
		if len(res.Observations) == 0 {
			s, err = e.ruleSuggestion(ctx, subject, category, req, ReasonInsufficientData)
			s.Factors.Stage = res.Stage
		} else {
			s = e.aggregate(subject, category, req, res)
		}
	}
	if err != nil {
		return Suggestion{}, err
	}

	metrics.RecordSuggestion(s.ConfidenceLevel, s.Factors.Source)
	metrics.RecordSuggestionLatency(float64(time.Since(start).Milliseconds()))
	if e.log != nil {
		e.log.Debug(ctx, "price suggested",
			logger.String("profile_id", profileID),
			logger.String("filters", describe(req)),
			logger.Float64("price", s.SuggestedPrice),
			logger.String("confidence", s.ConfidenceLevel),
			logger.String("source", s.Factors.Source),
			logger.Int("comparables", s.TutorCount))
	}
	return s, nil
}

// GetMarketComparables lists the observations the market path would use,
// each scored against the subject, most similar first.
func (e *Engine) GetMarketComparables(ctx context.Context, profileID string, req Request) (Comparables, error) {
	req, err := e.normalize(req)
	if err != nil {
		return Comparables{}, err
	}
	subject, q, _, err := e.prepare(ctx, profileID, req)
	if err != nil {
		return Comparables{}, err
	}
	res, err := e.match(ctx, q)
	if err != nil {
		return Comparables{}, err
	}
	out := Comparables{
		Subject:          subject,
		Stage:            res.Stage,
		Threshold:        e.cfg.SimilarityThreshold,
		Comparables:      e.score(subject, res.Observations),
		TimePeriodMonths: req.TimePeriodMonths,
	}
	sort.SliceStable(out.Comparables, func(i, j int) bool {
		a, b := out.Comparables[i], out.Comparables[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.ProfileID != b.ProfileID {
			return a.ProfileID < b.ProfileID
		}
		return a.CourseID < b.CourseID
	})
	return out, nil
}

func (e *Engine) score(subject profile.Subject, obs []profile.Observation) []Comparable {
	out := make([]Comparable, len(obs))
	for i, o := range obs {
		v, f := e.scorer.Compare(subject, o.Subject)
		out[i] = Comparable{
			Observation: o,
			Similarity:  v,
			Similar:     v > e.cfg.SimilarityThreshold,
			Breakdown:   f,
		}
	}
	return out
}

// aggregate turns matched observations into a market-based suggestion.
func (e *Engine) aggregate(subject profile.Subject, category string, req Request, res MatchResult) Suggestion {
	comps := e.score(subject, res.Observations)

	all := make([]float64, len(comps))
	allW := make([]float64, len(comps))
	var simPrices, simW []float64
	for i, c := range comps {
		all[i] = c.ObservedPrice
		allW[i] = c.Similarity
		metrics.ObserveSimilarity(c.Similarity)
		if c.Similar {
			simPrices = append(simPrices, c.ObservedPrice)
			simW = append(simW, c.Similarity)
		}
	}
	metrics.ObserveComparables(len(comps))

	mean := weightedMean(all, allW)
	if len(simPrices) > 0 {
		mean = weightedMean(simPrices, simW)
	}
	trend := e.cfg.TrendMultiplier(req.TimePeriodMonths)
	adjusted := mean * trend
	tier := e.cfg.TierFor(len(simPrices))

	price, rng := e.bound(adjusted, tier.Band)
	return Suggestion{
		ProfileID:          subject.ProfileID,
		SuggestedPrice:     price,
		MarketAverage:      roundTo(stat.Mean(all, nil), 2),
		PriceRange:         rng,
		TutorCount:         len(comps),
		SimilarTutorsCount: len(simPrices),
		ConfidenceLevel:    tier.Name,
		TimePeriodMonths:   req.TimePeriodMonths,
		Factors: Factors{
			Subject:          subject,
			Weights:          e.cfg.Weights,
			AlgorithmVersion: AlgorithmVersion,
			Source:           SourceMarket,
			Stage:            res.Stage,
			Category:         category,
			TrendMultiplier:  trend,
			WeightedMean:     roundTo(mean, 2),
			Band:             tier.Band,
		},
	}
}

// ruleSuggestion prices from the base-price rule table. Only a requested
// format narrows the rule; the subject's own course format does not, so an
// unfiltered request resolves against ("all", "all") unless a category
// applies.
func (e *Engine) ruleSuggestion(ctx context.Context, subject profile.Subject, category string, req Request, reason string) (Suggestion, error) {
	resolution, err := e.resolver.Resolve(ctx, category, req.SessionFormat, subject.CredentialCount, subject.ExperienceYears)
	if err != nil {
		return Suggestion{}, err
	}

	confidence := ConfidenceLow
	if resolution.Match == rules.MatchExact || resolution.Match == rules.MatchCategory {
		confidence = ConfidenceMedium
	}
	note := "priced from base rule (" + resolution.Match + ")"
	if resolution.Fallback {
		reason = ReasonMisconfiguration
		note = "no base rule matched; platform default applied"
	}
	metrics.RecordFallback(reason)

	tier := e.cfg.TierNamed(confidence)
	raw, _ := resolution.Price.Float64()
	price, rng := e.bound(raw, tier.Band)
	return Suggestion{
		ProfileID:        subject.ProfileID,
		SuggestedPrice:   price,
		MarketAverage:    0,
		PriceRange:       rng,
		ConfidenceLevel:  confidence,
		TimePeriodMonths: req.TimePeriodMonths,
		Factors: Factors{
			Subject:          subject,
			Weights:          e.cfg.Weights,
			AlgorithmVersion: AlgorithmVersion,
			Source:           SourceRules,
			Category:         category,
			TrendMultiplier:  1,
			Band:             tier.Band,
			FallbackReason:   reason,
			FallbackNote:     note,
			Rule:             resolution.Rule,
			RuleMatch:        resolution.Match,
		},
	}, nil
}

// bound clamps value into its confidence band and the platform guardrails,
// then rounds to the configured step.
func (e *Engine) bound(value, band float64) (float64, PriceRange) {
	floor, ceil := e.cfg.PriceFloor, e.cfg.PriceCeiling
	lo := math.Max(floor, value*(1-band))
	hi := math.Min(ceil, value*(1+band))

	price := math.Max(lo, math.Min(value, hi))
	price = math.Max(floor, math.Min(ceil, price))
	price = e.roundStep(price, roundNearest)

	return price, PriceRange{
		Min:          e.roundStep(math.Max(floor, math.Min(lo, price)), roundDown),
		Max:          e.roundStep(math.Min(ceil, math.Max(hi, price)), roundUp),
		SuggestedMin: e.roundStep(value*(1-band), roundNearest),
		SuggestedMax: e.roundStep(value*(1+band), roundNearest),
	}
}

type rounding int

const (
	roundNearest rounding = iota
	roundDown
	roundUp
)

// roundStep rounds v to a multiple of RoundTo using decimal arithmetic so
// that results are exact multiples. roundNearest breaks ties half away
// from zero: with a step of 5, 62.5 becomes 65 and 57.5 becomes 60.
func (e *Engine) roundStep(v float64, mode rounding) float64 {
	step := decimal.NewFromInt(e.cfg.RoundTo)
	q := decimal.NewFromFloat(v).Div(step)
	switch mode {
	case roundDown:
		q = q.Floor()
	case roundUp:
		q = q.Ceil()
	default:
		q = q.Round(0)
	}
	f, _ := q.Mul(step).Float64()
	return f
}

// weightedMean falls back to the arithmetic mean when weights sum to zero.
func weightedMean(x, w []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	if floats.Sum(w) <= 0 {
		return stat.Mean(x, nil)
	}
	return stat.Mean(x, w)
}

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func describe(req Request) string {
	parts := []string{fmt.Sprintf("months=%d", req.TimePeriodMonths)}
	if len(req.CourseIDs) > 0 {
		parts = append(parts, "courses="+strings.Join(req.CourseIDs, "|"))
	}
	if len(req.GradeLevels) > 0 {
		parts = append(parts, "grades="+strings.Join(req.GradeLevels, "|"))
	}
	if req.SessionFormat != "" {
		parts = append(parts, "format="+req.SessionFormat)
	}
	return strings.Join(parts, " ")
}
