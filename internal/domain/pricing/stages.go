package pricing

import (
	"context"

	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/pkg/metrics"
)

// Stage names.
const (
	StageStrict  = "strict"
	StageRelaxed = "relaxed"
)

// MatchResult is the tagged output of the observation pipeline.
type MatchResult struct {
	Stage        string
	Observations []profile.Observation
}

// strictMatch applies every filter of q.
func (e *Engine) strictMatch(ctx context.Context, q profile.ObservationQuery) (MatchResult, error) {
	obs, err := e.reader.Observations(ctx, q)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Stage: StageStrict, Observations: obs}, nil
}

// relaxedMatch keeps only the window and format filters.
func (e *Engine) relaxedMatch(ctx context.Context, q profile.ObservationQuery) (MatchResult, error) {
	metrics.RecordRelaxedQuery()
	obs, err := e.reader.Observations(ctx, q.Relaxed())
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Stage: StageRelaxed, Observations: obs}, nil
}

// match runs strictMatch and, when it yields too few observations, a single
// relaxedMatch whose result replaces the strict one.
func (e *Engine) match(ctx context.Context, q profile.ObservationQuery) (MatchResult, error) {
	res, err := e.strictMatch(ctx, q)
	if err != nil {
		return MatchResult{}, err
	}
	if len(res.Observations) >= e.cfg.MinObservations {
		return res, nil
	}
	return e.relaxedMatch(ctx, q)
}
