// Package model contains the analytics records passed from the API to the
// suggestion log sink.
package model

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/okian/tutormarket/internal/domain/pricing"
)

// ErrRejected marks a record the sink refused because of its content, as
// opposed to a storage outage.
var ErrRejected = errors.New("record rejected")

// Kind tags a log entry.
type Kind string

const (
	KindSuggestion Kind = "suggestion"
	KindAcceptance Kind = "acceptance"
)

// SuggestionRecord is one emitted price suggestion.
type SuggestionRecord struct {
	ID               string          `json:"id"`
	ProfileID        string          `json:"profileId" validate:"required"`
	SuggestedPrice   float64         `json:"suggestedPrice" validate:"gt=0"`
	MarketAverage    float64         `json:"marketAverage" validate:"gte=0"`
	MinPrice         float64         `json:"minPrice" validate:"gte=0"`
	MaxPrice         float64         `json:"maxPrice" validate:"gtefield=MinPrice"`
	Confidence       string          `json:"confidenceLevel" validate:"omitempty,oneof=high medium low"`
	Source           string          `json:"source"`
	TutorCount       int             `json:"tutorCount" validate:"gte=0"`
	SimilarCount     int             `json:"similarTutorsCount" validate:"gte=0"`
	TimePeriodMonths int             `json:"timePeriodMonths" validate:"gte=0,lte=12"`
	Factors          json.RawMessage `json:"factors,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// AcceptanceRecord marks a suggestion as taken at a price.
type AcceptanceRecord struct {
	SuggestionID  string    `json:"suggestionId"`
	AcceptedPrice float64   `json:"acceptedPrice"`
	AcceptedAt    time.Time `json:"acceptedAt"`
}

// LogEntry is the unit carried by the log queue. Exactly one of the
// record pointers is set, matching Kind.
type LogEntry struct {
	Kind       Kind
	Suggestion *SuggestionRecord
	Acceptance *AcceptanceRecord
}

// NewSuggestionRecord snapshots s, including its factor breakdown.
func NewSuggestionRecord(id string, s pricing.Suggestion, at time.Time) (SuggestionRecord, error) {
	factors, err := json.Marshal(s.Factors)
	if err != nil {
		return SuggestionRecord{}, fmt.Errorf("encode factors: %w", err)
	}
	return SuggestionRecord{
		ID:               id,
		ProfileID:        s.ProfileID,
		SuggestedPrice:   s.SuggestedPrice,
		MarketAverage:    s.MarketAverage,
		MinPrice:         s.PriceRange.Min,
		MaxPrice:         s.PriceRange.Max,
		Confidence:       s.ConfidenceLevel,
		Source:           s.Factors.Source,
		TutorCount:       s.TutorCount,
		SimilarCount:     s.SimilarTutorsCount,
		TimePeriodMonths: s.TimePeriodMonths,
		Factors:          factors,
		CreatedAt:        at,
	}, nil
}

// SuggestionEntry wraps r for the queue.
func SuggestionEntry(r SuggestionRecord) LogEntry {
	return LogEntry{Kind: KindSuggestion, Suggestion: &r}
}

// AcceptanceEntry wraps r for the queue.
func AcceptanceEntry(r AcceptanceRecord) LogEntry {
	return LogEntry{Kind: KindAcceptance, Acceptance: &r}
}

// Key identifies the entry in logs.
func (e LogEntry) Key() string {
	switch {
	case e.Suggestion != nil:
		return string(e.Kind) + ":" + e.Suggestion.ID
	case e.Acceptance != nil:
		return string(e.Kind) + ":" + e.Acceptance.SuggestionID
	}
	return string(e.Kind)
}

// PartitionKey is the suggestion id the entry belongs to. A suggestion
// and its acceptance share it.
func (e LogEntry) PartitionKey() string {
	switch {
	case e.Suggestion != nil:
		return e.Suggestion.ID
	case e.Acceptance != nil:
		return e.Acceptance.SuggestionID
	}
	return ""
}
