// Package types contains response shapes shared by the service and the HTTP API.
package types

import (
	"time"

	json "github.com/goccy/go-json"
)

// Health is the body of GET /healthz.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Breaker  string `json:"breaker"`
}

// Stats is the body of GET /stats.
type Stats struct {
	Profiles      int64  `json:"profiles"`
	Courses       int64  `json:"courses"`
	Enrollments   int64  `json:"enrollments"`
	Suggestions   int64  `json:"suggestions"`
	Acceptances   int64  `json:"acceptances"`
	QueueDepth    int    `json:"queueDepth"`
	QueueCapacity int    `json:"queueCapacity"`
	Workers       int    `json:"workers"`
	BreakerState  string `json:"breakerState"`
	DedupeEntries int64  `json:"dedupeEntries"`
	Dropped       int64  `json:"dropped"`
	Uptime        string `json:"uptime"`
}

// Accepted acknowledges a write handed to the log pipeline.
type Accepted struct {
	Status       string `json:"status"`
	SuggestionID string `json:"suggestionId"`
	Duplicate    bool   `json:"duplicate"`
}

// SuggestionLog is a stored suggestion and its acceptance, if any.
type SuggestionLog struct {
	ID               string          `json:"id"`
	ProfileID        string          `json:"profileId"`
	SuggestedPrice   float64         `json:"suggestedPrice"`
	MarketAverage    float64         `json:"marketAverage"`
	MinPrice         float64         `json:"minPrice"`
	MaxPrice         float64         `json:"maxPrice"`
	ConfidenceLevel  string          `json:"confidenceLevel"`
	Source           string          `json:"source"`
	TutorCount       int             `json:"tutorCount"`
	SimilarCount     int             `json:"similarTutorsCount"`
	TimePeriodMonths int             `json:"timePeriodMonths"`
	Factors          json.RawMessage `json:"factors,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	AcceptedPrice    *float64        `json:"acceptedPrice,omitempty"`
	AcceptedAt       *time.Time      `json:"acceptedAt,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
