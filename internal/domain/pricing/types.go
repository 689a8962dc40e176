package pricing

import (
	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/internal/domain/rules"
	"github.com/okian/tutormarket/internal/domain/similarity"
)

// AlgorithmVersion tags every suggestion with the method that produced it.
const AlgorithmVersion = "market-similarity-v2"

// Sources of a suggestion.
const (
	SourceMarket = "market"
	SourceRules  = "rules"
)

// Fallback reasons.
const (
	ReasonNewEntrant       = "new_entrant"
	ReasonInsufficientData = "insufficient_data"
	ReasonMisconfiguration = "misconfiguration"
)

// Request carries the caller's filters.
type Request struct {
	TimePeriodMonths int      `json:"timePeriodMonths"`
	CourseIDs        []string `json:"courseIds,omitempty"`
	GradeLevels      []string `json:"gradeLevel,omitempty"`
	SessionFormat    string   `json:"sessionFormat,omitempty"`
}

// PriceRange bounds a suggestion. Min and Max are guardrailed; the
// Suggested pair is the band implied by market data alone.
type PriceRange struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	SuggestedMin float64 `json:"suggestedMin"`
	SuggestedMax float64 `json:"suggestedMax"`
}

// Factors explains how a suggestion was produced.
type Factors struct {
	Subject          profile.Subject      `json:"subject"`
	Weights          similarity.Weights   `json:"weights"`
	AlgorithmVersion string               `json:"algorithmVersion"`
	Source           string               `json:"source"`
	Stage            string               `json:"stage,omitempty"`
	Category         string               `json:"category"`
	NewEntrant       bool                 `json:"newEntrant"`
	TrendMultiplier  float64              `json:"trendMultiplier"`
	WeightedMean     float64              `json:"weightedMean,omitempty"`
	Band             float64              `json:"band"`
	FallbackReason   string               `json:"fallbackReason,omitempty"`
	FallbackNote     string               `json:"fallbackNote,omitempty"`
	Rule             *rules.BasePriceRule `json:"rule,omitempty"`
	RuleMatch        string               `json:"ruleMatch,omitempty"`
}

// Suggestion is the engine's answer for one profile.
type Suggestion struct {
	SuggestionID       string     `json:"suggestionId,omitempty"`
	ProfileID          string     `json:"profileId"`
	SuggestedPrice     float64    `json:"suggestedPrice"`
	MarketAverage      float64    `json:"marketAverage"`
	PriceRange         PriceRange `json:"priceRange"`
	TutorCount         int        `json:"tutorCount"`
	SimilarTutorsCount int        `json:"similarTutorsCount"`
	ConfidenceLevel    string     `json:"confidenceLevel"`
	Factors            Factors    `json:"factors"`
	TimePeriodMonths   int        `json:"timePeriodMonths"`
}

// Comparable is one observation scored against the subject.
type Comparable struct {
	profile.Observation
	Similarity float64            `json:"similarity"`
	Similar    bool               `json:"similar"`
	Breakdown  similarity.Factors `json:"breakdown"`
}

// Comparables is the transparency view of the market for one subject.
type Comparables struct {
	Subject          profile.Subject `json:"subject"`
	Stage            string          `json:"stage"`
	Threshold        float64         `json:"threshold"`
	Comparables      []Comparable    `json:"comparables"`
	TimePeriodMonths int             `json:"timePeriodMonths"`
}
