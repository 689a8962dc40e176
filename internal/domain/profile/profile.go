// Package profile holds the attribute snapshots shared by the pricing and
// ranking engines, plus the derivations that turn stored rows into them.
package profile

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Attribute defaults applied when the underlying data is missing.
const (
	DefaultRating          = 2.0
	DefaultGradeComplexity = 7.0
	hoursPerDay            = 24
)

// Session formats.
const (
	FormatOnline   = "online"
	FormatInPerson = "in-person"
	FormatHybrid   = "hybrid"
)

// Subject is a read-only snapshot of one profile's pricing attributes.
type Subject struct {
	ProfileID       string  `json:"profileId"`
	Rating          float64 `json:"rating"`
	CompletionRate  float64 `json:"completionRate"`
	CurrentLoad     int     `json:"currentLoad"`
	CredentialCount int     `json:"credentialCount"`
	ExperienceYears int     `json:"experienceYears"`
	AccountAgeDays  int     `json:"accountAgeDays"`
	Country         string  `json:"country"`
	GradeComplexity float64 `json:"gradeComplexity"`
	SessionFormat   string  `json:"sessionFormat"`
}

// Observation is one peer offering with its observed hourly price.
type Observation struct {
	Subject
	CourseID      string  `json:"courseId"`
	ObservedPrice float64 `json:"observedPrice"`
}

// Raw carries the stored values a Subject is derived from. Nil pointers
// mean "absent" and fall back to the package defaults.
type Raw struct {
	ProfileID            string
	Rating               *float64
	CompletedEnrollments int
	ClosedEnrollments    int
	ActiveEnrollments    int
	CredentialYears      []int
	CreatedAt            time.Time
	Location             string
	GradeLevels          []string
	SessionFormat        string
}

// Derive builds a Subject from raw stored values as of now.
func Derive(raw Raw, now time.Time) Subject {
	s := Subject{
		ProfileID:       raw.ProfileID,
		Rating:          DefaultRating,
		CurrentLoad:     raw.ActiveEnrollments,
		CredentialCount: len(raw.CredentialYears),
		AccountAgeDays:  AccountAgeDays(raw.CreatedAt, now),
		Country:         CountryFromLocation(raw.Location),
		GradeComplexity: GradeComplexity(raw.GradeLevels),
		SessionFormat:   NormalizeFormat(raw.SessionFormat),
	}
	if raw.Rating != nil {
		s.Rating = math.Max(0, math.Min(5, *raw.Rating))
	}
	if raw.ClosedEnrollments > 0 {
		s.CompletionRate = float64(raw.CompletedEnrollments) / float64(raw.ClosedEnrollments)
	}
	for _, y := range raw.CredentialYears {
		if y > 0 {
			s.ExperienceYears += y
		}
	}
	return s
}

// AccountAgeDays returns whole days between createdAt and now, never negative.
func AccountAgeDays(createdAt, now time.Time) int {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	return int(now.Sub(createdAt).Hours() / hoursPerDay)
}

// CountryFromLocation takes the last comma-separated segment of a free-text
// location and upper-cases it: "Bole, Addis Ababa, et" -> "ET".
func CountryFromLocation(location string) string {
	parts := strings.Split(location, ",")
	return strings.ToUpper(strings.TrimSpace(parts[len(parts)-1]))
}

// NormalizeFormat lower-cases a session format and folds common spellings.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case "inperson", "in_person", "in person", "offline", "face-to-face":
		return FormatInPerson
	case "remote", "virtual":
		return FormatOnline
	}
	return f
}

// Ordinal ceiling: 12 numbered grades, then university, then certification.
const (
	UniversityOrdinal    = 13
	CertificationOrdinal = 14
	MaxGradeOrdinal      = CertificationOrdinal
)

// GradeOrdinal maps a grade level label onto 1..14. ok is false for labels
// outside the map.
func GradeOrdinal(level string) (ordinal int, ok bool) {
	l := strings.ToLower(strings.TrimSpace(level))
	switch l {
	case "university", "college", "undergraduate":
		return UniversityOrdinal, true
	case "certification", "professional", "certificate":
		return CertificationOrdinal, true
	}
	l = strings.TrimPrefix(l, "grade")
	l = strings.TrimLeft(l, " _-")
	n, err := strconv.Atoi(l)
	if err != nil || n < 1 || n > 12 {
		return 0, false
	}
	return n, true
}

// GradeComplexity averages the ordinals of the given grade levels. Profiles
// with no recognizable level get DefaultGradeComplexity.
func GradeComplexity(levels []string) float64 {
	sum, n := 0, 0
	for _, lvl := range levels {
		if o, ok := GradeOrdinal(lvl); ok {
			sum += o
			n++
		}
	}
	if n == 0 {
		return DefaultGradeComplexity
	}
	return float64(sum) / float64(n)
}

// ObservationQuery selects peer observations. Empty filters match anything.
type ObservationQuery struct {
	ExcludeProfileID string
	Since            time.Time
	Category         string
	GradeLevels      []string
	SessionFormat    string
}

// Relaxed drops the category and grade filters, keeping the window and format.
func (q ObservationQuery) Relaxed() ObservationQuery {
	q.Category = ""
	q.GradeLevels = nil
	return q
}
