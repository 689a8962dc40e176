// Package scoring computes the additive multi-factor ranking score used to
// order profiles: five positive sub-scores and one reliability penalty.
package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Caps holds the per-component ceilings and the penalty floor.
type Caps struct {
	InterestMatch  int `koanf:"interest_match" json:"interestMatch"`
	StudentsServed int `koanf:"students_served" json:"studentsServed"`
	CompletionRate int `koanf:"completion_rate" json:"completionRate"`
	ResponseTime   int `koanf:"response_time" json:"responseTime"`
	Tenure         int `koanf:"tenure" json:"tenure"`
	PenaltyFloor   int `koanf:"penalty_floor" json:"penaltyFloor"`
}

// DefaultCaps returns the standard ceilings.
func DefaultCaps() Caps {
	return Caps{
		InterestMatch:  150,
		StudentsServed: 100,
		CompletionRate: 80,
		ResponseTime:   60,
		Tenure:         50,
		PenaltyFloor:   -100,
	}
}

// Interest match bonuses.
const (
	perfectMatchBonus  = 100
	partialMatchBonus  = 50
	hobbyMatchBonus    = 50
	compoundThreeBonus = 50
	compoundTwoBonus   = 25
)

// Tenure components.
const (
	daysPerMonth        = 30
	maxTenureMonths     = 30
	pointsPerCredential = 5
	maxCredentialPoints = 20
)

// Penalty components.
const (
	latePaymentPenalty   = 5
	missedPaymentPenalty = 15
	componentPenaltyCap  = 50
	debtUnitsPerPoint    = 100
	overduePenalty       = 30
	overdueDaysThreshold = 60
	delistDebtThreshold  = 5000
	delistMissedMinimum  = 2
)

// Offering is one course the profile teaches.
type Offering struct {
	CourseID string   `json:"courseId"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
}

// LatencySample is an average response time over Count observations.
type LatencySample struct {
	AvgMinutes float64 `json:"avgMinutes"`
	Count      int     `json:"count"`
}

// PenaltyState summarizes payment history.
type PenaltyState struct {
	LatePayments    int             `json:"latePayments"`
	MissedPayments  int             `json:"missedPayments"`
	OutstandingDebt decimal.Decimal `json:"outstandingDebt"`
	MaxDaysOverdue  int             `json:"maxDaysOverdue"`
}

// Inputs are the stored aggregates the score is computed from.
type Inputs struct {
	ProfileID            string        `json:"profileId"`
	Offerings            []Offering    `json:"offerings"`
	Hobbies              []string      `json:"hobbies"`
	StudentsServed       int           `json:"studentsServed"`
	CompletedEnrollments int           `json:"completedEnrollments"`
	TotalEnrollments     int           `json:"totalEnrollments"`
	MessageLatency       LatencySample `json:"messageLatency"`
	RequestLatency       LatencySample `json:"requestLatency"`
	AccountAgeDays       int           `json:"accountAgeDays"`
	CredentialCount      int           `json:"credentialCount"`
	Penalty              PenaltyState  `json:"penalty"`
}

// InterestScore explains the interest/hobby component.
type InterestScore struct {
	Score            int      `json:"score"`
	Perfect          bool     `json:"perfect"`
	Partial          bool     `json:"partial"`
	HobbyMatch       bool     `json:"hobbyMatch"`
	CompoundBonus    int      `json:"compoundBonus"`
	MatchedInterests []string `json:"matchedInterests"`
	MatchedHobbies   []string `json:"matchedHobbies"`
	MatchedCourse    string   `json:"matchedCourse,omitempty"`
}

// StepScore explains a step-function component.
type StepScore struct {
	Score  int     `json:"score"`
	Value  float64 `json:"value"`
	Tier   string  `json:"tier"`
	NoData bool    `json:"noData,omitempty"`
}

// TenureScore explains the tenure component.
type TenureScore struct {
	Score            int `json:"score"`
	Months           int `json:"months"`
	MonthPoints      int `json:"monthPoints"`
	CredentialPoints int `json:"credentialPoints"`
}

// PenaltyScore explains the reliability penalty. Score is zero or negative.
type PenaltyScore struct {
	Score      int  `json:"score"`
	Late       int  `json:"late"`
	Missed     int  `json:"missed"`
	Debt       int  `json:"debt"`
	Overdue    int  `json:"overdue"`
	Overridden bool `json:"overridden"`
}

// Breakdown exposes every sub-score.
type Breakdown struct {
	InterestMatch  InterestScore `json:"interestMatch"`
	StudentsServed StepScore     `json:"studentsServed"`
	CompletionRate StepScore     `json:"completionRate"`
	ResponseTime   StepScore     `json:"responseTime"`
	Tenure         TenureScore   `json:"tenure"`
	Penalty        PenaltyScore  `json:"penalty"`
}

// Result is a profile's ranking score.
type Result struct {
	ProfileID string    `json:"profileId"`
	Total     int       `json:"total"`
	Breakdown Breakdown `json:"breakdown"`
}

// Reader loads ranking inputs for one profile.
type Reader interface {
	RankingInputs(ctx context.Context, profileID string) (Inputs, error)
}

type step struct {
	min   float64
	score int
	tier  string
}

var (
	studentSteps = []step{
		{100, 100, ">=100"}, {50, 75, ">=50"}, {20, 50, ">=20"},
		{10, 30, ">=10"}, {5, 15, ">=5"}, {1, 5, ">=1"},
	}
	completionSteps = []step{
		{95, 80, ">=95%"}, {90, 70, ">=90%"}, {85, 60, ">=85%"},
		{80, 50, ">=80%"}, {75, 40, ">=75%"}, {70, 30, ">=70%"},
	}
	// response steps are upper bounds in minutes
	responseSteps = []step{
		{5, 60, "<5m"}, {15, 50, "<15m"}, {30, 40, "<30m"},
		{60, 30, "<1h"}, {120, 20, "<2h"}, {360, 10, "<6h"},
	}
)

// Score computes the ranking score from inputs. It never fails.
func Score(caps Caps, in Inputs, interests, hobbies []string) Result {
	b := Breakdown{
		InterestMatch:  interestMatch(in, interests, hobbies),
		StudentsServed: studentsServed(in.StudentsServed),
		CompletionRate: completionRate(in.CompletedEnrollments, in.TotalEnrollments),
		ResponseTime:   responseTime(in.MessageLatency, in.RequestLatency),
		Tenure:         tenure(in.AccountAgeDays, in.CredentialCount),
		Penalty:        penalty(in.Penalty, caps.PenaltyFloor),
	}
	b.InterestMatch.Score = min(b.InterestMatch.Score, caps.InterestMatch)
	b.StudentsServed.Score = min(b.StudentsServed.Score, caps.StudentsServed)
	b.CompletionRate.Score = min(b.CompletionRate.Score, caps.CompletionRate)
	b.ResponseTime.Score = min(b.ResponseTime.Score, caps.ResponseTime)
	b.Tenure.Score = min(b.Tenure.Score, caps.Tenure)

	total := b.InterestMatch.Score + b.StudentsServed.Score + b.CompletionRate.Score +
		b.ResponseTime.Score + b.Tenure.Score + b.Penalty.Score
	return Result{ProfileID: in.ProfileID, Total: total, Breakdown: b}
}

// interestMatch scans offerings in order and stops at the first offering
// that yields a perfect (name) match.
func interestMatch(in Inputs, interests, hobbies []string) InterestScore {
	out := InterestScore{MatchedInterests: []string{}, MatchedHobbies: []string{}}
	seen := map[string]bool{}
	for _, o := range in.Offerings {
		name := strings.ToLower(o.Name)
		for _, raw := range interests {
			interest := strings.ToLower(strings.TrimSpace(raw))
			if interest == "" {
				continue
			}
			switch {
			case strings.Contains(name, interest):
				if !out.Perfect {
					out.MatchedCourse = o.CourseID
				}
				out.Perfect = true
			case looseMatch(o, interest):
				out.Partial = true
			default:
				continue
			}
			if !seen[interest] {
				seen[interest] = true
				out.MatchedInterests = append(out.MatchedInterests, interest)
			}
		}
		if out.Perfect {
			break
		}
	}

	declared := map[string]bool{}
	for _, h := range in.Hobbies {
		declared[strings.ToLower(strings.TrimSpace(h))] = true
	}
	for _, raw := range hobbies {
		h := strings.ToLower(strings.TrimSpace(raw))
		if h != "" && declared[h] && !seen["hobby:"+h] {
			seen["hobby:"+h] = true
			out.HobbyMatch = true
			out.MatchedHobbies = append(out.MatchedHobbies, h)
		}
	}

	switch {
	case out.Perfect:
		out.Score = perfectMatchBonus
		out.Partial = false
	case out.Partial:
		out.Score = partialMatchBonus
	}
	if out.HobbyMatch {
		out.Score += hobbyMatchBonus
	}
	switch distinct := len(out.MatchedInterests) + len(out.MatchedHobbies); {
	case distinct >= 3:
		out.CompoundBonus = compoundThreeBonus
	case distinct == 2:
		out.CompoundBonus = compoundTwoBonus
	}
	out.Score += out.CompoundBonus
	return out
}

func looseMatch(o Offering, interest string) bool {
	if strings.EqualFold(strings.TrimSpace(o.Category), interest) {
		return true
	}
	for _, t := range o.Tags {
		if strings.EqualFold(strings.TrimSpace(t), interest) {
			return true
		}
	}
	return false
}

func atLeast(v float64, steps []step) StepScore {
	for _, s := range steps {
		if v >= s.min {
			return StepScore{Score: s.score, Value: v, Tier: s.tier}
		}
	}
	return StepScore{Value: v, Tier: "none"}
}

func studentsServed(n int) StepScore {
	return atLeast(float64(n), studentSteps)
}

func completionRate(completed, total int) StepScore {
	if total <= 0 {
		return StepScore{NoData: true, Tier: "no data"}
	}
	rate := float64(completed) / float64(total) * 100
	s := atLeast(rate, completionSteps)
	if s.Score == 0 {
		s.Score, s.Tier = 10, "<70%"
	}
	return s
}

func responseTime(a, b LatencySample) StepScore {
	n := a.Count + b.Count
	if n <= 0 {
		return StepScore{NoData: true, Tier: "no data"}
	}
	avg := (a.AvgMinutes*float64(a.Count) + b.AvgMinutes*float64(b.Count)) / float64(n)
	for _, s := range responseSteps {
		if avg < s.min {
			return StepScore{Score: s.score, Value: avg, Tier: s.tier}
		}
	}
	return StepScore{Score: 5, Value: avg, Tier: ">=6h"}
}

func tenure(accountAgeDays, credentials int) TenureScore {
	months := max(accountAgeDays, 0) / daysPerMonth
	t := TenureScore{
		Months:           months,
		MonthPoints:      min(months, maxTenureMonths),
		CredentialPoints: min(max(credentials, 0)*pointsPerCredential, maxCredentialPoints),
	}
	t.Score = t.MonthPoints + t.CredentialPoints
	return t
}

// penalty applies the per-component caps, the overdue flat charge and the
// floor, then the delisting override, which always wins.
func penalty(p PenaltyState, floor int) PenaltyScore {
	out := PenaltyScore{
		Late:   -min(max(p.LatePayments, 0)*latePaymentPenalty, componentPenaltyCap),
		Missed: -min(max(p.MissedPayments, 0)*missedPaymentPenalty, componentPenaltyCap),
	}
	if p.OutstandingDebt.IsPositive() {
		units := p.OutstandingDebt.Div(decimal.NewFromInt(debtUnitsPerPoint)).Floor().IntPart()
		out.Debt = -int(math.Min(float64(units), componentPenaltyCap))
	}
	if p.MaxDaysOverdue > overdueDaysThreshold {
		out.Overdue = -overduePenalty
	}
	out.Score = max(out.Late+out.Missed+out.Debt+out.Overdue, floor)

	if p.OutstandingDebt.GreaterThan(decimal.NewFromInt(delistDebtThreshold)) && p.MissedPayments >= delistMissedMinimum {
		out.Score = floor
		out.Overridden = true
	}
	return out
}
