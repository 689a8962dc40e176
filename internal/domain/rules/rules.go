// Package rules resolves a base price from the configured rule table when
// market comparables cannot be used.
package rules

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/okian/tutormarket/pkg/logger"
	"github.com/okian/tutormarket/pkg/metrics"
)

// Any matches every category or format.
const Any = "all"

// DefaultFallbackPrice is returned when no rule, not even the universal one, matches.
const DefaultFallbackPrice = 150

// Match levels, from most to least specific.
const (
	MatchExact     = "category+format"
	MatchCategory  = "category"
	MatchFormat    = "format"
	MatchUniversal = "universal"
	MatchNone      = "none"
)

// BasePriceRule is one administrator-managed pricing row.
type BasePriceRule struct {
	ID                     string          `json:"id"`
	SubjectCategory        string          `json:"subjectCategory"`
	SessionFormat          string          `json:"sessionFormat"`
	BasePricePerHour       decimal.Decimal `json:"basePricePerHour"`
	CredentialBonus        decimal.Decimal `json:"credentialBonus"`
	ExperienceBonusPerYear decimal.Decimal `json:"experienceBonusPerYear"`
	Priority               int             `json:"priority"`
}

// Price computes base + credentialBonus*credentials + experienceBonus*years.
func (r BasePriceRule) Price(credentialCount, experienceYears int) decimal.Decimal {
	return r.BasePricePerHour.
		Add(r.CredentialBonus.Mul(decimal.NewFromInt(int64(credentialCount)))).
		Add(r.ExperienceBonusPerYear.Mul(decimal.NewFromInt(int64(experienceYears))))
}

// Source loads the rule table.
type Source interface {
	BasePriceRules(ctx context.Context) ([]BasePriceRule, error)
}

// Resolution is the outcome of a cascade lookup.
type Resolution struct {
	Price    decimal.Decimal `json:"price"`
	Rule     *BasePriceRule  `json:"rule,omitempty"`
	Match    string          `json:"match"`
	Fallback bool            `json:"fallback"`
}

// Resolver walks the cascade (category,format) -> (category,all) ->
// (all,format) -> (all,all).
type Resolver struct {
	source        Source
	fallbackPrice decimal.Decimal
	log           logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFallbackPrice overrides the last-resort price.
func WithFallbackPrice(p float64) Option {
	return func(r *Resolver) {
		if p > 0 {
			r.fallbackPrice = decimal.NewFromFloat(p)
		}
	}
}

// WithLogger sets the logger used for misconfiguration warnings.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver builds a Resolver over src.
func NewResolver(src Source, opts ...Option) *Resolver {
	r := &Resolver{source: src, fallbackPrice: decimal.NewFromInt(DefaultFallbackPrice)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the price for the first matching rule. Storage failures
// are returned; a missing universal rule is not an error.
func (r *Resolver) Resolve(ctx context.Context, category, format string, credentialCount, experienceYears int) (Resolution, error) {
	table, err := r.source.BasePriceRules(ctx)
	if err != nil {
		return Resolution{}, err
	}
	return r.resolve(ctx, table, category, format, credentialCount, experienceYears)
}

func (r *Resolver) resolve(ctx context.Context, table []BasePriceRule, category, format string, creds, years int) (Resolution, error) {
	category = normalize(category)
	format = normalize(format)

	steps := [][2]string{
		{category, format},
		{category, Any},
		{Any, format},
		{Any, Any},
	}
	seen := make(map[[2]string]bool, len(steps))
	for _, st := range steps {
		if seen[st] {
			continue
		}
		seen[st] = true
		if rule, ok := lookup(table, st[0], st[1]); ok {
			return Resolution{Price: rule.Price(creds, years), Rule: &rule, Match: matchLevel(st[0], st[1])}, nil
		}
	}

	metrics.RecordMisconfiguration()
	if r.log != nil {
		r.log.Warn(ctx, "universal base price rule missing, using fallback price",
			logger.String("category", category),
			logger.String("format", format),
			logger.String("price", r.fallbackPrice.String()))
	}
	return Resolution{Price: r.fallbackPrice, Match: MatchNone, Fallback: true}, nil
}

func matchLevel(category, format string) string {
	switch {
	case category != Any && format != Any:
		return MatchExact
	case category != Any:
		return MatchCategory
	case format != Any:
		return MatchFormat
	}
	return MatchUniversal
}

// lookup returns the rule with the smallest priority value for the exact pair.
func lookup(table []BasePriceRule, category, format string) (BasePriceRule, bool) {
	var hits []BasePriceRule
	for _, rule := range table {
		if normalize(rule.SubjectCategory) == category && normalize(rule.SessionFormat) == format {
			hits = append(hits, rule)
		}
	}
	if len(hits) == 0 {
		return BasePriceRule{}, false
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Priority < hits[j].Priority })
	return hits[0], true
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Any
	}
	return s
}

// Defaults is the rule table seeded by migrations.
func Defaults() []BasePriceRule {
	mk := func(category, format string, base int64, priority int) BasePriceRule {
		return BasePriceRule{
			SubjectCategory:        category,
			SessionFormat:          format,
			BasePricePerHour:       decimal.NewFromInt(base),
			CredentialBonus:        decimal.NewFromInt(10),
			ExperienceBonusPerYear: decimal.NewFromInt(5),
			Priority:               priority,
		}
	}
	return []BasePriceRule{
		mk(Any, Any, 100, 100),
		mk(Any, "online", 90, 90),
		mk(Any, "in-person", 110, 90),
		mk("mathematics", Any, 120, 50),
	}
}

// Static serves a fixed rule table.
type Static []BasePriceRule

// BasePriceRules implements Source.
func (s Static) BasePriceRules(context.Context) ([]BasePriceRule, error) {
	return s, nil
}
