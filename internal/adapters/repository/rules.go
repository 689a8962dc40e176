package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/internal/domain/rules"
	"github.com/okian/tutormarket/pkg/logger"
)

// BasePriceRules returns the rule table ordered by priority.
func (s *Store) BasePriceRules(ctx context.Context) ([]rules.BasePriceRule, error) {
	var rows []BasePriceRule
	if err := s.db.WithContext(ctx).Order("priority, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load base price rules: %w", err)
	}
	out := make([]rules.BasePriceRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, rules.BasePriceRule{
			ID:                     r.ID,
			SubjectCategory:        r.SubjectCategory,
			SessionFormat:          r.SessionFormat,
			BasePricePerHour:       r.BasePricePerHour,
			CredentialBonus:        r.CredentialBonus,
			ExperienceBonusPerYear: r.ExperienceBonusPerYear,
			Priority:               r.Priority,
		})
	}
	return out, nil
}

// SeedRules inserts rs, leaving rows that already exist for the same
// (category, format) untouched. It returns the number of inserted rows.
func (s *Store) SeedRules(ctx context.Context, rs []rules.BasePriceRule) (int64, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	rows := make([]BasePriceRule, 0, len(rs))
	for _, r := range rs {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		format := r.SessionFormat
		if !strings.EqualFold(format, rules.Any) {
			format = profile.NormalizeFormat(format)
		}
		rows = append(rows, BasePriceRule{
			ID:                     id,
			SubjectCategory:        strings.ToLower(r.SubjectCategory),
			SessionFormat:          strings.ToLower(format),
			BasePricePerHour:       r.BasePricePerHour,
			CredentialBonus:        r.CredentialBonus,
			ExperienceBonusPerYear: r.ExperienceBonusPerYear,
			Priority:               r.Priority,
		})
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_category"}, {Name: "session_format"}},
			DoNothing: true,
		}).
		Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("seed base price rules: %w", res.Error)
	}
	s.log.Info(ctx, "base price rules seeded", logger.Int64("inserted", res.RowsAffected), logger.Int("offered", len(rows)))
	return res.RowsAffected, nil
}
