package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/tutormarket/internal/domain/model"
)

// WriteSuggestion stores r. Rewriting an existing id is a no-op.
func (s *Store) WriteSuggestion(ctx context.Context, r model.SuggestionRecord) error {
	row := PriceSuggestionLog{
		ID:               r.ID,
		ProfileID:        r.ProfileID,
		SuggestedPrice:   decimal.NewFromFloat(r.SuggestedPrice),
		MarketAverage:    decimal.NewFromFloat(r.MarketAverage),
		MinPrice:         decimal.NewFromFloat(r.MinPrice),
		MaxPrice:         decimal.NewFromFloat(r.MaxPrice),
		Confidence:       r.Confidence,
		Source:           r.Source,
		TutorCount:       r.TutorCount,
		SimilarCount:     r.SimilarCount,
		TimePeriodMonths: r.TimePeriodMonths,
		Factors:          string(r.Factors),
		CreatedAt:        r.CreatedAt,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("write suggestion %s: %w", r.ID, err)
	}
	return nil
}

// WriteAcceptance records the accepted price on an existing suggestion.
func (s *Store) WriteAcceptance(ctx context.Context, r model.AcceptanceRecord) error {
	res := s.db.WithContext(ctx).Model(&PriceSuggestionLog{}).
		Where("id = ?", r.SuggestionID).
		Updates(map[string]any{
			"accepted_price": decimal.NewNullDecimal(decimal.NewFromFloat(r.AcceptedPrice)),
			"accepted_at":    r.AcceptedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("write acceptance %s: %w", r.SuggestionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %w: %s", model.ErrRejected, ErrSuggestionNotFound, r.SuggestionID)
	}
	return nil
}

// Suggestion loads one logged suggestion with its acceptance, if any.
func (s *Store) Suggestion(ctx context.Context, id string) (PriceSuggestionLog, error) {
	var row PriceSuggestionLog
	err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PriceSuggestionLog{}, fmt.Errorf("%w: %s", ErrSuggestionNotFound, id)
	}
	if err != nil {
		return PriceSuggestionLog{}, fmt.Errorf("load suggestion: %w", err)
	}
	return row, nil
}
