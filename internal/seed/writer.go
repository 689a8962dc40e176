package seed

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/okian/tutormarket/pkg/logger"
)

// Write inserts pop in one transaction, batchSize rows per statement.
func Write(ctx context.Context, db *gorm.DB, pop *Population, batchSize int) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tables := []struct {
			name string
			rows any
			n    int
		}{
			{"tutor_profiles", pop.Profiles, len(pop.Profiles)},
			{"tutor_credentials", pop.Credentials, len(pop.Credentials)},
			{"tutor_grade_levels", pop.GradeLevels, len(pop.GradeLevels)},
			{"courses", pop.Courses, len(pop.Courses)},
			{"enrollments", pop.Enrollments, len(pop.Enrollments)},
			{"payments", pop.Payments, len(pop.Payments)},
			{"conversations", pop.Conversations, len(pop.Conversations)},
			{"connection_requests", pop.Requests, len(pop.Requests)},
		}
		for _, t := range tables {
			if t.n == 0 {
				continue
			}
			if err := tx.CreateInBatches(t.rows, batchSize).Error; err != nil {
				return fmt.Errorf("insert %s: %w", t.name, err)
			}
		}
		return nil
	})
}

// Run generates a population and writes it.
func Run(ctx context.Context, db *gorm.DB, cfg Config) (Stats, error) {
	log := logger.Get().Named("seed")
	start := time.Now()

	log.Info(ctx, "generating population",
		logger.Int("profiles", cfg.Profiles),
		logger.Int64("seed", int64(cfg.Seed)),
		logger.Int("months", cfg.Months))

	pop, err := Generate(ctx, cfg)
	if err != nil {
		return Stats{}, fmt.Errorf("generate: %w", err)
	}
	if err := Write(ctx, db, pop, cfg.BatchSize); err != nil {
		return Stats{}, fmt.Errorf("write: %w", err)
	}

	stats := pop.Stats()
	stats.Duration = time.Since(start)
	log.Info(ctx, "population written",
		logger.Int("profiles", stats.Profiles),
		logger.Int("courses", stats.Courses),
		logger.Int("enrollments", stats.Enrollments),
		logger.Int("payments", stats.Payments),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}
