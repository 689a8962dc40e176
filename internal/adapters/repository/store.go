// Package repository persists tutor profiles, market data, base-price rules
// and suggestion logs with gorm, and derives the snapshots the pricing and
// ranking engines read.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/okian/tutormarket/pkg/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

const defaultSlowThreshold = 500 * time.Millisecond

// Store is the gorm-backed data access layer.
type Store struct {
	db   *gorm.DB
	log  logger.Logger
	now  func() time.Time
	slow time.Duration
}

// Open connects to driver at dsn.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	s := newStore(opts...)

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSqlite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLog(s.log, s.slow),
		NowFunc:                                  func() time.Time { return s.now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if strings.EqualFold(driver, DriverSqlite) {
		// sqlite allows a single writer; one connection also keeps
		// in-memory databases alive across calls.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	s.db = db
	return s, nil
}

// New wraps an existing connection.
func New(db *gorm.DB, opts ...Option) *Store {
	s := newStore(opts...)
	s.db = db
	return s
}

func newStore(opts ...Option) *Store {
	s := &Store{now: time.Now, slow: defaultSlowThreshold}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("repository")
	}
	return s
}

// DB exposes the underlying connection for seeding and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	s.log.Info(ctx, "schema migrated", logger.Int("tables", len(Models())))
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Stats are row counts reported by the stats endpoint.
type Stats struct {
	Profiles    int64 `json:"profiles"`
	Courses     int64 `json:"courses"`
	Enrollments int64 `json:"enrollments"`
	Suggestions int64 `json:"suggestions"`
	Acceptances int64 `json:"acceptances"`
}

// Stats counts stored rows.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	counts := []struct {
		model any
		dst   *int64
		where string
	}{
		{&TutorProfile{}, &st.Profiles, ""},
		{&Course{}, &st.Courses, ""},
		{&Enrollment{}, &st.Enrollments, ""},
		{&PriceSuggestionLog{}, &st.Suggestions, ""},
		{&PriceSuggestionLog{}, &st.Acceptances, "accepted_at IS NOT NULL"},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return Stats{}, fmt.Errorf("count: %w", err)
		}
	}
	return st, nil
}
