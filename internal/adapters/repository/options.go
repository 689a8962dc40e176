package repository

import (
	"time"

	"github.com/okian/tutormarket/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets the logger used by the store and by gorm.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used to derive ages and overdue days.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSlowThreshold sets the duration above which queries are logged at warn.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.slow = d
		}
	}
}
