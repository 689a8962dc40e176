// Package seed generates a deterministic synthetic tutor population and
// writes it through the repository models. The same Config always yields the
// same rows, so demo data and load fixtures are reproducible.
package seed

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned for unusable generator settings.
var ErrInvalidConfig = errors.New("invalid seed config")

// Config holds generator settings.
type Config struct {
	Profiles  int       // Number of tutor profiles to generate
	Seed      uint64    // Random seed; equal seeds give equal populations
	Now       time.Time // Reference time; history is generated backwards from it
	Months    int       // How far back enrollments and payments reach
	Workers   int       // Number of concurrent generator workers
	BatchSize int       // Rows per INSERT when writing
}

// Defaults returns a Config sized for a local demo.
func Defaults() Config {
	return Config{
		Profiles:  1500,
		Seed:      42,
		Now:       time.Now().UTC().Truncate(24 * time.Hour),
		Months:    12,
		Workers:   4,
		BatchSize: 500,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	switch {
	case c.Profiles <= 0:
		return fmt.Errorf("%w: profiles must be positive", ErrInvalidConfig)
	case c.Months <= 0:
		return fmt.Errorf("%w: months must be positive", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.Now.IsZero():
		return fmt.Errorf("%w: reference time must be set", ErrInvalidConfig)
	}
	return nil
}

// Stats summarizes a generated population.
type Stats struct {
	Profiles      int           `json:"profiles"`
	Credentials   int           `json:"credentials"`
	Courses       int           `json:"courses"`
	Enrollments   int           `json:"enrollments"`
	Payments      int           `json:"payments"`
	Conversations int           `json:"conversations"`
	Requests      int           `json:"connectionRequests"`
	Duration      time.Duration `json:"duration"`
}
