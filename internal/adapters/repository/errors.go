package repository

import (
	"errors"

	"github.com/okian/tutormarket/internal/domain/profile"
)

// Sentinel kinds for storage errors.
var (
	// ErrNotFound is shared with the domain so errors.Is works across layers.
	ErrNotFound           = profile.ErrNotFound
	ErrUnknownDriver      = errors.New("unknown database driver")
	ErrSuggestionNotFound = errors.New("suggestion not found")
)
