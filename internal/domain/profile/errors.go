package profile

import "errors"

// ErrNotFound is returned by readers for unknown profiles.
var ErrNotFound = errors.New("profile not found")
