package worker

import "errors"

var (
	ErrMalformedEntry = errors.New("malformed log entry")
	ErrSinkOpen       = errors.New("sink circuit open")
)
