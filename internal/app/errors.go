package service

import "errors"

var (
	// ErrNotStarted is returned by calls made before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrBackpressure means the log queue refused a record.
	ErrBackpressure = errors.New("log queue is full")
)
