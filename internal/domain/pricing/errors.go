package pricing

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid pricing config")
	ErrInvalidWindow = errors.New("time period out of range")
)
