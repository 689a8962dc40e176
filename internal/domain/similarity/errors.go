package similarity

import "errors"

var (
	ErrInvalidWeights = errors.New("invalid similarity weights")
	ErrInvalidFloors  = errors.New("invalid similarity floors")
)
