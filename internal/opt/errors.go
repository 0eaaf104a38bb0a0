package opt

import "errors"

var (
	ErrInvalidGeometry     = errors.New("location outside service bounds")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrRangeExceeded       = errors.New("range exceeded")
	ErrBatteryInsufficient = errors.New("battery insufficient")
	ErrEmptyInput          = errors.New("empty input")
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrTooManySamples      = errors.New("too many trajectory samples")
)
