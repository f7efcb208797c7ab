package ed247

import (
	"github.com/c360/ed247/errors"
)

// Status collapses the result of a public operation into the ED247 status codes
type Status int

// Status codes
const (
	StatusSuccess Status = iota
	StatusFailure
	StatusTimeout
	StatusNoData
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusNoData:
		return "NODATA"
	default:
		return "UNKNOWN"
	}
}

// StatusOf maps an error returned by this module to its status code.
// Timeouts and empty stacks are normal outcomes; anything else is a failure.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, errors.ErrTimeout):
		return StatusTimeout
	case errors.Is(err, errors.ErrNoData):
		return StatusNoData
	default:
		return StatusFailure
	}
}
