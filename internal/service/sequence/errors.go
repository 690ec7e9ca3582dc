package sequence

import "errors"

// Sentinel errors for the sequence service layer.
var (
	ErrNotFound       = errors.New("sequence not found")
	ErrInvalidTrigger = errors.New("unknown trigger type")
	ErrInvalidStep    = errors.New("invalid step definition")
	ErrHasEnrollments = errors.New("sequence has active enrollments")
)
