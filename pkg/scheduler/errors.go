package scheduler

import "errors"

var (
	// ErrInvalidArgument is returned when a caller violates an input contract
	ErrInvalidArgument = errors.New("scheduler: invalid argument")
	// ErrMissingRequirement is returned when a member has no session requirement set
	ErrMissingRequirement = errors.New("scheduler: member requirement not set")
	// ErrMalformedTime is returned for clock or date strings that cannot be parsed
	ErrMalformedTime = errors.New("scheduler: malformed time")
)
