package session

import "errors"

var (
	// ErrValidation is returned when required user input is missing. No
	// request is sent.
	ErrValidation = errors.New("validation error")
	// ErrPrecondition is returned when an action is invoked out of order.
	ErrPrecondition = errors.New("precondition failed")
)
