package signals

import "errors"

// Store errors.
var (
	ErrSignalNotFound = errors.New("signal not found")
	ErrSignalExists   = errors.New("signal already exists")
)

// Validation errors surfaced to the caller as 400-equivalent responses.
var (
	ErrMissingFields   = errors.New("missing required fields")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrNoCoordinates   = errors.New("coordinates required and address could not be resolved")
)
