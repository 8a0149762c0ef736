package service

import (
	"errors"
	"fmt"
)

var (
	// ErrLocationNotFound means neither search nor geocoding matched the requested place.
	ErrLocationNotFound = errors.New("location not found")
	// ErrWeatherService wraps an upstream failure that could not be absorbed by fallback or degradation.
	ErrWeatherService = errors.New("weather service unavailable")
	// ErrConfig means the upstream credential is missing.
	ErrConfig = errors.New("weather service not configured")
	// ErrProcessing means a nominally successful upstream response could not be turned into a record.
	ErrProcessing = errors.New("error processing weather data")
	// ErrInvalidRequest means the caller's input cannot be served.
	ErrInvalidRequest = errors.New("invalid request")
)

// upstreamFailure wraps cause so that both ErrWeatherService and the original client error
// remain visible to errors.Is and errors.As.
func upstreamFailure(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrWeatherService, cause)
}
