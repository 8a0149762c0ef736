package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")

	// ErrMalformedPayload means a 2xx response could not be decoded or lacked a required field.
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// ErrorKind classifies an UpstreamError.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindHTTPStatus  ErrorKind = "http_status"
	KindTimeout     ErrorKind = "timeout"
	KindCircuitOpen ErrorKind = "circuit_open"
)

// UpstreamError is returned for any failed provider call: transport failure, timeout,
// non-2xx status, or a breaker refusing the call. A success result is never partially populated.
type UpstreamError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s: %s HTTP %d: %s", e.Endpoint, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Endpoint, e.Kind, e.Message)
}

// Unwrap exposes both the status sentinel and the underlying cause to errors.Is.
func (e *UpstreamError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *UpstreamError) sentinel() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case http.StatusNotFound:
		return ErrLocationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return ErrUpstreamFailure
}

// PayloadError reports a nominally successful response that could not be used.
// Field names the missing required field, or is empty when the body failed to decode.
type PayloadError struct {
	Endpoint string
	Field    string
	Err      error
}

func (e *PayloadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %v: missing %s", e.Endpoint, ErrMalformedPayload, e.Field)
	}
	return fmt.Sprintf("%s: %v: %v", e.Endpoint, ErrMalformedPayload, e.Err)
}

func (e *PayloadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedPayload, e.Err}
	}
	return []error{ErrMalformedPayload}
}
