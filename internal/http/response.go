package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/client"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/service"
	"github.com/kjstillabower/weather-aggregator/internal/validation"
)

// errorBody is the "error" member of every error response.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"requestId"`
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorKind(w, r, status, code, message, "")
}

func writeErrorKind(w http.ResponseWriter, r *http.Request, status int, code, message, kind string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {
			Code:      code,
			Message:   message,
			Kind:      kind,
			RequestID: observability.CorrelationID(r.Context()),
		},
	})
}

// serviceFailure is the HTTP rendering of a service error.
type serviceFailure struct {
	status  int
	code    string
	message string
	kind    string
}

// classify maps service, client and validation errors to a response. Upstream failures
// carry a generic message plus the machine-readable kind, never the raw error.
func classify(err error) serviceFailure {
	switch {
	case errors.Is(err, validation.ErrInvalidInput), errors.Is(err, service.ErrInvalidRequest):
		return serviceFailure{http.StatusBadRequest, "INVALID_REQUEST", err.Error(), ""}
	case errors.Is(err, service.ErrLocationNotFound):
		return serviceFailure{http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found", ""}
	case errors.Is(err, service.ErrConfig):
		return serviceFailure{http.StatusServiceUnavailable, "NOT_CONFIGURED", "Weather API key not configured", ""}
	case errors.Is(err, service.ErrProcessing):
		return serviceFailure{http.StatusBadGateway, "PROCESSING_ERROR", "Error processing weather data", ""}
	case errors.Is(err, service.ErrWeatherService):
		return serviceFailure{http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data", string(client.Kind(err))}
	case errors.Is(err, context.DeadlineExceeded):
		return serviceFailure{http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", string(client.KindTimeout)}
	}
	return serviceFailure{http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", ""}
}

// writeServiceError renders err and logs it. Client errors log at DEBUG, server-side at WARN.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) serviceFailure {
	f := classify(err)
	logger := observability.LoggerFrom(r.Context(), nil)
	fields := []zap.Field{
		zap.String("code", f.code),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err),
	}
	if f.status >= http.StatusInternalServerError {
		logger.Warn("request failed", fields...)
	} else {
		logger.Debug("request rejected", fields...)
	}
	writeErrorKind(w, r, f.status, f.code, f.message, f.kind)
	return f
}
