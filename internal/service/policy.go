package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// Field names used by the policy table and the client's PayloadError.
const (
	fieldAirQuality  = "air_quality"
	fieldCity        = "current.city"
	fieldUVIndex     = "current.uv_index"
	fieldTemp        = "current.temp"
	fieldDescription = "current.description"
)

const unknownLocation = "Unknown Location"

type fieldAction int

const (
	degrade fieldAction = iota
	escalate
)

type fieldPolicy struct {
	action   fieldAction
	fallback func(*models.WeatherRecord)
}

// fieldPolicies decides, per record field, whether a failure to obtain it degrades the
// field to a default or aborts the request. Fields not listed escalate.
var fieldPolicies = map[string]fieldPolicy{
	fieldAirQuality: {action: degrade, fallback: func(r *models.WeatherRecord) {
		r.AirQuality = nil
	}},
	fieldCity: {action: degrade, fallback: func(r *models.WeatherRecord) {
		r.Current.City = unknownLocation
	}},
	fieldUVIndex: {action: degrade, fallback: func(r *models.WeatherRecord) {
		r.Current.UVIndex = 0
		r.Current.UVInfo = models.UVCategory(0)
	}},
	fieldTemp:        {action: escalate},
	fieldDescription: {action: escalate},
}

// fieldFailure applies the policy for field. It returns nil when the field was degraded
// and an ErrProcessing error when the request must fail.
func (s *WeatherService) fieldFailure(ctx context.Context, rec *models.WeatherRecord, field string, cause error) error {
	logger := observability.LoggerFrom(ctx, s.logger)
	p, ok := fieldPolicies[field]
	if !ok || p.action == escalate || rec == nil {
		logger.Error("required weather field unavailable", zap.String("field", field), zap.Error(cause))
		return fmt.Errorf("%w: %s: %w", ErrProcessing, fieldLabel(field), cause)
	}
	p.fallback(rec)
	observability.WeatherDegradedFieldsTotal.WithLabelValues(field).Inc()
	logger.Debug("weather field degraded", zap.String("field", field), zap.Error(cause))
	return nil
}

func fieldLabel(field string) string {
	if field == "" {
		return "payload"
	}
	return field
}
