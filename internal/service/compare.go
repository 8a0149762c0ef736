package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/units"
)

const (
	minCompareCities = 2
	maxCompareCities = 4
)

// CityComparison is the current-conditions summary for one compared city.
type CityComparison struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Temp        int     `json:"temp"`
	FeelsLike   int     `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	TempUnit    string  `json:"temp_unit"`
	SpeedUnit   string  `json:"speed_unit"`
}

// CompareWeather fetches current conditions for up to four cities by name. Cities whose
// lookup fails are omitted; the remaining results keep the input order.
func (s *WeatherService) CompareWeather(ctx context.Context, cities []string, want models.UnitSystem) ([]CityComparison, error) {
	if len(cities) < minCompareCities {
		return nil, fmt.Errorf("%w: at least %d cities required for comparison", ErrInvalidRequest, minCompareCities)
	}
	if s.source == nil {
		return nil, ErrConfig
	}
	if len(cities) > maxCompareCities {
		cities = cities[:maxCompareCities]
	}
	want = unitsOrMetric(want)
	logger := observability.LoggerFrom(ctx, s.logger)

	slots := make([]*CityComparison, len(cities))
	var g errgroup.Group
	for i, name := range cities {
		i, name := i, strings.TrimSpace(name)
		if name == "" {
			continue
		}
		g.Go(func() error {
			cur, err := s.source.FetchCurrentByName(ctx, name)
			if err != nil {
				logger.Debug("compare lookup failed", zap.String("city", name), zap.Error(err))
				return nil
			}
			c := comparisonOf(cur, want)
			slots[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	out := make([]CityComparison, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// comparisonOf summarizes metric conditions in the wanted unit system.
func comparisonOf(cur models.CurrentConditions, want models.UnitSystem) CityComparison {
	tempUnit, speedUnit, _ := want.Labels()
	return CityComparison{
		City:        cur.City,
		Country:     cur.Country,
		Temp:        units.Temperature(cur.Temp, models.Metric, want),
		FeelsLike:   units.Temperature(cur.FeelsLike, models.Metric, want),
		Humidity:    cur.Humidity,
		WindSpeed:   units.Speed(cur.WindSpeed, models.Metric, want),
		Description: cur.Description,
		Icon:        cur.Icon,
		TempUnit:    tempUnit,
		SpeedUnit:   speedUnit,
	}
}
