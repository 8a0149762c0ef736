package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/units"
)

const (
	clockLayout     = "03:04 PM"
	localTimeLayout = "2006-01-02 15:04:05"
	notAvailable    = "N/A"

	defaultAlertEvent    = "Weather Alert"
	defaultAlertSeverity = "moderate"
)

// OneCallBundle is the normalized one-call response: metric current conditions
// (without city or country) plus every hourly, daily and alert entry the provider sent.
type OneCallBundle struct {
	Current models.CurrentConditions
	Hourly  []models.HourlyForecast
	Daily   []models.DailyForecast
	Alerts  []models.Alert
}

// ForecastPoint is one 3-hourly fallback forecast entry. Temp is in °C and WindSpeed
// in km/h, both unrounded so per-day aggregates round once.
type ForecastPoint struct {
	Timestamp   int64
	Temp        float64
	Humidity    int
	WindSpeed   float64
	Pop         int
	Description string
	Icon        string
}

// ForecastSeries is the flat chronological fallback forecast.
type ForecastSeries struct {
	City           string
	Country        string
	TimezoneOffset int
	Points         []ForecastPoint
}

// FetchPrimary calls the one-call endpoint.
func (c *OpenWeatherClient) FetchPrimary(ctx context.Context, loc models.Location) (OneCallBundle, error) {
	params := coordParams(loc)
	params.Set("units", "metric")
	params.Set("exclude", "minutely")

	var resp oneCallResponse
	if err := c.get(ctx, endpointOneCall, params, &resp); err != nil {
		return OneCallBundle{}, err
	}

	cur := resp.Current
	if cur.Temp == nil {
		return OneCallBundle{}, &PayloadError{Endpoint: endpointOneCall.name, Field: "current.temp"}
	}
	cond, ok := firstCondition(cur.Weather)
	if !ok {
		return OneCallBundle{}, &PayloadError{Endpoint: endpointOneCall.name, Field: "current.description"}
	}

	offset := resp.TimezoneOffset
	tempUnit, speedUnit, distUnit := models.Metric.Labels()
	bundle := OneCallBundle{
		Current: models.CurrentConditions{
			Temp:           units.Round(*cur.Temp),
			FeelsLike:      units.Round(cur.FeelsLike),
			Humidity:       cur.Humidity,
			Pressure:       cur.Pressure,
			WindSpeed:      kmh(cur.WindSpeed),
			WeatherMain:    cond.Main,
			Description:    titleCase(cond.Description),
			Icon:           cond.Icon,
			Visibility:     visibility(cur.Visibility),
			VisibilityUnit: distUnit,
			Sunrise:        formatClock(cur.Sunrise, offset),
			Sunset:         formatClock(cur.Sunset, offset),
			Timezone:       offset,
			UVIndex:        cur.UVI,
			UVInfo:         models.UVCategory(cur.UVI),
			LocalTime:      localTime(c.now(), offset),
			IsDay:          isDay(cur.Dt, cur.Sunrise, cur.Sunset),
			TempUnit:       tempUnit,
			SpeedUnit:      speedUnit,
			Lat:            loc.Lat,
			Lon:            loc.Lon,
		},
		Hourly: make([]models.HourlyForecast, 0, len(resp.Hourly)),
		Daily:  make([]models.DailyForecast, 0, len(resp.Daily)),
		Alerts: make([]models.Alert, 0, len(resp.Alerts)),
	}

	for _, h := range resp.Hourly {
		hc, _ := firstCondition(h.Weather)
		bundle.Hourly = append(bundle.Hourly, models.HourlyForecast{
			Timestamp:   h.Dt,
			Temp:        units.Round(h.Temp),
			Description: titleCase(hc.Description),
			Icon:        hc.Icon,
			Pop:         percent(h.Pop),
			Humidity:    h.Humidity,
			WindSpeed:   kmh(h.WindSpeed),
		})
	}
	for _, d := range resp.Daily {
		dc, _ := firstCondition(d.Weather)
		bundle.Daily = append(bundle.Daily, models.DailyForecast{
			Timestamp:   d.Dt,
			TempMax:     units.Round(d.Temp.Max),
			TempMin:     units.Round(d.Temp.Min),
			Description: titleCase(dc.Description),
			Icon:        dc.Icon,
			Pop:         percent(d.Pop),
			Humidity:    d.Humidity,
			WindSpeed:   kmh(d.WindSpeed),
			UVIndex:     d.UVI,
		})
	}
	for _, a := range resp.Alerts {
		event := a.Event
		if event == "" {
			event = defaultAlertEvent
		}
		bundle.Alerts = append(bundle.Alerts, models.Alert{
			Event:       event,
			Description: a.Description,
			Start:       a.Start,
			End:         a.End,
			Severity:    defaultAlertSeverity,
		})
	}
	return bundle, nil
}

// FetchFallbackCurrent calls the current-weather endpoint by coordinates.
// UV is not reported by this endpoint and is left at zero.
func (c *OpenWeatherClient) FetchFallbackCurrent(ctx context.Context, loc models.Location) (models.CurrentConditions, error) {
	params := coordParams(loc)
	params.Set("units", "metric")
	cur, err := c.fetchCurrent(ctx, params)
	if err != nil {
		return models.CurrentConditions{}, err
	}
	cur.Lat, cur.Lon = loc.Lat, loc.Lon
	return cur, nil
}

// FetchCurrentByName calls the current-weather endpoint with a free-text city name.
func (c *OpenWeatherClient) FetchCurrentByName(ctx context.Context, city string) (models.CurrentConditions, error) {
	params := url.Values{}
	params.Set("q", city)
	params.Set("units", "metric")
	return c.fetchCurrent(ctx, params)
}

func (c *OpenWeatherClient) fetchCurrent(ctx context.Context, params url.Values) (models.CurrentConditions, error) {
	var resp currentResponse
	if err := c.get(ctx, endpointCurrent, params, &resp); err != nil {
		return models.CurrentConditions{}, err
	}
	if resp.Main.Temp == nil {
		return models.CurrentConditions{}, &PayloadError{Endpoint: endpointCurrent.name, Field: "current.temp"}
	}
	cond, ok := firstCondition(resp.Weather)
	if !ok {
		return models.CurrentConditions{}, &PayloadError{Endpoint: endpointCurrent.name, Field: "current.description"}
	}

	offset := resp.Timezone
	tempUnit, speedUnit, distUnit := models.Metric.Labels()
	return models.CurrentConditions{
		City:           resp.Name,
		Country:        resp.Sys.Country,
		Temp:           units.Round(*resp.Main.Temp),
		FeelsLike:      units.Round(resp.Main.FeelsLike),
		Humidity:       resp.Main.Humidity,
		Pressure:       resp.Main.Pressure,
		WindSpeed:      kmh(resp.Wind.Speed),
		WeatherMain:    cond.Main,
		Description:    titleCase(cond.Description),
		Icon:           cond.Icon,
		Visibility:     visibility(resp.Visibility),
		VisibilityUnit: distUnit,
		Sunrise:        formatClock(resp.Sys.Sunrise, offset),
		Sunset:         formatClock(resp.Sys.Sunset, offset),
		Timezone:       offset,
		UVInfo:         models.UVCategory(0),
		LocalTime:      localTime(c.now(), offset),
		IsDay:          isDay(resp.Dt, resp.Sys.Sunrise, resp.Sys.Sunset),
		TempUnit:       tempUnit,
		SpeedUnit:      speedUnit,
		Lat:            resp.Coord.Lat,
		Lon:            resp.Coord.Lon,
	}, nil
}

// FetchFallbackForecast calls the 5 day / 3 hour forecast endpoint.
func (c *OpenWeatherClient) FetchFallbackForecast(ctx context.Context, loc models.Location) (ForecastSeries, error) {
	params := coordParams(loc)
	params.Set("units", "metric")

	var resp forecastResponse
	if err := c.get(ctx, endpointForecast, params, &resp); err != nil {
		return ForecastSeries{}, err
	}

	series := ForecastSeries{
		City:           resp.City.Name,
		Country:        resp.City.Country,
		TimezoneOffset: resp.City.Timezone,
		Points:         make([]ForecastPoint, 0, len(resp.List)),
	}
	for _, e := range resp.List {
		cond, _ := firstCondition(e.Weather)
		series.Points = append(series.Points, ForecastPoint{
			Timestamp:   e.Dt,
			Temp:        e.Main.Temp,
			Humidity:    e.Main.Humidity,
			WindSpeed:   e.Wind.Speed * 3.6,
			Pop:         percent(e.Pop),
			Description: titleCase(cond.Description),
			Icon:        cond.Icon,
		})
	}
	return series, nil
}

// FetchAirQuality calls the air pollution endpoint.
func (c *OpenWeatherClient) FetchAirQuality(ctx context.Context, loc models.Location) (models.AirQuality, error) {
	var resp airPollutionResponse
	if err := c.get(ctx, endpointAirQuality, coordParams(loc), &resp); err != nil {
		return models.AirQuality{}, err
	}
	if len(resp.List) == 0 {
		return models.AirQuality{}, &PayloadError{Endpoint: endpointAirQuality.name, Field: "air_quality"}
	}
	entry := resp.List[0]
	return models.NewAirQuality(entry.Main.AQI, entry.Components), nil
}

// ReverseGeocode returns the nearest named place for a coordinate pair.
func (c *OpenWeatherClient) ReverseGeocode(ctx context.Context, loc models.Location) (models.Place, error) {
	params := coordParams(loc)
	params.Set("limit", "1")

	var results []geoResult
	if err := c.get(ctx, endpointGeoReverse, params, &results); err != nil {
		return models.Place{}, err
	}
	if len(results) == 0 {
		return models.Place{}, fmt.Errorf("reverse geocode %s,%s: %w", formatCoord(loc.Lat), formatCoord(loc.Lon), ErrLocationNotFound)
	}
	r := results[0]
	return models.Place{City: r.Name, Country: r.Country, State: r.State, Lat: r.Lat, Lon: r.Lon}, nil
}

// DirectGeocode resolves free text to at most limit places, in provider order.
func (c *OpenWeatherClient) DirectGeocode(ctx context.Context, query string, limit int) ([]models.CityMatch, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var results []geoResult
	if err := c.get(ctx, endpointGeoDirect, params, &results); err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	matches := make([]models.CityMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.CityMatch{
			Name:    r.Name,
			Country: r.Country,
			State:   r.State,
			Lat:     r.Lat,
			Lon:     r.Lon,
			Display: models.DisplayName(r.Name, r.State, r.Country),
		})
	}
	return matches, nil
}

func firstCondition(ws []owCondition) (owCondition, bool) {
	if len(ws) == 0 {
		return owCondition{}, false
	}
	return ws[0], true
}

// titleCase capitalizes each word. A Caser holds state, so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// kmh converts m/s to km/h at one decimal.
func kmh(ms float64) float64 {
	return units.Round1(ms * 3.6)
}

func percent(p float64) int {
	return units.Round(p * 100)
}

func visibility(metres *float64) models.Visibility {
	if metres == nil {
		return models.Visibility{}
	}
	return models.VisibilityOf(units.Round(*metres / 1000))
}

// isDay is strict on both bounds; all three values are absolute epoch seconds.
func isDay(dt, sunrise, sunset int64) bool {
	return sunrise < dt && dt < sunset
}

func formatClock(ts int64, offset int) string {
	if ts == 0 {
		return notAvailable
	}
	return time.Unix(ts, 0).In(time.FixedZone("", offset)).Format(clockLayout)
}

func localTime(now time.Time, offset int) string {
	return now.In(time.FixedZone("", offset)).Format(localTimeLayout)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
