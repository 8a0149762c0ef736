package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UnitSystem selects the representation of temperatures, speeds and distances.
type UnitSystem string

const (
	Metric   UnitSystem = "metric"
	Imperial UnitSystem = "imperial"
)

// ParseUnitSystem maps a request value to a UnitSystem. Empty input means metric.
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch UnitSystem(strings.ToLower(strings.TrimSpace(s))) {
	case "", Metric:
		return Metric, nil
	case Imperial:
		return Imperial, nil
	}
	return "", fmt.Errorf("unknown unit system %q", s)
}

// Labels returns the temperature, speed and distance labels for the unit system.
func (u UnitSystem) Labels() (temp, speed, distance string) {
	if u == Imperial {
		return "°F", "mph", "miles"
	}
	return "°C", "km/h", "km"
}

// Location identifies a point by coordinates. Name is advisory and never part of identity.
type Location struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name,omitempty"`
}

// unavailable is the JSON form of a visibility reading the upstream did not report.
const unavailable = "N/A"

// Visibility is a distance reading that may be missing upstream.
type Visibility struct {
	Value     int
	Available bool
}

// VisibilityOf returns an available reading.
func VisibilityOf(v int) Visibility {
	return Visibility{Value: v, Available: true}
}

func (v Visibility) MarshalJSON() ([]byte, error) {
	if !v.Available {
		return json.Marshal(unavailable)
	}
	return []byte(strconv.Itoa(v.Value)), nil
}

func (v *Visibility) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Visibility{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != unavailable {
			return fmt.Errorf("visibility: unexpected string %q", s)
		}
		*v = Visibility{}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("visibility: %w", err)
	}
	*v = VisibilityOf(int(n))
	return nil
}

// CurrentConditions is the "current" block of a WeatherRecord.
type CurrentConditions struct {
	City           string     `json:"city"`
	Country        string     `json:"country"`
	Temp           int        `json:"temp"`
	FeelsLike      int        `json:"feels_like"`
	Humidity       int        `json:"humidity"`
	Pressure       int        `json:"pressure"`
	WindSpeed      float64    `json:"wind_speed"`
	WeatherMain    string     `json:"weather_main"`
	Description    string     `json:"description"`
	Icon           string     `json:"icon"`
	Visibility     Visibility `json:"visibility"`
	VisibilityUnit string     `json:"visibility_unit"`
	Sunrise        string     `json:"sunrise"`
	Sunset         string     `json:"sunset"`
	Timezone       int        `json:"timezone"`
	UVIndex        float64    `json:"uv_index"`
	UVInfo         UVInfo     `json:"uv_info"`
	LocalTime      string     `json:"local_time"`
	IsDay          bool       `json:"is_day"`
	TempUnit       string     `json:"temp_unit"`
	SpeedUnit      string     `json:"speed_unit"`
	Lat            float64    `json:"lat"`
	Lon            float64    `json:"lon"`
}

// HourlyForecast is one entry of the hourly sequence.
type HourlyForecast struct {
	Timestamp   int64   `json:"dt"`
	Temp        int     `json:"temp"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Pop         int     `json:"pop"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// DailyForecast is one entry of the daily sequence.
type DailyForecast struct {
	Timestamp   int64   `json:"dt"`
	TempMax     int     `json:"temp_max"`
	TempMin     int     `json:"temp_min"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Pop         int     `json:"pop"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	UVIndex     float64 `json:"uvi"`
}

// AirQuality is the optional air quality block.
type AirQuality struct {
	AQI         int                `json:"aqi"`
	Level       string             `json:"level"`
	Color       string             `json:"color"`
	Description string             `json:"description"`
	Components  map[string]float64 `json:"components"`
}

// Alert is a severe-weather alert from the one-call bundle.
type Alert struct {
	Event       string `json:"event"`
	Description string `json:"description"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	Severity    string `json:"severity"`
}

// WeatherRecord is the canonical normalized unit served to clients and held by the cache.
// Records held by the cache are always metric.
type WeatherRecord struct {
	Current    CurrentConditions `json:"current"`
	Hourly     []HourlyForecast  `json:"hourly"`
	Daily      []DailyForecast   `json:"daily"`
	AirQuality *AirQuality       `json:"air_quality"`
	Alerts     []Alert           `json:"alerts"`
}

// Clone returns a deep copy; the result shares no slices, maps or pointers with r.
func (r WeatherRecord) Clone() WeatherRecord {
	out := r
	if r.Hourly != nil {
		out.Hourly = append([]HourlyForecast(nil), r.Hourly...)
	}
	if r.Daily != nil {
		out.Daily = append([]DailyForecast(nil), r.Daily...)
	}
	if r.Alerts != nil {
		out.Alerts = append([]Alert(nil), r.Alerts...)
	}
	if r.AirQuality != nil {
		aq := *r.AirQuality
		if r.AirQuality.Components != nil {
			aq.Components = make(map[string]float64, len(r.AirQuality.Components))
			for k, v := range r.AirQuality.Components {
				aq.Components[k] = v
			}
		}
		out.AirQuality = &aq
	}
	return out
}
