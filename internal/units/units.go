// Package units converts weather records between metric and imperial representations.
package units

import (
	"math"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

const (
	kmhToMph = 0.621371
	mphToKmh = 1.60934
	kmToMi   = 0.621371
)

// Convert returns r expressed in the target unit system. When from == to, r is returned
// as is. Otherwise the result is a deep copy and r is left untouched.
func Convert(r models.WeatherRecord, from, to models.UnitSystem) models.WeatherRecord {
	if from == to {
		return r
	}
	out := r.Clone()

	cur := &out.Current
	cur.Temp = Temperature(cur.Temp, from, to)
	cur.FeelsLike = Temperature(cur.FeelsLike, from, to)
	cur.WindSpeed = Speed(cur.WindSpeed, from, to)
	if cur.Visibility.Available {
		cur.Visibility.Value = Distance(cur.Visibility.Value, from, to)
	}
	cur.TempUnit, cur.SpeedUnit, cur.VisibilityUnit = to.Labels()

	for i := range out.Hourly {
		h := &out.Hourly[i]
		h.Temp = Temperature(h.Temp, from, to)
		h.WindSpeed = Speed(h.WindSpeed, from, to)
	}
	for i := range out.Daily {
		d := &out.Daily[i]
		d.TempMax = Temperature(d.TempMax, from, to)
		d.TempMin = Temperature(d.TempMin, from, to)
		d.WindSpeed = Speed(d.WindSpeed, from, to)
	}
	return out
}

// Temperature converts a whole-degree temperature, rounding to the nearest degree.
func Temperature(v int, from, to models.UnitSystem) int {
	switch {
	case from == models.Metric && to == models.Imperial:
		return Round(float64(v)*9/5 + 32)
	case from == models.Imperial && to == models.Metric:
		return Round((float64(v) - 32) * 5 / 9)
	}
	return v
}

// Speed converts between km/h and mph, rounding to one decimal place.
func Speed(v float64, from, to models.UnitSystem) float64 {
	switch {
	case from == models.Metric && to == models.Imperial:
		return Round1(v * kmhToMph)
	case from == models.Imperial && to == models.Metric:
		return Round1(v * mphToKmh)
	}
	return v
}

// Distance converts between kilometres and miles, rounding to the nearest whole unit.
func Distance(v int, from, to models.UnitSystem) int {
	switch {
	case from == models.Metric && to == models.Imperial:
		return Round(float64(v) * kmToMi)
	case from == models.Imperial && to == models.Metric:
		return Round(float64(v) / kmToMi)
	}
	return v
}

// Round rounds half away from zero to an int.
func Round(v float64) int {
	return int(math.Round(v))
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
