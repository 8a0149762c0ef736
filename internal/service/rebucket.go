package service

import (
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/client"
	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/units"
)

const (
	maxHourly         = 24
	maxDaily          = 7
	fallbackHourly    = 8
	forecastDayLayout = "2006-01-02"
)

// hourlyFromForecast takes the first n 3-hourly entries, which cover roughly the next day.
func hourlyFromForecast(points []client.ForecastPoint, n int) []models.HourlyForecast {
	if len(points) > n {
		points = points[:n]
	}
	out := make([]models.HourlyForecast, 0, len(points))
	for _, p := range points {
		out = append(out, models.HourlyForecast{
			Timestamp:   p.Timestamp,
			Temp:        units.Round(p.Temp),
			Description: p.Description,
			Icon:        p.Icon,
			Pop:         p.Pop,
			Humidity:    p.Humidity,
			WindSpeed:   units.Round1(p.WindSpeed),
		})
	}
	return out
}

type dayBucket struct {
	first   client.ForecastPoint
	maxTemp float64
	minTemp float64
	windSum float64
	count   int
}

// dailyFromForecast groups points by calendar date in the location's UTC offset. Each day
// takes its description, icon, pop and humidity from the first entry of that date and
// aggregates max/min temperature and mean wind over all entries of the date. UV is not
// available from the forecast and is left at zero.
func dailyFromForecast(points []client.ForecastPoint, offset int, n int) []models.DailyForecast {
	var order []string
	buckets := make(map[string]*dayBucket)
	for _, p := range points {
		date := time.Unix(p.Timestamp+int64(offset), 0).UTC().Format(forecastDayLayout)
		b, ok := buckets[date]
		if !ok {
			if len(order) == n {
				continue
			}
			b = &dayBucket{first: p, maxTemp: p.Temp, minTemp: p.Temp}
			buckets[date] = b
			order = append(order, date)
		}
		if p.Temp > b.maxTemp {
			b.maxTemp = p.Temp
		}
		if p.Temp < b.minTemp {
			b.minTemp = p.Temp
		}
		b.windSum += p.WindSpeed
		b.count++
	}

	out := make([]models.DailyForecast, 0, len(order))
	for _, date := range order {
		b := buckets[date]
		out = append(out, models.DailyForecast{
			Timestamp:   b.first.Timestamp,
			TempMax:     units.Round(b.maxTemp),
			TempMin:     units.Round(b.minTemp),
			Description: b.first.Description,
			Icon:        b.first.Icon,
			Pop:         b.first.Pop,
			Humidity:    b.first.Humidity,
			WindSpeed:   units.Round1(b.windSum / float64(b.count)),
		})
	}
	return out
}
