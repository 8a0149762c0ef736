package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

const (
	maxFavorites        = 10
	defaultFavoriteName = "Unknown"
)

// Favorite is one saved location in a bulk request. Entries without both coordinates are skipped.
type Favorite struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// FavoriteWeather is the weather for one favorite.
type FavoriteWeather struct {
	Name   string               `json:"name"`
	Lat    float64              `json:"lat"`
	Lon    float64              `json:"lon"`
	Data   models.WeatherRecord `json:"data"`
	Cached bool                 `json:"cached"`
}

// FavoritesResult is the response of BulkFavorites.
type FavoritesResult struct {
	Results      []FavoriteWeather `json:"results"`
	CachedCount  int               `json:"cached_count"`
	TotalCount   int               `json:"total_count"`
	APICallsMade int               `json:"api_calls_made"`
}

// BulkFavorites returns weather for up to ten favorites. A failure for one favorite omits
// it from the results and never fails the batch.
func (s *WeatherService) BulkFavorites(ctx context.Context, favorites []Favorite, want models.UnitSystem) (FavoritesResult, error) {
	if len(favorites) == 0 {
		return FavoritesResult{}, fmt.Errorf("%w: no favorites provided", ErrInvalidRequest)
	}
	if s.source == nil {
		return FavoritesResult{}, ErrConfig
	}
	if len(favorites) > maxFavorites {
		favorites = favorites[:maxFavorites]
	}
	want = unitsOrMetric(want)
	logger := observability.LoggerFrom(ctx, s.logger)

	slots := make([]*FavoriteWeather, len(favorites))
	g := new(errgroup.Group)
	g.SetLimit(s.favoritesConcurrency)
	for i, fav := range favorites {
		if fav.Lat == nil || fav.Lon == nil {
			observability.FavoritesResultsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		i, fav := i, fav
		g.Go(func() error {
			name := strings.TrimSpace(fav.Name)
			loc := models.Location{Lat: *fav.Lat, Lon: *fav.Lon, Name: name}
			rec, cached, err := s.getWeather(ctx, loc, want)
			if err != nil {
				logger.Warn("favorite weather failed",
					zap.String("name", name), zap.Float64("lat", loc.Lat), zap.Float64("lon", loc.Lon), zap.Error(err))
				observability.FavoritesResultsTotal.WithLabelValues("failed").Inc()
				return nil
			}
			if name == "" {
				name = defaultFavoriteName
			}
			slots[i] = &FavoriteWeather{Name: name, Lat: loc.Lat, Lon: loc.Lon, Data: rec, Cached: cached}
			return nil
		})
	}
	_ = g.Wait()

	res := FavoritesResult{Results: make([]FavoriteWeather, 0, len(slots))}
	for _, fw := range slots {
		if fw == nil {
			continue
		}
		res.Results = append(res.Results, *fw)
		if fw.Cached {
			res.CachedCount++
			observability.FavoritesResultsTotal.WithLabelValues("cached").Inc()
		} else {
			res.APICallsMade++
			observability.FavoritesResultsTotal.WithLabelValues("fetched").Inc()
		}
	}
	res.TotalCount = len(res.Results)
	return res, nil
}
