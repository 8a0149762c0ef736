package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-aggregator/internal/cache"
	"github.com/kjstillabower/weather-aggregator/internal/client"
	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/units"
)

// CityResolver turns a free-text city name into ranked matches. Implemented by search.Searcher.
type CityResolver interface {
	Search(ctx context.Context, query string) ([]models.CityMatch, error)
}

// Options tunes a WeatherService. Zero values select defaults.
type Options struct {
	// CoalesceTimeout bounds how long a request waits on a shared upstream cycle.
	CoalesceTimeout time.Duration
	// FavoritesConcurrency bounds parallel fetches in BulkFavorites.
	FavoritesConcurrency int
	Logger               *zap.Logger
}

// WeatherService resolves locations, serves records from cache, and on a miss assembles a
// record from the primary source or the fallback sources. Records are cached in metric
// units and converted on the way out.
type WeatherService struct {
	source    client.WeatherSource
	cache     cache.Cache
	cities    CityResolver
	coalescer *requestCoalescer
	logger    *zap.Logger

	favoritesConcurrency int
}

// NewWeatherService creates a WeatherService. source may be nil when no API credential is
// configured, in which case every operation that needs the upstream returns ErrConfig.
func NewWeatherService(source client.WeatherSource, store cache.Cache, cities CityResolver, opts Options) *WeatherService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CoalesceTimeout <= 0 {
		opts.CoalesceTimeout = 30 * time.Second
	}
	if opts.FavoritesConcurrency <= 0 {
		opts.FavoritesConcurrency = 4
	}
	return &WeatherService{
		source:               source,
		cache:                store,
		cities:               cities,
		coalescer:            newRequestCoalescer(opts.CoalesceTimeout),
		logger:               opts.Logger,
		favoritesConcurrency: opts.FavoritesConcurrency,
	}
}

// Configured reports whether an upstream source is available.
func (s *WeatherService) Configured() bool {
	return s.source != nil
}

// WeatherRequest selects a location by coordinates or by city name. Coordinates win when both are set.
type WeatherRequest struct {
	City  string
	Lat   *float64
	Lon   *float64
	Units models.UnitSystem
}

// GetWeather returns the weather record for the requested location in the requested units.
func (s *WeatherService) GetWeather(ctx context.Context, req WeatherRequest) (models.WeatherRecord, error) {
	if s.source == nil {
		return models.WeatherRecord{}, ErrConfig
	}
	loc, err := s.resolve(ctx, req)
	if err != nil {
		return models.WeatherRecord{}, err
	}
	rec, _, err := s.getWeather(ctx, loc, unitsOrMetric(req.Units))
	return rec, err
}

// resolve turns a request into a Location. A city name alone is resolved through the
// city resolver's first match.
func (s *WeatherService) resolve(ctx context.Context, req WeatherRequest) (models.Location, error) {
	city := strings.TrimSpace(req.City)
	if req.Lat != nil && req.Lon != nil {
		return models.Location{Lat: *req.Lat, Lon: *req.Lon, Name: city}, nil
	}
	if city == "" {
		return models.Location{}, fmt.Errorf("%w: city name or coordinates required", ErrInvalidRequest)
	}
	if s.cities == nil {
		return models.Location{}, fmt.Errorf("%w: %q", ErrLocationNotFound, city)
	}
	matches, err := s.cities.Search(ctx, city)
	if err != nil {
		return models.Location{}, upstreamFailure("resolve city", err)
	}
	if len(matches) == 0 {
		return models.Location{}, fmt.Errorf("%w: %q", ErrLocationNotFound, city)
	}
	m := matches[0]
	return models.Location{Lat: m.Lat, Lon: m.Lon, Name: m.Name}, nil
}

// getWeather serves loc from cache or upstream. cached reports a cache hit.
func (s *WeatherService) getWeather(ctx context.Context, loc models.Location, want models.UnitSystem) (rec models.WeatherRecord, cached bool, err error) {
	start := time.Now()
	logger := observability.LoggerFrom(ctx, s.logger).With(
		zap.Float64("lat", loc.Lat), zap.Float64("lon", loc.Lon))
	observability.RecordWeatherQuery(loc.Name)

	if n := s.cache.Sweep(); n > 0 {
		logger.Debug("cache sweep", zap.Int("evicted", n))
	}

	if hit, stored, ok := s.cache.Lookup(loc); ok {
		observability.CacheLookupsTotal.WithLabelValues("hit_" + string(stored)).Inc()
		logger.Debug("weather served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return units.Convert(hit, stored, want), true, nil
	}
	observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
	logger.Debug("cache miss, fetching upstream")

	metric, shared, err := s.coalescer.GetOrDo(ctx, coalesceKey(loc), func(ctx context.Context) (models.WeatherRecord, error) {
		return s.fetchAndStore(ctx, loc)
	})
	if err != nil {
		return models.WeatherRecord{}, false, err
	}
	if shared {
		observability.CoalescedRequestsTotal.Inc()
	}
	logger.Debug("weather served", zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return units.Convert(metric, models.Metric, want), false, nil
}

// Refresh fetches loc upstream and stores it, bypassing any cached entry. Used by cache warming.
func (s *WeatherService) Refresh(ctx context.Context, loc models.Location) error {
	if s.source == nil {
		return ErrConfig
	}
	_, _, err := s.coalescer.GetOrDo(ctx, coalesceKey(loc), func(ctx context.Context) (models.WeatherRecord, error) {
		return s.fetchAndStore(ctx, loc)
	})
	return err
}

func coalesceKey(loc models.Location) string {
	return fmt.Sprintf("%016x|%s", cache.Fingerprint(loc, models.Metric), loc.Name)
}

// fetchAndStore builds a metric record for loc and caches it. The returned record is never partial.
func (s *WeatherService) fetchAndStore(ctx context.Context, loc models.Location) (models.WeatherRecord, error) {
	rec, err := s.fetchRecord(ctx, loc)
	if err != nil {
		return models.WeatherRecord{}, err
	}
	s.cache.Put(loc, models.Metric, rec)
	return rec, nil
}

func (s *WeatherService) fetchRecord(ctx context.Context, loc models.Location) (models.WeatherRecord, error) {
	logger := observability.LoggerFrom(ctx, s.logger)

	bundle, err := s.source.FetchPrimary(ctx, loc)
	if err == nil {
		return s.fromPrimary(ctx, loc, bundle), nil
	}
	if perr := s.payloadFailure(ctx, err); perr != nil {
		return models.WeatherRecord{}, perr
	}

	logger.Warn("primary weather source failed, using fallback",
		zap.String("kind", string(client.Kind(err))),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))
	observability.WeatherFallbackTotal.Inc()
	return s.fromFallback(ctx, loc)
}

// payloadFailure converts a malformed-payload error into the policy outcome for its field.
// It returns nil when err is not a payload error.
func (s *WeatherService) payloadFailure(ctx context.Context, err error) error {
	var pe *client.PayloadError
	if !errors.As(err, &pe) {
		return nil
	}
	return s.fieldFailure(ctx, nil, pe.Field, err)
}

func (s *WeatherService) fromPrimary(ctx context.Context, loc models.Location, bundle client.OneCallBundle) models.WeatherRecord {
	rec := models.WeatherRecord{
		Current: bundle.Current,
		Hourly:  capSlice(bundle.Hourly, maxHourly),
		Daily:   capSlice(bundle.Daily, maxDaily),
		Alerts:  bundle.Alerts,
	}
	if rec.Alerts == nil {
		rec.Alerts = []models.Alert{}
	}

	var (
		aq      models.AirQuality
		aqErr   error
		place   models.Place
		geoErr  error
		geocode = loc.Name == ""
	)
	var g errgroup.Group
	g.Go(func() error {
		aq, aqErr = s.source.FetchAirQuality(ctx, loc)
		return nil
	})
	if geocode {
		g.Go(func() error {
			place, geoErr = s.source.ReverseGeocode(ctx, loc)
			return nil
		})
	}
	_ = g.Wait()

	s.applyAirQuality(ctx, &rec, aq, aqErr)
	switch {
	case !geocode:
		rec.Current.City = loc.Name
	case geoErr == nil && place.City != "":
		rec.Current.City = place.City
		rec.Current.Country = place.Country
	default:
		if geoErr == nil {
			geoErr = errors.New("reverse geocoding returned no name")
		}
		_ = s.fieldFailure(ctx, &rec, fieldCity, geoErr)
	}
	return rec
}

func (s *WeatherService) fromFallback(ctx context.Context, loc models.Location) (models.WeatherRecord, error) {
	var (
		current models.CurrentConditions
		series  client.ForecastSeries
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.source.FetchFallbackCurrent(gctx, loc)
		return err
	})
	g.Go(func() error {
		var err error
		series, err = s.source.FetchFallbackForecast(gctx, loc)
		return err
	})
	if err := g.Wait(); err != nil {
		if perr := s.payloadFailure(ctx, err); perr != nil {
			return models.WeatherRecord{}, perr
		}
		observability.LoggerFrom(ctx, s.logger).Warn("fallback weather sources failed", zap.Error(err))
		return models.WeatherRecord{}, upstreamFailure("fetch weather", err)
	}

	rec := models.WeatherRecord{
		Current: current,
		Hourly:  hourlyFromForecast(series.Points, fallbackHourly),
		Daily:   dailyFromForecast(series.Points, series.TimezoneOffset, maxDaily),
		Alerts:  []models.Alert{},
	}
	_ = s.fieldFailure(ctx, &rec, fieldUVIndex, errors.New("uv index not reported by fallback source"))

	switch {
	case loc.Name != "":
		rec.Current.City = loc.Name
	case rec.Current.City == "":
		_ = s.fieldFailure(ctx, &rec, fieldCity, errors.New("fallback source returned no name"))
	}

	aq, aqErr := s.source.FetchAirQuality(ctx, loc)
	s.applyAirQuality(ctx, &rec, aq, aqErr)
	return rec, nil
}

func (s *WeatherService) applyAirQuality(ctx context.Context, rec *models.WeatherRecord, aq models.AirQuality, err error) {
	if err != nil {
		_ = s.fieldFailure(ctx, rec, fieldAirQuality, err)
		return
	}
	rec.AirQuality = &aq
}

// ReverseGeocode returns the named place nearest to a coordinate pair.
func (s *WeatherService) ReverseGeocode(ctx context.Context, lat, lon float64) (models.Place, error) {
	if s.source == nil {
		return models.Place{}, ErrConfig
	}
	place, err := s.source.ReverseGeocode(ctx, models.Location{Lat: lat, Lon: lon})
	if errors.Is(err, client.ErrLocationNotFound) {
		return models.Place{}, fmt.Errorf("%w: %.4f,%.4f", ErrLocationNotFound, lat, lon)
	}
	if err != nil {
		return models.Place{}, upstreamFailure("reverse geocode", err)
	}
	return place, nil
}

func unitsOrMetric(u models.UnitSystem) models.UnitSystem {
	if u == "" {
		return models.Metric
	}
	return u
}

func capSlice[T any](in []T, n int) []T {
	if len(in) > n {
		in = in[:n]
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
