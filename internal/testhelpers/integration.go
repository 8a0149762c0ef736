//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/cache"
	"github.com/kjstillabower/weather-aggregator/internal/client"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/search"
	"github.com/kjstillabower/weather-aggregator/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey      string
	APIURL      string
	CitiesPath  string
	CacheTTL    time.Duration
	UseBreakers bool
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if OPENWEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("OPENWEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultBaseURL
	}

	return IntegrationTestConfig{
		APIKey:      apiKey,
		APIURL:      apiURL,
		CitiesPath:  os.Getenv("CITIES_PATH"),
		CacheTTL:    cache.DefaultTTL,
		UseBreakers: os.Getenv("INTEGRATION_BREAKERS") != "false",
	}
}

// Logger returns the service logger at the level in LOG_LEVEL (default INFO).
func Logger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return logger
}

// SetupIntegrationClient creates a live OpenWeather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	opts := []client.Option{
		client.WithTimeouts(client.DefaultWeatherTimeout, client.DefaultGeoTimeout),
		client.WithLogger(Logger(t)),
	}
	if cfg.UseBreakers {
		opts = append(opts, client.WithCircuitBreakers(client.BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
		}))
	}
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, opts...)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationSearcher loads the city dataset when CITIES_PATH is set and falls back
// to live geocoding otherwise.
func SetupIntegrationSearcher(t *testing.T, cfg IntegrationTestConfig, geocoder search.Geocoder) *search.Searcher {
	t.Helper()
	var cities []search.City
	if cfg.CitiesPath != "" {
		var err error
		cities, err = search.LoadDataset(cfg.CitiesPath)
		if err != nil {
			t.Fatalf("LoadDataset(%s) error = %v", cfg.CitiesPath, err)
		}
	}
	return search.NewSearcher(cities, geocoder, Logger(t))
}

// SetupIntegrationService creates a fully configured service for integration tests.
// Returns the service, its cache (for test setup and assertions) and the searcher it resolves names with.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, *cache.MemoryCache, *search.Searcher) {
	t.Helper()
	weatherClient := SetupIntegrationClient(t, cfg)
	searcher := SetupIntegrationSearcher(t, cfg, weatherClient)
	store := cache.NewMemoryCache(cache.WithTTL(cfg.CacheTTL))
	svc := service.NewWeatherService(weatherClient, store, searcher, service.Options{Logger: Logger(t)})
	return svc, store, searcher
}
