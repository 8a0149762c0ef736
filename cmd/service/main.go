package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-aggregator/internal/cache"
	"github.com/kjstillabower/weather-aggregator/internal/client"
	"github.com/kjstillabower/weather-aggregator/internal/config"
	httphandler "github.com/kjstillabower/weather-aggregator/internal/http"
	"github.com/kjstillabower/weather-aggregator/internal/lifecycle"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/search"
	"github.com/kjstillabower/weather-aggregator/internal/service"
	"github.com/kjstillabower/weather-aggregator/internal/traffic"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Interfaces stay untyped nil without a key so the service reports itself unconfigured.
	var (
		source        client.WeatherSource
		geocoder      search.Geocoder
		breakerStates func() map[string]string
	)
	if cfg.WeatherAPIKey != "" {
		opts := []client.Option{
			client.WithTimeouts(cfg.WeatherTimeout, cfg.GeoTimeout),
			client.WithLogger(logger),
		}
		if cfg.CircuitBreakerEnabled {
			opts = append(opts, client.WithCircuitBreakers(client.BreakerConfig{
				FailureThreshold: uint32(cfg.CircuitBreakerFailureThreshold),
				OpenTimeout:      cfg.CircuitBreakerTimeout,
				HalfOpenRequests: uint32(cfg.CircuitBreakerHalfOpenRequests),
			}))
			logger.Info("circuit breakers enabled",
				zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
				zap.Duration("timeout", cfg.CircuitBreakerTimeout))
		}
		weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, opts...)
		if err != nil {
			logger.Fatal("weather client", zap.Error(err))
		}
		source, geocoder, breakerStates = weatherClient, weatherClient, weatherClient.BreakerStates
	} else {
		logger.Warn("OPENWEATHER_API_KEY not set; weather endpoints will return NOT_CONFIGURED")
	}

	var cities []search.City
	if cfg.CitiesPath != "" {
		cities, err = search.LoadDataset(cfg.CitiesPath)
		if err != nil {
			logger.Warn("city dataset unavailable, using geocoding for search", zap.String("path", cfg.CitiesPath), zap.Error(err))
			cities = nil
		} else {
			logger.Info("city dataset loaded", zap.Int("cities", len(cities)))
		}
	}
	searcher := search.NewSearcher(cities, geocoder, logger)

	store := cache.NewMemoryCache(cache.WithTTL(cfg.CacheTTL))
	weatherService := service.NewWeatherService(source, store, searcher, service.Options{
		CoalesceTimeout:      cfg.CoalesceTimeout,
		FavoritesConcurrency: cfg.FavoritesConcurrency,
		Logger:               logger,
	})

	state := lifecycle.NewState()
	tracker := traffic.NewTracker()
	observability.RegisterRateLimitGauges(cfg.OverloadWindow, tracker)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	warmer := cache.NewCacheWarmer(weatherService, logger, cfg.RequestTimeout)
	if weatherService.Configured() && len(cfg.WarmLocations) > 0 {
		if err := warmer.Start(rootCtx, cfg.WarmLocations, cfg.WarmInterval); err != nil {
			logger.Error("cache warming not started", zap.Error(err))
		} else {
			logger.Info("cache warming started",
				zap.Int("locations", len(cfg.WarmLocations)),
				zap.Duration("interval", cfg.WarmInterval))
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, searcher, state, tracker, &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		BreakerStates:        breakerStates,
	}, logger)

	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		CORSOrigins:    cfg.CORSOrigins,
		InFlight:       inFlight,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.Bool("configured", weatherService.Configured()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.SetShuttingDown(true)
	warmer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}
	cancelRoot()

	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}
