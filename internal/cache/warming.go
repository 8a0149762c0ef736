package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// Refresher is implemented by the service layer to fetch a location upstream and store it.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type Refresher interface {
	Refresh(ctx context.Context, loc models.Location) error
}

// CacheWarmer keeps a fixed set of locations warm by refreshing them on a schedule.
type CacheWarmer struct {
	fetcher    Refresher
	logger     *zap.Logger
	runTimeout time.Duration

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewCacheWarmer creates a CacheWarmer. runTimeout bounds a single warming run.
func NewCacheWarmer(fetcher Refresher, logger *zap.Logger, runTimeout time.Duration) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runTimeout <= 0 {
		runTimeout = 30 * time.Second
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, runTimeout: runTimeout}
}

// Warm refreshes each location concurrently. Returns the joined per-location errors.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.Location) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		wg.Add(1)
		go func(loc models.Location) {
			defer wg.Done()
			if err := w.fetcher.Refresh(ctx, loc); err != nil {
				errCh <- fmt.Errorf("warm %s (%.4f,%.4f): %w", loc.Name, loc.Lat, loc.Lon, err)
			}
		}(loc)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Start runs Warm immediately and then every interval until Stop or ctx is done.
// Runs never overlap. interval should be shorter than the cache TTL.
func (w *CacheWarmer) Start(ctx context.Context, locations []models.Location, interval time.Duration) error {
	if len(locations) == 0 {
		return nil
	}
	if interval <= 0 {
		return fmt.Errorf("cache warming interval must be positive, got %v", interval)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return errors.New("cache warmer already started")
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		if ctx.Err() != nil {
			return
		}
		runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
		defer cancel()
		if err := w.Warm(runCtx, locations); err != nil {
			w.logger.Warn("cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop halts the schedule. Safe to call when not started.
func (w *CacheWarmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		w.scheduler.Stop()
		w.scheduler = nil
	}
}
