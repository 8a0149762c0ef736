package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

// requestCoalescer lets concurrent cache misses for the same key share one upstream cycle.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

// newRequestCoalescer creates a coalescer. timeout bounds how long a caller waits; 0 waits for ctx only.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn for key unless a call for key is already in flight, in which case it waits
// for that call's result. fn runs detached from the caller's cancellation so one caller
// giving up does not fail the others. shared reports whether the result went to more than one caller.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.WeatherRecord, error)) (rec models.WeatherRecord, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	waitCtx := ctx
	if rc.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.WeatherRecord{}, res.Shared, res.Err
		}
		// Every caller gets its own copy.
		return res.Val.(models.WeatherRecord).Clone(), res.Shared, nil
	case <-waitCtx.Done():
		return models.WeatherRecord{}, false, waitCtx.Err()
	}
}
