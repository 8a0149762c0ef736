package client

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// BreakerConfig configures the per-endpoint circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before allowing probes.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// WithCircuitBreakers installs one breaker per upstream endpoint, so a failing
// one-call endpoint does not block the fallback endpoints.
func WithCircuitBreakers(cfg BreakerConfig) Option {
	return func(c *OpenWeatherClient) {
		if cfg.FailureThreshold == 0 {
			cfg.FailureThreshold = 5
		}
		if cfg.OpenTimeout <= 0 {
			cfg.OpenTimeout = 30 * time.Second
		}
		if cfg.HalfOpenRequests == 0 {
			cfg.HalfOpenRequests = 1
		}
		c.breakers = make(map[string]*gobreaker.CircuitBreaker, len(allEndpoints))
		for _, ep := range allEndpoints {
			c.breakers[ep.name] = c.newBreaker(ep.name, cfg)
			observability.UpstreamCircuitState.WithLabelValues(ep.name).Set(float64(gobreaker.StateClosed))
		}
	}
}

func (c *OpenWeatherClient) newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// The breaker tracks provider availability. A location miss or bad payload is not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrLocationNotFound) ||
				errors.Is(err, ErrMalformedPayload)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.UpstreamCircuitState.WithLabelValues(name).Set(float64(to))
			observability.UpstreamCircuitTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
			c.logger.Warn("upstream circuit state changed",
				zap.String("endpoint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// BreakerState reports the breaker state for an endpoint name, or "disabled".
func (c *OpenWeatherClient) BreakerState(endpoint string) string {
	b, ok := c.breakers[endpoint]
	if !ok {
		return "disabled"
	}
	return b.State().String()
}

// BreakerStates returns the state of every endpoint breaker, keyed by endpoint name.
// It returns nil when breakers are disabled.
func (c *OpenWeatherClient) BreakerStates() map[string]string {
	if len(c.breakers) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.breakers))
	for name, b := range c.breakers {
		out[name] = b.State().String()
	}
	return out
}
