package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// WeatherSource is the set of upstream capabilities the aggregator consumes.
// Every method either returns a fully populated result or an error; nothing in between.
type WeatherSource interface {
	FetchPrimary(ctx context.Context, loc models.Location) (OneCallBundle, error)
	FetchFallbackCurrent(ctx context.Context, loc models.Location) (models.CurrentConditions, error)
	FetchFallbackForecast(ctx context.Context, loc models.Location) (ForecastSeries, error)
	FetchAirQuality(ctx context.Context, loc models.Location) (models.AirQuality, error)
	FetchCurrentByName(ctx context.Context, city string) (models.CurrentConditions, error)
	ReverseGeocode(ctx context.Context, loc models.Location) (models.Place, error)
	DirectGeocode(ctx context.Context, query string, limit int) ([]models.CityMatch, error)
}

const (
	DefaultBaseURL        = "https://api.openweathermap.org"
	DefaultWeatherTimeout = 10 * time.Second
	DefaultGeoTimeout     = 5 * time.Second

	maxErrorBody = 4 << 10
)

type endpoint struct {
	name string
	path string
	geo  bool
}

var (
	endpointOneCall    = endpoint{name: "onecall", path: "/data/3.0/onecall"}
	endpointCurrent    = endpoint{name: "current", path: "/data/2.5/weather"}
	endpointForecast   = endpoint{name: "forecast", path: "/data/2.5/forecast"}
	endpointAirQuality = endpoint{name: "air_pollution", path: "/data/2.5/air_pollution"}
	endpointGeoReverse = endpoint{name: "geo_reverse", path: "/geo/1.0/reverse", geo: true}
	endpointGeoDirect  = endpoint{name: "geo_direct", path: "/geo/1.0/direct", geo: true}

	allEndpoints = []endpoint{
		endpointOneCall, endpointCurrent, endpointForecast,
		endpointAirQuality, endpointGeoReverse, endpointGeoDirect,
	}
)

// OpenWeatherClient calls the OpenWeather REST API. Each call is attempted once;
// there are no retries.
type OpenWeatherClient struct {
	apiKey         string
	baseURL        string
	weatherTimeout time.Duration
	geoTimeout     time.Duration
	client         *http.Client
	logger         *zap.Logger
	now            func() time.Time
	breakers       map[string]*gobreaker.CircuitBreaker
}

// Option configures an OpenWeatherClient.
type Option func(*OpenWeatherClient)

// WithTimeouts sets per-call timeouts for weather endpoints and geocoding endpoints.
func WithTimeouts(weather, geo time.Duration) Option {
	return func(c *OpenWeatherClient) {
		if weather > 0 {
			c.weatherTimeout = weather
		}
		if geo > 0 {
			c.geoTimeout = geo
		}
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OpenWeatherClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the logger used for breaker transitions.
func WithLogger(logger *zap.Logger) Option {
	return func(c *OpenWeatherClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source used for local_time.
func WithClock(now func() time.Time) Option {
	return func(c *OpenWeatherClient) {
		if now != nil {
			c.now = now
		}
	}
}

// NewOpenWeatherClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewOpenWeatherClient(apiKey, baseURL string, opts ...Option) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	c := &OpenWeatherClient{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		weatherTimeout: DefaultWeatherTimeout,
		geoTimeout:     DefaultGeoTimeout,
		client:         &http.Client{},
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// get performs one GET against ep and decodes a 2xx JSON body into out.
func (c *OpenWeatherClient) get(ctx context.Context, ep endpoint, params url.Values, out any) error {
	breaker := c.breakers[ep.name]
	if breaker == nil {
		return c.call(ctx, ep, params, out)
	}

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, c.call(ctx, ep, params, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.UpstreamCallsTotal.WithLabelValues(ep.name, "circuit_open").Inc()
		return &UpstreamError{Kind: KindCircuitOpen, Endpoint: ep.name, Message: "circuit breaker open", Err: err}
	}
	return err
}

func (c *OpenWeatherClient) call(ctx context.Context, ep endpoint, params url.Values, out any) error {
	start := time.Now()

	timeout := c.weatherTimeout
	if ep.geo {
		timeout = c.geoTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, ep, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(ep.name, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		kind := KindNetwork
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			kind = KindTimeout
		}
		observability.UpstreamCallsTotal.WithLabelValues(ep.name, string(kind)).Inc()
		observability.UpstreamDuration.WithLabelValues(ep.name, string(kind)).Observe(time.Since(start).Seconds())
		return &UpstreamError{Kind: kind, Endpoint: ep.name, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(ep.name, status).Inc()
	observability.UpstreamDuration.WithLabelValues(ep.name, status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{
			Kind:       KindHTTPStatus,
			Endpoint:   ep.name,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &UpstreamError{Kind: KindTimeout, Endpoint: ep.name, Message: "reading response", Err: err}
		}
		return &PayloadError{Endpoint: ep.name, Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, ep endpoint, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + ep.path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("appid", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// errorMessage pulls the provider's "message" field from an error body, falling back to the status text.
func errorMessage(resp *http.Response) string {
	var body struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return http.StatusText(resp.StatusCode)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

func coordParams(loc models.Location) url.Values {
	params := url.Values{}
	params.Set("lat", formatCoord(loc.Lat))
	params.Set("lon", formatCoord(loc.Lon))
	return params
}

// ValidateAPIKey makes a single current-weather call and reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	params := url.Values{}
	params.Set("q", "London")
	var discard json.RawMessage
	err := c.call(ctx, endpointCurrent, params, &discard)
	if errors.Is(err, ErrInvalidAPIKey) {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
