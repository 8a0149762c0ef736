package client

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

const testAPIKey = "valid-api-key-12345"

var (
	testLoc   = models.Location{Lat: 51.5, Lon: -0.12}
	testClock = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
)

const oneCallBody = `{
  "timezone_offset": 3600,
  "current": {
    "dt": 1717243200, "sunrise": 1717214400, "sunset": 1717273800,
    "temp": 17.6, "feels_like": 16.4, "pressure": 1012, "humidity": 72,
    "uvi": 6.2, "visibility": 9600, "wind_speed": 5,
    "weather": [{"main": "Clouds", "description": "broken clouds", "icon": "04d"}]
  },
  "hourly": [
    {"dt": 1717243200, "temp": 17.6, "humidity": 72, "wind_speed": 5, "pop": 0.35,
     "weather": [{"main": "Clouds", "description": "broken clouds", "icon": "04d"}]},
    {"dt": 1717246800, "temp": 18.4, "humidity": 70, "wind_speed": 4.2, "pop": 0,
     "weather": []}
  ],
  "daily": [
    {"dt": 1717243200, "temp": {"min": 11.2, "max": 21.5}, "humidity": 65, "wind_speed": 6,
     "pop": 0.2, "uvi": 6.2, "weather": [{"main": "Rain", "description": "light rain", "icon": "10d"}]}
  ],
  "alerts": [
    {"event": "", "description": "Strong winds", "start": 1717243200, "end": 1717260000},
    {"event": "Flood Watch", "description": "", "start": 1, "end": 2}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*OpenWeatherClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithClock(testClock)}, opts...)
	c, err := NewOpenWeatherClient(testAPIKey, srv.URL, opts...)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c, srv
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: testAPIKey, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewOpenWeatherClient(tt.apiKey, "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}
			if c.baseURL != DefaultBaseURL {
				t.Errorf("baseURL = %q, want default", c.baseURL)
			}
		})
	}
}

// TestFetchPrimary_Success verifies request parameters and the normalization of a one-call payload.
func TestFetchPrimary_Success(t *testing.T) {
	var gotPath, gotQuery, gotCorr string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCorr = r.Header.Get("X-Correlation-ID")
		jsonHandler(http.StatusOK, oneCallBody)(w, r)
	})

	ctx := context.WithValue(context.Background(), observability.CorrelationIDKey, "corr-1")
	bundle, err := c.FetchPrimary(ctx, testLoc)
	if err != nil {
		t.Fatalf("FetchPrimary() error = %v", err)
	}

	if gotPath != "/data/3.0/onecall" {
		t.Errorf("path = %q", gotPath)
	}
	for _, want := range []string{"appid=" + testAPIKey, "units=metric", "exclude=minutely", "lat=51.5", "lon=-0.12"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
	if gotCorr != "corr-1" {
		t.Errorf("X-Correlation-ID = %q, want corr-1", gotCorr)
	}

	cur := bundle.Current
	if cur.Temp != 18 || cur.FeelsLike != 16 {
		t.Errorf("temps = %d/%d, want 18/16", cur.Temp, cur.FeelsLike)
	}
	if cur.WindSpeed != 18 {
		t.Errorf("WindSpeed = %v, want 18 km/h", cur.WindSpeed)
	}
	if cur.Description != "Broken Clouds" || cur.WeatherMain != "Clouds" || cur.Icon != "04d" {
		t.Errorf("condition = %q/%q/%q", cur.Description, cur.WeatherMain, cur.Icon)
	}
	if cur.Visibility != models.VisibilityOf(10) || cur.VisibilityUnit != "km" {
		t.Errorf("Visibility = %+v %q, want 10 km", cur.Visibility, cur.VisibilityUnit)
	}
	if cur.Sunrise != "05:00 AM" || cur.Sunset != "09:30 PM" {
		t.Errorf("sunrise/sunset = %q/%q", cur.Sunrise, cur.Sunset)
	}
	if cur.LocalTime != "2024-06-01 13:00:00" {
		t.Errorf("LocalTime = %q", cur.LocalTime)
	}
	if !cur.IsDay {
		t.Error("IsDay = false, want true at noon")
	}
	if cur.UVIndex != 6.2 || cur.UVInfo.Level != "High" {
		t.Errorf("UV = %v/%q", cur.UVIndex, cur.UVInfo.Level)
	}
	if cur.TempUnit != "°C" || cur.SpeedUnit != "km/h" || cur.Timezone != 3600 {
		t.Errorf("labels/timezone = %q %q %d", cur.TempUnit, cur.SpeedUnit, cur.Timezone)
	}
	if cur.City != "" || cur.Lat != 51.5 || cur.Lon != -0.12 {
		t.Errorf("city/coords = %q %v %v", cur.City, cur.Lat, cur.Lon)
	}

	if len(bundle.Hourly) != 2 {
		t.Fatalf("len(Hourly) = %d, want 2", len(bundle.Hourly))
	}
	if h := bundle.Hourly[0]; h.Pop != 35 || h.Temp != 18 || h.WindSpeed != 18 {
		t.Errorf("Hourly[0] = %+v", h)
	}
	if h := bundle.Hourly[1]; h.Description != "" || h.WindSpeed != 15.1 {
		t.Errorf("Hourly[1] = %+v", h)
	}
	if d := bundle.Daily[0]; d.TempMax != 22 || d.TempMin != 11 || d.Description != "Light Rain" || d.UVIndex != 6.2 || d.Pop != 20 {
		t.Errorf("Daily[0] = %+v", d)
	}
	if len(bundle.Alerts) != 2 {
		t.Fatalf("len(Alerts) = %d, want 2", len(bundle.Alerts))
	}
	if a := bundle.Alerts[0]; a.Event != "Weather Alert" || a.Severity != "moderate" {
		t.Errorf("Alerts[0] = %+v", a)
	}
	if a := bundle.Alerts[1]; a.Event != "Flood Watch" {
		t.Errorf("Alerts[1] = %+v", a)
	}
}

// TestFetchPrimary_MissingRequiredFields verifies required fields yield a PayloadError naming the field.
func TestFetchPrimary_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"no temp", `{"current": {"weather": [{"description": "x"}]}}`, "current.temp"},
		{"empty weather", `{"current": {"temp": 10, "weather": []}}`, "current.description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, jsonHandler(http.StatusOK, tt.body))
			_, err := c.FetchPrimary(context.Background(), testLoc)
			var pe *PayloadError
			if !errors.As(err, &pe) || pe.Field != tt.wantField {
				t.Fatalf("FetchPrimary() error = %v, want PayloadError{%s}", err, tt.wantField)
			}
			if !errors.Is(err, ErrMalformedPayload) {
				t.Error("PayloadError should match ErrMalformedPayload")
			}
		})
	}
}

func TestFetchPrimary_InvalidJSON(t *testing.T) {
	c, _ := newTestClient(t, jsonHandler(http.StatusOK, `{not json`))
	_, err := c.FetchPrimary(context.Background(), testLoc)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("FetchPrimary() error = %v, want ErrMalformedPayload", err)
	}
}

// TestFetchPrimary_ErrorStatus verifies non-2xx responses become http_status UpstreamErrors.
func TestFetchPrimary_ErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		message  string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"cod":401,"message":"Invalid API key"}`, ErrInvalidAPIKey, "Invalid API key"},
		{"not found", http.StatusNotFound, `{"cod":"404","message":"city not found"}`, ErrLocationNotFound, "city not found"},
		{"rate limited", http.StatusTooManyRequests, ``, ErrRateLimited, "Too Many Requests"},
		{"server error", http.StatusInternalServerError, `oops`, ErrUpstreamFailure, "Internal Server Error"},
		{"unavailable", http.StatusServiceUnavailable, ``, ErrUpstreamFailure, "Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, jsonHandler(tt.status, tt.body))
			_, err := c.FetchPrimary(context.Background(), testLoc)

			var upErr *UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("FetchPrimary() error = %v, want *UpstreamError", err)
			}
			if upErr.Kind != KindHTTPStatus || upErr.StatusCode != tt.status || upErr.Endpoint != "onecall" {
				t.Errorf("UpstreamError = %+v", upErr)
			}
			if upErr.Message != tt.message {
				t.Errorf("Message = %q, want %q", upErr.Message, tt.message)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error %v should match %v", err, tt.sentinel)
			}
		})
	}
}

// TestFetch_Timeout verifies a slow upstream is classified as a timeout, not a network failure.
func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeouts(50*time.Millisecond, 50*time.Millisecond))
	defer close(release)

	_, err := c.FetchFallbackForecast(context.Background(), testLoc)
	if Kind(err) != KindTimeout {
		t.Fatalf("FetchFallbackForecast() error = %v, want timeout kind", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout error should wrap context.DeadlineExceeded: %v", err)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewOpenWeatherClient(testAPIKey, base)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	_, err = c.FetchAirQuality(context.Background(), testLoc)
	if Kind(err) != KindNetwork {
		t.Errorf("FetchAirQuality() error = %v, want network kind", err)
	}
}

// TestFetchFallbackCurrent verifies the current-weather payload maps to CurrentConditions.
func TestFetchFallbackCurrent(t *testing.T) {
	body := `{
	  "dt": 1717214400, "timezone": 3600, "name": "London",
	  "main": {"temp": 14.5, "feels_like": 13.2, "pressure": 1009, "humidity": 81},
	  "wind": {"speed": 3.1},
	  "sys": {"country": "GB", "sunrise": 1717214400, "sunset": 1717273800},
	  "weather": [{"main": "Rain", "description": "moderate rain", "icon": "10n"}],
	  "coord": {"lat": 51.51, "lon": -0.13}
	}`
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		jsonHandler(http.StatusOK, body)(w, r)
	})

	cur, err := c.FetchFallbackCurrent(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("FetchFallbackCurrent() error = %v", err)
	}
	if gotPath != "/data/2.5/weather" {
		t.Errorf("path = %q", gotPath)
	}
	if cur.City != "London" || cur.Country != "GB" {
		t.Errorf("city/country = %q/%q", cur.City, cur.Country)
	}
	if cur.Temp != 15 || cur.WindSpeed != 11.2 || cur.Description != "Moderate Rain" {
		t.Errorf("cur = %+v", cur)
	}
	if cur.IsDay {
		t.Error("IsDay = true, want false when dt equals sunrise")
	}
	if cur.Visibility.Available {
		t.Error("Visibility should be unavailable when the payload omits it")
	}
	if cur.UVIndex != 0 || cur.UVInfo.Level != "Low" {
		t.Errorf("UV = %v/%q, want 0/Low", cur.UVIndex, cur.UVInfo.Level)
	}
	if cur.Lat != 51.5 || cur.Lon != -0.12 {
		t.Errorf("coords = %v,%v, want request coordinates", cur.Lat, cur.Lon)
	}
}

func TestFetchCurrentByName(t *testing.T) {
	var gotQ string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		jsonHandler(http.StatusOK, `{"name":"Paris","main":{"temp":20},"sys":{"country":"FR"},
			"weather":[{"description":"clear sky","icon":"01d"}],"coord":{"lat":48.85,"lon":2.35}}`)(w, r)
	})
	cur, err := c.FetchCurrentByName(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("FetchCurrentByName() error = %v", err)
	}
	if gotQ != "Paris" || cur.City != "Paris" || cur.Lat != 48.85 || cur.Sunrise != "N/A" {
		t.Errorf("q=%q cur=%+v", gotQ, cur)
	}
}

func TestFetchFallbackForecast(t *testing.T) {
	body := `{"city": {"name": "London", "country": "GB", "timezone": 3600},
	  "list": [
	    {"dt": 100, "main": {"temp": 10.4, "humidity": 80}, "wind": {"speed": 2.5}, "pop": 0.5,
	     "weather": [{"description": "light rain", "icon": "10d"}]},
	    {"dt": 200, "main": {"temp": 12.6, "humidity": 75}, "wind": {"speed": 3}, "pop": 0,
	     "weather": [{"description": "few clouds", "icon": "02d"}]}
	  ]}`
	c, _ := newTestClient(t, jsonHandler(http.StatusOK, body))
	series, err := c.FetchFallbackForecast(context.Background(), testLoc)
	if err != nil {
		t.Fatalf("FetchFallbackForecast() error = %v", err)
	}
	if series.TimezoneOffset != 3600 || series.City != "London" || len(series.Points) != 2 {
		t.Fatalf("series = %+v", series)
	}
	p := series.Points[0]
	if p.Temp != 10.4 || math.Abs(p.WindSpeed-9) > 1e-9 || p.Pop != 50 || p.Description != "Light Rain" {
		t.Errorf("Points[0] = %+v", p)
	}
}

func TestFetchAirQuality(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c, _ := newTestClient(t, jsonHandler(http.StatusOK, `{"list":[{"main":{"aqi":3},"components":{"pm2_5":12.5,"o3":60}}]}`))
		aq, err := c.FetchAirQuality(context.Background(), testLoc)
		if err != nil {
			t.Fatalf("FetchAirQuality() error = %v", err)
		}
		if aq.AQI != 3 || aq.Level != "Moderate" || aq.Components["pm2_5"] != 12.5 {
			t.Errorf("AirQuality = %+v", aq)
		}
	})
	t.Run("empty list", func(t *testing.T) {
		c, _ := newTestClient(t, jsonHandler(http.StatusOK, `{"list":[]}`))
		if _, err := c.FetchAirQuality(context.Background(), testLoc); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("FetchAirQuality() error = %v, want ErrMalformedPayload", err)
		}
	})
}

func TestReverseGeocode(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		var gotLimit string
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotLimit = r.URL.Query().Get("limit")
			jsonHandler(http.StatusOK, `[{"name":"Westminster","country":"GB","state":"England","lat":51.5,"lon":-0.12}]`)(w, r)
		})
		place, err := c.ReverseGeocode(context.Background(), testLoc)
		if err != nil {
			t.Fatalf("ReverseGeocode() error = %v", err)
		}
		if gotLimit != "1" || place.City != "Westminster" || place.State != "England" {
			t.Errorf("limit=%q place=%+v", gotLimit, place)
		}
	})
	t.Run("no match", func(t *testing.T) {
		c, _ := newTestClient(t, jsonHandler(http.StatusOK, `[]`))
		if _, err := c.ReverseGeocode(context.Background(), testLoc); !errors.Is(err, ErrLocationNotFound) {
			t.Errorf("ReverseGeocode() error = %v, want ErrLocationNotFound", err)
		}
	})
}

func TestDirectGeocode(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		jsonHandler(http.StatusOK, `[
			{"name":"Springfield","country":"US","state":"Illinois","lat":39.8,"lon":-89.6},
			{"name":"Springfield","country":"US","lat":37.2,"lon":-93.3}]`)(w, r)
	})
	matches, err := c.DirectGeocode(context.Background(), "Springfield", 5)
	if err != nil {
		t.Fatalf("DirectGeocode() error = %v", err)
	}
	if !strings.Contains(gotQuery, "limit=5") || !strings.Contains(gotQuery, "q=Springfield") {
		t.Errorf("query = %q", gotQuery)
	}
	if len(matches) != 2 || matches[0].Display != "Springfield, US (Illinois)" || matches[1].Display != "Springfield, US" {
		t.Errorf("matches = %+v", matches)
	}
}

// TestCircuitBreaker_OpensAfterFailures verifies an open breaker short-circuits calls
// and that 404s do not count as failures.
func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	status := atomic.Int32{}
	status.Store(http.StatusNotFound)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}, WithCircuitBreakers(BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.FetchPrimary(ctx, testLoc); !errors.Is(err, ErrLocationNotFound) {
			t.Fatalf("call %d error = %v, want not found", i, err)
		}
	}
	if got := c.BreakerState("onecall"); got != "closed" {
		t.Fatalf("breaker after 404s = %q, want closed", got)
	}

	status.Store(http.StatusBadGateway)
	for i := 0; i < 2; i++ {
		if Kind(primaryErr(ctx, c)) != KindHTTPStatus {
			t.Fatalf("call %d should reach upstream", i)
		}
	}
	before := hits.Load()
	if got := Kind(primaryErr(ctx, c)); got != KindCircuitOpen {
		t.Fatalf("Kind() = %q, want circuit_open", got)
	}
	if hits.Load() != before {
		t.Error("open breaker should not reach the upstream")
	}
	if got := c.BreakerState("forecast"); got != "closed" {
		t.Errorf("forecast breaker = %q, want closed (breakers are per endpoint)", got)
	}
	if got := c.BreakerStates()["onecall"]; got != "open" {
		t.Errorf("BreakerStates()[onecall] = %q, want open", got)
	}
	if got := (&OpenWeatherClient{}).BreakerState("onecall"); got != "disabled" {
		t.Errorf("BreakerState without breakers = %q", got)
	}
	if got := (&OpenWeatherClient{}).BreakerStates(); got != nil {
		t.Errorf("BreakerStates without breakers = %v, want nil", got)
	}
}

func primaryErr(ctx context.Context, c *OpenWeatherClient) error {
	_, err := c.FetchPrimary(ctx, testLoc)
	return err
}

func TestValidateAPIKey(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		c, _ := newTestClient(t, jsonHandler(http.StatusOK, `{}`))
		if err := c.ValidateAPIKey(context.Background()); err != nil {
			t.Errorf("ValidateAPIKey() error = %v", err)
		}
	})
	t.Run("rejected", func(t *testing.T) {
		c, _ := newTestClient(t, jsonHandler(http.StatusUnauthorized, `{"message":"Invalid API key"}`))
		if err := c.ValidateAPIKey(context.Background()); !errors.Is(err, ErrInvalidAPIKey) {
			t.Errorf("ValidateAPIKey() error = %v, want ErrInvalidAPIKey", err)
		}
	})
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{200: "success", 204: "success", 404: "client_error", 429: "rate_limited", 503: "server_error", 302: "error"}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
