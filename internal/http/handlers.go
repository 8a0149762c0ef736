package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/lifecycle"
	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
	"github.com/kjstillabower/weather-aggregator/internal/service"
	"github.com/kjstillabower/weather-aggregator/internal/traffic"
	"github.com/kjstillabower/weather-aggregator/internal/validation"
)

const maxBodyBytes = 1 << 20

// CitySearcher serves city autocomplete. Implemented by search.Searcher.
type CitySearcher interface {
	Search(ctx context.Context, query string) ([]models.CityMatch, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// BreakerStates, when set, reports upstream circuit breaker states by endpoint.
	BreakerStates func() map[string]string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather *service.WeatherService
	cities  CitySearcher
	state   *lifecycle.State
	traffic *traffic.Tracker
	health  *HealthConfig
	logger  *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker and state may be nil in tests; nil values are replaced.
func NewHandler(
	weather *service.WeatherService,
	cities CitySearcher,
	state *lifecycle.State,
	tracker *traffic.Tracker,
	health *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if state == nil {
		state = lifecycle.NewState()
	}
	if tracker == nil {
		tracker = traffic.NewTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather: weather,
		cities:  cities,
		state:   state,
		traffic: tracker,
		health:  health,
		logger:  logger,
	}
}

type weatherRequest struct {
	City  string   `json:"city" validate:"omitempty,cityname"`
	Lat   *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon   *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	Units string   `json:"units" validate:"omitempty,units"`
}

type geolocationRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

type compareRequest struct {
	Cities []string `json:"cities" validate:"min=2"`
	Units  string   `json:"units" validate:"omitempty,units"`
}

type favoritesRequest struct {
	Favorites []favoriteItem `json:"favorites" validate:"min=1,dive"`
	Units     string         `json:"units" validate:"omitempty,units"`
}

type favoriteItem struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon  *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
}

// decodeBody decodes a JSON body into v and validates it.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON data", validation.ErrInvalidInput)
	}
	return validation.Struct(v)
}

// PostWeather handles POST /api/weather.
func (h *Handler) PostWeather(w http.ResponseWriter, r *http.Request) {
	var req weatherRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	units, _ := models.ParseUnitSystem(req.Units)

	rec, err := h.weather.GetWeather(r.Context(), service.WeatherRequest{
		City:  req.City,
		Lat:   req.Lat,
		Lon:   req.Lon,
		Units: units,
	})
	if err != nil {
		h.recordOutcome(writeServiceError(w, r, err).status)
		return
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, rec)
}

// GetSearch handles GET /api/search?q=. Failures degrade to an empty list.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	matches, err := h.cities.Search(r.Context(), query)
	if err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Debug("city search failed", zap.String("query", query), zap.Error(err))
		matches = nil
	}
	if matches == nil {
		matches = []models.CityMatch{}
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, matches)
}

// PostGeolocation handles POST /api/geolocation.
func (h *Handler) PostGeolocation(w http.ResponseWriter, r *http.Request) {
	var req geolocationRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	place, err := h.weather.ReverseGeocode(r.Context(), *req.Lat, *req.Lon)
	if err != nil {
		h.recordOutcome(writeServiceError(w, r, err).status)
		return
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, place)
}

// PostCompare handles POST /api/compare.
func (h *Handler) PostCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	units, _ := models.ParseUnitSystem(req.Units)

	out, err := h.weather.CompareWeather(r.Context(), req.Cities, units)
	if err != nil {
		h.recordOutcome(writeServiceError(w, r, err).status)
		return
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, out)
}

// PostFavoritesBulk handles POST /api/favorites/bulk.
func (h *Handler) PostFavoritesBulk(w http.ResponseWriter, r *http.Request) {
	var req favoritesRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	units, _ := models.ParseUnitSystem(req.Units)

	favorites := make([]service.Favorite, 0, len(req.Favorites))
	for _, f := range req.Favorites {
		favorites = append(favorites, service.Favorite{Name: f.Name, Lat: f.Lat, Lon: f.Lon})
	}
	res, err := h.weather.BulkFavorites(r.Context(), favorites, units)
	if err != nil {
		h.recordOutcome(writeServiceError(w, r, err).status)
		return
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, res)
}

// recordOutcome counts server-side failures toward the degraded error rate. Client errors are not counted.
func (h *Handler) recordOutcome(status int) {
	if status >= http.StatusInternalServerError {
		h.traffic.RecordError()
		return
	}
	h.traffic.RecordSuccess()
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	switch result.status {
	case "not-configured":
		checks["weatherApi"] = "unconfigured"
	case "degraded":
		checks["weatherApi"] = "unhealthy"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-aggregator",
		"version":   "dev",
		"checks":    checks,
		"uptime":    h.state.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.health != nil && h.health.BreakerStates != nil {
		if states := h.health.BreakerStates(); len(states) > 0 {
			resp["circuitBreakers"] = states
		}
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates, in priority order:
// shutting-down > not-configured > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.state.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.weather == nil || !h.weather.Configured() {
		return healthResult{"not-configured", http.StatusServiceUnavailable, "api_key_missing"}
	}
	if h.health == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.health.RateLimitRPS > 0 && h.health.OverloadWindow > 0 && h.health.OverloadThresholdPct > 0 {
		threshold := float64(h.health.RateLimitRPS) * h.health.OverloadWindow.Seconds() * float64(h.health.OverloadThresholdPct) / 100
		if float64(h.traffic.RequestCount(h.health.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.health.DegradedWindow > 0 && h.health.DegradedErrorPct > 0 {
		errs, total := h.traffic.ErrorRate(h.health.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(h.health.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// methodNotAllowed answers requests whose path matched but whose method did not.
func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// notFound answers unknown paths with the standard envelope.
func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "API endpoint not found")
}
