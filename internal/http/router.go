package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

// RouterConfig holds the cross-cutting settings applied by NewRouter.
type RouterConfig struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter
	CORSOrigins    []string
	InFlight       *InFlightTracker
}

// NewRouter wires the handlers and middleware chain. /api routes are rate limited and carry
// a request deadline; /health and /metrics are not.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	if cfg.InFlight == nil {
		cfg.InFlight = &InFlightTracker{}
	}
	router := mux.NewRouter()
	router.NotFoundHandler = CorrelationIDMiddleware(h.logger)(http.HandlerFunc(notFound))
	router.MethodNotAllowedHandler = CorrelationIDMiddleware(h.logger)(http.HandlerFunc(methodNotAllowed))

	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware)
	router.Use(cfg.InFlight.Middleware)
	router.Use(CORSMiddleware(cfg.CORSOrigins))

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, h.traffic))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/weather", h.PostWeather).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/search", h.GetSearch).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/geolocation", h.PostGeolocation).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/compare", h.PostCompare).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/favorites/bulk", h.PostFavoritesBulk).Methods(http.MethodPost, http.MethodOptions)

	return router
}
