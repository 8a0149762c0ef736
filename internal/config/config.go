package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

// Config holds service configuration loaded from .env, YAML and secrets.
type Config struct {
	ServerPort string
	LogLevel   string

	// WeatherAPIKey may be empty; the service then starts unconfigured.
	WeatherAPIKey  string
	WeatherAPIURL  string
	WeatherTimeout time.Duration
	GeoTimeout     time.Duration

	RequestTimeout       time.Duration
	CoalesceTimeout      time.Duration
	FavoritesConcurrency int

	CacheTTL      time.Duration
	WarmInterval  time.Duration
	WarmLocations []models.Location

	CitiesPath string

	RateLimitRPS   int
	RateLimitBurst int
	CORSOrigins    []string

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerTimeout          time.Duration
	CircuitBreakerHalfOpenRequests int

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	TrackedLocations []string
}

type fileConfig struct {
	Server struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL        string `yaml:"url"`
		Timeout    string `yaml:"timeout"`
		GeoTimeout string `yaml:"geo_timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout              string `yaml:"timeout"`
		CoalesceTimeout      string `yaml:"coalesce_timeout"`
		FavoritesConcurrency int    `yaml:"favorites_concurrency"`
	} `yaml:"request"`

	Cache struct {
		TTL          string         `yaml:"ttl"`
		WarmInterval string         `yaml:"warm_interval"`
		Warm         []warmLocation `yaml:"warm_locations"`
	} `yaml:"cache"`

	Search struct {
		CitiesPath string `yaml:"cities_path"`
	} `yaml:"search"`

	Reliability struct {
		RateLimitRPS   int      `yaml:"rate_limit_rps"`
		RateLimitBurst int      `yaml:"rate_limit_burst"`
		CORSOrigins    []string `yaml:"cors_origins"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			Timeout          string `yaml:"timeout"`
			HalfOpenRequests int    `yaml:"half_open_requests"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type warmLocation struct {
	Name string   `yaml:"name"`
	Lat  *float64 `yaml:"lat"`
	Lon  *float64 `yaml:"lon"`
}

type secretsFile struct {
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
}

// Load reads .env (if present), config/{ENV_NAME}.yaml (default dev) and the API key from
// OPENWEATHER_API_KEY or config/secrets.yaml. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "5000")
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Server.LogLevel, "INFO")

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org")
	cfg.WeatherTimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.GeoTimeout = parseDurationOrZero(fc.WeatherAPI.GeoTimeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 35*time.Second)
	cfg.CoalesceTimeout = parseDuration(fc.Request.CoalesceTimeout, 30*time.Second)
	cfg.FavoritesConcurrency = fc.Request.FavoritesConcurrency
	if cfg.FavoritesConcurrency <= 0 {
		cfg.FavoritesConcurrency = 4
	}

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 600*time.Second)
	cfg.WarmInterval = parseDuration(fc.Cache.WarmInterval, 5*time.Minute)
	for _, w := range fc.Cache.Warm {
		if w.Lat == nil || w.Lon == nil {
			return nil, fmt.Errorf("cache.warm_locations: %q needs lat and lon", w.Name)
		}
		cfg.WarmLocations = append(cfg.WarmLocations, models.Location{Lat: *w.Lat, Lon: *w.Lon, Name: w.Name})
	}

	cfg.CitiesPath = firstNonEmpty(os.Getenv("CITIES_PATH"), fc.Search.CitiesPath)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.CORSOrigins = fc.Reliability.CORSOrigins
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)
	cfg.CircuitBreakerHalfOpenRequests = cb.HalfOpenRequests
	if cfg.CircuitBreakerHalfOpenRequests <= 0 {
		cfg.CircuitBreakerHalfOpenRequests = 1
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}
	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey returns the key from OPENWEATHER_API_KEY or config/secrets.yaml. A missing key is not an error.
func loadAPIKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY")); key != "" {
		return key, nil
	}
	data, err := os.ReadFile(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.OpenWeatherAPIKey), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// parseDuration parses s and returns defaultVal if parsing fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses s, returning defaultVal on empty input or parse error.
// Zero or negative durations are returned as-is for validate to reject.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate rejects non-positive upstream timeouts and a warm interval that would let warmed
// entries expire. RequestTimeout is raised to cover a primary attempt, the fallback and air quality.
func validate(cfg *Config) error {
	if cfg.WeatherTimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.GeoTimeout <= 0 {
		return fmt.Errorf("weather_api.geo_timeout must be positive")
	}
	if floor := 3*cfg.WeatherTimeout + time.Second; cfg.RequestTimeout < floor {
		cfg.RequestTimeout = floor
	}
	if len(cfg.WarmLocations) > 0 && cfg.WarmInterval >= cfg.CacheTTL {
		return fmt.Errorf("cache.warm_interval (%s) must be shorter than cache.ttl (%s)", cfg.WarmInterval, cfg.CacheTTL)
	}
	return nil
}
