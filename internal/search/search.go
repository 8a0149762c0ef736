// Package search ranks city-name matches for autocomplete and name resolution.
package search

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-aggregator/internal/models"
	"github.com/kjstillabower/weather-aggregator/internal/observability"
)

const (
	MinQueryLength = 2
	MaxResults     = 10
	GeocodeLimit   = 5
)

const (
	priorityPrefix   = 1
	priorityContains = 2
)

// Geocoder resolves free text to places. Implemented by client.OpenWeatherClient.
type Geocoder interface {
	DirectGeocode(ctx context.Context, query string, limit int) ([]models.CityMatch, error)
}

// Searcher answers city queries from a local dataset, or from a Geocoder when no dataset is loaded.
type Searcher struct {
	cities   []City
	geocoder Geocoder
	logger   *zap.Logger
}

// NewSearcher creates a Searcher. Either source may be empty; with neither, every search is empty.
func NewSearcher(cities []City, geocoder Geocoder, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	indexed := make([]City, len(cities))
	for i, c := range cities {
		c.lowerName = strings.ToLower(c.Name)
		indexed[i] = c
	}
	return &Searcher{cities: indexed, geocoder: geocoder, logger: logger}
}

// HasDataset reports whether a local dataset is loaded.
func (s *Searcher) HasDataset() bool {
	return len(s.cities) > 0
}

type ranked struct {
	city     City
	priority int
}

type dedupeKey struct {
	name, country string
	lat, lon      float64
}

// Search returns up to MaxResults matches ordered by match priority, population (descending) and name.
// Queries shorter than MinQueryLength runes return no results.
func (s *Searcher) Search(ctx context.Context, query string) ([]models.CityMatch, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return []models.CityMatch{}, nil
	}

	if !s.HasDataset() {
		return s.searchRemote(ctx, query)
	}
	observability.CitySearchTotal.WithLabelValues("dataset").Inc()

	needle := strings.ToLower(query)
	var matches []ranked
	for _, c := range s.cities {
		switch {
		case strings.HasPrefix(c.lowerName, needle):
			matches = append(matches, ranked{city: c, priority: priorityPrefix})
		case strings.Contains(c.lowerName, needle):
			matches = append(matches, ranked{city: c, priority: priorityContains})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.city.Population != b.city.Population {
			return a.city.Population > b.city.Population
		}
		return a.city.Name < b.city.Name
	})

	seen := make(map[dedupeKey]struct{}, len(matches))
	out := make([]models.CityMatch, 0, MaxResults)
	for _, m := range matches {
		key := dedupeKey{m.city.Name, m.city.Country, m.city.Lat, m.city.Lon}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.CityMatch{
			Name:       m.city.Name,
			Country:    m.city.Country,
			State:      m.city.State,
			Lat:        m.city.Lat,
			Lon:        m.city.Lon,
			Display:    models.DisplayName(m.city.Name, m.city.State, m.city.Country),
			Population: m.city.Population,
		})
		if len(out) == MaxResults {
			break
		}
	}
	return out, nil
}

// searchRemote keeps the provider's order and caps at GeocodeLimit.
func (s *Searcher) searchRemote(ctx context.Context, query string) ([]models.CityMatch, error) {
	if s.geocoder == nil {
		observability.CitySearchTotal.WithLabelValues("none").Inc()
		s.logger.Debug("city search unavailable: no dataset and no geocoder")
		return []models.CityMatch{}, nil
	}
	observability.CitySearchTotal.WithLabelValues("geocoder").Inc()

	matches, err := s.geocoder.DirectGeocode(ctx, query, GeocodeLimit)
	if err != nil {
		return nil, err
	}
	if len(matches) > GeocodeLimit {
		matches = matches[:GeocodeLimit]
	}
	if matches == nil {
		matches = []models.CityMatch{}
	}
	return matches, nil
}
