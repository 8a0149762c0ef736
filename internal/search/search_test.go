package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kjstillabower/weather-aggregator/internal/models"
)

type mockGeocoder struct {
	matches []models.CityMatch
	err     error
	calls   int
	limit   int
}

func (m *mockGeocoder) DirectGeocode(ctx context.Context, query string, limit int) ([]models.CityMatch, error) {
	m.calls++
	m.limit = limit
	return m.matches, m.err
}

func names(matches []models.CityMatch) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Name
	}
	return out
}

// TestSearch_PrefixBeatsPopulation verifies a prefix match outranks a more populous substring match.
func TestSearch_PrefixBeatsPopulation(t *testing.T) {
	s := NewSearcher([]City{
		{Name: "Logon City", Country: "PH", Lat: 1, Lon: 1, Population: 100},
		{Name: "Babylon", Country: "US", Lat: 2, Lon: 2, Population: 20_000_000},
		{Name: "London", Country: "GB", State: "ENG", Lat: 51.5, Lon: -0.12, Population: 9_000_000},
	}, nil, nil)

	got, err := s.Search(context.Background(), "lon")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "London" || got[1].Name != "Babylon" {
		t.Fatalf("Search(lon) = %v, want [London Babylon]", names(got))
	}
	if got[0].Display != "London, GB (ENG)" || got[0].Population != 9_000_000 {
		t.Errorf("London match = %+v", got[0])
	}
}

// TestSearch_Ordering verifies priority, then population descending, then name ascending.
func TestSearch_Ordering(t *testing.T) {
	s := NewSearcher([]City{
		{Name: "Springfield B", Country: "US", Lat: 1, Lon: 1, Population: 500},
		{Name: "Springfield A", Country: "US", Lat: 2, Lon: 2, Population: 500},
		{Name: "Springfield Big", Country: "US", Lat: 3, Lon: 3, Population: 900},
		{Name: "West Springfield", Country: "US", Lat: 4, Lon: 4, Population: 1_000_000},
	}, nil, nil)

	got, _ := s.Search(context.Background(), "SPRING")
	want := []string{"Springfield Big", "Springfield A", "Springfield B", "West Springfield"}
	if strings.Join(names(got), "|") != strings.Join(want, "|") {
		t.Errorf("Search() = %v, want %v", names(got), want)
	}
}

// TestSearch_CapAndDedupe verifies results are de-duplicated by identity and capped at ten.
func TestSearch_CapAndDedupe(t *testing.T) {
	var cities []City
	for i := 0; i < 15; i++ {
		c := City{Name: fmt.Sprintf("Town %02d", i), Country: "XX", Lat: float64(i), Lon: float64(i)}
		cities = append(cities, c, c)
	}
	s := NewSearcher(cities, nil, nil)

	got, _ := s.Search(context.Background(), "town")
	if len(got) != MaxResults {
		t.Fatalf("len(Search()) = %d, want %d", len(got), MaxResults)
	}
	seen := map[string]bool{}
	for _, m := range got {
		if seen[m.Name] {
			t.Errorf("duplicate result %q", m.Name)
		}
		seen[m.Name] = true
	}
}

func TestSearch_SameNameDifferentCoordinatesKept(t *testing.T) {
	s := NewSearcher([]City{
		{Name: "Paris", Country: "FR", Lat: 48.85, Lon: 2.35},
		{Name: "Paris", Country: "US", State: "TX", Lat: 33.66, Lon: -95.55},
	}, nil, nil)
	got, _ := s.Search(context.Background(), "paris")
	if len(got) != 2 {
		t.Errorf("Search() = %v, want both Paris entries", got)
	}
}

func TestSearch_ShortQuery(t *testing.T) {
	geo := &mockGeocoder{}
	s := NewSearcher([]City{{Name: "London", Lat: 1, Lon: 1}}, geo, nil)
	for _, q := range []string{"", "l", "  l  "} {
		got, err := s.Search(context.Background(), q)
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("Search(%q) = %v, %v; want empty, nil", q, got, err)
		}
	}
	if geo.calls != 0 {
		t.Error("short query should not reach the geocoder")
	}
}

// TestSearch_GeocoderFallback verifies the geocoder is used only without a dataset, capped at five.
func TestSearch_GeocoderFallback(t *testing.T) {
	var remote []models.CityMatch
	for i := 0; i < 7; i++ {
		remote = append(remote, models.CityMatch{Name: fmt.Sprintf("R%d", i)})
	}
	geo := &mockGeocoder{matches: remote}
	s := NewSearcher(nil, geo, nil)

	got, err := s.Search(context.Background(), "rome")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if geo.limit != GeocodeLimit || len(got) != GeocodeLimit || got[0].Name != "R0" {
		t.Errorf("limit=%d got=%v", geo.limit, names(got))
	}

	withDataset := NewSearcher([]City{{Name: "Rome", Lat: 41.9, Lon: 12.5}}, geo, nil)
	geo.calls = 0
	if _, err := withDataset.Search(context.Background(), "rome"); err != nil || geo.calls != 0 {
		t.Errorf("dataset search should not call the geocoder (calls=%d, err=%v)", geo.calls, err)
	}
}

func TestSearch_GeocoderError(t *testing.T) {
	boom := errors.New("boom")
	s := NewSearcher(nil, &mockGeocoder{err: boom}, nil)
	if _, err := s.Search(context.Background(), "rome"); !errors.Is(err, boom) {
		t.Errorf("Search() error = %v, want %v", err, boom)
	}
}

func TestSearch_NoSources(t *testing.T) {
	s := NewSearcher(nil, nil, nil)
	got, err := s.Search(context.Background(), "rome")
	if err != nil || len(got) != 0 {
		t.Errorf("Search() = %v, %v; want empty", got, err)
	}
}

// TestParseDataset verifies field aliases, string coordinates and skipping of invalid rows.
func TestParseDataset(t *testing.T) {
	data := `[
	  {"name": "London", "country": "GB", "lat": "51.50853", "lng": "-0.12574", "adminCode": "ENG", "population": 7556900},
	  {"name": "Paris", "country": "FR", "lat": 48.85, "lon": 2.35, "admin1": "IDF", "population": "2138551"},
	  {"name": "Nowhere", "country": "XX", "lat": "", "lng": "1"},
	  {"name": "Broken", "country": "XX", "lat": "abc", "lon": 1},
	  {"name": "NoLon", "country": "XX", "lat": 10},
	  {"name": "OutOfRange", "country": "XX", "lat": 95, "lon": 1},
	  {"country": "XX", "lat": 1, "lon": 1}
	]`
	cities, err := ParseDataset(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ParseDataset() error = %v", err)
	}
	if len(cities) != 2 {
		t.Fatalf("len(cities) = %d, want 2: %+v", len(cities), cities)
	}
	if c := cities[0]; c.Lat != 51.50853 || c.Lon != -0.12574 || c.State != "ENG" || c.Population != 7556900 {
		t.Errorf("London = %+v", c)
	}
	if c := cities[1]; c.Lon != 2.35 || c.State != "IDF" || c.Population != 2138551 {
		t.Errorf("Paris = %+v", c)
	}
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.json")
	if err := os.WriteFile(path, []byte(`[{"name":"Oslo","country":"NO","lat":59.91,"lng":10.75}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	cities, err := LoadDataset(path)
	if err != nil || len(cities) != 1 {
		t.Fatalf("LoadDataset() = %v, %v", cities, err)
	}
	if _, err := LoadDataset(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadDataset(missing) error = nil, want error")
	}
	if _, err := ParseDataset(strings.NewReader(`{"not": "an array"}`)); err == nil {
		t.Error("ParseDataset(object) error = nil, want error")
	}
}
