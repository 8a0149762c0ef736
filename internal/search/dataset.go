package search

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// City is one entry of the local city dataset.
type City struct {
	Name       string
	Country    string
	State      string
	Lat        float64
	Lon        float64
	Population int64

	lowerName string
}

// datasetRecord accepts the field spellings found in common city dumps:
// lng or lon for longitude, adminCode or admin1 for the region, numbers or strings for values.
type datasetRecord struct {
	Name       string   `json:"name"`
	Country    string   `json:"country"`
	AdminCode  string   `json:"adminCode"`
	Admin1     string   `json:"admin1"`
	Lat        flexible `json:"lat"`
	Lng        flexible `json:"lng"`
	Lon        flexible `json:"lon"`
	Population flexible `json:"population"`
}

// flexible is a JSON number that may also arrive as a quoted string.
type flexible struct {
	value float64
	set   bool
}

func (f *flexible) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = flexible{}
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		// Unparseable values are treated as missing so one bad row does not reject the file.
		*f = flexible{}
		return nil
	}
	*f = flexible{value: v, set: true}
	return nil
}

// LoadDataset reads a JSON array of cities from path.
func LoadDataset(path string) ([]City, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cities dataset: %w", err)
	}
	defer f.Close()
	return ParseDataset(f)
}

// ParseDataset decodes a JSON array of cities. Rows without a name or valid coordinates are dropped.
func ParseDataset(r io.Reader) ([]City, error) {
	var records []datasetRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("parse cities dataset: %w", err)
	}

	cities := make([]City, 0, len(records))
	for _, rec := range records {
		lon := rec.Lng
		if !lon.set {
			lon = rec.Lon
		}
		if rec.Name == "" || !rec.Lat.set || !lon.set {
			continue
		}
		if rec.Lat.value < -90 || rec.Lat.value > 90 || lon.value < -180 || lon.value > 180 {
			continue
		}
		state := rec.AdminCode
		if state == "" {
			state = rec.Admin1
		}
		var pop int64
		if rec.Population.set && rec.Population.value > 0 {
			pop = int64(rec.Population.value)
		}
		cities = append(cities, City{
			Name:       rec.Name,
			Country:    rec.Country,
			State:      state,
			Lat:        rec.Lat.value,
			Lon:        lon.value,
			Population: pop,
		})
	}
	return cities, nil
}
