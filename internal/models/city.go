package models

// CityMatch is a city search result.
type CityMatch struct {
	Name       string  `json:"name"`
	Country    string  `json:"country"`
	State      string  `json:"state"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Display    string  `json:"display"`
	Population int64   `json:"population"`
}

// Place is the result of reverse geocoding a coordinate pair.
type Place struct {
	City    string  `json:"city"`
	Country string  `json:"country"`
	State   string  `json:"state"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// DisplayName renders "Name, CC (State)", omitting an empty state.
func DisplayName(name, state, country string) string {
	if state != "" {
		return name + ", " + country + " (" + state + ")"
	}
	return name + ", " + country
}
