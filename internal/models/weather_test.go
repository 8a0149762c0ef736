package models

import (
	"encoding/json"
	"testing"
)

func TestParseUnitSystem(t *testing.T) {
	tests := []struct {
		in      string
		want    UnitSystem
		wantErr bool
	}{
		{"", Metric, false},
		{"metric", Metric, false},
		{" Imperial ", Imperial, false},
		{"kelvin", "", true},
	}
	for _, tt := range tests {
		got, err := ParseUnitSystem(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseUnitSystem(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseUnitSystem(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVisibility_JSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		A Visibility `json:"a"`
		B Visibility `json:"b"`
	}{A: VisibilityOf(10), B: Visibility{}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `{"a":10,"b":"N/A"}` {
		t.Errorf("Marshal() = %s", raw)
	}

	var back struct {
		A Visibility `json:"a"`
		B Visibility `json:"b"`
	}
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !back.A.Available || back.A.Value != 10 || back.B.Available {
		t.Errorf("Unmarshal() = %+v", back)
	}
}

// TestWeatherRecord_Clone verifies the clone shares no mutable state with the original.
func TestWeatherRecord_Clone(t *testing.T) {
	orig := WeatherRecord{
		Current:    CurrentConditions{City: "London", Temp: 15},
		Hourly:     []HourlyForecast{{Temp: 10}},
		Daily:      []DailyForecast{{TempMax: 12, TempMin: 5}},
		AirQuality: &AirQuality{AQI: 2, Components: map[string]float64{"co": 1}},
		Alerts:     []Alert{{Event: "Wind"}},
	}
	c := orig.Clone()
	c.Current.Temp = 99
	c.Hourly[0].Temp = 99
	c.Daily[0].TempMax = 99
	c.AirQuality.AQI = 5
	c.AirQuality.Components["co"] = 99
	c.Alerts[0].Event = "changed"

	if orig.Current.Temp != 15 || orig.Hourly[0].Temp != 10 || orig.Daily[0].TempMax != 12 {
		t.Errorf("original forecast mutated: %+v", orig)
	}
	if orig.AirQuality.AQI != 2 || orig.AirQuality.Components["co"] != 1 {
		t.Errorf("original air quality mutated: %+v", orig.AirQuality)
	}
	if orig.Alerts[0].Event != "Wind" {
		t.Errorf("original alerts mutated: %+v", orig.Alerts)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("Paris", "", "FR"); got != "Paris, FR" {
		t.Errorf("DisplayName() = %q", got)
	}
	if got := DisplayName("Springfield", "IL", "US"); got != "Springfield, US (IL)" {
		t.Errorf("DisplayName() = %q", got)
	}
}
