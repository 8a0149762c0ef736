package models

import "testing"

func TestUVCategory(t *testing.T) {
	tests := []struct {
		uvi  float64
		want string
	}{
		{0, "Low"},
		{2, "Low"},
		{2.1, "Moderate"},
		{5, "Moderate"},
		{7, "High"},
		{9.9, "Very High"},
		{10, "Very High"},
		{10.5, "Extreme"},
	}
	for _, tt := range tests {
		if got := UVCategory(tt.uvi).Level; got != tt.want {
			t.Errorf("UVCategory(%v).Level = %q, want %q", tt.uvi, got, tt.want)
		}
	}
}

// TestAQICategory verifies the 1..5 bands and the Good default for out-of-range values.
func TestAQICategory(t *testing.T) {
	tests := []struct {
		aqi  int
		want string
	}{
		{1, "Good"},
		{2, "Fair"},
		{3, "Moderate"},
		{4, "Poor"},
		{5, "Very Poor"},
		{6, "Good"},
		{0, "Good"},
		{-1, "Good"},
	}
	for _, tt := range tests {
		if got := AQICategory(tt.aqi).Level; got != tt.want {
			t.Errorf("AQICategory(%d).Level = %q, want %q", tt.aqi, got, tt.want)
		}
	}
}

func TestNewAirQuality(t *testing.T) {
	aq := NewAirQuality(3, map[string]float64{"pm2_5": 12.1})
	if aq.Level != "Moderate" || aq.Color != "#FF7E00" {
		t.Errorf("NewAirQuality(3) = %+v", aq)
	}
	if aq.Components["pm2_5"] != 12.1 {
		t.Errorf("Components = %v", aq.Components)
	}
}
