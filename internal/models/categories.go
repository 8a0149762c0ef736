package models

// UVInfo describes a UV index band.
type UVInfo struct {
	Level          string `json:"level"`
	Color          string `json:"color"`
	Recommendation string `json:"recommendation"`
}

// UVCategory buckets a UV index: <=2 Low, <=5 Moderate, <=7 High, <=10 Very High, else Extreme.
func UVCategory(uvi float64) UVInfo {
	switch {
	case uvi <= 2:
		return UVInfo{Level: "Low", Color: "#289500", Recommendation: "No protection needed"}
	case uvi <= 5:
		return UVInfo{Level: "Moderate", Color: "#F7D708", Recommendation: "Some protection required"}
	case uvi <= 7:
		return UVInfo{Level: "High", Color: "#F85900", Recommendation: "Protection essential"}
	case uvi <= 10:
		return UVInfo{Level: "Very High", Color: "#D8001C", Recommendation: "Extra protection needed"}
	default:
		return UVInfo{Level: "Extreme", Color: "#6B49C8", Recommendation: "Avoid sun exposure"}
	}
}

// AQIInfo describes an air quality index value.
type AQIInfo struct {
	Level       string
	Color       string
	Description string
}

var aqiCategories = map[int]AQIInfo{
	1: {Level: "Good", Color: "#00E400", Description: "Air quality is satisfactory"},
	2: {Level: "Fair", Color: "#FFFF00", Description: "Air quality is acceptable"},
	3: {Level: "Moderate", Color: "#FF7E00", Description: "Members of sensitive groups may experience health effects"},
	4: {Level: "Poor", Color: "#FF0000", Description: "Health effects may be experienced by everyone"},
	5: {Level: "Very Poor", Color: "#8F3F97", Description: "Health effects will be experienced by everyone"},
}

// AQICategory maps an AQI in 1..5 to its band. Anything else is reported as Good.
func AQICategory(aqi int) AQIInfo {
	if info, ok := aqiCategories[aqi]; ok {
		return info
	}
	return aqiCategories[1]
}

// NewAirQuality builds the air quality block for an AQI value and its pollutant components.
func NewAirQuality(aqi int, components map[string]float64) AirQuality {
	info := AQICategory(aqi)
	return AirQuality{
		AQI:         aqi,
		Level:       info.Level,
		Color:       info.Color,
		Description: info.Description,
		Components:  components,
	}
}
