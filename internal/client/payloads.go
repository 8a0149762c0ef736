package client

// Wire shapes of the OpenWeather responses. Only fields the normalizer reads are declared.

type owCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type oneCallResponse struct {
	TimezoneOffset int `json:"timezone_offset"`
	Current        struct {
		Dt         int64         `json:"dt"`
		Sunrise    int64         `json:"sunrise"`
		Sunset     int64         `json:"sunset"`
		Temp       *float64      `json:"temp"`
		FeelsLike  float64       `json:"feels_like"`
		Pressure   int           `json:"pressure"`
		Humidity   int           `json:"humidity"`
		UVI        float64       `json:"uvi"`
		Visibility *float64      `json:"visibility"`
		WindSpeed  float64       `json:"wind_speed"`
		Weather    []owCondition `json:"weather"`
	} `json:"current"`
	Hourly []struct {
		Dt        int64         `json:"dt"`
		Temp      float64       `json:"temp"`
		Humidity  int           `json:"humidity"`
		WindSpeed float64       `json:"wind_speed"`
		Pop       float64       `json:"pop"`
		Weather   []owCondition `json:"weather"`
	} `json:"hourly"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Humidity  int           `json:"humidity"`
		WindSpeed float64       `json:"wind_speed"`
		Pop       float64       `json:"pop"`
		UVI       float64       `json:"uvi"`
		Weather   []owCondition `json:"weather"`
	} `json:"daily"`
	Alerts []struct {
		Event       string `json:"event"`
		Description string `json:"description"`
		Start       int64  `json:"start"`
		End         int64  `json:"end"`
	} `json:"alerts"`
}

type currentResponse struct {
	Dt       int64  `json:"dt"`
	Timezone int    `json:"timezone"`
	Name     string `json:"name"`
	Main     struct {
		Temp      *float64 `json:"temp"`
		FeelsLike float64  `json:"feels_like"`
		Pressure  int      `json:"pressure"`
		Humidity  int      `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility *float64 `json:"visibility"`
	Sys        struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Weather []owCondition `json:"weather"`
	Coord   struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
}

type forecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity int     `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Pop     float64       `json:"pop"`
		Weather []owCondition `json:"weather"`
	} `json:"list"`
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

type airPollutionResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components map[string]float64 `json:"components"`
	} `json:"list"`
}

type geoResult struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}
