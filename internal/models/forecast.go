package models

// SourceOpenMeteo names the forecast provider in ForecastResult.Source.
const SourceOpenMeteo = "Open-Meteo"

// Location describes the point a forecast was requested for.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Label     string  `json:"label,omitempty"`
	Geohash   string  `json:"geohash,omitempty"`
}

// CurrentWeather is the observation block returned alongside a forecast.
type CurrentWeather struct {
	TemperatureC  float64  `json:"temperature_c"`
	Windspeed     float64  `json:"windspeed"`
	Winddirection *float64 `json:"winddirection,omitempty"`
	IsDay         *int     `json:"is_day,omitempty"`
	Time          string   `json:"time,omitempty"`
}

// HourlyWindow holds the 24 hourly samples belonging to one forecast day.
// Slices are shorter than 24 when the upstream arrays run out.
type HourlyWindow struct {
	Time                     []string   `json:"time"`
	Temperature2m            []*float64 `json:"temperature_2m"`
	RelativeHumidity2m       []*float64 `json:"relative_humidity_2m"`
	Weathercode              []*int     `json:"weathercode"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
}

// Range is a min/max pair over a day's hourly samples.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DailyForecast is one day of a normalized forecast.
type DailyForecast struct {
	Date                 string        `json:"date"`
	Weathercode          *int          `json:"weathercode"`
	SummaryJA            string        `json:"summary_ja"`
	TempMaxC             *float64      `json:"temp_max_c"`
	TempMinC             *float64      `json:"temp_min_c"`
	PrecipProbMaxPercent *float64      `json:"precip_prob_max_percent"`
	Hourly               *HourlyWindow `json:"hourly,omitempty"`
	HumidityRange        *Range        `json:"humidity_range,omitempty"`
	PressureRange        *Range        `json:"pressure_range,omitempty"`
}

// ForecastResult is the structured answer to a forecast lookup.
type ForecastResult struct {
	Kind     string          `json:"kind"`
	Location Location        `json:"location"`
	Current  *CurrentWeather `json:"current"`
	Daily    []DailyForecast `json:"daily"`
	Source   string          `json:"source"`
}
