package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/kjstillabower/geoweather-gateway/internal/apperr"
)

// Variables requested from the forecast API.
var (
	DailyVariables = []string{
		"weathercode",
		"temperature_2m_max",
		"temperature_2m_min",
		"precipitation_probability_max",
	}
	HourlyVariables = []string{
		"temperature_2m",
		"relative_humidity_2m",
		"weathercode",
		"precipitation_probability",
		"pressure_msl",
	}
)

// Forecaster fetches raw multi-day forecasts.
type Forecaster interface {
	Forecast(ctx context.Context, p ForecastParams) (ForecastResponse, error)
}

// ForecastParams selects the point and horizon of a forecast.
type ForecastParams struct {
	Latitude  float64
	Longitude float64
	Timezone  string
	Days      int
	Hourly    bool
}

// ForecastResponse is the forecast API payload. Array entries are pointers
// because the API reports missing samples as null.
type ForecastResponse struct {
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	Timezone       string          `json:"timezone"`
	CurrentWeather *CurrentWeather `json:"current_weather"`
	Daily          DailySeries     `json:"daily"`
	Hourly         HourlySeries    `json:"hourly"`
}

// CurrentWeather is the current_weather block.
type CurrentWeather struct {
	Temperature   float64  `json:"temperature"`
	Windspeed     float64  `json:"windspeed"`
	Winddirection *float64 `json:"winddirection"`
	Weathercode   *int     `json:"weathercode"`
	IsDay         *int     `json:"is_day"`
	Time          string   `json:"time"`
}

// DailySeries holds the parallel daily arrays.
type DailySeries struct {
	Time                        []string   `json:"time"`
	Weathercode                 []*int     `json:"weathercode"`
	Temperature2mMax            []*float64 `json:"temperature_2m_max"`
	Temperature2mMin            []*float64 `json:"temperature_2m_min"`
	PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
}

// HourlySeries holds the parallel hourly arrays.
type HourlySeries struct {
	Time                     []string   `json:"time"`
	Temperature2m            []*float64 `json:"temperature_2m"`
	RelativeHumidity2m       []*float64 `json:"relative_humidity_2m"`
	Weathercode              []*int     `json:"weathercode"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	PressureMsl              []*float64 `json:"pressure_msl"`
}

// Forecast fetches the forecast for p. Failures are *apperr.APIError with Code
// apperr.CodeForecast.
func (c *OpenMeteoClient) Forecast(ctx context.Context, p ForecastParams) (ForecastResponse, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(p.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(p.Longitude, 'f', -1, 64))
	params.Set("timezone", p.Timezone)
	params.Set("current_weather", "true")
	params.Set("forecast_days", strconv.Itoa(p.Days))
	params.Set("daily", strings.Join(DailyVariables, ","))
	if p.Hourly {
		params.Set("hourly", strings.Join(HourlyVariables, ","))
	}

	var resp ForecastResponse
	if err := c.getJSON(ctx, UpstreamForecast, apperr.CodeForecast, c.forecastURL, params, &resp); err != nil {
		return ForecastResponse{}, err
	}
	return resp, nil
}
