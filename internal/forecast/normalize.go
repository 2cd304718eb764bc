// Package forecast reshapes Open-Meteo forecasts into per-day records and
// serves them through the forecast cache.
package forecast

import (
	"github.com/kjstillabower/geoweather-gateway/internal/client"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
)

// HoursPerDay is the width of each day's hourly window.
const HoursPerDay = 24

// Normalize produces one DailyForecast per entry of raw.Daily.Time. Day i
// takes hourly samples [24*i, 24*i+24); windows past the end of the hourly
// arrays are short or empty. withHourly controls whether the window itself is
// attached; humidity and pressure ranges are computed either way and omitted
// when the window has no samples.
func Normalize(raw client.ForecastResponse, withHourly bool) []models.DailyForecast {
	d := raw.Daily
	h := raw.Hourly
	out := make([]models.DailyForecast, 0, len(d.Time))

	for i, date := range d.Time {
		code := at(d.Weathercode, i)
		day := models.DailyForecast{
			Date:                 date,
			Weathercode:          code,
			SummaryJA:            SummaryJA(code),
			TempMaxC:             at(d.Temperature2mMax, i),
			TempMinC:             at(d.Temperature2mMin, i),
			PrecipProbMaxPercent: at(d.PrecipitationProbabilityMax, i),
			HumidityRange:        valueRange(window(h.RelativeHumidity2m, i)),
			PressureRange:        valueRange(window(h.PressureMsl, i)),
		}
		if withHourly && len(h.Time) > 0 {
			day.Hourly = &models.HourlyWindow{
				Time:                     window(h.Time, i),
				Temperature2m:            window(h.Temperature2m, i),
				RelativeHumidity2m:       window(h.RelativeHumidity2m, i),
				Weathercode:              window(h.Weathercode, i),
				PrecipitationProbability: window(h.PrecipitationProbability, i),
			}
		}
		out = append(out, day)
	}
	return out
}

// Current maps the current_weather block, or returns nil when absent.
func Current(raw client.ForecastResponse) *models.CurrentWeather {
	cw := raw.CurrentWeather
	if cw == nil {
		return nil
	}
	return &models.CurrentWeather{
		TemperatureC:  cw.Temperature,
		Windspeed:     cw.Windspeed,
		Winddirection: cw.Winddirection,
		IsDay:         cw.IsDay,
		Time:          cw.Time,
	}
}

func at[T any](s []*T, i int) *T {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

// window returns day's slice of s, never nil.
func window[T any](s []T, day int) []T {
	start := day * HoursPerDay
	if start >= len(s) {
		return []T{}
	}
	end := start + HoursPerDay
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

func valueRange(vals []*float64) *models.Range {
	var r *models.Range
	for _, v := range vals {
		if v == nil {
			continue
		}
		if r == nil {
			r = &models.Range{Min: *v, Max: *v}
			continue
		}
		if *v < r.Min {
			r.Min = *v
		}
		if *v > r.Max {
			r.Max = *v
		}
	}
	return r
}
