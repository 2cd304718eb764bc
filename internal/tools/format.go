package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kjstillabower/geoweather-gateway/internal/models"
)

// FormatGeocode renders a geocoding result as numbered candidate lines.
func FormatGeocode(r models.GeocodingResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "検索: %s\n", r.Query)
	if len(r.Candidates) == 0 {
		b.WriteString("候補が見つかりませんでした。")
		return b.String()
	}
	b.WriteString("候補:")
	for i, c := range r.Candidates {
		fmt.Fprintf(&b, "\n%d. %s (%s, %s)", i+1, candidateLabel(c), num(c.Latitude), num(c.Longitude))
	}
	return b.String()
}

// candidateLabel is "name（admin1） / country" with absent parts dropped.
func candidateLabel(c models.GeoCandidate) string {
	label := c.Name
	if c.Admin1 != "" {
		label += "（" + c.Admin1 + "）"
	}
	if c.Country != "" {
		label += " / " + c.Country
	}
	return label
}

// FormatForecast renders a forecast as a coordinate header, the current
// conditions and one line per day.
func FormatForecast(r models.ForecastResult) string {
	loc := r.Location
	lines := make([]string, 0, len(r.Daily)+2)

	header := fmt.Sprintf("座標: %s, %s (%s)", num(loc.Latitude), num(loc.Longitude), loc.Timezone)
	if loc.Label != "" {
		header += " / " + loc.Label
	}
	lines = append(lines, header)

	if r.Current != nil {
		lines = append(lines, fmt.Sprintf("いま: %s℃ / 風 %s", num(r.Current.TemperatureC), num(r.Current.Windspeed)))
	}
	for _, d := range r.Daily {
		lines = append(lines, fmt.Sprintf("%s: %s / %s〜%s℃ / 降水 最大%s%%",
			d.Date, d.SummaryJA, optNum(d.TempMinC), optNum(d.TempMaxC), optNum(d.PrecipProbMaxPercent)))
	}
	return strings.Join(lines, "\n")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// optNum renders a missing sample as "-".
func optNum(v *float64) string {
	if v == nil {
		return "-"
	}
	return num(*v)
}
