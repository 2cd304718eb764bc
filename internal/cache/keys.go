package cache

import (
	"strconv"
	"strings"
)

// GeocodeKey builds the cache key for a candidate lookup. The place is
// lower-cased so differently-cased queries share an entry.
func GeocodeKey(place string, count int) string {
	return "geocode:" + strings.ToLower(place) + ":" + strconv.Itoa(count)
}

// ForecastKey builds the cache key for a forecast lookup. Coordinates are
// rendered in shortest round-trip form, so 35.0 and 35 share an entry, and
// negative zero is written as 0. Magnitudes below 1e-6 stay in plain decimal
// (0.0000001), never exponent form.
func ForecastKey(latitude, longitude float64, days int, timezone string) string {
	return "forecast:" + formatCoord(latitude) + ":" + formatCoord(longitude) + ":" + strconv.Itoa(days) + ":" + timezone
}

func formatCoord(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
