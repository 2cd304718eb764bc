package models

// GeoCandidate is one possible resolution of a place query.
type GeoCandidate struct {
	Name        string  `json:"name"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Admin1      string  `json:"admin1,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone,omitempty"`
}

// GeocodingResult is the structured answer to a place lookup.
// Days echoes the forecast horizon the caller intends to request next.
type GeocodingResult struct {
	Kind       string         `json:"kind"`
	Query      string         `json:"query"`
	Days       int            `json:"days,omitempty"`
	Candidates []GeoCandidate `json:"candidates"`
}

// KindGeocode and KindForecast tag structured results.
const (
	KindGeocode  = "geocode"
	KindForecast = "forecast"
)
