package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/kjstillabower/geoweather-gateway/internal/apperr"
	"github.com/kjstillabower/geoweather-gateway/internal/models"
)

// Geocoder searches a remote place-name service.
type Geocoder interface {
	GeocodeSearch(ctx context.Context, name string, count int, language string) ([]models.GeoCandidate, error)
}

type geocodingResponse struct {
	Results []struct {
		Name        string  `json:"name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Country     string  `json:"country"`
		CountryCode string  `json:"country_code"`
		Admin1      string  `json:"admin1"`
		Timezone    string  `json:"timezone"`
	} `json:"results"`
}

// GeocodeSearch looks name up in the Open-Meteo geocoding API. A response
// without results yields an empty slice, not an error. Failures are
// *apperr.APIError with Code apperr.CodeGeocode.
func (c *OpenMeteoClient) GeocodeSearch(ctx context.Context, name string, count int, language string) ([]models.GeoCandidate, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("count", strconv.Itoa(count))
	params.Set("language", language)
	params.Set("format", "json")

	var resp geocodingResponse
	if err := c.getJSON(ctx, UpstreamGeocoding, apperr.CodeGeocode, c.geocodingURL, params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.GeoCandidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, models.GeoCandidate{
			Name:        r.Name,
			Country:     r.Country,
			CountryCode: r.CountryCode,
			Admin1:      r.Admin1,
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
			Timezone:    r.Timezone,
		})
	}
	return out, nil
}
