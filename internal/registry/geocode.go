package registry

import (
	"fmt"

	"github.com/kelvins/geocoder"
)

// GoogleGeocoder resolves place names through the Google Geocoding API.
type GoogleGeocoder struct{}

// NewGoogleGeocoder configures the shared geocoder client with the API key
// and returns a resolver for the registry.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{}
}

func (g *GoogleGeocoder) Resolve(name string) (float64, float64, error) {
	loc, err := geocoder.Geocoding(geocoder.Address{City: name})
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding request: %w", err)
	}
	return loc.Latitude, loc.Longitude, nil
}
