package location

import (
	"context"
	"errors"

	"googlemaps.github.io/maps"
)

// GoogleGeocoder uses the Google Maps Geocoding API to resolve addresses.
type GoogleGeocoder struct {
	client *maps.Client
}

// NewGoogleGeocoder creates a new GoogleGeocoder instance.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeocoder{
		client: c,
	}, nil
}

// ReverseGeocode returns the formatted address of the best match for p.
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, p Point) (string, error) {
	req := &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Latitude, Lng: p.Longitude},
	}

	results, err := g.client.ReverseGeocode(ctx, req)
	if err != nil {
		return "", err
	}

	if len(results) == 0 || results[0].FormattedAddress == "" {
		return "", errors.New("no address found for position")
	}

	return results[0].FormattedAddress, nil
}
