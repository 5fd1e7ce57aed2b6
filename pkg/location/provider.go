package location

import "context"

// Geocoder resolves a coordinate pair into a human readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p Point) (string, error)
}
