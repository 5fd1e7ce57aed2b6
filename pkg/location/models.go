package location

// UserLocation is one tracked person's normalized state for a single poll cycle.
// Every field except ID is optional; nil means the upstream omitted it.
type UserLocation struct {
	ID              string   `json:"id"`
	PhotoURL        *string  `json:"photoURL,omitempty"`
	Name            *string  `json:"name,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	Address         *string  `json:"address,omitempty"`
	BatteryPercent  *int     `json:"battery,omitempty"`
	TimestampMillis *int64   `json:"timestamp,omitempty"`
	AccuracyMeters  *float64 `json:"accuracy,omitempty"`
}

// HasPosition reports whether both coordinates are present.
func (u UserLocation) HasPosition() bool {
	return u.Latitude != nil && u.Longitude != nil
}

// DisplayName returns the name if known, otherwise the id.
func (u UserLocation) DisplayName() string {
	if u.Name != nil {
		return *u.Name
	}
	return u.ID
}

// WithAddress returns a copy of u carrying the given address.
func (u UserLocation) WithAddress(address string) UserLocation {
	u.Address = &address
	return u
}

// Point is a position in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}
