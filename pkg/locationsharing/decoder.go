package locationsharing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/benmeehan/location-agent/pkg/location"
)

// selfLocationIndex is the position of the authenticated account's own
// shared-location entry in the top level array.
const selfLocationIndex = 9

// Positions inside the self-location entry.
var (
	pathID        = []int{0, 0}
	pathPhotoURL  = []int{0, 1}
	pathName      = []int{0, 3}
	pathLongitude = []int{1, 1, 1}
	pathLatitude  = []int{1, 1, 2}
	pathTimestamp = []int{1, 2}
	pathAccuracy  = []int{1, 3}
	pathAddress   = []int{1, 4}
	pathBattery   = []int{13, 1}
)

// Decode parses a raw location sharing response body.
//
// The first line of the body is a framing prefix and is discarded; the rest
// must be a JSON array. Only the authenticated account's own entry is
// extracted, so a successful decode always yields exactly one record.
func Decode(body []byte) ([]location.UserLocation, error) {
	payload, err := stripEnvelope(body)
	if err != nil {
		return nil, err
	}

	var root []any
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: payload is not an array", ErrMalformed)
	}

	self := newNode(root).at(selfLocationIndex)
	entry, ok := self.array()
	if !ok || len(entry) == 0 {
		return nil, ErrNoLocationData
	}

	user := extractUserLocation(self)
	if user.ID == "" {
		return nil, fmt.Errorf("%w: entry has no user id", ErrNoLocationData)
	}

	return []location.UserLocation{user}, nil
}

func stripEnvelope(body []byte) ([]byte, error) {
	idx := bytes.IndexByte(body, '\n')
	if idx < 0 {
		return nil, fmt.Errorf("%w: missing envelope line", ErrMalformed)
	}

	payload := bytes.TrimSpace(body[idx+1:])
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty body after envelope", ErrMalformed)
	}
	return payload, nil
}

func extractUserLocation(entry node) location.UserLocation {
	var u location.UserLocation

	if id, ok := entry.at(pathID...).str(); ok {
		u.ID = id
	}
	if photo, ok := entry.at(pathPhotoURL...).str(); ok {
		u.PhotoURL = &photo
	}
	if name, ok := entry.at(pathName...).str(); ok {
		u.Name = &name
	}

	lat, latOK := entry.at(pathLatitude...).float()
	lon, lonOK := entry.at(pathLongitude...).float()
	if latOK && lonOK {
		u.Latitude = &lat
		u.Longitude = &lon
	}

	if ts, ok := entry.at(pathTimestamp...).float(); ok {
		millis := int64(ts)
		u.TimestampMillis = &millis
	}
	if acc, ok := entry.at(pathAccuracy...).float(); ok && acc >= 0 {
		u.AccuracyMeters = &acc
	}
	if addr, ok := entry.at(pathAddress...).str(); ok {
		u.Address = &addr
	}
	if battery, ok := entry.at(pathBattery...).float(); ok && battery >= 0 && battery <= 100 {
		pct := int(math.Round(battery))
		u.BatteryPercent = &pct
	}

	return u
}
