// Package geofence decides whether tracked users are inside their fences.
package geofence

import (
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/location"
)

// Evaluate returns one FenceState per fence whose user is present with a
// position in users. Fences without a matching positioned user are omitted so
// that their previous state is retained by the caller.
func Evaluate(fences []models.Fence, users []location.UserLocation) []models.FenceState {
	states := make([]models.FenceState, 0, len(fences))

	for _, fence := range fences {
		user, ok := findUser(users, fence.UserID)
		if !ok || !user.HasPosition() {
			continue
		}

		distance := location.Haversine(
			location.Point{Latitude: *user.Latitude, Longitude: *user.Longitude},
			location.Point{Latitude: fence.CenterLatitude, Longitude: fence.CenterLongitude},
		)

		states = append(states, models.FenceState{
			FenceID: fence.FenceID,
			Inside:  distance <= fence.RadiusMeters,
		})
	}

	return states
}

// findUser returns the first user with the given id.
func findUser(users []location.UserLocation, id string) (location.UserLocation, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return location.UserLocation{}, false
}
