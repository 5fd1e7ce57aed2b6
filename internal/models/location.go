package models

import (
	"errors"
	"fmt"
)

// Fence is a configured circular geofence bound to one tracked user.
type Fence struct {
	FenceID         string  `yaml:"fence_id" json:"fence_id"`
	UserID          string  `yaml:"user_id" json:"user_id"`
	CenterLatitude  float64 `yaml:"center_lat" json:"center_lat"`
	CenterLongitude float64 `yaml:"center_long" json:"center_long"`
	RadiusMeters    float64 `yaml:"radius" json:"radius"`
	Description     string  `yaml:"description" json:"description"`
}

// Validate checks the fence invariants.
func (f Fence) Validate() error {
	if f.FenceID == "" {
		return errors.New("fence id is empty")
	}
	if f.UserID == "" {
		return fmt.Errorf("fence %s has no user id", f.FenceID)
	}
	if f.RadiusMeters < 0 {
		return fmt.Errorf("fence %s has negative radius %.2f", f.FenceID, f.RadiusMeters)
	}
	return nil
}

// FenceState is the membership of a fence's user for one poll cycle.
type FenceState struct {
	FenceID string `json:"fence_id"`
	Inside  bool   `json:"inside"`
}

// PlacesMessage is sent to the notification target for every tracked user.
type PlacesMessage struct {
	User      string   `json:"user"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp int64    `json:"timestamp"`
	Address   *string  `json:"address"`
}
