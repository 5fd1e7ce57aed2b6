package models

import (
	"errors"
	"time"
)

// ErrPublish marks a failure writing to the store or the notification target.
// It never aborts a poll cycle.
var ErrPublish = errors.New("publish failed")

// Object types and roles used in ObjectMetadata.
const (
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeString  = "string"

	RoleIndicator = "indicator"
	RoleState     = "state"
	RoleValue     = "value"
	RoleText      = "text"
	RoleURL       = "text.url"
	RoleLocation  = "location"
	RoleDate      = "date"
	RoleLatitude  = "value.gps.latitude"
	RoleLongitude = "value.gps.longitude"
	RoleAccuracy  = "value.gps.accuracy"
	RoleBattery   = "value.battery"
	RoleConnected = "indicator.connected"
	RoleButton    = "button"
)

// ObjectMetadata describes a stored object.
type ObjectMetadata struct {
	Name    string `json:"name"`
	Desc    string `json:"desc,omitempty"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Unit    string `json:"unit,omitempty"`
	Default any    `json:"def,omitempty"`
	Read    bool   `json:"read"`
	Write   bool   `json:"write"`
}

// StateValue is the current value of a stored object.
type StateValue struct {
	Value     any       `json:"val"`
	Ack       bool      `json:"ack"`
	Timestamp time.Time `json:"ts"`
}
