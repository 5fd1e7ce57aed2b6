package reconciler

import (
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/location"
)

// Field names used as the last segment of user state keys.
const (
	fieldID        = "id"
	fieldPhotoURL  = "photoURL"
	fieldName      = "name"
	fieldLatitude  = "latitude"
	fieldLongitude = "longitude"
	fieldAddress   = "address"
	fieldBattery   = "battery"
	fieldTimestamp = "timestamp"
	fieldAccuracy  = "accuracy"
)

type field struct {
	name  string
	value any
}

// userFields lists the fields of u that are present.
func userFields(u location.UserLocation) []field {
	fields := []field{{fieldID, u.ID}}

	if u.PhotoURL != nil {
		fields = append(fields, field{fieldPhotoURL, *u.PhotoURL})
	}
	if u.Name != nil {
		fields = append(fields, field{fieldName, *u.Name})
	}
	if u.HasPosition() {
		fields = append(fields,
			field{fieldLatitude, *u.Latitude},
			field{fieldLongitude, *u.Longitude},
		)
	}
	if u.Address != nil {
		fields = append(fields, field{fieldAddress, *u.Address})
	}
	if u.BatteryPercent != nil {
		fields = append(fields, field{fieldBattery, *u.BatteryPercent})
	}
	if u.TimestampMillis != nil {
		fields = append(fields, field{fieldTimestamp, *u.TimestampMillis})
	}
	if u.AccuracyMeters != nil {
		fields = append(fields, field{fieldAccuracy, *u.AccuracyMeters})
	}
	return fields
}

// FieldMetadata infers the object metadata of a user field from its name and
// value type.
func FieldMetadata(name string, value any) models.ObjectMetadata {
	meta := models.ObjectMetadata{
		Name:  name,
		Role:  models.RoleState,
		Read:  true,
		Write: false,
	}

	switch value.(type) {
	case float64, int, int64:
		meta.Type = models.TypeNumber
		switch name {
		case fieldLatitude:
			meta.Role = models.RoleLatitude
		case fieldLongitude:
			meta.Role = models.RoleLongitude
		case fieldBattery:
			meta.Role = models.RoleBattery
			meta.Unit = "%"
		case fieldAccuracy:
			meta.Role = models.RoleAccuracy
			meta.Unit = "m"
		case fieldTimestamp:
			meta.Role = models.RoleDate
		default:
			meta.Role = models.RoleValue
		}
	case string:
		meta.Type = models.TypeString
		switch name {
		case fieldPhotoURL:
			meta.Role = models.RoleURL
		case fieldAddress:
			meta.Role = models.RoleLocation
		default:
			meta.Role = models.RoleText
		}
	case bool:
		meta.Type = models.TypeBoolean
		meta.Role = models.RoleIndicator
		meta.Default = false
	}

	return meta
}
