package state_managers

import (
	"errors"

	"github.com/benmeehan/location-agent/internal/models"
)

// ErrObjectNotFound is returned when writing a value for an unknown object.
var ErrObjectNotFound = errors.New("object not found")

// StateHandler is called after a state changes.
type StateHandler func(key string, state models.StateValue)

// Store is the key/value state store together with its object registry.
type Store interface {
	// GetAll returns the states of all objects whose key starts with prefix.
	GetAll(prefix string) (map[string]models.StateValue, error)
	// GetObject returns the metadata of an object.
	GetObject(key string) (models.ObjectMetadata, bool, error)
	// SetValue writes the value of an existing object.
	SetValue(key string, value any, ack bool) error
	// EnsureObjectExists creates the object unless it already exists.
	EnsureObjectExists(key string, meta models.ObjectMetadata) error
	// DeleteObject removes an object and its state.
	DeleteObject(key string) error
	// Subscribe registers a handler for changes of a single key.
	Subscribe(key string, handler StateHandler)
}
