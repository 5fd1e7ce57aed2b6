package state_managers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/internal/models"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// MemoryStore keeps objects and states in process memory.
type MemoryStore struct {
	objects cmap.ConcurrentMap[string, models.ObjectMetadata]
	states  cmap.ConcurrentMap[string, models.StateValue]

	subMu       sync.RWMutex
	subscribers map[string][]StateHandler

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:     cmap.New[models.ObjectMetadata](),
		states:      cmap.New[models.StateValue](),
		subscribers: make(map[string][]StateHandler),
		now:         time.Now,
	}
}

// GetAll returns the states of all objects under prefix. Objects that never
// received a value are returned with a zero StateValue.
func (s *MemoryStore) GetAll(prefix string) (map[string]models.StateValue, error) {
	result := make(map[string]models.StateValue)
	for _, key := range s.objects.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		state, _ := s.states.Get(key)
		result[key] = state
	}
	return result, nil
}

// GetObject returns the metadata stored for key.
func (s *MemoryStore) GetObject(key string) (models.ObjectMetadata, bool, error) {
	meta, ok := s.objects.Get(key)
	return meta, ok, nil
}

// SetValue stores value for an existing object and notifies subscribers.
func (s *MemoryStore) SetValue(key string, value any, ack bool) error {
	if !s.objects.Has(key) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	state := models.StateValue{Value: value, Ack: ack, Timestamp: s.now()}
	s.states.Set(key, state)
	s.notify(key, state)
	return nil
}

// EnsureObjectExists registers the object if it is not known yet.
func (s *MemoryStore) EnsureObjectExists(key string, meta models.ObjectMetadata) error {
	if key == "" {
		return fmt.Errorf("object key is empty")
	}
	s.objects.SetIfAbsent(key, meta)
	return nil
}

// DeleteObject removes the object and its state.
func (s *MemoryStore) DeleteObject(key string) error {
	s.objects.Remove(key)
	s.states.Remove(key)
	return nil
}

// Subscribe registers handler for changes of key.
func (s *MemoryStore) Subscribe(key string, handler StateHandler) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers[key] = append(s.subscribers[key], handler)
}

// notify runs the handlers of key outside of any lock, so handlers may write
// back to the store.
func (s *MemoryStore) notify(key string, state models.StateValue) {
	s.subMu.RLock()
	handlers := append([]StateHandler(nil), s.subscribers[key]...)
	s.subMu.RUnlock()

	for _, h := range handlers {
		h(key, state)
	}
}

// snapshot returns a copy of all objects and states.
func (s *MemoryStore) snapshot() storeSnapshot {
	return storeSnapshot{
		Objects: s.objects.Items(),
		States:  s.states.Items(),
	}
}

// restore replaces the content of the store with snap.
func (s *MemoryStore) restore(snap storeSnapshot) {
	s.objects.Clear()
	s.states.Clear()
	s.objects.MSet(snap.Objects)
	for key, state := range snap.States {
		if s.objects.Has(key) {
			s.states.Set(key, state)
		}
	}
}

type storeSnapshot struct {
	Objects map[string]models.ObjectMetadata `json:"objects"`
	States  map[string]models.StateValue     `json:"states"`
}
