package reconciler

import (
	"errors"
	"testing"

	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/internal/state_managers"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// failingStore rejects writes to a single key.
type failingStore struct {
	*state_managers.MemoryStore
	failKey string
}

func (f *failingStore) SetValue(key string, value any, ack bool) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryStore.SetValue(key, value, ack)
}

func fenceIDs(fences []models.Fence) []string {
	ids := make([]string, 0, len(fences))
	for _, f := range fences {
		ids = append(ids, f.FenceID)
	}
	return ids
}

func TestReconcile_SetDifference(t *testing.T) {
	fences := []models.Fence{{FenceID: "B"}, {FenceID: "C"}}

	plan := Reconcile(fences, []string{"fence.A", "fence.B"})

	assert.Equal(t, []string{"fence.A"}, plan.ToRemove)
	assert.Equal(t, []string{"C"}, fenceIDs(plan.ToCreate))
}

func TestReconcile_NothingToDo(t *testing.T) {
	plan := Reconcile([]models.Fence{{FenceID: "A"}}, []string{"fence.A"})

	assert.Empty(t, plan.ToRemove)
	assert.Empty(t, plan.ToCreate)
}

func TestSyncFences(t *testing.T) {
	store := state_managers.NewMemoryStore()
	for _, key := range []string{"fence.A", "fence.B"} {
		require.NoError(t, store.EnsureObjectExists(key, models.ObjectMetadata{}))
		require.NoError(t, store.SetValue(key, true, true))
	}
	r := NewReconciler(store, 2, zerolog.Nop())

	err := r.SyncFences([]models.Fence{
		{FenceID: "B", UserID: "u1", Description: "Office"},
		{FenceID: "C", UserID: "u2", Description: "Gym"},
	})
	require.NoError(t, err)

	states, err := store.GetAll("fence.")
	require.NoError(t, err)
	assert.Len(t, states, 2)
	assert.NotContains(t, states, "fence.A")
	assert.Equal(t, true, states["fence.B"].Value, "existing fence keeps its state")
	assert.Equal(t, false, states["fence.C"].Value)

	meta, ok, _ := store.GetObject("fence.C")
	require.True(t, ok)
	assert.Equal(t, "Gym", meta.Name)
	assert.Equal(t, "Fence for user u2", meta.Desc)
	assert.Equal(t, models.TypeBoolean, meta.Type)
	assert.Equal(t, models.RoleIndicator, meta.Role)
	assert.False(t, meta.Write)
}

func TestPublishUsers_WritesPresentFieldsOnly(t *testing.T) {
	store := state_managers.NewMemoryStore()
	r := NewReconciler(store, 3, zerolog.Nop())

	users := []location.UserLocation{{
		ID:             "uid1",
		Name:           ptr("Alice"),
		PhotoURL:       ptr("http://photo"),
		Latitude:       ptr(52.52),
		Longitude:      ptr(13.405),
		BatteryPercent: ptr(80),
	}}

	require.NoError(t, r.PublishUsers(users))

	states, err := store.GetAll("user.uid1.")
	require.NoError(t, err)
	assert.Len(t, states, 6)
	assert.Equal(t, "uid1", states["user.uid1.id"].Value)
	assert.Equal(t, "Alice", states["user.uid1.name"].Value)
	assert.Equal(t, 52.52, states["user.uid1.latitude"].Value)
	assert.Equal(t, 80, states["user.uid1.battery"].Value)
	assert.NotContains(t, states, "user.uid1.address")

	meta, _, _ := store.GetObject("user.uid1.battery")
	assert.Equal(t, "%", meta.Unit)
	assert.Equal(t, models.RoleBattery, meta.Role)
}

func TestPublishUsers_AbsentFieldsAreNotCleared(t *testing.T) {
	store := state_managers.NewMemoryStore()
	r := NewReconciler(store, 1, zerolog.Nop())

	require.NoError(t, r.PublishUsers([]location.UserLocation{{ID: "uid1", Address: ptr("Berlin")}}))
	require.NoError(t, r.PublishUsers([]location.UserLocation{{ID: "uid1"}}))

	states, _ := store.GetAll("user.uid1.")
	assert.Equal(t, "Berlin", states["user.uid1.address"].Value)
}

func TestPublishUsers_SkipsUsersWithoutID(t *testing.T) {
	store := state_managers.NewMemoryStore()
	r := NewReconciler(store, 1, zerolog.Nop())

	require.NoError(t, r.PublishUsers([]location.UserLocation{{Name: ptr("ghost")}}))

	states, _ := store.GetAll("user.")
	assert.Empty(t, states)
}

func TestPublishUsers_OneFailureDoesNotAbortOthers(t *testing.T) {
	store := &failingStore{MemoryStore: state_managers.NewMemoryStore(), failKey: "user.uid1.name"}
	r := NewReconciler(store, 2, zerolog.Nop())

	err := r.PublishUsers([]location.UserLocation{{ID: "uid1", Name: ptr("Alice"), Address: ptr("Berlin")}})

	assert.ErrorIs(t, err, models.ErrPublish)
	states, _ := store.GetAll("user.uid1.")
	assert.Equal(t, "uid1", states["user.uid1.id"].Value)
	assert.Equal(t, "Berlin", states["user.uid1.address"].Value)
}

func TestPublishFenceStates(t *testing.T) {
	store := state_managers.NewMemoryStore()
	r := NewReconciler(store, 1, zerolog.Nop())
	require.NoError(t, r.SyncFences([]models.Fence{{FenceID: "home", UserID: "u1"}}))

	require.NoError(t, r.PublishFenceStates([]models.FenceState{{FenceID: "home", Inside: true}}))
	states, _ := store.GetAll("fence.")
	assert.Equal(t, true, states["fence.home"].Value)

	err := r.PublishFenceStates([]models.FenceState{{FenceID: "unknown", Inside: true}})
	assert.ErrorIs(t, err, models.ErrPublish)
	assert.ErrorIs(t, err, state_managers.ErrObjectNotFound)
}

func TestLoadUsers(t *testing.T) {
	store := state_managers.NewMemoryStore()
	r := NewReconciler(store, 2, zerolog.Nop())

	require.NoError(t, r.PublishUsers([]location.UserLocation{
		{ID: "b", Name: ptr("Bob")},
		{ID: "a", Name: ptr("Alice"), PhotoURL: ptr("http://a")},
	}))

	users, err := r.LoadUsers()
	require.NoError(t, err)
	assert.Equal(t, []models.UserSummary{
		{ID: "a", Name: "Alice", PhotoURL: "http://a"},
		{ID: "b", Name: "Bob"},
	}, users)
}

func TestFieldMetadata(t *testing.T) {
	cases := []struct {
		name  string
		value any
		typ   string
		role  string
		unit  string
	}{
		{"latitude", 1.0, models.TypeNumber, models.RoleLatitude, ""},
		{"longitude", 1.0, models.TypeNumber, models.RoleLongitude, ""},
		{"battery", 50, models.TypeNumber, models.RoleBattery, "%"},
		{"accuracy", 5.0, models.TypeNumber, models.RoleAccuracy, "m"},
		{"timestamp", int64(1), models.TypeNumber, models.RoleDate, ""},
		{"speed", 3.0, models.TypeNumber, models.RoleValue, ""},
		{"photoURL", "http://x", models.TypeString, models.RoleURL, ""},
		{"address", "Berlin", models.TypeString, models.RoleLocation, ""},
		{"name", "Alice", models.TypeString, models.RoleText, ""},
		{"moving", true, models.TypeBoolean, models.RoleIndicator, ""},
	}

	for _, c := range cases {
		meta := FieldMetadata(c.name, c.value)
		assert.Equal(t, c.typ, meta.Type, c.name)
		assert.Equal(t, c.role, meta.Role, c.name)
		assert.Equal(t, c.unit, meta.Unit, c.name)
		assert.Equal(t, c.name, meta.Name)
		assert.True(t, meta.Read)
		assert.False(t, meta.Write)
	}
}
