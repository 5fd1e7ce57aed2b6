package services_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/internal/reconciler"
	"github.com/benmeehan/location-agent/internal/services"
	"github.com/benmeehan/location-agent/internal/state_managers"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/locationsharing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const cookie = "SID=abc; HSID=def"

func responseBody(entry string) []byte {
	slots := []string{"[]", "[]", "[]", "[]", "[]", "[]", "[]", "[]", "[]", entry}
	return []byte(")]}'\n[" + strings.Join(slots, ",") + "]")
}

var berlinBody = responseBody(`[["uid1","http://photo",0,"Alice"],[0,[0,13.405,52.52],1690000000000,15,"Berlin"]]`)

var testFences = []models.Fence{
	{FenceID: "home", UserID: "uid1", CenterLatitude: 52.52, CenterLongitude: 13.405, RadiusMeters: 100, Description: "Home"},
	{FenceID: "work", UserID: "uid1", CenterLatitude: 48.137, CenterLongitude: 11.575, RadiusMeters: 100, Description: "Work"},
}

// rejectingStore fails every write to one key.
type rejectingStore struct {
	*state_managers.MemoryStore
	failKey string
}

func (r *rejectingStore) SetValue(key string, value any, ack bool) error {
	if key == r.failKey {
		return errors.New("write rejected")
	}
	return r.MemoryStore.SetValue(key, value, ack)
}

// logBuffer is a goroutine-safe log sink.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) Contains(s string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), s)
}

func newPollService(fetcher *mocks.MockFetcher, store state_managers.Store, notifier services.Notifier,
	geocoder location.Geocoder, interval time.Duration) *services.PollService {
	return newPollServiceWithLogger(fetcher, store, notifier, geocoder, interval, zerolog.Nop())
}

func newPollServiceWithLogger(fetcher *mocks.MockFetcher, store state_managers.Store, notifier services.Notifier,
	geocoder location.Geocoder, interval time.Duration, logger zerolog.Logger) *services.PollService {
	rec := reconciler.NewReconciler(store, 2, logger)
	return services.NewPollService(cookie, interval, time.Second, testFences, fetcher, store, rec, notifier, geocoder, logger)
}

func stateValue(t *testing.T, store state_managers.Store, key string) models.StateValue {
	t.Helper()
	states, err := store.GetAll(key)
	require.NoError(t, err)
	state, ok := states[key]
	require.True(t, ok, "state %s missing", key)
	return state
}

func TestEffectiveInterval(t *testing.T) {
	assert.Equal(t, time.Minute, services.EffectiveInterval(10*time.Second, constants.MinPollInterval))
	assert.Equal(t, time.Duration(0), services.EffectiveInterval(0, constants.MinPollInterval))
	assert.Equal(t, 5*time.Minute, services.EffectiveInterval(5*time.Minute, constants.MinPollInterval))
}

func TestPollService_RunCycle_Success(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).Return(berlinBody, nil)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, nil, 0)
	require.NoError(t, ps.Start())
	defer ps.Stop()

	users, err := ps.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "uid1", users[0].ID)

	assert.Equal(t, true, stateValue(t, store, constants.ConnectionState).Value)
	assert.Equal(t, true, stateValue(t, store, "fence.home").Value)
	assert.Equal(t, false, stateValue(t, store, "fence.work").Value)
	assert.Equal(t, "Alice", stateValue(t, store, "user.uid1.name").Value)
	assert.Equal(t, 52.52, stateValue(t, store, "user.uid1.latitude").Value)
	assert.Equal(t, "Berlin", stateValue(t, store, "user.uid1.address").Value)
	fetcher.AssertExpectations(t)
}

func TestPollService_RunCycle_DecodeFailure(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).Return([]byte("<html>login</html>"), nil)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, nil, 0)
	require.NoError(t, ps.Start())
	defer ps.Stop()

	users, err := ps.RunCycle(context.Background())
	assert.Nil(t, users)
	assert.ErrorIs(t, err, locationsharing.ErrMalformed)
	assert.Equal(t, false, stateValue(t, store, constants.ConnectionState).Value)
	assert.Equal(t, false, stateValue(t, store, "fence.home").Value, "fence states are untouched")
}

func TestPollService_RunCycle_FetchFailure(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).Return(nil, locationsharing.ErrNetwork)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, nil, 0)
	require.NoError(t, ps.Start())
	defer ps.Stop()

	users, err := ps.RunCycle(context.Background())
	assert.Nil(t, users)
	assert.ErrorIs(t, err, locationsharing.ErrNetwork)
	assert.Equal(t, false, stateValue(t, store, constants.ConnectionState).Value)
}

func TestPollService_RunCycle_NoCredential(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, nil, 0)
	ps.SetCredential("")
	require.NoError(t, ps.Start())
	defer ps.Stop()

	users, err := ps.RunCycle(context.Background())
	assert.Nil(t, users)
	assert.ErrorIs(t, err, services.ErrNoCredential)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestPollService_RunCycle_PublishErrorKeepsConnection(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).Return(berlinBody, nil)
	store := &rejectingStore{MemoryStore: state_managers.NewMemoryStore(), failKey: "fence.home"}

	ps := newPollService(fetcher, store, nil, nil, 0)
	require.NoError(t, ps.Start())
	defer ps.Stop()

	users, err := ps.RunCycle(context.Background())
	require.Len(t, users, 1)
	assert.ErrorIs(t, err, models.ErrPublish)
	assert.Equal(t, true, stateValue(t, store, constants.ConnectionState).Value)
	assert.Equal(t, "Alice", stateValue(t, store, "user.uid1.name").Value, "other writes still happen")
}

func TestPollService_RunCycle_Notifier(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).Return(berlinBody, nil)
	notifier := new(mocks.MockNotifier)
	notifier.On("Notify", mock.MatchedBy(func(users []location.UserLocation) bool {
		return len(users) == 1 && users[0].ID == "uid1"
	})).Return(errors.New("broker gone"))

	ps := newPollService(fetcher, state_managers.NewMemoryStore(), notifier, nil, 0)
	require.NoError(t, ps.Start())
	defer ps.Stop()

	users, err := ps.RunCycle(context.Background())
	require.NotNil(t, users)
	assert.EqualError(t, err, "broker gone")
	notifier.AssertExpectations(t)
}

func TestPollService_RunCycle_GeocodesMissingAddress(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).
		Return(responseBody(`[["uid1"],[0,[0,13.405,52.52],1690000000000]]`), nil)
	geocoder := new(mocks.MockGeocoder)
	geocoder.On("ReverseGeocode", mock.Anything, location.Point{Latitude: 52.52, Longitude: 13.405}).
		Return("Pariser Platz, Berlin", nil)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, geocoder, 0)
	require.NoError(t, ps.Start())
	defer ps.Stop()

	users, err := ps.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, users[0].Address)
	assert.Equal(t, "Pariser Platz, Berlin", *users[0].Address)
	assert.Equal(t, "Pariser Platz, Berlin", stateValue(t, store, "user.uid1.address").Value)
	geocoder.AssertExpectations(t)
}

func TestPollService_RunCycle_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(berlinBody, nil).Once()

	ps := newPollService(fetcher, state_managers.NewMemoryStore(), nil, nil, 0)
	require.NoError(t, ps.Start())
	defer ps.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := ps.RunCycle(context.Background())
		done <- err
	}()
	<-entered

	users, err := ps.RunCycle(context.Background())
	assert.Nil(t, users)
	assert.ErrorIs(t, err, services.ErrPollInProgress)

	close(release)
	require.NoError(t, <-done)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestPollService_TriggerPoll(t *testing.T) {
	var calls atomic.Int32
	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(berlinBody, nil)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, nil, 0)
	require.NoError(t, ps.Start())

	trigger := stateValue(t, store, constants.TriggerPollState)
	assert.Equal(t, false, trigger.Value)
	assert.True(t, trigger.Ack)

	require.NoError(t, store.SetValue(constants.TriggerPollState, true, false))

	assert.Eventually(t, func() bool {
		state := stateValue(t, store, "fence.home")
		return calls.Load() == 1 && state.Value == true
	}, time.Second, 10*time.Millisecond)

	trigger = stateValue(t, store, constants.TriggerPollState)
	assert.Equal(t, false, trigger.Value)
	assert.True(t, trigger.Ack)

	require.NoError(t, ps.Stop())
	assert.Equal(t, int32(1), calls.Load())
}

func TestPollService_TriggerIgnoresAcknowledgedWrites(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, nil, 0)
	require.NoError(t, ps.Start())

	require.NoError(t, store.SetValue(constants.TriggerPollState, true, true))
	require.NoError(t, ps.Stop())

	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestPollService_TriggerDuringCycleIsDropped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(berlinBody, nil).Once()
	store := state_managers.NewMemoryStore()
	logs := &logBuffer{}

	ps := newPollServiceWithLogger(fetcher, store, nil, nil, 0, zerolog.New(logs).Level(zerolog.DebugLevel))
	require.NoError(t, ps.Start())

	done := make(chan error, 1)
	go func() {
		_, err := ps.RunCycle(context.Background())
		done <- err
	}()
	<-entered

	require.NoError(t, store.SetValue(constants.TriggerPollState, true, false))

	trigger := stateValue(t, store, constants.TriggerPollState)
	assert.Equal(t, false, trigger.Value)
	assert.True(t, trigger.Ack)

	assert.Eventually(t, func() bool {
		return logs.Contains("another cycle is running")
	}, time.Second, 10*time.Millisecond)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, ps.Stop())

	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestPollService_TriggerAfterStopIsReset(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, nil, 0)
	require.NoError(t, ps.Start())
	require.NoError(t, ps.Stop())

	require.NoError(t, store.SetValue(constants.TriggerPollState, true, false))

	trigger := stateValue(t, store, constants.TriggerPollState)
	assert.Equal(t, false, trigger.Value)
	assert.True(t, trigger.Ack)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestPollService_StartStop(t *testing.T) {
	fetcher := new(mocks.MockFetcher)
	fetcher.On("Fetch", mock.Anything, cookie).Return(berlinBody, nil)
	store := state_managers.NewMemoryStore()

	ps := newPollService(fetcher, store, nil, nil, 10*time.Second)
	require.NoError(t, ps.Start())
	assert.Error(t, ps.Start(), "second start is rejected")

	assert.Eventually(t, func() bool {
		return stateValue(t, store, constants.ConnectionState).Value == true
	}, time.Second, 10*time.Millisecond, "first cycle runs immediately")

	require.NoError(t, ps.Stop())
	assert.Error(t, ps.Stop())
}

func TestPollService_StartRemovesStaleFences(t *testing.T) {
	store := state_managers.NewMemoryStore()
	require.NoError(t, store.EnsureObjectExists("fence.old", models.ObjectMetadata{}))

	ps := newPollService(new(mocks.MockFetcher), store, nil, nil, 0)
	require.NoError(t, ps.Start())
	defer ps.Stop()

	fences, err := store.GetAll(constants.FencePrefix)
	require.NoError(t, err)
	assert.NotContains(t, fences, "fence.old")
	assert.Contains(t, fences, "fence.home")
	assert.Contains(t, fences, "fence.work")
}
