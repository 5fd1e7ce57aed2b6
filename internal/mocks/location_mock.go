package mocks

import (
	"context"

	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of the locationsharing.Fetcher interface
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, credential string) ([]byte, error) {
	args := m.Called(ctx, credential)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

// MockGeocoder is a mock implementation of the location.Geocoder interface
type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) ReverseGeocode(ctx context.Context, p location.Point) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

// MockNotifier is a mock implementation of the services.Notifier interface
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(users []location.UserLocation) error {
	args := m.Called(users)
	return args.Error(0)
}

// MockPoller is a mock implementation of the services.Poller interface
type MockPoller struct {
	mock.Mock
}

func (m *MockPoller) RunCycle(ctx context.Context) ([]location.UserLocation, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]location.UserLocation)
	return users, args.Error(1)
}

func (m *MockPoller) SetCredential(credential string) {
	m.Called(credential)
}

// MockUserDirectory is a mock implementation of the services.UserDirectory interface
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) LoadUsers() ([]models.UserSummary, error) {
	args := m.Called()
	users, _ := args.Get(0).([]models.UserSummary)
	return users, args.Error(1)
}
