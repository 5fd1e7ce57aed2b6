package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/geofence"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/internal/reconciler"
	"github.com/benmeehan/location-agent/internal/state_managers"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/locationsharing"
	"github.com/rs/zerolog"
)

// Notifier forwards the users of a cycle to an external target.
type Notifier interface {
	Notify(users []location.UserLocation) error
}

// EffectiveInterval applies the polling floor. Zero disables the timer and is
// returned unchanged; any other value below floor is raised to floor.
func EffectiveInterval(configured, floor time.Duration) time.Duration {
	if configured <= 0 {
		return 0
	}
	if configured < floor {
		return floor
	}
	return configured
}

// PollService periodically fetches shared locations, evaluates fences and
// publishes the results.
type PollService struct {
	// Configuration fields
	interval time.Duration
	timeout  time.Duration
	fences   []models.Fence

	// Dependencies
	fetcher    locationsharing.Fetcher
	store      state_managers.Store
	reconciler *reconciler.Reconciler
	notifier   Notifier
	geocoder   location.Geocoder
	logger     zerolog.Logger

	credMu     sync.RWMutex
	credential string

	// held for the duration of a cycle
	cycleMu sync.Mutex

	// Internal state management
	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	subscribeOnce sync.Once
}

// NewPollService creates a new PollService. notifier and geocoder may be nil.
func NewPollService(credential string, interval, timeout time.Duration, fences []models.Fence,
	fetcher locationsharing.Fetcher, store state_managers.Store, rec *reconciler.Reconciler,
	notifier Notifier, geocoder location.Geocoder, logger zerolog.Logger) *PollService {
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout
	}
	return &PollService{
		interval:   interval,
		timeout:    timeout,
		fences:     fences,
		fetcher:    fetcher,
		store:      store,
		reconciler: rec,
		notifier:   notifier,
		geocoder:   geocoder,
		logger:     logger,
		credential: credential,
	}
}

// Start prepares the store and launches the polling loop.
func (p *PollService) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		p.logger.Warn().Msg("PollService is already running")
		return errors.New("poll service is already running")
	}

	if err := p.ensureStates(); err != nil {
		p.logger.Error().Err(err).Msg("Failed to create agent states")
		return err
	}

	if err := p.reconciler.SyncFences(p.fences); err != nil {
		p.logger.Error().Err(err).Msg("Fence synchronisation incomplete")
	}

	p.subscribeOnce.Do(func() {
		p.store.Subscribe(constants.TriggerPollState, p.onTriggerPoll)
	})

	p.ctx, p.cancel = context.WithCancel(context.Background())

	interval := EffectiveInterval(p.interval, constants.MinPollInterval)
	if interval != p.interval && interval != 0 {
		p.logger.Info().
			Dur("configured", p.interval).
			Dur("minimum", constants.MinPollInterval).
			Msg("Configured poll interval below minimum, increasing it to prevent 429 errors")
	}

	if interval == 0 {
		p.logger.Info().Msg("Polling disabled, cycles run on demand only")
	} else {
		p.wg.Add(1)
		go p.runPollLoop(p.ctx, interval)
	}

	p.logger.Info().
		Dur("interval", interval).
		Int("fences", len(p.fences)).
		Msg("PollService started")
	return nil
}

// Stop terminates the polling loop and waits for running cycles.
func (p *PollService) Stop() error {
	p.mu.Lock()
	if p.ctx == nil {
		p.mu.Unlock()
		p.logger.Warn().Msg("PollService is not running")
		return errors.New("poll service is not running")
	}
	p.cancel()
	p.ctx = nil
	p.cancel = nil
	p.mu.Unlock()

	p.wg.Wait()

	p.logger.Info().Msg("PollService stopped")
	return nil
}

// SetCredential replaces the session cookie used for subsequent fetches.
func (p *PollService) SetCredential(credential string) {
	p.credMu.Lock()
	defer p.credMu.Unlock()
	p.credential = credential
}

// Credential returns the current session cookie.
func (p *PollService) Credential() string {
	p.credMu.RLock()
	defer p.credMu.RUnlock()
	return p.credential
}

// RunCycle performs one fetch, decode, evaluate and publish cycle.
//
// The returned users are non-nil exactly when fetching and decoding
// succeeded. A non-nil error alongside users wraps models.ErrPublish and
// reports downstream write failures only.
func (p *PollService) RunCycle(ctx context.Context) ([]location.UserLocation, error) {
	if !p.cycleMu.TryLock() {
		return nil, ErrPollInProgress
	}
	defer p.cycleMu.Unlock()

	users, err := p.fetchUsers(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("An error occurred during polling the locations")
		p.setConnection(false)
		return nil, err
	}
	p.setConnection(true)

	users = p.enrichAddresses(ctx, users)

	if err := p.publish(users); err != nil {
		p.logger.Warn().Err(err).Msg("Poll cycle finished with publish errors")
		return users, err
	}
	return users, nil
}

func (p *PollService) fetchUsers(ctx context.Context) ([]location.UserLocation, error) {
	credential := p.Credential()
	if credential == "" {
		return nil, ErrNoCredential
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	body, err := p.fetcher.Fetch(fetchCtx, credential)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().
		Int("bytes", len(body)).
		Dur("latency", time.Since(start)).
		Msg("Location sharing response received")

	return locationsharing.Decode(body)
}

// publish hands the users to the fence evaluation, the store and the notifier
// concurrently and joins their errors.
func (p *PollService) publish(users []location.UserLocation) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(task func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	run(func() error {
		p.logger.Debug().Msg("Checking fences")
		return p.reconciler.PublishFenceStates(geofence.Evaluate(p.fences, users))
	})
	run(func() error {
		return p.reconciler.PublishUsers(users)
	})
	if p.notifier != nil {
		run(func() error {
			return p.notifier.Notify(users)
		})
	}
	wg.Wait()

	return errors.Join(errs...)
}

// enrichAddresses fills in missing addresses from the geocoder. The input
// slice is not modified.
func (p *PollService) enrichAddresses(ctx context.Context, users []location.UserLocation) []location.UserLocation {
	if p.geocoder == nil {
		return users
	}

	out := make([]location.UserLocation, len(users))
	copy(out, users)
	for i, u := range out {
		if u.Address != nil || !u.HasPosition() {
			continue
		}

		geoCtx, cancel := context.WithTimeout(ctx, p.timeout)
		addr, err := p.geocoder.ReverseGeocode(geoCtx, location.Point{Latitude: *u.Latitude, Longitude: *u.Longitude})
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).Str("user_id", u.ID).Msg("Reverse geocoding failed")
			continue
		}
		out[i] = u.WithAddress(addr)
	}
	return out
}

func (p *PollService) setConnection(connected bool) {
	if err := p.store.SetValue(constants.ConnectionState, connected, true); err != nil {
		p.logger.Error().Err(err).Bool("connected", connected).Msg("Failed to update connection state")
	}
}

func (p *PollService) ensureStates() error {
	if err := p.store.EnsureObjectExists(constants.ConnectionState, models.ObjectMetadata{
		Name:    "If connected to the location sharing service",
		Type:    models.TypeBoolean,
		Role:    models.RoleConnected,
		Default: false,
		Read:    true,
		Write:   false,
	}); err != nil {
		return fmt.Errorf("failed to create %s: %w", constants.ConnectionState, err)
	}

	if err := p.store.EnsureObjectExists(constants.TriggerPollState, models.ObjectMetadata{
		Name:    "Trigger a single poll",
		Type:    models.TypeBoolean,
		Role:    models.RoleButton,
		Default: false,
		Read:    true,
		Write:   true,
	}); err != nil {
		return fmt.Errorf("failed to create %s: %w", constants.TriggerPollState, err)
	}
	return p.store.SetValue(constants.TriggerPollState, false, true)
}

// onTriggerPoll runs one cycle when the trigger state is set to true by
// someone other than the agent, then resets the trigger.
func (p *PollService) onTriggerPoll(key string, state models.StateValue) {
	if state.Ack {
		return
	}
	if v, ok := state.Value.(bool); !ok || !v {
		return
	}

	p.mu.Lock()
	ctx := p.ctx
	if ctx == nil {
		p.mu.Unlock()
		p.logger.Warn().Msg("Poll triggered while service is stopped, ignoring")
	} else {
		p.wg.Add(1)
		p.mu.Unlock()

		p.logger.Debug().Msg("Poll triggered by user")
		go func() {
			defer p.wg.Done()
			p.runAndLog(ctx, "trigger")
		}()
	}

	if err := p.store.SetValue(key, false, true); err != nil {
		p.logger.Error().Err(err).Str("key", key).Msg("Failed to reset poll trigger")
	}
}

// runPollLoop polls once immediately and then on every tick.
func (p *PollService) runPollLoop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	p.runAndLog(ctx, "timer")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.logger.Debug().Msg("Polling locations")
			p.runAndLog(ctx, "timer")
		case <-ctx.Done():
			p.logger.Info().Msg("PollService is stopping")
			return
		}
	}
}

func (p *PollService) runAndLog(ctx context.Context, source string) {
	users, err := p.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrPollInProgress):
		p.logger.Debug().Str("source", source).Msg("Skipping poll, another cycle is running")
	case users == nil:
		// failure already logged by RunCycle
	default:
		p.logger.Info().
			Str("source", source).
			Int("users", len(users)).
			Msg("Locations polled")
	}
}
