// Package reconciler keeps the state store in line with the fence
// configuration and writes the results of each poll cycle.
package reconciler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/internal/state_managers"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
)

// Plan lists the fence objects to create and the keys to remove.
type Plan struct {
	ToCreate []models.Fence
	ToRemove []string
}

// FenceKey returns the store key of a fence.
func FenceKey(fenceID string) string {
	return constants.FencePrefix + fenceID
}

// UserKey returns the store key of a single user field.
func UserKey(userID, field string) string {
	return constants.UserPrefix + userID + "." + field
}

// Reconcile computes which persisted fence keys are no longer configured and
// which configured fences have no persisted object yet.
func Reconcile(fences []models.Fence, existingKeys []string) Plan {
	configured := make(map[string]struct{}, len(fences))
	for _, f := range fences {
		configured[FenceKey(f.FenceID)] = struct{}{}
	}
	existing := utils.SliceToSet(existingKeys)

	var plan Plan
	for _, key := range existingKeys {
		if _, ok := configured[key]; !ok {
			plan.ToRemove = append(plan.ToRemove, key)
		}
	}
	sort.Strings(plan.ToRemove)

	for _, f := range fences {
		if _, ok := existing[FenceKey(f.FenceID)]; !ok {
			plan.ToCreate = append(plan.ToCreate, f)
		}
	}
	return plan
}

// FenceMetadata returns the object metadata of a fence indicator.
func FenceMetadata(f models.Fence) models.ObjectMetadata {
	return models.ObjectMetadata{
		Name:    f.Description,
		Desc:    "Fence for user " + f.UserID,
		Type:    models.TypeBoolean,
		Role:    models.RoleIndicator,
		Default: false,
		Read:    true,
		Write:   false,
	}
}

// Reconciler writes fences and user locations to a Store.
type Reconciler struct {
	store   state_managers.Store
	workers int
	logger  zerolog.Logger
}

// NewReconciler creates a Reconciler publishing with the given number of
// concurrent writers.
func NewReconciler(store state_managers.Store, workers int, logger zerolog.Logger) *Reconciler {
	if workers < 1 {
		workers = constants.DefaultPublishWorkers
	}
	return &Reconciler{
		store:   store,
		workers: workers,
		logger:  logger,
	}
}

// SyncFences removes fence objects that are no longer configured and creates
// missing ones with an initial value of false.
func (r *Reconciler) SyncFences(fences []models.Fence) error {
	states, err := r.store.GetAll(constants.FencePrefix)
	if err != nil {
		r.logger.Error().Err(err).Msg("Could not retrieve fence states")
		return fmt.Errorf("failed to read fence states: %w", err)
	}

	keys := make([]string, 0, len(states))
	for key := range states {
		keys = append(keys, key)
	}
	plan := Reconcile(fences, keys)

	var errs []error
	for _, key := range plan.ToRemove {
		if err := r.store.DeleteObject(key); err != nil {
			r.logger.Error().Err(err).Str("key", key).Msg("Failed to delete stale fence")
			errs = append(errs, err)
			continue
		}
		r.logger.Info().Str("key", key).Msg("Removed fence no longer in configuration")
	}

	for _, f := range plan.ToCreate {
		key := FenceKey(f.FenceID)
		if err := r.store.EnsureObjectExists(key, FenceMetadata(f)); err != nil {
			r.logger.Error().Err(err).Str("key", key).Msg("Failed to create fence")
			errs = append(errs, err)
			continue
		}
		if err := r.store.SetValue(key, false, true); err != nil {
			r.logger.Error().Err(err).Str("key", key).Msg("Failed to initialise fence")
			errs = append(errs, err)
			continue
		}
		r.logger.Info().Str("key", key).Str("user_id", f.UserID).Msg("Created fence")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrPublish, errors.Join(errs...))
	}
	return nil
}

// PublishUsers writes every present field of every user. Each field is
// written independently; failures are logged and returned together.
func (r *Reconciler) PublishUsers(users []location.UserLocation) error {
	pool := utils.NewWorkerPool(r.workers)

	var mu sync.Mutex
	var errs []error

	for _, u := range users {
		if u.ID == "" {
			r.logger.Warn().Msg("Skipping user location without id")
			continue
		}

		for _, f := range userFields(u) {
			key := UserKey(u.ID, f.name)
			meta := FieldMetadata(f.name, f.value)
			value := f.value

			pool.Submit(func() {
				if err := r.writeState(key, meta, value); err != nil {
					r.logger.Error().Err(err).Str("key", key).Msg("Could not write user state")
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			})
		}
	}
	pool.Shutdown()

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrPublish, errors.Join(errs...))
	}
	return nil
}

// PublishFenceStates writes the membership of every evaluated fence.
func (r *Reconciler) PublishFenceStates(states []models.FenceState) error {
	var errs []error
	for _, s := range states {
		key := FenceKey(s.FenceID)
		if err := r.store.SetValue(key, s.Inside, true); err != nil {
			r.logger.Error().Err(err).Str("key", key).Msg("Could not write fence state")
			errs = append(errs, err)
			continue
		}
		r.logger.Debug().Str("fence_id", s.FenceID).Bool("inside", s.Inside).Msg("Fence state updated")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrPublish, errors.Join(errs...))
	}
	return nil
}

// LoadUsers returns the users known to the store without polling.
func (r *Reconciler) LoadUsers() ([]models.UserSummary, error) {
	states, err := r.store.GetAll(constants.UserPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to read user states: %w", err)
	}

	users := make([]models.UserSummary, 0)
	for key := range states {
		rest := strings.TrimPrefix(key, constants.UserPrefix)
		idx := strings.LastIndex(rest, ".")
		if idx <= 0 || rest[idx+1:] != fieldID {
			continue
		}
		id := rest[:idx]

		users = append(users, models.UserSummary{
			ID:       id,
			PhotoURL: stringValue(states[UserKey(id, fieldPhotoURL)].Value),
			Name:     stringValue(states[UserKey(id, fieldName)].Value),
		})
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *Reconciler) writeState(key string, meta models.ObjectMetadata, value any) error {
	if err := r.store.EnsureObjectExists(key, meta); err != nil {
		return err
	}
	return r.store.SetValue(key, value, true)
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
