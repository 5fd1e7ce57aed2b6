package state_managers

import (
	"fmt"
	"sync"

	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/rs/zerolog"
)

// FileStore is a MemoryStore that persists a JSON snapshot after every change.
type FileStore struct {
	*MemoryStore

	filePath   string
	fileClient file.FileOperations
	logger     zerolog.Logger
	mu         sync.Mutex
}

// NewFileStore creates a FileStore and loads an existing snapshot from filePath.
func NewFileStore(filePath string, fileClient file.FileOperations, logger zerolog.Logger) (*FileStore, error) {
	fs := &FileStore{
		MemoryStore: NewMemoryStore(),
		filePath:    filePath,
		fileClient:  fileClient,
		logger:      logger,
	}

	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	exists, err := fs.fileClient.IsFileExists(fs.filePath)
	if err != nil {
		return fmt.Errorf("failed to check state file: %w", err)
	}
	if !exists {
		fs.logger.Info().Str("file", fs.filePath).Msg("No state file found, starting empty")
		return nil
	}

	var snap storeSnapshot
	if err := fs.fileClient.ReadJsonFile(fs.filePath, &snap); err != nil {
		fs.logger.Error().Err(err).Str("file", fs.filePath).Msg("Failed to read state file")
		return fmt.Errorf("failed to read state file: %w", err)
	}

	fs.MemoryStore.restore(snap)
	fs.logger.Info().
		Str("file", fs.filePath).
		Int("objects", len(snap.Objects)).
		Msg("State loaded")
	return nil
}

// SetValue stores the value and persists the snapshot.
func (fs *FileStore) SetValue(key string, value any, ack bool) error {
	if err := fs.MemoryStore.SetValue(key, value, ack); err != nil {
		return err
	}
	return fs.save()
}

// EnsureObjectExists registers the object and persists the snapshot.
func (fs *FileStore) EnsureObjectExists(key string, meta models.ObjectMetadata) error {
	if fs.MemoryStore.objects.Has(key) {
		return nil
	}
	if err := fs.MemoryStore.EnsureObjectExists(key, meta); err != nil {
		return err
	}
	return fs.save()
}

// DeleteObject removes the object and persists the snapshot.
func (fs *FileStore) DeleteObject(key string) error {
	if err := fs.MemoryStore.DeleteObject(key); err != nil {
		return err
	}
	return fs.save()
}

func (fs *FileStore) save() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.fileClient.WriteJsonFile(fs.filePath, fs.MemoryStore.snapshot()); err != nil {
		fs.logger.Error().Err(err).Str("file", fs.filePath).Msg("Failed to write state file")
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
