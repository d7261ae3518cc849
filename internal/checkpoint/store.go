package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imovelworker/internal/listing"
	"imovelworker/logger"
	"imovelworker/pkg/errors"
)

// Store persists collection progress so an interrupted run can resume. The
// store only serializes state; it never mutates content.
type Store interface {
	// Load returns the persisted state, or nil when no checkpoint exists
	Load() (*listing.CollectionState, error)

	// Save persists the state durably
	Save(state *listing.CollectionState) error

	// Archive retires the checkpoint of a completed run so the next run
	// starts fresh instead of resuming a finished collection
	Archive() error
}

// FileStore implements Store as a JSON document at <dir>/<runID>.json.
// Saves go through a temporary file and an atomic rename, so a crash
// mid-save leaves either the previous or the new checkpoint, never a
// corrupted hybrid.
type FileStore struct {
	dir   string
	runID string
	now   func() time.Time
	log   *logger.Logger
}

// NewFileStore creates a file store for a run identity
func NewFileStore(dir, runID string) *FileStore {
	return &FileStore{dir: dir, runID: runID, now: time.Now, log: logger.ForCheckpoint()}
}

// Path returns the checkpoint file path
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, s.runID+".json")
}

// Load reads the checkpoint, returning nil state when none exists
func (s *FileStore) Load() (*listing.CollectionState, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewPersistence("failed to read checkpoint", err)
	}

	var state listing.CollectionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.NewPersistence("failed to decode checkpoint", err)
	}
	return &state, nil
}

// Save writes the state atomically
func (s *FileStore) Save(state *listing.CollectionState) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.NewPersistence("failed to create checkpoint directory", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.NewPersistence("failed to encode checkpoint", err)
	}

	tmp := s.Path() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.NewPersistence("failed to create temporary checkpoint", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewPersistence("failed to write temporary checkpoint", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewPersistence("failed to sync temporary checkpoint", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.NewPersistence("failed to close temporary checkpoint", err)
	}

	if err := os.Rename(tmp, s.Path()); err != nil {
		os.Remove(tmp)
		return errors.NewPersistence("failed to replace checkpoint", err)
	}

	s.log.Debug().
		Str("path", s.Path()).
		Int("page", state.LastPageCompleted).
		Int("listings", len(state.Results)).
		Msg("Checkpoint saved")
	return nil
}

// Archive renames the checkpoint to a completed-run record. It is not an
// error if no checkpoint exists.
func (s *FileStore) Archive() error {
	archived := filepath.Join(s.dir, fmt.Sprintf("%s.completed-%s.json", s.runID, s.now().Format("20060102_150405")))
	if err := os.Rename(s.Path(), archived); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewPersistence("failed to archive checkpoint", err)
	}

	s.log.Info().Str("path", archived).Msg("Checkpoint archived")
	return nil
}

// Reset removes an existing checkpoint so the next run starts from scratch.
// It is not an error if no checkpoint exists.
func (s *FileStore) Reset() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return errors.NewPersistence("failed to remove checkpoint", err)
	}
	return nil
}
