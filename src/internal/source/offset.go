// FILE: thermwatch/src/internal/source/offset.go
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// OffsetState is the persisted read position of a tailed file
type OffsetState struct {
	Path      string    `json:"path"`
	Offset    int64     `json:"offset"`
	Inode     uint64    `json:"inode"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OffsetStore loads and saves the read position across restarts
type OffsetStore interface {
	// Load returns the saved state, false if none exists
	Load() (OffsetState, bool, error)
	Save(state OffsetState) error
}

// NewOffsetStore returns a file store for path, or a no-op store if path is empty
func NewOffsetStore(path string) OffsetStore {
	if path == "" {
		return nopOffsetStore{}
	}
	return &FileOffsetStore{path: path}
}

// FileOffsetStore keeps the offset state as a JSON document on disk
type FileOffsetStore struct {
	path string
}

func (s *FileOffsetStore) Load() (OffsetState, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return OffsetState{}, false, nil
		}
		return OffsetState{}, false, fmt.Errorf("failed to read offset file: %w", err)
	}

	var state OffsetState
	if err := json.Unmarshal(data, &state); err != nil {
		return OffsetState{}, false, fmt.Errorf("failed to parse offset file %s: %w", s.path, err)
	}
	if state.Offset < 0 {
		return OffsetState{}, false, fmt.Errorf("invalid offset %d in %s", state.Offset, s.path)
	}
	return state, true, nil
}

// Save replaces the state file atomically
func (s *FileOffsetStore) Save(state OffsetState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal offset state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp offset file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write offset file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync offset file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close offset file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace offset file: %w", err)
	}
	return nil
}

type nopOffsetStore struct{}

func (nopOffsetStore) Load() (OffsetState, bool, error) { return OffsetState{}, false, nil }

func (nopOffsetStore) Save(OffsetState) error { return nil }
