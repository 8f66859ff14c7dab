package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Store saves CLI state under XDG_STATE_HOME or ~/.local/state. Only the
// active server id is kept; credentials stay in config.toml.
type Store struct {
	path string
	mu   sync.Mutex
}

type fileState struct {
	ActiveServer string `json:"activeServer,omitempty"`
}

// NewStore creates a store at the default state path.
func NewStore() (*Store, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

// NewStoreAt creates a store backed by path.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// ActiveServer returns the stored active server id.
func (s *Store) ActiveServer() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return "", false, err
	}
	return data.ActiveServer, data.ActiveServer != "", nil
}

// SetActiveServer stores the active server id. An empty id clears it.
func (s *Store) SetActiveServer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data.ActiveServer = id
	return s.write(data)
}

func (s *Store) read() (fileState, error) {
	var data fileState
	file, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return data, err
	}
	if len(file) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return fileState{}, err
	}
	return data, nil
}

func (s *Store) write(data fileState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, payload, 0o600)
}

func statePath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "sonic", "state.json"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "sonic", "state.json"), nil
}
