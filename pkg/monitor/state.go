// Package monitor implements scheduled boolean keyword monitors: config
// loading, the monitor cycle (executor fan-out, dedup, LLM relevance
// scoring, alerting), persistent seen-state, and the cron scheduler.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// StateStore persists per-monitor state files. One file per monitor,
// written with write-temp-then-rename; a mutex serializes writers so at
// most one cycle commits state at a time.
type StateStore struct {
	dir string
	mu  sync.Mutex
}

// NewStateStore roots a store at dir, creating it as needed.
func NewStateStore(dir string) (*StateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &StateStore{dir: dir}, nil
}

func (s *StateStore) path(name string) string {
	return filepath.Join(s.dir, name+".state")
}

// Load reads a monitor's state. A missing file yields empty state, not
// an error: the first run of a new monitor starts from nothing seen.
func (s *StateStore) Load(name string) (*models.MonitorState, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return &models.MonitorState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading monitor state: %w", err)
	}
	var st models.MonitorState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding monitor state for %q: %w", name, err)
	}
	return &st, nil
}

// Save atomically replaces a monitor's state file.
func (s *StateStore) Save(name string, st *models.MonitorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding monitor state: %w", err)
	}
	final := s.path(name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing monitor state: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("committing monitor state: %w", err)
	}
	return nil
}
