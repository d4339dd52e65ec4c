package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cpamm/internal/amm"
	"cpamm/internal/ledger"
)

// Snapshot is the full host state between runs.
type Snapshot struct {
	// LastOperation is the id of the last operation consumed by replay.
	LastOperation uint64          `json:"last_operation"`
	EventSequence uint64          `json:"event_sequence"`
	Pools         []amm.Pool      `json:"pools"`
	Ledger        ledger.Snapshot `json:"ledger"`
	UpdatedAt     string          `json:"updated_at"`
}

// FileStore persists snapshots to a JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot. The bool is false when no snapshot exists yet.
func (s *FileStore) Load() (Snapshot, bool, error) {
	if s == nil || s.path == "" {
		return Snapshot{}, false, nil
	}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return Snapshot{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse state: %w", err)
	}
	return snap, true, nil
}

// Save writes the snapshot atomically via a temp file and rename.
func (s *FileStore) Save(snap Snapshot) error {
	if s == nil || s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
