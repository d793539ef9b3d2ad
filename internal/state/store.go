// Package state persists the daemon's crash-safe on-disk state: the last
// bucket Snapshot and the MonitorState of delivered objects.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/types"
)

// Store persists snapshot-latest.json, snapshot-previous.json, and
// state.json under a state directory using the write-temp-then-rename
// pattern, so a reader never observes a torn file.
type Store struct {
	dir              string
	stateFile        string
	latestSnapshot   string
	previousSnapshot string
}

// New returns a Store rooted at dir. Bootstrap must be called before the
// first write (run_once skips this in dry-run mode).
func New(dir string) *Store {
	return &Store{
		dir:              dir,
		stateFile:        filepath.Join(dir, "state.json"),
		latestSnapshot:   filepath.Join(dir, "snapshot-latest.json"),
		previousSnapshot: filepath.Join(dir, "snapshot-previous.json"),
	}
}

// Bootstrap ensures the state directory exists.
func (s *Store) Bootstrap() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create state dir %s: %v", apperrors.ErrStateWrite, s.dir, err)
	}
	return nil
}

// LoadState returns the persisted MonitorState, or an empty one if
// state.json does not yet exist.
func (s *Store) LoadState() (types.MonitorState, error) {
	raw, err := os.ReadFile(s.stateFile)
	if errors.Is(err, os.ErrNotExist) {
		return types.NewMonitorState(), nil
	}
	if err != nil {
		return types.MonitorState{}, fmt.Errorf("%w: read %s: %v", apperrors.ErrStateRead, s.stateFile, err)
	}
	var state types.MonitorState
	if err := json.Unmarshal(raw, &state); err != nil {
		return types.MonitorState{}, fmt.Errorf("%w: decode %s: %v", apperrors.ErrStateRead, s.stateFile, err)
	}
	if state.Processed == nil {
		state.Processed = map[string]types.ProcessingRecord{}
	}
	return state, nil
}

// SaveState atomically persists state to state.json.
func (s *Store) SaveState(state types.MonitorState) error {
	return writeJSONAtomic(s.stateFile, state)
}

// LoadLatestSnapshot returns the persisted snapshot, or the zero Snapshot
// (nil Objects) if snapshot-latest.json does not yet exist — callers treat
// that as "no prior run".
func (s *Store) LoadLatestSnapshot() (types.Snapshot, error) {
	raw, err := os.ReadFile(s.latestSnapshot)
	if errors.Is(err, os.ErrNotExist) {
		return types.Snapshot{}, nil
	}
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: read %s: %v", apperrors.ErrStateRead, s.latestSnapshot, err)
	}
	var snap types.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: decode %s: %v", apperrors.ErrStateRead, s.latestSnapshot, err)
	}
	return snap, nil
}

// SaveSnapshot demotes the current snapshot-latest.json to
// snapshot-previous.json (if present) and atomically installs snapshot as
// the new latest, so at any instant the filesystem holds a readable
// snapshot.
func (s *Store) SaveSnapshot(snapshot types.Snapshot) error {
	if _, err := os.Stat(s.latestSnapshot); err == nil {
		if err := os.Rename(s.latestSnapshot, s.previousSnapshot); err != nil {
			return fmt.Errorf("%w: demote snapshot: %v", apperrors.ErrStateWrite, err)
		}
	}
	return writeJSONAtomic(s.latestSnapshot, snapshot)
}

func writeJSONAtomic(target string, payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", apperrors.ErrStateWrite, target, err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", apperrors.ErrStateWrite, tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("%w: rename %s: %v", apperrors.ErrStateWrite, target, err)
	}
	return nil
}
