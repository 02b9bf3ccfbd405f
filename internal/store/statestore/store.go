package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"contra/internal/exchange"
)

// Record is the persisted per-symbol position snapshot.
type Record struct {
	Symbol        string        `json:"symbol"`
	Side          exchange.Side `json:"side"`
	EntryPrice    float64       `json:"entry_price"`
	Size          float64       `json:"size"`
	OpenedAt      time.Time     `json:"opened_at"`
	PartialTPDone bool          `json:"partial_tp_done"`
	TargetProfit  float64       `json:"target_profit"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type snapshot struct {
	SavedAt   time.Time         `json:"saved_at"`
	Positions map[string]Record `json:"positions"`
}

// Store persists position state as a single JSON file. Save writes to a
// temp file in the same directory and renames it over the target, so a
// crash mid-write leaves the previous snapshot intact.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("statestore: path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("statestore: create dir: %w", err)
		}
	}
	return &Store{path: path, now: time.Now}, nil
}

// Save atomically replaces the snapshot on disk.
func (s *Store) Save(positions map[string]Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{SavedAt: s.now().UTC(), Positions: positions}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("statestore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statestore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statestore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statestore: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statestore: rename: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file is an empty state, not an error;
// corrupt JSON is an error so a damaged file never silently zeroes state.
func (s *Store) Load() (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("statestore: read: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("statestore: corrupt snapshot %s: %w", s.path, err)
	}
	if snap.Positions == nil {
		snap.Positions = map[string]Record{}
	}
	return snap.Positions, nil
}
