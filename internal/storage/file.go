// Package storage persists the chain head and the first-scan ledger as a
// single JSON snapshot on disk, rewritten wholesale after each mutation.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State is the durable record. LastChainHash is empty before the first
// issuance; FirstScan maps ticket_id to the first verification timestamp.
type State struct {
	LastChainHash string           `json:"last_chain_hash,omitempty"`
	FirstScan     map[string]int64 `json:"first_scan"`
}

// FileStore reads and writes the state snapshot at a fixed path.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. A missing or corrupt file yields an empty
// state plus the error for the caller to log.
func (s *FileStore) Load() (*State, error) {
	empty := &State{FirstScan: make(map[string]int64)}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return empty, fmt.Errorf("storage: read %s: %w", s.path, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return empty, fmt.Errorf("storage: parse %s: %w", s.path, err)
	}
	if st.FirstScan == nil {
		st.FirstScan = make(map[string]int64)
	}
	return &st, nil
}

// Save writes the snapshot to a temp file in the same directory and
// renames it over the target.
func (s *FileStore) Save(st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("storage: marshal state: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}
