// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/snapshot_store.go
// Summary: Persists allocator snapshots to disk with a content hash.
// Usage: texelwin serve --snapshot writes the state periodically and at shutdown
// so a wedged or crashed display can be inspected afterwards.

package server

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrSnapshotCorrupt = errors.New("server: stored snapshot hash mismatch")

// SnapshotStore writes snapshots to a single JSON file.
type SnapshotStore struct {
	path string
	mu   sync.Mutex
}

// StoredSnapshot is the serialized representation written to disk.
type StoredSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	State     Snapshot  `json:"state"`
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Path returns the file the store writes.
func (s *SnapshotStore) Path() string {
	return s.path
}

func hashSnapshot(snap Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Save writes snap atomically, computing a SHA-1 hash for integrity.
func (s *SnapshotStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := hashSnapshot(snap)
	if err != nil {
		return err
	}
	stored := StoredSnapshot{
		Timestamp: time.Now().UTC(),
		Hash:      hash,
		State:     snap,
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load retrieves the most recent stored snapshot and verifies its hash.
func (s *SnapshotStore) Load() (StoredSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored StoredSnapshot
	data, err := os.ReadFile(s.path)
	if err != nil {
		return stored, err
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return stored, err
	}
	hash, err := hashSnapshot(stored.State)
	if err != nil {
		return stored, err
	}
	if hash != stored.Hash {
		return stored, ErrSnapshotCorrupt
	}
	return stored, nil
}
