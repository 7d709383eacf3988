// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/snapshot_store_test.go
// Summary: Exercises snapshot persistence and the periodic writer.
// Usage: Executed during `go test` to guard against regressions.

package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	st, sink, _ := newTestState(t)
	st.Connect(1)
	w := createWindow(t, st, sink, 1)
	st.Handle(1, protocol.Region{Window: w, Rects: []region.Rect{region.R(0, 0, 100, 100)}})
	settle(t, st, sink)

	store := NewSnapshotStore(filepath.Join(t.TempDir(), "nested", "state.json"))
	if err := store.Save(st.Snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	stored, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored.State.Windows) != 1 || stored.State.Windows[0].ID != w || stored.Hash == "" {
		t.Fatalf("unexpected stored snapshot %+v", stored)
	}
	if len(stored.State.Windows[0].Allocated) != 1 || stored.State.Windows[0].Allocated[0] != region.R(0, 0, 100, 100) {
		t.Fatalf("allocation lost: %+v", stored.State.Windows[0])
	}
}

func TestSnapshotStoreDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewSnapshotStore(path)
	if err := store.Save(Snapshot{Phase: "idle", PendingAcks: 0}); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	tampered := strings.Replace(string(data), `"phase": "idle"`, `"phase": "awaiting_acks"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
	}
}

func TestServerPersistsSnapshotOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	srv, err := NewServer(filepath.Join(t.TempDir(), "texelwin.sock"), Options{State: Config{Bounds: screen}})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.SetSnapshotStore(NewSnapshotStore(path), time.Hour)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := srv.SetReserved(context.Background(), region.FromRects(region.R(0, 0, 800, 10))); err != nil {
		t.Fatalf("set reserved: %v", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	stored, err := NewSnapshotStore(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored.State.Reserved) != 1 {
		t.Fatalf("final snapshot missing reserved region: %+v", stored.State)
	}
}
