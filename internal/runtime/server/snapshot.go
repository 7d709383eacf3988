// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/snapshot.go
// Summary: Read-only copy of allocator state for the admin endpoint and console.

package server

import (
	"cmp"
	"slices"

	"github.com/framegrace/texelwin/region"
)

// Snapshot describes the allocator at one instant. Windows are listed front
// to back.
type Snapshot struct {
	Bounds         region.Rect      `json:"bounds"`
	Reserved       []region.Rect    `json:"reserved"`
	Background     []region.Rect    `json:"background"`
	Phase          string           `json:"phase"`
	PendingAcks    int              `json:"pending_acks"`
	QueueDepth     int              `json:"queue_depth"`
	Focused        int32            `json:"focused,omitempty"`
	SelectionOwner int32            `json:"selection_owner,omitempty"`
	Properties     int              `json:"properties"`
	Windows        []WindowSnapshot `json:"windows"`
	Clients        []ClientSnapshot `json:"clients"`
}

type WindowSnapshot struct {
	ID          int32         `json:"id"`
	Owner       ClientID      `json:"owner"`
	Requested   []region.Rect `json:"requested"`
	Allocated   []region.Rect `json:"allocated"`
	PendingAcks int           `json:"pending_acks"`
	Closing     bool          `json:"closing,omitempty"`
}

type ClientSnapshot struct {
	ID      ClientID `json:"id"`
	Name    string   `json:"name,omitempty"`
	Windows int      `json:"windows"`
	Closed  bool     `json:"closed,omitempty"`
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Bounds:      s.bounds,
		Reserved:    s.reserved.Rects(),
		Background:  s.background.Rects(),
		Phase:       s.phase.String(),
		PendingAcks: s.pendingAcks,
		QueueDepth:  s.queue.Len(),
		Focused:     s.Focused(),
		Properties:  len(s.props),
		Windows:     make([]WindowSnapshot, 0, len(s.stack)),
		Clients:     make([]ClientSnapshot, 0, len(s.clients)),
	}
	if owner, ok := s.SelectionOwner(); ok {
		snap.SelectionOwner = owner
	}
	perClient := make(map[ClientID]int, len(s.clients))
	for _, w := range s.stack {
		perClient[w.Owner]++
		snap.Windows = append(snap.Windows, WindowSnapshot{
			ID:          w.ID,
			Owner:       w.Owner,
			Requested:   w.Requested.Rects(),
			Allocated:   w.Allocated.Rects(),
			PendingAcks: w.PendingAcks(),
			Closing:     w.closing,
		})
	}
	for id, c := range s.clients {
		snap.Clients = append(snap.Clients, ClientSnapshot{
			ID:      id,
			Name:    c.name,
			Windows: perClient[id],
			Closed:  c.closed,
		})
	}
	slices.SortFunc(snap.Clients, func(a, b ClientSnapshot) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return snap
}
