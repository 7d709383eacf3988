// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/window.go
// Summary: Per-window bookkeeping for the region allocator.
// Usage: Owned exclusively by State; never touched outside the server loop.

package server

import (
	"slices"

	"github.com/framegrace/texelwin/region"
)

// ClientID identifies one accepted connection for the lifetime of the process.
type ClientID uint32

// Window is the server's record of one client window.
type Window struct {
	ID    int32
	Owner ClientID

	// Requested is what the client asked for, in display coordinates.
	Requested region.Region
	// Allocated is the part of Requested the client may currently draw into.
	Allocated region.Region

	// owed holds the event ids of RegionRemove events not yet acknowledged.
	owed []int32
	// closing is set once the owner disconnected; the window only waits for
	// its teardown command.
	closing bool
}

// PendingAcks is the number of RegionAcks the owner still owes for this window.
func (w *Window) PendingAcks() int {
	return len(w.owed)
}

func (w *Window) owe(eventID int32) {
	w.owed = append(w.owed, eventID)
}

// settle removes eventID from the owed list and reports whether it was there.
func (w *Window) settle(eventID int32) bool {
	idx := slices.Index(w.owed, eventID)
	if idx < 0 {
		return false
	}
	w.owed = slices.Delete(w.owed, idx, idx+1)
	return true
}

// stack is the front-to-back stacking order; index 0 is topmost.
type stack []*Window

func (s stack) index(w *Window) int {
	return slices.Index(s, w)
}

func (s stack) pushFront(w *Window) stack {
	return slices.Insert(s, 0, w)
}

func (s stack) remove(w *Window) stack {
	idx := s.index(w)
	if idx < 0 {
		return s
	}
	return slices.Delete(s, idx, idx+1)
}

// raise moves w to the front and reports whether the order changed.
func (s stack) raise(w *Window) (stack, bool) {
	idx := s.index(w)
	if idx <= 0 {
		return s, false
	}
	return s.remove(w).pushFront(w), true
}

// lower moves w to the back and reports whether the order changed.
func (s stack) lower(w *Window) (stack, bool) {
	idx := s.index(w)
	if idx < 0 || idx == len(s)-1 {
		return s, false
	}
	return append(s.remove(w), w), true
}
