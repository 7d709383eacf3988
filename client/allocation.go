// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: client/allocation.go
// Summary: Client-side record of which pixels each window may draw into.
// Usage: Feed every received event to Apply; query Allocated before drawing.

package client

import (
	"sort"
	"time"

	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

// WindowState is the locally known allocation of one window.
type WindowState struct {
	ID        int32
	Allocated region.Region
	Revision  uint32
	UpdatedAt time.Time
	Focused   bool
}

// AllocationCache tracks allocations for the windows of one client.
type AllocationCache struct {
	windows map[int32]*WindowState
}

func NewAllocationCache() *AllocationCache {
	return &AllocationCache{windows: make(map[int32]*WindowState)}
}

func (c *AllocationCache) window(id int32) *WindowState {
	w, ok := c.windows[id]
	if !ok {
		w = &WindowState{ID: id}
		c.windows[id] = w
	}
	return w
}

// Apply updates the cache from ev and returns the affected window, or nil for
// events that do not change allocations or focus.
func (c *AllocationCache) Apply(ev protocol.Event) *WindowState {
	var w *WindowState
	switch e := ev.(type) {
	case protocol.RegionAdd:
		w = c.window(e.Window)
		w.Allocated = w.Allocated.Union(e.Area())
	case protocol.RegionRemove:
		w = c.window(e.Window)
		w.Allocated = w.Allocated.Subtract(e.Area())
	case protocol.Focus:
		w = c.window(e.Window)
		w.Focused = e.Gained
	default:
		return nil
	}
	w.Revision++
	w.UpdatedAt = time.Now()
	return w
}

// Allocated returns what window id may currently draw into.
func (c *AllocationCache) Allocated(id int32) region.Region {
	if w, ok := c.windows[id]; ok {
		return w.Allocated
	}
	return region.Region{}
}

// Forget drops a window from the cache.
func (c *AllocationCache) Forget(id int32) {
	delete(c.windows, id)
}

// Windows returns the known windows ordered by id.
func (c *AllocationCache) Windows() []*WindowState {
	out := make([]*WindowState, 0, len(c.windows))
	for _, w := range c.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
