// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/realloc.go
// Summary: Region reallocation: revoke, wait for acknowledgements, grant, paint background.
// Usage: reconcile runs after any change to requests, stacking or the server region.
// Notes: Revocations take effect in the books immediately; grants only after every
// affected client confirmed it stopped drawing, so two windows never share a pixel.

package server

import (
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

// reallocation is the work left to do once outstanding acks arrive.
type reallocation struct {
	trigger string
	target  *Window
	desired map[*Window]region.Region
	started time.Time
	acks    int
	span    trace.Span
}

// computeDesired walks the stack front to back. Each window may have what it
// requested minus the server region and minus everything requested above it.
func (s *State) computeDesired() map[*Window]region.Region {
	desired := make(map[*Window]region.Region, len(s.stack))
	covered := s.reserved
	for _, w := range s.stack {
		if w.closing {
			desired[w] = region.Region{}
			continue
		}
		desired[w] = w.Requested.Clip(s.bounds).Subtract(covered)
		covered = covered.Union(w.Requested)
	}
	return desired
}

// reconcile starts a reallocation. It must only run while idle.
func (s *State) reconcile(trigger string, target *Window) {
	var targetID int32
	if target != nil {
		targetID = target.ID
	}
	re := &reallocation{
		trigger: trigger,
		target:  target,
		desired: s.computeDesired(),
		started: s.now(),
		span:    s.tracer.startReallocation(trigger, targetID),
	}

	for _, w := range s.stack {
		lost := w.Allocated.Subtract(re.desired[w])
		if lost.IsEmpty() {
			continue
		}
		w.Allocated = w.Allocated.Subtract(lost)
		if w.closing {
			continue
		}
		for _, rects := range splitRects(lost.Rects()) {
			id := s.nextEventID()
			w.owe(id)
			s.pendingAcks++
			re.acks++
			s.sink.SendEvent(w.Owner, protocol.RegionRemove{
				Window:  w.ID,
				EventID: id,
				Flags:   protocol.FlagAckRequired,
				Rects:   rects,
			})
		}
	}

	s.pending = re
	if s.pendingAcks > 0 {
		s.phase = PhaseAwaitingAcks
		debugLog.Printf("server: %s of window %d waits for %d acks", trigger, targetID, s.pendingAcks)
		return
	}
	s.finalize()
}

// finalize grants the pending reallocation: the target first, then every
// other window in stack order, then whatever nobody owns becomes background.
func (s *State) finalize() {
	re := s.pending
	s.pending = nil
	s.phase = PhaseIdle
	if re == nil {
		return
	}

	order := make([]*Window, 0, len(s.stack))
	if re.target != nil && s.windows[re.target.ID] == re.target {
		order = append(order, re.target)
	}
	for _, w := range s.stack {
		if w != re.target {
			order = append(order, w)
		}
	}

	var granted int64
	for _, w := range order {
		want, ok := re.desired[w]
		if !ok || w.closing {
			continue
		}
		gain := want.Subtract(w.Allocated)
		var flags uint32
		if w == re.target && re.acks > 0 {
			flags = protocol.FlagAckComplete
		}
		if gain.IsEmpty() && flags == 0 {
			continue
		}
		w.Allocated = w.Allocated.Union(gain)
		granted += gain.Area()
		chunks := splitRects(gain.Rects())
		for i, rects := range chunks {
			var f uint32
			if i == len(chunks)-1 {
				f = flags
			}
			s.sink.SendEvent(w.Owner, protocol.RegionAdd{
				Window:  w.ID,
				EventID: s.nextEventID(),
				Flags:   f,
				Rects:   rects,
			})
		}
	}

	owned := s.reserved
	for _, w := range s.stack {
		owned = owned.Union(w.Allocated)
	}
	background := region.FromRects(s.bounds).Subtract(owned)
	exposed := background.Subtract(s.background)
	s.background = background
	if !exposed.IsEmpty() {
		s.painter.PaintBackground(exposed)
	}

	wait := s.now().Sub(re.started)
	s.tracer.endReallocation(re.span, re.acks, granted, exposed.Area())
	if re.acks > 0 || granted > 0 || !exposed.IsEmpty() {
		var target int32
		if re.target != nil {
			target = re.target.ID
		}
		s.observer.ObserveReallocation(ReallocationStats{
			Trigger: re.trigger,
			Target:  target,
			Acks:    re.acks,
			Wait:    wait,
			Granted: granted,
			Exposed: exposed.Area(),
			Started: re.started,
		})
	}
}

// handleAck settles one RegionAck. When it was the last one outstanding the
// pending reallocation completes and deferred commands run.
func (s *State) handleAck(client ClientID, ack protocol.RegionAck) {
	w := s.windows[ack.Window]
	if w == nil {
		log.Printf("server: client %d acked unknown window %d", client, ack.Window)
		s.observer.ObserveProtocolError("ack_unknown_window")
		return
	}
	if w.Owner != client {
		log.Printf("server: client %d acked window %d owned by client %d; ignored", client, w.ID, w.Owner)
		s.observer.ObserveProtocolError("not_owner")
		return
	}
	if !w.settle(ack.EventID) {
		log.Printf("server: client %d sent unexpected ack %d for window %d", client, ack.EventID, w.ID)
		s.observer.ObserveProtocolError("unexpected_ack")
		return
	}
	s.pendingAcks--
	if s.pendingAcks == 0 && s.phase == PhaseAwaitingAcks {
		s.finalize()
		s.drain()
		return
	}
	s.observeState()
}

// drain applies deferred work in arrival order until the queue is empty or a
// reallocation suspends it again.
func (s *State) drain() {
	for s.phase == PhaseIdle {
		item, ok := s.queue.pop()
		if !ok {
			break
		}
		s.apply(item)
	}
	s.observeState()
}

// splitRects cuts rects into runs that fit one RegionAdd or RegionRemove.
// It always returns at least one run, which may be empty.
func splitRects(rects []region.Rect) [][]region.Rect {
	if len(rects) <= protocol.MaxRects {
		return [][]region.Rect{rects}
	}
	out := make([][]region.Rect, 0, (len(rects)+protocol.MaxRects-1)/protocol.MaxRects)
	for len(rects) > protocol.MaxRects {
		out = append(out, rects[:protocol.MaxRects:protocol.MaxRects])
		rects = rects[protocol.MaxRects:]
	}
	return append(out, rects)
}
