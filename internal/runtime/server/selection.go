// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/selection.go
// Summary: Global selection ownership and conversion brokering.
// Notes: A conversion is answered by the owner storing the data into the requested
// property; when that does not happen in time the requestor gets a miss reply.

package server

import (
	"time"

	"github.com/framegrace/texelwin/protocol"
)

type selectionOwner struct {
	window int32
	time   int64
}

type conversion struct {
	requestor ClientID
	window    int32
	property  int32
	deadline  time.Time
}

// SelectionOwner returns the owning window, if any.
func (s *State) SelectionOwner() (int32, bool) {
	if s.selection == nil {
		return 0, false
	}
	return s.selection.window, true
}

func (s *State) setSelectionOwner(client ClientID, cmd protocol.SetSelectionOwner) {
	w := s.lookupOrCreate(client, cmd.Window)
	if w == nil {
		return
	}
	if prev := s.selection; prev != nil && prev.window != w.ID {
		if pw := s.windows[prev.window]; pw != nil {
			s.send(pw.Owner, protocol.SelectionClear{Window: prev.window, Time: cmd.Time})
		}
	}
	s.selection = &selectionOwner{window: w.ID, time: cmd.Time}
}

func (s *State) convertSelection(client ClientID, cmd protocol.ConvertSelection) {
	var owner *Window
	if s.selection != nil {
		owner = s.windows[s.selection.window]
	}
	if owner == nil || !s.clientConnected(owner.Owner) {
		s.send(client, protocol.PropertyReply{Window: cmd.Requestor, Property: cmd.Property})
		return
	}
	s.send(owner.Owner, protocol.SelectionRequest{
		Window:    owner.ID,
		Requestor: cmd.Requestor,
		Property:  cmd.Property,
		MimeTypes: cmd.MimeTypes,
	})
	if s.convTimeout <= 0 {
		return
	}
	s.conversions = append(s.conversions, conversion{
		requestor: client,
		window:    cmd.Requestor,
		property:  cmd.Property,
		deadline:  s.now().Add(s.convTimeout),
	})
}

// completeConversion retires conversions answered by a SetProperty.
func (s *State) completeConversion(window, property int32) {
	kept := s.conversions[:0]
	for _, c := range s.conversions {
		if c.window == window && c.property == property {
			continue
		}
		kept = append(kept, c)
	}
	s.conversions = kept
}

func (s *State) dropConversions(client ClientID) {
	kept := s.conversions[:0]
	for _, c := range s.conversions {
		if c.requestor != client {
			kept = append(kept, c)
		}
	}
	s.conversions = kept
}

// PendingConversions is the number of selection conversions still waiting.
func (s *State) PendingConversions() int {
	return len(s.conversions)
}

// Tick expires selection conversions whose deadline passed, answering each
// requestor with a miss.
func (s *State) Tick(now time.Time) {
	if len(s.conversions) == 0 {
		return
	}
	kept := s.conversions[:0]
	for _, c := range s.conversions {
		if now.Before(c.deadline) {
			kept = append(kept, c)
			continue
		}
		debugLog.Printf("server: selection conversion for window %d property %d timed out", c.window, c.property)
		s.send(c.requestor, protocol.PropertyReply{Window: c.window, Property: c.property})
	}
	s.conversions = kept
}
