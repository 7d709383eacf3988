// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/properties.go
// Summary: Per-window property slots and change notification.

package server

import (
	"bytes"
	"log"
	"slices"

	"github.com/framegrace/texelwin/protocol"
)

type propertyKey struct {
	window   int32
	property int32
}

type propertyStore map[propertyKey][]byte

func (p propertyStore) dropWindow(window int32) {
	for k := range p {
		if k.window == window {
			delete(p, k)
		}
	}
}

// Property returns a copy of a stored value.
func (s *State) Property(window, property int32) ([]byte, bool) {
	v, ok := s.props[propertyKey{window, property}]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

func (s *State) addProperty(client ClientID, cmd protocol.AddProperty) {
	if s.lookupOrCreate(client, cmd.Window) == nil {
		return
	}
	key := propertyKey{cmd.Window, cmd.Property}
	if _, exists := s.props[key]; exists {
		log.Printf("server: client %d added existing property %d on window %d", client, cmd.Property, cmd.Window)
		s.observer.ObserveProtocolError("property_exists")
		return
	}
	s.props[key] = []byte{}
}

func (s *State) setProperty(client ClientID, cmd protocol.SetProperty) {
	if s.lookupOrCreate(client, cmd.Window) == nil {
		return
	}
	key := propertyKey{cmd.Window, cmd.Property}
	old, exists := s.props[key]
	if !exists {
		log.Printf("server: client %d set missing property %d on window %d", client, cmd.Property, cmd.Window)
		s.observer.ObserveProtocolError("property_missing")
		return
	}
	var value []byte
	switch cmd.Mode {
	case protocol.PropReplace:
		value = bytes.Clone(cmd.Data)
	case protocol.PropAppend:
		value = slices.Concat(old, cmd.Data)
	case protocol.PropPrepend:
		value = slices.Concat(cmd.Data, old)
	default:
		log.Printf("server: client %d used unknown property mode %d", client, cmd.Mode)
		s.observer.ObserveProtocolError("property_mode")
		return
	}
	if value == nil {
		value = []byte{}
	}
	s.props[key] = value
	s.notifyProperty(cmd.Window, cmd.Property, protocol.PropertyNewValue)
	s.completeConversion(cmd.Window, cmd.Property)
}

func (s *State) removeProperty(cmd protocol.RemoveProperty) {
	key := propertyKey{cmd.Window, cmd.Property}
	if _, exists := s.props[key]; !exists {
		debugLog.Printf("server: remove of missing property %d on window %d", cmd.Property, cmd.Window)
		return
	}
	delete(s.props, key)
	s.notifyProperty(cmd.Window, cmd.Property, protocol.PropertyDeleted)
}

func (s *State) getProperty(client ClientID, cmd protocol.GetProperty) {
	value, found := s.Property(cmd.Window, cmd.Property)
	s.send(client, protocol.PropertyReply{
		Window:   cmd.Window,
		Property: cmd.Property,
		Found:    found,
		Data:     value,
	})
}

// notifyProperty tells every connected client, in id order, about a change.
func (s *State) notifyProperty(window, property int32, state protocol.PropertyState) {
	ids := make([]ClientID, 0, len(s.clients))
	for id, c := range s.clients {
		if !c.closed {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ev := protocol.PropertyNotify{Window: window, Property: property, State: state}
	for _, id := range ids {
		s.sink.SendEvent(id, ev)
	}
}
