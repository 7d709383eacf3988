// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/input.go
// Summary: Routes pointer and keyboard input to windows and tracks keyboard focus.
// Usage: Fed by the console input source through Server.InjectMouse/InjectKey.

package server

import "github.com/framegrace/texelwin/protocol"

// WindowAt returns the topmost window whose allocation contains the point.
func (s *State) WindowAt(x, y int32) *Window {
	for _, w := range s.stack {
		if !w.closing && w.Allocated.ContainsPoint(x, y) {
			return w
		}
	}
	return nil
}

// InjectMouse delivers m to the window under the pointer. It reports whether
// any window received it.
func (s *State) InjectMouse(m protocol.Mouse) bool {
	w := s.WindowAt(m.X, m.Y)
	if w == nil {
		return false
	}
	m.Window = w.ID
	s.send(w.Owner, m)
	return true
}

// InjectKey delivers k to the focused window.
func (s *State) InjectKey(k protocol.Key) bool {
	w := s.focus
	if w == nil || w.closing {
		return false
	}
	k.Window = w.ID
	s.send(w.Owner, k)
	return true
}

// Focused returns the id of the window holding keyboard focus, or 0.
func (s *State) Focused() int32 {
	if s.focus == nil {
		return 0
	}
	return s.focus.ID
}

func (s *State) setFocus(w *Window) {
	if s.focus == w {
		return
	}
	if prev := s.focus; prev != nil {
		s.send(prev.Owner, protocol.Focus{Window: prev.ID, Gained: false})
	}
	s.focus = w
	s.send(w.Owner, protocol.Focus{Window: w.ID, Gained: true})
	if s.focusL != nil {
		s.focusL.WindowFocused(w.ID, w.Owner)
	}
}
