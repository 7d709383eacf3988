// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/event_sink.go
// Summary: Outbound seams of the allocator: event delivery and background painting.
// Usage: Server implements EventSink; internal/shm implements BackgroundPainter.

package server

import (
	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

// EventSink delivers events to a client. Implementations must not block the
// caller and must tolerate clients that have already gone away.
type EventSink interface {
	SendEvent(client ClientID, ev protocol.Event)
}

// BackgroundPainter fills display areas that no window owns.
type BackgroundPainter interface {
	PaintBackground(area region.Region)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(client ClientID, ev protocol.Event)

func (f EventSinkFunc) SendEvent(client ClientID, ev protocol.Event) { f(client, ev) }

// nopSink discards events when no sink is provided.
type nopSink struct{}

func (nopSink) SendEvent(ClientID, protocol.Event) {}
func (nopSink) PaintBackground(region.Region)      {}
