// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/observer.go
// Summary: Hooks through which metrics, tracing and the journal watch the allocator.
// Usage: Implemented by Metrics, journal adapters and tests; invoked on the server loop.

package server

import "time"

// ReallocationStats describes one completed reallocation round.
type ReallocationStats struct {
	Trigger string
	Target  int32
	Acks    int
	Wait    time.Duration
	Granted int64
	Exposed int64
	Started time.Time
}

// StateStats is a point-in-time summary of the allocator.
type StateStats struct {
	Windows     int
	Clients     int
	PendingAcks int
	QueueDepth  int
}

// Observer receives allocator notifications. Calls happen on the server loop
// and must not block.
type Observer interface {
	ObserveReallocation(stats ReallocationStats)
	ObserveState(stats StateStats)
	ObserveClient(id ClientID, name string, connected bool)
	ObserveProtocolError(reason string)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) ObserveReallocation(ReallocationStats)  {}
func (NopObserver) ObserveState(StateStats)                {}
func (NopObserver) ObserveClient(ClientID, string, bool)   {}
func (NopObserver) ObserveProtocolError(string)            {}

type multiObserver []Observer

// Observers fans notifications out to every non-nil observer.
func Observers(list ...Observer) Observer {
	out := make(multiObserver, 0, len(list))
	for _, o := range list {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multiObserver) ObserveReallocation(stats ReallocationStats) {
	for _, o := range m {
		o.ObserveReallocation(stats)
	}
}

func (m multiObserver) ObserveState(stats StateStats) {
	for _, o := range m {
		o.ObserveState(stats)
	}
}

func (m multiObserver) ObserveClient(id ClientID, name string, connected bool) {
	for _, o := range m {
		o.ObserveClient(id, name, connected)
	}
}

func (m multiObserver) ObserveProtocolError(reason string) {
	for _, o := range m {
		o.ObserveProtocolError(reason)
	}
}
