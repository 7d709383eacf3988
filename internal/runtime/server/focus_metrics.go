// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/focus_metrics.go
// Summary: Counts keyboard focus changes and logs each one.
// Usage: Installed as Config.Focus by texelwin serve when verbose logging is on.

package server

import (
	"log"
	"sync"
	"time"
)

// FocusListener hears about every focus change. It runs on the server loop.
type FocusListener interface {
	WindowFocused(window int32, owner ClientID)
}

type FocusMetrics struct {
	mu         sync.Mutex
	last       int32
	owner      ClientID
	changes    uint64
	lastChange time.Time
	logger     *log.Logger
}

type FocusStats struct {
	LastWindow int32
	LastOwner  ClientID
	Changes    uint64
	LastChange time.Time
}

func NewFocusMetrics(logger *log.Logger) *FocusMetrics {
	if logger == nil {
		logger = log.Default()
	}
	return &FocusMetrics{logger: logger}
}

func (f *FocusMetrics) WindowFocused(window int32, owner ClientID) {
	f.mu.Lock()
	f.last = window
	f.owner = owner
	f.changes++
	f.lastChange = time.Now()
	changes := f.changes
	f.mu.Unlock()

	if f.logger != nil {
		f.logger.Printf("metric focus window=%d client=%d changes=%d", window, owner, changes)
	}
}

func (f *FocusMetrics) Snapshot() FocusStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FocusStats{LastWindow: f.last, LastOwner: f.owner, Changes: f.changes, LastChange: f.lastChange}
}

var _ FocusListener = (*FocusMetrics)(nil)
