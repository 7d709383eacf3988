// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/manager.go
// Summary: Registry of live client connections keyed by ClientID.
// Usage: Accept goroutines register connections; the server loop looks them up to deliver events.

package server

import (
	"errors"
	"net"
	"sync"
)

var (
	ErrClientNotFound = errors.New("server: client not found")
)

// Manager tracks active connections and hands out client ids.
type Manager struct {
	mu    sync.RWMutex
	conns map[ClientID]*connection
	next  ClientID
}

func NewManager() *Manager {
	return &Manager{conns: make(map[ClientID]*connection)}
}

// NewClientID returns an id never used before by this manager.
func (m *Manager) NewClientID() ClientID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return m.next
}

func (m *Manager) register(conn net.Conn, queue int) *connection {
	c := newConnection(m.NewClientID(), conn, queue)
	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()
	return c
}

func (m *Manager) lookup(id ClientID) (*connection, error) {
	m.mu.RLock()
	c, ok := m.conns[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrClientNotFound
	}
	return c, nil
}

func (m *Manager) remove(id ClientID) {
	m.mu.Lock()
	delete(m.conns, id)
	m.mu.Unlock()
}

// Close drops the connection of client id. Its reader notices and reports
// the disconnect to the server loop.
func (m *Manager) Close(id ClientID) {
	m.mu.Lock()
	c, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if ok {
		c.close()
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[ClientID]*connection)
	m.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// ActiveClients returns the number of registered connections.
func (m *Manager) ActiveClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
