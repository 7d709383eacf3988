// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/testutil/memconn.go
// Summary: In-memory net.Conn pair and a chunked writer for parser tests.
// Usage: Imported by server tests that need to control read boundaries.
// Notes: Writes never block. Each Write arrives as one chunk; a short Read
// leaves the rest of the chunk for the next one.

package testutil

import (
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// half is one direction of a pipe.
type half struct {
	mu     sync.Mutex
	chunks [][]byte
	eof    bool
	ready  chan struct{}
}

func newHalf() *half {
	return &half{ready: make(chan struct{}, 1)}
}

func (h *half) wake() {
	select {
	case h.ready <- struct{}{}:
	default:
	}
}

func (h *half) push(b []byte) {
	h.mu.Lock()
	h.chunks = append(h.chunks, append([]byte(nil), b...))
	h.mu.Unlock()
	h.wake()
}

func (h *half) closeWrite() {
	h.mu.Lock()
	h.eof = true
	h.mu.Unlock()
	h.wake()
}

// pop copies the head chunk into b. It reports false when nothing is
// buffered and the writer is still open.
func (h *half) pop(b []byte) (int, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.chunks) > 0 {
		n := copy(b, h.chunks[0])
		if n < len(h.chunks[0]) {
			h.chunks[0] = h.chunks[0][n:]
		} else {
			h.chunks = h.chunks[1:]
		}
		return n, true, nil
	}
	if h.eof {
		return 0, true, io.EOF
	}
	return 0, false, nil
}

// MemConn is one end of an in-memory connection.
type MemConn struct {
	in  *half
	out *half

	mu       sync.Mutex
	closed   bool
	deadline time.Time
}

// NewMemPipe returns two connected endpoints.
func NewMemPipe() (*MemConn, *MemConn) {
	ab, ba := newHalf(), newHalf()
	return &MemConn{in: ba, out: ab}, &MemConn{in: ab, out: ba}
}

func (m *MemConn) state() (bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, m.deadline
}

func (m *MemConn) Read(b []byte) (int, error) {
	for {
		closed, deadline := m.state()
		if closed {
			return 0, io.EOF
		}
		if n, ok, err := m.in.pop(b); ok {
			return n, err
		}
		if deadline.IsZero() {
			<-m.in.ready
			continue
		}
		d := time.Until(deadline)
		if d <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(d)
		select {
		case <-m.in.ready:
			timer.Stop()
		case <-timer.C:
			return 0, os.ErrDeadlineExceeded
		}
	}
}

func (m *MemConn) Write(b []byte) (int, error) {
	if closed, _ := m.state(); closed {
		return 0, io.ErrClosedPipe
	}
	m.out.push(b)
	return len(b), nil
}

// Close ends both directions: local reads fail at once, the peer drains what
// was written and then sees EOF.
func (m *MemConn) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.out.closeWrite()
	m.in.wake()
	return nil
}

var memAddr = &net.UnixAddr{Name: "memconn", Net: "unix"}

func (m *MemConn) LocalAddr() net.Addr  { return memAddr }
func (m *MemConn) RemoteAddr() net.Addr { return memAddr }

// SetDeadline bounds reads only; writes never block.
func (m *MemConn) SetDeadline(t time.Time) error {
	m.mu.Lock()
	m.deadline = t
	m.mu.Unlock()
	m.in.wake()
	return nil
}

func (m *MemConn) SetReadDeadline(t time.Time) error { return m.SetDeadline(t) }
func (m *MemConn) SetWriteDeadline(time.Time) error  { return nil }

// WriteChunked writes b in pieces of at most size bytes so the peer observes
// arbitrary read boundaries.
func WriteChunked(w io.Writer, b []byte, size int) error {
	if size <= 0 {
		size = 1
	}
	for len(b) > 0 {
		n := min(size, len(b))
		if _, err := w.Write(b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
