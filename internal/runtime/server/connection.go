// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/connection.go
// Summary: Per-client socket plumbing: a reader that parses commands and a writer that drains events.
// Usage: Created by Manager.register after the handshake; owned by the accept goroutine.
// Notes: Neither goroutine touches allocator state; everything flows through the server loop.

package server

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"github.com/framegrace/texelwin/protocol"
)

// ReasonQueueOverflow is reported when a client is dropped for not reading
// its events.
const ReasonQueueOverflow = "queue_overflow"

const (
	defaultEventQueue = 256
	readBufferSize    = 4096
)

type inboundKind uint8

const (
	inConnected inboundKind = iota
	inCommand
	inDisconnected
	inProtocolError
)

// inbound is one message from a connection goroutine to the server loop.
type inbound struct {
	kind   inboundKind
	client ClientID
	cmd    protocol.Command
	reason string
}

type connection struct {
	id        ClientID
	conn      net.Conn
	events    chan protocol.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(id ClientID, conn net.Conn, queue int) *connection {
	if queue <= 0 {
		queue = defaultEventQueue
	}
	return &connection{
		id:     id,
		conn:   conn,
		events: make(chan protocol.Event, queue),
		done:   make(chan struct{}),
	}
}

// send queues ev without blocking. It reports false when the queue is full or
// the connection is closed.
func (c *connection) send(ev protocol.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writeLoop encodes queued events, flushing whenever the queue runs dry.
func (c *connection) writeLoop() {
	w := bufio.NewWriter(c.conn)
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			if err := protocol.WriteEvent(w, ev); err != nil {
				log.Printf("server: client %d encode %s: %v", c.id, ev.EventType(), err)
				c.close()
				return
			}
			if len(c.events) > 0 {
				continue
			}
			if err := w.Flush(); err != nil {
				debugLog.Printf("server: client %d write: %v", c.id, err)
				c.close()
				return
			}
		}
	}
}

// readLoop parses commands until the socket fails or quit closes. Unknown
// message types are reported and skipped; any other framing error ends the
// connection.
func (c *connection) readLoop(out chan<- inbound, quit <-chan struct{}) error {
	dec := protocol.NewCommandDecoder()
	buf := make([]byte, readBufferSize)
	deliver := func(msg inbound) bool {
		select {
		case out <- msg:
			return true
		case <-quit:
			return false
		}
	}
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			_, _ = dec.Write(buf[:n])
			for {
				cmd, ok, derr := dec.Next()
				if derr != nil {
					var unknown *protocol.UnknownTypeError
					if errors.As(derr, &unknown) {
						log.Printf("server: client %d: %v", c.id, derr)
						if !deliver(inbound{kind: inProtocolError, client: c.id, reason: "unknown_type"}) {
							return nil
						}
						continue
					}
					deliver(inbound{kind: inProtocolError, client: c.id, reason: "framing"})
					return derr
				}
				if !ok {
					break
				}
				debugLog.Printf("server: client %d recv %s", c.id, cmd.CommandType())
				if !deliver(inbound{kind: inCommand, client: c.id, cmd: cmd}) {
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}
