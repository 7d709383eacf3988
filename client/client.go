// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: client/client.go
// Summary: Thin wire client for the window server: handshake, commands, events.
// Usage: Used by integration tests and texelwin-stress; real toolkits bring their own.

package client

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/framegrace/texelwin/protocol"
)

const dialTimeout = 5 * time.Second

// Client is one connection to the window server. Send may be called from
// any goroutine; ReadEvent from one goroutine at a time.
type Client struct {
	conn   net.Conn
	header protocol.ConnectionHeader
	dec    *protocol.Decoder[protocol.Event]
	buf    []byte

	writeMu sync.Mutex
}

// Dial connects to the server socket and reads the connection header.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	c, err := NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient wraps an established connection and consumes the handshake.
func NewClient(conn net.Conn) (*Client, error) {
	_ = conn.SetReadDeadline(time.Now().Add(dialTimeout))
	hdr, err := protocol.ReadConnectionHeader(conn)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	return &Client{
		conn:   conn,
		header: hdr,
		dec:    protocol.NewEventDecoder(),
		buf:    make([]byte, 4096),
	}, nil
}

// Header returns the display description sent by the server.
func (c *Client) Header() protocol.ConnectionHeader {
	return c.header
}

// Send writes one command.
func (c *Client) Send(cmd protocol.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteCommand(c.conn, cmd)
}

// ReadEvent blocks until the next event arrives. Event types this client
// does not know are skipped.
func (c *Client) ReadEvent() (protocol.Event, error) {
	for {
		ev, ok, err := c.dec.Next()
		if err != nil {
			if _, unknown := err.(*protocol.UnknownTypeError); unknown {
				continue
			}
			return nil, err
		}
		if ok {
			return ev, nil
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			_, _ = c.dec.Write(c.buf[:n])
			continue
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, err
	}
}

// Ack confirms a RegionRemove. Removes that need no acknowledgement are
// ignored.
func (c *Client) Ack(ev protocol.RegionRemove) error {
	if !ev.NeedsAck() {
		return nil
	}
	return c.Send(protocol.RegionAck{Window: ev.Window, EventID: ev.EventID})
}

// SetReadDeadline bounds the next ReadEvent.
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
