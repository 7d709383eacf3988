// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/connection_test.go
// Summary: Exercises connection behaviour to ensure the server runtime remains reliable.
// Usage: Executed during `go test` to guard against regressions.

package server

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/framegrace/texelwin/internal/runtime/server/testutil"
	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

func encodeCommands(t *testing.T, cmds ...protocol.Command) []byte {
	t.Helper()
	var stream []byte
	for _, cmd := range cmds {
		b, err := protocol.EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("encode %s: %v", cmd.CommandType(), err)
		}
		stream = append(stream, b...)
	}
	return stream
}

func TestConnectionReadLoopHandlesSplitReads(t *testing.T) {
	left, right := testutil.NewMemPipe()
	conn := newConnection(1, left, 4)
	defer conn.close()

	cmds := []protocol.Command{
		protocol.Create{Count: 2},
		protocol.Region{Window: 1, Rects: []region.Rect{region.R(0, 0, 10, 10), region.R(20, 20, 5, 5)}},
		protocol.SetProperty{Window: 1, Property: 3, Mode: protocol.PropAppend, Data: []byte("payload")},
		protocol.ConvertSelection{Requestor: 1, Property: 3, MimeTypes: []string{"text/plain"}},
		protocol.RegionAck{Window: 1, EventID: 4},
	}
	stream := encodeCommands(t, cmds...)

	out := make(chan inbound, 16)
	quit := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- conn.readLoop(out, quit) }()

	if err := testutil.WriteChunked(right, stream, 3); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i, want := range cmds {
		select {
		case msg := <-out:
			if msg.kind != inCommand || msg.client != 1 {
				t.Fatalf("unexpected inbound %#v", msg)
			}
			if msg.cmd.CommandType() != want.CommandType() {
				t.Fatalf("command %d: got %s want %s", i, msg.cmd.CommandType(), want.CommandType())
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for command %d", i)
		}
	}

	right.Close()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("clean close reported %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("read loop did not exit")
	}
}

func TestConnectionFramingErrorEndsReadLoop(t *testing.T) {
	left, right := testutil.NewMemPipe()
	conn := newConnection(1, left, 4)
	defer conn.close()

	// Region claiming far more rectangles than allowed.
	bad := []byte{2, 0, 0, 0, 1, 0, 0, 0, 0xff, 0xff, 0xff, 0x7f}
	out := make(chan inbound, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- conn.readLoop(out, make(chan struct{})) }()
	if _, err := right.Write(bad); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, protocol.ErrFrameTooLarge) {
			t.Fatalf("expected ErrFrameTooLarge, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("read loop did not fail")
	}
	if msg := <-out; msg.kind != inProtocolError || msg.reason != "framing" {
		t.Fatalf("expected framing report, got %#v", msg)
	}
}

func TestConnectionSendOverflow(t *testing.T) {
	left, right := net.Pipe()
	defer right.Close()
	conn := newConnection(7, left, 1)

	if !conn.send(protocol.Focus{Window: 1, Gained: true}) {
		t.Fatalf("first event should fit")
	}
	if conn.send(protocol.Focus{Window: 1}) {
		t.Fatalf("second event should overflow")
	}
	conn.close()
	if conn.send(protocol.Focus{Window: 1}) {
		t.Fatalf("closed connection accepted an event")
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager()
	left, right := net.Pipe()
	defer right.Close()
	c := m.register(left, 4)
	if m.ActiveClients() != 1 {
		t.Fatalf("expected 1 active client")
	}
	found, err := m.lookup(c.id)
	if err != nil || found != c {
		t.Fatalf("lookup returned %v, %v", found, err)
	}
	m.Close(c.id)
	if m.ActiveClients() != 0 {
		t.Fatalf("expected 0 active clients after close")
	}
	if _, err := m.lookup(c.id); err != ErrClientNotFound {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
	if next := m.NewClientID(); next == c.id {
		t.Fatalf("client ids must not be reused")
	}
}

func TestWellBehavedClientsConverge(t *testing.T) {
	srv, err := NewServer("", Options{State: Config{Bounds: screen}})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Stop(context.Background())

	rng := rand.New(rand.NewSource(3))
	var clients []*testutil.TestClient
	var windows []int32
	for i := 0; i < 4; i++ {
		serverConn, clientConn := net.Pipe()
		srv.ServeConn(serverConn)
		tc := testutil.NewTestClient(t, clientConn)
		defer tc.Close()
		clients = append(clients, tc)
		windows = append(windows, tc.CreateWindow(2*time.Second))
	}
	for round := 0; round < 20; round++ {
		i := rng.Intn(len(clients))
		r := region.R(int32(rng.Intn(600)), int32(rng.Intn(400)), int32(rng.Intn(400)+1), int32(rng.Intn(300)+1))
		clients[i].Send(protocol.Region{Window: windows[i], Rects: []region.Rect{r}})
		if rng.Intn(4) == 0 {
			clients[i].Send(protocol.ChangeAltitude{Window: windows[i], Altitude: protocol.AltitudeRaise})
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, err := srv.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		converged := snap.PendingAcks == 0 && snap.QueueDepth == 0
		for _, ws := range snap.Windows {
			for i, id := range windows {
				if id == ws.ID && !clients[i].Allocated(id).Equal(region.FromRects(ws.Allocated...)) {
					converged = false
				}
			}
		}
		if converged {
			for i, a := range snap.Windows {
				for _, b := range snap.Windows[i+1:] {
					if region.FromRects(a.Allocated...).Overlaps(region.FromRects(b.Allocated...)) {
						t.Fatalf("windows %d and %d overlap", a.ID, b.ID)
					}
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("clients did not converge: %+v", snap)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
