// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/server_test.go
// Summary: End-to-end checks over a real Unix socket with the wire client.
// Usage: Executed during `go test` to guard against regressions.

package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/framegrace/texelwin/client"
	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "texelwin.sock")
	srv, err := NewServer(sock, Options{
		State:  Config{Bounds: screen, SelectionTimeout: 200 * time.Millisecond},
		Header: protocol.ConnectionHeader{Width: 800, Height: 600, Depth: 32, SemaphoreKey: 42},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return srv
}

func dialTestClient(t *testing.T, srv *Server) *client.Client {
	t.Helper()
	c, err := client.Dial(srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// readUntil returns the first event accepted by match, skipping others.
func readUntil(t *testing.T, c *client.Client, match func(protocol.Event) bool) protocol.Event {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer c.SetReadDeadline(time.Time{})
	for {
		ev, err := c.ReadEvent()
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if match(ev) {
			return ev
		}
	}
}

func isCreation(ev protocol.Event) bool {
	_, ok := ev.(protocol.Creation)
	return ok
}

func isRegionAdd(ev protocol.Event) bool {
	_, ok := ev.(protocol.RegionAdd)
	return ok
}

func isRegionRemove(ev protocol.Event) bool {
	_, ok := ev.(protocol.RegionRemove)
	return ok
}

func createOverWire(t *testing.T, c *client.Client) int32 {
	t.Helper()
	if err := c.Send(protocol.Create{Count: 1}); err != nil {
		t.Fatalf("send create: %v", err)
	}
	return readUntil(t, c, isCreation).(protocol.Creation).ObjectID
}

func TestServerHandshakeAndReallocation(t *testing.T) {
	srv := startTestServer(t)
	c1 := dialTestClient(t, srv)
	if hdr := c1.Header(); hdr.Width != 800 || hdr.Height != 600 || hdr.SemaphoreKey != 42 {
		t.Fatalf("unexpected header %+v", hdr)
	}
	w1 := createOverWire(t, c1)
	if err := c1.Send(protocol.Region{Window: w1, Rects: []region.Rect{screen}}); err != nil {
		t.Fatalf("send region: %v", err)
	}
	readUntil(t, c1, isRegionAdd)

	c2 := dialTestClient(t, srv)
	w2 := createOverWire(t, c2)
	if err := c2.Send(protocol.Region{Window: w2, Rects: []region.Rect{screen}}); err != nil {
		t.Fatalf("send region: %v", err)
	}

	rm := readUntil(t, c1, isRegionRemove).(protocol.RegionRemove)
	if rm.Window != w1 || !rm.NeedsAck() {
		t.Fatalf("unexpected remove %#v", rm)
	}
	if err := c1.Ack(rm); err != nil {
		t.Fatalf("ack: %v", err)
	}
	add := readUntil(t, c2, isRegionAdd).(protocol.RegionAdd)
	if add.Flags&protocol.FlagAckComplete == 0 || !add.Area().Equal(region.FromRects(screen)) {
		t.Fatalf("unexpected grant %#v", add)
	}

	snap, err := srv.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Windows) != 2 || snap.Windows[0].ID != w2 || snap.PendingAcks != 0 || snap.Phase != "idle" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.Clients) != 2 {
		t.Fatalf("expected two clients, got %+v", snap.Clients)
	}
}

func TestServerDisconnectReleasesOwedAcks(t *testing.T) {
	srv := startTestServer(t)
	c1 := dialTestClient(t, srv)
	w1 := createOverWire(t, c1)
	_ = c1.Send(protocol.Region{Window: w1, Rects: []region.Rect{screen}})
	readUntil(t, c1, isRegionAdd)

	c2 := dialTestClient(t, srv)
	w2 := createOverWire(t, c2)
	_ = c2.Send(protocol.Region{Window: w2, Rects: []region.Rect{screen}})
	readUntil(t, c1, isRegionRemove)
	c1.Close()

	add := readUntil(t, c2, isRegionAdd).(protocol.RegionAdd)
	if !add.Area().Equal(region.FromRects(screen)) {
		t.Fatalf("unexpected grant %v", add.Area())
	}
}

func TestServerSkipsUnknownCommands(t *testing.T) {
	srv := startTestServer(t)
	conn, err := net.Dial("unix", srv.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c, err := client.NewClient(conn)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	defer c.Close()
	if _, err := conn.Write([]byte{0xe7, 0x03, 0, 0}); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	if id := createOverWire(t, c); id != 1 {
		t.Fatalf("expected window 1, got %d", id)
	}
}

func TestServerSelectionTimeoutReply(t *testing.T) {
	srv := startTestServer(t)
	owner := dialTestClient(t, srv)
	requestor := dialTestClient(t, srv)
	ow := createOverWire(t, owner)
	rw := createOverWire(t, requestor)
	_ = owner.Send(protocol.SetSelectionOwner{Window: ow, Time: 1})
	_ = requestor.Send(protocol.ConvertSelection{Requestor: rw, Property: 3, MimeTypes: []string{"text/plain"}})

	readUntil(t, owner, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.SelectionRequest)
		return ok
	})
	reply := readUntil(t, requestor, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.PropertyReply)
		return ok
	}).(protocol.PropertyReply)
	if reply.Found || reply.Window != rw || reply.Property != 3 {
		t.Fatalf("unexpected reply %#v", reply)
	}
}

func TestServeConnWritesHandshakeFirst(t *testing.T) {
	srv, err := NewServer("", Options{
		State:  Config{Bounds: screen},
		Header: protocol.ConnectionHeader{Width: 800, Height: 600, Depth: 16},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Stop(context.Background())

	serverConn, clientConn := net.Pipe()
	srv.ServeConn(serverConn)
	c, err := client.NewClient(clientConn)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	defer c.Close()
	if c.Header().Depth != 16 {
		t.Fatalf("unexpected header %+v", c.Header())
	}
	createOverWire(t, c)
}

func TestServerDoAfterStop(t *testing.T) {
	srv, err := NewServer("", Options{State: Config{Bounds: screen}})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.startLoop()
	if err := srv.Do(context.Background(), func(*State) {}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := srv.Do(context.Background(), func(*State) {}); err != ErrServerClosed {
		t.Fatalf("expected ErrServerClosed, got %v", err)
	}
}
