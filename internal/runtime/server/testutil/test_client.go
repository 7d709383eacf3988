// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/testutil/test_client.go
// Summary: Provides a test client for integration testing client/server interactions.
// Usage: Used in integration tests to simulate well-behaved clients that acknowledge promptly.
// Notes: Wraps client.Client, tracks allocations and routes events to a channel.

package testutil

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/framegrace/texelwin/client"
	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

// TestClient reads events in the background, acknowledges every
// RegionRemove and keeps an allocation cache up to date.
type TestClient struct {
	t      *testing.T
	client *client.Client

	mu    sync.Mutex
	cache *client.AllocationCache

	events chan protocol.Event
	doneCh chan struct{}
	errMu  sync.Mutex
	err    error
}

// NewTestClient performs the handshake on conn and starts the reader.
func NewTestClient(t *testing.T, conn net.Conn) *TestClient {
	t.Helper()
	c, err := client.NewClient(conn)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	tc := &TestClient{
		t:      t,
		client: c,
		cache:  client.NewAllocationCache(),
		events: make(chan protocol.Event, 1024),
		doneCh: make(chan struct{}),
	}
	go tc.readLoop()
	return tc
}

func (tc *TestClient) readLoop() {
	defer close(tc.doneCh)
	for {
		ev, err := tc.client.ReadEvent()
		if err != nil {
			tc.errMu.Lock()
			tc.err = err
			tc.errMu.Unlock()
			return
		}
		tc.mu.Lock()
		tc.cache.Apply(ev)
		tc.mu.Unlock()
		if rm, ok := ev.(protocol.RegionRemove); ok {
			if err := tc.client.Ack(rm); err != nil {
				return
			}
		}
		select {
		case tc.events <- ev:
		default:
		}
	}
}

// Send writes cmd or fails the test.
func (tc *TestClient) Send(cmd protocol.Command) {
	tc.t.Helper()
	if err := tc.client.Send(cmd); err != nil {
		tc.t.Fatalf("send %s: %v", cmd.CommandType(), err)
	}
}

// Expect waits for the first event accepted by match.
func (tc *TestClient) Expect(timeout time.Duration, match func(protocol.Event) bool) protocol.Event {
	tc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-tc.events:
			if match(ev) {
				return ev
			}
		case <-tc.doneCh:
			tc.t.Fatalf("connection closed while waiting: %v", tc.Err())
			return nil
		case <-deadline:
			tc.t.Fatalf("timed out waiting for event")
			return nil
		}
	}
}

// CreateWindow asks for one window and returns its id.
func (tc *TestClient) CreateWindow(timeout time.Duration) int32 {
	tc.t.Helper()
	tc.Send(protocol.Create{Count: 1})
	ev := tc.Expect(timeout, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.Creation)
		return ok
	})
	return ev.(protocol.Creation).ObjectID
}

// Allocated returns the locally tracked allocation of window id.
func (tc *TestClient) Allocated(id int32) region.Region {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.cache.Allocated(id)
}

// Err returns the error that stopped the reader, if any.
func (tc *TestClient) Err() error {
	tc.errMu.Lock()
	defer tc.errMu.Unlock()
	return tc.err
}

func (tc *TestClient) Close() {
	_ = tc.client.Close()
	<-tc.doneCh
}
