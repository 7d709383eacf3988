// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/testutil/memconn_test.go
// Summary: Exercises the in-memory connection pair.

package testutil

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

func TestMemConnShortReadsKeepRemainder(t *testing.T) {
	left, right := NewMemPipe()
	defer right.Close()

	if _, err := left.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	left.Close()

	buf := make([]byte, 2)
	var got []byte
	for {
		n, err := right.Read(buf)
		got = append(got, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if string(got) != "hello" {
		t.Fatalf("read %q, want hello", got)
	}
	if _, err := left.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("write after close: %v", err)
	}
}

func TestMemConnDeadline(t *testing.T) {
	left, right := NewMemPipe()
	defer left.Close()
	defer right.Close()

	if err := right.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := right.Read(buf); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestMemConnReadWakesOnWrite(t *testing.T) {
	left, right := NewMemPipe()
	defer left.Close()
	defer right.Close()

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := right.Read(buf)
		done <- string(buf[:n])
	}()
	time.Sleep(5 * time.Millisecond)
	_, _ = left.Write([]byte("ping"))
	select {
	case got := <-done:
		if got != "ping" {
			t.Fatalf("read %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked reader never woke")
	}
}

func TestWriteChunkedSplitsPayload(t *testing.T) {
	left, right := NewMemPipe()
	defer left.Close()
	defer right.Close()

	if err := WriteChunked(left, []byte("abcdefg"), 3); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got []string
	buf := make([]byte, 8)
	for i := 0; i < 3; i++ {
		n, err := right.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, string(buf[:n]))
	}
	if got[0] != "abc" || got[1] != "def" || got[2] != "g" {
		t.Fatalf("unexpected chunks %q", got)
	}
}
