// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/handshake_test.go
// Summary: Exercises the connect-time header block.
// Usage: Executed during `go test` to guard against regressions.

package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestConnectionHeaderRoundTrip(t *testing.T) {
	want := ConnectionHeader{
		Width:           800,
		Height:          600,
		Depth:           32,
		SemaphoreKey:    0x5457,
		FramebufferShm:  17,
		HeapShm:         18,
		HeapSize:        1 << 20,
		OffscreenOffset: 800 * 600 * 4,
		OffscreenLength: 4096,
		FramebufferID:   -1,
	}
	var buf bytes.Buffer
	if err := WriteConnectionHeader(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != ConnectionHeaderSize {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), ConnectionHeaderSize)
	}
	got, err := ReadConnectionHeader(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Fatalf("header mismatch: %+v vs %+v", got, want)
	}
}

func TestConnectionHeaderCorruption(t *testing.T) {
	b := EncodeConnectionHeader(ConnectionHeader{Width: 1, Height: 1, Depth: 32})

	bad := bytes.Clone(b)
	bad[0] ^= 0xff
	if _, err := DecodeConnectionHeader(bad); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}

	bad = bytes.Clone(b)
	bad[10] ^= 0xff
	if _, err := DecodeConnectionHeader(bad); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	if _, err := ReadConnectionHeader(bytes.NewReader(b[:20])); err == nil {
		t.Fatal("expected error for truncated header")
	}
}
