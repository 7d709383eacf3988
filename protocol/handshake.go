// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/handshake.go
// Summary: Connect-time header block sent by the server before any event.
// Usage: Written once per accepted connection; read by clients right after dial.
// Notes: Keep changes backward-compatible; any additions require coordinated version bumps.

package protocol

import (
	"errors"
	"hash/crc32"
	"io"
)

const (
	magic uint32 = 0x57584c01 // "\x01LXW" on the wire

	// Version is the protocol revision implemented by this package.
	Version uint32 = 1

	// ConnectionHeaderSize is the encoded size of ConnectionHeader.
	ConnectionHeaderSize = 52
)

// ConnectionHeader describes the display and the shared-memory segments a
// client needs before it can draw.
type ConnectionHeader struct {
	Width           int32
	Height          int32
	Depth           int32
	SemaphoreKey    int32
	FramebufferShm  int32
	HeapShm         int32
	HeapSize        uint32
	OffscreenOffset uint32
	OffscreenLength uint32
	FramebufferID   int32
}

// EncodeConnectionHeader serialises h with magic, version and a trailing CRC-32.
func EncodeConnectionHeader(h ConnectionHeader) []byte {
	b := make([]byte, 0, ConnectionHeaderSize)
	b = le.AppendUint32(b, magic)
	b = le.AppendUint32(b, Version)
	b = appendInt32(b, h.Width, h.Height, h.Depth, h.SemaphoreKey, h.FramebufferShm, h.HeapShm)
	b = le.AppendUint32(b, h.HeapSize)
	b = le.AppendUint32(b, h.OffscreenOffset)
	b = le.AppendUint32(b, h.OffscreenLength)
	b = appendInt32(b, h.FramebufferID)
	return le.AppendUint32(b, crc32.ChecksumIEEE(b))
}

// DecodeConnectionHeader parses a block produced by EncodeConnectionHeader.
func DecodeConnectionHeader(b []byte) (ConnectionHeader, error) {
	var h ConnectionHeader
	if len(b) < ConnectionHeaderSize {
		return h, errPayloadShort
	}
	if le.Uint32(b[0:4]) != magic {
		return h, ErrInvalidMagic
	}
	if le.Uint32(b[4:8]) != Version {
		return h, ErrUnsupportedVer
	}
	if crc32.ChecksumIEEE(b[:48]) != le.Uint32(b[48:52]) {
		return h, ErrChecksumMismatch
	}
	h.Width = int32At(b, 8)
	h.Height = int32At(b, 12)
	h.Depth = int32At(b, 16)
	h.SemaphoreKey = int32At(b, 20)
	h.FramebufferShm = int32At(b, 24)
	h.HeapShm = int32At(b, 28)
	h.HeapSize = le.Uint32(b[32:36])
	h.OffscreenOffset = le.Uint32(b[36:40])
	h.OffscreenLength = le.Uint32(b[40:44])
	h.FramebufferID = int32At(b, 44)
	return h, nil
}

// WriteConnectionHeader writes the full block in one call.
func WriteConnectionHeader(w io.Writer, h ConnectionHeader) error {
	_, err := w.Write(EncodeConnectionHeader(h))
	return err
}

// ReadConnectionHeader blocks until a full block has been read from r.
func ReadConnectionHeader(r io.Reader) (ConnectionHeader, error) {
	buf := make([]byte, ConnectionHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ConnectionHeader{}, errPayloadShort
		}
		return ConnectionHeader{}, err
	}
	return DecodeConnectionHeader(buf)
}
