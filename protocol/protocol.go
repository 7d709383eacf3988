// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/protocol.go
// Summary: Message families and framing constants for the window server wire protocol.
// Usage: Shared by the server runtime, the wire client and test harnesses.
// Notes: Keep changes backward-compatible; any additions require coordinated version bumps.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	tagSize  = 4
	rectSize = 16

	// MaxRects bounds the rectangle count of a single Region/RegionAdd/RegionRemove.
	MaxRects = 4096
	// MaxBlob bounds property values, MIME lists and client names.
	MaxBlob = 1 << 20
)

var le = binary.LittleEndian

// CommandType tags client → server messages.
type CommandType uint32

const (
	CmdCreate CommandType = iota + 1
	CmdRegion
	CmdAddProperty
	CmdSetProperty
	CmdRemoveProperty
	CmdGetProperty
	CmdSetSelectionOwner
	CmdConvertSelection
	CmdRegionAck
	CmdChangeAltitude
	CmdIdentify
	CmdRequestFocus
)

var commandNames = map[CommandType]string{
	CmdCreate:            "Create",
	CmdRegion:            "Region",
	CmdAddProperty:       "AddProperty",
	CmdSetProperty:       "SetProperty",
	CmdRemoveProperty:    "RemoveProperty",
	CmdGetProperty:       "GetProperty",
	CmdSetSelectionOwner: "SetSelectionOwner",
	CmdConvertSelection:  "ConvertSelection",
	CmdRegionAck:         "RegionAck",
	CmdChangeAltitude:    "ChangeAltitude",
	CmdIdentify:          "Identify",
	CmdRequestFocus:      "RequestFocus",
}

func (t CommandType) String() string {
	if name, ok := commandNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CommandType(%d)", uint32(t))
}

// EventType tags server → client messages.
type EventType uint32

const (
	EvCreation EventType = iota + 1
	EvRegionAdd
	EvRegionRemove
	EvMouse
	EvKey
	EvPropertyNotify
	EvPropertyReply
	EvSelectionClear
	EvSelectionRequest
	EvFocus
)

var eventNames = map[EventType]string{
	EvCreation:         "Creation",
	EvRegionAdd:        "RegionAdd",
	EvRegionRemove:     "RegionRemove",
	EvMouse:            "Mouse",
	EvKey:              "Key",
	EvPropertyNotify:   "PropertyNotify",
	EvPropertyReply:    "PropertyReply",
	EvSelectionClear:   "SelectionClear",
	EvSelectionRequest: "SelectionRequest",
	EvFocus:            "Focus",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", uint32(t))
}

// Command is implemented by every client → server message.
type Command interface {
	CommandType() CommandType
	appendTo(b []byte) ([]byte, error)
}

// Event is implemented by every server → client message.
type Event interface {
	EventType() EventType
	appendTo(b []byte) ([]byte, error)
}

var (
	ErrFrameTooLarge    = errors.New("protocol: trailing data exceeds limit")
	ErrNegativeLength   = errors.New("protocol: negative trailing length")
	ErrInvalidMagic     = errors.New("protocol: invalid magic")
	ErrUnsupportedVer   = errors.New("protocol: unsupported version")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	errPayloadShort     = errors.New("protocol: payload too short")
)

// UnknownTypeError reports a type tag that no decoder recognises. The tag has
// already been consumed; the stream stays usable.
type UnknownTypeError struct {
	Tag uint32
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("protocol: unknown message type %d", e.Tag)
}

// EncodeCommand serialises a command including its type tag.
func EncodeCommand(c Command) ([]byte, error) {
	b := le.AppendUint32(make([]byte, 0, 64), uint32(c.CommandType()))
	return c.appendTo(b)
}

// EncodeEvent serialises an event including its type tag.
func EncodeEvent(e Event) ([]byte, error) {
	b := le.AppendUint32(make([]byte, 0, 64), uint32(e.EventType()))
	return e.appendTo(b)
}

// WriteCommand encodes c and writes it to w in a single call.
func WriteCommand(w io.Writer, c Command) error {
	buf, err := EncodeCommand(c)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// WriteEvent encodes e and writes it to w in a single call.
func WriteEvent(w io.Writer, e Event) error {
	buf, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
