// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/events.go
// Summary: Server → client event definitions and their fixed layouts.
// Usage: Encoded by the server runtime, decoded by clients and tests.
// Notes: Keep changes backward-compatible; any additions require coordinated version bumps.

package protocol

import "github.com/framegrace/texelwin/region"

// Region event flags.
const (
	// FlagAckRequired marks a RegionRemove the client must answer with RegionAck.
	FlagAckRequired uint32 = 1 << iota
	// FlagAckComplete marks the RegionAdd that finishes an acknowledged reallocation.
	FlagAckComplete
)

// PropertyState values carried by PropertyNotify.
type PropertyState int32

const (
	PropertyNewValue PropertyState = iota
	PropertyDeleted
)

// Key event flags.
const (
	KeyPress uint32 = 1 << iota
	KeyAutoRepeat
)

// Creation hands out Count consecutive object ids starting at ObjectID.
type Creation struct {
	ObjectID int32
	Count    int32
}

// RegionAdd grants Rects to Window; the client may start drawing there.
type RegionAdd struct {
	Window  int32
	EventID int32
	Flags   uint32
	Rects   []region.Rect
}

// RegionRemove revokes Rects from Window. When FlagAckRequired is set the
// client must stop drawing there and reply with RegionAck{Window, EventID}.
type RegionRemove struct {
	Window  int32
	EventID int32
	Flags   uint32
	Rects   []region.Rect
}

type Mouse struct {
	Window int32
	X      int32
	Y      int32
	State  uint32
	Delta  int32
	Time   int64
}

type Key struct {
	Window     int32
	Unicode    rune
	KeyCode    int32
	Modifiers  uint32
	Press      bool
	AutoRepeat bool
}

type PropertyNotify struct {
	Window   int32
	Property int32
	State    PropertyState
}

// PropertyReply answers GetProperty. Found is false for a missing property,
// which travels as length -1.
type PropertyReply struct {
	Window   int32
	Property int32
	Found    bool
	Data     []byte
}

type SelectionClear struct {
	Window int32
	Time   int64
}

// SelectionRequest is forwarded to the selection owner on ConvertSelection.
type SelectionRequest struct {
	Window    int32
	Requestor int32
	Property  int32
	MimeTypes []string
}

// Focus tells a client that Window gained or lost keyboard focus.
type Focus struct {
	Window int32
	Gained bool
}

func (Creation) EventType() EventType         { return EvCreation }
func (RegionAdd) EventType() EventType        { return EvRegionAdd }
func (RegionRemove) EventType() EventType     { return EvRegionRemove }
func (Mouse) EventType() EventType            { return EvMouse }
func (Key) EventType() EventType              { return EvKey }
func (PropertyNotify) EventType() EventType   { return EvPropertyNotify }
func (PropertyReply) EventType() EventType    { return EvPropertyReply }
func (SelectionClear) EventType() EventType   { return EvSelectionClear }
func (SelectionRequest) EventType() EventType { return EvSelectionRequest }
func (Focus) EventType() EventType            { return EvFocus }

// Area returns the granted rectangles as a region.
func (e RegionAdd) Area() region.Region { return region.FromRects(e.Rects...) }

// Area returns the revoked rectangles as a region.
func (e RegionRemove) Area() region.Region { return region.FromRects(e.Rects...) }

// NeedsAck reports whether the client owes a RegionAck for this event.
func (e RegionRemove) NeedsAck() bool { return e.Flags&FlagAckRequired != 0 }

func (e Creation) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, e.ObjectID, e.Count), nil
}

func appendRegionEvent(b []byte, window, eventID int32, flags uint32, rects []region.Rect) ([]byte, error) {
	if len(rects) > MaxRects {
		return nil, ErrFrameTooLarge
	}
	b = appendInt32(b, window, eventID, int32(flags), int32(len(rects)))
	return appendRects(b, rects), nil
}

func (e RegionAdd) appendTo(b []byte) ([]byte, error) {
	return appendRegionEvent(b, e.Window, e.EventID, e.Flags, e.Rects)
}

func (e RegionRemove) appendTo(b []byte) ([]byte, error) {
	return appendRegionEvent(b, e.Window, e.EventID, e.Flags, e.Rects)
}

func (e Mouse) appendTo(b []byte) ([]byte, error) {
	b = appendInt32(b, e.Window, e.X, e.Y, int32(e.State), e.Delta)
	return le.AppendUint64(b, uint64(e.Time)), nil
}

func (e Key) appendTo(b []byte) ([]byte, error) {
	var flags uint32
	if e.Press {
		flags |= KeyPress
	}
	if e.AutoRepeat {
		flags |= KeyAutoRepeat
	}
	return appendInt32(b, e.Window, int32(e.Unicode), e.KeyCode, int32(e.Modifiers), int32(flags)), nil
}

func (e PropertyNotify) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, e.Window, e.Property, int32(e.State)), nil
}

func (e PropertyReply) appendTo(b []byte) ([]byte, error) {
	if !e.Found {
		return appendInt32(b, e.Window, e.Property, -1), nil
	}
	if len(e.Data) > MaxBlob {
		return nil, ErrFrameTooLarge
	}
	b = appendInt32(b, e.Window, e.Property, int32(len(e.Data)))
	return append(b, e.Data...), nil
}

func (e SelectionClear) appendTo(b []byte) ([]byte, error) {
	b = appendInt32(b, e.Window)
	return le.AppendUint64(b, uint64(e.Time)), nil
}

func (e SelectionRequest) appendTo(b []byte) ([]byte, error) {
	mimes := joinMimeTypes(e.MimeTypes)
	if len(mimes) > MaxBlob {
		return nil, ErrFrameTooLarge
	}
	b = appendInt32(b, e.Window, e.Requestor, e.Property, int32(len(mimes)))
	return append(b, mimes...), nil
}

func (e Focus) appendTo(b []byte) ([]byte, error) {
	var gained int32
	if e.Gained {
		gained = 1
	}
	return appendInt32(b, e.Window, gained), nil
}

func decodeRegionEvent(f, t []byte) (window, eventID int32, flags uint32, rects []region.Rect) {
	return int32At(f, 0), int32At(f, 4), le.Uint32(f[8:12]), decodeRects(t)
}

var eventLayouts = map[uint32]layout[Event]{
	uint32(EvCreation): {
		fixed: 8,
		decode: func(f, _ []byte) (Event, error) {
			return Creation{ObjectID: int32At(f, 0), Count: int32At(f, 4)}, nil
		},
	},
	uint32(EvRegionAdd): {
		fixed:    16,
		trailing: rectTrailer(12),
		decode: func(f, t []byte) (Event, error) {
			w, id, flags, rects := decodeRegionEvent(f, t)
			return RegionAdd{Window: w, EventID: id, Flags: flags, Rects: rects}, nil
		},
	},
	uint32(EvRegionRemove): {
		fixed:    16,
		trailing: rectTrailer(12),
		decode: func(f, t []byte) (Event, error) {
			w, id, flags, rects := decodeRegionEvent(f, t)
			return RegionRemove{Window: w, EventID: id, Flags: flags, Rects: rects}, nil
		},
	},
	uint32(EvMouse): {
		fixed: 28,
		decode: func(f, _ []byte) (Event, error) {
			return Mouse{
				Window: int32At(f, 0),
				X:      int32At(f, 4),
				Y:      int32At(f, 8),
				State:  le.Uint32(f[12:16]),
				Delta:  int32At(f, 16),
				Time:   int64(le.Uint64(f[20:28])),
			}, nil
		},
	},
	uint32(EvKey): {
		fixed: 20,
		decode: func(f, _ []byte) (Event, error) {
			flags := le.Uint32(f[16:20])
			return Key{
				Window:     int32At(f, 0),
				Unicode:    rune(int32At(f, 4)),
				KeyCode:    int32At(f, 8),
				Modifiers:  le.Uint32(f[12:16]),
				Press:      flags&KeyPress != 0,
				AutoRepeat: flags&KeyAutoRepeat != 0,
			}, nil
		},
	},
	uint32(EvPropertyNotify): {
		fixed: 12,
		decode: func(f, _ []byte) (Event, error) {
			return PropertyNotify{Window: int32At(f, 0), Property: int32At(f, 4), State: PropertyState(int32At(f, 8))}, nil
		},
	},
	uint32(EvPropertyReply): {
		fixed: 12,
		trailing: func(f []byte) (int, error) {
			n := int32At(f, 8)
			if n == -1 {
				return 0, nil
			}
			return checkTrailing(int64(n), MaxBlob)
		},
		decode: func(f, t []byte) (Event, error) {
			if int32At(f, 8) == -1 {
				return PropertyReply{Window: int32At(f, 0), Property: int32At(f, 4)}, nil
			}
			return PropertyReply{Window: int32At(f, 0), Property: int32At(f, 4), Found: true, Data: t}, nil
		},
	},
	uint32(EvSelectionClear): {
		fixed: 12,
		decode: func(f, _ []byte) (Event, error) {
			return SelectionClear{Window: int32At(f, 0), Time: int64(le.Uint64(f[4:12]))}, nil
		},
	},
	uint32(EvSelectionRequest): {
		fixed:    16,
		trailing: blobTrailer(12),
		decode: func(f, t []byte) (Event, error) {
			return SelectionRequest{
				Window:    int32At(f, 0),
				Requestor: int32At(f, 4),
				Property:  int32At(f, 8),
				MimeTypes: splitMimeTypes(t),
			}, nil
		},
	},
	uint32(EvFocus): {
		fixed: 8,
		decode: func(f, _ []byte) (Event, error) {
			return Focus{Window: int32At(f, 0), Gained: int32At(f, 4) != 0}, nil
		},
	},
}

// NewEventDecoder returns a decoder for the server → client family.
func NewEventDecoder() *Decoder[Event] {
	return newDecoder(eventLayouts)
}
