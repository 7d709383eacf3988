// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/commands.go
// Summary: Client → server command definitions and their fixed layouts.
// Usage: Decoded by the server connection parser, encoded by clients.
// Notes: Keep changes backward-compatible; any additions require coordinated version bumps.

package protocol

import (
	"github.com/framegrace/texelwin/region"
)

// Altitude values carried by ChangeAltitude.
const (
	AltitudeRaise int32 = 0
	AltitudeLower int32 = -1
)

// PropertyMode selects how SetProperty combines new bytes with the old value.
type PropertyMode int32

const (
	PropReplace PropertyMode = iota
	PropAppend
	PropPrepend
)

// Create asks the server for Count fresh window ids.
type Create struct {
	Count int32
}

// Region sets the requested region of a window. An empty rectangle list
// withdraws the window from the display.
type Region struct {
	Window int32
	Rects  []region.Rect
}

// Area returns the requested rectangles as a region.
func (c Region) Area() region.Region {
	return region.FromRects(c.Rects...)
}

type AddProperty struct {
	Window   int32
	Property int32
}

type SetProperty struct {
	Window   int32
	Property int32
	Mode     PropertyMode
	Data     []byte
}

type RemoveProperty struct {
	Window   int32
	Property int32
}

type GetProperty struct {
	Window   int32
	Property int32
}

// SetSelectionOwner makes Window the owner of the global selection.
type SetSelectionOwner struct {
	Window int32
	Time   int64
}

// ConvertSelection asks the selection owner to store the selection, in one of
// the given MIME types, into Property on the Requestor window.
type ConvertSelection struct {
	Requestor int32
	Property  int32
	MimeTypes []string
}

// RegionAck confirms that the client stopped drawing into the area taken away
// by the RegionRemove carrying EventID.
type RegionAck struct {
	Window  int32
	EventID int32
}

type ChangeAltitude struct {
	Window   int32
	Altitude int32
}

// Identify names the client for logs and the admin view.
type Identify struct {
	Name string
}

type RequestFocus struct {
	Window int32
}

func (Create) CommandType() CommandType            { return CmdCreate }
func (Region) CommandType() CommandType            { return CmdRegion }
func (AddProperty) CommandType() CommandType       { return CmdAddProperty }
func (SetProperty) CommandType() CommandType       { return CmdSetProperty }
func (RemoveProperty) CommandType() CommandType    { return CmdRemoveProperty }
func (GetProperty) CommandType() CommandType       { return CmdGetProperty }
func (SetSelectionOwner) CommandType() CommandType { return CmdSetSelectionOwner }
func (ConvertSelection) CommandType() CommandType  { return CmdConvertSelection }
func (RegionAck) CommandType() CommandType         { return CmdRegionAck }
func (ChangeAltitude) CommandType() CommandType    { return CmdChangeAltitude }
func (Identify) CommandType() CommandType          { return CmdIdentify }
func (RequestFocus) CommandType() CommandType      { return CmdRequestFocus }

func (c Create) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, c.Count), nil
}

func (c Region) appendTo(b []byte) ([]byte, error) {
	if len(c.Rects) > MaxRects {
		return nil, ErrFrameTooLarge
	}
	b = appendInt32(b, c.Window, int32(len(c.Rects)))
	return appendRects(b, c.Rects), nil
}

func (c AddProperty) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, c.Window, c.Property), nil
}

func (c SetProperty) appendTo(b []byte) ([]byte, error) {
	if len(c.Data) > MaxBlob {
		return nil, ErrFrameTooLarge
	}
	b = appendInt32(b, c.Window, c.Property, int32(c.Mode), int32(len(c.Data)))
	return append(b, c.Data...), nil
}

func (c RemoveProperty) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, c.Window, c.Property), nil
}

func (c GetProperty) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, c.Window, c.Property), nil
}

func (c SetSelectionOwner) appendTo(b []byte) ([]byte, error) {
	b = appendInt32(b, c.Window)
	return le.AppendUint64(b, uint64(c.Time)), nil
}

func (c ConvertSelection) appendTo(b []byte) ([]byte, error) {
	mimes := joinMimeTypes(c.MimeTypes)
	if len(mimes) > MaxBlob {
		return nil, ErrFrameTooLarge
	}
	b = appendInt32(b, c.Requestor, c.Property, int32(len(mimes)))
	return append(b, mimes...), nil
}

func (c RegionAck) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, c.Window, c.EventID), nil
}

func (c ChangeAltitude) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, c.Window, c.Altitude), nil
}

func (c Identify) appendTo(b []byte) ([]byte, error) {
	if len(c.Name) > MaxBlob {
		return nil, ErrFrameTooLarge
	}
	b = appendInt32(b, int32(len(c.Name)))
	return append(b, c.Name...), nil
}

func (c RequestFocus) appendTo(b []byte) ([]byte, error) {
	return appendInt32(b, c.Window), nil
}

var commandLayouts = map[uint32]layout[Command]{
	uint32(CmdCreate): {
		fixed: 4,
		decode: func(f, _ []byte) (Command, error) {
			return Create{Count: int32At(f, 0)}, nil
		},
	},
	uint32(CmdRegion): {
		fixed:    8,
		trailing: rectTrailer(4),
		decode: func(f, t []byte) (Command, error) {
			return Region{Window: int32At(f, 0), Rects: decodeRects(t)}, nil
		},
	},
	uint32(CmdAddProperty): {
		fixed: 8,
		decode: func(f, _ []byte) (Command, error) {
			return AddProperty{Window: int32At(f, 0), Property: int32At(f, 4)}, nil
		},
	},
	uint32(CmdSetProperty): {
		fixed:    16,
		trailing: blobTrailer(12),
		decode: func(f, t []byte) (Command, error) {
			return SetProperty{
				Window:   int32At(f, 0),
				Property: int32At(f, 4),
				Mode:     PropertyMode(int32At(f, 8)),
				Data:     t,
			}, nil
		},
	},
	uint32(CmdRemoveProperty): {
		fixed: 8,
		decode: func(f, _ []byte) (Command, error) {
			return RemoveProperty{Window: int32At(f, 0), Property: int32At(f, 4)}, nil
		},
	},
	uint32(CmdGetProperty): {
		fixed: 8,
		decode: func(f, _ []byte) (Command, error) {
			return GetProperty{Window: int32At(f, 0), Property: int32At(f, 4)}, nil
		},
	},
	uint32(CmdSetSelectionOwner): {
		fixed: 12,
		decode: func(f, _ []byte) (Command, error) {
			return SetSelectionOwner{Window: int32At(f, 0), Time: int64(le.Uint64(f[4:12]))}, nil
		},
	},
	uint32(CmdConvertSelection): {
		fixed:    12,
		trailing: blobTrailer(8),
		decode: func(f, t []byte) (Command, error) {
			return ConvertSelection{
				Requestor: int32At(f, 0),
				Property:  int32At(f, 4),
				MimeTypes: splitMimeTypes(t),
			}, nil
		},
	},
	uint32(CmdRegionAck): {
		fixed: 8,
		decode: func(f, _ []byte) (Command, error) {
			return RegionAck{Window: int32At(f, 0), EventID: int32At(f, 4)}, nil
		},
	},
	uint32(CmdChangeAltitude): {
		fixed: 8,
		decode: func(f, _ []byte) (Command, error) {
			return ChangeAltitude{Window: int32At(f, 0), Altitude: int32At(f, 4)}, nil
		},
	},
	uint32(CmdIdentify): {
		fixed:    4,
		trailing: blobTrailer(0),
		decode: func(_, t []byte) (Command, error) {
			return Identify{Name: string(t)}, nil
		},
	},
	uint32(CmdRequestFocus): {
		fixed: 4,
		decode: func(f, _ []byte) (Command, error) {
			return RequestFocus{Window: int32At(f, 0)}, nil
		},
	},
}

// NewCommandDecoder returns a decoder for the client → server family.
func NewCommandDecoder() *Decoder[Command] {
	return newDecoder(commandLayouts)
}
