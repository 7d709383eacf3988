// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/decoder_test.go
// Summary: Exercises the incremental decoder across arbitrary read boundaries.
// Usage: Executed during `go test` to guard against regressions.

package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/framegrace/texelwin/region"
)

func sampleCommands() []Command {
	return []Command{
		Create{Count: 2},
		Region{Window: 7, Rects: []region.Rect{region.R(0, 0, 800, 600), region.R(10, 20, 30, 40)}},
		Region{Window: 8},
		AddProperty{Window: 7, Property: 3},
		SetProperty{Window: 7, Property: 3, Mode: PropAppend, Data: []byte("hello")},
		RemoveProperty{Window: 7, Property: 3},
		GetProperty{Window: 7, Property: 3},
		SetSelectionOwner{Window: 7, Time: 1234567890123},
		ConvertSelection{Requestor: 9, Property: 4, MimeTypes: []string{"text/plain", "text/html"}},
		RegionAck{Window: 7, EventID: 42},
		ChangeAltitude{Window: 7, Altitude: AltitudeLower},
		Identify{Name: "clock"},
		RequestFocus{Window: 7},
	}
}

func encodeAll(t *testing.T, cmds []Command) []byte {
	t.Helper()
	var stream []byte
	for _, c := range cmds {
		b, err := EncodeCommand(c)
		if err != nil {
			t.Fatalf("encode %T: %v", c, err)
		}
		stream = append(stream, b...)
	}
	return stream
}

func drain(t *testing.T, d *Decoder[Command]) []Command {
	t.Helper()
	var out []Command
	for {
		msg, ok, err := d.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestDecoderWholeStream(t *testing.T) {
	cmds := sampleCommands()
	d := NewCommandDecoder()
	_, _ = d.Write(encodeAll(t, cmds))
	got := drain(t, d)
	if !reflect.DeepEqual(got, cmds) {
		t.Fatalf("decoded mismatch:\n got %#v\nwant %#v", got, cmds)
	}
	if d.Buffered() != 0 || d.State() != AwaitingTypeTag {
		t.Fatalf("decoder not idle: buffered=%d state=%d", d.Buffered(), d.State())
	}
}

func TestDecoderSplitAtEveryBoundary(t *testing.T) {
	cmds := sampleCommands()
	stream := encodeAll(t, cmds)
	for chunk := 1; chunk <= 7; chunk++ {
		d := NewCommandDecoder()
		var got []Command
		for off := 0; off < len(stream); off += chunk {
			end := min(off+chunk, len(stream))
			_, _ = d.Write(stream[off:end])
			got = append(got, drain(t, d)...)
		}
		if !reflect.DeepEqual(got, cmds) {
			t.Fatalf("chunk %d: decoded mismatch", chunk)
		}
	}
}

func TestDecoderKeepsPartialCommand(t *testing.T) {
	b, err := EncodeCommand(Region{Window: 1, Rects: []region.Rect{region.R(1, 2, 3, 4)}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d := NewCommandDecoder()
	_, _ = d.Write(b[:6])
	if _, ok, err := d.Next(); ok || err != nil {
		t.Fatalf("expected no message yet, ok=%v err=%v", ok, err)
	}
	if d.State() != AwaitingFixedHeader {
		t.Fatalf("state = %d, want AwaitingFixedHeader", d.State())
	}
	_, _ = d.Write(b[6:14])
	if _, ok, _ := d.Next(); ok {
		t.Fatal("message completed before the rectangle arrived")
	}
	if d.State() != AwaitingPayload {
		t.Fatalf("state = %d, want AwaitingPayload", d.State())
	}
	_, _ = d.Write(b[14:])
	msg, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("expected message, ok=%v err=%v", ok, err)
	}
	if r := msg.(Region); r.Window != 1 || len(r.Rects) != 1 {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestDecoderSkipsUnknownTag(t *testing.T) {
	good, _ := EncodeCommand(GetProperty{Window: 3, Property: 5})
	stream := le.AppendUint32(nil, 999)
	stream = append(stream, good...)

	d := NewCommandDecoder()
	_, _ = d.Write(stream)
	_, ok, err := d.Next()
	var unknown *UnknownTypeError
	if ok || !errors.As(err, &unknown) || unknown.Tag != 999 {
		t.Fatalf("expected unknown tag 999, ok=%v err=%v", ok, err)
	}
	msg, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("decoder did not recover: ok=%v err=%v", ok, err)
	}
	if msg != (GetProperty{Window: 3, Property: 5}) {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestDecoderRejectsOversizedTrailer(t *testing.T) {
	stream := le.AppendUint32(nil, uint32(CmdRegion))
	stream = appendInt32(stream, 1, MaxRects+1)
	d := NewCommandDecoder()
	_, _ = d.Write(stream)
	if _, _, err := d.Next(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	stream = le.AppendUint32(nil, uint32(CmdSetProperty))
	stream = appendInt32(stream, 1, 2, 0, -5)
	d = NewCommandDecoder()
	_, _ = d.Write(stream)
	if _, _, err := d.Next(); !errors.Is(err, ErrNegativeLength) {
		t.Fatalf("expected ErrNegativeLength, got %v", err)
	}
}

func TestEventDecoderPropertyReplyMiss(t *testing.T) {
	var stream []byte
	for _, ev := range []Event{
		PropertyReply{Window: 1, Property: 2},
		PropertyReply{Window: 1, Property: 3, Found: true, Data: []byte("v")},
		RegionRemove{Window: 4, EventID: 9, Flags: FlagAckRequired, Rects: []region.Rect{region.R(0, 0, 5, 5)}},
	} {
		b, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("encode %T: %v", ev, err)
		}
		stream = append(stream, b...)
	}
	if got := int32At(stream, 12); got != -1 {
		t.Fatalf("miss length on the wire = %d, want -1", got)
	}

	d := NewEventDecoder()
	_, _ = d.Write(stream)
	var got []Event
	for {
		ev, ok, err := d.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("decoded %d events, want 3", len(got))
	}
	if miss := got[0].(PropertyReply); miss.Found || miss.Data != nil {
		t.Fatalf("expected miss, got %#v", miss)
	}
	if hit := got[1].(PropertyReply); !hit.Found || string(hit.Data) != "v" {
		t.Fatalf("expected hit, got %#v", hit)
	}
	if rm := got[2].(RegionRemove); !rm.NeedsAck() || rm.EventID != 9 {
		t.Fatalf("unexpected remove %#v", rm)
	}
}
