// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/decoder.go
// Summary: Incremental, push-fed parser for both message families.
// Usage: Connections feed raw socket bytes with Write and pull whole messages with Next.
// Notes: A partially received message survives across Write calls; the decoder never blocks.

package protocol

import (
	"bytes"

	"github.com/framegrace/texelwin/region"
)

type layout[T any] struct {
	fixed    int
	trailing func(fixed []byte) (int, error)
	decode   func(fixed, trailing []byte) (T, error)
}

// DecodeState names the parser position within the current message.
type DecodeState uint8

const (
	AwaitingTypeTag DecodeState = iota
	AwaitingFixedHeader
	AwaitingPayload
)

// Decoder turns a byte stream into messages of one family. It is not safe for
// concurrent use.
type Decoder[T any] struct {
	layouts map[uint32]layout[T]
	buf     []byte
	off     int

	state   DecodeState
	current layout[T]
	fixed   []byte
	need    int
}

func newDecoder[T any](layouts map[uint32]layout[T]) *Decoder[T] {
	return &Decoder[T]{layouts: layouts}
}

// Write buffers p for parsing. It never fails; the signature matches io.Writer.
func (d *Decoder[T]) Write(p []byte) (int, error) {
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	} else if d.off > 4096 && d.off > len(d.buf)/2 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// State reports where the parser stands in the current message.
func (d *Decoder[T]) State() DecodeState {
	return d.state
}

// Buffered returns the number of bytes received but not yet consumed.
func (d *Decoder[T]) Buffered() int {
	return len(d.buf) - d.off
}

// Next returns the next complete message. ok is false when more bytes are
// needed. An *UnknownTypeError is recoverable: the offending tag has been
// skipped and Next may be called again. Any other error means framing is lost.
func (d *Decoder[T]) Next() (msg T, ok bool, err error) {
	for {
		switch d.state {
		case AwaitingTypeTag:
			if d.Buffered() < tagSize {
				return msg, false, nil
			}
			tag := le.Uint32(d.buf[d.off:])
			d.off += tagSize
			l, known := d.layouts[tag]
			if !known {
				return msg, false, &UnknownTypeError{Tag: tag}
			}
			d.current = l
			d.state = AwaitingFixedHeader
		case AwaitingFixedHeader:
			if d.Buffered() < d.current.fixed {
				return msg, false, nil
			}
			d.fixed = bytes.Clone(d.buf[d.off : d.off+d.current.fixed])
			d.off += d.current.fixed
			d.need = 0
			if d.current.trailing != nil {
				n, err := d.current.trailing(d.fixed)
				if err != nil {
					d.reset()
					return msg, false, err
				}
				d.need = n
			}
			d.state = AwaitingPayload
		case AwaitingPayload:
			if d.Buffered() < d.need {
				return msg, false, nil
			}
			var trailing []byte
			if d.need > 0 {
				trailing = bytes.Clone(d.buf[d.off : d.off+d.need])
				d.off += d.need
			}
			fixed := d.fixed
			decode := d.current.decode
			d.reset()
			out, err := decode(fixed, trailing)
			if err != nil {
				return msg, false, err
			}
			return out, true, nil
		}
	}
}

func (d *Decoder[T]) reset() {
	d.state = AwaitingTypeTag
	d.current = layout[T]{}
	d.fixed = nil
	d.need = 0
}

func appendInt32(b []byte, values ...int32) []byte {
	for _, v := range values {
		b = le.AppendUint32(b, uint32(v))
	}
	return b
}

func int32At(b []byte, off int) int32 {
	return int32(le.Uint32(b[off : off+4]))
}

func appendRects(b []byte, rects []region.Rect) []byte {
	for _, r := range rects {
		b = appendInt32(b, r.X, r.Y, r.Width, r.Height)
	}
	return b
}

func decodeRects(b []byte) []region.Rect {
	if len(b) == 0 {
		return nil
	}
	rects := make([]region.Rect, len(b)/rectSize)
	for i := range rects {
		off := i * rectSize
		rects[i] = region.Rect{
			X:      int32At(b, off),
			Y:      int32At(b, off+4),
			Width:  int32At(b, off+8),
			Height: int32At(b, off+12),
		}
	}
	return rects
}

func checkTrailing(n, limit int64) (int, error) {
	if n < 0 {
		return 0, ErrNegativeLength
	}
	if n > limit {
		return 0, ErrFrameTooLarge
	}
	return int(n), nil
}

// rectTrailer reads a rectangle count at off in the fixed header.
func rectTrailer(off int) func([]byte) (int, error) {
	return func(f []byte) (int, error) {
		n, err := checkTrailing(int64(int32At(f, off)), MaxRects)
		return n * rectSize, err
	}
}

// blobTrailer reads a byte length at off in the fixed header.
func blobTrailer(off int) func([]byte) (int, error) {
	return func(f []byte) (int, error) {
		return checkTrailing(int64(int32At(f, off)), MaxBlob)
	}
}

func joinMimeTypes(types []string) []byte {
	var buf bytes.Buffer
	for i, t := range types {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(t)
	}
	return buf.Bytes()
}

func splitMimeTypes(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	parts := bytes.Split(b, []byte{0})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}
