// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/framebuffer.go
// Summary: Pixel access to the shared framebuffer and background painting.
// Usage: The allocator paints newly exposed background through PaintBackground.

package shm

import (
	"encoding/binary"

	"github.com/framegrace/texelwin/region"
)

// Framebuffer is the on-screen part of the framebuffer segment. Pixels are
// packed little-endian, Depth/8 bytes each, rows Stride bytes apart.
type Framebuffer struct {
	Width      int
	Height     int
	Depth      int
	Stride     int
	Background uint32

	pix []byte
}

func newFramebuffer(pix []byte, width, height, depth int, background uint32) *Framebuffer {
	return &Framebuffer{
		Width:      width,
		Height:     height,
		Depth:      depth,
		Stride:     width * depth / 8,
		Background: background,
		pix:        pix,
	}
}

// Bounds is the display rectangle.
func (f *Framebuffer) Bounds() region.Rect {
	return region.R(0, 0, int32(f.Width), int32(f.Height))
}

// Bytes exposes the raw pixels.
func (f *Framebuffer) Bytes() []byte {
	return f.pix
}

// Fill sets every pixel of area to color. Parts outside the display are ignored.
func (f *Framebuffer) Fill(area region.Region, color uint32) {
	bpp := f.Depth / 8
	var px [4]byte
	binary.LittleEndian.PutUint32(px[:], color)
	pixel := px[:bpp]

	for _, r := range area.Clip(f.Bounds()).Rects() {
		for y := r.Y; y < r.Bottom(); y++ {
			row := int(y)*f.Stride + int(r.X)*bpp
			span := f.pix[row : row+int(r.Width)*bpp]
			// Seed one pixel then double the copied prefix.
			copy(span, pixel)
			for n := bpp; n < len(span); n *= 2 {
				copy(span[n:], span[:n])
			}
		}
	}
}

// At returns the pixel at x, y.
func (f *Framebuffer) At(x, y int) uint32 {
	bpp := f.Depth / 8
	off := y*f.Stride + x*bpp
	var px [4]byte
	copy(px[:], f.pix[off:off+bpp])
	return binary.LittleEndian.Uint32(px[:])
}

// PaintBackground fills area with the background color.
func (f *Framebuffer) PaintBackground(area region.Region) {
	f.Fill(area, f.Background)
}
