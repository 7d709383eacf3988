// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: region/rect.go
// Summary: Integer rectangles used by the window server geometry.
// Usage: Building block for region.Region and the wire protocol rectangle records.

package region

import "fmt"

// Rect is an axis-aligned rectangle in display coordinates. A rectangle with
// a non-positive width or height is empty.
type Rect struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// R is shorthand for Rect{x, y, w, h}.
func R(x, y, w, h int32) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Right returns the exclusive right edge.
func (r Rect) Right() int32 { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int32 { return r.Y + r.Height }

// Area returns width*height, or zero for empty rectangles.
func (r Rect) Area() int64 {
	if r.Empty() {
		return 0
	}
	return int64(r.Width) * int64(r.Height)
}

// Intersect returns the overlap of r and o, which may be empty.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.Right(), o.Right())
	y1 := min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).Empty()
}

// ContainsPoint reports whether (x, y) lies inside r.
func (r Rect) ContainsPoint(x, y int32) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// ContainsRect reports whether o lies fully inside r. Empty rectangles are
// contained everywhere.
func (r Rect) ContainsRect(o Rect) bool {
	if o.Empty() {
		return true
	}
	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// Translate moves r by (dx, dy).
func (r Rect) Translate(dx, dy int32) Rect {
	r.X += dx
	r.Y += dy
	return r
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}
