// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: region/region.go
// Summary: Set algebra over disjoint rectangle lists.
// Usage: Used by the server core to compute requested, allocated and exposed areas.
// Notes: Regions are values; no operation mutates its inputs.

package region

import (
	"cmp"
	"slices"
	"strings"
)

// Region is a set of display pixels stored as disjoint rectangles grouped
// into horizontal bands. Within a band every rectangle shares the same top
// and height; vertically adjacent bands with identical spans are merged, so
// equal pixel sets have identical decompositions. The zero value is the
// empty region.
type Region struct {
	rects []Rect
}

// FromRects builds a region covering every given rectangle. Overlapping or
// empty inputs are allowed.
func FromRects(rects ...Rect) Region {
	in := make([]Rect, 0, len(rects))
	for _, r := range rects {
		if !r.Empty() {
			in = append(in, r)
		}
	}
	return sweep(in, nil, opUnion)
}

// Rects returns the disjoint decomposition, sorted top-to-bottom then
// left-to-right. The slice is a copy.
func (a Region) Rects() []Rect {
	if len(a.rects) == 0 {
		return nil
	}
	out := make([]Rect, len(a.rects))
	copy(out, a.rects)
	return out
}

func (a Region) IsEmpty() bool {
	return len(a.rects) == 0
}

// Union returns a ∪ b.
func (a Region) Union(b Region) Region {
	if a.IsEmpty() {
		return b.clone()
	}
	if b.IsEmpty() {
		return a.clone()
	}
	return sweep(a.rects, b.rects, opUnion)
}

// Subtract returns a − b.
func (a Region) Subtract(b Region) Region {
	if a.IsEmpty() || b.IsEmpty() || !a.Bounds().Overlaps(b.Bounds()) {
		return a.clone()
	}
	return sweep(a.rects, b.rects, opSubtract)
}

// Intersect returns a ∩ b.
func (a Region) Intersect(b Region) Region {
	if a.IsEmpty() || b.IsEmpty() || !a.Bounds().Overlaps(b.Bounds()) {
		return Region{}
	}
	return sweep(a.rects, b.rects, opIntersect)
}

// Clip intersects a with a single rectangle.
func (a Region) Clip(bounds Rect) Region {
	if bounds.Empty() {
		return Region{}
	}
	return a.Intersect(Region{rects: []Rect{bounds}})
}

// Contains reports whether b ⊆ a.
func (a Region) Contains(b Region) bool {
	return b.Subtract(a).IsEmpty()
}

func (a Region) Equal(b Region) bool {
	return slices.Equal(a.rects, b.rects)
}

func (a Region) Overlaps(b Region) bool {
	return !a.Intersect(b).IsEmpty()
}

func (a Region) ContainsPoint(x, y int32) bool {
	for _, r := range a.rects {
		if r.Y > y {
			break
		}
		if r.ContainsPoint(x, y) {
			return true
		}
	}
	return false
}

// Bounds returns the smallest rectangle enclosing a.
func (a Region) Bounds() Rect {
	if a.IsEmpty() {
		return Rect{}
	}
	b := a.rects[0]
	x0, y0, x1, y1 := b.X, b.Y, b.Right(), b.Bottom()
	for _, r := range a.rects[1:] {
		x0 = min(x0, r.X)
		y0 = min(y0, r.Y)
		x1 = max(x1, r.Right())
		y1 = max(y1, r.Bottom())
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Area returns the number of pixels in a.
func (a Region) Area() int64 {
	var total int64
	for _, r := range a.rects {
		total += r.Area()
	}
	return total
}

func (a Region) Translate(dx, dy int32) Region {
	if a.IsEmpty() {
		return Region{}
	}
	out := make([]Rect, len(a.rects))
	for i, r := range a.rects {
		out[i] = r.Translate(dx, dy)
	}
	return Region{rects: out}
}

func (a Region) String() string {
	if a.IsEmpty() {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, r := range a.rects {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func (a Region) clone() Region {
	if a.IsEmpty() {
		return Region{}
	}
	return Region{rects: append([]Rect(nil), a.rects...)}
}

type setOp uint8

const (
	opUnion setOp = iota
	opSubtract
	opIntersect
)

// span is the half-open x interval [x0, x1).
type span struct {
	x0, x1 int32
}

type band struct {
	y0, y1 int32
	spans  []span
}

// sweep combines a and b one horizontal slab at a time. Slabs are cut at
// every top and bottom edge of either input; inside a slab the covered x
// intervals of each side are merged and then combined with op. Inputs may
// overlap themselves but must not contain empty rectangles.
func sweep(a, b []Rect, op setOp) Region {
	edges := make([]int32, 0, 2*(len(a)+len(b)))
	for _, r := range a {
		edges = append(edges, r.Y, r.Bottom())
	}
	for _, r := range b {
		edges = append(edges, r.Y, r.Bottom())
	}
	if len(edges) == 0 {
		return Region{}
	}
	slices.Sort(edges)
	edges = slices.Compact(edges)

	ca, cb := newCursor(a), newCursor(b)
	var bands []band
	for i := 0; i+1 < len(edges); i++ {
		y0, y1 := edges[i], edges[i+1]
		spans := combine(ca.advance(y0), cb.advance(y0), op)
		if len(spans) == 0 {
			continue
		}
		if n := len(bands); n > 0 && bands[n-1].y1 == y0 && slices.Equal(bands[n-1].spans, spans) {
			bands[n-1].y1 = y1
			continue
		}
		bands = append(bands, band{y0: y0, y1: y1, spans: spans})
	}
	return flatten(bands)
}

// cursor tracks which rectangles of one input cover the current slab.
type cursor struct {
	pending []Rect // not yet reached, by top edge
	active  []Rect // covering the slab, by left edge
	merged  []span
}

func newCursor(rects []Rect) *cursor {
	pending := slices.Clone(rects)
	slices.SortFunc(pending, func(p, q Rect) int { return cmp.Compare(p.Y, q.Y) })
	return &cursor{pending: pending}
}

// advance moves to the slab starting at y and returns the merged x intervals
// covering it. The result is only valid until the next call.
func (c *cursor) advance(y int32) []span {
	changed := false
	kept := c.active[:0]
	for _, r := range c.active {
		if r.Bottom() > y {
			kept = append(kept, r)
		} else {
			changed = true
		}
	}
	c.active = kept
	for len(c.pending) > 0 && c.pending[0].Y <= y {
		r := c.pending[0]
		c.pending = c.pending[1:]
		i, _ := slices.BinarySearchFunc(c.active, r.X, func(e Rect, x int32) int { return cmp.Compare(e.X, x) })
		c.active = slices.Insert(c.active, i, r)
		changed = true
	}
	if changed {
		c.merged = c.merged[:0]
		for _, r := range c.active {
			if n := len(c.merged); n > 0 && r.X <= c.merged[n-1].x1 {
				c.merged[n-1].x1 = max(c.merged[n-1].x1, r.Right())
				continue
			}
			c.merged = append(c.merged, span{r.X, r.Right()})
		}
	}
	return c.merged
}

// combine applies op to two sorted lists of disjoint, non-touching
// intervals. The result is a new slice in the same form.
func combine(a, b []span, op setOp) []span {
	var out []span
	switch op {
	case opUnion:
		i, j := 0, 0
		for i < len(a) || j < len(b) {
			var s span
			if j >= len(b) || (i < len(a) && a[i].x0 <= b[j].x0) {
				s = a[i]
				i++
			} else {
				s = b[j]
				j++
			}
			if n := len(out); n > 0 && s.x0 <= out[n-1].x1 {
				out[n-1].x1 = max(out[n-1].x1, s.x1)
				continue
			}
			out = append(out, s)
		}
	case opIntersect:
		i, j := 0, 0
		for i < len(a) && j < len(b) {
			x0, x1 := max(a[i].x0, b[j].x0), min(a[i].x1, b[j].x1)
			if x0 < x1 {
				out = append(out, span{x0, x1})
			}
			if a[i].x1 < b[j].x1 {
				i++
			} else {
				j++
			}
		}
	case opSubtract:
		j := 0
		for _, s := range a {
			for j < len(b) && b[j].x1 <= s.x0 {
				j++
			}
			x0 := s.x0
			for k := j; k < len(b) && b[k].x0 < s.x1; k++ {
				if b[k].x0 > x0 {
					out = append(out, span{x0, b[k].x0})
				}
				x0 = max(x0, b[k].x1)
			}
			if x0 < s.x1 {
				out = append(out, span{x0, s.x1})
			}
		}
	}
	return out
}

func flatten(bands []band) Region {
	n := 0
	for _, b := range bands {
		n += len(b.spans)
	}
	if n == 0 {
		return Region{}
	}
	rects := make([]Rect, 0, n)
	for _, b := range bands {
		for _, s := range b.spans {
			rects = append(rects, Rect{X: s.x0, Y: b.y0, Width: s.x1 - s.x0, Height: b.y1 - b.y0})
		}
	}
	return Region{rects: rects}
}
