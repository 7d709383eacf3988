// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: region/region_test.go
// Summary: Exercises region algebra against a brute-force pixel model.
// Usage: Executed during `go test` to guard against regressions.

package region

import (
	"math/rand"
	"testing"
	"time"
)

const gridSize = 24

type pixelSet map[[2]int32]bool

func pixels(r Region) pixelSet {
	out := make(pixelSet)
	for _, rect := range r.Rects() {
		for y := rect.Y; y < rect.Bottom(); y++ {
			for x := rect.X; x < rect.Right(); x++ {
				out[[2]int32{x, y}] = true
			}
		}
	}
	return out
}

func randomRegion(rng *rand.Rand) Region {
	n := rng.Intn(4)
	rects := make([]Rect, 0, n)
	for i := 0; i < n; i++ {
		x := int32(rng.Intn(gridSize))
		y := int32(rng.Intn(gridSize))
		w := int32(rng.Intn(gridSize/2) + 1)
		h := int32(rng.Intn(gridSize/2) + 1)
		rects = append(rects, R(x, y, w, h))
	}
	return FromRects(rects...)
}

func assertDisjoint(t *testing.T, r Region) {
	t.Helper()
	rects := r.Rects()
	for i := range rects {
		if rects[i].Empty() {
			t.Fatalf("empty rect in decomposition %v", r)
		}
		for j := i + 1; j < len(rects); j++ {
			if rects[i].Overlaps(rects[j]) {
				t.Fatalf("rects %v and %v overlap in %v", rects[i], rects[j], r)
			}
		}
	}
}

func TestSetOperationsMatchPixelModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 300; iter++ {
		a := randomRegion(rng)
		b := randomRegion(rng)
		pa, pb := pixels(a), pixels(b)

		union := a.Union(b)
		diff := a.Subtract(b)
		inter := a.Intersect(b)
		for _, r := range []Region{a, b, union, diff, inter} {
			assertDisjoint(t, r)
		}

		pu, pd, pi := pixels(union), pixels(diff), pixels(inter)
		for y := int32(0); y < 2*gridSize; y++ {
			for x := int32(0); x < 2*gridSize; x++ {
				p := [2]int32{x, y}
				if pu[p] != (pa[p] || pb[p]) {
					t.Fatalf("union mismatch at %v: a=%v b=%v", p, a, b)
				}
				if pd[p] != (pa[p] && !pb[p]) {
					t.Fatalf("difference mismatch at %v: a=%v b=%v", p, a, b)
				}
				if pi[p] != (pa[p] && pb[p]) {
					t.Fatalf("intersection mismatch at %v: a=%v b=%v", p, a, b)
				}
			}
		}
		if union.Area() != int64(len(pu)) {
			t.Fatalf("area %d, want %d", union.Area(), len(pu))
		}
	}
}

func TestOperationsDoNotMutateInputs(t *testing.T) {
	a := FromRects(R(0, 0, 10, 10))
	b := FromRects(R(5, 5, 10, 10))
	before := a.Rects()

	_ = a.Union(b)
	_ = a.Subtract(b)
	_ = a.Intersect(b)

	after := a.Rects()
	if len(before) != len(after) || before[0] != after[0] {
		t.Fatalf("input mutated: %v -> %v", before, after)
	}
}

func TestEmptyRegion(t *testing.T) {
	var empty Region
	if !empty.IsEmpty() || empty.Rects() != nil {
		t.Fatal("zero region should be empty")
	}
	full := FromRects(R(0, 0, 800, 600))
	if !full.Subtract(full).IsEmpty() {
		t.Fatal("a - a should be empty")
	}
	if !full.Intersect(empty).IsEmpty() {
		t.Fatal("a ∩ {} should be empty")
	}
	if !full.Union(empty).Equal(full) {
		t.Fatal("a ∪ {} should equal a")
	}
	if !FromRects(R(3, 3, 0, 5), R(1, 1, -2, 4)).IsEmpty() {
		t.Fatal("degenerate rects should produce an empty region")
	}
}

func TestCoalescesAdjacentRects(t *testing.T) {
	r := FromRects(R(0, 0, 400, 300), R(400, 0, 400, 300), R(0, 300, 800, 300))
	rects := r.Rects()
	if len(rects) != 1 || rects[0] != R(0, 0, 800, 600) {
		t.Fatalf("expected a single full-screen rect, got %v", rects)
	}
}

func TestContainsAndEqual(t *testing.T) {
	outer := FromRects(R(0, 0, 100, 100))
	inner := FromRects(R(10, 10, 20, 20), R(50, 50, 10, 10))
	if !outer.Contains(inner) {
		t.Fatal("outer should contain inner")
	}
	if inner.Contains(outer) {
		t.Fatal("inner should not contain outer")
	}
	split := FromRects(R(0, 0, 100, 50), R(0, 50, 100, 50))
	if !split.Equal(outer) {
		t.Fatalf("%v should equal %v", split, outer)
	}
	if !outer.ContainsPoint(99, 99) || outer.ContainsPoint(100, 0) {
		t.Fatal("ContainsPoint boundary handling is wrong")
	}
}

func TestBoundsAndTranslate(t *testing.T) {
	r := FromRects(R(10, 20, 5, 5), R(40, 2, 10, 3))
	if got := r.Bounds(); got != R(10, 2, 40, 23) {
		t.Fatalf("bounds = %v", got)
	}
	moved := r.Translate(-10, -2)
	if got := moved.Bounds(); got != R(0, 0, 40, 23) {
		t.Fatalf("translated bounds = %v", got)
	}
}

func TestDecompositionIsCanonical(t *testing.T) {
	a := FromRects(R(0, 0, 10, 10), R(10, 0, 10, 20))
	b := FromRects(R(10, 10, 10, 10), R(0, 0, 20, 10))
	if !a.Equal(b) {
		t.Fatalf("same pixels, different decompositions: %v vs %v", a, b)
	}
	want := []Rect{R(0, 0, 20, 10), R(10, 10, 10, 10)}
	got := a.Rects()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func spacedCells(n int) []Rect {
	side := 1
	for side*side < n {
		side++
	}
	rects := make([]Rect, 0, n)
	for i := 0; i < n; i++ {
		rects = append(rects, R(int32(i%side)*2, int32(i/side)*2, 1, 1))
	}
	return rects
}

func TestFromRectsScalesToMaxRects(t *testing.T) {
	cells := spacedCells(4096)
	start := time.Now()
	r := FromRects(cells...)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("FromRects on %d cells took %v", len(cells), elapsed)
	}
	if got := len(r.Rects()); got != len(cells) {
		t.Fatalf("expected %d rects, got %d", len(cells), got)
	}
	if r.Area() != int64(len(cells)) {
		t.Fatalf("area %d, want %d", r.Area(), len(cells))
	}

	start = time.Now()
	holes := FromRects(R(0, 0, 128, 128)).Subtract(r)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Subtract of %d cells took %v", len(cells), elapsed)
	}
	if holes.Area() != 128*128-int64(len(cells)) {
		t.Fatalf("unexpected hole area %d", holes.Area())
	}
}

func BenchmarkFromRects(b *testing.B) {
	cells := spacedCells(4096)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = FromRects(cells...)
	}
}

func BenchmarkSubtract(b *testing.B) {
	cells := FromRects(spacedCells(4096)...)
	full := FromRects(R(0, 0, 128, 128))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = full.Subtract(cells)
	}
}
