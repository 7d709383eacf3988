// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/shm_test.go
// Summary: Exercises segment allocation, header contents and pixel fills.
// Usage: Executed during `go test` to guard against regressions.

package shm

import (
	"errors"
	"testing"

	"github.com/framegrace/texelwin/region"
)

func TestAllocateMemoryHeader(t *testing.T) {
	segs, err := Allocate(Options{Backend: BackendMemory, Width: 64, Height: 32, Depth: 16, OffscreenBytes: 512, HeapBytes: 4096})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	defer segs.Close()

	hdr := segs.Header()
	if hdr.Width != 64 || hdr.Height != 32 || hdr.Depth != 16 {
		t.Fatalf("unexpected geometry %+v", hdr)
	}
	if hdr.OffscreenOffset != 64*32*2 || hdr.OffscreenLength != 512 {
		t.Fatalf("unexpected offscreen area %+v", hdr)
	}
	if hdr.HeapSize != 4096 || hdr.FramebufferShm != -1 || hdr.SemaphoreKey != -1 {
		t.Fatalf("unexpected memory backend ids %+v", hdr)
	}
}

func TestAllocateRejectsBadGeometry(t *testing.T) {
	cases := []Options{
		{Backend: BackendMemory, Width: 0, Height: 10, Depth: 32},
		{Backend: BackendMemory, Width: 10, Height: 10, Depth: 12},
		{Backend: BackendMemory, Width: 10, Height: 10, Depth: 8, HeapBytes: -1},
	}
	for _, opts := range cases {
		if _, err := Allocate(opts); !errors.Is(err, ErrInvalidGeometry) {
			t.Fatalf("%+v: expected ErrInvalidGeometry, got %v", opts, err)
		}
	}
	if _, err := Allocate(Options{Backend: "tmpfs", Width: 1, Height: 1, Depth: 8}); err == nil {
		t.Fatalf("unknown backend accepted")
	}
}

func TestFillClipsAndPacks(t *testing.T) {
	for _, depth := range []int{8, 16, 24, 32} {
		segs, err := Allocate(Options{Backend: BackendMemory, Width: 10, Height: 10, Depth: depth})
		if err != nil {
			t.Fatalf("allocate depth %d: %v", depth, err)
		}
		fb := segs.Framebuffer
		mask := uint32(1)<<uint(depth) - 1
		if depth == 32 {
			mask = ^uint32(0)
		}
		color := uint32(0xa1b2c3d4) & mask

		fb.Fill(region.FromRects(region.R(7, 7, 10, 10)), color)
		if got := fb.At(9, 9); got != color {
			t.Fatalf("depth %d: pixel 9,9 = %#x, want %#x", depth, got, color)
		}
		if got := fb.At(7, 7); got != color {
			t.Fatalf("depth %d: pixel 7,7 = %#x, want %#x", depth, got, color)
		}
		if got := fb.At(6, 9); got != 0 {
			t.Fatalf("depth %d: pixel outside fill changed to %#x", depth, got)
		}
	}
}

func TestPaintBackgroundUsesConfiguredColor(t *testing.T) {
	segs, err := Allocate(Options{Backend: BackendMemory, Width: 4, Height: 4, Depth: 32, Background: 0x00336699})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	fb := segs.Framebuffer
	fb.PaintBackground(region.FromRects(region.R(0, 0, 2, 4)))
	if fb.At(1, 3) != 0x00336699 || fb.At(2, 0) != 0 {
		t.Fatalf("unexpected pixels %#x %#x", fb.At(1, 3), fb.At(2, 0))
	}
}

func TestAllocateSysV(t *testing.T) {
	segs, err := Allocate(Options{Backend: BackendSysV, Width: 16, Height: 16, Depth: 32, HeapBytes: 4096})
	if err != nil {
		t.Skipf("System V IPC unavailable: %v", err)
	}
	hdr := segs.Header()
	if hdr.FramebufferShm < 0 || hdr.HeapShm < 0 || hdr.SemaphoreKey < 0 {
		t.Fatalf("expected kernel ids, got %+v", hdr)
	}
	segs.Framebuffer.PaintBackground(region.FromRects(segs.Framebuffer.Bounds()))
	if err := segs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := segs.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
