// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/shm.go
// Summary: Acquires the framebuffer, the shared heap and the advisory semaphore at startup.
// Usage: cmd/texelwin calls Allocate once; the result describes itself in the connection header.
// Notes: The semaphore is created and advertised only; the server never takes it.
// Region acknowledgements are the sole arbitration between writers.

package shm

import (
	"errors"
	"fmt"

	"github.com/framegrace/texelwin/protocol"
)

// Backend names accepted in Options.Backend.
const (
	BackendSysV   = "sysv"
	BackendMemory = "memory"
)

var (
	ErrUnsupportedBackend = errors.New("shm: backend not supported on this platform")
	ErrInvalidGeometry    = errors.New("shm: invalid framebuffer geometry")
)

// Options sizes the segments.
type Options struct {
	Backend        string
	Width          int
	Height         int
	Depth          int
	OffscreenBytes int
	HeapBytes      int
	Background     uint32
}

// Segment is one attached shared-memory area. ID is -1 for in-process memory.
type Segment struct {
	ID   int32
	Data []byte
}

// Segments bundles everything a display needs.
type Segments struct {
	Framebuffer  *Framebuffer
	Heap         Segment
	SemaphoreKey int32

	fbSegment Segment
	release   func() error
}

func (o Options) validate() error {
	switch o.Depth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: depth %d", ErrInvalidGeometry, o.Depth)
	}
	if o.Width <= 0 || o.Height <= 0 || o.OffscreenBytes < 0 || o.HeapBytes < 0 {
		return fmt.Errorf("%w: %dx%d offscreen=%d heap=%d", ErrInvalidGeometry, o.Width, o.Height, o.OffscreenBytes, o.HeapBytes)
	}
	return nil
}

func (o Options) framebufferBytes() int {
	return o.Width * o.Height * o.Depth / 8
}

// Allocate creates the segments. Any failure is fatal for the caller; partly
// created segments are released before returning.
func Allocate(opts Options) (*Segments, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	fbSize := opts.framebufferBytes() + opts.OffscreenBytes
	var (
		segs *Segments
		err  error
	)
	switch opts.Backend {
	case "", BackendSysV:
		segs, err = allocateSysV(fbSize, opts.HeapBytes)
	case BackendMemory:
		segs = allocateMemory(fbSize, opts.HeapBytes)
	default:
		return nil, fmt.Errorf("shm: unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	segs.Framebuffer = newFramebuffer(segs.fbSegment.Data[:opts.framebufferBytes()], opts.Width, opts.Height, opts.Depth, opts.Background)
	return segs, nil
}

func allocateMemory(fbSize, heapSize int) *Segments {
	return &Segments{
		fbSegment:    Segment{ID: -1, Data: make([]byte, fbSize)},
		Heap:         Segment{ID: -1, Data: make([]byte, heapSize)},
		SemaphoreKey: -1,
		release:      func() error { return nil },
	}
}

// Header describes the segments to a connecting client.
func (s *Segments) Header() protocol.ConnectionHeader {
	fb := s.Framebuffer
	onscreen := len(fb.pix)
	return protocol.ConnectionHeader{
		Width:           int32(fb.Width),
		Height:          int32(fb.Height),
		Depth:           int32(fb.Depth),
		SemaphoreKey:    s.SemaphoreKey,
		FramebufferShm:  s.fbSegment.ID,
		HeapShm:         s.Heap.ID,
		HeapSize:        uint32(len(s.Heap.Data)),
		OffscreenOffset: uint32(onscreen),
		OffscreenLength: uint32(len(s.fbSegment.Data) - onscreen),
		FramebufferID:   s.fbSegment.ID,
	}
}

// Close detaches and removes every segment.
func (s *Segments) Close() error {
	if s == nil || s.release == nil {
		return nil
	}
	release := s.release
	s.release = nil
	return release()
}
