// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/sysv_linux.go
// Summary: System V shared memory and semaphore allocation on Linux.

//go:build linux && (amd64 || arm64)

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func allocateSysV(fbSize, heapSize int) (*Segments, error) {
	var cleanup []func() error
	release := func() error {
		var errs []error
		for i := len(cleanup) - 1; i >= 0; i-- {
			errs = append(errs, cleanup[i]())
		}
		return errors.Join(errs...)
	}

	fb, undo, err := attachSegment(fbSize)
	if err != nil {
		return nil, fmt.Errorf("shm: framebuffer segment: %w", err)
	}
	cleanup = append(cleanup, undo)

	heap := Segment{ID: -1}
	if heapSize > 0 {
		heap, undo, err = attachSegment(heapSize)
		if err != nil {
			_ = release()
			return nil, fmt.Errorf("shm: heap segment: %w", err)
		}
		cleanup = append(cleanup, undo)
	}

	semID, err := semget()
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("shm: semaphore: %w", err)
	}
	cleanup = append(cleanup, func() error { return semRemove(semID) })

	return &Segments{
		fbSegment:    fb,
		Heap:         heap,
		SemaphoreKey: int32(semID),
		release:      release,
	}, nil
}

// attachSegment creates a private segment, maps it and marks it for removal
// once the last process detaches.
func attachSegment(size int) (Segment, func() error, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
	if err != nil {
		return Segment{}, nil, err
	}
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return Segment{}, nil, err
	}
	undo := func() error {
		derr := unix.SysvShmDetach(data)
		_, rerr := unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return errors.Join(derr, rerr)
	}
	return Segment{ID: int32(id), Data: data}, undo, nil
}

func semget() (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(unix.IPC_PRIVATE), 1, uintptr(unix.IPC_CREAT|0o600))
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}

func semRemove(id int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, uintptr(unix.IPC_RMID), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
