// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/shm/sysv_other.go
// Summary: Placeholder for platforms without the System V backend.

//go:build !(linux && (amd64 || arm64))

package shm

func allocateSysV(int, int) (*Segments, error) {
	return nil, ErrUnsupportedBackend
}
