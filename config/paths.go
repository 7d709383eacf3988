// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/paths.go
// Summary: Path helpers for texelwin configuration and sockets.

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configFileName = "texelwin.yaml"

func configRoot() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "texelwin"), nil
}

// DefaultPath is $XDG_CONFIG_HOME/texelwin/texelwin.yaml.
func DefaultPath() (string, error) {
	root, err := configRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, configFileName), nil
}

// DefaultSocketPath prefers $XDG_RUNTIME_DIR and falls back to a per-user
// name in the temp directory.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "texelwin.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("texelwin-%d.sock", os.Getuid()))
}
