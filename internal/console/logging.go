// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/console/logging.go
// Summary: Verbose logging toggle for the console.

package console

import (
	"io"
	"log"
	"os"
)

var debugLog = log.New(io.Discard, "", log.LstdFlags)

// SetVerboseLogging toggles console debug output.
func SetVerboseLogging(enabled bool) {
	if enabled {
		debugLog.SetOutput(os.Stderr)
		return
	}
	debugLog.SetOutput(io.Discard)
}

func debugf(format string, args ...any) {
	debugLog.Printf(format, args...)
}
