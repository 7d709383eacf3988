// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/handshake.go
// Summary: Writes the connection header that opens every client session.
// Notes: The header is written synchronously before the connection is registered,
// so it always precedes the first event.

package server

import (
	"fmt"
	"net"
	"time"

	"github.com/framegrace/texelwin/protocol"
)

const handshakeTimeout = 5 * time.Second

func sendHandshake(conn net.Conn, hdr protocol.ConnectionHeader) error {
	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	if err := protocol.WriteConnectionHeader(conn, hdr); err != nil {
		return fmt.Errorf("server: write handshake: %w", err)
	}
	return nil
}
