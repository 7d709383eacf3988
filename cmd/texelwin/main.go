// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelwin/main.go
// Summary: Entry point for the texelwin display server CLI.
// Usage: `texelwin serve`, `texelwin journal`, `texelwin config`, `texelwin version`.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "texelwin",
		Short: "Shared-framebuffer window server",
		Long: `texelwin arbitrates which client may draw where on a shared framebuffer.

Clients connect over a Unix socket, request regions and acknowledge
every region they lose before anyone else is allowed to draw there.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to texelwin.yaml (default $XDG_CONFIG_HOME/texelwin/texelwin.yaml)")

	rootCmd.AddCommand(
		serveCmd(),
		journalCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "texelwin: %v\n", err)
		os.Exit(1)
	}
}
