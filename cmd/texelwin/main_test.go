// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelwin/main_test.go
// Summary: Checks flag precedence and the config subcommands.
// Usage: Executed during `go test` to guard against regressions.

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/framegrace/texelwin/config"
)

func TestServeFlagsOverrideFile(t *testing.T) {
	cmd := serveCmd()
	if err := cmd.Flags().Parse([]string{"--socket", "/tmp/flag.sock", "--shm-backend", "memory"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Default()
	cfg.Socket = "/tmp/file.sock"
	cfg.Admin.Listen = "127.0.0.1:7070"

	var flags serveFlags
	flags.socket, _ = cmd.Flags().GetString("socket")
	flags.backend, _ = cmd.Flags().GetString("shm-backend")
	applyServeFlags(cmd, cfg, flags)

	if cfg.Socket != "/tmp/flag.sock" || cfg.Shm.Backend != "memory" {
		t.Fatalf("flags should win: %+v", cfg)
	}
	if cfg.Admin.Listen != "127.0.0.1:7070" {
		t.Fatalf("unset flags must keep file values, got %q", cfg.Admin.Listen)
	}
}

func TestLaunchSpecsCopyFields(t *testing.T) {
	specs := launchSpecs([]config.Launch{{Name: "term", Argv: []string{"xterm"}, Dir: "/tmp", Env: map[string]string{"A": "b"}}})
	if len(specs) != 1 || specs[0].Name != "term" || specs[0].Argv[0] != "xterm" || specs[0].Dir != "/tmp" || specs[0].Env["A"] != "b" {
		t.Fatalf("unexpected specs %+v", specs)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texelwin.yaml")

	root := configCmd()
	root.PersistentFlags().String("config", path, "")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"init"})
	if err := root.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	root.SetArgs([]string{"init"})
	if err := root.Execute(); err == nil {
		t.Fatalf("second init should refuse to overwrite")
	}

	out.Reset()
	root.SetArgs([]string{"show"})
	if err := root.Execute(); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out.String(), "selection_timeout: 5s") {
		t.Fatalf("unexpected config output:\n%s", out.String())
	}
}

func TestVersionShort(t *testing.T) {
	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
