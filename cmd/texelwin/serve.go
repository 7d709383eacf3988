// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelwin/serve.go
// Summary: Runs a display: shared memory, allocator, socket, admin endpoint, console and clients.
// Notes: SIGHUP reloads the configuration file and applies the reserved region.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/framegrace/texelwin/config"
	"github.com/framegrace/texelwin/internal/admin"
	"github.com/framegrace/texelwin/internal/console"
	"github.com/framegrace/texelwin/internal/journal"
	"github.com/framegrace/texelwin/internal/launcher"
	"github.com/framegrace/texelwin/internal/runtime/server"
	"github.com/framegrace/texelwin/internal/shm"
)

type serveFlags struct {
	socket      string
	admin       string
	journal     string
	snapshot    string
	backend     string
	console     bool
	verboseLogs bool
	logFile     string
}

func serveCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the window server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, flags)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serve(cmd.Context(), cfg, path, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.socket, "socket", "", "Unix socket path")
	f.StringVar(&flags.admin, "admin", "", "Admin HTTP listen address: host:port or unix:/path")
	f.StringVar(&flags.journal, "journal", "", "Journal database path")
	f.StringVar(&flags.snapshot, "snapshot", "", "Optional path to persist allocator snapshots")
	f.StringVar(&flags.backend, "shm-backend", "", "Shared memory backend (sysv or memory)")
	f.BoolVar(&flags.console, "console", false, "Show the allocation map on this terminal")
	f.BoolVar(&flags.verboseLogs, "verbose-logs", false, "Enable verbose server logging")
	f.StringVar(&flags.logFile, "log-file", "", "Write logs to this file")
	return cmd
}

// applyServeFlags lets explicitly set flags win over the file.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, flags serveFlags) {
	f := cmd.Flags()
	if f.Changed("socket") {
		cfg.Socket = flags.socket
	}
	if f.Changed("admin") {
		cfg.Admin.Listen = flags.admin
	}
	if f.Changed("journal") {
		cfg.Journal.Path = flags.journal
	}
	if f.Changed("snapshot") {
		cfg.SnapshotPath = flags.snapshot
	}
	if f.Changed("shm-backend") {
		cfg.Shm.Backend = flags.backend
	}
	if f.Changed("verbose-logs") {
		cfg.VerboseLogs = flags.verboseLogs
	}
}

func serve(parent context.Context, cfg *config.Config, cfgPath string, flags serveFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logFile := flags.logFile
	if logFile == "" && flags.console {
		logFile = filepath.Join(os.TempDir(), "texelwin.log")
	}
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer file.Close()
		log.SetOutput(file)
	}

	server.SetVerboseLogging(cfg.VerboseLogs)
	console.SetVerboseLogging(cfg.VerboseLogs)
	launcher.SetVerboseLogging(cfg.VerboseLogs)

	segs, err := shm.Allocate(shm.Options{
		Backend:        cfg.Shm.Backend,
		Width:          cfg.Display.Width,
		Height:         cfg.Display.Height,
		Depth:          cfg.Display.Depth,
		OffscreenBytes: cfg.Display.OffscreenBytes,
		HeapBytes:      cfg.Shm.HeapBytes,
		Background:     cfg.Display.Background,
	})
	if err != nil {
		return fmt.Errorf("allocate shared memory: %w", err)
	}
	defer segs.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observers := []server.Observer{server.NewMetrics(reg)}
	var focus server.FocusListener
	if cfg.VerboseLogs {
		observers = append(observers, server.NewReallocationLogger(log.Default()))
		focus = server.NewFocusMetrics(log.Default())
	}

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		jrnl, err = journal.Open(cfg.Journal.Path, journal.Options{})
		if err != nil {
			return err
		}
		defer jrnl.Close()
		observers = append(observers, jrnl)
	}

	srv, err := server.NewServer(cfg.Socket, server.Options{
		State: server.Config{
			Bounds:           cfg.Bounds(),
			Reserved:         cfg.ReservedRegion(),
			SelectionTimeout: cfg.SelectionTimeout,
			Background:       segs.Framebuffer,
			Observer:         server.Observers(observers...),
			Focus:            focus,
			Tracer:           server.NewTracer(),
		},
		Header:     segs.Header(),
		EventQueue: cfg.EventQueue,
	})
	if err != nil {
		return err
	}
	if cfg.SnapshotPath != "" {
		srv.SetSnapshotStore(server.NewSnapshotStore(cfg.SnapshotPath), 0)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Socket, err)
	}
	log.Printf("texelwin: %dx%dx%d display listening on %s", cfg.Display.Width, cfg.Display.Height, cfg.Display.Depth, cfg.Socket)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := srv.Stop(stopCtx); err != nil {
			log.Printf("texelwin: stop: %v", err)
		}
	}()

	if cfg.Admin.Listen != "" {
		opts := admin.Options{Display: srv, Gatherer: reg}
		if jrnl != nil {
			opts.Journal = jrnl
		}
		go func() {
			if err := admin.Serve(ctx, cfg.Admin.Listen, admin.Handler(opts)); err != nil {
				log.Printf("admin: %v", err)
			}
		}()
	}

	clients := launcher.New(cfg.Socket, nil)
	if err := clients.Start(launchSpecs(cfg.Launch)); err != nil {
		log.Printf("texelwin: some clients failed to start: %v", err)
	}
	defer clients.Stop()

	var consoleDone chan error
	if flags.console {
		con, err := console.NewTerminal(srv)
		if err != nil {
			return err
		}
		consoleDone = make(chan error, 1)
		go func() { consoleDone <- con.Run(ctx) }()
	} else {
		fmt.Printf("texelwin listening on %s\n", cfg.Socket)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reload(ctx, srv, cfgPath)
				continue
			}
			log.Printf("texelwin: received %v, shutting down", sig)
			return nil
		case err := <-consoleDone:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// reload re-reads the file and applies what can change at runtime.
func reload(ctx context.Context, srv *server.Server, path string) {
	log.Printf("texelwin: received SIGHUP, reloading %s", path)
	cfg, err := config.Load(path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Printf("texelwin: reload failed: %v", err)
		return
	}
	server.SetVerboseLogging(cfg.VerboseLogs)
	if err := srv.SetReserved(ctx, cfg.ReservedRegion()); err != nil && !errors.Is(err, server.ErrServerClosed) {
		log.Printf("texelwin: apply reserved region: %v", err)
	}
}

func launchSpecs(list []config.Launch) []launcher.Spec {
	specs := make([]launcher.Spec, 0, len(list))
	for _, l := range list {
		specs = append(specs, launcher.Spec{Name: l.Name, Argv: l.Argv, Dir: l.Dir, Env: l.Env})
	}
	return specs
}
