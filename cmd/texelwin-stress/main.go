// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelwin-stress/main.go
// Summary: Load generator: many clients moving windows and acking promptly.
// Usage: texelwin-stress -clients 16 -duration 10s [-socket path]
// Notes: Without -socket an in-process server is started on a temporary socket.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/framegrace/texelwin/client"
	"github.com/framegrace/texelwin/internal/runtime/server"
	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

type counters struct {
	commands atomic.Int64
	grants   atomic.Int64
	acks     atomic.Int64
	failures atomic.Int64
}

func main() {
	socketPath := flag.String("socket", "", "Socket of a running texelwin (empty starts one in-process)")
	clients := flag.Int("clients", 8, "number of concurrent clients")
	windows := flag.Int("windows", 2, "windows per client")
	duration := flag.Duration("duration", 10*time.Second, "total duration of the stress run")
	interval := flag.Duration("interval", 5*time.Millisecond, "delay between commands per client")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	verboseLogs := flag.Bool("verbose-logs", false, "Enable verbose server logging")
	flag.Parse()

	server.SetVerboseLogging(*verboseLogs)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var srv *server.Server
	if *socketPath == "" {
		dir, err := os.MkdirTemp("", "texelwin-stress")
		if err != nil {
			log.Fatalf("temp dir: %v", err)
		}
		defer os.RemoveAll(dir)
		*socketPath = filepath.Join(dir, "texelwin.sock")
		srv, err = server.NewServer(*socketPath, server.Options{
			State:  server.Config{Bounds: region.R(0, 0, 1024, 768)},
			Header: protocol.ConnectionHeader{Width: 1024, Height: 768, Depth: 32, SemaphoreKey: -1, FramebufferShm: -1, HeapShm: -1},
		})
		if err != nil {
			log.Fatalf("server: %v", err)
		}
		if err := srv.Start(); err != nil {
			log.Fatalf("start: %v", err)
		}
		defer srv.Stop(context.Background())
	}

	var stats counters
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(*seed + int64(idx)))
			if err := runClient(ctx, *socketPath, idx, *windows, *interval, rng, &stats); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				log.Printf("client %d: %v", idx, err)
				stats.failures.Add(1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	secs := elapsed.Seconds()
	fmt.Printf("clients=%d windows=%d elapsed=%s\n", *clients, *clients**windows, elapsed.Round(time.Millisecond))
	fmt.Printf("commands=%d (%.0f/s) grants=%d (%.0f/s) acks=%d (%.0f/s) failures=%d\n",
		stats.commands.Load(), float64(stats.commands.Load())/secs,
		stats.grants.Load(), float64(stats.grants.Load())/secs,
		stats.acks.Load(), float64(stats.acks.Load())/secs,
		stats.failures.Load())

	if srv != nil {
		snapCtx, snapCancel := context.WithTimeout(context.Background(), time.Second)
		defer snapCancel()
		if snap, err := srv.Snapshot(snapCtx); err == nil {
			fmt.Printf("server phase=%s pending_acks=%d queue=%d\n", snap.Phase, snap.PendingAcks, snap.QueueDepth)
		}
	}
}

func runClient(ctx context.Context, socket string, idx, windows int, interval time.Duration, rng *rand.Rand, stats *counters) error {
	c, err := client.Dial(socket)
	if err != nil {
		return err
	}
	defer c.Close()
	hdr := c.Header()
	bounds := region.R(0, 0, hdr.Width, hdr.Height)

	if err := c.Send(protocol.Identify{Name: fmt.Sprintf("stress-%d", idx)}); err != nil {
		return err
	}
	if err := c.Send(protocol.Create{Count: int32(windows)}); err != nil {
		return err
	}

	created := make(chan protocol.Creation, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			ev, err := c.ReadEvent()
			if err != nil {
				readErr <- err
				return
			}
			switch ev := ev.(type) {
			case protocol.Creation:
				select {
				case created <- ev:
				default:
				}
			case protocol.RegionRemove:
				if ev.NeedsAck() {
					if err := c.Ack(ev); err != nil {
						readErr <- err
						return
					}
					stats.acks.Add(1)
				}
			case protocol.RegionAdd:
				stats.grants.Add(1)
			}
		}
	}()

	var creation protocol.Creation
	select {
	case creation = <-created:
	case err := <-readErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-ticker.C:
		}
		win := creation.ObjectID + int32(rng.Intn(int(creation.Count)))
		var cmd protocol.Command
		switch rng.Intn(4) {
		case 0:
			cmd = protocol.ChangeAltitude{Window: win, Altitude: protocol.AltitudeRaise}
		default:
			cmd = protocol.Region{Window: win, Rects: []region.Rect{randomRect(rng, bounds)}}
		}
		if err := c.Send(cmd); err != nil {
			return err
		}
		stats.commands.Add(1)
	}
}

func randomRect(rng *rand.Rand, bounds region.Rect) region.Rect {
	w := 1 + rng.Int31n(bounds.Width/2)
	h := 1 + rng.Int31n(bounds.Height/2)
	x := bounds.X + rng.Int31n(bounds.Width-w+1)
	y := bounds.Y + rng.Int31n(bounds.Height-h+1)
	return region.R(x, y, w, h)
}
