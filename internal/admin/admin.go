// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/admin/admin.go
// Summary: HTTP introspection and control endpoint for a running display.
// Usage: cmd/texelwin mounts Handler on admin.listen when configured.
// Notes: Every read goes through the server loop, so responses are consistent
// snapshots and never race the allocator.

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/framegrace/texelwin/internal/journal"
	"github.com/framegrace/texelwin/internal/runtime/server"
	"github.com/framegrace/texelwin/region"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
	requestTimeout      = 5 * time.Second
)

// Display is the part of the server the endpoint drives.
type Display interface {
	Snapshot(ctx context.Context) (server.Snapshot, error)
	SetReserved(ctx context.Context, r region.Region) error
}

// JournalReader serves /journal.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Options wires the endpoint. Gatherer and Journal are optional.
type Options struct {
	Display  Display
	Gatherer prometheus.Gatherer
	Journal  JournalReader
}

type reservedRequest struct {
	Rects []region.Rect `json:"rects"`
}

// Handler builds the router.
func Handler(opts Options) http.Handler {
	h := &handler{opts: opts}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/state", h.state)
	r.Put("/reserved", h.reserved)
	r.Get("/journal", h.journal)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type handler struct {
	opts Options
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.opts.Display.Snapshot(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) reserved(w http.ResponseWriter, r *http.Request) {
	var req reservedRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	for i, rect := range req.Rects {
		if rect.Empty() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("rects[%d] is empty", i))
			return
		}
	}
	if err := h.opts.Display.SetReserved(r.Context(), region.FromRects(req.Rects...)); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) journal(w http.ResponseWriter, r *http.Request) {
	if h.opts.Journal == nil {
		writeError(w, http.StatusNotFound, errors.New("journal disabled"))
		return
	}
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxJournalLimit)
	}
	entries, err := h.opts.Journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, server.ErrServerClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("admin: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// UnixPrefix marks an admin address as a Unix socket path.
const UnixPrefix = "unix:"

func listen(addr string) (net.Listener, error) {
	path, ok := strings.CutPrefix(addr, UnixPrefix)
	if !ok {
		return net.Listen("tcp", addr)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Serve runs the endpoint on addr until ctx is cancelled. addr is a TCP
// host:port, or a socket path prefixed with "unix:".
func Serve(ctx context.Context, addr string, h http.Handler) error {
	l, err := listen(addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: requestTimeout}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	log.Printf("admin: listening on %s", l.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
