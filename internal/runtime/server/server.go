// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/server.go
// Summary: Unix-socket window server: accepts clients and runs the allocator loop.
// Usage: cmd/texelwin builds one Server per display and calls Start/Stop.
// Notes: A single goroutine owns State. Connections, timers, the console and the
// admin endpoint reach it only through channels.

package server

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

var ErrServerClosed = errors.New("server: closed")

const (
	defaultTickInterval     = 100 * time.Millisecond
	defaultSnapshotInterval = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	// State configures the allocator. Sink is ignored; the server delivers
	// events itself.
	State Config
	// Header is sent to every client on connect.
	Header protocol.ConnectionHeader
	// EventQueue bounds the per-client outgoing queue.
	EventQueue int
	// TickInterval drives selection timeouts. Zero uses a default.
	TickInterval time.Duration
}

type request struct {
	fn   func(*State)
	done chan struct{}
}

// Server listens on a Unix domain socket and serializes all client traffic
// through one allocator.
type Server struct {
	addr      string
	manager   *Manager
	listener  net.Listener
	state     *State
	header    protocol.ConnectionHeader
	observer  Observer
	queueSize int
	tick      time.Duration

	snapshotStore    *SnapshotStore
	snapshotInterval time.Duration

	inbound  chan inbound
	requests chan request
	quit     chan struct{}
	running  atomic.Bool
	stopOnce sync.Once
	loopOnce sync.Once
	wg       sync.WaitGroup
}

func NewServer(addr string, opts Options) (*Server, error) {
	s := &Server{
		addr:      addr,
		manager:   NewManager(),
		header:    opts.Header,
		observer:  opts.State.Observer,
		queueSize: opts.EventQueue,
		tick:      opts.TickInterval,
		inbound:   make(chan inbound, 256),
		requests:  make(chan request),
		quit:      make(chan struct{}),

		snapshotInterval: defaultSnapshotInterval,
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	if s.tick <= 0 {
		s.tick = defaultTickInterval
	}
	cfg := opts.State
	cfg.Sink = s
	state, err := NewState(cfg)
	if err != nil {
		return nil, err
	}
	s.state = state
	return s, nil
}

// SetSnapshotStore enables periodic snapshot persistence. It must be called
// before Start.
func (s *Server) SetSnapshotStore(store *SnapshotStore, interval time.Duration) {
	s.snapshotStore = store
	if interval > 0 {
		s.snapshotInterval = interval
	}
}

// Start listens on the configured socket path, replacing a stale socket.
func (s *Server) Start() error {
	if err := os.RemoveAll(s.addr); err != nil {
		return err
	}
	l, err := net.Listen("unix", s.addr)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.addr, 0o600); err != nil {
		_ = l.Close()
		return err
	}
	s.Serve(l)
	return nil
}

// Serve accepts clients from l in the background.
func (s *Server) Serve(l net.Listener) {
	s.listener = l
	s.startLoop()
	s.wg.Add(1)
	go s.acceptLoop()
}

// ServeConn runs the client protocol on an already accepted connection.
func (s *Server) ServeConn(c net.Conn) {
	s.startLoop()
	s.wg.Add(1)
	go s.handleConn(c)
}

func (s *Server) startLoop() {
	s.loopOnce.Do(func() {
		s.running.Store(true)
		s.wg.Add(1)
		go s.loop()
		if s.snapshotStore != nil {
			s.wg.Add(1)
			go s.snapshotLoop()
		}
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("server: accept: %v", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(c net.Conn) {
	defer s.wg.Done()
	if err := sendHandshake(c, s.header); err != nil {
		debugLog.Printf("%v", err)
		_ = c.Close()
		return
	}
	conn := s.manager.register(c, s.queueSize)
	defer s.manager.remove(conn.id)
	defer conn.close()

	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.inbound <- inbound{kind: inConnected, client: conn.id}:
	case <-s.quit:
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn.writeLoop()
	}()

	if err := conn.readLoop(s.inbound, s.quit); err != nil {
		log.Printf("server: client %d read error: %v", conn.id, err)
	} else {
		debugLog.Printf("server: client %d closed", conn.id)
	}
	conn.close()
	select {
	case s.inbound <- inbound{kind: inDisconnected, client: conn.id}:
	case <-s.quit:
	}
}

func (s *Server) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.inbound:
			s.dispatch(msg)
		case now := <-ticker.C:
			s.state.Tick(now)
		case req := <-s.requests:
			req.fn(s.state)
			close(req.done)
		case <-s.quit:
			return
		}
	}
}

func (s *Server) snapshotLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.persistSnapshot()
		case <-s.quit:
			return
		}
	}
}

func (s *Server) persistSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := s.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, ErrServerClosed) {
			log.Printf("server: snapshot: %v", err)
		}
		return
	}
	if err := s.snapshotStore.Save(snap); err != nil {
		log.Printf("server: persist snapshot to %s: %v", s.snapshotStore.Path(), err)
	}
}

func (s *Server) dispatch(msg inbound) {
	switch msg.kind {
	case inConnected:
		s.state.Connect(msg.client)
	case inCommand:
		s.state.Handle(msg.client, msg.cmd)
	case inDisconnected:
		s.state.Disconnect(msg.client)
	case inProtocolError:
		s.observer.ObserveProtocolError(msg.reason)
	}
}

// SendEvent implements EventSink. It runs on the server loop and never
// blocks; a client whose queue is full is disconnected.
func (s *Server) SendEvent(client ClientID, ev protocol.Event) {
	conn, err := s.manager.lookup(client)
	if err != nil {
		return
	}
	if conn.send(ev) {
		return
	}
	select {
	case <-conn.done:
		return
	default:
	}
	log.Printf("server: client %d is not reading events; disconnecting", client)
	s.observer.ObserveProtocolError(ReasonQueueOverflow)
	s.manager.Close(client)
}

// Do runs fn on the server loop and waits for it to finish.
func (s *Server) Do(ctx context.Context, fn func(*State)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrServerClosed
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrServerClosed
	}
}

// Snapshot copies the allocator state.
func (s *Server) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.Do(ctx, func(st *State) { snap = st.Snapshot() })
	return snap, err
}

// SetReserved changes the server region.
func (s *Server) SetReserved(ctx context.Context, r region.Region) error {
	return s.Do(ctx, func(st *State) { st.SetReserved(r) })
}

// InjectMouse routes pointer input to the window under the pointer.
func (s *Server) InjectMouse(ctx context.Context, m protocol.Mouse) error {
	return s.Do(ctx, func(st *State) { st.InjectMouse(m) })
}

// InjectKey routes keyboard input to the focused window.
func (s *Server) InjectKey(ctx context.Context, k protocol.Key) error {
	return s.Do(ctx, func(st *State) { st.InjectKey(k) })
}

func (s *Server) Manager() *Manager {
	return s.manager
}

// Addr returns the socket path.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.snapshotStore != nil && s.running.Load() {
			s.persistSnapshot()
		}
		close(s.quit)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.manager.closeAll()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		<-done
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
