// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/state.go
// Summary: Single-threaded allocator state: windows, stacking order, queue and phase.
// Usage: Driven by Server.loop; tests drive it directly with a recording sink.
// Notes: State is not safe for concurrent use. Every method must run on the owning goroutine.

package server

import (
	"errors"
	"log"
	"math"
	"time"

	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

const (
	// maxCreate bounds the number of ids a single Create may allocate.
	maxCreate = 1024
	// maxWindowID is one past the largest usable window id, so that
	// nextID never wraps.
	maxWindowID = math.MaxInt32
)

var ErrEmptyBounds = errors.New("server: display bounds are empty")

// Phase is the allocator's position in the reallocation cycle.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAwaitingAcks
)

func (p Phase) String() string {
	if p == PhaseAwaitingAcks {
		return "awaiting_acks"
	}
	return "idle"
}

// Config parameterises a State.
type Config struct {
	// Bounds is the display rectangle; allocations never leave it.
	Bounds region.Rect
	// Reserved is the initial server region.
	Reserved region.Region
	// SelectionTimeout bounds how long a ConvertSelection waits for the owner.
	// Zero disables the timeout.
	SelectionTimeout time.Duration

	Sink       EventSink
	Background BackgroundPainter
	Observer   Observer
	Focus      FocusListener
	Tracer     *Tracer
	Now        func() time.Time
}

type clientRecord struct {
	id     ClientID
	name   string
	closed bool
}

// State is the allocator. It owns every window and decides who may draw where.
type State struct {
	bounds     region.Rect
	reserved   region.Region
	background region.Region

	windows map[int32]*Window
	stack   stack
	clients map[ClientID]*clientRecord
	nextID  int32
	eventID int32

	phase       Phase
	pendingAcks int
	pending     *reallocation
	queue       commandQueue

	props       propertyStore
	selection   *selectionOwner
	conversions []conversion
	convTimeout time.Duration
	focus       *Window

	sink     EventSink
	painter  BackgroundPainter
	observer Observer
	focusL   FocusListener
	tracer   *Tracer
	now      func() time.Time
}

// NewState builds an idle allocator and paints the initial background.
func NewState(cfg Config) (*State, error) {
	if cfg.Bounds.Empty() {
		return nil, ErrEmptyBounds
	}
	s := &State{
		bounds:      cfg.Bounds,
		reserved:    cfg.Reserved.Clip(cfg.Bounds),
		windows:     make(map[int32]*Window),
		clients:     make(map[ClientID]*clientRecord),
		nextID:      1,
		props:       make(propertyStore),
		convTimeout: cfg.SelectionTimeout,
		sink:        cfg.Sink,
		painter:     cfg.Background,
		observer:    cfg.Observer,
		focusL:      cfg.Focus,
		tracer:      cfg.Tracer,
		now:         cfg.Now,
	}
	if s.sink == nil {
		s.sink = nopSink{}
	}
	if s.painter == nil {
		s.painter = nopSink{}
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	if s.tracer == nil {
		s.tracer = NewTracer()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.background = region.FromRects(s.bounds).Subtract(s.reserved)
	if !s.background.IsEmpty() {
		s.painter.PaintBackground(s.background)
	}
	return s, nil
}

// Phase reports whether the allocator is waiting for acknowledgements.
func (s *State) Phase() Phase {
	return s.phase
}

// PendingAcks is the number of RegionAcks the allocator is waiting for.
func (s *State) PendingAcks() int {
	return s.pendingAcks
}

// QueueLen is the number of commands deferred behind the pending reallocation.
func (s *State) QueueLen() int {
	return s.queue.Len()
}

// Bounds returns the display rectangle.
func (s *State) Bounds() region.Rect {
	return s.bounds
}

// Reserved returns the current server region.
func (s *State) Reserved() region.Region {
	return s.reserved
}

// Window returns the window with the given id, or nil.
func (s *State) Window(id int32) *Window {
	return s.windows[id]
}

// Stack returns the window ids front to back.
func (s *State) Stack() []int32 {
	ids := make([]int32, len(s.stack))
	for i, w := range s.stack {
		ids[i] = w.ID
	}
	return ids
}

// Connect registers a new client.
func (s *State) Connect(id ClientID) {
	if _, ok := s.clients[id]; ok {
		return
	}
	s.clients[id] = &clientRecord{id: id}
	s.observer.ObserveClient(id, "", true)
	s.observeState()
}

// Disconnect releases everything the client owes and queues the teardown of
// its windows. It is safe to call more than once.
func (s *State) Disconnect(id ClientID) {
	c := s.clients[id]
	if c == nil || c.closed {
		return
	}
	c.closed = true

	released := 0
	for _, w := range s.stack {
		if w.Owner != id {
			continue
		}
		w.closing = true
		released += len(w.owed)
		w.owed = nil
	}
	s.pendingAcks -= released
	s.dropConversions(id)
	s.observer.ObserveClient(id, c.name, false)
	if released > 0 {
		debugLog.Printf("server: client %d disconnected owing %d acks", id, released)
	}
	if s.phase == PhaseAwaitingAcks && s.pendingAcks == 0 {
		s.finalize()
	}
	s.queue.push(queueItem{kind: itemTeardown, client: id})
	s.drain()
}

// Handle accepts one command from client. RegionAck is processed at once;
// everything else runs in arrival order once no acknowledgements are pending.
func (s *State) Handle(client ClientID, cmd protocol.Command) {
	if ack, ok := cmd.(protocol.RegionAck); ok {
		s.handleAck(client, ack)
		return
	}
	s.queue.push(queueItem{kind: itemCommand, client: client, cmd: cmd})
	s.drain()
}

// SetReserved replaces the server region. Like a client command it waits for
// any pending reallocation to finish.
func (s *State) SetReserved(r region.Region) {
	s.queue.push(queueItem{kind: itemReserved, reserved: r.Clip(s.bounds)})
	s.drain()
}

func (s *State) apply(item queueItem) {
	switch item.kind {
	case itemTeardown:
		s.teardown(item.client)
		return
	case itemReserved:
		if s.reserved.Equal(item.reserved) {
			return
		}
		s.reserved = item.reserved
		s.reconcile("reserved", nil)
		return
	}

	c := s.clients[item.client]
	if c == nil || c.closed {
		debugLog.Printf("server: dropping %s from departed client %d", item.cmd.CommandType(), item.client)
		return
	}

	switch cmd := item.cmd.(type) {
	case protocol.Create:
		s.create(item.client, cmd.Count)
	case protocol.Region:
		w := s.ownedWindow(item.client, cmd.Window, "region")
		if w == nil {
			return
		}
		requested := cmd.Area()
		if w.Requested.Equal(requested) {
			return
		}
		w.Requested = requested
		s.reconcile("region", w)
	case protocol.ChangeAltitude:
		s.changeAltitude(item.client, cmd)
	case protocol.AddProperty:
		s.addProperty(item.client, cmd)
	case protocol.SetProperty:
		s.setProperty(item.client, cmd)
	case protocol.RemoveProperty:
		s.removeProperty(cmd)
	case protocol.GetProperty:
		s.getProperty(item.client, cmd)
	case protocol.SetSelectionOwner:
		s.setSelectionOwner(item.client, cmd)
	case protocol.ConvertSelection:
		s.convertSelection(item.client, cmd)
	case protocol.Identify:
		debugLog.Printf("server: client %d identifies as %q", c.id, cmd.Name)
		c.name = cmd.Name
	case protocol.RequestFocus:
		if w := s.ownedWindow(item.client, cmd.Window, "focus"); w != nil {
			s.setFocus(w)
		}
	default:
		log.Printf("server: unhandled command %T from client %d", cmd, item.client)
	}
}

func (s *State) create(client ClientID, count int32) {
	if count <= 0 {
		count = 1
	}
	if count > maxCreate {
		log.Printf("server: client %d asked for %d windows; capped at %d", client, count, maxCreate)
		count = maxCreate
	}
	if left := maxWindowID - s.nextID; count > left {
		if left <= 0 {
			log.Printf("server: window ids exhausted; refusing create from client %d", client)
			s.observer.ObserveProtocolError("ids_exhausted")
			return
		}
		log.Printf("server: client %d asked for %d windows; only %d ids left", client, count, left)
		count = left
	}
	first := s.nextID
	for i := int32(0); i < count; i++ {
		s.addWindow(s.nextID, client)
	}
	s.send(client, protocol.Creation{ObjectID: first, Count: count})
	if s.focus == nil {
		s.setFocus(s.windows[s.nextID-1])
	}
}

func (s *State) addWindow(id int32, owner ClientID) *Window {
	w := &Window{ID: id, Owner: owner}
	s.windows[id] = w
	s.stack = s.stack.pushFront(w)
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return w
}

// lookupOrCreate returns window id, creating it for client when unknown.
func (s *State) lookupOrCreate(client ClientID, id int32) *Window {
	if w := s.windows[id]; w != nil {
		return w
	}
	if id <= 0 || id >= maxWindowID {
		log.Printf("server: client %d named invalid window %d", client, id)
		s.observer.ObserveProtocolError("invalid_window")
		return nil
	}
	debugLog.Printf("server: creating window %d on first use by client %d", id, client)
	w := s.addWindow(id, client)
	if s.focus == nil {
		s.setFocus(w)
	}
	return w
}

// ownedWindow resolves a window that only its owner may touch.
func (s *State) ownedWindow(client ClientID, id int32, op string) *Window {
	w := s.lookupOrCreate(client, id)
	if w == nil {
		return nil
	}
	if w.Owner != client {
		log.Printf("server: client %d sent %s for window %d owned by client %d; ignored", client, op, id, w.Owner)
		s.observer.ObserveProtocolError("not_owner")
		return nil
	}
	if w.closing {
		return nil
	}
	return w
}

func (s *State) changeAltitude(client ClientID, cmd protocol.ChangeAltitude) {
	w := s.ownedWindow(client, cmd.Window, "altitude")
	if w == nil {
		return
	}
	var changed bool
	var trigger string
	switch cmd.Altitude {
	case protocol.AltitudeRaise:
		s.stack, changed = s.stack.raise(w)
		trigger = "raise"
	case protocol.AltitudeLower:
		s.stack, changed = s.stack.lower(w)
		trigger = "lower"
	default:
		log.Printf("server: client %d sent unsupported altitude %d for window %d", client, cmd.Altitude, w.ID)
		s.observer.ObserveProtocolError("bad_altitude")
		return
	}
	if changed {
		s.reconcile(trigger, w)
	}
}

// teardown destroys every window of a departed client.
func (s *State) teardown(client ClientID) {
	var gone []*Window
	for _, w := range s.stack {
		if w.Owner == client {
			gone = append(gone, w)
		}
	}
	for _, w := range gone {
		s.stack = s.stack.remove(w)
		delete(s.windows, w.ID)
		s.props.dropWindow(w.ID)
		if s.selection != nil && s.selection.window == w.ID {
			s.selection = nil
		}
		if s.focus == w {
			s.focus = nil
		}
	}
	delete(s.clients, client)
	if len(gone) > 0 {
		debugLog.Printf("server: tore down %d windows of client %d", len(gone), client)
		s.reconcile("teardown", nil)
	}
}

func (s *State) nextEventID() int32 {
	s.eventID++
	if s.eventID <= 0 {
		s.eventID = 1
	}
	return s.eventID
}

func (s *State) clientConnected(id ClientID) bool {
	c := s.clients[id]
	return c != nil && !c.closed
}

func (s *State) send(client ClientID, ev protocol.Event) {
	if s.clientConnected(client) {
		s.sink.SendEvent(client, ev)
	}
}

func (s *State) observeState() {
	s.observer.ObserveState(StateStats{
		Windows:     len(s.windows),
		Clients:     len(s.clients),
		PendingAcks: s.pendingAcks,
		QueueDepth:  s.queue.Len(),
	})
}
