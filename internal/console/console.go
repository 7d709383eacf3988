// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/console/console.go
// Summary: Terminal view of the allocation map that doubles as an input source.
// Usage: `texelwin serve --console` runs it on the controlling terminal.
// Notes: The terminal is a scaled picture of the display. Each cell samples the
// display pixel at its centre; clicks and keys are forwarded to the server.

package console

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/framegrace/texelwin/internal/runtime/server"
	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

var ErrNotTerminal = errors.New("console: stdout is not a terminal")

const (
	refreshInterval = 250 * time.Millisecond
	keyQuit         = tcell.KeyCtrlQ
)

// Display is what the console shows and drives.
type Display interface {
	Snapshot(ctx context.Context) (server.Snapshot, error)
	InjectMouse(ctx context.Context, m protocol.Mouse) error
	InjectKey(ctx context.Context, k protocol.Key) error
}

var palette = []tcell.Color{
	tcell.ColorSteelBlue,
	tcell.ColorSeaGreen,
	tcell.ColorIndianRed,
	tcell.ColorGoldenrod,
	tcell.ColorMediumPurple,
	tcell.ColorDarkCyan,
	tcell.ColorOlive,
	tcell.ColorSienna,
}

var (
	reservedStyle = tcell.StyleDefault.Background(tcell.ColorDimGray).Foreground(tcell.ColorWhite)
	statusStyle   = tcell.StyleDefault.Reverse(true)
)

// Console renders snapshots on a tcell screen.
type Console struct {
	screen  tcell.Screen
	display Display

	mu      sync.Mutex
	bounds  region.Rect
	buttons tcell.ButtonMask

	quit      chan struct{}
	closeOnce sync.Once
}

// New wraps an initialised screen.
func New(screen tcell.Screen, display Display) *Console {
	return &Console{
		screen:  screen,
		display: display,
		quit:    make(chan struct{}),
	}
}

// NewTerminal opens the controlling terminal.
func NewTerminal(display Display) (*Console, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, ErrNotTerminal
	}
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorReset).Foreground(tcell.ColorReset))
	screen.HideCursor()
	screen.EnableMouse()
	return New(screen, display), nil
}

// Run draws until ctx is done, Close is called or the user presses Ctrl-Q.
// The screen is finalised on return.
func (c *Console) Run(ctx context.Context) error {
	defer c.screen.Fini()
	defer c.Close()

	events := make(chan tcell.Event, 10)
	go func() {
		for {
			ev := c.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-c.quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	c.refresh(ctx)
	for {
		select {
		case ev := <-events:
			if c.handleEvent(ctx, ev) {
				c.refresh(ctx)
			}
		case <-ticker.C:
			c.refresh(ctx)
		case <-c.quit:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Close stops Run.
func (c *Console) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
}

func (c *Console) refresh(ctx context.Context) {
	snap, err := c.display.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, server.ErrServerClosed) {
			log.Printf("console: snapshot: %v", err)
		}
		return
	}
	c.Render(snap)
}

// Render draws one snapshot.
func (c *Console) Render(snap server.Snapshot) {
	c.mu.Lock()
	c.bounds = snap.Bounds
	c.mu.Unlock()

	c.screen.Clear()
	cols, rows := c.screen.Size()
	mapRows := rows - 1
	if cols <= 0 || mapRows <= 0 {
		c.screen.Show()
		return
	}

	reserved := region.FromRects(snap.Reserved...)
	allocs := make([]region.Region, len(snap.Windows))
	for i, w := range snap.Windows {
		allocs[i] = region.FromRects(w.Allocated...)
	}
	type label struct {
		x, y  int
		text  string
		style tcell.Style
	}
	var labels []label
	labelled := make(map[int32]bool, len(snap.Windows))

	for y := 0; y < mapRows; y++ {
		for x := 0; x < cols; x++ {
			px, py := c.cellToPixel(snap.Bounds, x, y, cols, mapRows)
			if reserved.ContainsPoint(px, py) {
				c.screen.SetContent(x, y, '░', nil, reservedStyle)
				continue
			}
			c.screen.SetContent(x, y, '·', nil, tcell.StyleDefault)
			for i, w := range snap.Windows {
				if !allocs[i].ContainsPoint(px, py) {
					continue
				}
				style := windowStyle(w.ID)
				c.screen.SetContent(x, y, ' ', nil, style)
				if !labelled[w.ID] {
					labelled[w.ID] = true
					labels = append(labels, label{x: x, y: y, text: fmt.Sprintf("#%d", w.ID), style: style})
				}
				break
			}
		}
	}

	for _, l := range labels {
		c.drawText(l.x, l.y, cols-l.x, l.text, l.style)
	}

	status := fmt.Sprintf(" %s  acks=%d  queue=%d  windows=%d  clients=%d  focus=%d  (Ctrl-Q quits)",
		snap.Phase, snap.PendingAcks, snap.QueueDepth, len(snap.Windows), len(snap.Clients), snap.Focused)
	c.drawText(0, rows-1, cols, runewidth.FillRight(status, cols), statusStyle)
	c.screen.Show()
}

func windowStyle(id int32) tcell.Style {
	bg := palette[int(id)%len(palette)]
	return tcell.StyleDefault.Background(bg).Foreground(tcell.ColorWhite)
}

// drawText writes s from x, y, truncated to width cells.
func (c *Console) drawText(x, y, width int, s string, style tcell.Style) {
	if width <= 0 {
		return
	}
	s = runewidth.Truncate(s, width, "")
	for _, r := range s {
		c.screen.SetContent(x, y, r, nil, style)
		x += runewidth.RuneWidth(r)
	}
}

// cellToPixel maps the centre of a terminal cell to display coordinates.
func (c *Console) cellToPixel(bounds region.Rect, x, y, cols, rows int) (int32, int32) {
	px := bounds.X + int32(int64(2*x+1)*int64(bounds.Width)/int64(2*cols))
	py := bounds.Y + int32(int64(2*y+1)*int64(bounds.Height)/int64(2*rows))
	return px, py
}

// handleEvent forwards input and reports whether a redraw is due.
func (c *Console) handleEvent(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		c.screen.Sync()
		return true
	case *tcell.EventKey:
		if ev.Key() == keyQuit {
			c.Close()
			return false
		}
		k := protocol.Key{
			KeyCode:   int32(ev.Key()),
			Modifiers: uint32(ev.Modifiers()),
			Press:     true,
		}
		if ev.Key() == tcell.KeyRune {
			k.Unicode = ev.Rune()
		}
		if err := c.display.InjectKey(ctx, k); err != nil {
			debugf("console: inject key: %v", err)
		}
		return true
	case *tcell.EventMouse:
		return c.handleMouse(ctx, ev)
	}
	return false
}

func (c *Console) handleMouse(ctx context.Context, ev *tcell.EventMouse) bool {
	c.mu.Lock()
	bounds := c.bounds
	prev := c.buttons
	buttons := ev.Buttons() & (tcell.Button1 | tcell.Button2 | tcell.Button3)
	c.buttons = buttons
	c.mu.Unlock()

	var delta int32
	switch {
	case ev.Buttons()&tcell.WheelUp != 0:
		delta = 1
	case ev.Buttons()&tcell.WheelDown != 0:
		delta = -1
	}
	if buttons == prev && delta == 0 {
		return false
	}
	if bounds.Empty() {
		return false
	}

	cols, rows := c.screen.Size()
	x, y := ev.Position()
	if y >= rows-1 || rows <= 1 {
		return false
	}
	px, py := c.cellToPixel(bounds, x, y, cols, rows-1)
	m := protocol.Mouse{
		X:     px,
		Y:     py,
		State: uint32(buttons),
		Delta: delta,
		Time:  ev.When().UnixMilli(),
	}
	if err := c.display.InjectMouse(ctx, m); err != nil {
		debugf("console: inject mouse: %v", err)
	}
	return true
}
