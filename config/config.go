// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/config.go
// Summary: Typed texelwin configuration with defaults and validation.
// Usage: cmd/texelwin loads the YAML file, applies flag overrides, then calls Validate.

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/framegrace/texelwin/region"
)

// Config is the full server configuration.
type Config struct {
	Socket           string        `yaml:"socket"`
	Display          Display       `yaml:"display"`
	Shm              Shm           `yaml:"shm"`
	Reserved         []Rect        `yaml:"reserved,omitempty"`
	SelectionTimeout time.Duration `yaml:"selection_timeout"`
	EventQueue       int           `yaml:"event_queue"`
	Admin            Admin         `yaml:"admin"`
	Journal          Journal       `yaml:"journal"`
	Launch           []Launch      `yaml:"launch,omitempty"`
	SnapshotPath     string        `yaml:"snapshot_path,omitempty"`
	VerboseLogs      bool          `yaml:"verbose_logs"`
}

type Display struct {
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	Depth          int    `yaml:"depth"`
	OffscreenBytes int    `yaml:"offscreen_bytes"`
	Background     uint32 `yaml:"background"`
}

type Shm struct {
	Backend   string `yaml:"backend"`
	HeapBytes int    `yaml:"heap_bytes"`
}

type Admin struct {
	Listen string `yaml:"listen,omitempty"`
}

type Journal struct {
	Path string `yaml:"path,omitempty"`
}

// Launch is a client started once the socket is listening.
type Launch struct {
	Name string            `yaml:"name,omitempty"`
	Argv []string          `yaml:"argv"`
	Dir  string            `yaml:"dir,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"`
}

// Rect is a reserved display rectangle.
type Rect struct {
	X      int32 `yaml:"x"`
	Y      int32 `yaml:"y"`
	Width  int32 `yaml:"width"`
	Height int32 `yaml:"height"`
}

func (r Rect) toRegion() region.Rect {
	return region.R(r.X, r.Y, r.Width, r.Height)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Socket: DefaultSocketPath(),
		Display: Display{
			Width:      1024,
			Height:     768,
			Depth:      32,
			Background: 0x1e1e2e,
		},
		Shm: Shm{
			Backend:   "sysv",
			HeapBytes: 4 << 20,
		},
		SelectionTimeout: 5 * time.Second,
		EventQueue:       256,
	}
}

// Bounds is the display rectangle.
func (c *Config) Bounds() region.Rect {
	return region.R(0, 0, int32(c.Display.Width), int32(c.Display.Height))
}

// ReservedRegion is the union of the reserved rectangles.
func (c *Config) ReservedRegion() region.Region {
	rects := make([]region.Rect, 0, len(c.Reserved))
	for _, r := range c.Reserved {
		rects = append(rects, r.toRegion())
	}
	return region.FromRects(rects...)
}

// ValidationError names the offending field.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(path string, format string, args ...any) error {
	return &ValidationError{Path: path, Err: fmt.Errorf(format, args...)}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.Socket == "" {
		errs = append(errs, invalid("socket", "must not be empty"))
	}
	if c.Display.Width <= 0 {
		errs = append(errs, invalid("display.width", "must be positive, got %d", c.Display.Width))
	}
	if c.Display.Height <= 0 {
		errs = append(errs, invalid("display.height", "must be positive, got %d", c.Display.Height))
	}
	switch c.Display.Depth {
	case 8, 16, 24, 32:
	default:
		errs = append(errs, invalid("display.depth", "must be 8, 16, 24 or 32, got %d", c.Display.Depth))
	}
	if c.Display.OffscreenBytes < 0 {
		errs = append(errs, invalid("display.offscreen_bytes", "must not be negative"))
	}
	switch c.Shm.Backend {
	case "sysv", "memory":
	default:
		errs = append(errs, invalid("shm.backend", "unknown backend %q", c.Shm.Backend))
	}
	if c.Shm.HeapBytes < 0 {
		errs = append(errs, invalid("shm.heap_bytes", "must not be negative"))
	}
	bounds := c.Bounds()
	for i, r := range c.Reserved {
		rr := r.toRegion()
		path := fmt.Sprintf("reserved[%d]", i)
		if rr.Empty() {
			errs = append(errs, invalid(path, "rectangle %v is empty", rr))
		} else if !bounds.Empty() && !bounds.ContainsRect(rr) {
			errs = append(errs, invalid(path, "rectangle %v leaves the display %v", rr, bounds))
		}
	}
	if c.SelectionTimeout < 0 {
		errs = append(errs, invalid("selection_timeout", "must not be negative"))
	}
	if c.EventQueue <= 0 {
		errs = append(errs, invalid("event_queue", "must be positive, got %d", c.EventQueue))
	}
	for i, l := range c.Launch {
		if len(l.Argv) == 0 || l.Argv[0] == "" {
			errs = append(errs, invalid(fmt.Sprintf("launch[%d].argv", i), "must name a program"))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Reserved = append([]Rect(nil), c.Reserved...)
	if c.Launch != nil {
		out.Launch = make([]Launch, len(c.Launch))
		for i, l := range c.Launch {
			l.Argv = append([]string(nil), l.Argv...)
			if l.Env != nil {
				env := make(map[string]string, len(l.Env))
				for k, v := range l.Env {
					env[k] = v
				}
				l.Env = env
			}
			out.Launch[i] = l
		}
	}
	return &out
}
