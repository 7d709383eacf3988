// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/launcher/launcher.go
// Summary: Starts configured clients on a pseudo-terminal once the display is up.
// Usage: cmd/texelwin calls Start after the socket listens and Stop on shutdown.
// Notes: Children find the display through TEXELWIN_SOCKET. Their terminal
// output is forwarded to the log line by line.

package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// SocketEnv names the variable carrying the display socket path.
const SocketEnv = "TEXELWIN_SOCKET"

const stopGrace = 2 * time.Second

// Spec describes one client.
type Spec struct {
	Name string
	Argv []string
	Dir  string
	Env  map[string]string
}

func (s Spec) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Argv[0]
}

// OutputFunc receives one line of client output.
type OutputFunc func(name, line string)

// Launcher owns the started clients.
type Launcher struct {
	socket string
	output OutputFunc

	mu    sync.Mutex
	procs []*process
	wg    sync.WaitGroup
}

type process struct {
	name string
	cmd  *exec.Cmd
	tty  *os.File
	done chan struct{}
	err  error
}

// New returns a launcher for clients of the display at socket. A nil output
// sends client lines to the standard logger.
func New(socket string, output OutputFunc) *Launcher {
	if output == nil {
		output = func(name, line string) { log.Printf("launcher: [%s] %s", name, line) }
	}
	return &Launcher{socket: socket, output: output}
}

// Start launches every spec. A spec that fails to start is logged and skipped;
// the joined errors are returned.
func (l *Launcher) Start(specs []Spec) error {
	var errs []error
	for _, spec := range specs {
		if err := l.start(spec); err != nil {
			log.Printf("launcher: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Launcher) start(spec Spec) error {
	if len(spec.Argv) == 0 {
		return errors.New("launcher: empty command")
	}
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", SocketEnv+"="+l.socket)
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+spec.Env[k])
	}

	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		return fmt.Errorf("launcher: start %s: %w", spec.label(), err)
	}
	p := &process{name: spec.label(), cmd: cmd, tty: tty, done: make(chan struct{})}
	log.Printf("launcher: started %s (pid %d)", p.name, cmd.Process.Pid)

	l.mu.Lock()
	l.procs = append(l.procs, p)
	l.mu.Unlock()

	l.wg.Add(1)
	go l.supervise(p)
	return nil
}

func (l *Launcher) supervise(p *process) {
	defer l.wg.Done()
	scanner := bufio.NewScanner(p.tty)
	for scanner.Scan() {
		l.output(p.name, scanner.Text())
	}
	// Reading the master fails with EIO once the child side closes.
	p.err = p.cmd.Wait()
	p.tty.Close()
	close(p.done)
	if p.err != nil {
		log.Printf("launcher: %s exited: %v", p.name, p.err)
	} else {
		debugLog.Printf("launcher: %s exited", p.name)
	}
}

// signal reaches the whole process group; pty.Start makes the child a
// session leader.
func (p *process) signal(sig syscall.Signal) {
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil {
		_ = p.cmd.Process.Signal(sig)
	}
}

// Running reports the clients that have not exited.
func (l *Launcher) Running() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var names []string
	for _, p := range l.procs {
		select {
		case <-p.done:
		default:
			names = append(names, p.name)
		}
	}
	return names
}

// Wait blocks until every client has exited.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

// Stop sends SIGTERM to every client, escalating to SIGKILL after a grace
// period, and waits for them to exit.
func (l *Launcher) Stop() {
	l.mu.Lock()
	procs := append([]*process(nil), l.procs...)
	l.mu.Unlock()

	for _, p := range procs {
		select {
		case <-p.done:
			continue
		default:
		}
		p.signal(syscall.SIGTERM)
	}
	timer := time.NewTimer(stopGrace)
	defer timer.Stop()
	expired := false
	for _, p := range procs {
		if !expired {
			select {
			case <-p.done:
				continue
			case <-timer.C:
				expired = true
			}
		}
		select {
		case <-p.done:
		default:
			log.Printf("launcher: %s ignored SIGTERM; killing", p.name)
			p.signal(syscall.SIGKILL)
		}
	}
	l.wg.Wait()
}
