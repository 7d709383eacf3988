// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/journal/journal.go
// Summary: SQLite journal of completed reallocations and client sessions.
//
// The journal is a server.Observer. Observations arrive on the allocator
// goroutine, are queued without blocking and written in batches by a
// background writer.

package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/framegrace/texelwin/internal/runtime/server"

	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("journal: closed")

// Entry kinds.
const (
	KindReallocation = "reallocation"
	KindConnect      = "connect"
	KindDisconnect   = "disconnect"
)

// Entry is one journal row.
type Entry struct {
	ID      int64         `json:"id"`
	Time    time.Time     `json:"time"`
	Kind    string        `json:"kind"`
	Client  uint32        `json:"client,omitempty"`
	Name    string        `json:"name,omitempty"`
	Trigger string        `json:"trigger,omitempty"`
	Window  int32         `json:"window,omitempty"`
	Acks    int           `json:"acks,omitempty"`
	Wait    time.Duration `json:"wait_ns,omitempty"`
	Granted int64         `json:"granted,omitempty"`
	Exposed int64         `json:"exposed,omitempty"`
}

// Options tunes the writer.
type Options struct {
	BatchSize     int
	BatchTimeout  time.Duration
	ChannelBuffer int
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = time.Second
	}
	if o.ChannelBuffer <= 0 {
		o.ChannelBuffer = 1024
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts INTEGER NOT NULL,          -- UnixNano
    kind TEXT NOT NULL,
    client INTEGER NOT NULL DEFAULT 0,
    name TEXT NOT NULL DEFAULT '',
    cause TEXT NOT NULL DEFAULT '',
    target INTEGER NOT NULL DEFAULT 0,
    acks INTEGER NOT NULL DEFAULT 0,
    wait_ns INTEGER NOT NULL DEFAULT 0,
    granted INTEGER NOT NULL DEFAULT 0,
    exposed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entries_ts ON entries(ts);
`

// Journal records allocator activity.
type Journal struct {
	server.NopObserver

	db   *sql.DB
	opts Options

	entries chan Entry
	flushCh chan chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64
	now     func() time.Time
}

// Open creates or opens the journal at path.
func Open(path string, opts Options) (*Journal, error) {
	opts.setDefaults()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	j := &Journal{
		db:      db,
		opts:    opts,
		entries: make(chan Entry, opts.ChannelBuffer),
		flushCh: make(chan chan struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		now:     time.Now,
	}
	go j.writer()
	return j, nil
}

// ObserveReallocation implements server.Observer.
func (j *Journal) ObserveReallocation(st server.ReallocationStats) {
	j.enqueue(Entry{
		Time:    st.Started.Add(st.Wait),
		Kind:    KindReallocation,
		Trigger: st.Trigger,
		Window:  st.Target,
		Acks:    st.Acks,
		Wait:    st.Wait,
		Granted: st.Granted,
		Exposed: st.Exposed,
	})
}

// ObserveClient implements server.Observer.
func (j *Journal) ObserveClient(id server.ClientID, name string, connected bool) {
	kind := KindDisconnect
	if connected {
		kind = KindConnect
	}
	j.enqueue(Entry{Time: j.now(), Kind: kind, Client: uint32(id), Name: name})
}

func (j *Journal) enqueue(e Entry) {
	if j.closed.Load() {
		return
	}
	if e.Time.IsZero() {
		e.Time = j.now()
	}
	select {
	case j.entries <- e:
	default:
		if j.dropped.Add(1) == 1 {
			log.Printf("journal: writer is behind; dropping entries")
		}
	}
}

// Dropped counts entries lost because the writer fell behind.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) writer() {
	defer close(j.doneCh)

	batch := make([]Entry, 0, j.opts.BatchSize)
	timer := time.NewTimer(j.opts.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		j.writeBatch(batch)
		batch = batch[:0]
	}
	drain := func() {
		for {
			select {
			case e := <-j.entries:
				batch = append(batch, e)
			default:
				return
			}
		}
	}

	for {
		select {
		case e := <-j.entries:
			batch = append(batch, e)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-timer.C:
			flush()
			timer.Reset(j.opts.BatchTimeout)
		case done := <-j.flushCh:
			drain()
			flush()
			close(done)
		case <-j.stopCh:
			drain()
			flush()
			return
		}
	}
}

func (j *Journal) writeBatch(batch []Entry) {
	tx, err := j.db.Begin()
	if err != nil {
		log.Printf("journal: begin: %v", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO entries
		(ts, kind, client, name, cause, target, acks, wait_ns, granted, exposed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("journal: prepare: %v", err)
		tx.Rollback()
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.Time.UnixNano(), e.Kind, e.Client, e.Name, e.Trigger,
			e.Window, e.Acks, int64(e.Wait), e.Granted, e.Exposed); err != nil {
			log.Printf("journal: insert %s: %v", e.Kind, err)
			tx.Rollback()
			return
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("journal: commit: %v", err)
	}
}

// Flush blocks until every queued entry is written.
func (j *Journal) Flush(ctx context.Context) error {
	if j.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case j.flushCh <- done:
	case <-j.doneCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id, ts, kind, client, name, cause, target,
		acks, wait_ns, granted, exposed FROM entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			ts   int64
			wait int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.Client, &e.Name, &e.Trigger, &e.Window,
			&e.Acks, &wait, &e.Granted, &e.Exposed); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Time = time.Unix(0, ts)
		e.Wait = time.Duration(wait)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close flushes pending entries and closes the database.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(j.stopCh)
	<-j.doneCh
	return j.db.Close()
}
