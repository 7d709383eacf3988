// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/queue.go
// Summary: FIFO of commands deferred while region acknowledgements are outstanding.
// Usage: Filled by State.Handle and internal lifecycle changes, drained by State.drain.

package server

import (
	"github.com/framegrace/texelwin/protocol"
	"github.com/framegrace/texelwin/region"
)

type itemKind uint8

const (
	itemCommand itemKind = iota
	itemTeardown
	itemReserved
)

// queueItem is one deferred unit of work paired with its originating client.
type queueItem struct {
	kind     itemKind
	client   ClientID
	cmd      protocol.Command
	reserved region.Region
}

type commandQueue struct {
	items []queueItem
}

func (q *commandQueue) push(item queueItem) {
	q.items = append(q.items, item)
}

func (q *commandQueue) pop() (queueItem, bool) {
	if len(q.items) == 0 {
		return queueItem{}, false
	}
	item := q.items[0]
	q.items[0] = queueItem{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item, true
}

func (q *commandQueue) Len() int {
	return len(q.items)
}
