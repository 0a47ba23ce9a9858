package client

import (
	"sort"

	"github.com/luma/redisfast/protocol"
)

// ID correlates a submitted command with the handler awaiting its replies.
type ID uint64

// Mode decides how long a handler stays registered.
type Mode uint8

const (
	// OneShot handlers are removed when their single reply is resolved.
	OneShot Mode = iota

	// Persistent handlers receive every reply of a subscribe or monitor
	// stream and stay registered until released.
	Persistent
)

func (m Mode) String() string {
	if m == Persistent {
		return "persistent"
	}
	return "one-shot"
}

// Handler receives a decoded reply or an error, never both.
type Handler func(reply protocol.Reply, err error)

type entry struct {
	handler Handler
	mode    Mode
}

// Table maps correlation ids to pending handlers.
//
// A Table is not safe for concurrent use, the connection that owns it
// serialises access.
type Table struct {
	last    ID
	entries map[ID]entry
}

func NewTable() *Table {
	return &Table{
		entries: make(map[ID]entry),
	}
}

// Register stores h and returns its id. Ids start at 1 and increase
// monotonically, an id that is still live is never handed out again.
func (t *Table) Register(h Handler, mode Mode) ID {
	for {
		// Wrap around instead of overflowing, skipping 0 and live ids
		t.last++
		if t.last == 0 {
			continue
		}

		if _, live := t.entries[t.last]; !live {
			break
		}
	}

	t.entries[t.last] = entry{handler: h, mode: mode}

	return t.last
}

// Resolve returns the handler for id. One-shot entries are removed, so a
// one-shot handler is resolved at most once.
func (t *Table) Resolve(id ID) (Handler, bool) {
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}

	if e.mode == OneShot {
		delete(t.entries, id)
	}

	return e.handler, true
}

// Mode reports the mode id was registered with.
func (t *Table) Mode(id ID) (Mode, bool) {
	e, ok := t.entries[id]
	return e.mode, ok
}

// Release removes id regardless of its mode.
func (t *Table) Release(id ID) (Handler, bool) {
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}

	delete(t.entries, id)

	return e.handler, true
}

// DrainAll empties the table and returns every pending handler in
// registration order.
func (t *Table) DrainAll() []Handler {
	if len(t.entries) == 0 {
		return nil
	}

	ids := make([]ID, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = t.entries[id].handler
	}

	t.entries = make(map[ID]entry)

	return handlers
}

func (t *Table) Len() int {
	return len(t.entries)
}
