package resource

import (
	"sync"

	"github.com/domforge/domhost/abi"
)

// Dropper is implemented by values that need cleanup when their handle
// is removed from a table.
type Dropper interface {
	Drop()
}

// Table maps opaque handles to host-owned values. Handles cross the
// guest boundary as plain u32s; the values they name never leave the
// host. Handle 0 is never issued and always invalid.
type Table struct {
	mu     sync.RWMutex
	slots  map[abi.Handle]slot
	next   abi.Handle
	closed bool
}

type slot struct {
	value  any
	typeID uint32
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		slots: make(map[abi.Handle]slot),
		next:  1,
	}
}

// Insert stores a value and returns its handle. A closed table returns
// the invalid handle 0.
func (t *Table) Insert(typeID uint32, value any) abi.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}
	h := t.next
	t.next++
	t.slots[h] = slot{value: value, typeID: typeID}
	return h
}

// Get retrieves a value by handle.
func (t *Table) Get(h abi.Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.slots[h]
	return s.value, ok
}

// GetTyped retrieves a value only if it was inserted under the expected
// type id. Handles forged or guessed by a guest fail this check unless
// they happen to name a live slot of the right type.
func (t *Table) GetTyped(h abi.Handle, typeID uint32) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.slots[h]
	if !ok || s.typeID != typeID {
		return nil, false
	}
	return s.value, true
}

// Remove drops a handle and returns its value. Values implementing
// Dropper are cleaned up.
func (t *Table) Remove(h abi.Handle) (any, bool) {
	t.mu.Lock()
	s, ok := t.slots[h]
	if ok {
		delete(t.slots, h)
	}
	t.mu.Unlock()

	if !ok {
		return nil, false
	}
	if d, ok := s.value.(Dropper); ok {
		d.Drop()
	}
	return s.value, true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.slots)
}

// Close drops every live handle and rejects further inserts. It is
// idempotent.
func (t *Table) Close() error {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[abi.Handle]slot)
	t.closed = true
	t.mu.Unlock()

	for _, s := range slots {
		if d, ok := s.value.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}
