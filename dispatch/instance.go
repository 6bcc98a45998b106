package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/domforge/domhost/engine"
	"github.com/domforge/domhost/registry"
)

// Instance is one live component: a frozen record plus its exclusive
// sandbox. Cross-instance data only ever passes by value through the
// dispatcher.
type Instance struct {
	id       registry.ComponentID
	record   *registry.Record
	sandbox  *engine.Sandbox
	mu       sync.Mutex
	poisoned atomic.Bool
}

// NewInstance wraps a sandbox built for a component record.
func NewInstance(id registry.ComponentID, record *registry.Record, sandbox *engine.Sandbox) *Instance {
	return &Instance{id: id, record: record, sandbox: sandbox}
}

// ID returns the component id this instance was built from.
func (i *Instance) ID() registry.ComponentID { return i.id }

// Record returns the frozen component record.
func (i *Instance) Record() *registry.Record { return i.record }

// Sandbox returns the instance's execution sandbox.
func (i *Instance) Sandbox() *engine.Sandbox { return i.sandbox }

// Poisoned reports whether a trap has left the instance's guest
// memory in an unspecified state. A poisoned instance rejects further
// calls; re-instantiate to recover.
func (i *Instance) Poisoned() bool { return i.poisoned.Load() }

func (i *Instance) poison() { i.poisoned.Store(true) }

// Close tears down the instance's sandbox.
func (i *Instance) Close(ctx context.Context) error {
	return i.sandbox.Close(ctx)
}
