package registry

import (
	"sync"

	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/hostbridge"
	"github.com/domforge/domhost/schema"
	"github.com/domforge/domhost/wasm"
)

// ComponentID identifies one registered component.
type ComponentID string

// BindingKind discriminates how an import slot is satisfied.
type BindingKind uint8

const (
	// BindingUnbound marks an import slot not yet bound.
	BindingUnbound BindingKind = iota
	// BindingComponent binds the slot to another component's export.
	BindingComponent
	// BindingHost binds the slot to a host function.
	BindingHost
)

// Binding records how one import slot is satisfied.
type Binding struct {
	Kind     BindingKind
	Provider ComponentID // BindingComponent
	Export   string      // BindingComponent
	Host     hostbridge.FuncID
}

// Record owns one registered component: its binary, decoded module,
// declared world and the binding state of its import slots. Bindings
// are mutated only by the linker and freeze once a graph containing
// the record is finalized.
type Record struct {
	mu       sync.RWMutex
	id       ComponentID
	source   string
	binary   []byte
	module   *wasm.Module
	world    *schema.World
	bindings map[string]Binding
	frozen   bool
}

// ID returns the component id.
func (r *Record) ID() ComponentID { return r.id }

// Source returns the provenance string given at registration.
func (r *Record) Source() string { return r.source }

// World returns the declared world.
func (r *Record) World() *schema.World { return r.world }

// Module returns the decoded core module.
func (r *Record) Module() *wasm.Module { return r.module }

// Binary returns the raw component bytes.
func (r *Record) Binary() []byte { return r.binary }

// Binding returns the binding state of one import slot.
func (r *Record) Binding(importName string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[importName]
	return b, ok
}

// SetBinding updates one import slot. It fails on frozen records and
// on import names the world does not declare.
func (r *Record) SetBinding(importName string, b Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.Frozen(string(r.id))
	}
	if _, ok := r.bindings[importName]; !ok {
		return errors.UnknownImport(string(r.id), importName)
	}
	r.bindings[importName] = b
	return nil
}

// Unbound returns the still-unbound import slots in world declaration
// order.
func (r *Record) Unbound() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, imp := range r.world.Imports {
		if r.bindings[imp.Name].Kind == BindingUnbound {
			out = append(out, imp.Name)
		}
	}
	return out
}

// Freeze marks the record immutable. Re-register the component to
// link it differently.
func (r *Record) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the record has been frozen.
func (r *Record) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
