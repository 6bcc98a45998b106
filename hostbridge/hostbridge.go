package hostbridge

import (
	"context"
	"sync"

	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/schema"
)

// FuncID identifies one exposed host function.
type FuncID uint32

// Func is a host-side implementation. It receives decoded argument
// values in declaration order and returns the result value (nil for a
// unit result). It conforms to the same value-in/value-out contract as
// a guest export, so the linker and dispatcher treat host functions
// identically to guest exports.
type Func func(ctx context.Context, args []any) (any, error)

// HostFunction pairs a declared signature with its implementation.
type HostFunction struct {
	id   FuncID
	name string
	sig  schema.FunctionSignature
	impl Func
}

// ID returns the function's id.
func (f *HostFunction) ID() FuncID { return f.id }

// Name returns the name the function was exposed under.
func (f *HostFunction) Name() string { return f.name }

// Signature returns the declared signature.
func (f *HostFunction) Signature() schema.FunctionSignature { return f.sig }

// Call invokes the implementation.
func (f *HostFunction) Call(ctx context.Context, args []any) (any, error) {
	return f.impl(ctx, args)
}

// Bridge is the set of host-native functions available for binding.
type Bridge struct {
	mu     sync.RWMutex
	funcs  []*HostFunction
	byName map[string]FuncID
}

// New creates an empty bridge.
func New() *Bridge {
	return &Bridge{byName: make(map[string]FuncID)}
}

// Expose registers a host function under a name. Names are unique per
// bridge.
func (b *Bridge) Expose(name string, sig schema.FunctionSignature, impl Func) (FuncID, error) {
	if name == "" {
		return 0, errors.InvalidInput(errors.PhaseHost, "host function name is empty")
	}
	if impl == nil {
		return 0, errors.InvalidInput(errors.PhaseHost, "host function implementation is nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byName[name]; exists {
		return 0, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Slot(name).
			Detail("host function %q already exposed", name).
			Build()
	}

	id := FuncID(len(b.funcs))
	b.funcs = append(b.funcs, &HostFunction{id: id, name: name, sig: sig, impl: impl})
	b.byName[name] = id
	return id, nil
}

// Lookup returns the host function with the given id.
func (b *Bridge) Lookup(id FuncID) (*HostFunction, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(id) >= len(b.funcs) {
		return nil, false
	}
	return b.funcs[id], true
}

// ByName returns the id exposed under a name.
func (b *Bridge) ByName(name string) (FuncID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byName[name]
	return id, ok
}
