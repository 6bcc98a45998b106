package registry

import (
	"sync"

	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/schema"
	"github.com/domforge/domhost/wasm"
)

// WorldSection is the custom section a component binary embeds its
// world text in. The world is extracted statically, before any guest
// code runs.
const WorldSection = "component-world"

// Registry holds one Record per registered component.
type Registry struct {
	mu      sync.RWMutex
	records map[ComponentID]*Record
	order   []ComponentID
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[ComponentID]*Record)}
}

// Register decodes and validates a component binary and creates its
// record with every import slot unbound. The id defaults to the
// declared world's name when empty. Registering an existing id
// replaces the old record with a fresh, unbound one.
func (reg *Registry) Register(id string, binary []byte, source string) (ComponentID, error) {
	module, err := wasm.Decode(binary)
	if err != nil {
		return "", errors.UnreadableBinary(source, err)
	}

	worldText, ok := module.Custom(WorldSection)
	if !ok {
		return "", errors.UnreadableBinary(source, errors.InvalidInput(
			errors.PhaseRegister, "no "+WorldSection+" custom section"))
	}
	world, err := schema.ParseWorld(worldText)
	if err != nil {
		return "", err
	}

	if id == "" {
		id = world.Name
	}
	if err := verifyModule(id, world, module); err != nil {
		return "", err
	}

	bindings := make(map[string]Binding, len(world.Imports))
	for _, imp := range world.Imports {
		bindings[imp.Name] = Binding{Kind: BindingUnbound}
	}

	rec := &Record{
		id:       ComponentID(id),
		source:   source,
		binary:   binary,
		module:   module,
		world:    world,
		bindings: bindings,
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, replaced := reg.records[rec.id]; !replaced {
		reg.order = append(reg.order, rec.id)
	}
	reg.records[rec.id] = rec
	return rec.id, nil
}

// Record returns the record registered under an id.
func (reg *Registry) Record(id ComponentID) (*Record, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rec, ok := reg.records[id]
	return rec, ok
}

// IDs returns all component ids in registration order.
func (reg *Registry) IDs() []ComponentID {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]ComponentID, len(reg.order))
	copy(out, reg.order)
	return out
}
