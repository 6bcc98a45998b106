package linker

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/hostbridge"
	"github.com/domforge/domhost/linker/internal/graph"
	"github.com/domforge/domhost/registry"
	"github.com/domforge/domhost/schema"
)

// Linker resolves each component's import slots against other
// components' exports or host functions. Every binding is explicit;
// imports are never auto-wired by name.
type Linker struct {
	reg    *registry.Registry
	bridge *hostbridge.Bridge
}

// New creates a linker over a registry and a host bridge.
func New(reg *registry.Registry, bridge *hostbridge.Bridge) *Linker {
	return &Linker{reg: reg, bridge: bridge}
}

// Bind satisfies one import slot of the consumer with an export of the
// provider, after verifying exact structural signature compatibility.
func (l *Linker) Bind(consumer registry.ComponentID, importName string, provider registry.ComponentID, exportName string) error {
	consumerRec, ok := l.reg.Record(consumer)
	if !ok {
		return errors.NotFound(errors.PhaseLink, "component", string(consumer))
	}
	required, ok := consumerRec.World().Import(importName)
	if !ok {
		return errors.UnknownImport(string(consumer), importName)
	}

	providerRec, ok := l.reg.Record(provider)
	if !ok {
		return errors.NotFound(errors.PhaseLink, "component", string(provider))
	}
	provided, ok := providerRec.World().Export(exportName)
	if !ok {
		return errors.UnknownExport(string(provider), exportName)
	}

	if !schema.Compatible(required, provided) {
		return errors.SignatureMismatch(string(consumer), importName, fmt.Sprintf(
			"import requires %s, %s.%s provides %s", required, provider, exportName, provided))
	}

	if err := consumerRec.SetBinding(importName, registry.Binding{
		Kind:     registry.BindingComponent,
		Provider: provider,
		Export:   exportName,
	}); err != nil {
		return err
	}

	Logger().Debug("bound import to component export",
		zap.String("consumer", string(consumer)),
		zap.String("import", importName),
		zap.String("provider", string(provider)),
		zap.String("export", exportName))
	return nil
}

// BindHost satisfies one import slot of the consumer with a host
// function exposed through the bridge.
func (l *Linker) BindHost(consumer registry.ComponentID, importName string, fn hostbridge.FuncID) error {
	consumerRec, ok := l.reg.Record(consumer)
	if !ok {
		return errors.NotFound(errors.PhaseLink, "component", string(consumer))
	}
	required, ok := consumerRec.World().Import(importName)
	if !ok {
		return errors.UnknownImport(string(consumer), importName)
	}

	hostFn, ok := l.bridge.Lookup(fn)
	if !ok {
		return errors.NotFound(errors.PhaseLink, "host function", fmt.Sprintf("#%d", fn))
	}
	if !schema.Compatible(required, hostFn.Signature()) {
		return errors.SignatureMismatch(string(consumer), importName, fmt.Sprintf(
			"import requires %s, host function %q provides %s", required, hostFn.Name(), hostFn.Signature()))
	}

	if err := consumerRec.SetBinding(importName, registry.Binding{
		Kind: registry.BindingHost,
		Host: fn,
	}); err != nil {
		return err
	}

	Logger().Debug("bound import to host function",
		zap.String("consumer", string(consumer)),
		zap.String("import", importName),
		zap.String("function", hostFn.Name()))
	return nil
}

// Finalize checks that every import slot of every registered component
// is bound, derives the instantiation order, freezes the records and
// returns the immutable composition graph.
func (l *Linker) Finalize() (*CompositionGraph, error) {
	ids := l.reg.IDs()

	var unresolved []errors.UnresolvedSlot
	for _, id := range ids {
		rec, _ := l.reg.Record(id)
		for _, slot := range rec.Unbound() {
			unresolved = append(unresolved, errors.UnresolvedSlot{
				Component: string(id),
				Import:    slot,
			})
		}
	}
	if len(unresolved) > 0 {
		return nil, &errors.UnresolvedImportsError{Slots: unresolved}
	}

	g := graph.New[registry.ComponentID]()
	records := make(map[registry.ComponentID]*registry.Record, len(ids))
	bindings := make(map[registry.ComponentID]map[string]registry.Binding, len(ids))
	for _, id := range ids {
		rec, _ := l.reg.Record(id)
		records[id] = rec
		g.AddNode(id)

		slots := make(map[string]registry.Binding, len(rec.World().Imports))
		for _, imp := range rec.World().Imports {
			b, _ := rec.Binding(imp.Name)
			slots[imp.Name] = b
			if b.Kind == registry.BindingComponent {
				g.AddEdge(id, b.Provider)
			}
		}
		bindings[id] = slots
	}

	order, cycle := g.TopoSort()
	if cycle != nil {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = string(id)
		}
		return nil, errors.CyclicDependency(names)
	}

	for _, id := range ids {
		records[id].Freeze()
	}

	Logger().Info("composition graph finalized",
		zap.Int("components", len(order)))

	return &CompositionGraph{
		order:    order,
		records:  records,
		bindings: bindings,
		bridge:   l.bridge,
	}, nil
}

// CompositionGraph is an immutable, fully-resolved composition: all
// import slots bound, instantiation order derived. One graph can be
// instantiated any number of times into independent sessions.
type CompositionGraph struct {
	order    []registry.ComponentID
	records  map[registry.ComponentID]*registry.Record
	bindings map[registry.ComponentID]map[string]registry.Binding
	bridge   *hostbridge.Bridge
}

// Order returns component ids in instantiation order, providers first.
func (g *CompositionGraph) Order() []registry.ComponentID {
	out := make([]registry.ComponentID, len(g.order))
	copy(out, g.order)
	return out
}

// Record returns the frozen record of one component in the graph.
func (g *CompositionGraph) Record(id registry.ComponentID) (*registry.Record, bool) {
	rec, ok := g.records[id]
	return rec, ok
}

// Bindings returns the resolved bindings of one component's imports.
func (g *CompositionGraph) Bindings(id registry.ComponentID) map[string]registry.Binding {
	out := make(map[string]registry.Binding, len(g.bindings[id]))
	for k, v := range g.bindings[id] {
		out[k] = v
	}
	return out
}

// Bridge returns the host bridge the graph was linked against.
func (g *CompositionGraph) Bridge() *hostbridge.Bridge {
	return g.bridge
}
