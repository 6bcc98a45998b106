package dispatch

import (
	"context"

	"github.com/domforge/domhost/abi"
	"github.com/domforge/domhost/engine"
	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/hostbridge"
	"github.com/domforge/domhost/registry"
	"github.com/domforge/domhost/schema"
)

// Resolver returns the live instance of a provider component, or nil
// if it has not been instantiated yet. A nil result during a start
// routine is a startup-ordering error, not a deferred-initialization
// protocol.
type Resolver func(id registry.ComponentID) *Instance

// BuildImports constructs the host functions backing one consumer's
// import slots from its resolved bindings. Guest-to-guest bindings
// re-enter the dispatcher; host bindings call the bridge function.
// Both paths share the same value contract.
func (d *Dispatcher) BuildImports(consumer *registry.Record, bindings map[string]registry.Binding, bridge *hostbridge.Bridge, resolve Resolver) ([]engine.HostFunc, error) {
	world := consumer.World()
	out := make([]engine.HostFunc, 0, len(world.Imports))

	for _, imp := range world.Imports {
		binding := bindings[imp.Name]
		sig := imp.Signature
		flat := abi.FlatSignature(sig)

		var fn func(ctx context.Context, call *engine.HostCall) error
		switch binding.Kind {
		case registry.BindingComponent:
			provider, export := binding.Provider, binding.Export
			slot := imp.Name
			fn = func(ctx context.Context, call *engine.HostCall) error {
				target := resolve(provider)
				if target == nil {
					return capture(ctx, errors.New(errors.PhaseCall, errors.KindNotFound).
						Component(string(provider)).
						Slot(slot).
						Detail("provider not instantiated; cross-instance calls from a start routine must follow instantiation order").
						Build())
				}
				args, err := liftArgs(call, slot, sig)
				if err != nil {
					return capture(ctx, err)
				}
				result, err := d.Invoke(ctx, target, export, args)
				if err != nil {
					return capture(ctx, err)
				}
				return capture(ctx, lowerResult(call, slot, sig, result))
			}
		case registry.BindingHost:
			hostFn, ok := bridge.Lookup(binding.Host)
			if !ok {
				return nil, errors.NotFound(errors.PhaseInstantiate, "host function", imp.Name)
			}
			slot := imp.Name
			fn = func(ctx context.Context, call *engine.HostCall) error {
				args, err := liftArgs(call, slot, sig)
				if err != nil {
					return capture(ctx, err)
				}
				result, err := hostFn.Call(ctx, args)
				if err != nil {
					return capture(ctx, errors.New(errors.PhaseCall, errors.KindTrap).
						Slot(slot).
						Detail("host function %q failed", hostFn.Name()).
						Cause(err).
						Build())
				}
				return capture(ctx, lowerResult(call, slot, sig, result))
			}
		default:
			return nil, errors.New(errors.PhaseInstantiate, errors.KindUnresolvedImport).
				Component(string(consumer.ID())).
				Slot(imp.Name).
				Detail("import slot is unbound").
				Build()
		}

		out = append(out, engine.HostFunc{
			Name:    imp.Name,
			Params:  flat.Params,
			Results: flat.Results,
			Fn:      fn,
		})
	}
	return out, nil
}

// liftArgs decodes the flat stack arguments out of the caller's
// memory into host values.
func liftArgs(call *engine.HostCall, slot string, sig schema.FunctionSignature) ([]any, error) {
	args := make([]any, len(sig.Params))
	for i, p := range sig.Params {
		v, err := abi.Lift(call.Memory, slot, p.Type, call.Stack[i])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// lowerResult encodes the result back into the caller's memory and
// stack slot.
func lowerResult(call *engine.HostCall, slot string, sig schema.FunctionSignature, result any) error {
	if sig.Result == nil {
		return nil
	}
	flat, err := abi.Lower(call.Memory, call.Alloc, slot, []string{"result"}, *sig.Result, result)
	if err != nil {
		return err
	}
	call.Stack[0] = flat
	return nil
}

// capture records a structured error on the active call state before
// it unwinds through guest frames as a trap.
func capture(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if s := stateFrom(ctx); s != nil {
		return s.capture(err)
	}
	return err
}
