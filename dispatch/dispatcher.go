package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/domforge/domhost/abi"
	"github.com/domforge/domhost/errors"
)

// DefaultMaxDepth bounds reentrant cross-instance call chains per
// top-level invocation.
const DefaultMaxDepth = 64

// Dispatcher executes typed calls across the host/guest boundary.
type Dispatcher struct {
	maxDepth int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxDepth overrides the reentrancy depth limit.
func WithMaxDepth(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// New creates a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// callState tracks one top-level invocation, including every nested
// reentrant call made on its behalf. It rides the context through the
// engine into import closures.
type callState struct {
	depth int
	err   error // first structured error raised inside a nested frame
}

type callStateKey struct{}

func stateFrom(ctx context.Context) *callState {
	s, _ := ctx.Value(callStateKey{}).(*callState)
	return s
}

// capture records the first structured error of a call chain so it
// survives the trap unwind through intermediate guest frames.
func (s *callState) capture(err error) error {
	if s.err == nil {
		s.err = err
	}
	return err
}

// Invoke calls an export of an instance with host values, returning
// the decoded result value (nil for a unit result).
//
// Arity and argument types are validated host-side before anything
// reaches guest memory. Top-level invocations on one instance are
// serialized; nested reentrant calls made while one is running share
// its call state and bypass the lock.
func (d *Dispatcher) Invoke(ctx context.Context, inst *Instance, exportName string, args []any) (any, error) {
	if inst.Poisoned() {
		return nil, errors.Poisoned(string(inst.id))
	}

	sig, ok := inst.record.World().Export(exportName)
	if !ok {
		return nil, errors.UnknownExport(string(inst.id), exportName)
	}
	if len(args) != len(sig.Params) {
		return nil, errors.Arity(exportName, len(sig.Params), len(args))
	}
	for i, p := range sig.Params {
		if err := abi.Check(exportName, []string{p.Name}, p.Type, args[i]); err != nil {
			return nil, err
		}
	}

	state := stateFrom(ctx)
	if state == nil {
		state = &callState{}
		ctx = context.WithValue(ctx, callStateKey{}, state)
		inst.mu.Lock()
		defer inst.mu.Unlock()
	}

	state.depth++
	defer func() { state.depth-- }()
	if state.depth > d.maxDepth {
		return nil, state.capture(errors.StackOverflow(d.maxDepth))
	}

	mem := inst.sandbox.Memory()
	alloc := inst.sandbox.Allocator()
	flat := make([]uint64, len(args))
	for i, p := range sig.Params {
		v, err := abi.Lower(mem, alloc, exportName, []string{p.Name}, p.Type, args[i])
		if err != nil {
			return nil, state.capture(err)
		}
		flat[i] = v
	}

	Logger().Debug("invoking export",
		zap.String("component", string(inst.id)),
		zap.String("export", exportName),
		zap.Int("depth", state.depth))

	results, err := inst.sandbox.Call(ctx, exportName, flat...)
	if err != nil {
		inst.poison()
		if state.err != nil {
			return nil, state.err
		}
		return nil, state.capture(errors.Trap(string(inst.id), exportName, err))
	}

	if sig.Result == nil {
		return nil, nil
	}
	out, err := abi.Lift(mem, exportName, *sig.Result, results[0])
	if err != nil {
		return nil, state.capture(err)
	}
	return out, nil
}
