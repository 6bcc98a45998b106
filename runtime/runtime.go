package runtime

import (
	"context"
	stderrors "errors"
	"os"

	"go.uber.org/zap"

	"github.com/domforge/domhost/dispatch"
	"github.com/domforge/domhost/engine"
	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/hostbridge"
	"github.com/domforge/domhost/linker"
	"github.com/domforge/domhost/registry"
	"github.com/domforge/domhost/schema"
)

// Runtime is the host facade: it owns the registry, the host bridge,
// the linker and the dispatcher, and instantiates finalized
// composition graphs into sessions.
type Runtime struct {
	reg        *registry.Registry
	bridge     *hostbridge.Bridge
	linker     *linker.Linker
	dispatcher *dispatch.Dispatcher
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	dispatchOpts []dispatch.Option
}

// WithMaxCallDepth bounds reentrant call chains per top-level
// invocation.
func WithMaxCallDepth(n int) Option {
	return func(o *options) {
		o.dispatchOpts = append(o.dispatchOpts, dispatch.WithMaxDepth(n))
	}
}

// New creates a runtime with an empty registry and bridge.
func New(opts ...Option) *Runtime {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	reg := registry.New()
	bridge := hostbridge.New()
	return &Runtime{
		reg:        reg,
		bridge:     bridge,
		linker:     linker.New(reg, bridge),
		dispatcher: dispatch.New(o.dispatchOpts...),
	}
}

// Registry returns the component registry.
func (r *Runtime) Registry() *registry.Registry { return r.reg }

// Bridge returns the host bridge.
func (r *Runtime) Bridge() *hostbridge.Bridge { return r.bridge }

// Linker returns the linker for explicit import binding.
func (r *Runtime) Linker() *linker.Linker { return r.linker }

// Dispatcher returns the call dispatcher.
func (r *Runtime) Dispatcher() *dispatch.Dispatcher { return r.dispatcher }

// LoadComponent registers a component binary under an id. An empty id
// defaults to the binary's world name.
func (r *Runtime) LoadComponent(id string, binary []byte, source string) (registry.ComponentID, error) {
	return r.reg.Register(id, binary, source)
}

// LoadComponentFile registers a component binary read from disk.
func (r *Runtime) LoadComponentFile(id, path string) (registry.ComponentID, error) {
	binary, err := os.ReadFile(path)
	if err != nil {
		return "", errors.UnreadableBinary(path, err)
	}
	return r.reg.Register(id, binary, path)
}

// ExposeHost registers a host-native function for binding.
func (r *Runtime) ExposeHost(name string, sig schema.FunctionSignature, impl hostbridge.Func) (hostbridge.FuncID, error) {
	return r.bridge.Expose(name, sig, impl)
}

// InstantiateAll builds one sandbox per component of a finalized
// graph, in dependency order, and returns the live session. If any
// instantiation fails, the components already built are torn down in
// LIFO order before the error is returned.
func (r *Runtime) InstantiateAll(ctx context.Context, graph *linker.CompositionGraph) (*Session, error) {
	s := &Session{
		dispatcher: r.dispatcher,
		instances:  make(map[registry.ComponentID]*dispatch.Instance),
	}

	for _, id := range graph.Order() {
		rec, ok := graph.Record(id)
		if !ok {
			s.teardown(ctx)
			return nil, errors.NotFound(errors.PhaseInstantiate, "component", string(id))
		}

		imports, err := r.dispatcher.BuildImports(rec, graph.Bindings(id), graph.Bridge(), s.resolve)
		if err != nil {
			s.teardown(ctx)
			return nil, err
		}

		sandbox, err := engine.NewSandbox(ctx, engine.Config{
			Name:    string(id),
			Binary:  rec.Binary(),
			Imports: imports,
		})
		if err != nil {
			s.teardown(ctx)
			return nil, asInstantiateError(string(id), err)
		}

		s.add(id, dispatch.NewInstance(id, rec, sandbox))
		Logger().Debug("component instantiated", zap.String("component", string(id)))
	}

	Logger().Info("session ready", zap.Int("instances", len(s.order)))
	return s, nil
}

// asInstantiateError keeps already-structured errors and classifies
// everything else, start-routine traps included, as StartupTrap.
func asInstantiateError(component string, err error) error {
	var structured *errors.Error
	if stderrors.As(err, &structured) && structured.Phase != errors.PhaseCall {
		return err
	}
	return errors.StartupTrap(component, err)
}
