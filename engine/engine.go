package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	domhost "github.com/domforge/domhost"
	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/wasm"
)

// HostCall is the view a host function gets of the calling guest: the
// flat argument/result stack plus the caller's memory and allocator.
type HostCall struct {
	// Stack holds arguments on entry; results are written back in
	// place starting at index 0.
	Stack  []uint64
	Memory domhost.Memory
	Alloc  domhost.Allocator
}

// HostFunc is one function installed into a sandbox's "imports" core
// module. A returned error aborts the guest call that triggered it.
type HostFunc struct {
	Name    string
	Params  []wasm.ValType
	Results []wasm.ValType
	Fn      func(ctx context.Context, call *HostCall) error
}

// Config describes one sandbox to build.
type Config struct {
	Name    string
	Binary  []byte
	Imports []HostFunc
}

// Sandbox is one isolated execution environment: its own wazero
// runtime, so no compiled code, memory or table is shared with any
// other sandbox.
type Sandbox struct {
	runtime wazero.Runtime
	module  api.Module
	mem     domhost.Memory
	alloc   domhost.Allocator
}

// NewSandbox compiles and instantiates one component binary in a fresh
// runtime. The wasm start section, if present, runs here; a trapping
// start routine fails instantiation.
func NewSandbox(ctx context.Context, cfg Config) (*Sandbox, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())

	if len(cfg.Imports) > 0 {
		builder := r.NewHostModuleBuilder("imports")
		for _, hf := range cfg.Imports {
			hf := hf
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
					call := &HostCall{Stack: stack}
					if m := mod.Memory(); m != nil {
						call.Memory = &guestMemory{mem: m}
					}
					if fn := mod.ExportedFunction("alloc"); fn != nil {
						call.Alloc = &guestAlloc{fn: fn}
					}
					if err := hf.Fn(ctx, call); err != nil {
						panic(err)
					}
				}), apiValueTypes(hf.Params), apiValueTypes(hf.Results)).
				Export(hf.Name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			_ = r.Close(ctx)
			return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindInvalidInput, err,
				"build imports module for "+cfg.Name)
		}
	}

	compiled, err := r.CompileModule(ctx, cfg.Binary)
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.UnreadableBinary(cfg.Name, err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName(cfg.Name).
		WithStartFunctions())
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}

	s := &Sandbox{runtime: r, module: mod}
	if m := mod.Memory(); m != nil {
		s.mem = &guestMemory{mem: m}
	}
	if fn := mod.ExportedFunction("alloc"); fn != nil {
		s.alloc = &guestAlloc{fn: fn}
	}

	Logger().Debug("sandbox instantiated", zap.String("name", cfg.Name))
	return s, nil
}

// Call invokes an exported function with flat core arguments. Traps
// surface as errors, never as panics.
func (s *Sandbox) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := s.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseCall, "export", name)
	}
	return fn.Call(ctx, args...)
}

// Memory returns the sandbox's exported linear memory, or nil.
func (s *Sandbox) Memory() domhost.Memory { return s.mem }

// Allocator returns the sandbox's exported allocator, or nil.
func (s *Sandbox) Allocator() domhost.Allocator { return s.alloc }

// Close releases the sandbox's runtime and all its resources.
func (s *Sandbox) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}

func apiValueTypes(ts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		switch t {
		case wasm.ValI64:
			out[i] = api.ValueTypeI64
		case wasm.ValF32:
			out[i] = api.ValueTypeF32
		case wasm.ValF64:
			out[i] = api.ValueTypeF64
		default:
			out[i] = api.ValueTypeI32
		}
	}
	return out
}
