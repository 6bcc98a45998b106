package dispatch

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/domforge/domhost/abi"
	"github.com/domforge/domhost/engine"
	domerrors "github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/hostbridge"
	"github.com/domforge/domhost/internal/testguest"
	"github.com/domforge/domhost/registry"
	"github.com/domforge/domhost/resource"
	"github.com/domforge/domhost/schema"
)

// harness wires instances together the way the runtime does, without
// pulling the whole runtime into these tests.
type harness struct {
	t         *testing.T
	d         *Dispatcher
	reg       *registry.Registry
	bridge    *hostbridge.Bridge
	instances map[registry.ComponentID]*Instance
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return &harness{
		t:         t,
		d:         New(opts...),
		reg:       registry.New(),
		bridge:    hostbridge.New(),
		instances: make(map[registry.ComponentID]*Instance),
	}
}

func (h *harness) resolve(id registry.ComponentID) *Instance {
	return h.instances[id]
}

// instantiate registers a binary and builds its instance with the
// given bindings. Providers must be instantiated first.
func (h *harness) instantiate(id string, binary []byte, bindings map[string]registry.Binding) *Instance {
	h.t.Helper()
	ctx := context.Background()

	cid, err := h.reg.Register(id, binary, id+".wasm")
	if err != nil {
		h.t.Fatalf("register %s: %v", id, err)
	}
	rec, _ := h.reg.Record(cid)
	if bindings == nil {
		bindings = map[string]registry.Binding{}
	}

	imports, err := h.d.BuildImports(rec, bindings, h.bridge, h.resolve)
	if err != nil {
		h.t.Fatalf("build imports for %s: %v", id, err)
	}
	sandbox, err := engine.NewSandbox(ctx, engine.Config{Name: id, Binary: binary, Imports: imports})
	if err != nil {
		h.t.Fatalf("sandbox %s: %v", id, err)
	}
	h.t.Cleanup(func() { sandbox.Close(context.Background()) })

	inst := NewInstance(cid, rec, sandbox)
	h.instances[cid] = inst
	return inst
}

func wantKind(t *testing.T, err error, phase domerrors.Phase, kind domerrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	if !stderrors.Is(err, &domerrors.Error{Phase: phase, Kind: kind}) {
		t.Fatalf("error = %v, want %s/%s", err, phase, kind)
	}
}

func TestInvokeHello(t *testing.T) {
	h := newHarness(t)
	inst := h.instantiate("hello", testguest.Hello(), nil)

	out, err := h.d.Invoke(context.Background(), inst, "test", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "Hello from Go!" {
		t.Errorf("result = %q", out)
	}
}

func TestInvokeArityCheckedBeforeGuestCode(t *testing.T) {
	h := newHarness(t)
	inst := h.instantiate("counter", testguest.Counter(), nil)
	ctx := context.Background()

	_, err := h.d.Invoke(ctx, inst, "bump", []any{uint32(1)})
	wantKind(t, err, domerrors.PhaseCall, domerrors.KindArity)

	// The failed call must not have executed the guest: the first
	// real bump still returns 1.
	out, err := h.d.Invoke(ctx, inst, "bump", nil)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if out != uint32(1) {
		t.Errorf("counter = %v, want 1 (arity failure had side effects)", out)
	}
}

func TestInvokeArgumentTypeCheckedBeforeGuestCode(t *testing.T) {
	h := newHarness(t)
	greeter := h.instantiate("greeter", testguest.Greeter(), nil)
	ctx := context.Background()

	_, err := h.d.Invoke(ctx, greeter, "greet", []any{42})
	wantKind(t, err, domerrors.PhaseCall, domerrors.KindArgumentType)

	// still usable: the malformed call never reached the guest
	out, err := h.d.Invoke(ctx, greeter, "greet", []any{"Ada"})
	if err != nil {
		t.Fatalf("greet: %v", err)
	}
	if out != "Hello, Ada" {
		t.Errorf("result = %q", out)
	}
}

func TestInvokeUnknownExport(t *testing.T) {
	h := newHarness(t)
	inst := h.instantiate("hello", testguest.Hello(), nil)

	_, err := h.d.Invoke(context.Background(), inst, "ghost", nil)
	wantKind(t, err, domerrors.PhaseLink, domerrors.KindUnknownExport)
}

func TestTrapIsIsolatedAndPoisons(t *testing.T) {
	h := newHarness(t)
	inst := h.instantiate("trapper", testguest.Trapper(), nil)
	ctx := context.Background()

	_, err := h.d.Invoke(ctx, inst, "boom", nil)
	wantKind(t, err, domerrors.PhaseCall, domerrors.KindTrap)

	if !inst.Poisoned() {
		t.Error("instance not poisoned after trap")
	}
	_, err = h.d.Invoke(ctx, inst, "boom", nil)
	wantKind(t, err, domerrors.PhaseCall, domerrors.KindPoisoned)
}

func TestOutOfBoundsAccessIsTrapNotFault(t *testing.T) {
	h := newHarness(t)
	inst := h.instantiate("oob", testguest.OutOfBounds(), nil)

	_, err := h.d.Invoke(context.Background(), inst, "poke", nil)
	wantKind(t, err, domerrors.PhaseCall, domerrors.KindTrap)
}

func TestCrossComponentGreet(t *testing.T) {
	h := newHarness(t)
	greeter := h.instantiate("greeter", testguest.Greeter(), nil)
	caller := h.instantiate("caller", testguest.Caller(), map[string]registry.Binding{
		"greet": {Kind: registry.BindingComponent, Provider: greeter.ID(), Export: "greet"},
	})

	out, err := h.d.Invoke(context.Background(), caller, "call-greet", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "Hello, world" {
		t.Errorf("result = %q, want %q", out, "Hello, world")
	}
}

func TestHostBoundImport(t *testing.T) {
	h := newHarness(t)
	str := schema.String()
	id, err := h.bridge.Expose("greet", schema.FunctionSignature{
		Params: []schema.Param{{Name: "name", Type: schema.String()}},
		Result: &str,
	}, func(_ context.Context, args []any) (any, error) {
		return "hi " + args[0].(string), nil
	})
	if err != nil {
		t.Fatalf("expose: %v", err)
	}

	caller := h.instantiate("caller", testguest.Caller(), map[string]registry.Binding{
		"greet": {Kind: registry.BindingHost, Host: id},
	})

	out, err := h.d.Invoke(context.Background(), caller, "call-greet", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "hi world" {
		t.Errorf("result = %q", out)
	}
}

func TestHostFunctionErrorSurfacesAsTrap(t *testing.T) {
	h := newHarness(t)
	str := schema.String()
	id, _ := h.bridge.Expose("greet", schema.FunctionSignature{
		Params: []schema.Param{{Name: "name", Type: schema.String()}},
		Result: &str,
	}, func(context.Context, []any) (any, error) {
		return nil, stderrors.New("backend unavailable")
	})

	caller := h.instantiate("caller", testguest.Caller(), map[string]registry.Binding{
		"greet": {Kind: registry.BindingHost, Host: id},
	})

	_, err := h.d.Invoke(context.Background(), caller, "call-greet", nil)
	wantKind(t, err, domerrors.PhaseCall, domerrors.KindTrap)
}

// Unbounded reentrancy: ping forwards to a host pong that calls ping
// again. The depth limit must stop the chain with a structured error.
func TestReentrancyDepthLimit(t *testing.T) {
	h := newHarness(t, WithMaxDepth(16))
	u32 := schema.U32()
	var recurser *Instance
	id, _ := h.bridge.Expose("pong", schema.FunctionSignature{
		Params: []schema.Param{{Name: "n", Type: schema.U32()}},
		Result: &u32,
	}, func(ctx context.Context, args []any) (any, error) {
		return h.d.Invoke(ctx, recurser, "ping", []any{args[0]})
	})

	recurser = h.instantiate("recurser", testguest.Recurser(), map[string]registry.Binding{
		"pong": {Kind: registry.BindingHost, Host: id},
	})

	_, err := h.d.Invoke(context.Background(), recurser, "ping", []any{uint32(0)})
	wantKind(t, err, domerrors.PhaseCall, domerrors.KindStackOverflow)
}

// Handles cross the boundary as opaque u32s; the host value they name
// stays in the host-side table.
func TestHandleRoundTrip(t *testing.T) {
	h := newHarness(t)
	inst := h.instantiate("keeper", testguest.Keeper(), nil)

	tbl := resource.NewTable()
	defer tbl.Close()
	handle := tbl.Insert(1, "host secret")

	out, err := h.d.Invoke(context.Background(), inst, "keep", []any{handle})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	back, ok := out.(abi.Handle)
	if !ok || back != handle {
		t.Fatalf("result = %v (%T), want handle %d", out, out, handle)
	}
	v, ok := tbl.Get(back)
	if !ok || v != "host secret" {
		t.Errorf("table lookup = %v, %v", v, ok)
	}
}

// Bounded reentrancy below the limit must complete normally.
func TestBoundedReentrancySucceeds(t *testing.T) {
	h := newHarness(t, WithMaxDepth(64))
	u32 := schema.U32()
	var recurser *Instance
	id, _ := h.bridge.Expose("pong", schema.FunctionSignature{
		Params: []schema.Param{{Name: "n", Type: schema.U32()}},
		Result: &u32,
	}, func(ctx context.Context, args []any) (any, error) {
		n := args[0].(uint32)
		if n >= 5 {
			return n, nil
		}
		return h.d.Invoke(ctx, recurser, "ping", []any{n + 1})
	})

	recurser = h.instantiate("recurser", testguest.Recurser(), map[string]registry.Binding{
		"pong": {Kind: registry.BindingHost, Host: id},
	})

	out, err := h.d.Invoke(context.Background(), recurser, "ping", []any{uint32(0)})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != uint32(5) {
		t.Errorf("result = %v, want 5", out)
	}
}
