package linker

import (
	"context"
	stderrors "errors"
	"testing"

	domerrors "github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/hostbridge"
	"github.com/domforge/domhost/internal/testguest"
	"github.com/domforge/domhost/registry"
	"github.com/domforge/domhost/schema"
)

func setup(t *testing.T) (*registry.Registry, *hostbridge.Bridge, *Linker) {
	t.Helper()
	reg := registry.New()
	bridge := hostbridge.New()
	return reg, bridge, New(reg, bridge)
}

func mustRegister(t *testing.T, reg *registry.Registry, id string, binary []byte) registry.ComponentID {
	t.Helper()
	got, err := reg.Register(id, binary, id+".wasm")
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return got
}

func TestBindComponentExport(t *testing.T) {
	reg, _, l := setup(t)
	a := mustRegister(t, reg, "a", testguest.Caller())
	b := mustRegister(t, reg, "b", testguest.Greeter())

	if err := l.Bind(a, "greet", b, "greet"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	rec, _ := reg.Record(a)
	binding, _ := rec.Binding("greet")
	if binding.Kind != registry.BindingComponent || binding.Provider != b || binding.Export != "greet" {
		t.Errorf("binding = %+v", binding)
	}
}

func TestBindErrors(t *testing.T) {
	reg, bridge, l := setup(t)
	a := mustRegister(t, reg, "a", testguest.Caller())
	b := mustRegister(t, reg, "b", testguest.Greeter())
	h := mustRegister(t, reg, "h", testguest.Hello())

	u32 := schema.U32()
	wrongSig, err := bridge.Expose("wrong", schema.FunctionSignature{Result: &u32},
		func(context.Context, []any) (any, error) { return uint32(0), nil })
	if err != nil {
		t.Fatalf("expose: %v", err)
	}

	cases := []struct {
		name string
		call func() error
		want domerrors.Kind
	}{
		{"unknown import", func() error { return l.Bind(a, "ghost", b, "greet") }, domerrors.KindUnknownImport},
		{"unknown export", func() error { return l.Bind(a, "greet", b, "ghost") }, domerrors.KindUnknownExport},
		{"signature mismatch", func() error { return l.Bind(a, "greet", h, "test") }, domerrors.KindSignatureMismatch},
		{"unknown consumer", func() error { return l.Bind("nope", "greet", b, "greet") }, domerrors.KindNotFound},
		{"unknown provider", func() error { return l.Bind(a, "greet", "nope", "greet") }, domerrors.KindNotFound},
		{"host signature mismatch", func() error { return l.BindHost(a, "greet", wrongSig) }, domerrors.KindSignatureMismatch},
		{"host function missing", func() error { return l.BindHost(a, "greet", hostbridge.FuncID(99)) }, domerrors.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, &domerrors.Error{Phase: domerrors.PhaseLink, Kind: tc.want}) {
				t.Errorf("error = %v, want kind %s", err, tc.want)
			}
		})
	}
}

func TestBindHost(t *testing.T) {
	reg, bridge, l := setup(t)
	a := mustRegister(t, reg, "a", testguest.Caller())

	str := schema.String()
	id, err := bridge.Expose("greet", schema.FunctionSignature{
		Params: []schema.Param{{Name: "name", Type: schema.String()}},
		Result: &str,
	}, func(_ context.Context, args []any) (any, error) {
		return "hi " + args[0].(string), nil
	})
	if err != nil {
		t.Fatalf("expose: %v", err)
	}

	if err := l.BindHost(a, "greet", id); err != nil {
		t.Fatalf("bind host: %v", err)
	}

	graph, err := l.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	binding := graph.Bindings(a)["greet"]
	if binding.Kind != registry.BindingHost || binding.Host != id {
		t.Errorf("binding = %+v", binding)
	}
}

func TestFinalizeUnresolvedImports(t *testing.T) {
	reg, _, l := setup(t)
	mustRegister(t, reg, "a", testguest.Caller())
	mustRegister(t, reg, "r", testguest.Recurser())

	_, err := l.Finalize()
	if err == nil {
		t.Fatal("expected error")
	}
	var unresolved *domerrors.UnresolvedImportsError
	if !stderrors.As(err, &unresolved) {
		t.Fatalf("error type = %T: %v", err, err)
	}
	if len(unresolved.Slots) != 2 {
		t.Fatalf("slots = %v", unresolved.Slots)
	}
	if unresolved.Slots[0].Component != "a" || unresolved.Slots[0].Import != "greet" {
		t.Errorf("first slot = %+v", unresolved.Slots[0])
	}
	if unresolved.Slots[1].Component != "r" || unresolved.Slots[1].Import != "pong" {
		t.Errorf("second slot = %+v", unresolved.Slots[1])
	}
	// matches the kind-level sentinel too
	if !stderrors.Is(err, &domerrors.Error{Phase: domerrors.PhaseLink, Kind: domerrors.KindUnresolvedImport}) {
		t.Errorf("error does not match unresolved_import kind")
	}
}

func TestFinalizeOrdersProvidersFirst(t *testing.T) {
	reg, _, l := setup(t)
	a := mustRegister(t, reg, "a", testguest.Caller())
	b := mustRegister(t, reg, "b", testguest.Greeter())

	if err := l.Bind(a, "greet", b, "greet"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	graph, err := l.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	order := graph.Order()
	if len(order) != 2 || order[0] != b || order[1] != a {
		t.Errorf("order = %v, want [b a]", order)
	}

	// finalize freezes
	rec, _ := reg.Record(a)
	if !rec.Frozen() {
		t.Error("consumer record not frozen")
	}
	if err := l.Bind(a, "greet", b, "greet"); err == nil {
		t.Error("bind after finalize must fail")
	}
}

// Two recursers importing pong from each other's ping form a two-node
// instantiation cycle; the acyclic caller/greeter pair alongside them
// must not mask it.
func TestFinalizeSelfImportCycle(t *testing.T) {
	reg, _, l := setup(t)

	a := mustRegister(t, reg, "a", testguest.Caller())
	b := mustRegister(t, reg, "b", testguest.Greeter())
	r1 := mustRegister(t, reg, "r1", testguest.Recurser())
	r2 := mustRegister(t, reg, "r2", testguest.Recurser())

	if err := l.Bind(a, "greet", b, "greet"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := l.Bind(r1, "pong", r2, "ping"); err != nil {
		t.Fatalf("bind r1: %v", err)
	}
	if err := l.Bind(r2, "pong", r1, "ping"); err != nil {
		t.Fatalf("bind r2: %v", err)
	}

	_, err := l.Finalize()
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !stderrors.Is(err, &domerrors.Error{Phase: domerrors.PhaseLink, Kind: domerrors.KindCyclicDependency}) {
		t.Errorf("error = %v, want cyclic_dependency", err)
	}
	var de *domerrors.Error
	stderrors.As(err, &de)
	cycle, ok := de.Value.([]string)
	if !ok || len(cycle) != 3 {
		t.Errorf("cycle = %v, want closed pair", de.Value)
	}
}

func TestRebindBeforeFinalizeWins(t *testing.T) {
	reg, bridge, l := setup(t)
	a := mustRegister(t, reg, "a", testguest.Caller())
	b := mustRegister(t, reg, "b", testguest.Greeter())

	str := schema.String()
	hostID, _ := bridge.Expose("greet", schema.FunctionSignature{
		Params: []schema.Param{{Name: "name", Type: schema.String()}},
		Result: &str,
	}, func(_ context.Context, args []any) (any, error) { return args[0], nil })

	if err := l.BindHost(a, "greet", hostID); err != nil {
		t.Fatalf("bind host: %v", err)
	}
	// explicit rebind replaces the earlier binding
	if err := l.Bind(a, "greet", b, "greet"); err != nil {
		t.Fatalf("rebind: %v", err)
	}

	graph, err := l.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if binding := graph.Bindings(a)["greet"]; binding.Kind != registry.BindingComponent {
		t.Errorf("binding = %+v, want component binding", binding)
	}
}
