package runtime

import (
	"context"
	stderrors "errors"
	"testing"

	domerrors "github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/internal/testguest"
	"github.com/domforge/domhost/schema"
)

func TestEndToEndHello(t *testing.T) {
	ctx := context.Background()
	rt := New()

	id, err := rt.LoadComponent("hello", testguest.Hello(), "hello.wasm")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	graph, err := rt.Linker().Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	session, err := rt.InstantiateAll(ctx, graph)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer session.Close(ctx)

	out, err := session.Invoke(ctx, id, "test", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "Hello from Go!" {
		t.Errorf("result = %q, want %q", out, "Hello from Go!")
	}
}

func TestEndToEndCrossComponentGreet(t *testing.T) {
	ctx := context.Background()
	rt := New()

	a, err := rt.LoadComponent("a", testguest.Caller(), "a.wasm")
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	b, err := rt.LoadComponent("b", testguest.Greeter(), "b.wasm")
	if err != nil {
		t.Fatalf("load b: %v", err)
	}

	if err := rt.Linker().Bind(a, "greet", b, "greet"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	graph, err := rt.Linker().Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	session, err := rt.InstantiateAll(ctx, graph)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer session.Close(ctx)

	// provider instantiated before consumer
	if ids := session.IDs(); len(ids) != 2 || ids[0] != b || ids[1] != a {
		t.Errorf("instantiation order = %v, want [b a]", ids)
	}

	out, err := session.Invoke(ctx, a, "call-greet", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "Hello, world" {
		t.Errorf("result = %q, want %q", out, "Hello, world")
	}
}

func TestEndToEndHostFunction(t *testing.T) {
	ctx := context.Background()
	rt := New()

	a, err := rt.LoadComponent("a", testguest.Caller(), "a.wasm")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	str := schema.String()
	hostID, err := rt.ExposeHost("greet", schema.FunctionSignature{
		Params: []schema.Param{{Name: "name", Type: schema.String()}},
		Result: &str,
	}, func(_ context.Context, args []any) (any, error) {
		return "host says " + args[0].(string), nil
	})
	if err != nil {
		t.Fatalf("expose: %v", err)
	}
	if err := rt.Linker().BindHost(a, "greet", hostID); err != nil {
		t.Fatalf("bind host: %v", err)
	}

	graph, err := rt.Linker().Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	session, err := rt.InstantiateAll(ctx, graph)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer session.Close(ctx)

	out, err := session.Invoke(ctx, a, "call-greet", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "host says world" {
		t.Errorf("result = %q", out)
	}
}

// Instantiating one finalized graph twice yields sessions with no
// shared mutable state.
func TestInstantiationIdempotenceAndIsolation(t *testing.T) {
	ctx := context.Background()
	rt := New()

	id, err := rt.LoadComponent("counter", testguest.Counter(), "counter.wasm")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	graph, err := rt.Linker().Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	s1, err := rt.InstantiateAll(ctx, graph)
	if err != nil {
		t.Fatalf("instantiate s1: %v", err)
	}
	defer s1.Close(ctx)
	s2, err := rt.InstantiateAll(ctx, graph)
	if err != nil {
		t.Fatalf("instantiate s2: %v", err)
	}
	defer s2.Close(ctx)

	for i := 0; i < 3; i++ {
		if _, err := s1.Invoke(ctx, id, "bump", nil); err != nil {
			t.Fatalf("bump s1: %v", err)
		}
	}
	out, err := s2.Invoke(ctx, id, "bump", nil)
	if err != nil {
		t.Fatalf("bump s2: %v", err)
	}
	if out != uint32(1) {
		t.Errorf("s2 counter = %v, want 1 (state leaked between sessions)", out)
	}
}

func TestStartupTrapTearsDownPartialState(t *testing.T) {
	ctx := context.Background()
	rt := New()

	if _, err := rt.LoadComponent("hello", testguest.Hello(), "hello.wasm"); err != nil {
		t.Fatalf("load hello: %v", err)
	}
	if _, err := rt.LoadComponent("crasher", testguest.StartTrap(), "crasher.wasm"); err != nil {
		t.Fatalf("load crasher: %v", err)
	}

	graph, err := rt.Linker().Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	session, err := rt.InstantiateAll(ctx, graph)
	if err == nil {
		session.Close(ctx)
		t.Fatal("expected startup trap")
	}
	if session != nil {
		t.Error("failed instantiation must not return a session")
	}
	if !stderrors.Is(err, &domerrors.Error{Phase: domerrors.PhaseInstantiate, Kind: domerrors.KindStartupTrap}) {
		t.Fatalf("error = %v, want startup_trap", err)
	}
	var de *domerrors.Error
	stderrors.As(err, &de)
	if de.Component != "crasher" {
		t.Errorf("component = %q, want crasher", de.Component)
	}
}

func TestSessionCloseIsIdempotentAndFinal(t *testing.T) {
	ctx := context.Background()
	rt := New()

	id, _ := rt.LoadComponent("hello", testguest.Hello(), "hello.wasm")
	graph, err := rt.Linker().Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	session, err := rt.InstantiateAll(ctx, graph)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	if err := session.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := session.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := session.Invoke(ctx, id, "test", nil); err == nil {
		t.Error("invoke on closed session must fail")
	}
}

func TestInstantiateUnfinalizedImports(t *testing.T) {
	rt := New()
	if _, err := rt.LoadComponent("a", testguest.Caller(), "a.wasm"); err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err := rt.Linker().Finalize()
	if err == nil {
		t.Fatal("finalize with unbound imports must fail")
	}
	var unresolved *domerrors.UnresolvedImportsError
	if !stderrors.As(err, &unresolved) {
		t.Fatalf("error = %v", err)
	}
}
