package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	err := New(PhaseLink, KindSignatureMismatch).
		Component("a").
		Slot("greet").
		Detail("result types differ").
		Build()

	msg := err.Error()
	for _, want := range []string{"[link]", "signature_mismatch", "component a", "slot greet", "result types differ"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestError_IsMatchesPhaseAndKind(t *testing.T) {
	err := Trap("a", "boom", stderrors.New("unreachable"))

	if !stderrors.Is(err, &Error{Phase: PhaseCall, Kind: KindTrap}) {
		t.Error("expected match on phase+kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseCall, Kind: KindArity}) {
		t.Error("unexpected match on different kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseLink, Kind: KindTrap}) {
		t.Error("unexpected match on different phase")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("oob")
	err := Wrap(PhaseCall, KindTrap, cause, "guest trapped")

	if !stderrors.Is(err, cause) {
		t.Error("expected unwrap to reach cause")
	}
}

func TestUnresolvedImportsError_GroupsByComponent(t *testing.T) {
	err := &UnresolvedImportsError{Slots: []UnresolvedSlot{
		{Component: "a", Import: "greet"},
		{Component: "a", Import: "log"},
		{Component: "b", Import: "now"},
	}}

	msg := err.Error()
	if !strings.Contains(msg, "3 unbound import slot(s)") {
		t.Errorf("message %q missing count", msg)
	}
	if strings.Index(msg, "a:") > strings.Index(msg, "b:") {
		t.Errorf("expected components in first-seen order: %q", msg)
	}
	for _, want := range []string{"greet", "log", "now"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing slot %q", msg, want)
		}
	}
}

func TestUnresolvedImportsError_IsMatchesKind(t *testing.T) {
	err := &UnresolvedImportsError{Slots: []UnresolvedSlot{{Component: "a", Import: "greet"}}}

	if !stderrors.Is(err, &UnresolvedImportsError{}) {
		t.Error("expected match on own type")
	}
	if !stderrors.Is(err, &Error{Phase: PhaseLink, Kind: KindUnresolvedImport}) {
		t.Error("expected match on unresolved_import kind")
	}
}
