package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the host pipeline the error occurred.
type Phase string

const (
	PhaseParse       Phase = "parse"       // world/schema parsing
	PhaseRegister    Phase = "register"    // component registration
	PhaseLink        Phase = "link"        // import binding and graph resolution
	PhaseInstantiate Phase = "instantiate" // sandbox creation and start routines
	PhaseCall        Phase = "call"        // cross-boundary dispatch
	PhaseHost        Phase = "host"        // host function exposure
	PhaseEncode      Phase = "encode"      // host value to guest memory
	PhaseDecode      Phase = "decode"      // guest memory to host value
)

// Kind categorizes the error.
type Kind string

const (
	KindSchema            Kind = "schema"
	KindUnreadableBinary  Kind = "unreadable_binary"
	KindDuplicateExport   Kind = "duplicate_export"
	KindUnknownImport     Kind = "unknown_import"
	KindUnknownExport     Kind = "unknown_export"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindUnresolvedImport  Kind = "unresolved_import"
	KindCyclicDependency  Kind = "cyclic_dependency"
	KindStartupTrap       Kind = "startup_trap"
	KindArity             Kind = "arity"
	KindArgumentType      Kind = "argument_type"
	KindTrap              Kind = "trap"
	KindStackOverflow     Kind = "stack_overflow"
	KindFrozen            Kind = "frozen"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindAllocation        Kind = "allocation"
	KindPoisoned          Kind = "poisoned"
)

// Error is the structured error type used throughout the host.
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Component string // component id, when known
	Slot      string // import/export slot name, when known
	Detail    string
	Path      []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Component != "" {
		b.WriteString(" component ")
		b.WriteString(e.Component)
	}
	if e.Slot != "" {
		b.WriteString(" slot ")
		b.WriteString(e.Slot)
	}
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by phase and kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Component sets the component id.
func (b *Builder) Component(id string) *Builder {
	b.err.Component = id
	return b
}

// Slot sets the import/export slot name.
func (b *Builder) Slot(name string) *Builder {
	b.err.Slot = name
	return b
}

// Path sets the value path (record fields, list indices).
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value.
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns.

// Schema creates a world/schema parsing error.
func Schema(detail string, args ...any) *Error {
	return &Error{Phase: PhaseParse, Kind: KindSchema, Detail: fmt.Sprintf(detail, args...)}
}

// UnreadableBinary creates an error for a binary that cannot be parsed
// as a valid component.
func UnreadableBinary(source string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindUnreadableBinary,
		Detail: fmt.Sprintf("cannot parse %s as a component binary", source),
		Cause:  cause,
	}
}

// DuplicateExport creates an error for a binary whose export table does
// not structurally match its declared world.
func DuplicateExport(component, detail string) *Error {
	return &Error{
		Phase:     PhaseRegister,
		Kind:      KindDuplicateExport,
		Component: component,
		Detail:    detail,
	}
}

// UnknownImport names a non-existent import slot.
func UnknownImport(component, slot string) *Error {
	return &Error{Phase: PhaseLink, Kind: KindUnknownImport, Component: component, Slot: slot}
}

// UnknownExport names a non-existent export slot.
func UnknownExport(component, slot string) *Error {
	return &Error{Phase: PhaseLink, Kind: KindUnknownExport, Component: component, Slot: slot}
}

// SignatureMismatch reports incompatible required/provided signatures.
func SignatureMismatch(component, slot, detail string) *Error {
	return &Error{
		Phase:     PhaseLink,
		Kind:      KindSignatureMismatch,
		Component: component,
		Slot:      slot,
		Detail:    detail,
	}
}

// CyclicDependency reports a cycle in the instantiation-order graph.
func CyclicDependency(cycle []string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindCyclicDependency,
		Detail: "instantiation order cycle: " + strings.Join(cycle, " -> "),
		Value:  cycle,
	}
}

// StartupTrap reports a trapping start routine during instantiation.
func StartupTrap(component string, cause error) *Error {
	return &Error{
		Phase:     PhaseInstantiate,
		Kind:      KindStartupTrap,
		Component: component,
		Detail:    "start routine trapped",
		Cause:     cause,
	}
}

// Arity reports a call with the wrong number of arguments.
func Arity(export string, want, got int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindArity,
		Slot:   export,
		Detail: fmt.Sprintf("expected %d argument(s), got %d", want, got),
	}
}

// ArgumentType reports an argument that does not match the declared type.
func ArgumentType(export string, path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindArgumentType,
		Slot:   export,
		Path:   path,
		Detail: detail,
	}
}

// Trap converts a runtime trap into a structured call error.
func Trap(component, export string, cause error) *Error {
	return &Error{
		Phase:     PhaseCall,
		Kind:      KindTrap,
		Component: component,
		Slot:      export,
		Detail:    "guest trapped",
		Cause:     cause,
	}
}

// StackOverflow reports exceeding the configured reentrancy depth.
func StackOverflow(depth int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindStackOverflow,
		Detail: fmt.Sprintf("call depth exceeded maximum of %d", depth),
	}
}

// Frozen reports a mutation attempt on an already-instantiated record.
func Frozen(component string) *Error {
	return &Error{
		Phase:     PhaseLink,
		Kind:      KindFrozen,
		Component: component,
		Detail:    "record is frozen; re-register to link again",
	}
}

// Poisoned reports use of an instance after it trapped.
func Poisoned(component string) *Error {
	return &Error{
		Phase:     PhaseCall,
		Kind:      KindPoisoned,
		Component: component,
		Detail:    "instance trapped earlier; re-instantiate before calling",
	}
}

// NotFound creates a not-found error.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error.
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{Phase: phase, Kind: KindInvalidInput, Detail: detail}
}

// OutOfBounds creates an out-of-bounds memory access error.
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, offset+length, size),
	}
}

// AllocationFailed creates a guest allocation failure error.
func AllocationFailed(size, align uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with phase and kind.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: detail, Cause: cause}
}

// UnresolvedSlot identifies one unbound import slot.
type UnresolvedSlot struct {
	Component string
	Import    string
}

// UnresolvedImportsError is returned by Linker.Finalize when one or
// more import slots remain unbound after explicit binding.
type UnresolvedImportsError struct {
	Slots []UnresolvedSlot
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Slots) == 0 {
		return "[link] unresolved_import: no slots recorded"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[link] unresolved_import: %d unbound import slot(s):", len(e.Slots))

	byComponent := make(map[string][]string)
	var order []string
	for _, s := range e.Slots {
		if _, seen := byComponent[s.Component]; !seen {
			order = append(order, s.Component)
		}
		byComponent[s.Component] = append(byComponent[s.Component], s.Import)
	}

	for _, id := range order {
		b.WriteString("\n  ")
		b.WriteString(id)
		b.WriteString(":")
		for _, imp := range byComponent[id] {
			b.WriteString("\n    - ")
			b.WriteString(imp)
		}
	}

	return b.String()
}

// Is reports whether target matches this error type. It also matches a
// plain *Error carrying the unresolved_import kind so callers can test
// either form.
func (e *UnresolvedImportsError) Is(target error) bool {
	if _, ok := target.(*UnresolvedImportsError); ok {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Phase == PhaseLink && t.Kind == KindUnresolvedImport
	}
	return false
}
