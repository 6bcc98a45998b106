package abi

// Variant selects one case of a variant type. Payload must be nil for
// cases without a payload type.
type Variant struct {
	Case    string
	Payload any
}

// Option is the host representation of option<T>. A nil value passed
// where an option is expected is treated as None.
type Option struct {
	Some  bool
	Value any
}

// Some wraps a present option value.
func Some(v any) Option { return Option{Some: true, Value: v} }

// None is the absent option value.
func None() Option { return Option{} }

// Result is the host representation of result<OK, Err>.
type Result struct {
	IsErr bool
	Value any
}

// OK wraps a successful result payload.
func OK(v any) Result { return Result{Value: v} }

// Err wraps a failed result payload.
func Err(v any) Result { return Result{IsErr: true, Value: v} }

// Handle is an opaque resource handle. The host never dereferences it;
// it is minted and interpreted by the owning component.
type Handle uint32
