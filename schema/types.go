package schema

import (
	"fmt"
	"strings"
)

// Kind discriminates ValueType.
type Kind uint8

const (
	KindBool Kind = iota
	KindS8
	KindU8
	KindS16
	KindU16
	KindS32
	KindU32
	KindS64
	KindU64
	KindF32
	KindF64
	KindChar
	KindString
	KindList
	KindRecord
	KindVariant
	KindOption
	KindResult
	KindHandle
)

// ValueType is the structural type model shared by worlds, the linker
// and the call dispatcher. Types compare structurally: two records with
// the same field names and types in the same order are the same type,
// regardless of which component declared them.
type ValueType struct {
	Kind     Kind
	Elem     *ValueType // List, Option element
	OK       *ValueType // Result ok payload (nil = unit)
	Err      *ValueType // Result err payload (nil = unit)
	Fields   []Field    // Record fields, declared order
	Cases    []Case     // Variant cases, declared order
	Resource string     // Handle resource id
}

// Field is one record field.
type Field struct {
	Name string
	Type ValueType
}

// Case is one variant case with an optional payload.
type Case struct {
	Name string
	Type *ValueType
}

// Primitive constructors.

func Bool() ValueType   { return ValueType{Kind: KindBool} }
func S8() ValueType     { return ValueType{Kind: KindS8} }
func U8() ValueType     { return ValueType{Kind: KindU8} }
func S16() ValueType    { return ValueType{Kind: KindS16} }
func U16() ValueType    { return ValueType{Kind: KindU16} }
func S32() ValueType    { return ValueType{Kind: KindS32} }
func U32() ValueType    { return ValueType{Kind: KindU32} }
func S64() ValueType    { return ValueType{Kind: KindS64} }
func U64() ValueType    { return ValueType{Kind: KindU64} }
func F32() ValueType    { return ValueType{Kind: KindF32} }
func F64() ValueType    { return ValueType{Kind: KindF64} }
func Char() ValueType   { return ValueType{Kind: KindChar} }
func String() ValueType { return ValueType{Kind: KindString} }

// Compound constructors.

func List(elem ValueType) ValueType {
	return ValueType{Kind: KindList, Elem: &elem}
}

func Option(elem ValueType) ValueType {
	return ValueType{Kind: KindOption, Elem: &elem}
}

func Result(ok, err *ValueType) ValueType {
	return ValueType{Kind: KindResult, OK: ok, Err: err}
}

func Record(fields ...Field) ValueType {
	return ValueType{Kind: KindRecord, Fields: fields}
}

func Variant(cases ...Case) ValueType {
	return ValueType{Kind: KindVariant, Cases: cases}
}

func Handle(resource string) ValueType {
	return ValueType{Kind: KindHandle, Resource: resource}
}

// Equal reports structural equality.
func (t ValueType) Equal(o ValueType) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindList, KindOption:
		return t.Elem.Equal(*o.Elem)
	case KindResult:
		return optEqual(t.OK, o.OK) && optEqual(t.Err, o.Err)
	case KindRecord:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	case KindVariant:
		if len(t.Cases) != len(o.Cases) {
			return false
		}
		for i := range t.Cases {
			if t.Cases[i].Name != o.Cases[i].Name || !optEqual(t.Cases[i].Type, o.Cases[i].Type) {
				return false
			}
		}
		return true
	case KindHandle:
		return t.Resource == o.Resource
	default:
		return true
	}
}

func optEqual(a, b *ValueType) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Equal(*b)
}

// String renders the type in world text syntax.
func (t ValueType) String() string {
	switch t.Kind {
	case KindBool:
		return "bool"
	case KindS8:
		return "s8"
	case KindU8:
		return "u8"
	case KindS16:
		return "s16"
	case KindU16:
		return "u16"
	case KindS32:
		return "s32"
	case KindU32:
		return "u32"
	case KindS64:
		return "s64"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindList:
		return "list<" + t.Elem.String() + ">"
	case KindOption:
		return "option<" + t.Elem.String() + ">"
	case KindResult:
		switch {
		case t.OK == nil && t.Err == nil:
			return "result"
		case t.Err == nil:
			return "result<" + t.OK.String() + ">"
		default:
			ok := "_"
			if t.OK != nil {
				ok = t.OK.String()
			}
			return "result<" + ok + ", " + t.Err.String() + ">"
		}
	case KindRecord:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "record { " + strings.Join(parts, ", ") + " }"
	case KindVariant:
		parts := make([]string, len(t.Cases))
		for i, c := range t.Cases {
			if c.Type != nil {
				parts[i] = c.Name + "(" + c.Type.String() + ")"
			} else {
				parts[i] = c.Name
			}
		}
		return "variant { " + strings.Join(parts, ", ") + " }"
	case KindHandle:
		return "handle<" + t.Resource + ">"
	default:
		return fmt.Sprintf("valuetype(%d)", t.Kind)
	}
}

// Param is one named function parameter.
type Param struct {
	Name string
	Type ValueType
}

// FunctionSignature is an ordered parameter list plus an optional
// result. Signatures are immutable once parsed from a world.
type FunctionSignature struct {
	Params []Param
	Result *ValueType // nil = unit
}

// String renders the signature in world text syntax.
func (s FunctionSignature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.Name + ": " + p.Type.String()
	}
	out := "func(" + strings.Join(parts, ", ") + ")"
	if s.Result != nil {
		out += " -> " + s.Result.String()
	}
	return out
}

// Function is one named slot in a world.
type Function struct {
	Name      string
	Signature FunctionSignature
}

// World is a named set of import and export function signatures, in
// declaration order.
type World struct {
	Name    string
	Imports []Function
	Exports []Function
}

// Import returns the import slot with the given name.
func (w *World) Import(name string) (FunctionSignature, bool) {
	return lookup(w.Imports, name)
}

// Export returns the export slot with the given name.
func (w *World) Export(name string) (FunctionSignature, bool) {
	return lookup(w.Exports, name)
}

func lookup(fns []Function, name string) (FunctionSignature, bool) {
	for _, f := range fns {
		if f.Name == name {
			return f.Signature, true
		}
	}
	return FunctionSignature{}, false
}
