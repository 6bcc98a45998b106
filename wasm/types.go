package wasm

// ValType is a core WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// FuncType is a core function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two core signatures are identical.
func (t FuncType) Equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// Import is an imported function, memory or global.
type Import struct {
	Module  string
	Name    string
	Kind    byte
	TypeIdx uint32 // KindFunc
	Mem     *MemoryType
	Global  *GlobalType
}

// MemoryType describes a linear memory with size limits in pages.
type MemoryType struct {
	Min uint64
	Max *uint64
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global is a global variable with its init expression bytes.
type Global struct {
	Type GlobalType
	Init []byte
}

// Export describes one exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// LocalEntry groups locals of one type.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// FuncBody is a function's locals plus raw bytecode (including the
// trailing end opcode).
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment is an active data segment (flags 0 or 2).
type DataSegment struct {
	Offset []byte
	Init   []byte
	MemIdx uint32
}

// CustomSection holds a named custom section's payload.
type CustomSection struct {
	Name string
	Data []byte
}

// Module is a decoded core module restricted to the MVP feature set
// this host needs: function imports/exports, one linear memory,
// globals, a start function, code, data and custom sections.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type index per declared function
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Code     []FuncBody
	Data     []DataSegment
	Customs  []CustomSection
}

// AddType adds a function type, reusing an existing equal entry.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			count++
		}
	}
	return count
}

// FuncTypeAt returns the signature of a function in the joint
// imported-then-declared index space.
func (m *Module) FuncTypeAt(funcIdx uint32) (FuncType, bool) {
	idx := funcIdx
	for _, imp := range m.Imports {
		if imp.Kind != KindFunc {
			continue
		}
		if idx == 0 {
			if int(imp.TypeIdx) >= len(m.Types) {
				return FuncType{}, false
			}
			return m.Types[imp.TypeIdx], true
		}
		idx--
	}
	if int(idx) >= len(m.Funcs) {
		return FuncType{}, false
	}
	typeIdx := m.Funcs[idx]
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// ExportedFuncType returns the core signature of a function export.
func (m *Module) ExportedFuncType(name string) (FuncType, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name && exp.Kind == KindFunc {
			return m.FuncTypeAt(exp.Idx)
		}
	}
	return FuncType{}, false
}

// Custom returns the payload of the first custom section with the
// given name.
func (m *Module) Custom(name string) ([]byte, bool) {
	for _, cs := range m.Customs {
		if cs.Name == name {
			return cs.Data, true
		}
	}
	return nil, false
}
