// Package testguest synthesizes small component binaries in memory so
// the host can be tested without a guest toolchain. Each builder
// returns a complete binary with its world embedded in the
// component-world custom section.
package testguest

import (
	"bytes"

	"github.com/domforge/domhost/wasm"
)

// Heap pointer global used by the bump allocator in every guest that
// handles compound values. Static data sits below it.
const heapBase = 1024

type builder struct {
	mod   *wasm.Module
	world string
}

func newBuilder(world string) *builder {
	return &builder{mod: &wasm.Module{}, world: world}
}

func (b *builder) build() []byte {
	b.mod.Customs = append(b.mod.Customs, wasm.CustomSection{
		Name: "component-world",
		Data: []byte(b.world),
	})
	return b.mod.Encode()
}

// addMemory exports a one-page linear memory named "memory".
func (b *builder) addMemory(pages uint64) {
	b.mod.Memories = append(b.mod.Memories, wasm.MemoryType{Min: pages})
	b.mod.Exports = append(b.mod.Exports, wasm.Export{Name: "memory", Kind: wasm.KindMemory, Idx: 0})
}

// addFunc declares a function and returns its index in the joint
// function index space.
func (b *builder) addFunc(ft wasm.FuncType, locals []wasm.LocalEntry, code []byte) uint32 {
	ti := b.mod.AddType(ft)
	b.mod.Funcs = append(b.mod.Funcs, ti)
	b.mod.Code = append(b.mod.Code, wasm.FuncBody{Locals: locals, Code: code})
	return uint32(b.mod.NumImportedFuncs() + len(b.mod.Funcs) - 1)
}

func (b *builder) exportFunc(name string, idx uint32) {
	b.mod.Exports = append(b.mod.Exports, wasm.Export{Name: name, Kind: wasm.KindFunc, Idx: idx})
}

// addImport declares a function import from the "imports" core module.
func (b *builder) addImport(name string, ft wasm.FuncType) uint32 {
	ti := b.mod.AddType(ft)
	idx := uint32(b.mod.NumImportedFuncs())
	b.mod.Imports = append(b.mod.Imports, wasm.Import{
		Module: "imports", Name: name, Kind: wasm.KindFunc, TypeIdx: ti,
	})
	return idx
}

// addString places a length-prefixed string at a fixed offset in
// static data and returns that offset.
func (b *builder) addString(offset uint32, s string) uint32 {
	var init bytes.Buffer
	init.Write([]byte{byte(len(s)), byte(len(s) >> 8), byte(len(s) >> 16), byte(len(s) >> 24)})
	init.WriteString(s)
	b.mod.Data = append(b.mod.Data, wasm.DataSegment{
		Offset: wasm.I32Const(int32(offset)),
		Init:   init.Bytes(),
	})
	return offset
}

// addBytes places raw bytes at a fixed offset in static data.
func (b *builder) addBytes(offset uint32, data []byte) {
	b.mod.Data = append(b.mod.Data, wasm.DataSegment{
		Offset: wasm.I32Const(int32(offset)),
		Init:   data,
	})
}

// addAlloc adds the bump allocator: a mutable heap-pointer global and
// an exported alloc(size, align) -> ptr that aligns every block to 8.
func (b *builder) addAlloc() {
	heapGlobal := uint32(len(b.mod.Globals))
	b.mod.Globals = append(b.mod.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
		Init: wasm.I32Const(heapBase),
	})

	var c bytes.Buffer
	// p = (heap + 7) & -8
	op(&c, wasm.OpGlobalGet, heapGlobal)
	c.Write(wasm.I32Const(7))
	c.WriteByte(wasm.OpI32Add)
	c.Write(wasm.I32Const(-8))
	c.WriteByte(wasm.OpI32And)
	op(&c, wasm.OpLocalSet, 2)
	// heap = p + size
	op(&c, wasm.OpLocalGet, 2)
	op(&c, wasm.OpLocalGet, 0)
	c.WriteByte(wasm.OpI32Add)
	op(&c, wasm.OpGlobalSet, heapGlobal)
	// return p
	op(&c, wasm.OpLocalGet, 2)
	c.WriteByte(wasm.OpEnd)

	idx := b.addFunc(
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		[]wasm.LocalEntry{{Count: 1, Type: wasm.ValI32}},
		c.Bytes(),
	)
	b.exportFunc("alloc", idx)
}

// op appends an opcode with one LEB128 immediate.
func op(c *bytes.Buffer, opcode byte, imm uint32) {
	c.WriteByte(opcode)
	wasm.WriteLEB128u(c, uint64(imm))
}

// memOp appends a load or store with its alignment and offset memarg.
func memOp(c *bytes.Buffer, opcode byte, align, offset uint32) {
	c.WriteByte(opcode)
	wasm.WriteLEB128u(c, uint64(align))
	wasm.WriteLEB128u(c, uint64(offset))
}

func memoryCopy(c *bytes.Buffer) {
	c.WriteByte(wasm.OpPrefixMisc)
	c.WriteByte(wasm.MiscMemoryCopy)
	c.WriteByte(0)
	c.WriteByte(0)
}

// Hello builds a component with no imports whose test export returns
// the string "Hello from Go!".
func Hello() []byte {
	b := newBuilder("world hello {\n  export test: func() -> string\n}")
	b.addMemory(1)
	b.addAlloc()
	strPtr := b.addString(8, "Hello from Go!")

	var c bytes.Buffer
	c.Write(wasm.I32Const(int32(strPtr)))
	c.WriteByte(wasm.OpEnd)
	idx := b.addFunc(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, nil, c.Bytes())
	b.exportFunc("test", idx)
	return b.build()
}

// Greeter builds a component exporting greet(name: string) -> string
// that returns "Hello, " + name.
func Greeter() []byte {
	b := newBuilder("world greeter {\n  export greet: func(name: string) -> string\n}")
	b.addMemory(1)
	b.addAlloc()
	b.addBytes(8, []byte("Hello, "))

	allocIdx := uint32(0) // first declared function

	// locals: 0=namePtr (param), 1=n, 2=p
	var c bytes.Buffer
	// n = *namePtr
	op(&c, wasm.OpLocalGet, 0)
	memOp(&c, wasm.OpI32Load, 2, 0)
	op(&c, wasm.OpLocalSet, 1)
	// p = alloc(11 + n, 4)
	c.Write(wasm.I32Const(11))
	op(&c, wasm.OpLocalGet, 1)
	c.WriteByte(wasm.OpI32Add)
	c.Write(wasm.I32Const(4))
	op(&c, wasm.OpCall, allocIdx)
	op(&c, wasm.OpLocalSet, 2)
	// *p = 7 + n
	op(&c, wasm.OpLocalGet, 2)
	c.Write(wasm.I32Const(7))
	op(&c, wasm.OpLocalGet, 1)
	c.WriteByte(wasm.OpI32Add)
	memOp(&c, wasm.OpI32Store, 2, 0)
	// copy "Hello, " to p+4
	op(&c, wasm.OpLocalGet, 2)
	c.Write(wasm.I32Const(4))
	c.WriteByte(wasm.OpI32Add)
	c.Write(wasm.I32Const(8))
	c.Write(wasm.I32Const(7))
	memoryCopy(&c)
	// copy name bytes to p+11
	op(&c, wasm.OpLocalGet, 2)
	c.Write(wasm.I32Const(11))
	c.WriteByte(wasm.OpI32Add)
	op(&c, wasm.OpLocalGet, 0)
	c.Write(wasm.I32Const(4))
	c.WriteByte(wasm.OpI32Add)
	op(&c, wasm.OpLocalGet, 1)
	memoryCopy(&c)
	// return p
	op(&c, wasm.OpLocalGet, 2)
	c.WriteByte(wasm.OpEnd)

	idx := b.addFunc(
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		[]wasm.LocalEntry{{Count: 2, Type: wasm.ValI32}},
		c.Bytes(),
	)
	b.exportFunc("greet", idx)
	return b.build()
}

// Caller builds a component that imports greet and exports call-greet,
// which invokes greet("world") and returns its result.
func Caller() []byte {
	b := newBuilder("world caller {\n  import greet: func(name: string) -> string\n  export call-greet: func() -> string\n}")
	greetIdx := b.addImport("greet", wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	b.addMemory(1)
	b.addAlloc()
	strPtr := b.addString(8, "world")

	var c bytes.Buffer
	c.Write(wasm.I32Const(int32(strPtr)))
	op(&c, wasm.OpCall, greetIdx)
	c.WriteByte(wasm.OpEnd)
	idx := b.addFunc(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, nil, c.Bytes())
	b.exportFunc("call-greet", idx)
	return b.build()
}

// Counter builds a component whose bump export increments a private
// counter and returns the new value. Used to observe side effects and
// per-instance state isolation.
func Counter() []byte {
	b := newBuilder("world counter {\n  export bump: func() -> u32\n}")
	counterGlobal := uint32(len(b.mod.Globals))
	b.mod.Globals = append(b.mod.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
		Init: wasm.I32Const(0),
	})

	var c bytes.Buffer
	op(&c, wasm.OpGlobalGet, counterGlobal)
	c.Write(wasm.I32Const(1))
	c.WriteByte(wasm.OpI32Add)
	op(&c, wasm.OpGlobalSet, counterGlobal)
	op(&c, wasm.OpGlobalGet, counterGlobal)
	c.WriteByte(wasm.OpEnd)
	idx := b.addFunc(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, nil, c.Bytes())
	b.exportFunc("bump", idx)
	return b.build()
}

// Trapper builds a component whose boom export hits an unreachable
// instruction.
func Trapper() []byte {
	b := newBuilder("world trapper {\n  export boom: func()\n}")
	idx := b.addFunc(wasm.FuncType{}, nil, []byte{wasm.OpUnreachable, wasm.OpEnd})
	b.exportFunc("boom", idx)
	return b.build()
}

// OutOfBounds builds a component whose poke export reads far past the
// end of its one-page memory.
func OutOfBounds() []byte {
	b := newBuilder("world oob {\n  export poke: func() -> u32\n}")
	b.mod.Memories = append(b.mod.Memories, wasm.MemoryType{Min: 1})

	var c bytes.Buffer
	c.Write(wasm.I32Const(0x7ffffff0))
	memOp(&c, wasm.OpI32Load, 2, 0)
	c.WriteByte(wasm.OpEnd)
	idx := b.addFunc(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, nil, c.Bytes())
	b.exportFunc("poke", idx)
	return b.build()
}

// StartTrap builds a component whose start routine traps.
func StartTrap() []byte {
	b := newBuilder("world crasher {\n  export noop: func()\n}")
	noopIdx := b.addFunc(wasm.FuncType{}, nil, []byte{wasm.OpEnd})
	b.exportFunc("noop", noopIdx)
	startIdx := b.addFunc(wasm.FuncType{}, nil, []byte{wasm.OpUnreachable, wasm.OpEnd})
	b.mod.Start = &startIdx
	return b.build()
}

// Recurser builds a component whose ping export forwards its argument
// to an imported pong, unconditionally. Binding pong to a host
// function that calls ping again produces unbounded reentrancy.
func Recurser() []byte {
	b := newBuilder("world recurser {\n  import pong: func(n: u32) -> u32\n  export ping: func(n: u32) -> u32\n}")
	pongIdx := b.addImport("pong", wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})

	var c bytes.Buffer
	op(&c, wasm.OpLocalGet, 0)
	op(&c, wasm.OpCall, pongIdx)
	c.WriteByte(wasm.OpEnd)
	idx := b.addFunc(
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		nil, c.Bytes(),
	)
	b.exportFunc("ping", idx)
	return b.build()
}

// Keeper builds a component whose keep export passes a handle through
// unchanged. Handles are opaque u32s to the guest.
func Keeper() []byte {
	b := newBuilder("world keeper {\n  export keep: func(h: handle<blob>) -> handle<blob>\n}")

	var c bytes.Buffer
	op(&c, wasm.OpLocalGet, 0)
	c.WriteByte(wasm.OpEnd)
	idx := b.addFunc(
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		nil, c.Bytes(),
	)
	b.exportFunc("keep", idx)
	return b.build()
}

// WithWorld re-embeds a different world text into an existing binary,
// for building deliberately mismatched components.
func WithWorld(binary []byte, world string) []byte {
	m, err := wasm.Decode(binary)
	if err != nil {
		panic(err)
	}
	for i := range m.Customs {
		if m.Customs[i].Name == "component-world" {
			m.Customs[i].Data = []byte(world)
		}
	}
	return m.Encode()
}
