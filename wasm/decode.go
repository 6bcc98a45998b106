package wasm

import (
	"encoding/binary"
	"fmt"
)

// Decode parses a binary core module. Sections the host does not
// interpret (tables, elements, data count) are validated just enough
// to be skipped.
func Decode(data []byte) (*Module, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("module too short: %d bytes", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != Magic {
		return nil, fmt.Errorf("bad magic")
	}
	if binary.LittleEndian.Uint32(data[4:8]) != Version {
		return nil, fmt.Errorf("unsupported version %d", binary.LittleEndian.Uint32(data[4:8]))
	}

	m := &Module{}
	pos := 8
	for pos < len(data) {
		id := data[pos]
		pos++
		size, n := ReadLEB128u(data, pos)
		if n == 0 {
			return nil, fmt.Errorf("truncated section size at offset %d", pos)
		}
		pos += n
		if pos+int(size) > len(data) {
			return nil, fmt.Errorf("section %d overruns module", id)
		}
		body := data[pos : pos+int(size)]
		pos += int(size)

		var err error
		switch id {
		case SectionCustom:
			err = m.decodeCustom(body)
		case SectionType:
			err = m.decodeTypes(body)
		case SectionImport:
			err = m.decodeImports(body)
		case SectionFunction:
			err = m.decodeFunctions(body)
		case SectionMemory:
			err = m.decodeMemories(body)
		case SectionGlobal:
			err = m.decodeGlobals(body)
		case SectionExport:
			err = m.decodeExports(body)
		case SectionStart:
			idx, n := ReadLEB128u(body, 0)
			if n == 0 {
				err = fmt.Errorf("truncated start section")
			} else {
				v := uint32(idx)
				m.Start = &v
			}
		case SectionCode:
			err = m.decodeCode(body)
		case SectionData:
			err = m.decodeData(body)
		case SectionTable, SectionElement, SectionDataCount:
			// not interpreted
		default:
			err = fmt.Errorf("unknown section id %d", id)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(m.Code) != len(m.Funcs) {
		return nil, fmt.Errorf("code section has %d bodies for %d functions", len(m.Code), len(m.Funcs))
	}
	return m, nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) u32(what string) (uint32, error) {
	v, n := ReadLEB128u(r.data, r.pos)
	if n == 0 {
		return 0, fmt.Errorf("truncated %s", what)
	}
	r.pos += n
	return uint32(v), nil
}

func (r *reader) byte(what string) (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("truncated %s", what)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(count uint32, what string) ([]byte, error) {
	if r.pos+int(count) > len(r.data) {
		return nil, fmt.Errorf("truncated %s", what)
	}
	b := r.data[r.pos : r.pos+int(count)]
	r.pos += int(count)
	return b, nil
}

func (r *reader) name() (string, error) {
	n, err := r.u32("name length")
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n, "name")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) valType() (ValType, error) {
	b, err := r.byte("value type")
	if err != nil {
		return 0, err
	}
	vt := ValType(b)
	switch vt {
	case ValI32, ValI64, ValF32, ValF64:
		return vt, nil
	}
	return 0, fmt.Errorf("unsupported value type 0x%02x", b)
}

func (r *reader) valTypes(what string) ([]ValType, error) {
	count, err := r.u32(what + " count")
	if err != nil {
		return nil, err
	}
	out := make([]ValType, 0, count)
	for i := uint32(0); i < count; i++ {
		vt, err := r.valType()
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, nil
}

func (r *reader) limits() (MemoryType, error) {
	flags, err := r.byte("limits flags")
	if err != nil {
		return MemoryType{}, err
	}
	min, err := r.u32("limits min")
	if err != nil {
		return MemoryType{}, err
	}
	mt := MemoryType{Min: uint64(min)}
	if flags&LimitsHasMax != 0 {
		max, err := r.u32("limits max")
		if err != nil {
			return MemoryType{}, err
		}
		v := uint64(max)
		mt.Max = &v
	}
	return mt, nil
}

// constExpr consumes a constant expression including its terminating
// end opcode and returns the raw bytes without the terminator.
func (r *reader) constExpr() ([]byte, error) {
	start := r.pos
	for {
		op, err := r.byte("const expr")
		if err != nil {
			return nil, err
		}
		switch op {
		case OpEnd:
			return r.data[start : r.pos-1], nil
		case OpI32Const:
			if _, n := ReadLEB128s(r.data, r.pos); n == 0 {
				return nil, fmt.Errorf("truncated i32.const")
			} else {
				r.pos += n
			}
		case OpI64Const:
			if _, n := ReadLEB128s(r.data, r.pos); n == 0 {
				return nil, fmt.Errorf("truncated i64.const")
			} else {
				r.pos += n
			}
		case OpF32Const:
			if _, err := r.bytes(4, "f32.const"); err != nil {
				return nil, err
			}
		case OpF64Const:
			if _, err := r.bytes(8, "f64.const"); err != nil {
				return nil, err
			}
		case OpGlobalGet:
			if _, err := r.u32("global.get index"); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported opcode 0x%02x in const expr", op)
		}
	}
}

func (m *Module) decodeCustom(body []byte) error {
	r := &reader{data: body}
	name, err := r.name()
	if err != nil {
		return err
	}
	m.Customs = append(m.Customs, CustomSection{Name: name, Data: body[r.pos:]})
	return nil
}

func (m *Module) decodeTypes(body []byte) error {
	r := &reader{data: body}
	count, err := r.u32("type count")
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tag, err := r.byte("type tag")
		if err != nil {
			return err
		}
		if tag != FuncTypeByte {
			return fmt.Errorf("type %d: tag 0x%02x is not a function type", i, tag)
		}
		params, err := r.valTypes("param")
		if err != nil {
			return err
		}
		results, err := r.valTypes("result")
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func (m *Module) decodeImports(body []byte) error {
	r := &reader{data: body}
	count, err := r.u32("import count")
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.name()
		if err != nil {
			return err
		}
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte("import kind")
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: name, Kind: kind}
		switch kind {
		case KindFunc:
			idx, err := r.u32("import type index")
			if err != nil {
				return err
			}
			imp.TypeIdx = idx
		case KindMemory:
			mt, err := r.limits()
			if err != nil {
				return err
			}
			imp.Mem = &mt
		case KindGlobal:
			vt, err := r.valType()
			if err != nil {
				return err
			}
			mut, err := r.byte("global mutability")
			if err != nil {
				return err
			}
			imp.Global = &GlobalType{ValType: vt, Mutable: mut == 1}
		default:
			return fmt.Errorf("import %s.%s: unsupported kind %d", mod, name, kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func (m *Module) decodeFunctions(body []byte) error {
	r := &reader{data: body}
	count, err := r.u32("function count")
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.u32("function type index")
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, idx)
	}
	return nil
}

func (m *Module) decodeMemories(body []byte) error {
	r := &reader{data: body}
	count, err := r.u32("memory count")
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mt, err := r.limits()
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, mt)
	}
	return nil
}

func (m *Module) decodeGlobals(body []byte) error {
	r := &reader{data: body}
	count, err := r.u32("global count")
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := r.valType()
		if err != nil {
			return err
		}
		mut, err := r.byte("global mutability")
		if err != nil {
			return err
		}
		init, err := r.constExpr()
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{
			Type: GlobalType{ValType: vt, Mutable: mut == 1},
			Init: init,
		})
	}
	return nil
}

func (m *Module) decodeExports(body []byte) error {
	r := &reader{data: body}
	count, err := r.u32("export count")
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte("export kind")
		if err != nil {
			return err
		}
		idx, err := r.u32("export index")
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
	}
	return nil
}

func (m *Module) decodeCode(body []byte) error {
	r := &reader{data: body}
	count, err := r.u32("code count")
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.u32("body size")
		if err != nil {
			return err
		}
		raw, err := r.bytes(size, "function body")
		if err != nil {
			return err
		}
		br := &reader{data: raw}
		localCount, err := br.u32("local group count")
		if err != nil {
			return err
		}
		var locals []LocalEntry
		for j := uint32(0); j < localCount; j++ {
			n, err := br.u32("local count")
			if err != nil {
				return err
			}
			vt, err := br.valType()
			if err != nil {
				return err
			}
			locals = append(locals, LocalEntry{Count: n, Type: vt})
		}
		m.Code = append(m.Code, FuncBody{Locals: locals, Code: raw[br.pos:]})
	}
	return nil
}

func (m *Module) decodeData(body []byte) error {
	r := &reader{data: body}
	count, err := r.u32("data count")
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.u32("data flags")
		if err != nil {
			return err
		}
		seg := DataSegment{}
		switch flags {
		case 0:
		case 2:
			idx, err := r.u32("data memory index")
			if err != nil {
				return err
			}
			seg.MemIdx = idx
		default:
			return fmt.Errorf("data segment %d: unsupported flags %d", i, flags)
		}
		offset, err := r.constExpr()
		if err != nil {
			return err
		}
		seg.Offset = offset
		size, err := r.u32("data size")
		if err != nil {
			return err
		}
		init, err := r.bytes(size, "data bytes")
		if err != nil {
			return err
		}
		seg.Init = init
		m.Data = append(m.Data, seg)
	}
	return nil
}
