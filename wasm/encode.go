package wasm

import (
	"bytes"
	"encoding/binary"
)

// Encode serializes the module in section-id order.
func (m *Module) Encode() []byte {
	var out bytes.Buffer
	var magic [8]byte
	binary.LittleEndian.PutUint32(magic[0:4], Magic)
	binary.LittleEndian.PutUint32(magic[4:8], Version)
	out.Write(magic[:])

	if len(m.Types) > 0 {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(len(m.Types)))
		for _, t := range m.Types {
			b.WriteByte(FuncTypeByte)
			writeValTypes(&b, t.Params)
			writeValTypes(&b, t.Results)
		}
		writeSection(&out, SectionType, b.Bytes())
	}

	if len(m.Imports) > 0 {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(len(m.Imports)))
		for _, imp := range m.Imports {
			writeName(&b, imp.Module)
			writeName(&b, imp.Name)
			b.WriteByte(imp.Kind)
			switch imp.Kind {
			case KindFunc:
				WriteLEB128u(&b, uint64(imp.TypeIdx))
			case KindMemory:
				writeLimits(&b, *imp.Mem)
			case KindGlobal:
				b.WriteByte(byte(imp.Global.ValType))
				writeBool(&b, imp.Global.Mutable)
			}
		}
		writeSection(&out, SectionImport, b.Bytes())
	}

	if len(m.Funcs) > 0 {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(len(m.Funcs)))
		for _, idx := range m.Funcs {
			WriteLEB128u(&b, uint64(idx))
		}
		writeSection(&out, SectionFunction, b.Bytes())
	}

	if len(m.Memories) > 0 {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(len(m.Memories)))
		for _, mt := range m.Memories {
			writeLimits(&b, mt)
		}
		writeSection(&out, SectionMemory, b.Bytes())
	}

	if len(m.Globals) > 0 {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(len(m.Globals)))
		for _, g := range m.Globals {
			b.WriteByte(byte(g.Type.ValType))
			writeBool(&b, g.Type.Mutable)
			b.Write(g.Init)
			b.WriteByte(OpEnd)
		}
		writeSection(&out, SectionGlobal, b.Bytes())
	}

	if len(m.Exports) > 0 {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(len(m.Exports)))
		for _, e := range m.Exports {
			writeName(&b, e.Name)
			b.WriteByte(e.Kind)
			WriteLEB128u(&b, uint64(e.Idx))
		}
		writeSection(&out, SectionExport, b.Bytes())
	}

	if m.Start != nil {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(*m.Start))
		writeSection(&out, SectionStart, b.Bytes())
	}

	if len(m.Code) > 0 {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(len(m.Code)))
		for _, body := range m.Code {
			var fb bytes.Buffer
			WriteLEB128u(&fb, uint64(len(body.Locals)))
			for _, l := range body.Locals {
				WriteLEB128u(&fb, uint64(l.Count))
				fb.WriteByte(byte(l.Type))
			}
			fb.Write(body.Code)
			WriteLEB128u(&b, uint64(fb.Len()))
			b.Write(fb.Bytes())
		}
		writeSection(&out, SectionCode, b.Bytes())
	}

	if len(m.Data) > 0 {
		var b bytes.Buffer
		WriteLEB128u(&b, uint64(len(m.Data)))
		for _, seg := range m.Data {
			if seg.MemIdx != 0 {
				WriteLEB128u(&b, 2)
				WriteLEB128u(&b, uint64(seg.MemIdx))
			} else {
				WriteLEB128u(&b, 0)
			}
			b.Write(seg.Offset)
			b.WriteByte(OpEnd)
			WriteLEB128u(&b, uint64(len(seg.Init)))
			b.Write(seg.Init)
		}
		writeSection(&out, SectionData, b.Bytes())
	}

	for _, cs := range m.Customs {
		var b bytes.Buffer
		writeName(&b, cs.Name)
		b.Write(cs.Data)
		writeSection(&out, SectionCustom, b.Bytes())
	}

	return out.Bytes()
}

func writeSection(out *bytes.Buffer, id byte, body []byte) {
	out.WriteByte(id)
	WriteLEB128u(out, uint64(len(body)))
	out.Write(body)
}

func writeName(b *bytes.Buffer, s string) {
	WriteLEB128u(b, uint64(len(s)))
	b.WriteString(s)
}

func writeValTypes(b *bytes.Buffer, ts []ValType) {
	WriteLEB128u(b, uint64(len(ts)))
	for _, t := range ts {
		b.WriteByte(byte(t))
	}
}

func writeLimits(b *bytes.Buffer, mt MemoryType) {
	if mt.Max != nil {
		b.WriteByte(LimitsHasMax)
		WriteLEB128u(b, mt.Min)
		WriteLEB128u(b, *mt.Max)
	} else {
		b.WriteByte(0)
		WriteLEB128u(b, mt.Min)
	}
}

func writeBool(b *bytes.Buffer, v bool) {
	if v {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
}

// I32Const builds an i32.const instruction.
func I32Const(v int32) []byte {
	var b bytes.Buffer
	b.WriteByte(OpI32Const)
	WriteLEB128s(&b, int64(v))
	return b.Bytes()
}
