package abi

import (
	"github.com/domforge/domhost/schema"
	"github.com/domforge/domhost/wasm"
)

// FlatType returns the core value type a schema type occupies on the
// call stack. Compounds travel as i32 pointers.
func FlatType(t schema.ValueType) wasm.ValType {
	switch t.Kind {
	case schema.KindS64, schema.KindU64:
		return wasm.ValI64
	case schema.KindF32:
		return wasm.ValF32
	case schema.KindF64:
		return wasm.ValF64
	default:
		return wasm.ValI32
	}
}

// FlatSignature maps a schema signature to the core signature a guest
// must export (or import) for it.
func FlatSignature(sig schema.FunctionSignature) wasm.FuncType {
	var ft wasm.FuncType
	for _, p := range sig.Params {
		ft.Params = append(ft.Params, FlatType(p.Type))
	}
	if sig.Result != nil {
		ft.Results = append(ft.Results, FlatType(*sig.Result))
	}
	return ft
}

// SizeAlign returns the byte size and alignment of a type when it is
// embedded in a packed block.
func SizeAlign(t schema.ValueType) (size, align uint32) {
	switch t.Kind {
	case schema.KindBool, schema.KindS8, schema.KindU8:
		return 1, 1
	case schema.KindS16, schema.KindU16:
		return 2, 2
	case schema.KindS64, schema.KindU64, schema.KindF64:
		return 8, 8
	case schema.KindRecord:
		var off, maxAlign uint32 = 0, 1
		for _, f := range t.Fields {
			fs, fa := SizeAlign(f.Type)
			off = alignUp(off, fa) + fs
			if fa > maxAlign {
				maxAlign = fa
			}
		}
		return alignUp(off, maxAlign), maxAlign
	case schema.KindVariant, schema.KindOption, schema.KindResult:
		payloadOff, payloadSize, a := variantLayout(t)
		return alignUp(payloadOff+payloadSize, a), a
	default:
		// s32, u32, f32, char, handle, and the u32 pointers that
		// stand in for string and list fields.
		return 4, 4
	}
}

// fieldOffsets returns each record field's byte offset within the
// record block.
func fieldOffsets(t schema.ValueType) []uint32 {
	offsets := make([]uint32, len(t.Fields))
	var off uint32
	for i, f := range t.Fields {
		fs, fa := SizeAlign(f.Type)
		off = alignUp(off, fa)
		offsets[i] = off
		off += fs
	}
	return offsets
}

// casesOf views options and results as two-case variants so the codec
// handles all three identically.
func casesOf(t schema.ValueType) []schema.Case {
	switch t.Kind {
	case schema.KindOption:
		return []schema.Case{{Name: "none"}, {Name: "some", Type: t.Elem}}
	case schema.KindResult:
		return []schema.Case{{Name: "ok", Type: t.OK}, {Name: "err", Type: t.Err}}
	default:
		return t.Cases
	}
}

// variantLayout returns the payload offset from the block start, the
// maximum payload size, and the overall alignment.
func variantLayout(t schema.ValueType) (payloadOff, payloadSize, align uint32) {
	var pAlign uint32 = 1
	for _, c := range casesOf(t) {
		if c.Type == nil {
			continue
		}
		cs, ca := SizeAlign(*c.Type)
		if cs > payloadSize {
			payloadSize = cs
		}
		if ca > pAlign {
			pAlign = ca
		}
	}
	align = 4
	if pAlign > align {
		align = pAlign
	}
	return alignUp(4, pAlign), payloadSize, align
}

func alignUp(x, a uint32) uint32 {
	return (x + a - 1) &^ (a - 1)
}
