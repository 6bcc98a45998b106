package abi

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	domhost "github.com/domforge/domhost"
	"github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/schema"
)

// Lower converts one host value into the single core stack value that
// carries it across the boundary, allocating blocks in the callee's
// memory for compound types. slot names the export or import being
// called and path locates the value for error reporting.
func Lower(mem domhost.Memory, alloc domhost.Allocator, slot string, path []string, t schema.ValueType, v any) (uint64, error) {
	e := &enc{mem: mem, alloc: alloc, slot: slot}
	switch t.Kind {
	case schema.KindString:
		s, ok := v.(string)
		if !ok {
			return 0, e.mismatch(path, t, v)
		}
		ptr, err := e.newString(s)
		return uint64(ptr), err
	case schema.KindList:
		ptr, err := e.newList(path, t, v)
		return uint64(ptr), err
	case schema.KindRecord, schema.KindVariant, schema.KindOption, schema.KindResult:
		size, align := SizeAlign(t)
		ptr, err := e.allocate(size, align)
		if err != nil {
			return 0, err
		}
		return uint64(ptr), e.store(path, t, v, ptr)
	default:
		return e.scalar(path, t, v)
	}
}

// Lift converts one core stack value back into a host value, reading
// compound blocks from the caller's view of guest memory.
func Lift(mem domhost.Memory, slot string, t schema.ValueType, raw uint64) (any, error) {
	d := &dec{mem: mem, slot: slot}
	switch t.Kind {
	case schema.KindString:
		return d.readString(uint32(raw))
	case schema.KindList:
		return d.readList(t, uint32(raw))
	case schema.KindRecord, schema.KindVariant, schema.KindOption, schema.KindResult:
		return d.load(t, uint32(raw))
	default:
		return liftScalar(t, raw), nil
	}
}

type enc struct {
	mem   domhost.Memory
	alloc domhost.Allocator
	slot  string
}

func (e *enc) mismatch(path []string, t schema.ValueType, v any) error {
	return errors.ArgumentType(e.slot, clonePath(path),
		fmt.Sprintf("cannot use %T as %s", v, t))
}

func (e *enc) allocate(size, align uint32) (uint32, error) {
	if size == 0 {
		size = 1
	}
	ptr, err := e.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(size, align, err)
	}
	return ptr, nil
}

// scalar encodes a scalar value as its core stack representation.
func (e *enc) scalar(path []string, t schema.ValueType, v any) (uint64, error) {
	switch t.Kind {
	case schema.KindBool:
		b, ok := v.(bool)
		if !ok {
			return 0, e.mismatch(path, t, v)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case schema.KindS8, schema.KindS16, schema.KindS32, schema.KindS64:
		n, ok := asInt64(v)
		if !ok {
			return 0, e.mismatch(path, t, v)
		}
		lo, hi := signedRange(t.Kind)
		if n < lo || n > hi {
			return 0, errors.ArgumentType(e.slot, clonePath(path),
				fmt.Sprintf("%d out of range for %s", n, t))
		}
		if t.Kind == schema.KindS64 {
			return uint64(n), nil
		}
		return uint64(uint32(int32(n))), nil
	case schema.KindU8, schema.KindU16, schema.KindU32, schema.KindU64:
		n, ok := asUint64(v)
		if !ok {
			return 0, e.mismatch(path, t, v)
		}
		if max := unsignedMax(t.Kind); n > max {
			return 0, errors.ArgumentType(e.slot, clonePath(path),
				fmt.Sprintf("%d out of range for %s", n, t))
		}
		return n, nil
	case schema.KindF32:
		f, ok := asFloat64(v)
		if !ok {
			return 0, e.mismatch(path, t, v)
		}
		return uint64(math.Float32bits(float32(f))), nil
	case schema.KindF64:
		f, ok := asFloat64(v)
		if !ok {
			return 0, e.mismatch(path, t, v)
		}
		return math.Float64bits(f), nil
	case schema.KindChar:
		n, ok := asInt64(v)
		if !ok {
			return 0, e.mismatch(path, t, v)
		}
		r := rune(n)
		if !utf8.ValidRune(r) {
			return 0, errors.ArgumentType(e.slot, clonePath(path),
				fmt.Sprintf("%#x is not a valid char", n))
		}
		return uint64(uint32(r)), nil
	case schema.KindHandle:
		switch h := v.(type) {
		case Handle:
			return uint64(h), nil
		case uint32:
			return uint64(h), nil
		}
		return 0, e.mismatch(path, t, v)
	default:
		return 0, e.mismatch(path, t, v)
	}
}

// store writes a value at a fixed address inside an enclosing block.
func (e *enc) store(path []string, t schema.ValueType, v any, addr uint32) error {
	switch t.Kind {
	case schema.KindString:
		s, ok := v.(string)
		if !ok {
			return e.mismatch(path, t, v)
		}
		ptr, err := e.newString(s)
		if err != nil {
			return err
		}
		return e.writeN(addr, 4, uint64(ptr))
	case schema.KindList:
		ptr, err := e.newList(path, t, v)
		if err != nil {
			return err
		}
		return e.writeN(addr, 4, uint64(ptr))
	case schema.KindRecord:
		m, ok := v.(map[string]any)
		if !ok {
			return e.mismatch(path, t, v)
		}
		if len(m) != len(t.Fields) {
			return errors.ArgumentType(e.slot, clonePath(path),
				fmt.Sprintf("record has %d field(s), got %d key(s)", len(t.Fields), len(m)))
		}
		offsets := fieldOffsets(t)
		for i, f := range t.Fields {
			fv, present := m[f.Name]
			if !present {
				return errors.ArgumentType(e.slot, append(clonePath(path), f.Name), "missing record field")
			}
			if err := e.store(append(path, f.Name), f.Type, fv, addr+offsets[i]); err != nil {
				return err
			}
		}
		return nil
	case schema.KindVariant, schema.KindOption, schema.KindResult:
		idx, payload, err := e.pickCase(path, t, v)
		if err != nil {
			return err
		}
		if err := e.writeN(addr, 4, uint64(idx)); err != nil {
			return err
		}
		cases := casesOf(t)
		if cases[idx].Type == nil {
			return nil
		}
		payloadOff, _, _ := variantLayout(t)
		return e.store(append(path, cases[idx].Name), *cases[idx].Type, payload, addr+payloadOff)
	default:
		raw, err := e.scalar(path, t, v)
		if err != nil {
			return err
		}
		size, _ := SizeAlign(t)
		return e.writeN(addr, size, raw)
	}
}

// pickCase resolves the discriminant and payload for variant-shaped
// types from their host wrapper values.
func (e *enc) pickCase(path []string, t schema.ValueType, v any) (uint32, any, error) {
	cases := casesOf(t)
	switch t.Kind {
	case schema.KindOption:
		if v == nil {
			return 0, nil, nil
		}
		o, ok := v.(Option)
		if !ok {
			return 0, nil, e.mismatch(path, t, v)
		}
		if !o.Some {
			return 0, nil, nil
		}
		return 1, o.Value, nil
	case schema.KindResult:
		r, ok := v.(Result)
		if !ok {
			return 0, nil, e.mismatch(path, t, v)
		}
		idx := uint32(0)
		if r.IsErr {
			idx = 1
		}
		if cases[idx].Type == nil && r.Value != nil {
			return 0, nil, errors.ArgumentType(e.slot, clonePath(path),
				fmt.Sprintf("%s case of %s carries no payload", cases[idx].Name, t))
		}
		return idx, r.Value, nil
	default:
		va, ok := v.(Variant)
		if !ok {
			return 0, nil, e.mismatch(path, t, v)
		}
		for i, c := range cases {
			if c.Name != va.Case {
				continue
			}
			if c.Type == nil && va.Payload != nil {
				return 0, nil, errors.ArgumentType(e.slot, clonePath(path),
					fmt.Sprintf("case %s carries no payload", c.Name))
			}
			return uint32(i), va.Payload, nil
		}
		return 0, nil, errors.ArgumentType(e.slot, clonePath(path),
			fmt.Sprintf("unknown case %q for %s", va.Case, t))
	}
}

func (e *enc) newString(s string) (uint32, error) {
	ptr, err := e.allocate(4+uint32(len(s)), 4)
	if err != nil {
		return 0, err
	}
	if err := e.writeN(ptr, 4, uint64(len(s))); err != nil {
		return 0, err
	}
	if err := e.mem.Write(ptr+4, []byte(s)); err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write string bytes")
	}
	return ptr, nil
}

func (e *enc) newList(path []string, t schema.ValueType, v any) (uint32, error) {
	elem := *t.Elem

	var items []any
	switch xs := v.(type) {
	case []any:
		items = xs
	case []byte:
		if elem.Kind != schema.KindU8 {
			return 0, e.mismatch(path, t, v)
		}
		items = make([]any, len(xs))
		for i, b := range xs {
			items[i] = b
		}
	default:
		return 0, e.mismatch(path, t, v)
	}

	es, ea := SizeAlign(elem)
	first := alignUp(4, ea)
	blockAlign := uint32(4)
	if ea > blockAlign {
		blockAlign = ea
	}
	ptr, err := e.allocate(first+uint32(len(items))*es, blockAlign)
	if err != nil {
		return 0, err
	}
	if err := e.writeN(ptr, 4, uint64(len(items))); err != nil {
		return 0, err
	}
	for i, item := range items {
		p := append(path, strconv.Itoa(i))
		if err := e.store(p, elem, item, ptr+first+uint32(i)*es); err != nil {
			return 0, err
		}
	}
	return ptr, nil
}

func (e *enc) writeN(addr, size uint32, raw uint64) error {
	buf := make([]byte, size)
	switch size {
	case 1:
		buf[0] = byte(raw)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(raw))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(raw))
	case 8:
		binary.LittleEndian.PutUint64(buf, raw)
	}
	if err := e.mem.Write(addr, buf); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "guest memory write")
	}
	return nil
}

type dec struct {
	mem  domhost.Memory
	slot string
}

func (d *dec) readN(addr, size uint32) (uint64, error) {
	buf, err := d.mem.Read(addr, size)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "guest memory read")
	}
	switch size {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	default:
		return binary.LittleEndian.Uint64(buf), nil
	}
}

// load reads a value embedded at a fixed address.
func (d *dec) load(t schema.ValueType, addr uint32) (any, error) {
	switch t.Kind {
	case schema.KindString:
		ptr, err := d.readN(addr, 4)
		if err != nil {
			return nil, err
		}
		return d.readString(uint32(ptr))
	case schema.KindList:
		ptr, err := d.readN(addr, 4)
		if err != nil {
			return nil, err
		}
		return d.readList(t, uint32(ptr))
	case schema.KindRecord:
		offsets := fieldOffsets(t)
		m := make(map[string]any, len(t.Fields))
		for i, f := range t.Fields {
			fv, err := d.load(f.Type, addr+offsets[i])
			if err != nil {
				return nil, err
			}
			m[f.Name] = fv
		}
		return m, nil
	case schema.KindVariant, schema.KindOption, schema.KindResult:
		raw, err := d.readN(addr, 4)
		if err != nil {
			return nil, err
		}
		cases := casesOf(t)
		idx := uint32(raw)
		if int(idx) >= len(cases) {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
				Slot(d.slot).
				Detail("discriminant %d out of range for %s", idx, t).
				Build()
		}
		var payload any
		if cases[idx].Type != nil {
			payloadOff, _, _ := variantLayout(t)
			payload, err = d.load(*cases[idx].Type, addr+payloadOff)
			if err != nil {
				return nil, err
			}
		}
		switch t.Kind {
		case schema.KindOption:
			return Option{Some: idx == 1, Value: payload}, nil
		case schema.KindResult:
			return Result{IsErr: idx == 1, Value: payload}, nil
		default:
			return Variant{Case: cases[idx].Name, Payload: payload}, nil
		}
	default:
		size, _ := SizeAlign(t)
		raw, err := d.readN(addr, size)
		if err != nil {
			return nil, err
		}
		return liftScalar(t, raw), nil
	}
}

func (d *dec) readString(ptr uint32) (string, error) {
	n, err := d.readN(ptr, 4)
	if err != nil {
		return "", err
	}
	buf, err := d.mem.Read(ptr+4, uint32(n))
	if err != nil {
		return "", errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read string bytes")
	}
	return string(buf), nil
}

func (d *dec) readList(t schema.ValueType, ptr uint32) ([]any, error) {
	raw, err := d.readN(ptr, 4)
	if err != nil {
		return nil, err
	}
	count := uint32(raw)
	elem := *t.Elem
	es, ea := SizeAlign(elem)
	if uint64(count)*uint64(es) > uint64(d.mem.Size()) {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Slot(d.slot).
			Detail("list of %d elements exceeds memory", count).
			Build()
	}
	first := ptr + alignUp(4, ea)
	out := make([]any, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := d.load(elem, first+i*es)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// liftScalar decodes a scalar from its core stack representation.
func liftScalar(t schema.ValueType, raw uint64) any {
	switch t.Kind {
	case schema.KindBool:
		return raw != 0
	case schema.KindS8:
		return int8(uint8(raw))
	case schema.KindU8:
		return uint8(raw)
	case schema.KindS16:
		return int16(uint16(raw))
	case schema.KindU16:
		return uint16(raw)
	case schema.KindS32:
		return int32(uint32(raw))
	case schema.KindU32:
		return uint32(raw)
	case schema.KindS64:
		return int64(raw)
	case schema.KindU64:
		return raw
	case schema.KindF32:
		return math.Float32frombits(uint32(raw))
	case schema.KindF64:
		return math.Float64frombits(raw)
	case schema.KindChar:
		return rune(uint32(raw))
	default:
		return Handle(uint32(raw))
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func asUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	case int:
		if x >= 0 {
			return uint64(x), true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func signedRange(k schema.Kind) (int64, int64) {
	switch k {
	case schema.KindS8:
		return math.MinInt8, math.MaxInt8
	case schema.KindS16:
		return math.MinInt16, math.MaxInt16
	case schema.KindS32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func unsignedMax(k schema.Kind) uint64 {
	switch k {
	case schema.KindU8:
		return math.MaxUint8
	case schema.KindU16:
		return math.MaxUint16
	case schema.KindU32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

func clonePath(path []string) []string {
	if len(path) == 0 {
		return nil
	}
	out := make([]string, len(path))
	copy(out, path)
	return out
}
