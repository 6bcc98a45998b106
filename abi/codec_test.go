package abi

import (
	stderrors "errors"
	"testing"

	domerrors "github.com/domforge/domhost/errors"
	"github.com/domforge/domhost/schema"
)

// testMemory is a flat byte slice with a bump allocator, standing in
// for an instance's linear memory.
type testMemory struct {
	data []byte
	next uint32
}

func newTestMemory(size uint32) *testMemory {
	return &testMemory{data: make([]byte, size), next: 8}
}

func (m *testMemory) Read(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return nil, domerrors.OutOfBounds(domerrors.PhaseDecode, offset, length, uint32(len(m.data)))
	}
	return m.data[offset : offset+length], nil
}

func (m *testMemory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return domerrors.OutOfBounds(domerrors.PhaseEncode, offset, uint32(len(data)), uint32(len(m.data)))
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *testMemory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m *testMemory) WriteU32(offset, value uint32) error {
	return m.Write(offset, []byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)})
}

func (m *testMemory) ReadU64(offset uint32) (uint64, error) {
	lo, err := m.ReadU32(offset)
	if err != nil {
		return 0, err
	}
	hi, err := m.ReadU32(offset + 4)
	if err != nil {
		return 0, err
	}
	return uint64(lo) | uint64(hi)<<32, nil
}

func (m *testMemory) WriteU64(offset uint32, value uint64) error {
	if err := m.WriteU32(offset, uint32(value)); err != nil {
		return err
	}
	return m.WriteU32(offset+4, uint32(value>>32))
}

func (m *testMemory) Size() uint32 { return uint32(len(m.data)) }

func (m *testMemory) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	ptr := (m.next + align - 1) &^ (align - 1)
	if uint64(ptr)+uint64(size) > uint64(len(m.data)) {
		return 0, domerrors.OutOfBounds(domerrors.PhaseEncode, ptr, size, uint32(len(m.data)))
	}
	m.next = ptr + size
	return ptr, nil
}

func roundTrip(t *testing.T, vt schema.ValueType, v any) any {
	t.Helper()
	mem := newTestMemory(1 << 16)
	raw, err := Lower(mem, mem, "test", nil, vt, v)
	if err != nil {
		t.Fatalf("lower %s %v: %v", vt, v, err)
	}
	got, err := Lift(mem, "test", vt, raw)
	if err != nil {
		t.Fatalf("lift %s: %v", vt, err)
	}
	return got
}

func TestScalarRoundTrip(t *testing.T) {
	cases := []struct {
		vt   schema.ValueType
		in   any
		want any
	}{
		{schema.Bool(), true, true},
		{schema.Bool(), false, false},
		{schema.S8(), int8(-5), int8(-5)},
		{schema.U8(), uint8(200), uint8(200)},
		{schema.S16(), int16(-30000), int16(-30000)},
		{schema.U16(), uint16(60000), uint16(60000)},
		{schema.S32(), int32(-1), int32(-1)},
		{schema.U32(), uint32(4000000000), uint32(4000000000)},
		{schema.S64(), int64(-1 << 60), int64(-1 << 60)},
		{schema.U64(), uint64(1) << 63, uint64(1) << 63},
		{schema.F32(), float32(3.5), float32(3.5)},
		{schema.F64(), 2.25, 2.25},
		{schema.Char(), 'é', 'é'},
		{schema.Handle("node"), Handle(7), Handle(7)},
		// plain int is accepted for integer kinds
		{schema.U32(), 42, uint32(42)},
		{schema.S32(), -42, int32(-42)},
	}
	for _, tc := range cases {
		if got := roundTrip(t, tc.vt, tc.in); got != tc.want {
			t.Errorf("%s: round trip of %v = %v (%T), want %v (%T)", tc.vt, tc.in, got, got, tc.want, tc.want)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "Hello from Go!", "héllo wörld", "日本語"} {
		if got := roundTrip(t, schema.String(), s); got != s {
			t.Errorf("round trip %q = %q", s, got)
		}
	}
}

func TestListRoundTrip(t *testing.T) {
	got := roundTrip(t, schema.List(schema.U32()), []any{uint32(1), uint32(2), uint32(3)})
	xs := got.([]any)
	if len(xs) != 3 || xs[0] != uint32(1) || xs[2] != uint32(3) {
		t.Errorf("list = %v", xs)
	}

	// list<string> nests a pointer per element
	got = roundTrip(t, schema.List(schema.String()), []any{"a", "bc"})
	ss := got.([]any)
	if len(ss) != 2 || ss[0] != "a" || ss[1] != "bc" {
		t.Errorf("list<string> = %v", ss)
	}

	// []byte is accepted for list<u8>
	got = roundTrip(t, schema.List(schema.U8()), []byte{9, 8})
	bs := got.([]any)
	if len(bs) != 2 || bs[0] != uint8(9) {
		t.Errorf("list<u8> = %v", bs)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	attr := schema.Record(
		schema.Field{Name: "name", Type: schema.String()},
		schema.Field{Name: "value", Type: schema.String()},
		schema.Field{Name: "weight", Type: schema.U64()},
	)
	got := roundTrip(t, attr, map[string]any{
		"name":   "class",
		"value":  "header",
		"weight": uint64(10),
	})
	m := got.(map[string]any)
	if m["name"] != "class" || m["value"] != "header" || m["weight"] != uint64(10) {
		t.Errorf("record = %v", m)
	}
}

func TestVariantRoundTrip(t *testing.T) {
	str := schema.String()
	kind := schema.Variant(
		schema.Case{Name: "element", Type: &str},
		schema.Case{Name: "comment"},
	)

	got := roundTrip(t, kind, Variant{Case: "element", Payload: "div"})
	v := got.(Variant)
	if v.Case != "element" || v.Payload != "div" {
		t.Errorf("variant = %+v", v)
	}

	got = roundTrip(t, kind, Variant{Case: "comment"})
	if v := got.(Variant); v.Case != "comment" || v.Payload != nil {
		t.Errorf("payloadless variant = %+v", v)
	}
}

func TestOptionResultRoundTrip(t *testing.T) {
	opt := schema.Option(schema.String())
	if got := roundTrip(t, opt, Some("text")).(Option); !got.Some || got.Value != "text" {
		t.Errorf("some = %+v", got)
	}
	if got := roundTrip(t, opt, None()).(Option); got.Some {
		t.Errorf("none = %+v", got)
	}
	// nil lowers as none
	if got := roundTrip(t, opt, nil).(Option); got.Some {
		t.Errorf("nil = %+v", got)
	}

	u32 := schema.U32()
	str := schema.String()
	res := schema.Result(&u32, &str)
	if got := roundTrip(t, res, OK(uint32(7))).(Result); got.IsErr || got.Value != uint32(7) {
		t.Errorf("ok = %+v", got)
	}
	if got := roundTrip(t, res, Err("nope")).(Result); !got.IsErr || got.Value != "nope" {
		t.Errorf("err = %+v", got)
	}
}

func TestNestedCompound(t *testing.T) {
	node := schema.Record(
		schema.Field{Name: "tag", Type: schema.String()},
		schema.Field{Name: "children", Type: schema.List(schema.U32())},
		schema.Field{Name: "parent", Type: schema.Option(schema.U32())},
	)
	got := roundTrip(t, node, map[string]any{
		"tag":      "div",
		"children": []any{uint32(2), uint32(3)},
		"parent":   Some(uint32(1)),
	})
	m := got.(map[string]any)
	if m["tag"] != "div" {
		t.Errorf("tag = %v", m["tag"])
	}
	if kids := m["children"].([]any); len(kids) != 2 || kids[1] != uint32(3) {
		t.Errorf("children = %v", m["children"])
	}
	if p := m["parent"].(Option); !p.Some || p.Value != uint32(1) {
		t.Errorf("parent = %v", m["parent"])
	}
}

func TestLowerTypeMismatches(t *testing.T) {
	mem := newTestMemory(1 << 12)
	cases := []struct {
		name string
		vt   schema.ValueType
		v    any
	}{
		{"string for u32", schema.U32(), "7"},
		{"negative for u32", schema.U32(), -1},
		{"overflow u8", schema.U8(), 300},
		{"overflow s8", schema.S8(), 200},
		{"bool for string", schema.String(), true},
		{"map for list", schema.List(schema.U32()), map[string]any{}},
		{"missing record field", schema.Record(schema.Field{Name: "a", Type: schema.U32()}), map[string]any{}},
		{"unknown variant case", schema.Variant(schema.Case{Name: "x"}), Variant{Case: "y"}},
		{"payload on bare case", schema.Variant(schema.Case{Name: "x"}), Variant{Case: "x", Payload: 1}},
		{"invalid char", schema.Char(), 0xd800},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Lower(mem, mem, "f", nil, tc.vt, tc.v)
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, &domerrors.Error{Phase: domerrors.PhaseCall, Kind: domerrors.KindArgumentType}) {
				t.Errorf("error = %v, want argument_type", err)
			}
		})
	}
}

func TestLowerErrorPath(t *testing.T) {
	mem := newTestMemory(1 << 12)
	node := schema.Record(
		schema.Field{Name: "tags", Type: schema.List(schema.String())},
	)
	_, err := Lower(mem, mem, "f", nil, node, map[string]any{
		"tags": []any{"ok", 5},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var de *domerrors.Error
	if !stderrors.As(err, &de) {
		t.Fatalf("error type = %T", err)
	}
	if len(de.Path) != 2 || de.Path[0] != "tags" || de.Path[1] != "1" {
		t.Errorf("path = %v, want [tags 1]", de.Path)
	}
}

func TestLiftOutOfBounds(t *testing.T) {
	mem := newTestMemory(64)
	// pointer far past the end of memory
	_, err := Lift(mem, "f", schema.String(), 1<<20)
	if err == nil {
		t.Fatal("expected error")
	}
	if !stderrors.Is(err, &domerrors.Error{Phase: domerrors.PhaseDecode, Kind: domerrors.KindOutOfBounds}) {
		t.Errorf("error = %v, want decode out_of_bounds", err)
	}
}

func TestFlatSignature(t *testing.T) {
	u64 := schema.U64()
	sig := schema.FunctionSignature{
		Params: []schema.Param{
			{Name: "a", Type: schema.String()},
			{Name: "b", Type: schema.U64()},
			{Name: "c", Type: schema.F32()},
		},
		Result: &u64,
	}
	ft := FlatSignature(sig)
	if len(ft.Params) != 3 || ft.Params[0].String() != "i32" || ft.Params[1].String() != "i64" || ft.Params[2].String() != "f32" {
		t.Errorf("params = %v", ft.Params)
	}
	if len(ft.Results) != 1 || ft.Results[0].String() != "i64" {
		t.Errorf("results = %v", ft.Results)
	}
}

func TestSizeAlign(t *testing.T) {
	rec := schema.Record(
		schema.Field{Name: "a", Type: schema.U8()},
		schema.Field{Name: "b", Type: schema.U64()},
		schema.Field{Name: "c", Type: schema.U16()},
	)
	size, align := SizeAlign(rec)
	if size != 24 || align != 8 {
		t.Errorf("record size/align = %d/%d, want 24/8", size, align)
	}

	u64 := schema.U64()
	res := schema.Result(&u64, nil)
	size, align = SizeAlign(res)
	if size != 16 || align != 8 {
		t.Errorf("result<u64> size/align = %d/%d, want 16/8", size, align)
	}

	size, align = SizeAlign(schema.Option(schema.U8()))
	if size != 8 || align != 4 {
		t.Errorf("option<u8> size/align = %d/%d, want 8/4", size, align)
	}
}
