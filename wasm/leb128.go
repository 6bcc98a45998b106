package wasm

import "bytes"

// WriteLEB128u appends an unsigned LEB128 encoding of v.
func WriteLEB128u(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// WriteLEB128s appends a signed LEB128 encoding of v.
func WriteLEB128s(buf *bytes.Buffer, v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		buf.WriteByte(b)
		if done {
			return
		}
	}
}

// ReadLEB128u reads an unsigned LEB128 value from data at offset,
// returning the value and the number of bytes consumed. A zero size
// means the encoding was truncated or overlong.
func ReadLEB128u(data []byte, offset int) (uint64, int) {
	var result uint64
	var shift uint
	for i := 0; i < 10; i++ {
		if offset+i >= len(data) {
			return 0, 0
		}
		b := data[offset+i]
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// ReadLEB128s reads a signed LEB128 value from data at offset.
func ReadLEB128s(data []byte, offset int) (int64, int) {
	var result int64
	var shift uint
	for i := 0; i < 10; i++ {
		if offset+i >= len(data) {
			return 0, 0
		}
		b := data[offset+i]
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i + 1
		}
	}
	return 0, 0
}
