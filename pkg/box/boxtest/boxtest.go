// Package boxtest builds ISO BMFF byte buffers for tests.
package boxtest

import "encoding/binary"

// Box returns a compact box of type typ whose payload is the concatenation of parts.
func Box(typ string, parts ...[]byte) []byte {
	body := Concat(parts...)
	buf := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(buf, uint32(8+len(body)))
	copy(buf[4:], typ)
	return append(buf, body...)
}

// FullBox returns a box whose payload starts with a zero version and flags word.
func FullBox(typ string, parts ...[]byte) []byte {
	return Box(typ, append([][]byte{{0, 0, 0, 0}}, parts...)...)
}

// LargeBox returns a box using the 64-bit size form.
func LargeBox(typ string, parts ...[]byte) []byte {
	body := Concat(parts...)
	buf := make([]byte, 16, 16+len(body))
	binary.BigEndian.PutUint32(buf, 1)
	copy(buf[4:], typ)
	binary.BigEndian.PutUint64(buf[8:], uint64(16+len(body)))
	return append(buf, body...)
}

// Header returns a bare 8-byte header with an arbitrary size field.
func Header(size uint32, typ string) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf, size)
	copy(buf[4:], typ)
	return buf
}

// Concat joins byte slices into a new slice.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
