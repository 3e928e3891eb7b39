package buf

import "encoding/binary"

// Control blocks are big-endian. Each reader returns 0 when b[off:] is too short.

// U16BE reads a big-endian uint16 at off.
func U16BE(b []byte, off int) uint16 {
	s, ok := Slice(b, off, 2)
	if !ok {
		return 0
	}
	return binary.BigEndian.Uint16(s)
}

// U32BE reads a big-endian uint32 at off.
func U32BE(b []byte, off int) uint32 {
	s, ok := Slice(b, off, 4)
	if !ok {
		return 0
	}
	return binary.BigEndian.Uint32(s)
}

// I32BE reads a big-endian int32 at off.
func I32BE(b []byte, off int) int32 {
	return int32(U32BE(b, off))
}
