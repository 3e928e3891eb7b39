package format

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/xmemkit/internal/buf"
)

// Binary encoding utilities for the fixed-layout control blocks.
//
// The blocks mirror their mainframe originals: integers are big-endian and
// character fields are EBCDIC (code page 037), blank padded.

// PutU16 writes a uint16 value to the buffer at the specified offset in big-endian format.
func PutU16(b []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(b[off:off+2], v)
}

// PutU32 writes a uint32 value to the buffer at the specified offset in big-endian format.
func PutU32(b []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(b[off:off+4], v)
}

// PutI32 writes an int32 value to the buffer at the specified offset in big-endian format.
func PutI32(b []byte, off int, v int32) {
	binary.BigEndian.PutUint32(b[off:off+4], uint32(v))
}

// ReadU16 reads a uint16 value from the buffer at the specified offset in big-endian format.
// A read past the end of b yields 0.
func ReadU16(b []byte, off int) uint16 {
	return buf.U16BE(b, off)
}

// ReadU32 reads a uint32 value from the buffer at the specified offset in big-endian format.
// A read past the end of b yields 0.
func ReadU32(b []byte, off int) uint32 {
	return buf.U32BE(b, off)
}

// ReadI32 reads an int32 value from the buffer at the specified offset in big-endian format.
// A read past the end of b yields 0.
func ReadI32(b []byte, off int) int32 {
	return buf.I32BE(b, off)
}

// ebcdicBlank is the EBCDIC space character.
const ebcdicBlank = 0x40

// PutEBCDIC encodes s into b[off:off+width], padding with EBCDIC blanks.
func PutEBCDIC(b []byte, off, width int, s string) error {
	enc, err := charmap.CodePage037.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return ErrNotRepresentable
	}
	if len(enc) > width {
		return ErrTooLong
	}
	field := b[off : off+width]
	copy(field, enc)
	for i := len(enc); i < width; i++ {
		field[i] = ebcdicBlank
	}
	return nil
}

// ReadEBCDIC decodes b[off:off+width] from EBCDIC, keeping trailing blanks.
func ReadEBCDIC(b []byte, off, width int) string {
	dec, err := charmap.CodePage037.NewDecoder().Bytes(b[off : off+width])
	if err != nil {
		return ""
	}
	return string(dec)
}

// MatchEyecatcher reports whether the EBCDIC field at off equals eye.
func MatchEyecatcher(b []byte, off int, eye string) bool {
	if off+EyecatcherSize > len(b) {
		return false
	}
	want, err := charmap.CodePage037.NewEncoder().Bytes([]byte(eye))
	if err != nil {
		return false
	}
	return bytes.Equal(b[off:off+EyecatcherSize], want)
}

// PutCString writes s NUL terminated into a width-byte field, as plain bytes.
func PutCString(b []byte, off, width int, s string) error {
	if len(s) >= width {
		return ErrTooLong
	}
	field := b[off : off+width]
	clear(field)
	copy(field, s)
	return nil
}

// ReadCString reads a NUL terminated field. The last byte is treated as a
// terminator even if the caller did not set one.
func ReadCString(b []byte, off, width int) string {
	field := b[off : off+width-1]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
