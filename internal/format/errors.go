package format

import "errors"

var (
	// ErrSignatureMismatch indicates a structure had an unexpected eyecatcher.
	ErrSignatureMismatch = errors.New("format: eyecatcher mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrNotRepresentable indicates text that has no EBCDIC encoding.
	ErrNotRepresentable = errors.New("format: text not representable in EBCDIC")
	// ErrTooLong indicates a field value wider than its slot.
	ErrTooLong = errors.New("format: value too long for field")
)
