//go:build !unix && !windows

package mmfile

import "fmt"

// MapAnon allocates size bytes from the Go heap when mmap is not available.
func MapAnon(size int) ([]byte, func() error, error) {
	if size < 0 {
		return nil, nil, fmt.Errorf("mmfile: negative mapping size (%d bytes)", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}
