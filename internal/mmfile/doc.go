// Package mmfile provides platform-specific helpers for mapping cell pool
// storage. On unix the storage is an anonymous private mapping, so pool
// extents never count against the Go heap; elsewhere it is a plain slice.
package mmfile
