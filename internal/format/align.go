package format

// Align8 returns n aligned up to the next 8-byte boundary.
// Used for cell sizes, which are always a multiple of the doubleword.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
//	Align8(16) = 16
func Align8(n int) int {
	return (n + CellAlignmentMask) & ^CellAlignmentMask
}

// AlignPage returns n aligned up to the next 4KB boundary.
// Used for the size of cell pool extents.
//
// Example:
//
//	AlignPage(1)    = 4096
//	AlignPage(4096) = 4096
//	AlignPage(4097) = 8192
func AlignPage(n int) int {
	return (n + PageAlignmentMask) & ^PageAlignmentMask
}
