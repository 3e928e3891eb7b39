// Package cellpool provides fixed-size cell pools for the cross-memory server.
//
// # Overview
//
// A pool hands out cells of one size from a primary extent that is reserved
// when the pool is built, and from secondary extents that are committed on
// demand until the secondary cell count is reached. Get and Free are O(1)
// and safe for concurrent use; the free list is a lock-free stack of cell
// indices whose head carries an ABA tag.
//
// # Exhaustion
//
// A conditional Get never waits: when no cell is free and the pool cannot
// grow it returns ErrExhausted, which wraps iox.ErrWouldBlock. An
// unconditional Get waits with adaptive backoff until another goroutine frees
// a cell or the context is done.
//
// # Usage Example
//
//	pool, err := cellpool.Build(1024, 0, 65536, 228, 4, cellpool.MakeHeader("ZWESPCSTACKPOOL"))
//	if err != nil {
//	    return err
//	}
//	defer pool.Delete()
//
//	cell, err := pool.Get(ctx, true)
//	if err != nil {
//	    return err
//	}
//	defer pool.Free(cell)
//
// Cell contents are not cleared between uses.
package cellpool
