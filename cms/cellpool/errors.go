package cellpool

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

var (
	// ErrExhausted indicates that no cell is free and the pool cannot grow.
	// It wraps iox.ErrWouldBlock.
	ErrExhausted = fmt.Errorf("cellpool: pool exhausted: %w", iox.ErrWouldBlock)

	// ErrForeignCell indicates a cell that does not belong to the pool.
	ErrForeignCell = errors.New("cellpool: cell not from this pool")

	// ErrDoubleFree indicates a cell that is already on the free list.
	ErrDoubleFree = errors.New("cellpool: cell already free")

	// ErrCellsInUse indicates a Delete while cells are still outstanding.
	ErrCellsInUse = errors.New("cellpool: cells still in use")

	// ErrDeleted indicates use of a pool after Delete.
	ErrDeleted = errors.New("cellpool: pool deleted")

	// ErrBadSize indicates an invalid cell size or cell count at build time.
	ErrBadSize = errors.New("cellpool: invalid cell size or count")
)
