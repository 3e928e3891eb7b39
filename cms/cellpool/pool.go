package cellpool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"

	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/internal/mmfile"
)

// HeaderSize is the length of the pool label.
const HeaderSize = 24

// maxPoolBytes bounds the total storage of one pool.
const maxPoolBytes = 1 << 40

// Header is a human readable label stored with the pool, shown in dumps.
type Header [HeaderSize]byte

// MakeHeader builds a Header from s, blank padded and truncated to 24 bytes.
func MakeHeader(s string) Header {
	var h Header
	copy(h[:], s+strings.Repeat(" ", HeaderSize))
	return h
}

func (h Header) String() string { return strings.TrimRight(string(h[:]), " ") }

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Primary   uint32
	Secondary uint32
	CellSize  uint32
	Committed uint32 // cells backed by storage
	Available uint32 // committed cells on the free list
	InUse     uint32
}

// extent is one contiguous run of cells.
type extent struct {
	first   uint32 // index of the first cell
	count   uint32
	mem     []byte
	cleanup func() error
}

// cell states
const (
	cellFree uint32 = iota
	cellUsed
)

// Pool is a fixed-size cell allocator. The zero value is not usable; call Build.
type Pool struct {
	header    Header
	subpool   int
	key       int
	cellSize  uint32
	primary   uint32
	secondary uint32
	chunk     uint32 // cells per secondary extent

	// head packs the ABA tag (high 32 bits) and the top cell index + 1
	// (low 32 bits, 0 when empty).
	head  atomix.Uint64
	next  []atomix.Uint32
	state []atomix.Uint32

	inUse     atomix.Int64
	committed atomix.Uint32
	deleted   atomix.Uint32

	// extents is sized at build time; slots are filled under growMu before
	// any of their cells reach the free list.
	growMu  sync.Mutex
	extents []*extent
	nExt    atomix.Uint32
}

// Build creates a pool of primary cells, growable by secondary more, each
// cellSize bytes rounded up to an 8-byte multiple. subpool and key are
// recorded for display.
func Build(primary, secondary, cellSize uint32, subpool, key int, header Header) (*Pool, error) {
	if cellSize == 0 || primary+secondary == 0 || primary+secondary < primary {
		return nil, ErrBadSize
	}
	size := uint32(format.Align8(int(cellSize)))
	total := uint64(primary) + uint64(secondary)
	if total*uint64(size) > maxPoolBytes {
		return nil, fmt.Errorf("%w: %d cells of %d bytes", ErrBadSize, total, size)
	}

	chunk := max(secondary/4, 1)
	slots := 1 + (secondary+chunk-1)/chunk
	p := &Pool{
		header:    header,
		subpool:   subpool,
		key:       key,
		cellSize:  size,
		primary:   primary,
		secondary: secondary,
		chunk:     chunk,
		next:      make([]atomix.Uint32, total),
		state:     make([]atomix.Uint32, total),
		extents:   make([]*extent, slots),
	}
	for i := range p.state {
		p.state[i].Store(cellUsed)
	}
	if primary > 0 {
		if err := p.commit(primary); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// commit backs count more cells with storage and pushes them onto the free
// list. Callers hold growMu or own the pool exclusively.
func (p *Pool) commit(count uint32) error {
	first := p.committed.Load()
	mem, cleanup, err := mmfile.MapAnon(int(count) * int(p.cellSize))
	if err != nil {
		return fmt.Errorf("cellpool: commit %d cells: %w", count, err)
	}
	e := &extent{first: first, count: count, mem: mem, cleanup: cleanup}
	p.extents[p.nExt.Load()] = e
	p.nExt.Add(1)
	p.committed.Add(count)
	for i := first + count; i > first; i-- {
		p.push(i - 1)
	}
	return nil
}

// grow commits the next secondary extent. It reports false once the
// secondary allowance is used up.
func (p *Pool) grow() (bool, error) {
	p.growMu.Lock()
	defer p.growMu.Unlock()
	if uint32(p.head.Load()) != 0 {
		// Someone else grew or freed while we waited.
		return true, nil
	}
	limit := p.primary + p.secondary
	have := p.committed.Load()
	if have >= limit {
		return false, nil
	}
	if err := p.commit(min(p.chunk, limit-have)); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pool) push(idx uint32) {
	p.state[idx].Store(cellFree)
	for {
		h := p.head.Load()
		p.next[idx].Store(uint32(h))
		nh := (h>>32+1)<<32 | uint64(idx+1)
		if p.head.CompareAndSwap(h, nh) {
			return
		}
	}
}

func (p *Pool) pop() (uint32, bool) {
	for {
		h := p.head.Load()
		top := uint32(h)
		if top == 0 {
			return 0, false
		}
		next := p.next[top-1].Load()
		nh := (h>>32+1)<<32 | uint64(next)
		if p.head.CompareAndSwap(h, nh) {
			p.state[top-1].Store(cellUsed)
			return top - 1, true
		}
	}
}

// Get returns a cell of exactly CellSize bytes. When conditional is true
// and no cell can be provided, Get returns ErrExhausted immediately;
// otherwise it waits until a cell is freed or ctx is done.
func (p *Pool) Get(ctx context.Context, conditional bool) ([]byte, error) {
	var bo iox.Backoff
	for {
		if p.deleted.Load() != 0 {
			return nil, ErrDeleted
		}
		if idx, ok := p.pop(); ok {
			p.inUse.Add(1)
			return p.cell(idx), nil
		}
		grown, err := p.grow()
		if err != nil {
			return nil, err
		}
		if grown {
			continue
		}
		if conditional {
			return nil, ErrExhausted
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bo.Wait()
	}
}

// Free returns cell to the pool.
func (p *Pool) Free(cell []byte) error {
	if p.deleted.Load() != 0 {
		return ErrDeleted
	}
	idx, ok := p.indexOf(cell)
	if !ok {
		return ErrForeignCell
	}
	if !p.state[idx].CompareAndSwap(cellUsed, cellFree) {
		return ErrDoubleFree
	}
	p.inUse.Add(-1)
	p.push(idx)
	return nil
}

func (p *Pool) cell(idx uint32) []byte {
	n := p.nExt.Load()
	for _, e := range p.extents[:n] {
		if idx >= e.first && idx < e.first+e.count {
			off := int(idx-e.first) * int(p.cellSize)
			end := off + int(p.cellSize)
			return e.mem[off:end:end]
		}
	}
	panic(fmt.Sprintf("cellpool: index %d not committed", idx))
}

func (p *Pool) indexOf(cell []byte) (uint32, bool) {
	if len(cell) == 0 {
		return 0, false
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(cell)))
	n := p.nExt.Load()
	for _, e := range p.extents[:n] {
		base := uintptr(unsafe.Pointer(unsafe.SliceData(e.mem)))
		end := base + uintptr(len(e.mem))
		if addr < base || addr >= end {
			continue
		}
		off := addr - base
		if off%uintptr(p.cellSize) != 0 {
			return 0, false
		}
		return e.first + uint32(off/uintptr(p.cellSize)), true
	}
	return 0, false
}

// Delete releases the pool's storage. It fails while cells are outstanding.
func (p *Pool) Delete() error {
	p.growMu.Lock()
	defer p.growMu.Unlock()
	if p.deleted.Load() != 0 {
		return ErrDeleted
	}
	if n := p.inUse.Load(); n > 0 {
		return fmt.Errorf("%w: %d", ErrCellsInUse, n)
	}
	p.deleted.Store(1)
	var firstErr error
	for i, e := range p.extents[:p.nExt.Load()] {
		if err := e.cleanup(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.extents[i] = nil
	}
	return firstErr
}

// CellSize returns the rounded cell size.
func (p *Pool) CellSize() uint32 { return p.cellSize }

// Header returns the pool label.
func (p *Pool) Header() Header { return p.header }

// Subpool returns the subpool the pool was built for.
func (p *Pool) Subpool() int { return p.subpool }

// Key returns the storage key the pool was built for.
func (p *Pool) Key() int { return p.key }

// Stats returns current occupancy.
func (p *Pool) Stats() Stats {
	committed := p.committed.Load()
	inUse := uint32(max(p.inUse.Load(), 0))
	return Stats{
		Primary:   p.primary,
		Secondary: p.secondary,
		CellSize:  p.cellSize,
		Committed: committed,
		Available: committed - min(inUse, committed),
		InUse:     inUse,
	}
}
