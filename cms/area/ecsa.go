package area

import (
	"errors"

	"code.hybscloud.com/atomix"

	"github.com/joshuapare/xmemkit/pkg/types"
)

var (
	// ErrECSALimit indicates the block count or block size limit was hit.
	ErrECSALimit = errors.New("area: common storage limit reached")

	// ErrECSAFreed indicates a block that was already released.
	ErrECSAFreed = errors.New("area: common storage block already freed")

	// ErrECSAForeign indicates a block charged to another area.
	ErrECSAForeign = errors.New("area: common storage block belongs to another area")
)

// ECSABlock is a block of common storage charged to an area.
type ECSABlock struct {
	Data  []byte
	owner *GlobalArea
	freed atomix.Uint32
}

// AllocateECSA returns a zeroed block of size bytes. At most
// types.ECSAMaxBlockCount blocks of up to types.ECSAMaxBlockSize bytes may
// be outstanding per area.
func (ga *GlobalArea) AllocateECSA(size int) (*ECSABlock, error) {
	if size <= 0 || size > types.ECSAMaxBlockSize {
		return nil, types.ErrECSAAllocFailed.Wrap(ErrECSALimit)
	}
	for {
		n := ga.ecsaBlocks.Load()
		if n >= types.ECSAMaxBlockCount {
			return nil, types.ErrECSAAllocFailed.Wrap(ErrECSALimit)
		}
		if ga.ecsaBlocks.CompareAndSwap(n, n+1) {
			break
		}
	}
	return &ECSABlock{Data: make([]byte, size), owner: ga}, nil
}

// FreeECSA releases b. Only the area that allocated b may free it.
func (ga *GlobalArea) FreeECSA(b *ECSABlock) error {
	if b != nil && b.owner != ga {
		return ErrECSAForeign
	}
	if b == nil || !b.freed.CompareAndSwap(0, 1) {
		return ErrECSAFreed
	}
	ga.ecsaBlocks.Add(-1)
	b.Data = nil
	return nil
}

// ECSABlockCount returns the number of outstanding blocks.
func (ga *GlobalArea) ECSABlockCount() int { return int(ga.ecsaBlocks.Load()) }
