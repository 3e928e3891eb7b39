package area

import (
	"context"
	"errors"
	"sync"

	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// ErrUnknownPC is returned for a PC number or sequence that is not established.
var ErrUnknownPC = errors.New("area: PC routine not established")

// LatentParms are fixed when a PC routine is established and handed to
// every invocation.
type LatentParms struct {
	GlobalArea *GlobalArea
	Parm2      any
}

// HandlerParm is what a PC routine receives on entry.
type HandlerParm struct {
	Eyecatcher string
	Latent     *LatentParms
	User       *format.Block
}

// PCRoutine is an entry point reachable by PC number.
type PCRoutine func(ctx context.Context, parm *HandlerParm) int

// PCEntry identifies an established routine.
type PCEntry struct {
	Number   uint32
	Sequence uint32
}

type pcSlot struct {
	routine PCRoutine
	latent  *LatentParms
	seq     uint32
}

// pcTable maps PC numbers to routines. Number 0 is never issued.
type pcTable struct {
	mu    sync.RWMutex
	slots map[uint32]*pcSlot
	next  uint32
	seq   uint32
}

func (t *pcTable) establish(routine PCRoutine, latent *LatentParms) PCEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots == nil {
		t.slots = make(map[uint32]*pcSlot)
	}
	t.next++
	t.seq++
	t.slots[t.next] = &pcSlot{routine: routine, latent: latent, seq: t.seq}
	return PCEntry{Number: t.next, Sequence: t.seq}
}

func (t *pcTable) release(e PCEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[e.Number]
	if !ok || s.seq != e.Sequence {
		return ErrUnknownPC
	}
	delete(t.slots, e.Number)
	return nil
}

func (t *pcTable) lookup(number, seq uint32) (*pcSlot, error) {
	if number == 0 {
		return nil, types.ErrZeroPCNumber
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.slots[number]
	if !ok || s.seq != seq {
		return nil, ErrUnknownPC
	}
	return s, nil
}
