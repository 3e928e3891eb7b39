package area

import (
	"context"
	"errors"
	"sync"

	"github.com/joshuapare/xmemkit/internal/enq"
	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/internal/logger"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// MaxChainLength bounds the discovery chain walk.
const MaxChainLength = 128

// ChainLock serializes changes to the discovery chain.
var ChainLock = enq.Resource{QName: types.ProductID, RName: "ISZVTE"}

type chainEntry struct {
	ga   *GlobalArea
	next *chainEntry
}

// Registry is the discovery chain of Global Areas plus the PC linkage
// table. It plays the role of system-wide anchors for servers and clients
// in one process.
type Registry struct {
	locks *enq.Manager

	mu    sync.RWMutex
	chain *chainEntry

	pcs pcTable
}

// NewRegistry returns an empty registry whose chain lock lives in locks.
func NewRegistry(locks *enq.Manager) *Registry {
	return &Registry{locks: locks}
}

var std = NewRegistry(enq.Default())

// Default returns the process-wide registry.
func Default() *Registry { return std }

// Locks returns the lock manager the registry serializes on.
func (r *Registry) Locks() *enq.Manager { return r.locks }

// Lookup returns the current-version area registered for name.
func (r *Registry) Lookup(name types.ServerName) (*GlobalArea, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.chain
	i := 0
	for ; i < MaxChainLength && e != nil; i++ {
		if e.ga.Name() == name && e.ga.Version() == types.Version {
			return e.ga, nil
		}
		e = e.next
	}
	if e != nil {
		return nil, types.ErrChainLoop
	}
	return nil, types.ErrGlobalAreaNull
}

// Add links ga at the head of the discovery chain.
func (r *Registry) Add(ga *GlobalArea) error {
	return r.withChainLock(func() error {
		r.mu.Lock()
		r.chain = &chainEntry{ga: ga, next: r.chain}
		r.mu.Unlock()
		return nil
	})
}

// Discard marks the area registered for name as discarded. The entry stays
// on the chain and is skipped by Lookup.
func (r *Registry) Discard(name types.ServerName) error {
	return r.withChainLock(func() error {
		ga, err := r.Lookup(name)
		if err != nil {
			return err
		}
		ga.SetVersion(types.DiscardedVersion)
		return nil
	})
}

// Len returns the number of chain entries, discarded ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for e := r.chain; e != nil; e = e.next {
		n++
	}
	return n
}

func (r *Registry) withChainLock(fn func() error) error {
	tok, err := r.locks.Lock(context.Background(), ChainLock)
	logger.CMS.Log(logger.LevelDebug, "chain lock", "resource", ChainLock.String(), "err", err)
	if err != nil {
		return types.ErrChainNotLocked.Wrap(err)
	}
	status := fn()
	if err := r.locks.Unlock(tok); err != nil {
		logger.CMS.Log(logger.LevelDebug, "chain release", "resource", ChainLock.String(), "err", err)
		if status == nil {
			status = types.ErrChainNotReleased.Wrap(err)
		}
	}
	return status
}

// EstablishPC makes routine reachable by the returned PC number.
func (r *Registry) EstablishPC(routine PCRoutine, latent *LatentParms) PCEntry {
	return r.pcs.establish(routine, latent)
}

// ReleasePC removes an established routine.
func (r *Registry) ReleasePC(e PCEntry) error {
	return r.pcs.release(e)
}

// CallPC invokes the routine established under number and sequence with the
// caller's parameter block.
func (r *Registry) CallPC(ctx context.Context, number, sequence uint32, user *format.Block) (int, error) {
	slot, err := r.pcs.lookup(number, sequence)
	if err != nil {
		if errors.Is(err, types.ErrZeroPCNumber) {
			return int(types.StatusZeroPCNumber), err
		}
		return int(types.StatusError), err
	}
	parm := &HandlerParm{
		Eyecatcher: format.HandlerParmEyecatcher,
		Latent:     slot.latent,
		User:       user,
	}
	return slot.routine(ctx, parm), nil
}
