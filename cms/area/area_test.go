package area

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/xmemkit/internal/enq"
	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/pkg/types"
)

func Test_New_Header(t *testing.T) {
	ga := New(types.MakeServerName("ZWESIS_STD"))
	assert.True(t, ga.Valid())
	assert.Equal(t, types.Version, ga.Version())
	assert.Equal(t, uint8(4), ga.Key)
	assert.Equal(t, uint8(228), ga.Subpool)
	assert.Equal(t, "ZWESIS_STD", ga.Name().Trimmed())

	ga.Eyecatcher = "XXXXXXXX"
	assert.False(t, ga.Valid())
	var nilArea *GlobalArea
	assert.False(t, nilArea.Valid())
}

func Test_ServerFlags(t *testing.T) {
	ga := New(types.MakeServerName("TEST"))
	ga.SetServerFlags(ServerReady | ServerCheckAuth)
	assert.True(t, ga.HasServerFlags(ServerReady))
	assert.True(t, ga.HasServerFlags(ServerReady|ServerCheckAuth))
	assert.False(t, ga.HasServerFlags(ServerTermStarted))

	ga.ClearServerFlags(ServerReady)
	assert.Equal(t, ServerCheckAuth, ga.ServerFlags())
	ga.ResetServerFlags(0)
	assert.Equal(t, ServerFlags(0), ga.ServerFlags())
}

func Test_ServiceTable(t *testing.T) {
	ga := New(types.MakeServerName("TEST"))
	var tbl ServiceTable
	tbl[types.LogServiceID] = Service{Flags: ServiceInitialized | ServiceSpaceSwitch}
	ga.SetServiceTable(&tbl)

	svc, ok := ga.Service(types.LogServiceID)
	require.True(t, ok)
	assert.Equal(t, ServiceInitialized|ServiceSpaceSwitch, svc.Flags)

	_, ok = ga.Service(types.MaxServiceCount)
	assert.False(t, ok)
	_, ok = ga.Service(-1)
	assert.False(t, ok)

	ga.ClearServiceTable()
	svc, _ = ga.Service(types.LogServiceID)
	assert.Zero(t, svc.Flags)
}

// Block count never exceeds the limit, even under concurrent allocation.
func Test_ECSA_Limits(t *testing.T) {
	ga := New(types.MakeServerName("TEST"))

	_, err := ga.AllocateECSA(types.ECSAMaxBlockSize + 1)
	require.ErrorIs(t, err, types.ErrECSAAllocFailed)
	require.ErrorIs(t, err, ErrECSALimit)

	blocks := make(chan *ECSABlock, 64)
	var g errgroup.Group
	for i := 0; i < 64; i++ {
		g.Go(func() error {
			b, err := ga.AllocateECSA(128)
			if err == nil {
				blocks <- b
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(blocks)
	assert.Equal(t, types.ECSAMaxBlockCount, ga.ECSABlockCount())
	assert.Len(t, blocks, types.ECSAMaxBlockCount)

	for b := range blocks {
		require.Len(t, b.Data, 128)
		require.NoError(t, ga.FreeECSA(b))
		require.ErrorIs(t, ga.FreeECSA(b), ErrECSAFreed)
	}
	assert.Equal(t, 0, ga.ECSABlockCount())
}

func Test_ECSA_FreeFromOtherArea(t *testing.T) {
	a := New(types.MakeServerName("SRVA"))
	b := New(types.MakeServerName("SRVB"))

	blk, err := a.AllocateECSA(64)
	require.NoError(t, err)
	_, err = b.AllocateECSA(64)
	require.NoError(t, err)

	require.ErrorIs(t, b.FreeECSA(blk), ErrECSAForeign)
	assert.Equal(t, 1, a.ECSABlockCount())
	assert.Equal(t, 1, b.ECSABlockCount())

	require.NoError(t, a.FreeECSA(blk))
	assert.Equal(t, 0, a.ECSABlockCount())
	assert.Equal(t, 1, b.ECSABlockCount())
}

func Test_Registry_LookupAddDiscard(t *testing.T) {
	r := NewRegistry(enq.NewManager())
	name := types.MakeServerName("ZWESIS_STD")

	_, err := r.Lookup(name)
	require.ErrorIs(t, err, types.ErrGlobalAreaNull)

	ga := New(name)
	require.NoError(t, r.Add(ga))
	got, err := r.Lookup(name)
	require.NoError(t, err)
	assert.Same(t, ga, got)

	require.NoError(t, r.Discard(name))
	assert.Equal(t, types.DiscardedVersion, ga.Version())
	_, err = r.Lookup(name)
	require.ErrorIs(t, err, types.ErrGlobalAreaNull)
	assert.Equal(t, 1, r.Len())

	// A new area for the same name shadows the discarded one.
	ga2 := New(name)
	require.NoError(t, r.Add(ga2))
	got, err = r.Lookup(name)
	require.NoError(t, err)
	assert.Same(t, ga2, got)

	require.ErrorIs(t, r.Discard(types.MakeServerName("NOPE")), types.ErrGlobalAreaNull)
}

func Test_Registry_ChainLockWaits(t *testing.T) {
	locks := enq.NewManager()
	r := NewRegistry(locks)
	tok, err := locks.TryLock(ChainLock)
	require.NoError(t, err)
	time.AfterFunc(10*time.Millisecond, func() { _ = locks.Unlock(tok) })

	// Add waits for the other holder instead of failing.
	require.NoError(t, r.Add(New(types.MakeServerName("SRVB"))))
	assert.False(t, locks.Held(ChainLock))
	_, err = r.Lookup(types.MakeServerName("SRVB"))
	require.NoError(t, err)
}

func Test_Registry_ConcurrentAdds(t *testing.T) {
	r := NewRegistry(enq.NewManager())
	var g errgroup.Group
	for i := range 16 {
		g.Go(func() error {
			return r.Add(New(types.MakeServerName(fmt.Sprintf("SRV%05d", i))))
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 16, r.Len())
}

func Test_Registry_ChainLoop(t *testing.T) {
	r := NewRegistry(enq.NewManager())
	for i := 0; i < MaxChainLength; i++ {
		require.NoError(t, r.Add(New(types.MakeServerName(fmt.Sprintf("SRV%05d", i)))))
	}
	// A chain of exactly MaxChainLength entries ends normally.
	_, err := r.Lookup(types.MakeServerName("MISSING"))
	require.ErrorIs(t, err, types.ErrGlobalAreaNull)
	_, err = r.Lookup(types.MakeServerName("SRV00000"))
	require.NoError(t, err)

	require.NoError(t, r.Add(New(types.MakeServerName("ONEMORE"))))
	_, err = r.Lookup(types.MakeServerName("MISSING"))
	require.ErrorIs(t, err, types.ErrChainLoop)

	// The most recent entries are still reachable.
	_, err = r.Lookup(types.MakeServerName(fmt.Sprintf("SRV%05d", MaxChainLength-1)))
	require.NoError(t, err)
}

func Test_Registry_PC(t *testing.T) {
	r := NewRegistry(enq.NewManager())
	ga := New(types.MakeServerName("TEST"))

	var seen *HandlerParm
	e := r.EstablishPC(func(_ context.Context, p *HandlerParm) int {
		seen = p
		return 7
	}, &LatentParms{GlobalArea: ga})
	assert.NotZero(t, e.Number)

	blk := &format.Block{}
	rc, err := r.CallPC(context.Background(), e.Number, e.Sequence, blk)
	require.NoError(t, err)
	assert.Equal(t, 7, rc)
	require.NotNil(t, seen)
	assert.Equal(t, format.HandlerParmEyecatcher, seen.Eyecatcher)
	assert.Same(t, ga, seen.Latent.GlobalArea)
	assert.Same(t, blk, seen.User)

	rc, err = r.CallPC(context.Background(), 0, 0, blk)
	require.ErrorIs(t, err, types.ErrZeroPCNumber)
	assert.Equal(t, int(types.StatusZeroPCNumber), rc)

	_, err = r.CallPC(context.Background(), e.Number, e.Sequence+1, blk)
	require.ErrorIs(t, err, ErrUnknownPC)

	require.NoError(t, r.ReleasePC(e))
	_, err = r.CallPC(context.Background(), e.Number, e.Sequence, blk)
	require.ErrorIs(t, err, ErrUnknownPC)
	require.ErrorIs(t, r.ReleasePC(e), ErrUnknownPC)

	e2 := r.EstablishPC(func(context.Context, *HandlerParm) int { return 0 }, nil)
	assert.NotEqual(t, e.Number, e2.Number)
}
