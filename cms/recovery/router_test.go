package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/xmemkit/pkg/types"
)

func establish(t *testing.T, opts ...Option) (context.Context, *Router) {
	t.Helper()
	ctx, r, err := Establish(context.Background(), RouterFlagNone, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Remove() })
	return ctx, r
}

func nilDeref() {
	var p *int
	_ = *p
}

func Test_Push_WithoutRouter(t *testing.T) {
	_, err := Push(context.Background(), "x", StateRetry, "", nil, nil, nil, nil,
		func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrContextNotFound)
	assert.Equal(t, RCContextNotFound, RC(err))
	require.ErrorIs(t, Pop(context.Background()), ErrContextNotFound)
	assert.False(t, IsRouterEstablished(context.Background()))
}

func Test_Push_BodyCompletes(t *testing.T) {
	ctx, r := establish(t)
	assert.True(t, IsRouterEstablished(ctx))

	want := errors.New("service failed")
	out, err := Push(ctx, "ok", StateRetry, "", nil, nil, nil, nil,
		func(context.Context) error {
			assert.Equal(t, 1, r.Depth())
			return want
		})
	require.ErrorIs(t, err, want)
	assert.Equal(t, Entered, out.Kind)
	assert.Nil(t, out.Fault)
	assert.Equal(t, 0, r.Depth())
}

// A faulting body with RETRY resumes at Push; cleanup runs exactly once.
func Test_Push_RetryAfterFault(t *testing.T) {
	ctx, r := establish(t)

	cleanups := 0
	analyses := 0
	out, err := Push(ctx, "retry me", StateRetry, "TITLE",
		func(_ context.Context, f *Fault, data any) Decision {
			analyses++
			assert.Equal(t, "adata", data)
			assert.Equal(t, "retry me", f.State)
			return Continue
		}, "adata",
		func(_ context.Context, f *Fault, data any) {
			cleanups++
			assert.Equal(t, "cdata", data)
		}, "cdata",
		func(context.Context) error {
			nilDeref()
			return nil
		})
	require.NoError(t, err)
	require.True(t, out.Retried())
	assert.Equal(t, 1, analyses)
	assert.Equal(t, 1, cleanups)

	cc, rsn := AbendCode(out.Fault)
	assert.Equal(t, CodeProtection, cc)
	assert.Equal(t, 4, rsn)
	assert.False(t, out.Fault.User)
	assert.NotEmpty(t, out.Fault.Stack)

	// Without DELETE_ON_RETRY the disabled state stays until popped.
	assert.Equal(t, 1, r.Depth())
	require.NoError(t, Pop(ctx))
	assert.Equal(t, 0, r.Depth())
	require.ErrorIs(t, Pop(ctx), ErrNoState)
}

func Test_Push_DeleteOnRetry(t *testing.T) {
	ctx, r := establish(t)
	out, err := Push(ctx, "s", StateRetry|StateDeleteOnRetry, "", nil, nil, nil, nil,
		func(context.Context) error {
			Abend(0x0C4, 0x11)
			return nil
		})
	require.NoError(t, err)
	require.True(t, out.Retried())
	cc, rsn := AbendCode(out.Fault)
	assert.Equal(t, 0x0C4, cc)
	assert.Equal(t, 0x11, rsn)
	assert.Equal(t, 0, r.Depth())
}

// A state removed on retry does not catch a later fault: the next fault
// goes to the enclosing state.
func Test_Push_DeleteOnRetryLaterFault(t *testing.T) {
	ctx, r := establish(t)
	var cleaned []string
	cleanup := func(_ context.Context, _ *Fault, data any) {
		cleaned = append(cleaned, data.(string))
	}

	var inner Outcome
	out, err := Push(ctx, "outer", StateRetry|StateDeleteOnRetry, "", nil, nil, cleanup, "outer",
		func(ctx context.Context) error {
			var err error
			inner, err = Push(ctx, "inner", StateRetry|StateDeleteOnRetry, "", nil, nil, cleanup, "inner",
				func(context.Context) error {
					Abend(0x0C4, 0x11)
					return nil
				})
			require.NoError(t, err)
			assert.Equal(t, 1, r.Depth())

			Abend(0x0C1, 0x22)
			return nil
		})
	require.NoError(t, err)

	require.True(t, inner.Retried())
	cc, rsn := AbendCode(inner.Fault)
	assert.Equal(t, 0x0C4, cc)
	assert.Equal(t, 0x11, rsn)

	require.True(t, out.Retried())
	cc, rsn = AbendCode(out.Fault)
	assert.Equal(t, 0x0C1, cc)
	assert.Equal(t, 0x22, rsn)

	assert.Equal(t, []string{"inner", "outer"}, cleaned)
	assert.Equal(t, 0, r.Depth())
}

// Inner states without RETRY are cleaned up and removed; the outer state retries.
func Test_Push_NestedPercolatesToOuterRetry(t *testing.T) {
	ctx, r := establish(t)
	var order []string

	cleanup := func(_ context.Context, _ *Fault, data any) {
		order = append(order, data.(string))
	}
	out, err := Push(ctx, "outer", StateRetry|StateDeleteOnRetry, "", nil, nil, cleanup, "outer",
		func(ctx context.Context) error {
			_, err := Push(ctx, "inner", StateNone, "", nil, nil, cleanup, "inner",
				func(ctx context.Context) error {
					// Returned body, RETRY cannot resume here.
					_, err := Push(ctx, "leftover", StateRetry, "", nil, nil, cleanup, "leftover", nil)
					require.NoError(t, err)
					UserAbend(100, 2)
					return nil
				})
			t.Error("inner Push must not return", err)
			return nil
		})
	require.NoError(t, err)
	require.True(t, out.Retried())
	assert.Equal(t, []string{"leftover", "inner", "outer"}, order)
	assert.Equal(t, "outer", out.Fault.State)
	assert.True(t, out.Fault.User)
	cc, rsn := AbendCode(out.Fault)
	assert.Equal(t, 100, cc)
	assert.Equal(t, 2, rsn)
	assert.Equal(t, 0, r.Depth())
}

func Test_Push_DisabledStateSkipped(t *testing.T) {
	ctx, _ := establish(t)
	var ran []string
	cleanup := func(_ context.Context, _ *Fault, data any) { ran = append(ran, data.(string)) }

	out, err := Push(ctx, "outer", StateRetry|StateDeleteOnRetry, "", nil, nil, cleanup, "outer",
		func(ctx context.Context) error {
			_, _ = Push(ctx, "inner", StateRetry, "", nil, nil, cleanup, "inner",
				func(ctx context.Context) error {
					require.NoError(t, DisableCurrentState(ctx))
					panic("boom")
				})
			return nil
		})
	require.NoError(t, err)
	require.True(t, out.Retried())
	assert.Equal(t, []string{"outer"}, ran)
	cc, rsn := AbendCode(out.Fault)
	assert.Equal(t, CodeUserDefault, cc)
	assert.Equal(t, 0, rsn)
	assert.Equal(t, "boom", out.Fault.Value)
}

func Test_Push_AnalysisPercolates(t *testing.T) {
	ctx, r := establish(t)
	cleaned := false
	assert.PanicsWithValue(t, "fatal", func() {
		_, _ = Push(ctx, "outer", StateRetry, "", nil, nil,
			func(context.Context, *Fault, any) { cleaned = true }, nil,
			func(ctx context.Context) error {
				_, _ = Push(ctx, "inner", StateRetry, "",
					func(context.Context, *Fault, any) Decision { return Percolate }, nil,
					nil, nil,
					func(context.Context) error { panic("fatal") })
				return nil
			})
	})
	assert.False(t, cleaned)
	assert.Equal(t, 0, r.Depth())
}

func Test_Push_NoEnabledStatePanics(t *testing.T) {
	ctx, _ := establish(t)
	assert.PanicsWithValue(t, "unhandled", func() {
		_, _ = Push(ctx, "s", StateNone, "", nil, nil, nil, nil,
			func(context.Context) error { panic("unhandled") })
	})
}

// A fault no state of the inner router takes reaches the previous router.
func Test_Router_PercolatesToPrevious(t *testing.T) {
	outerCtx, outer := establish(t)

	out, err := Push(outerCtx, "outer", StateRetry|StateDeleteOnRetry, "", nil, nil, nil, nil,
		func(ctx context.Context) error {
			innerCtx, inner, err := Establish(ctx, RouterFlagNone)
			require.NoError(t, err)
			defer inner.Remove()
			_, _ = Push(innerCtx, "inner", StateNone, "", nil, nil, nil, nil,
				func(context.Context) error {
					var zero int
					_ = 10 / zero
					return nil
				})
			return nil
		})
	require.NoError(t, err)
	require.True(t, out.Retried())
	cc, _ := AbendCode(out.Fault)
	assert.Equal(t, CodeFixedDivide, cc)
	assert.Equal(t, 0, outer.Depth())
}

func Test_Router_RemoveRestoresPrevious(t *testing.T) {
	ctx1, r1 := establish(t)
	ctx2, r2, err := Establish(ctx1, RouterFlagPCCapable)
	require.NoError(t, err)
	assert.Same(t, r2, FromContext(ctx2))

	require.NoError(t, r2.Remove())
	assert.Same(t, r1, FromContext(ctx2))
	require.ErrorIs(t, r2.Remove(), ErrContextNotFound)
}

func Test_Establish_LockedEnvironment(t *testing.T) {
	locked := types.WithCaller(context.Background(), types.Caller{ASID: 1, Locked: true})
	_, _, err := Establish(locked, RouterFlagNone)
	require.ErrorIs(t, err, ErrLockedEnv)
	assert.Equal(t, RCLockedEnv, RC(err))

	sp, err := MakeStatePool(4)
	require.NoError(t, err)
	_, _, err = Establish(locked, RouterFlagNone, WithStatePool(sp))
	require.ErrorIs(t, err, ErrLockedEnv)

	var storage Router
	ctx, r, err := Establish(locked, RouterFlagNone, WithUserContext(&storage), WithStatePool(sp))
	require.NoError(t, err)
	assert.Same(t, &storage, r)
	for _, f := range []RouterFlags{RouterFlagLocked, RouterFlagFRR, RouterFlagUserContext, RouterFlagUserStatePool} {
		assert.NotZero(t, r.Flags()&f)
	}

	out, err := Push(ctx, "pooled", StateRetry|StateDeleteOnRetry, "", nil, nil, nil, nil,
		func(context.Context) error {
			assert.Equal(t, uint32(1), sp.Stats().InUse)
			panic("x")
		})
	require.NoError(t, err)
	require.True(t, out.Retried())
	assert.Equal(t, uint32(0), sp.Stats().InUse)

	require.NoError(t, r.Remove())
	require.NoError(t, sp.Remove())
}

func Test_Push_StatePoolExhausted(t *testing.T) {
	sp, err := MakeStatePool(1)
	require.NoError(t, err)
	ctx, r := establish(t, WithStatePool(sp))

	_, err = Push(ctx, "first", StateNone, "", nil, nil, nil, nil, nil)
	require.NoError(t, err)
	_, err = Push(ctx, "second", StateNone, "", nil, nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrAllocFailed)
	assert.Equal(t, RCAllocFailed, RC(err))
	assert.Equal(t, 1, r.Depth())

	require.NoError(t, Pop(ctx))
	assert.Equal(t, uint32(0), sp.Stats().InUse)
}

func Test_Push_ProduceDump(t *testing.T) {
	var titles []string
	var records [][]byte
	sp, err := MakeStatePool(2)
	require.NoError(t, err)
	ctx, r := establish(t, WithStatePool(sp), WithDumper(DumperFunc(
		func(_ context.Context, title string, f *Fault, info ServiceInfo, record []byte) {
			titles = append(titles, title)
			records = append(records, append([]byte(nil), record...))
			assert.Equal(t, "XMEMKIT", info.LoadModule)
			assert.Equal(t, "router state", info.StateName)
		})))
	r.UpdateServiceInfo(ServiceInfo{LoadModule: "XMEMKIT", StateName: "router"})

	out, err := Push(ctx, "dumped", StateRetry|StateDeleteOnRetry|StateProduceDump|StateSDWAToLogrec, "OLD", nil, nil, nil, nil,
		func(ctx context.Context) error {
			require.NoError(t, SetDumpTitle(ctx, "RCMS"))
			require.NoError(t, UpdateStateServiceInfo(ctx, ServiceInfo{StateName: "state"}))
			panic(errors.New("bad"))
		})
	require.NoError(t, err)
	require.True(t, out.Retried())
	require.Equal(t, []string{"RCMS"}, titles)
	require.Len(t, records[0], StateRecordSize)
	assert.Contains(t, string(records[0]), "dumped")
	assert.Contains(t, string(records[0]), "RCMS")
}

func Test_SetFlagValue(t *testing.T) {
	ctx, r := establish(t)
	require.ErrorIs(t, SetFlagValue(ctx, StateRetry, true), ErrNoState)

	_, err := Push(ctx, "s", StateNone, "", nil, nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, SetFlagValue(ctx, StateRetry|StateDeleteOnRetry, true))
	assert.Equal(t, StateRetry|StateDeleteOnRetry, r.states[0].flags)
	require.NoError(t, DisableCurrentState(ctx))
	assert.False(t, r.states[0].enabled)
	require.NoError(t, EnableCurrentState(ctx))
	assert.True(t, r.states[0].enabled)
	require.NoError(t, SetFlagValue(ctx, StateRetry, false))
	assert.Equal(t, StateDeleteOnRetry, r.states[0].flags)
}
