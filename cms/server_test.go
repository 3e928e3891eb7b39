package cms

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/internal/enq"
	"github.com/joshuapare/xmemkit/pkg/types"
)

const testServerName = "TESTSRV"

// testConsole records operator replies.
type testConsole struct {
	mu    sync.Mutex
	lines []string
}

func (c *testConsole) Reply(_ RouteInfo, lines ...string) {
	c.mu.Lock()
	c.lines = append(c.lines, lines...)
	c.mu.Unlock()
}

func (c *testConsole) contains(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

// testOptions returns options with small pools, a private registry, an ACL
// that admits TESTUSER and a main loop that never flushes on its own.
func testOptions() *Options {
	o := DefaultOptions()
	o.Registry = area.NewRegistry(enq.NewManager())
	o.StackPoolSize = 16
	o.RecoveryPoolSize = 128
	o.TickInterval = time.Hour
	o.Console = &testConsole{}
	acl := NewStaticACL()
	acl.Permit(AuthClass, AuthProfile, "TESTUSER", AccessRead)
	o.Authorizer = acl
	return &o
}

func newTestServer(t *testing.T, opts *Options) *Server {
	t.Helper()
	if opts == nil {
		opts = testOptions()
	}
	srv, err := New(testServerName, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// startTestServer runs srv until the test ends. The returned stop function
// stops it and returns the Run result.
func startTestServer(t *testing.T, srv *Server) func() error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.WaitReady(ctx))

	var once sync.Once
	var runErr error
	stop := func() error {
		once.Do(func() {
			srv.Stop()
			select {
			case runErr = <-errc:
			case <-time.After(5 * time.Second):
				t.Error("server did not stop")
			}
			_ = srv.Close()
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

// callerCtx runs as a caller in the server's own address space.
func callerCtx() context.Context {
	return types.WithCaller(context.Background(), types.Caller{ASID: 1, Key: 8, UserID: "TESTUSER"})
}

func Test_New_ValidatesName(t *testing.T) {
	_, err := New("ABC", testOptions())
	require.ErrorIs(t, err, types.ErrNameTooShort)

	_, err = New("ABCDEFGHIJKLMNOPQ", testOptions())
	require.ErrorIs(t, err, types.ErrNameTooLong)

	srv, err := New("", testOptions())
	require.NoError(t, err)
	assert.Equal(t, types.DefaultServerName, srv.Name().Trimmed())
	assert.Len(t, string(srv.Name()), types.ServerNameMaxLen)
}

func Test_New_StandardServicesReserved(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, id := range []int{types.LogServiceID, types.DumpServiceID, types.ConfigServiceID, types.StatusServiceID} {
		assert.Equal(t, area.ServiceInitialized|area.ServiceSpaceSwitch, srv.table[id].Flags, "id %d", id)
		assert.Nil(t, srv.table[id].Function)
	}
}

func Test_RegisterService_Errors(t *testing.T) {
	opts := testOptions()
	srv := newTestServer(t, opts)
	fn := func(context.Context, *area.GlobalArea, *area.Service, []byte) int32 { return 0 }

	require.ErrorIs(t, srv.RegisterService(types.StatusServiceID, fn, nil, RegisterSpaceSwitch), types.ErrFunctionIDOutOfRange)
	require.ErrorIs(t, srv.RegisterService(types.MaxServiceCount, fn, nil, RegisterSpaceSwitch), types.ErrFunctionIDOutOfRange)

	require.NoError(t, srv.RegisterService(10, fn, nil, RegisterSpaceSwitch))
	require.ErrorIs(t, srv.RegisterService(10, fn, nil, RegisterSpaceSwitch), types.ErrServiceEntryOccupied)

	assert.Equal(t, area.ServiceSpaceSwitch, srv.table[10].Flags)
}

func Test_RegisterService_Relocation(t *testing.T) {
	fn := func(context.Context, *area.GlobalArea, *area.Service, []byte) int32 { return 0 }

	// A module range that cannot contain fn.
	opts := testOptions()
	opts.Module = Module{Base: 1, Size: 1}
	srv := newTestServer(t, opts)

	// Space switch code stays where it is and is never range checked.
	require.NoError(t, srv.RegisterService(10, fn, nil, RegisterSpaceSwitch))
	require.NoError(t, srv.RegisterService(11, fn, nil, RegisterCodeInCommon))

	require.ErrorIs(t, srv.RegisterService(12, fn, nil, RegisterNone), types.ErrServiceNotRelocatable)
	require.ErrorIs(t, srv.RegisterService(13, fn, nil, RegisterSpaceSwitch|RegisterRelocateToCommon), types.ErrServiceNotRelocatable)

	// Without a module range any address is accepted and marked for relocation.
	srv = newTestServer(t, nil)
	require.NoError(t, srv.RegisterService(12, fn, nil, RegisterNone))
	assert.Equal(t, area.ServiceLPA, srv.table[12].Flags)
}

func Test_Module_Contains(t *testing.T) {
	m := Module{Base: 0x1000, Size: 0x100}
	assert.True(t, m.contains(0x1000))
	assert.True(t, m.contains(0x1100), "end address is inclusive")
	assert.False(t, m.contains(0x1101))
	assert.False(t, m.contains(0xFFF))

	assert.True(t, Module{}.contains(0xDEAD))
	assert.Equal(t, uintptr(0x5010), m.relocate(0x1010, 0x5000))
}

func Test_AddConfigParm_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	require.ErrorIs(t, srv.AddConfigParm(strings.Repeat("N", 73), "v", ParmTypeChar), types.ErrConfigParmNameTooLong)
	require.ErrorIs(t, srv.AddConfigParm("NAME", strings.Repeat("v", 128), ParmTypeChar), types.ErrCharParmTooLong)
	require.ErrorIs(t, srv.AddConfigParm("NAME", "v", ParmType(9)), types.ErrUnknownParmType)
	require.NoError(t, srv.AddConfigParm(strings.Repeat("N", 72), strings.Repeat("v", 127), ParmTypeChar))
}

func Test_Run_PublishesAndDetaches(t *testing.T) {
	opts := testOptions()
	srv := newTestServer(t, opts)
	client := NewClient(opts.Registry)

	_, err := client.GetGlobalArea(srv.Name())
	require.ErrorIs(t, err, types.ErrGlobalAreaNull)

	stop := startTestServer(t, srv)

	ga, err := client.GetGlobalArea(srv.Name())
	require.NoError(t, err)
	assert.Same(t, srv.GlobalArea(), ga)
	assert.True(t, ga.HasServerFlags(area.ServerReady))
	assert.Equal(t, uint16(1), ga.ServerASID())
	assert.NotZero(t, ga.PCInfo().SSNumber)
	assert.NotZero(t, ga.PCInfo().CPNumber)
	assert.True(t, opts.Registry.Locks().Held(srv.lockResource()))

	require.NoError(t, stop())

	assert.False(t, ga.HasServerFlags(area.ServerReady))
	assert.True(t, ga.HasServerFlags(area.ServerTermStarted|area.ServerTermEnded))
	assert.Nil(t, ga.Server())
	assert.Equal(t, area.PCInfo{}, ga.PCInfo())
	assert.False(t, opts.Registry.Locks().Held(srv.lockResource()))

	// The area outlives the server; calls see it not ready.
	_, err = client.CallService(callerCtx(), srv.Name(), types.StatusServiceID, nil)
	require.ErrorIs(t, err, types.ErrServerNotReady)
	assert.Equal(t, types.StatusServerNotReady, client.GetStatus(callerCtx(), srv.Name()).RC)
}

func Test_Run_Once(t *testing.T) {
	srv := newTestServer(t, nil)
	stop := startTestServer(t, srv)
	require.NoError(t, stop())
	require.Error(t, srv.Run(context.Background()))
}

func Test_Run_DuplicateServer(t *testing.T) {
	opts := testOptions()
	first := newTestServer(t, opts)
	startTestServer(t, first)

	second, err := New(testServerName, &Options{Registry: opts.Registry, Console: &testConsole{}})
	require.NoError(t, err)
	err = second.Run(context.Background())
	require.ErrorIs(t, err, types.ErrDuplicateServer)
	assert.Equal(t, types.StatusDuplicateServer, types.StatusOf(err))

	// The running server is untouched.
	assert.True(t, first.HasFlags(area.ServerReady))
}

func Test_Run_ContextCancelled(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()
	require.NoError(t, srv.WaitReady(ctx))

	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, types.ErrMainLoopFailed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	require.NoError(t, srv.Close())
}

func Test_Run_StartCallbackFailure(t *testing.T) {
	var stopped atomic.Int32
	opts := testOptions()
	opts.StartCallback = func(context.Context, *area.GlobalArea, any) int { return 4 }
	opts.StopCallback = func(context.Context, *area.GlobalArea, any) int {
		stopped.Add(1)
		return 0
	}
	srv := newTestServer(t, opts)

	err := srv.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.StatusError, types.StatusOf(err))
	assert.Zero(t, stopped.Load(), "stop callback must not run after a failed start callback")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.ErrorIs(t, srv.WaitReady(ctx), types.ErrServerNotReady)
	assert.False(t, opts.Registry.Locks().Held(srv.lockResource()))
}

func Test_Run_CallbacksReceiveData(t *testing.T) {
	type appData struct{ started, stopped bool }
	data := &appData{}
	opts := testOptions()
	opts.CallbackData = data
	opts.StartCallback = func(_ context.Context, ga *area.GlobalArea, d any) int {
		d.(*appData).started = ga != nil
		return 0
	}
	opts.StopCallback = func(_ context.Context, _ *area.GlobalArea, d any) int {
		d.(*appData).stopped = true
		return 0
	}
	srv := newTestServer(t, opts)
	stop := startTestServer(t, srv)
	require.NoError(t, stop())

	assert.True(t, data.started)
	assert.True(t, data.stopped)
}

func Test_Run_ReattachAndColdStart(t *testing.T) {
	opts := testOptions()
	first := newTestServer(t, opts)
	stop := startTestServer(t, first)
	ga := first.GlobalArea()
	require.NoError(t, stop())

	// A restart reattaches to the published area.
	warm := newTestServer(t, opts)
	stop = startTestServer(t, warm)
	assert.Same(t, ga, warm.GlobalArea())
	assert.False(t, ga.HasServerFlags(area.ServerTermEnded), "reattach resets the server flags")
	require.NoError(t, stop())

	// A cold start discards it and publishes a fresh one.
	coldOpts := *opts
	coldOpts.ColdStart = true
	cold := newTestServer(t, &coldOpts)
	startTestServer(t, cold)
	assert.NotSame(t, ga, cold.GlobalArea())
	assert.Equal(t, types.DiscardedVersion, ga.Version())
	assert.Equal(t, 2, opts.Registry.Len())
}

func Test_Run_OutdatedModuleDiscarded(t *testing.T) {
	opts := testOptions()
	opts.Module.Stamp = "build-1"
	first := newTestServer(t, opts)
	stop := startTestServer(t, first)
	require.NoError(t, stop())

	next := *opts
	next.Module.Stamp = "build-2"
	second := newTestServer(t, &next)
	startTestServer(t, second)
	stamp, base := second.GlobalArea().Module()
	assert.Equal(t, area.BuildStamp("build-2"), stamp)
	assert.NotZero(t, base)
}

func Test_Close_WhileRunning(t *testing.T) {
	srv := newTestServer(t, nil)
	stop := startTestServer(t, srv)
	require.Error(t, srv.Close())
	require.NoError(t, stop())
}
