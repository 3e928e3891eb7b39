package main

import (
	"context"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/xmemkit/cms"
	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/cms/recovery"
	"github.com/joshuapare/xmemkit/internal/enq"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// Demo service ids.
const (
	serviceEcho     = 10
	serviceChecksum = 11
	serviceFault    = 12
)

// greetingParm is the config parameter the demo server publishes.
const greetingParm = "DEMO.GREETING"

var (
	// Shared demo server flags
	serverName string
	callerUser string
	callerASID uint16
	coldStart  bool
	checkAuth  bool
	debugLog   bool
	tickEvery  time.Duration
)

// addServerFlags registers the flags every command that starts a demo
// server understands.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverName, "name", "XMEMCTL", "Server name")
	cmd.Flags().StringVar(&callerUser, "user", "XMEMCTL", "User id presented by callers")
	cmd.Flags().Uint16Var(&callerASID, "asid", 0x20, "Address space id of callers")
	cmd.Flags().BoolVar(&checkAuth, "check-auth", false, "Check authorization for privileged callers too")
	cmd.Flags().BoolVar(&debugLog, "debug", false, "Start with CMS and CMSPC logging at DEBUG")
}

// echoService returns the payload length.
func echoService(_ context.Context, _ *area.GlobalArea, _ *area.Service, data []byte) int32 {
	return int32(len(data))
}

// checksumService returns the CRC-32 of the payload, truncated to 31 bits.
func checksumService(_ context.Context, _ *area.GlobalArea, _ *area.Service, data []byte) int32 {
	return int32(crc32.ChecksumIEEE(data) & 0x7FFFFFFF)
}

// faultService abends, exercising the server's fault containment.
func faultService(_ context.Context, _ *area.GlobalArea, _ *area.Service, _ []byte) int32 {
	recovery.Abend(0x0C1, 0x01)
	return 0
}

type demoService struct {
	id    int
	name  string
	fn    area.ServiceFunc
	flags cms.RegisterFlags
}

var demoServices = []demoService{
	{serviceEcho, "ECHO", echoService, cms.RegisterSpaceSwitch},
	{serviceChecksum, "CHECKSUM", checksumService, cms.RegisterNone},
	{serviceFault, "FAULT", faultService, cms.RegisterSpaceSwitch},
}

// newDemoServer builds a server with the demo services and config. console
// receives operator replies.
func newDemoServer(console cms.Console) (*cms.Server, error) {
	acl := cms.NewStaticACL()
	acl.Permit(cms.AuthClass, cms.AuthProfile, callerUser, cms.AccessRead)

	opts := cms.DefaultOptions()
	opts.Authorizer = acl
	opts.Console = console
	opts.CheckAuth = checkAuth
	opts.Debug = debugLog
	opts.ColdStart = coldStart
	opts.Registry = area.NewRegistry(enq.NewManager())
	if tickEvery > 0 {
		opts.TickInterval = tickEvery
	}
	opts.StartCallback = func(_ context.Context, ga *area.GlobalArea, _ any) int {
		printVerbose("Server %s started, ASID 0x%04X\n", ga.Name().Trimmed(), ga.ServerASID())
		return 0
	}

	srv, err := cms.New(serverName, &opts)
	if err != nil {
		return nil, err
	}
	for _, svc := range demoServices {
		if err := srv.RegisterService(svc.id, svc.fn, svc.name, svc.flags); err != nil {
			srv.Close()
			return nil, fmt.Errorf("failed to register %s: %w", svc.name, err)
		}
	}
	if err := srv.AddConfigParm(greetingParm, "Hello from "+srv.Name().Trimmed(), cms.ParmTypeChar); err != nil {
		srv.Close()
		return nil, err
	}
	return srv, nil
}

// runningServer is a demo server whose main loop runs in the background.
type runningServer struct {
	srv    *cms.Server
	client *cms.Client
	errCh  chan error
}

// startDemoServer starts a demo server and waits until it is ready.
func startDemoServer(ctx context.Context, console cms.Console) (*runningServer, error) {
	srv, err := newDemoServer(console)
	if err != nil {
		return nil, err
	}
	rs := &runningServer{srv: srv, client: cms.NewClient(srv.Registry()), errCh: make(chan error, 1)}
	go func() { rs.errCh <- srv.Run(context.Background()) }()

	if err := srv.WaitReady(ctx); err != nil {
		srv.Stop()
		<-rs.errCh
		srv.Close()
		return nil, fmt.Errorf("server did not become ready: %w", err)
	}
	return rs, nil
}

// stop terminates the server and returns the main loop result.
func (rs *runningServer) stop() error {
	rs.srv.Stop()
	err := <-rs.errCh
	if cerr := rs.srv.Close(); err == nil {
		err = cerr
	}
	return err
}

// callerContext attaches the caller identity from the flags.
func callerContext(ctx context.Context) context.Context {
	return types.WithCaller(ctx, types.ProblemState(callerASID, callerUser))
}

// quietConsole drops operator replies.
var quietConsole = cms.ConsoleFunc(func(cms.RouteInfo, ...string) {})

// stdoutConsole prints operator replies.
var stdoutConsole = cms.ConsoleFunc(func(_ cms.RouteInfo, lines ...string) {
	for _, l := range lines {
		printInfo("%s\n", l)
	}
})
