package cms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/cms/cellpool"
	"github.com/joshuapare/xmemkit/cms/recovery"
	"github.com/joshuapare/xmemkit/internal/enq"
	"github.com/joshuapare/xmemkit/internal/logger"
	"github.com/joshuapare/xmemkit/pkg/types"
)

const mainLoopStateName = "main loop"

// runState records which start steps completed so shutdown undoes exactly
// those, including after a fault in the main loop.
type runState struct {
	loaded          bool
	allocated       bool
	pcsEstablished  bool
	started         bool
	startCallbackOK bool
}

// Run starts the server, serves calls and commands until a STOP command
// arrives or ctx is done, and then stops it. A server runs at most once.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(0, 1) {
		return types.ErrGeneric.Wrapf("server %s already running", s.name.Trimmed())
	}
	select {
	case <-s.done:
		s.running.Store(0)
		return types.ErrGeneric.Wrapf("server %s already stopped", s.name.Trimmed())
	default:
	}
	defer func() {
		close(s.done)
		s.running.Store(0)
	}()

	ctx, r, err := recovery.Establish(ctx, recovery.RouterFlagNone)
	if err != nil {
		logger.CMS.Log(logger.LevelSevere, "recovery not established", "err", err)
		return types.ErrRecoveryContextNotFound.Wrap(err)
	}
	defer func() { _ = r.Remove() }()

	st := runState{startCallbackOK: true}
	var runErr error
	out, err := recovery.Push(ctx, mainLoopStateName,
		recovery.StateRetry|recovery.StateDeleteOnRetry|recovery.StateProduceDump, mainLoopStateName,
		nil, nil, nil, nil,
		func(ctx context.Context) error {
			runErr = s.mainLoop(ctx, &st)
			return nil
		})
	switch {
	case err != nil:
		runErr = types.ErrRecoveryContextNotFound.Wrap(err)
	case out.Retried():
		logger.CMS.Log(logger.LevelSevere, "main loop ABENDed", "fault", out.Fault)
		runErr = types.ErrServerAbended.Wrap(out.Fault)
	}

	s.shutdown(ctx, &st, runErr)
	return runErr
}

// WaitReady blocks until the server is ready for calls.
func (s *Server) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return types.ErrServerNotReady.Wrapf("server %s stopped", s.name.Trimmed())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (s *Server) Done() <-chan struct{} { return s.done }

// Stop requests termination as a STOP command from no console would.
func (s *Server) Stop() {
	s.requestTermination()
}

func (s *Server) mainLoop(ctx context.Context, st *runState) error {
	start := s.route(true)

	if err := s.loadServer(); err != nil {
		s.reportInitStep(start, "load server", err)
		s.reply(start, logger.LevelSevere, fmt.Sprintf("Core server initialization failed, RC = %d", types.StatusOf(err)))
		return err
	}
	st.loaded = true

	s.reply(start, logger.LevelInfo, "Core server initialization started")

	if s.HasFlags(area.ServerColdStart) {
		s.reply(start, logger.LevelInfo, "Cold start initiated")
		if err := s.discardGlobalResources(); err != nil {
			s.reply(start, logger.LevelWarning, fmt.Sprintf("Global resources clean up RC = %d", types.StatusOf(err)))
		}
	}

	err := s.allocateGlobalResources()
	s.reportInitStep(start, "allocate global resources", err)
	if err == nil {
		st.allocated = true
		err = s.establishPCRoutines()
		s.reportInitStep(start, "establish PC routines", err)
	}
	if err == nil {
		st.pcsEstablished = true
		if cb := s.opts.StartCallback; cb != nil {
			if rc := cb(ctx, s.GlobalArea(), s.opts.CallbackData); rc != 0 {
				st.startCallbackOK = false
				err = types.ErrGeneric.Wrapf("start callback RC = %d", rc)
			}
			s.reportInitStep(start, "start callback", err)
		}
	}
	if err == nil {
		err = s.startServer()
		s.reportInitStep(start, "start server", err)
		st.started = err == nil
	}
	if err != nil {
		s.reply(start, logger.LevelSevere, fmt.Sprintf("Core server initialization failed, RC = %d", types.StatusOf(err)))
		return err
	}

	s.readyOne.Do(func() { close(s.ready) })
	s.reply(start, logger.LevelInfo, "Core server ready")

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.wake:
			break wait
		case <-ctx.Done():
			break wait
		}
	}
	s.Flush()

	if !s.HasFlags(area.ServerTermStarted) {
		s.reply(s.route(false), logger.LevelSevere, "Main loop unexpectedly terminated")
		return types.ErrMainLoopFailed
	}
	s.reply(s.route(false), logger.LevelInfo, "Main loop terminated")
	return nil
}

// shutdown undoes the start steps recorded in st.
func (s *Server) shutdown(ctx context.Context, st *runState, runErr error) {
	term := s.route(false)

	// MODIFY tasks may still reference the area.
	_ = s.cmdTasks.Wait()

	if st.started {
		s.reportTermStep(term, "stop server", s.stopServer())
	}
	if st.pcsEstablished {
		s.reportTermStep(term, "release PC routines", s.releasePCRoutines())
	}
	if cb := s.opts.StopCallback; cb != nil && st.startCallbackOK && st.allocated {
		var err error
		if rc := cb(ctx, s.GlobalArea(), s.opts.CallbackData); rc != 0 {
			err = types.ErrGeneric.Wrapf("stop callback RC = %d", rc)
		}
		s.reportTermStep(term, "stop callback", err)
	}
	if st.loaded {
		s.reportTermStep(term, "unload server", s.unloadServer())
	}

	if runErr != nil {
		s.reply(term, logger.LevelSevere, fmt.Sprintf("Core server stopped with an error, status = %d", types.StatusOf(runErr)))
		return
	}
	s.reply(term, logger.LevelInfo, "Core server stopped")
}

func (s *Server) route(start bool) RouteInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start {
		return s.startRoute
	}
	return s.termRoute
}

func (s *Server) reportInitStep(route RouteInfo, step string, err error) {
	if err != nil {
		s.reply(route, logger.LevelSevere, fmt.Sprintf("Initialization step '%s' failed, RC = %d", step, types.StatusOf(err)))
		logger.CMS.Log(logger.LevelDebug, "initialization step error", "step", step, "err", err)
		return
	}
	logger.CMS.Log(logger.LevelInfo, fmt.Sprintf("Initialization step '%s' successfully completed", step))
}

func (s *Server) reportTermStep(route RouteInfo, step string, err error) {
	if err != nil {
		s.reply(route, logger.LevelSevere, fmt.Sprintf("Termination step '%s' failed, RC = %d", step, types.StatusOf(err)))
		logger.CMS.Log(logger.LevelDebug, "termination step error", "step", step, "err", err)
		return
	}
	logger.CMS.Log(logger.LevelInfo, fmt.Sprintf("Termination step '%s' successfully completed", step))
}

func (s *Server) lockResource() enq.Resource {
	return enq.Resource{QName: types.ProductID, RName: "IS." + string(s.name)}
}

// loadServer takes the server lock so a second server with the same name
// fails to start.
func (s *Server) loadServer() error {
	tok, err := s.reg.Locks().TryLock(s.lockResource())
	if errors.Is(err, enq.ErrHeld) {
		logger.CMS.Log(logger.LevelSevere, "A duplicate server is running", "name", s.name.Trimmed())
		return types.ErrDuplicateServer
	}
	if err != nil {
		return types.ErrENQFailed.Wrap(err)
	}
	s.mu.Lock()
	s.lock = tok
	s.mu.Unlock()
	return nil
}

func (s *Server) unloadServer() error {
	s.mu.Lock()
	tok := s.lock
	s.lock = enq.Token{}
	s.mu.Unlock()
	if err := s.reg.Locks().Unlock(tok); err != nil {
		return types.ErrENQFailed.Wrap(err)
	}
	return nil
}

// discardGlobalResources takes the published area out of service. A server
// that never ran has nothing to discard.
func (s *Server) discardGlobalResources() error {
	err := s.reg.Discard(s.name)
	if errors.Is(err, types.ErrGlobalAreaNull) {
		return nil
	}
	return err
}

// allocateGlobalResources finds or creates the Global Area, publishes the
// service table and builds the pools the space switch entry point runs on.
func (s *Server) allocateGlobalResources() error {
	ga, err := s.reg.Lookup(s.name)
	switch {
	case err == nil:
		logger.CMS.Log(logger.LevelDebug, "global area found, reattaching", "name", s.name.Trimmed())
		ga.ResetServerFlags(0)
		if stamp, base := ga.Module(); base != 0 && stamp != s.opts.Module.Stamp {
			logger.CMS.Log(logger.LevelWarning, "Discarding outdated LPA module",
				"stamp", string(stamp), "current", string(s.opts.Module.Stamp))
			ga.SetModule("", 0)
		}
	case errors.Is(err, types.ErrGlobalAreaNull):
		ga = area.New(s.name)
		if err := s.reg.Add(ga); err != nil {
			return err
		}
		logger.CMS.Log(logger.LevelDebug, "global area created", "name", s.name.Trimmed())
	default:
		return err
	}

	ga.SetName(s.name)
	ga.SetServer(s)
	ga.SetServerFlags(s.Flags())
	ga.SetServerASID(s.opts.ASID)

	if _, base := ga.Module(); base == 0 {
		ga.SetModule(s.opts.Module.Stamp, s.opts.Module.commonBase())
	}

	s.mu.Lock()
	s.initializeServiceTable(ga)
	ga.SetServiceTable(&s.table)
	s.ga = ga
	s.mu.Unlock()

	ga.SetPCCPHandler(handlePCCP)

	oldStack, oldStates := ga.Pools()
	if oldStack != nil {
		if err := oldStack.Delete(); err != nil {
			logger.CMS.Log(logger.LevelWarning, "previous stack pool kept", "err", err)
		}
	}
	if oldStates != nil {
		if err := oldStates.Remove(); err != nil {
			logger.CMS.Log(logger.LevelWarning, "previous recovery pool kept", "err", err)
		}
	}

	stack, err := cellpool.Build(s.opts.StackPoolSize, 0, pcStackSize, pcStackSubpool, types.ServerKey, pcStackHeader)
	if err != nil {
		return types.ErrAllocFailed.Wrap(err)
	}
	states, err := recovery.MakeStatePool(s.opts.RecoveryPoolSize)
	if err != nil {
		_ = stack.Delete()
		return types.ErrAllocFailed.Wrap(err)
	}
	ga.SetPools(stack, states)
	return nil
}

// initializeServiceTable marks every registered service initialized and
// records where the common copy of its code lives. Callers hold s.mu.
func (s *Server) initializeServiceTable(ga *area.GlobalArea) {
	_, common := ga.Module()
	m := s.opts.Module
	for id := types.MinServiceID; id < len(s.table); id++ {
		svc := &s.table[id]
		if svc.Function == nil {
			continue
		}
		svc.Flags |= area.ServiceInitialized

		if svc.Flags&area.ServiceSpaceSwitch != 0 && svc.Flags&area.ServiceLPA == 0 {
			continue
		}
		addr := funcAddr(svc.Function)
		if !m.contains(addr) {
			logger.CMS.Log(logger.LevelSevere, fmt.Sprintf("Service with ID %d not relocated, 0x%x not in range [0x%x, 0x%x]",
				id, addr, m.Base, m.Base+m.Size))
			*svc = area.Service{}
			continue
		}
		svc.RelocatedAddr = m.relocate(addr, common)
	}
}

func (s *Server) establishPCRoutines() error {
	ga := s.GlobalArea()
	latent := &area.LatentParms{GlobalArea: ga, Parm2: &pcLatent{auth: s.opts.Authorizer}}

	ss := s.reg.EstablishPC(handlePCSS, latent)
	cp := s.reg.EstablishPC(ga.PCCPHandler(), latent)

	s.mu.Lock()
	s.pcss, s.pccp = ss, cp
	s.mu.Unlock()

	ga.SetPCInfo(area.PCInfo{
		SSNumber:   ss.Number,
		SSSequence: ss.Sequence,
		CPNumber:   cp.Number,
		CPSequence: cp.Sequence,
	})
	logger.CMS.Log(logger.LevelDebug, "PC routines established",
		"pcss", ss.Number, "pcss_seq", ss.Sequence, "pccp", cp.Number, "pccp_seq", cp.Sequence)
	return nil
}

func (s *Server) releasePCRoutines() error {
	s.mu.Lock()
	ss, cp := s.pcss, s.pccp
	s.pcss, s.pccp = area.PCEntry{}, area.PCEntry{}
	s.mu.Unlock()
	return errors.Join(s.reg.ReleasePC(ss), s.reg.ReleasePC(cp))
}

func (s *Server) startServer() error {
	ga := s.GlobalArea()
	ga.SetPCLogLevel(int(logger.CMSPC.Level()))
	s.SetFlags(area.ServerReady)
	ga.SetServerFlags(area.ServerReady)
	return nil
}

// stopServer detaches the server from its area. The area itself stays
// published so a restart reattaches to it.
func (s *Server) stopServer() error {
	ga := s.GlobalArea()
	s.ClearFlags(area.ServerReady)
	ga.ClearServerFlags(area.ServerReady)

	ga.SetServer(nil)
	ga.SetServerASID(0)
	ga.SetPCInfo(area.PCInfo{})
	ga.SetPCLogLevel(0)
	ga.ClearServiceTable()

	s.SetFlags(area.ServerTermEnded)
	ga.SetServerFlags(area.ServerTermEnded)
	return nil
}
