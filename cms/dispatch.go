package cms

import (
	"context"

	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/cms/cellpool"
	"github.com/joshuapare/xmemkit/cms/recovery"
	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/internal/logger"
	"github.com/joshuapare/xmemkit/pkg/types"
)

const (
	// pcStackSize is the cell size of the PC-ss stack pool.
	pcStackSize    = 65536
	pcStackSubpool = 132

	pcDumpTitle        = "RCMS"
	pcHandlerStateName = "CMS PC handler"
	serviceStateName   = "CMS service function call"

	pcRouterFlags = recovery.RouterFlagPCCapable | recovery.RouterFlagRunOnTerm
)

var pcStackHeader = cellpool.MakeHeader("ZWESPCSSMCELLPOOL")

// pcLatent is the dispatcher configuration fixed in the latent parameters
// of both entry points.
type pcLatent struct {
	auth Authorizer
}

// pcEnvironment is what a PC routine sets up before it looks at the call
// and tears down on every exit path.
type pcEnvironment struct {
	router *recovery.Router
	local  recovery.Router
}

// handlePCSS is the space switch entry point. Its call stack comes from the
// area's stack pool and its recovery states from the area's recovery pool,
// so entry never needs the general allocator.
func handlePCSS(ctx context.Context, parm *area.HandlerParm) int {
	var stackPool *cellpool.Pool
	if parm != nil && parm.Latent != nil && parm.Latent.GlobalArea != nil {
		stackPool, _ = parm.Latent.GlobalArea.Pools()
	}
	if stackPool == nil {
		var local [format.ParmListSize]byte
		return int(handleProgramCall(ctx, parm, true, local[:]))
	}

	stack, err := stackPool.Get(ctx, true)
	if err != nil {
		return int(types.StatusStackAllocFailed)
	}
	rc := handleProgramCall(ctx, parm, true, stack)
	if err := stackPool.Free(stack); err != nil {
		logger.CMSPC.Log(logger.LevelSevere, "PC-ss stack not released", "err", err)
		if rc == types.StatusOK {
			rc = types.StatusStackReleaseFailed
		}
	}
	return int(rc)
}

// handlePCCP is the current primary entry point.
func handlePCCP(ctx context.Context, parm *area.HandlerParm) int {
	var local [format.ParmListSize]byte
	return int(handleProgramCall(ctx, parm, false, local[:]))
}

func initPCEnvironment(ctx context.Context, ga *area.GlobalArea, ss bool) (context.Context, *pcEnvironment, error) {
	env := &pcEnvironment{}
	var err error
	if ss {
		_, statePool := ga.Pools()
		opts := []recovery.Option{recovery.WithUserContext(&env.local)}
		if statePool != nil {
			opts = append(opts, recovery.WithStatePool(statePool))
		}
		ctx, env.router, err = recovery.Establish(ctx, pcRouterFlags, opts...)
	} else {
		ctx, env.router, err = recovery.Establish(ctx, pcRouterFlags)
	}
	if err != nil {
		return ctx, nil, err
	}
	env.router.UpdateServiceInfo(recovery.ServiceInfo{
		LoadModule:      types.ProductID + "IS01",
		RecoveryRoutine: pcDumpTitle,
		ComponentID:     types.ProductID,
	})
	return ctx, env, nil
}

func (env *pcEnvironment) terminate() error {
	return env.router.Remove()
}

// handleProgramCall validates the handler parameters, sets up the
// environment and runs the call under a recovery state.
func handleProgramCall(ctx context.Context, parm *area.HandlerParm, ss bool, local []byte) types.Status {
	if parm == nil {
		return types.StatusParmNull
	}
	if parm.Eyecatcher != format.HandlerParmEyecatcher {
		return types.StatusPCHandlerParmBadEyecatcher
	}
	if parm.Latent == nil {
		return types.StatusLatentParmNull
	}
	ga := parm.Latent.GlobalArea
	if ga == nil {
		return types.StatusGlobalAreaNull
	}
	if !ga.Valid() {
		return types.StatusGlobalAreaBadEyecatcher
	}

	ctx, env, err := initPCEnvironment(ctx, ga, ss)
	if err != nil {
		logger.CMSPC.Log(logger.LevelDebug, "PC environment not established", "err", err)
		return types.StatusPCEnvNotEstablished
	}

	rc := types.StatusOK
	out, err := recovery.Push(ctx, pcHandlerStateName,
		recovery.StateRetry|recovery.StateDeleteOnRetry, pcDumpTitle,
		nil, nil, nil, nil,
		func(ctx context.Context) error {
			rc = handleUnsafeProgramCall(ctx, parm, ss, local)
			return nil
		})
	switch {
	case err != nil:
		rc = types.StatusPCRecoveryEnvFailed
	case out.Retried():
		rc = types.StatusPCServiceAbendDetected
	}

	if err := env.terminate(); err != nil && rc == types.StatusOK {
		rc = types.StatusPCEnvNotTerminated
	}
	return rc
}

// handleUnsafeProgramCall runs the gates in order and dispatches the call.
// The caller's parameter list is copied into local before any field is
// looked at.
func handleUnsafeProgramCall(ctx context.Context, parm *area.HandlerParm, ss bool, local []byte) types.Status {
	ga := parm.Latent.GlobalArea

	user := parm.User
	if user == nil {
		return types.StatusUserParmNull
	}

	n := copy(local, user.Header[:])
	pl, err := format.DecodeParmList(local[:n])
	if err != nil {
		return types.StatusParmBadEyecatcher
	}
	if pl.Version != types.Version {
		return types.StatusWrongClientVersion
	}
	if pl.ServiceID <= 0 || pl.ServiceID > types.MaxServiceID {
		return types.StatusFunctionIDOutOfRange
	}

	var auth Authorizer
	if l, ok := parm.Latent.Parm2.(*pcLatent); ok {
		auth = l.auth
	}
	if !isCallerAuthorized(ctx, ga, &pl, ss, auth) {
		return types.StatusPermissionDenied
	}

	srv, _ := ga.Server().(*Server)
	if srv == nil {
		return types.StatusServerNull
	}

	id := int(pl.ServiceID)
	svc, _ := ga.Service(id)
	if svc.Flags&area.ServiceInitialized == 0 {
		return types.StatusServiceNotInitialized
	}
	if (svc.Flags&area.ServiceSpaceSwitch != 0) != ss {
		return types.StatusImproperServiceAS
	}

	if isStandardService(id) {
		return srv.handleStandardService(ctx, id, user.Data)
	}

	if svc.Function == nil {
		return types.StatusFunctionNull
	}

	logger.CMSPC.Log(logger.LevelDebug, "service call", "id", id, "space_switch", ss)

	out, err := recovery.Push(ctx, serviceStateName,
		recovery.StateRetry|recovery.StateDeleteOnRetry|recovery.StateProduceDump, pcDumpTitle,
		nil, nil, nil, nil,
		func(ctx context.Context) error {
			serviceRC := svc.Function(ctx, ga, &svc, user.Data)
			_ = format.PutServiceRC(user.Header[:], serviceRC)
			return nil
		})
	switch {
	case err != nil:
		return types.StatusPCRecoveryEnvFailed
	case out.Retried():
		return types.StatusPCServiceAbendDetected
	}
	return types.StatusOK
}

// pushRecovery runs body under a retrying state titled title.
func pushRecovery(ctx context.Context, title string, body func(context.Context) error) (recovery.Outcome, error) {
	return recovery.Push(ctx, title,
		recovery.StateRetry|recovery.StateDeleteOnRetry, title,
		nil, nil, nil, nil, body)
}
