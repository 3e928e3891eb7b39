// Package recovery provides per-task recovery routers for the cross-memory
// server.
//
// A router is established on a context and keeps a stack of recovery
// states. Push adds a state and runs a body under it; when the body faults
// (panics), the router walks the states from the most recent one:
//
//   - disabled states are dropped
//   - the first enabled state is disabled and marked abended, then its
//     analysis routine, its cleanup routine, an optional dump and an optional
//     LOGREC record run in that order
//   - a state that asked for RETRY resumes at its Push, which returns
//     RetriedAfterFault; any other state is removed and the walk continues
//
// When no state takes the fault it percolates to the previous router or to
// the Go runtime.
//
// A router belongs to the goroutine that established it. Contexts derived
// from the returned context share the router; passing them to other
// goroutines that push states is not supported.
//
// # Usage Example
//
//	ctx, r, err := recovery.Establish(ctx, recovery.RouterFlagNone)
//	if err != nil {
//	    return err
//	}
//	defer r.Remove()
//
//	out, err := recovery.Push(ctx, "service call",
//	    recovery.StateRetry|recovery.StateDeleteOnRetry, "RCMS",
//	    nil, nil, nil, nil,
//	    func(ctx context.Context) error {
//	        return callService(ctx)
//	    })
//	if out.Retried() {
//	    cc, rsn := recovery.AbendCode(out.Fault)
//	    ...
//	}
package recovery
