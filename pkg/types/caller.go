package types

import "context"

// Caller describes the execution unit issuing a cross-memory call. The server
// reads it to authorize the call and to choose the recovery mode.
type Caller struct {
	// ASID is the caller's primary address space id.
	ASID uint16

	// Key is the caller's PSW key. Keys 0-7 are system keys.
	Key uint8

	// Supervisor is true when the caller runs in supervisor state.
	Supervisor bool

	// SRB marks an asynchronous service-request-block caller.
	SRB bool

	// Locked marks a caller that holds a system lock and must not block.
	Locked bool

	// UserID is the security identity used for the FASTAUTH check.
	UserID string
}

// Privileged reports whether the caller runs in supervisor state or a system key.
func (c Caller) Privileged() bool {
	return c.Supervisor || c.Key < 8
}

// ProblemState returns a caller in user key 8 without supervisor state.
func ProblemState(asid uint16, userID string) Caller {
	return Caller{ASID: asid, Key: 8, UserID: userID}
}

type callerKey struct{}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached to ctx. A context without one yields
// an unprivileged caller in address space 0.
func CallerFrom(ctx context.Context) Caller {
	if ctx != nil {
		if c, ok := ctx.Value(callerKey{}).(Caller); ok {
			return c
		}
	}
	return Caller{Key: 8}
}
