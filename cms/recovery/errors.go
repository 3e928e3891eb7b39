package recovery

import "errors"

// Return codes shared with callers that report numeric results.
const (
	RCOK              = 0
	RCError           = 8
	RCContextNotFound = 11
	RCAllocFailed     = 15
	RCLockedEnv       = 16
	RCAbended         = 100
)

var (
	// ErrContextNotFound is returned when no router is established on the context.
	ErrContextNotFound = errors.New("recovery: no router established")

	// ErrAllocFailed is returned when a state record cannot be allocated.
	ErrAllocFailed = errors.New("recovery: state allocation failed")

	// ErrLockedEnv is returned when an SRB or locked caller establishes a
	// router without a preallocated router and state pool.
	ErrLockedEnv = errors.New("recovery: locked environment requires user context and state pool")

	// ErrNoState is returned by operations on an empty state stack.
	ErrNoState = errors.New("recovery: no recovery state")
)

// RC maps an error from this package to its numeric return code.
func RC(err error) int {
	switch {
	case err == nil:
		return RCOK
	case errors.Is(err, ErrContextNotFound):
		return RCContextNotFound
	case errors.Is(err, ErrAllocFailed):
		return RCAllocFailed
	case errors.Is(err, ErrLockedEnv):
		return RCLockedEnv
	default:
		return RCError
	}
}
