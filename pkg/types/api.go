package types

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Typed Errors (stable categories for programmatic handling)
// -----------------------------------------------------------------------------

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindProtocol      ErrKind = iota // bad eyecatcher, version mismatch, id out of range
	ErrKindAuthorization                // caller is not permitted to use the server
	ErrKindResource                     // pool, queue or block-count exhaustion
	ErrKindFault                        // a fault was contained by the recovery router
	ErrKindLifecycle                    // duplicate server, not ready, occupied slot
	ErrKindInternal                     // anything the server could not classify
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindProtocol:
		return "protocol"
	case ErrKindAuthorization:
		return "authorization"
	case ErrKindResource:
		return "resource"
	case ErrKindFault:
		return "fault"
	case ErrKindLifecycle:
		return "lifecycle"
	default:
		return "internal"
	}
}

// Error is a typed error with a numeric status and an optional underlying cause.
type Error struct {
	Kind   ErrKind
	Status Status
	Msg    string
	Err    error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target carries the same status. Wrapping a sentinel with
// a different cause keeps errors.Is working against the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Status == t.Status
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Status: e.Status, Msg: e.Msg, Err: cause}
}

// Wrapf returns a copy of e with a formatted cause.
func (e *Error) Wrapf(format string, args ...any) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// StatusOf extracts the numeric status from err. A nil error is StatusOK and
// an error that carries no status is StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Status
	}
	return StatusError
}

// ErrorOf maps a numeric status back to its sentinel. StatusOK maps to nil.
func ErrorOf(s Status) error {
	if s == StatusOK {
		return nil
	}
	if e, ok := sentinels[s]; ok {
		return e
	}
	return &Error{Kind: ErrKindInternal, Status: s, Msg: fmt.Sprintf("status %d", int(s))}
}

func newErr(kind ErrKind, s Status, msg string) *Error {
	e := &Error{Kind: kind, Status: s, Msg: msg}
	sentinels[s] = e
	return e
}

var sentinels = map[Status]*Error{}

// Sentinels returned by the server, the dispatcher and the client helpers.
var (
	ErrGeneric = newErr(ErrKindInternal, StatusError, "cross-memory server error")

	ErrParmNull                = newErr(ErrKindProtocol, StatusParmNull, "parameter list is nil")
	ErrParmBadEyecatcher       = newErr(ErrKindProtocol, StatusParmBadEyecatcher, "parameter list has a bad eyecatcher")
	ErrFunctionIDOutOfRange    = newErr(ErrKindProtocol, StatusFunctionIDOutOfRange, "service id out of range")
	ErrGlobalAreaNull          = newErr(ErrKindLifecycle, StatusGlobalAreaNull, "global area not found")
	ErrGlobalAreaBadEyecatcher = newErr(ErrKindProtocol, StatusGlobalAreaBadEyecatcher, "global area has a bad eyecatcher")
	ErrServerNull              = newErr(ErrKindLifecycle, StatusServerNull, "server is not attached to the global area")
	ErrFunctionNull            = newErr(ErrKindLifecycle, StatusFunctionNull, "service function is nil")

	ErrDuplicateServer = newErr(ErrKindLifecycle, StatusDuplicateServer, "server with this name is already running")
	ErrENQFailed       = newErr(ErrKindResource, StatusENQFailed, "exclusive lock request failed")
	ErrECSAAllocFailed = newErr(ErrKindResource, StatusECSAAllocFailed, "common storage allocation failed")

	ErrServerNotReady      = newErr(ErrKindLifecycle, StatusServerNotReady, "server is not ready")
	ErrPermissionDenied    = newErr(ErrKindAuthorization, StatusPermissionDenied, "permission denied")
	ErrPCEnvNotEstablished = newErr(ErrKindFault, StatusPCEnvNotEstablished, "PC environment not established")
	ErrPCEnvNotTerminated  = newErr(ErrKindFault, StatusPCEnvNotTerminated, "PC environment not terminated")
	ErrPCServiceAbend      = newErr(ErrKindFault, StatusPCServiceAbendDetected, "service ABEND detected")
	ErrPCRecoveryEnvFailed = newErr(ErrKindFault, StatusPCRecoveryEnvFailed, "recovery environment failed")
	ErrNotImplemented      = newErr(ErrKindLifecycle, StatusPCNotImplemented, "service not implemented")
	ErrServerAbended       = newErr(ErrKindFault, StatusServerAbended, "server ABENDed")

	ErrFormatFailed            = newErr(ErrKindProtocol, StatusFormatFailed, "message formatting failed")
	ErrMessageTooLong          = newErr(ErrKindProtocol, StatusMessageTooLong, "message too long")
	ErrLoggingContextNotFound  = newErr(ErrKindInternal, StatusLoggingContextNotFound, "logging context not found")
	ErrRecoveryContextNotFound = newErr(ErrKindFault, StatusRecoveryContextNotFound, "recovery context not found")
	ErrNameTooShort            = newErr(ErrKindProtocol, StatusNameTooShort, "server name too short")
	ErrNameTooLong             = newErr(ErrKindProtocol, StatusNameTooLong, "server name too long")
	ErrServiceNotInitialized   = newErr(ErrKindLifecycle, StatusServiceNotInitialized, "service not initialized")
	ErrServiceNotRelocatable   = newErr(ErrKindLifecycle, StatusServiceNotRelocatable, "service is outside the module range")
	ErrMainLoopFailed          = newErr(ErrKindLifecycle, StatusMainLoopFailed, "main loop ended without termination request")
	ErrStackAllocFailed        = newErr(ErrKindResource, StatusStackAllocFailed, "PC stack allocation failed")
	ErrStackReleaseFailed      = newErr(ErrKindResource, StatusStackReleaseFailed, "PC stack release failed")
	ErrImproperServiceAS       = newErr(ErrKindProtocol, StatusImproperServiceAS, "service called through the wrong linkage")

	ErrWrongServerVersion       = newErr(ErrKindProtocol, StatusWrongServerVersion, "wrong server version")
	ErrLatentParmNull           = newErr(ErrKindProtocol, StatusLatentParmNull, "latent parameter list is nil")
	ErrUserParmNull             = newErr(ErrKindProtocol, StatusUserParmNull, "user parameter list is nil")
	ErrHandlerParmBadEyecatcher = newErr(ErrKindProtocol, StatusPCHandlerParmBadEyecatcher, "PC handler parameter list has a bad eyecatcher")
	ErrZeroPCNumber             = newErr(ErrKindLifecycle, StatusZeroPCNumber, "PC number is zero")
	ErrWrongClientVersion       = newErr(ErrKindProtocol, StatusWrongClientVersion, "wrong client version")
	ErrChainLoop                = newErr(ErrKindInternal, StatusChainLoop, "discovery chain too long")
	ErrChainNotLocked           = newErr(ErrKindResource, StatusChainNotLocked, "discovery chain not locked")
	ErrChainNotReleased         = newErr(ErrKindResource, StatusChainNotReleased, "discovery chain not released")

	ErrMsgQueueNotCreated      = newErr(ErrKindResource, StatusMsgQueueNotCreated, "message queue not created")
	ErrConfigNotCreated        = newErr(ErrKindResource, StatusConfigNotCreated, "config store not created")
	ErrUnknownParmType         = newErr(ErrKindProtocol, StatusUnknownParmType, "unknown config parameter type")
	ErrConfigParmNameTooLong   = newErr(ErrKindProtocol, StatusConfigParmNameTooLong, "config parameter name too long")
	ErrCharParmTooLong         = newErr(ErrKindProtocol, StatusCharParmTooLong, "character parameter too long")
	ErrConfigParmNotFound      = newErr(ErrKindLifecycle, StatusConfigParmNotFound, "config parameter not found")
	ErrStdSvcParmNull          = newErr(ErrKindProtocol, StatusStdSvcParmNull, "standard service parameter is nil")
	ErrStdSvcParmBadEyecatcher = newErr(ErrKindProtocol, StatusStdSvcParmBadEyecatcher, "standard service parameter has a bad eyecatcher")
	ErrServerNameNull          = newErr(ErrKindProtocol, StatusServerNameNull, "server name is empty")
	ErrServiceEntryOccupied    = newErr(ErrKindLifecycle, StatusServiceEntryOccupied, "service entry occupied")
	ErrNoStorageForMsg         = newErr(ErrKindResource, StatusNoStorageForMsg, "no storage for message")
	ErrAllocFailed             = newErr(ErrKindResource, StatusAllocFailed, "allocation failed")
)
