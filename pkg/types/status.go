package types

import "fmt"

// Status is the numeric call-level result returned by the server and the
// client helpers. The numbers are part of the call protocol and never change.
type Status int

const (
	StatusOK                         Status = 0
	StatusError                      Status = 8
	StatusParmNull                   Status = 9
	StatusParmBadEyecatcher          Status = 10
	StatusFunctionIDOutOfRange       Status = 11
	StatusGlobalAreaNull             Status = 12
	StatusGlobalAreaBadEyecatcher    Status = 13
	StatusServerNull                 Status = 14
	StatusFunctionNull               Status = 16
	StatusDuplicateServer            Status = 21
	StatusENQFailed                  Status = 22
	StatusECSAAllocFailed            Status = 23
	StatusServerNotReady             Status = 30
	StatusPermissionDenied           Status = 33
	StatusPCEnvNotEstablished        Status = 34
	StatusPCEnvNotTerminated         Status = 35
	StatusPCServiceAbendDetected     Status = 36
	StatusPCRecoveryEnvFailed        Status = 37
	StatusPCNotImplemented           Status = 38
	StatusServerAbended              Status = 39
	StatusFormatFailed               Status = 40
	StatusMessageTooLong             Status = 41
	StatusLoggingContextNotFound     Status = 42
	StatusRecoveryContextNotFound    Status = 43
	StatusNameTooShort               Status = 44
	StatusNameTooLong                Status = 45
	StatusServiceNotInitialized      Status = 46
	StatusServiceNotRelocatable      Status = 50
	StatusMainLoopFailed             Status = 51
	StatusStackAllocFailed           Status = 52
	StatusStackReleaseFailed         Status = 53
	StatusImproperServiceAS          Status = 54
	StatusWrongServerVersion         Status = 60
	StatusLatentParmNull             Status = 61
	StatusUserParmNull               Status = 62
	StatusPCHandlerParmBadEyecatcher Status = 63
	StatusZeroPCNumber               Status = 64
	StatusWrongClientVersion         Status = 65
	StatusChainLoop                  Status = 66
	StatusChainNotLocked             Status = 67
	StatusChainNotReleased           Status = 68
	StatusMsgQueueNotCreated         Status = 71
	StatusConfigNotCreated           Status = 72
	StatusUnknownParmType            Status = 74
	StatusConfigParmNameTooLong      Status = 75
	StatusCharParmTooLong            Status = 76
	StatusConfigParmNotFound         Status = 77
	StatusStdSvcParmNull             Status = 78
	StatusStdSvcParmBadEyecatcher    Status = 79
	StatusServerNameNull             Status = 84
	StatusServiceEntryOccupied       Status = 85
	StatusNoStorageForMsg            Status = 86
	StatusAllocFailed                Status = 87

	// StatusMax is the highest status number the description table covers.
	StatusMax Status = 93
)

// descriptions holds the operator-facing text for the statuses clients are
// most likely to see. Everything else reads as "N/A".
var descriptions = map[Status]string{
	StatusOK:                 "Ok",
	StatusServerNotReady:     "Server is not running",
	StatusPermissionDenied:   "Permission denied",
	StatusServerAbended:      "Cross-memory call ABENDed",
	StatusWrongServerVersion: "Wrong server version",
	StatusWrongClientVersion: "Wrong client version",
	StatusServerNameNull:     "Server name is NULL",
}

// Description returns the status description used by GetStatus.
func (s Status) Description() string {
	if s < 0 || s > StatusMax {
		return "N/A"
	}
	if d, ok := descriptions[s]; ok {
		return d
	}
	return "N/A"
}

// String implements the Stringer interface for Status
func (s Status) String() string {
	if e, ok := sentinels[s]; ok {
		return fmt.Sprintf("RC=%d (%s)", int(s), e.Msg)
	}
	if s == StatusOK {
		return "RC=0 (ok)"
	}
	return fmt.Sprintf("RC=%d", int(s))
}

// Known returns every status that has a sentinel, in ascending order.
func Known() []Status {
	out := make([]Status, 0, len(sentinels))
	for s := StatusError; s <= StatusMax; s++ {
		if _, ok := sentinels[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
