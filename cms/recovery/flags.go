package recovery

// StateFlags control how a state handles a fault.
type StateFlags uint32

const (
	StateNone          StateFlags = 0x00000000
	StateProduceDump   StateFlags = 0x01000000
	StateRetry         StateFlags = 0x02000000
	StateDeleteOnRetry StateFlags = 0x04000000
	StateSDWAToLogrec  StateFlags = 0x08000000
	StateDisabled      StateFlags = 0x10000000
	StateCPoolBased    StateFlags = 0x20000000
)

// RouterFlags describe the environment a router runs in.
type RouterFlags uint32

const (
	RouterFlagNone             RouterFlags = 0x00000000
	RouterFlagNonInterruptible RouterFlags = 0x01000000
	RouterFlagPCCapable        RouterFlags = 0x02000000
	RouterFlagRunOnTerm        RouterFlags = 0x04000000
	RouterFlagUserContext      RouterFlags = 0x08000000
	RouterFlagUserStatePool    RouterFlags = 0x10000000
	RouterFlagSRB              RouterFlags = 0x20000000
	RouterFlagLocked           RouterFlags = 0x40000000
	RouterFlagFRR              RouterFlags = 0x80000000
)
