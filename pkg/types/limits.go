package types

// ============================================================================
// Cross-Memory Protocol Limits
// ============================================================================
// These constants are shared by the server, the dispatcher and clients. A
// server and a client built from different values will refuse each other at
// the version gate.

const (
	// Version is the call protocol version. Caller and server must match exactly.
	Version uint32 = 2

	// DiscardedVersion marks a Global Area that a cold start took out of service.
	DiscardedVersion uint32 = 0xDEADDA7A

	// ServerKey is the protection key the server and its common storage run in.
	ServerKey = 4

	// ServerSubpool is the common storage subpool of the Global Area.
	ServerSubpool = 228

	// ServerNameMinLen and ServerNameMaxLen bound the server name.
	ServerNameMinLen = 4
	ServerNameMaxLen = 16

	// DefaultServerName is used when a server is created without a name.
	DefaultServerName = "ZWESIS_STD"

	// ProductID is the product prefix of lock names and security profiles.
	ProductID = "ZWES"
)

const (
	// MaxServiceCount is the size of the service table.
	MaxServiceCount = 128

	// MinServiceID is the first id available to user services. Ids below it
	// are reserved for the standard services.
	MinServiceID = 10

	// MaxServiceID is the last valid service id.
	MaxServiceID = MaxServiceCount - 1
)

// Standard service ids.
const (
	LogServiceID    = 1
	DumpServiceID   = 2
	ConfigServiceID = 3
	StatusServiceID = 4
)

const (
	// ECSAMaxBlockCount caps the common storage blocks a server may hold.
	ECSAMaxBlockCount = 32

	// ECSAMaxBlockSize caps a single common storage block.
	ECSAMaxBlockSize = 65536
)

const (
	// ConfigParmMaxNameLen is the longest config parameter name.
	ConfigParmMaxNameLen = 72

	// ConfigParmMaxValueSize is the value buffer size including the terminator.
	ConfigParmMaxValueSize = 128
)
