package format

// ============================================================================
// Alignment
// ============================================================================

const (
	// CellAlignment is the alignment of cell pool cells in bytes.
	CellAlignment = 8

	// CellAlignmentMask is the bitmask used for aligning to 8-byte boundaries (CellAlignment - 1).
	CellAlignmentMask = CellAlignment - 1

	// PageSize is the allocation granule of cell pool extents.
	PageSize = 4096

	// PageAlignmentMask is the bitmask used for aligning to page boundaries (PageSize - 1).
	PageAlignmentMask = PageSize - 1
)

// ============================================================================
// Eyecatchers
// ============================================================================
// Eyecatchers are stored in EBCDIC inside fixed-layout blocks and kept as
// plain strings in Go values.

const (
	ParmListEyecatcher      = "RSCMSPRM"
	GlobalAreaEyecatcher    = "RSCMSRVG"
	HandlerParmEyecatcher   = "RSPCHEYE"
	LogParmEyecatcher       = "RSCMSMBL"
	ConfigSvcParmEyecatcher = "RSCMSCSY"
	ConfigParmEyecatcher    = "RSCMSCFG"
	ServerEyecatcher        = "RSCMSRV1"
	RecoveryCtxEyecatcher   = "RSRCVCTX"
	RecoveryStateEyecatcher = "RSRCVSTE"
	CommandTaskEyecatcher   = "CMSCTEYE"
	ABENDInfoEyecatcher     = "CMSABEDI"

	// EyecatcherSize is the width of every eyecatcher field.
	EyecatcherSize = 8
)

// ============================================================================
// Parameter List (caller -> server)
// ============================================================================
//
// Offset  Size  Field
// 0x00    8     eyecatcher "RSCMSPRM"
// 0x08    4     version
// 0x0C    16    server name, blank padded
// 0x1C    4     service id
// 0x20    4     service RC (written back by the server)
// 0x24    2     reserved
// 0x26    2     flags

const (
	ParmListEyecatcherOffset = 0x00
	ParmListVersionOffset    = 0x08
	ParmListServerNameOffset = 0x0C
	ParmListServiceIDOffset  = 0x1C
	ParmListServiceRCOffset  = 0x20
	ParmListReservedOffset   = 0x24
	ParmListFlagsOffset      = 0x26

	// ParmListSize is the fixed header size; caller data travels beside it.
	ParmListSize = 0x28

	// ServerNameSize is the blank padded server name width.
	ServerNameSize = 16
)

// Parameter list flags.
const (
	ParmListFlagNone       uint16 = 0x0000
	ParmListFlagNoSAFCheck uint16 = 0x0001
)

// ============================================================================
// Log Service Parameter
// ============================================================================
//
// Offset  Size  Field
// 0x000   8     eyecatcher "RSCMSMBL"
// 0x008   57    message prefix (timestamp, job, ASCB, ASID, TCB)
// 0x041   256   message text
// 0x008   512   message (prefix and text overlay the first 313 bytes)
// 0x208   4     message length

const (
	LogParmMessageOffset = 0x008
	LogParmPrefixSize    = 57
	LogParmTextOffset    = LogParmMessageOffset + LogParmPrefixSize
	LogParmTextSize      = 256
	LogParmMessageSize   = 512
	LogParmLengthOffset  = LogParmMessageOffset + LogParmMessageSize
	LogParmSize          = LogParmLengthOffset + 4
)

// ============================================================================
// Config Parameter Record
// ============================================================================
//
// Offset  Size  Field
// 0x00    8     eyecatcher "RSCMSCFG"
// 0x08    2     value length
// 0x0A    4     type (0 = CHAR)
// 0x0E    128   NUL terminated value

const (
	ConfigParmValueLenOffset = 0x08
	ConfigParmTypeOffset     = 0x0A
	ConfigParmValueOffset    = 0x0E
	ConfigParmValueSize      = 128
	ConfigParmSize           = ConfigParmValueOffset + ConfigParmValueSize

	// ConfigParmTypeChar is the only supported parameter type.
	ConfigParmTypeChar uint32 = 0
)

// ============================================================================
// Config Service Parameter
// ============================================================================
//
// Offset  Size  Field
// 0x00    8     eyecatcher "RSCMSCSY"
// 0x08    73    NUL terminated name
// 0x51    7     padding
// 0x58    142   result (config parameter record)

const (
	ConfigSvcNameOffset   = 0x08
	ConfigSvcNameSize     = 72 + 1
	ConfigSvcResultOffset = ConfigSvcNameOffset + ConfigSvcNameSize + 7
	ConfigSvcParmSize     = ConfigSvcResultOffset + ConfigParmSize
)
