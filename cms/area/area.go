package area

import (
	"context"
	"sync"

	"code.hybscloud.com/atomix"

	"github.com/joshuapare/xmemkit/cms/cellpool"
	"github.com/joshuapare/xmemkit/cms/recovery"
	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// ServerFlags describe the server attached to an area.
type ServerFlags uint32

const (
	ServerColdStart   ServerFlags = 0x00000001
	ServerReady       ServerFlags = 0x00000002
	ServerTermStarted ServerFlags = 0x00000004
	ServerTermEnded   ServerFlags = 0x00000008
	ServerCheckAuth   ServerFlags = 0x00000010
	ServerCleanLPA    ServerFlags = 0x00000020
)

// ServiceFlags describe one service table entry.
type ServiceFlags uint32

const (
	ServiceInitialized ServiceFlags = 0x00000001
	ServiceSpaceSwitch ServiceFlags = 0x00000002
	ServiceLPA         ServiceFlags = 0x00000004
)

// ServiceFunc implements a service. data is the caller's payload; the
// returned value is copied back to the caller as the service RC.
type ServiceFunc func(ctx context.Context, ga *GlobalArea, svc *Service, data []byte) int32

// Service is one service table entry.
type Service struct {
	Function      ServiceFunc
	Flags         ServiceFlags
	Data          any
	RelocatedAddr uintptr
}

// ServiceTable is indexed by service id.
type ServiceTable [types.MaxServiceCount]Service

// PCInfo holds the linkage numbers of the two entry points.
type PCInfo struct {
	SSNumber   uint32
	SSSequence uint32
	CPNumber   uint32
	CPSequence uint32
}

// LocalServer is the running server attached to an area.
type LocalServer interface {
	Name() types.ServerName
}

// BuildStamp identifies a build of the common module.
type BuildStamp string

// GlobalArea is the server-wide anchor block.
type GlobalArea struct {
	Eyecatcher string
	Key        uint8
	Subpool    uint8
	Size       uint16
	Flags      uint32

	// UserAnchor and DynLinkVector are opaque to the server and owned by
	// the application built on it.
	UserAnchor    any
	DynLinkVector any

	version     atomix.Uint32
	serverASID  atomix.Uint32
	serverFlags atomix.Uint32
	ecsaBlocks  atomix.Int64
	pcLogLevel  atomix.Uint32

	mu           sync.RWMutex
	name         types.ServerName
	server       LocalServer
	pcInfo       PCInfo
	pcCPHandler  PCRoutine
	table        ServiceTable
	moduleStamp  BuildStamp
	moduleBase   uintptr
	stackPool    *cellpool.Pool
	recoveryPool *recovery.StatePool
}

// globalAreaSize is the nominal size reported in the area header.
const globalAreaSize = 0x2000

// New returns a fresh area for name at the current version.
func New(name types.ServerName) *GlobalArea {
	ga := &GlobalArea{
		Eyecatcher: format.GlobalAreaEyecatcher,
		Key:        types.ServerKey,
		Subpool:    types.ServerSubpool,
		Size:       globalAreaSize,
		name:       name,
	}
	ga.version.Store(types.Version)
	return ga
}

// Version returns the area version.
func (ga *GlobalArea) Version() uint32 { return ga.version.Load() }

// SetVersion overwrites the area version.
func (ga *GlobalArea) SetVersion(v uint32) { ga.version.Store(v) }

// Name returns the server name recorded in the area.
func (ga *GlobalArea) Name() types.ServerName {
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	return ga.name
}

// SetName records the server name.
func (ga *GlobalArea) SetName(name types.ServerName) {
	ga.mu.Lock()
	ga.name = name
	ga.mu.Unlock()
}

// Server returns the attached server or nil.
func (ga *GlobalArea) Server() LocalServer {
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	return ga.server
}

// SetServer attaches s; nil detaches.
func (ga *GlobalArea) SetServer(s LocalServer) {
	ga.mu.Lock()
	ga.server = s
	ga.mu.Unlock()
}

// ServerASID returns the address space id of the attached server.
func (ga *GlobalArea) ServerASID() uint16 { return uint16(ga.serverASID.Load()) }

// SetServerASID records the server's address space id.
func (ga *GlobalArea) SetServerASID(asid uint16) { ga.serverASID.Store(uint32(asid)) }

// ServerFlags returns the current server flags.
func (ga *GlobalArea) ServerFlags() ServerFlags { return ServerFlags(ga.serverFlags.Load()) }

// HasServerFlags reports whether all of f are set.
func (ga *GlobalArea) HasServerFlags(f ServerFlags) bool { return ga.ServerFlags()&f == f }

// ResetServerFlags replaces the server flags.
func (ga *GlobalArea) ResetServerFlags(f ServerFlags) { ga.serverFlags.Store(uint32(f)) }

// SetServerFlags sets f.
func (ga *GlobalArea) SetServerFlags(f ServerFlags) {
	for {
		old := ga.serverFlags.Load()
		if ga.serverFlags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// ClearServerFlags clears f.
func (ga *GlobalArea) ClearServerFlags(f ServerFlags) {
	for {
		old := ga.serverFlags.Load()
		if ga.serverFlags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

// PCLogLevel returns the log level used by the PC routines.
func (ga *GlobalArea) PCLogLevel() int { return int(ga.pcLogLevel.Load()) }

// SetPCLogLevel sets the PC routine log level.
func (ga *GlobalArea) SetPCLogLevel(level int) { ga.pcLogLevel.Store(uint32(level)) }

// PCInfo returns the linkage numbers.
func (ga *GlobalArea) PCInfo() PCInfo {
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	return ga.pcInfo
}

// SetPCInfo records the linkage numbers.
func (ga *GlobalArea) SetPCInfo(info PCInfo) {
	ga.mu.Lock()
	ga.pcInfo = info
	ga.mu.Unlock()
}

// PCCPHandler returns the routine behind the current-primary entry point.
func (ga *GlobalArea) PCCPHandler() PCRoutine {
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	return ga.pcCPHandler
}

// SetPCCPHandler records the current-primary routine.
func (ga *GlobalArea) SetPCCPHandler(r PCRoutine) {
	ga.mu.Lock()
	ga.pcCPHandler = r
	ga.mu.Unlock()
}

// Service returns a copy of entry id. ok is false for ids outside the table.
func (ga *GlobalArea) Service(id int) (svc Service, ok bool) {
	if id < 0 || id >= types.MaxServiceCount {
		return Service{}, false
	}
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	return ga.table[id], true
}

// SetServiceTable replaces the whole table.
func (ga *GlobalArea) SetServiceTable(t *ServiceTable) {
	ga.mu.Lock()
	ga.table = *t
	ga.mu.Unlock()
}

// ClearServiceTable empties the table.
func (ga *GlobalArea) ClearServiceTable() {
	ga.mu.Lock()
	ga.table = ServiceTable{}
	ga.mu.Unlock()
}

// Module returns the build stamp and base address of the common module copy.
func (ga *GlobalArea) Module() (BuildStamp, uintptr) {
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	return ga.moduleStamp, ga.moduleBase
}

// SetModule records the common module copy. A zero base means none.
func (ga *GlobalArea) SetModule(stamp BuildStamp, base uintptr) {
	ga.mu.Lock()
	ga.moduleStamp, ga.moduleBase = stamp, base
	ga.mu.Unlock()
}

// Pools returns the call-stack pool and the recovery state pool.
func (ga *GlobalArea) Pools() (*cellpool.Pool, *recovery.StatePool) {
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	return ga.stackPool, ga.recoveryPool
}

// SetPools records the call-stack and recovery state pools.
func (ga *GlobalArea) SetPools(stack *cellpool.Pool, rp *recovery.StatePool) {
	ga.mu.Lock()
	ga.stackPool, ga.recoveryPool = stack, rp
	ga.mu.Unlock()
}

// Valid reports whether the area carries the expected eyecatcher.
func (ga *GlobalArea) Valid() bool {
	return ga != nil && ga.Eyecatcher == format.GlobalAreaEyecatcher
}
