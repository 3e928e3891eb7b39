package cms

import (
	"errors"
	"sync"

	"code.hybscloud.com/atomix"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/internal/enq"
	"github.com/joshuapare/xmemkit/internal/logger"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// RegisterFlags describe how a service is reached and where its code runs.
type RegisterFlags uint32

const (
	RegisterNone             RegisterFlags = 0x00000000
	RegisterSpaceSwitch      RegisterFlags = 0x00000001
	RegisterRelocateToCommon RegisterFlags = 0x00000002
	RegisterCodeInCommon     RegisterFlags = 0x00000004
)

// maxCommandTasks bounds the MODIFY commands processed concurrently.
const maxCommandTasks = 30

// Server is the server-local control object.
type Server struct {
	name types.ServerName
	opts Options
	reg  *area.Registry

	flags atomix.Uint32

	mu    sync.Mutex
	table area.ServiceTable
	ga    *area.GlobalArea
	pcss  area.PCEntry
	pccp  area.PCEntry
	lock  enq.Token

	queue  *msgQueue
	config *configStore

	cmdTasks   errgroup.Group
	startRoute RouteInfo
	termRoute  RouteInfo

	ready    chan struct{}
	readyOne sync.Once
	wake     chan struct{}
	wakeOne  sync.Once
	done     chan struct{}
	running  atomix.Uint32
}

// New creates a server named name. An empty name selects
// types.DefaultServerName. A nil opts selects DefaultOptions().
func New(name string, opts *Options) (*Server, error) {
	if name == "" {
		name = types.DefaultServerName
	}
	if err := types.ValidateServerName(name); err != nil {
		return nil, err
	}

	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	o.applyDefaults()
	if o.Module.Stamp == "" {
		o.Module.Stamp = defaultStamp()
	}

	s := &Server{
		name:  types.MakeServerName(name),
		opts:  o,
		reg:   o.Registry,
		ready: make(chan struct{}),
		wake:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.cmdTasks.SetLimit(maxCommandTasks)

	if o.Debug {
		logger.CMS.SetLevel(logger.LevelDebug)
		logger.CMSPC.SetLevel(logger.LevelDebug)
	}
	if o.ColdStart {
		s.SetFlags(area.ServerColdStart)
	}
	if o.CheckAuth {
		s.SetFlags(area.ServerCheckAuth)
	}

	q, err := newMsgQueue()
	if err != nil {
		return nil, err
	}
	s.queue = q
	s.config = newConfigStore()
	s.initStandardServices()

	logger.CMS.Log(logger.LevelDebug, "server created", "name", s.name.Trimmed(), "stamp", string(o.Module.Stamp))
	return s, nil
}

// initStandardServices reserves the built-in ids. They have no function;
// dispatch handles them inline.
func (s *Server) initStandardServices() {
	for _, id := range []int{types.LogServiceID, types.DumpServiceID, types.ConfigServiceID, types.StatusServiceID} {
		s.table[id] = area.Service{Flags: area.ServiceInitialized | area.ServiceSpaceSwitch}
	}
}

// Name implements area.LocalServer.
func (s *Server) Name() types.ServerName { return s.name }

// Registry returns the registry the server publishes its Global Area in.
func (s *Server) Registry() *area.Registry { return s.reg }

// GlobalArea returns the area the server is attached to, or nil before Run
// has allocated it.
func (s *Server) GlobalArea() *area.GlobalArea {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ga
}

// Flags returns the server's local flags.
func (s *Server) Flags() area.ServerFlags { return area.ServerFlags(s.flags.Load()) }

// HasFlags reports whether all of f are set locally.
func (s *Server) HasFlags(f area.ServerFlags) bool { return s.Flags()&f == f }

// SetFlags sets f locally.
func (s *Server) SetFlags(f area.ServerFlags) {
	for {
		old := s.flags.Load()
		if s.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

// ClearFlags clears f locally.
func (s *Server) ClearFlags(f area.ServerFlags) {
	for {
		old := s.flags.Load()
		if s.flags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

// RegisterService installs fn under id. Registration must finish before Run
// marks the server ready.
func (s *Server) RegisterService(id int, fn area.ServiceFunc, data any, flags RegisterFlags) error {
	if id < types.MinServiceID || id > types.MaxServiceID {
		logger.CMS.Log(logger.LevelSevere, "service id out of range", "id", id)
		return types.ErrFunctionIDOutOfRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table[id].Function != nil {
		logger.CMS.Log(logger.LevelSevere, "service entry occupied", "id", id)
		return types.ErrServiceEntryOccupied
	}

	ss := flags&RegisterSpaceSwitch != 0
	inCommon := flags&RegisterCodeInCommon != 0
	relocate := flags&RegisterRelocateToCommon != 0
	relocationRequired := (ss && relocate && !inCommon) || (!ss && !inCommon)

	if relocationRequired {
		addr := funcAddr(fn)
		if !s.opts.Module.contains(addr) {
			logger.CMS.Log(logger.LevelSevere, "service not relocatable",
				"id", id, "addr", addr, "start", s.opts.Module.Base, "end", s.opts.Module.Base+s.opts.Module.Size)
			return types.ErrServiceNotRelocatable
		}
	}

	svc := area.Service{Function: fn, Data: data}
	if relocationRequired {
		svc.Flags |= area.ServiceLPA
	}
	if ss {
		svc.Flags |= area.ServiceSpaceSwitch
	}
	s.table[id] = svc

	logger.CMS.Log(logger.LevelDebug, "service registered", "id", id, "flags", uint32(svc.Flags))
	return nil
}

// AddConfigParm stores a parameter for the CONFIG service.
func (s *Server) AddConfigParm(name, value string, typ ParmType) error {
	return s.config.put(name, value, typ)
}

// Close releases the server resources. The server must not be running.
func (s *Server) Close() error {
	if s.running.Load() != 0 {
		return types.ErrGeneric.Wrapf("server %s is running", s.name.Trimmed())
	}
	logger.CMS.Log(logger.LevelDebug, "server about to be removed", "name", s.name.Trimmed())
	var errs []error
	if ga := s.GlobalArea(); ga != nil && ga.Server() == nil {
		stack, states := ga.Pools()
		ga.SetPools(nil, nil)
		if stack != nil {
			errs = append(errs, stack.Delete())
		}
		if states != nil {
			errs = append(errs, states.Remove())
		}
	}
	if s.queue != nil {
		errs = append(errs, s.queue.close())
		s.queue = nil
	}
	return errors.Join(errs...)
}
