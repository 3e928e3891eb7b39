package cms

import (
	"context"
	"time"

	"github.com/joshuapare/xmemkit/cms/area"
)

// StartFunc runs after the server resources are in place and before the
// server is marked ready. A non-zero return fails the start.
type StartFunc func(ctx context.Context, ga *area.GlobalArea, data any) int

// StopFunc runs after the server is stopped.
type StopFunc func(ctx context.Context, ga *area.GlobalArea, data any) int

// CommandFunc receives operator commands of the form VERB(target).
type CommandFunc func(ctx context.Context, ga *area.GlobalArea, cmd *ModifyCommand, data any) CommandStatus

const (
	// DefaultStackPoolSize is the number of PC-ss call stacks.
	DefaultStackPoolSize = 1024

	// DefaultRecoveryPoolSize is the number of PC-ss recovery states.
	DefaultRecoveryPoolSize = 8192

	// DefaultTickInterval is how often the main loop flushes the message queue.
	DefaultTickInterval = 10 * time.Second
)

// Options configures a Server.
//
// Use DefaultOptions() for production defaults.
type Options struct {
	// StartCallback, StopCallback and CommandCallback are optional hooks of
	// the application built on the server. CallbackData is passed to each.
	StartCallback   StartFunc
	StopCallback    StopFunc
	CommandCallback CommandFunc
	CallbackData    any

	// StackPoolSize is the number of call stacks reserved for space switch
	// calls. Each call holds one stack until it returns.
	// Default: 1024
	StackPoolSize uint32

	// RecoveryPoolSize is the number of recovery states available to space
	// switch calls. Each call uses two.
	// Default: 8192
	RecoveryPoolSize uint32

	// Module describes where the service code lives. The zero value accepts
	// any service address and relocates it onto itself.
	Module Module

	// Authorizer answers the access check for callers that are not trusted
	// by linkage alone.
	// Default: an empty StaticACL, which denies every such caller
	Authorizer Authorizer

	// Console receives operator replies.
	// Default: replies are printed through the logger
	Console Console

	// CheckAuth forces the access check even for privileged callers that
	// ask to skip it.
	CheckAuth bool

	// Debug raises the CMS and CMSPC log components to DEBUG.
	Debug bool

	// ColdStart discards an existing Global Area at start.
	ColdStart bool

	// ASID is the address space id recorded for the server.
	// Default: 1
	ASID uint16

	// Registry is where the Global Area is published.
	// Default: area.Default()
	Registry *area.Registry

	// TickInterval is the main loop wait between message queue flushes.
	// Default: 10s
	TickInterval time.Duration
}

// DefaultOptions returns the defaults used when New receives nil options.
func DefaultOptions() Options {
	return Options{
		StackPoolSize:    DefaultStackPoolSize,
		RecoveryPoolSize: DefaultRecoveryPoolSize,
		ASID:             1,
		TickInterval:     DefaultTickInterval,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.StackPoolSize == 0 {
		o.StackPoolSize = def.StackPoolSize
	}
	if o.RecoveryPoolSize == 0 {
		o.RecoveryPoolSize = def.RecoveryPoolSize
	}
	if o.ASID == 0 {
		o.ASID = def.ASID
	}
	if o.TickInterval <= 0 {
		o.TickInterval = def.TickInterval
	}
	if o.Authorizer == nil {
		o.Authorizer = NewStaticACL()
	}
	if o.Console == nil {
		o.Console = logConsole{}
	}
	if o.Registry == nil {
		o.Registry = area.Default()
	}
}
