package recovery

import (
	"context"
	"runtime/debug"

	"github.com/joshuapare/xmemkit/internal/logger"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// Decision is returned by an analysis routine.
type Decision int

const (
	// Continue lets the router finish processing the state.
	Continue Decision = iota
	// Percolate hands the fault back past every state of the router.
	Percolate
)

// AnalysisFunc runs first when a state handles a fault.
type AnalysisFunc func(ctx context.Context, f *Fault, data any) Decision

// CleanupFunc runs after analysis, before any dump is taken.
type CleanupFunc func(ctx context.Context, f *Fault, data any)

// OutcomeKind tells how Push returned.
type OutcomeKind int

const (
	// Entered means the body ran to completion.
	Entered OutcomeKind = iota
	// RetriedAfterFault means the body faulted and the state retried.
	RetriedAfterFault
)

// Outcome is the result of Push.
type Outcome struct {
	Kind  OutcomeKind
	Fault *Fault // set when Kind is RetriedAfterFault
}

// Retried reports whether the body faulted and control resumed at Push.
func (o Outcome) Retried() bool { return o.Kind == RetriedAfterFault }

type state struct {
	name         string
	dumpTitle    string
	flags        StateFlags
	enabled      bool
	abended      bool
	live         bool // a Push frame is running the body
	analysis     AnalysisFunc
	analysisData any
	cleanup      CleanupFunc
	cleanupData  any
	info         ServiceInfo
	record       []byte
}

// Router holds the recovery states of one task.
type Router struct {
	flags   RouterFlags
	states  []*state
	prev    *Router
	pool    *StatePool
	dumper  Dumper
	info    ServiceInfo
	frames  int
	removed bool
}

// unwind carries a resolved fault through the Push frames of a router.
type unwind struct {
	router *Router
	target *state
	fault  *Fault
	value  any
}

type routerKey struct{}

// Option configures Establish.
type Option func(*options)

type options struct {
	userCtx *Router
	pool    *StatePool
	dumper  Dumper
}

// WithUserContext supplies preallocated router storage.
func WithUserContext(r *Router) Option { return func(o *options) { o.userCtx = r } }

// WithStatePool makes every state take its record from sp.
func WithStatePool(sp *StatePool) Option { return func(o *options) { o.pool = sp } }

// WithDumper replaces the default dumper.
func WithDumper(d Dumper) Option { return func(o *options) { o.dumper = d } }

// Establish installs a new router and returns a context carrying it. Any
// router already on ctx becomes the previous router.
func Establish(ctx context.Context, flags RouterFlags, opts ...Option) (context.Context, *Router, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	caller := types.CallerFrom(ctx)
	if caller.SRB {
		flags |= RouterFlagSRB
	}
	if caller.Locked {
		flags |= RouterFlagLocked
	}
	if flags&(RouterFlagSRB|RouterFlagLocked) != 0 {
		if o.userCtx == nil || o.pool == nil {
			return ctx, nil, ErrLockedEnv
		}
		flags |= RouterFlagFRR
	}

	r := o.userCtx
	if r != nil {
		*r = Router{}
		flags |= RouterFlagUserContext
	} else {
		r = &Router{}
	}
	if o.pool != nil {
		flags |= RouterFlagUserStatePool
		r.pool = o.pool
	}
	r.flags = flags
	r.prev = FromContext(ctx)
	r.dumper = o.dumper
	if r.dumper == nil {
		r.dumper = logDumper{}
	}
	return context.WithValue(ctx, routerKey{}, r), r, nil
}

// FromContext returns the active router on ctx, skipping removed ones.
func FromContext(ctx context.Context) *Router {
	r, _ := ctx.Value(routerKey{}).(*Router)
	for r != nil && r.removed {
		r = r.prev
	}
	return r
}

// IsRouterEstablished reports whether ctx carries an active router.
func IsRouterEstablished(ctx context.Context) bool {
	return FromContext(ctx) != nil
}

// Remove deactivates the router. Contexts carrying it fall back to the
// previous router.
func (r *Router) Remove() error {
	if r.removed {
		return ErrContextNotFound
	}
	r.release(0)
	r.removed = true
	return nil
}

// Flags returns the router flags, including the ones Establish selected.
func (r *Router) Flags() RouterFlags { return r.flags }

// Depth returns the number of states on the router.
func (r *Router) Depth() int { return len(r.states) }

// UpdateServiceInfo sets the router-wide service information used in dumps.
func (r *Router) UpdateServiceInfo(info ServiceInfo) {
	r.info = r.info.merge(info.normalize())
}

// Push adds a recovery state and runs body under it. With a nil body the
// state stays on the router until Pop. When body returns the state and any
// state pushed above it are removed.
func Push(ctx context.Context, name string, flags StateFlags, dumpTitle string,
	analysis AnalysisFunc, analysisData any,
	cleanup CleanupFunc, cleanupData any,
	body func(ctx context.Context) error) (Outcome, error) {

	r := FromContext(ctx)
	if r == nil {
		return Outcome{}, ErrContextNotFound
	}

	st := &state{
		name:         name,
		dumpTitle:    dumpTitle,
		flags:        flags,
		enabled:      flags&StateDisabled == 0,
		analysis:     analysis,
		analysisData: analysisData,
		cleanup:      cleanup,
		cleanupData:  cleanupData,
	}
	if r.pool != nil {
		st.flags |= StateCPoolBased
		if err := r.pool.get(st); err != nil {
			return Outcome{}, err
		}
	}
	r.states = append(r.states, st)
	if body == nil {
		return Outcome{Kind: Entered}, nil
	}
	return r.run(ctx, st, body)
}

func (r *Router) run(ctx context.Context, st *state, body func(context.Context) error) (out Outcome, err error) {
	st.live = true
	r.frames++
	defer func() {
		v := recover()
		if v == nil {
			st.live = false
			r.frames--
			r.popThrough(st)
			return
		}

		target, fault, raw := r.resolve(ctx, v)
		st.live = false
		r.frames--
		if target == st {
			if st.flags&StateDeleteOnRetry != 0 {
				r.popThrough(st)
			} else {
				r.popAbove(st)
			}
			out, err = Outcome{Kind: RetriedAfterFault, Fault: fault}, nil
			return
		}

		r.popThrough(st)
		if target == nil && r.frames == 0 {
			panic(raw)
		}
		panic(&unwind{router: r, target: target, fault: fault, value: raw})
	}()

	err = body(ctx)
	return Outcome{Kind: Entered}, err
}

// resolve returns the state to resume, or nil to percolate.
func (r *Router) resolve(ctx context.Context, v any) (*state, *Fault, any) {
	if u, ok := v.(*unwind); ok {
		if u.router == r {
			return u.target, u.fault, u.value
		}
		v = u.value
	}
	fault := newFault(v, debug.Stack())
	return r.walk(ctx, fault), fault, v
}

func (r *Router) walk(ctx context.Context, f *Fault) *state {
	for len(r.states) > 0 {
		top := len(r.states) - 1
		st := r.states[top]
		if !st.enabled {
			r.release(top)
			continue
		}

		st.enabled = false
		st.abended = true
		f.State = st.name
		if r.analyze(ctx, st, f) == Percolate {
			logger.CMS.Log(logger.LevelDebug, "recovery percolated by analysis", "state", st.name)
			return nil
		}
		r.runCleanup(ctx, st, f)
		if st.flags&StateProduceDump != 0 {
			r.dumper.Dump(ctx, st.dumpTitle, f, r.info.merge(st.info), st.record)
		}
		if st.flags&StateSDWAToLogrec != 0 {
			writeLogrec(st, f, r.info.merge(st.info))
		}
		if st.flags&StateRetry != 0 && st.live {
			return st
		}
		r.release(top)
	}
	return nil
}

func (r *Router) analyze(ctx context.Context, st *state, f *Fault) (d Decision) {
	if st.analysis == nil {
		return Continue
	}
	defer func() {
		if v := recover(); v != nil {
			logger.CMS.Log(logger.LevelSevere, "recovery analysis routine faulted", "state", st.name, "panic", v)
			d = Percolate
		}
	}()
	return st.analysis(ctx, f, st.analysisData)
}

func (r *Router) runCleanup(ctx context.Context, st *state, f *Fault) {
	if st.cleanup == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			logger.CMS.Log(logger.LevelSevere, "recovery cleanup routine faulted", "state", st.name, "panic", v)
		}
	}()
	st.cleanup(ctx, f, st.cleanupData)
}

func (r *Router) indexOf(st *state) int {
	for i := len(r.states) - 1; i >= 0; i-- {
		if r.states[i] == st {
			return i
		}
	}
	return -1
}

// popThrough removes st and everything above it.
func (r *Router) popThrough(st *state) {
	if i := r.indexOf(st); i >= 0 {
		r.release(i)
	}
}

// popAbove removes everything above st.
func (r *Router) popAbove(st *state) {
	if i := r.indexOf(st); i >= 0 {
		r.release(i + 1)
	}
}

// release drops states[from:].
func (r *Router) release(from int) {
	for i := len(r.states) - 1; i >= from; i-- {
		if r.pool != nil {
			r.pool.put(r.states[i])
		}
		r.states[i] = nil
	}
	r.states = r.states[:from]
}

func current(ctx context.Context) (*Router, *state, error) {
	r := FromContext(ctx)
	if r == nil {
		return nil, nil, ErrContextNotFound
	}
	if len(r.states) == 0 {
		return r, nil, ErrNoState
	}
	return r, r.states[len(r.states)-1], nil
}

// Pop removes the latest state.
func Pop(ctx context.Context) error {
	r, _, err := current(ctx)
	if err != nil {
		return err
	}
	r.release(len(r.states) - 1)
	return nil
}

// SetDumpTitle replaces the dump title of the latest state.
func SetDumpTitle(ctx context.Context, title string) error {
	_, st, err := current(ctx)
	if err != nil {
		return err
	}
	st.dumpTitle = title
	st.writeRecord()
	return nil
}

// SetFlagValue sets or clears flag on the latest state.
func SetFlagValue(ctx context.Context, flag StateFlags, value bool) error {
	_, st, err := current(ctx)
	if err != nil {
		return err
	}
	if value {
		st.flags |= flag
	} else {
		st.flags &^= flag
	}
	if flag&StateDisabled != 0 {
		st.enabled = !value
	}
	st.writeRecord()
	return nil
}

// EnableCurrentState enables the latest state.
func EnableCurrentState(ctx context.Context) error {
	return SetFlagValue(ctx, StateDisabled, false)
}

// DisableCurrentState disables the latest state.
func DisableCurrentState(ctx context.Context) error {
	return SetFlagValue(ctx, StateDisabled, true)
}

// UpdateStateServiceInfo sets service information on the latest state.
func UpdateStateServiceInfo(ctx context.Context, info ServiceInfo) error {
	_, st, err := current(ctx)
	if err != nil {
		return err
	}
	st.info = st.info.merge(info.normalize())
	return nil
}
