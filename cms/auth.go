package cms

import (
	"context"
	"sync"

	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/internal/format"
	"github.com/joshuapare/xmemkit/pkg/types"
)

// Access is a requested access level.
type Access uint8

const (
	AccessRead    Access = 0x02
	AccessUpdate  Access = 0x04
	AccessControl Access = 0x08
	AccessAlter   Access = 0x80
)

const (
	// AuthClass is the resource class of the server profile.
	AuthClass = "FACILITY"

	// AuthProfile is the profile a caller needs READ access to.
	AuthProfile = types.ProductID + ".IS"
)

// Authorizer performs the fast access check.
type Authorizer interface {
	FastAuth(ctx context.Context, caller types.Caller, class, profile string, access Access) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller types.Caller, class, profile string, access Access) bool

// FastAuth calls fn.
func (fn AuthorizerFunc) FastAuth(ctx context.Context, caller types.Caller, class, profile string, access Access) bool {
	return fn(ctx, caller, class, profile, access)
}

type aclKey struct {
	class, profile, user string
}

// StaticACL grants access by user id. Users without an entry are denied.
type StaticACL struct {
	mu      sync.RWMutex
	entries map[aclKey]Access
}

// NewStaticACL returns an ACL with no entries.
func NewStaticACL() *StaticACL {
	return &StaticACL{entries: make(map[aclKey]Access)}
}

// Permit gives user access to class/profile.
func (a *StaticACL) Permit(class, profile, user string, access Access) {
	a.mu.Lock()
	a.entries[aclKey{class, profile, user}] = access
	a.mu.Unlock()
}

// FastAuth implements Authorizer. Higher levels imply the lower ones.
func (a *StaticACL) FastAuth(_ context.Context, caller types.Caller, class, profile string, access Access) bool {
	a.mu.RLock()
	granted, ok := a.entries[aclKey{class, profile, caller.UserID}]
	a.mu.RUnlock()
	return ok && granted >= access
}

// isCallerAuthorized applies the authorization rules in order: a privileged
// caller that asked to skip the check (unless the server forces it), an SRB
// caller, a call from the server's own address space through the space
// switch entry, then the access check.
func isCallerAuthorized(ctx context.Context, ga *area.GlobalArea, pl *format.ParmList, ss bool, auth Authorizer) bool {
	caller := types.CallerFrom(ctx)
	if pl.NoSAFCheck() && caller.Privileged() && !ga.HasServerFlags(area.ServerCheckAuth) {
		return true
	}
	if caller.SRB {
		return true
	}
	if ss && caller.ASID == ga.ServerASID() {
		return true
	}
	if auth == nil {
		return false
	}
	return auth.FastAuth(ctx, caller, AuthClass, AuthProfile, AccessRead)
}
