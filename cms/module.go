package cms

import (
	"reflect"
	"runtime/debug"

	"github.com/joshuapare/xmemkit/cms/area"
)

// Module describes the code the services live in: the private copy
// [Base, Base+Size] the server loaded and, once published, the base of the
// common copy every caller can reach.
//
// The address check made at registration only catches a service registered
// from outside the module by mistake. It is not a trust boundary.
type Module struct {
	Base       uintptr
	Size       uintptr
	CommonBase uintptr
	Stamp      area.BuildStamp
}

// bounded reports whether the module has a known private range.
func (m Module) bounded() bool { return m.Size != 0 }

func (m Module) contains(addr uintptr) bool {
	if !m.bounded() {
		return true
	}
	return addr >= m.Base && addr <= m.Base+m.Size
}

// commonBase is where the common copy is published. Without a configured
// common copy the private copy stands in for it.
func (m Module) commonBase() uintptr {
	if m.CommonBase != 0 {
		return m.CommonBase
	}
	if m.Base != 0 {
		return m.Base
	}
	return 1
}

func (m Module) relocate(addr, common uintptr) uintptr {
	if !m.bounded() {
		return addr
	}
	return addr - m.Base + common
}

// funcAddr returns the entry address of fn.
func funcAddr(fn area.ServiceFunc) uintptr {
	if fn == nil {
		return 0
	}
	return reflect.ValueOf(fn).Pointer()
}

// defaultStamp identifies the running binary.
func defaultStamp() area.BuildStamp {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	stamp := info.Main.Version
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			stamp += "+" + s.Value
		}
	}
	return area.BuildStamp(stamp)
}
