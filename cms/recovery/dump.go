package recovery

import (
	"context"
	"strings"

	"github.com/joshuapare/xmemkit/internal/logger"
)

// Dumper takes a diagnostic dump for a state that asked for one.
type Dumper interface {
	Dump(ctx context.Context, title string, f *Fault, info ServiceInfo, record []byte)
}

// DumperFunc adapts a function to Dumper.
type DumperFunc func(ctx context.Context, title string, f *Fault, info ServiceInfo, record []byte)

// Dump calls fn.
func (fn DumperFunc) Dump(ctx context.Context, title string, f *Fault, info ServiceInfo, record []byte) {
	fn(ctx, title, f, info, record)
}

// logDumper writes dumps through the logger.
type logDumper struct{}

func (logDumper) Dump(_ context.Context, title string, f *Fault, info ServiceInfo, record []byte) {
	logger.CMS.Log(logger.LevelWarning, "recovery dump",
		"title", title,
		"state", f.State,
		"abend", f.AbendError.Error(),
		"module", info.LoadModule,
		"component", info.ComponentID,
		"stack", string(f.Stack))
	if record != nil {
		logger.Dump(logger.CMS, logger.LevelWarning, "recovery state record", record)
	}
}

func writeLogrec(st *state, f *Fault, info ServiceInfo) {
	cc, rsn := AbendCode(f)
	logger.CMS.Log(logger.LevelSevere, "LOGREC",
		"state", st.name,
		"cc", cc,
		"rsn", rsn,
		"user", f.User,
		"module", info.LoadModule,
		"csect", info.CSECT,
		"routine", info.RecoveryRoutine,
		"component", info.ComponentID,
		"subcomponent", info.Subcomponent,
		"build", info.BuildDate,
		"version", info.Version,
		"base", info.ComponentIDBase,
		"vra", info.StateName)
}

// ServiceInfo identifies the failing component in dumps and LOGREC records.
// Values longer than their field are truncated.
type ServiceInfo struct {
	LoadModule      string // 8
	CSECT           string // 8
	RecoveryRoutine string // 8
	ComponentID     string // 5
	Subcomponent    string // 23
	BuildDate       string // 8
	Version         string // 8
	ComponentIDBase string // 4
	StateName       string // 255, accumulated across merges
}

const vraSize = 255

func (si ServiceInfo) normalize() ServiceInfo {
	return ServiceInfo{
		LoadModule:      truncate(si.LoadModule, 8),
		CSECT:           truncate(si.CSECT, 8),
		RecoveryRoutine: truncate(si.RecoveryRoutine, 8),
		ComponentID:     truncate(si.ComponentID, 5),
		Subcomponent:    truncate(si.Subcomponent, 23),
		BuildDate:       truncate(si.BuildDate, 8),
		Version:         truncate(si.Version, 8),
		ComponentIDBase: truncate(si.ComponentIDBase, 4),
		StateName:       truncate(si.StateName, vraSize),
	}
}

// merge overlays the non-empty fields of top onto si. State names accumulate.
func (si ServiceInfo) merge(top ServiceInfo) ServiceInfo {
	pick := func(base, over string) string {
		if over != "" {
			return over
		}
		return base
	}
	out := ServiceInfo{
		LoadModule:      pick(si.LoadModule, top.LoadModule),
		CSECT:           pick(si.CSECT, top.CSECT),
		RecoveryRoutine: pick(si.RecoveryRoutine, top.RecoveryRoutine),
		ComponentID:     pick(si.ComponentID, top.ComponentID),
		Subcomponent:    pick(si.Subcomponent, top.Subcomponent),
		BuildDate:       pick(si.BuildDate, top.BuildDate),
		Version:         pick(si.Version, top.Version),
		ComponentIDBase: pick(si.ComponentIDBase, top.ComponentIDBase),
		StateName:       si.StateName,
	}
	if top.StateName != "" {
		names := []string{}
		if si.StateName != "" {
			names = append(names, si.StateName)
		}
		out.StateName = truncate(strings.Join(append(names, top.StateName), " "), vraSize)
	}
	return out
}
