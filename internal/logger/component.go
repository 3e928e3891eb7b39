package logger

import (
	"log/slog"
	"strings"
)

// Level is an operator log level. Higher values are more verbose, matching
// the LOG command's vocabulary.
type Level int

const (
	LevelNA      Level = 0
	LevelSevere  Level = 1
	LevelWarning Level = 2
	LevelInfo    Level = 3
	LevelDebug   Level = 4
	LevelDebug2  Level = 5
	LevelDebug3  Level = 6
)

var levelNames = map[Level]string{
	LevelNA:      "N/A",
	LevelSevere:  "SEVERE",
	LevelWarning: "WARNING",
	LevelInfo:    "INFO",
	LevelDebug:   "DEBUG",
	LevelDebug2:  "DEBUG2",
	LevelDebug3:  "DEBUG3",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "N/A"
}

// ParseLevel maps a LOG command level name to a Level.
func ParseLevel(s string) (Level, bool) {
	for l, name := range levelNames {
		if l != LevelNA && name == strings.ToUpper(s) {
			return l, true
		}
	}
	return LevelNA, false
}

// Slog maps l onto the slog scale: DEBUG2 and DEBUG3 sit below slog.LevelDebug.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelSevere:
		return slog.LevelError
	case LevelWarning:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	case LevelDebug2:
		return slog.LevelDebug - 4
	case LevelDebug3:
		return slog.LevelDebug - 8
	default:
		return slog.LevelError + 4
	}
}

// FromSlog is the inverse of Level.Slog, rounding toward the nearest name.
func FromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelSevere
	case l >= slog.LevelWarn:
		return LevelWarning
	case l >= slog.LevelInfo:
		return LevelInfo
	case l >= slog.LevelDebug:
		return LevelDebug
	case l >= slog.LevelDebug-4:
		return LevelDebug2
	default:
		return LevelDebug3
	}
}

// Component is a named log source with its own level.
type Component struct {
	name  string
	level slog.LevelVar
}

// Components known to the server.
var (
	STC   = newComponent("STC")
	CMS   = newComponent("CMS")
	CMSPC = newComponent("CMSPC")
)

var components = map[string]*Component{}

func newComponent(name string) *Component {
	c := &Component{name: name}
	c.level.Set(LevelInfo.Slog())
	components[name] = c
	return c
}

// Lookup returns the component registered under name.
func Lookup(name string) (*Component, bool) {
	c, ok := components[strings.ToUpper(name)]
	return c, ok
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// SetLevel changes the component's level.
func (c *Component) SetLevel(l Level) { c.level.Set(l.Slog()) }

// Level returns the component's level.
func (c *Component) Level() Level { return FromSlog(c.level.Level()) }

// ShouldTrace reports whether a message at l would be written.
func (c *Component) ShouldTrace(l Level) bool {
	return l != LevelNA && l.Slog() >= c.level.Level()
}

// Log writes msg at level l if the component's level allows it.
func (c *Component) Log(l Level, msg string, args ...any) {
	if !c.ShouldTrace(l) {
		return
	}
	logAt(c, l, msg, args...)
}
