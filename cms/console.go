package cms

import (
	"github.com/joshuapare/xmemkit/internal/logger"
)

// RouteInfo identifies the console that issued a command so replies reach it.
type RouteInfo struct {
	CART      uint64
	ConsoleID uint32
}

// Console receives operator replies. A multi-line reply arrives in one call.
type Console interface {
	Reply(route RouteInfo, lines ...string)
}

// ConsoleFunc adapts a function to Console.
type ConsoleFunc func(route RouteInfo, lines ...string)

// Reply calls fn.
func (fn ConsoleFunc) Reply(route RouteInfo, lines ...string) { fn(route, lines...) }

// logConsole prints replies on the logger's output.
type logConsole struct{}

func (logConsole) Reply(_ RouteInfo, lines ...string) {
	for _, l := range lines {
		logger.Printf("%s\n", l)
	}
}
