package cms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joshuapare/xmemkit/cms/area"
	"github.com/joshuapare/xmemkit/cms/recovery"
	"github.com/joshuapare/xmemkit/internal/logger"
)

// CommandKind is the kind of operator command.
type CommandKind int

const (
	CommandStart CommandKind = iota + 1
	CommandModify
	CommandStop
)

func (k CommandKind) String() string {
	switch k {
	case CommandStart:
		return "START"
	case CommandModify:
		return "MODIFY"
	case CommandStop:
		return "STOP"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// CommandStatus is the outcome of a MODIFY command.
type CommandStatus int

const (
	CommandUnknown   CommandStatus = 1
	CommandProcessed CommandStatus = 2
	CommandConsumed  CommandStatus = 3
	CommandRejected  CommandStatus = 4
)

func (s CommandStatus) String() string {
	switch s {
	case CommandUnknown:
		return "UNKNOWN"
	case CommandProcessed:
		return "PROCESSED"
	case CommandConsumed:
		return "CONSUMED"
	case CommandRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("CommandStatus(%d)", int(s))
	}
}

// ModifyCommand is a tokenized MODIFY command addressed to a target.
type ModifyCommand struct {
	Route  RouteInfo
	Verb   string
	Target string
	Args   []string
}

const (
	maxCommandLength = 64
	maxCommandTokens = maxCommandLength / 2
)

var (
	// ErrCommandTooLong is returned for commands over 64 characters.
	ErrCommandTooLong = errors.New("cms: command too long")

	// ErrTooManyTokens is returned when a command does not tokenize.
	ErrTooManyTokens = errors.New("cms: too many tokens in command")

	// ErrServerBusy is returned when too many MODIFY commands are in flight.
	ErrServerBusy = errors.New("cms: server busy, modify commands are rejected")
)

// tokenize splits a command on blanks.
func tokenize(command string) ([]string, error) {
	var tokens []string
	for _, t := range strings.Split(command, " ") {
		if t == "" {
			continue
		}
		if len(tokens) >= maxCommandTokens {
			return nil, ErrTooManyTokens
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// splitVerbAndTarget splits VERB(target). ok is false unless the first
// closing parenthesis ends the token.
func splitVerbAndTarget(token string) (verb, target string, ok bool) {
	open := strings.IndexByte(token, '(')
	closing := strings.IndexByte(token, ')')
	if open < 0 || closing < 0 || closing != len(token)-1 || closing < open {
		return token, "", false
	}
	return token[:open], token[open+1 : closing], true
}

// HandleCommand processes an operator command. MODIFY commands run on their
// own goroutine; START and STOP are handled before HandleCommand returns.
func (s *Server) HandleCommand(ctx context.Context, kind CommandKind, command string, route RouteInfo) error {
	logger.CMS.Log(logger.LevelDebug, "command handler called", "type", kind.String(), "length", len(command))
	logger.Dump(logger.CMS, logger.LevelDebug, "command", []byte(command))

	if len(command) > maxCommandLength {
		s.reply(route, logger.LevelSevere, fmt.Sprintf("Command too long (%d)", len(command)))
		return ErrCommandTooLong
	}

	switch kind {
	case CommandModify:
		return s.handleCommandAsynchronously(ctx, command, route)

	case CommandStart:
		s.mu.Lock()
		s.startRoute = route
		s.mu.Unlock()

		tokens, err := tokenize(command)
		if err != nil {
			s.reply(route, logger.LevelWarning, "Command not tokenized")
			return err
		}
		if len(tokens) == 0 {
			return nil
		}
		if tokens[0] == "COLD" {
			s.SetFlags(area.ServerColdStart)
			if ga := s.GlobalArea(); ga != nil {
				ga.SetServerFlags(area.ServerColdStart)
			}
		} else {
			s.reply(route, logger.LevelWarning, fmt.Sprintf("Modify %s command not recognized", tokens[0]))
		}

	case CommandStop:
		s.mu.Lock()
		s.termRoute = route
		s.mu.Unlock()
		s.reply(route, logger.LevelInfo, "Termination command received")
		s.requestTermination()
	}
	return nil
}

func (s *Server) requestTermination() {
	s.SetFlags(area.ServerTermStarted)
	if ga := s.GlobalArea(); ga != nil {
		ga.SetServerFlags(area.ServerTermStarted)
	}
	s.wakeOne.Do(func() { close(s.wake) })
}

func (s *Server) handleCommandAsynchronously(ctx context.Context, command string, route RouteInfo) error {
	taskCtx := context.WithoutCancel(ctx)
	started := s.cmdTasks.TryGo(func() error {
		s.commandTask(taskCtx, command, route)
		return nil
	})
	if !started {
		s.reply(route, logger.LevelInfo, "server busy, modify commands are rejected")
		return ErrServerBusy
	}
	return nil
}

// abendInfo collects the codes of a fault for the step message.
type abendInfo struct {
	completion int
	reason     int
}

func extractABENDInfo(_ context.Context, f *recovery.Fault, data any) recovery.Decision {
	info := data.(*abendInfo)
	info.completion, info.reason = recovery.AbendCode(f)
	return recovery.Continue
}

func logStepAbend(step string, info *abendInfo) {
	logger.CMS.Log(logger.LevelSevere, fmt.Sprintf("ABEND S%03X-%02X averted in step '%s' (recovery RC = %d)",
		info.completion, info.reason, step, recovery.RCAbended))
}

func (s *Server) commandTask(ctx context.Context, command string, route RouteInfo) {
	ctx, r, err := recovery.Establish(ctx, recovery.RouterFlagNone)
	if err != nil {
		logger.CMS.Log(logger.LevelSevere, "Resource 'command task router' not created", "err", err)
		return
	}
	defer func() { _ = r.Remove() }()

	const step = "async command handler"
	var info abendInfo
	out, err := recovery.Push(ctx, step,
		recovery.StateRetry|recovery.StateDeleteOnRetry|recovery.StateProduceDump, step,
		extractABENDInfo, &info, nil, nil,
		func(ctx context.Context) error {
			s.handleAsyncModifyCommand(ctx, command, route)
			return nil
		})
	if err == nil && out.Retried() {
		logStepAbend(step, &info)
	}
}

func (s *Server) handleAsyncModifyCommand(ctx context.Context, command string, route RouteInfo) {
	tokens, err := tokenize(command)
	if err != nil {
		logger.Dump(logger.CMS, logger.LevelSevere, "command", []byte(command))
		s.reply(route, logger.LevelSevere, "Command not tokenized")
		return
	}
	if len(tokens) == 0 {
		s.reply(route, logger.LevelWarning, "Empty modify command received, command ignored")
		return
	}

	verb, target, hasTarget := splitVerbAndTarget(tokens[0])
	args := tokens[1:]
	if hasTarget {
		s.passCommandToUserCallback(ctx, verb, target, args, route)
	} else {
		s.passCommandToBuiltinHandlers(verb, args, route)
	}
}

func (s *Server) passCommandToUserCallback(ctx context.Context, verb, target string, args []string, route RouteInfo) {
	reportCommandRetrieval(s, verb, target, true, route)

	status := CommandUnknown
	if cb := s.opts.CommandCallback; cb != nil {
		cmd := &ModifyCommand{Route: route, Verb: verb, Target: target, Args: args}

		const step = "plugin command handler"
		var info abendInfo
		out, err := recovery.Push(ctx, step,
			recovery.StateRetry|recovery.StateDeleteOnRetry|recovery.StateProduceDump, step,
			extractABENDInfo, &info, nil, nil,
			func(ctx context.Context) error {
				status = cb(ctx, s.GlobalArea(), cmd, s.opts.CallbackData)
				return nil
			})
		if err != nil || out.Retried() {
			logStepAbend("user command handler", &info)
			status = CommandRejected
		}
	}

	reportCommandStatus(s, verb, target, true, route, status)
}

func (s *Server) passCommandToBuiltinHandlers(verb string, args []string, route RouteInfo) {
	reportCommandRetrieval(s, verb, "", false, route)

	status := CommandUnknown
	switch verb {
	case "LOG":
		status = s.handleCommandVerbLog(args, route)
	case "FLUSH":
		status = s.handleCommandVerbFlush(args, route)
	case "D", "DIS", "DISPLAY":
		status = s.handleCommandVerbDisplay(args, route)
	}

	reportCommandStatus(s, verb, "", false, route, status)
}

func reportCommandRetrieval(s *Server, verb, target string, hasTarget bool, route RouteInfo) {
	msg := fmt.Sprintf("Modify %s command received", verb)
	if hasTarget {
		msg += fmt.Sprintf(" (target = %s)", target)
	}
	s.reply(route, logger.LevelInfo, msg)
}

func reportCommandStatus(s *Server, verb, target string, hasTarget bool, route RouteInfo, status CommandStatus) {
	suffix := ""
	if hasTarget {
		suffix = fmt.Sprintf(" (target = %s)", target)
	}
	switch status {
	case CommandUnknown:
		s.reply(route, logger.LevelWarning, fmt.Sprintf("Modify %s command not recognized%s", verb, suffix))
	case CommandConsumed, CommandProcessed:
	default:
		s.reply(route, logger.LevelInfo, fmt.Sprintf("Modify %s command rejected%s", verb, suffix))
	}
}

func (s *Server) checkArgs(verb string, args []string, expected int, route RouteInfo) bool {
	if len(args) != expected {
		s.reply(route, logger.LevelWarning,
			fmt.Sprintf("%s expects %d args, %d provided, command ignored", verb, expected, len(args)))
		return false
	}
	if !s.HasFlags(area.ServerReady) {
		s.reply(route, logger.LevelWarning, fmt.Sprintf("Server not ready for command %s", verb))
		return false
	}
	return true
}

func (s *Server) handleCommandVerbLog(args []string, route RouteInfo) CommandStatus {
	if !s.checkArgs("LOG", args, 2, route) {
		return CommandRejected
	}

	comp, ok := logger.Lookup(args[0])
	if !ok || comp.Name() != args[0] {
		s.reply(route, logger.LevelWarning, fmt.Sprintf("Log component '%s' not recognized, command ignored", args[0]))
		return CommandRejected
	}
	level, ok := logger.ParseLevel(args[1])
	if !ok || level.String() != args[1] {
		s.reply(route, logger.LevelWarning, fmt.Sprintf("Log level '%s' not recognized, command ignored", args[1]))
		return CommandRejected
	}

	comp.SetLevel(level)
	if comp == logger.CMSPC {
		if ga := s.GlobalArea(); ga != nil {
			ga.SetPCLogLevel(int(level))
		}
	}
	return CommandConsumed
}

func (s *Server) handleCommandVerbFlush(args []string, route RouteInfo) CommandStatus {
	if !s.checkArgs("FLUSH", args, 0, route) {
		return CommandRejected
	}
	s.Flush()
	return CommandConsumed
}

func (s *Server) handleCommandVerbDisplay(args []string, route RouteInfo) CommandStatus {
	option := "CONFIG"
	if len(args) == 0 {
		args = []string{option}
	}
	if !s.checkArgs("DISPLAY", args, 1, route) {
		return CommandRejected
	}
	option = args[0]
	if option != "CONFIG" {
		s.reply(route, logger.LevelWarning, fmt.Sprintf("Display option '%s' not recognized, command ignored", option))
		return CommandRejected
	}
	s.displayConfig(route)
	return CommandConsumed
}

// displayConfig prints the server and Global Area state.
func (s *Server) displayConfig(route RouteInfo) {
	ga := s.GlobalArea()
	if ga == nil {
		return
	}
	title := fmt.Sprintf("Server name - '%-16.16s'", string(s.name))
	if s.opts.Debug {
		title += " (debug mode)"
	}
	pc := ga.PCInfo()
	lines := []string{
		title,
		fmt.Sprintf("         Global area address = %p", ga),
		fmt.Sprintf("           Version          = %d", ga.Version()),
		fmt.Sprintf("           Key              = %d", ga.Key),
		fmt.Sprintf("           Subpool          = %d", ga.Subpool),
		fmt.Sprintf("           Size             = %d", ga.Size),
		fmt.Sprintf("           Flags            = 0x%08X", ga.Flags),
		fmt.Sprintf("           Server address   = %p", s),
		fmt.Sprintf("           Server ASID      = 0x%04X", ga.ServerASID()),
		fmt.Sprintf("           Server flags     = 0x%08X", uint32(ga.ServerFlags())),
		fmt.Sprintf("           ECSA block count = %d", ga.ECSABlockCount()),
		fmt.Sprintf("           PC-ss PC number  = 0x%08X", pc.SSNumber),
		fmt.Sprintf("           PC-ss seq number = 0x%08X", pc.SSSequence),
		fmt.Sprintf("           PC-cp PC number  = 0x%08X", pc.CPNumber),
		fmt.Sprintf("           PC-cp seq number = 0x%08X", pc.CPSequence),
		fmt.Sprintf("           PC log level     = %d", ga.PCLogLevel()),
	}
	for _, l := range lines {
		logger.CMS.Log(logger.LevelInfo, l)
	}
	s.opts.Console.Reply(route, lines...)
}

// reply logs msg for the CMS component and sends it to the console.
func (s *Server) reply(route RouteInfo, level logger.Level, msg string) {
	logger.CMS.Log(level, msg)
	s.opts.Console.Reply(route, msg)
}
