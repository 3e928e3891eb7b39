package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/xmemkit/cms"
	"github.com/joshuapare/xmemkit/pkg/types"
)

var (
	callNoSAF      bool
	callSupervisor bool
)

func init() {
	cmd := newCallCmd()
	addServerFlags(cmd)
	cmd.Flags().BoolVar(&callNoSAF, "no-saf", false, "Ask to skip the access check (privileged callers only)")
	cmd.Flags().BoolVar(&callSupervisor, "supervisor", false, "Call in supervisor state")
	rootCmd.AddCommand(cmd)
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <service-id> [payload]",
		Short: "Call a service of a demo server",
		Long: `The call command starts a demo server, calls one of its services with
the given payload and prints the call status and the service RC.

Demo services:
  10  ECHO       space switch, RC is the payload length
  11  CHECKSUM   current primary, RC is the CRC-32 of the payload
  12  FAULT      space switch, always abends

Standard services 1 (LOG), 2 (DUMP), 3 (CONFIG) and 4 (STATUS) can be
called too.

Example:
  xmemctl call 10 "hello"
  xmemctl call 12
  xmemctl call 11 "hello" --user OUTSIDER
  xmemctl call 10 --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), args)
		},
	}
	return cmd
}

// callResult is the JSON form of a call.
type callResult struct {
	Server      string `json:"server"`
	Service     int    `json:"service"`
	Status      int    `json:"status"`
	Description string `json:"description"`
	ServiceRC   int32  `json:"serviceRC"`
}

func runCall(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid service id %q: %w", args[0], err)
	}
	var payload []byte
	if len(args) > 1 {
		payload = []byte(args[1])
	}

	rs, err := startDemoServer(ctx, quietConsole)
	if err != nil {
		return err
	}
	defer rs.stop()

	printVerbose("Calling service %d of %s with %d bytes\n", id, rs.srv.Name().Trimmed(), len(payload))

	flags := cms.CallNone
	if callNoSAF {
		flags = cms.CallNoSAFCheck
	}
	caller := types.ProblemState(callerASID, callerUser)
	caller.Supervisor = callSupervisor
	callCtx := types.WithCaller(ctx, caller)

	var serviceRC int32
	ga, err := rs.client.GetGlobalArea(rs.srv.Name())
	if err == nil {
		serviceRC, err = rs.client.CallService3(callCtx, ga, id, payload, flags)
	}
	status := types.StatusOf(err)

	if jsonOut {
		return printJSON(callResult{
			Server:      rs.srv.Name().Trimmed(),
			Service:     id,
			Status:      int(status),
			Description: status.Description(),
			ServiceRC:   serviceRC,
		})
	}

	printInfo("Status: %d (%s)\n", int(status), status.Description())
	if err == nil {
		printInfo("Service RC: %d\n", serviceRC)
	}
	var terr *types.Error
	if err != nil && !errors.As(err, &terr) {
		return fmt.Errorf("call failed: %w", err)
	}
	return nil
}
