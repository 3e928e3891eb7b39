package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	cmd := newStatusCmd()
	addServerFlags(cmd)
	rootCmd.AddCommand(cmd)
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a demo server",
		Long: `The status command starts a demo server and reports what a client sees:
the STATUS service result, the PC log level, the published config
parameter and the Global Area state.

Example:
  xmemctl status
  xmemctl status --name MYSRV --debug
  xmemctl status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
	return cmd
}

// statusResult is the JSON form of the status report.
type statusResult struct {
	Server      string `json:"server"`
	Status      int    `json:"status"`
	Description string `json:"description"`
	PCLogLevel  string `json:"pcLogLevel"`
	ServerASID  uint16 `json:"serverASID"`
	Version     uint32 `json:"version"`
	Greeting    string `json:"greeting,omitempty"`
	Services    []int  `json:"services"`
}

func runStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rs, err := startDemoServer(ctx, quietConsole)
	if err != nil {
		return err
	}
	defer rs.stop()

	name := rs.srv.Name()
	callCtx := callerContext(ctx)

	st := rs.client.GetStatus(callCtx, name)
	level := rs.client.GetPCLogLevel(name)
	greeting, _, err := rs.client.GetConfigParm(callCtx, name, greetingParm)
	if err != nil {
		printVerbose("Config parameter %s unavailable: %v\n", greetingParm, err)
	}

	ga, err := rs.client.GetGlobalArea(name)
	if err != nil {
		return err
	}
	res := statusResult{
		Server:      name.Trimmed(),
		Status:      int(st.RC),
		Description: st.Description,
		PCLogLevel:  level.String(),
		ServerASID:  ga.ServerASID(),
		Version:     ga.Version(),
		Greeting:    greeting,
	}
	for _, svc := range demoServices {
		if _, ok := ga.Service(svc.id); ok {
			res.Services = append(res.Services, svc.id)
		}
	}

	if jsonOut {
		return printJSON(res)
	}

	printInfo("Server:       %s\n", res.Server)
	printInfo("Status:       %d (%s)\n", res.Status, res.Description)
	printInfo("PC log level: %s\n", res.PCLogLevel)
	printInfo("Server ASID:  0x%04X\n", res.ServerASID)
	printInfo("Version:      %d\n", res.Version)
	if res.Greeting != "" {
		printInfo("%s: %s\n", greetingParm, res.Greeting)
	}
	for _, svc := range demoServices {
		printInfo("Service %2d:   %s\n", svc.id, svc.name)
	}
	return nil
}
