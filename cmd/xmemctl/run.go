package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/xmemkit/cms"
)

// consoleRoute identifies the terminal as the issuing console.
var consoleRoute = cms.RouteInfo{ConsoleID: 1}

func init() {
	cmd := newRunCmd()
	addServerFlags(cmd)
	cmd.Flags().BoolVar(&coldStart, "cold", false, "Discard an existing Global Area at start")
	cmd.Flags().DurationVar(&tickEvery, "tick", 10*time.Second, "Message queue flush interval")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a demo server and read operator commands from stdin",
		Long: `The run command starts a cross-memory server with the demo services and
reads operator commands from standard input, one per line.

  STOP, P            stop the server
  START <parm>, S    issue a START command (S COLD marks a cold start)
  anything else      issue a MODIFY command, for example:
                       DISPLAY CONFIG
                       LOG CMSPC DEBUG
                       FLUSH

The server also stops on interrupt or at the end of input.

Example:
  xmemctl run
  xmemctl run --name MYSRV --cold --tick 1s
  echo "DISPLAY CONFIG" | xmemctl run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRun(ctx, cmd.InOrStdin())
		},
	}
	return cmd
}

func runRun(ctx context.Context, in io.Reader) error {
	printVerbose("Starting server %s\n", serverName)

	srv, err := newDemoServer(stdoutConsole)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(context.Background()) }()

	if err := srv.WaitReady(ctx); err != nil {
		srv.Stop()
		if runErr := <-errCh; runErr != nil {
			return fmt.Errorf("server failed: %w", runErr)
		}
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-srv.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				printVerbose("End of input, stopping server\n")
				return finishRun(srv, errCh)
			}
			issueCommand(ctx, srv, line)
		case <-ctx.Done():
			printVerbose("Interrupted, stopping server\n")
			return finishRun(srv, errCh)
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		}
	}
}

// finishRun issues a STOP command and waits for the main loop to end.
func finishRun(srv *cms.Server, errCh <-chan error) error {
	_ = srv.HandleCommand(context.Background(), cms.CommandStop, "", consoleRoute)
	if err := <-errCh; err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// issueCommand maps an input line onto an operator command.
func issueCommand(ctx context.Context, srv *cms.Server, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch strings.ToUpper(verb) {
	case "STOP", "P":
		err = srv.HandleCommand(ctx, cms.CommandStop, rest, consoleRoute)
	case "START", "S":
		err = srv.HandleCommand(ctx, cms.CommandStart, strings.ToUpper(rest), consoleRoute)
	default:
		err = srv.HandleCommand(ctx, cms.CommandModify, strings.ToUpper(line), consoleRoute)
	}
	if err != nil {
		printError("%v\n", err)
	}
}
