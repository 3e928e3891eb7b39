package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/joshuapare/xmemkit/cms/area"
)

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantContain []string
		wantNot     []string
	}{
		{
			name:  "end of input stops the server",
			input: "",
			wantContain: []string{
				"Core server ready",
				"Termination command received",
				"Core server stopped",
			},
		},
		{
			name:  "display config",
			input: "DISPLAY CONFIG\n",
			wantContain: []string{
				"Modify DISPLAY command received",
				"Server name - 'XMEMCTL",
				"Server ASID      = 0x0001",
			},
		},
		{
			name:        "lower case input is upper cased",
			input:       "d config\n",
			wantContain: []string{"Server name - 'XMEMCTL"},
		},
		{
			name:        "stop command",
			input:       "P\nDISPLAY\n",
			wantContain: []string{"Termination command received", "Core server stopped"},
		},
		{
			name:        "unknown modify command",
			input:       "BOGUS\n",
			wantContain: []string{"Modify BOGUS command not recognized"},
		},
		{
			name:        "log level change",
			input:       "LOG CMS INFO\n",
			wantContain: []string{"Modify LOG command received"},
			wantNot:     []string{"Modify LOG command rejected"},
		},
		{
			name:        "blank lines are ignored",
			input:       "\n   \n",
			wantContain: []string{"Core server stopped"},
			wantNot:     []string{"Empty modify command"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFlags(t, func() {})

			output, err := captureOutput(t, func() error {
				return runRun(context.Background(), strings.NewReader(tt.input))
			})
			if err != nil {
				t.Fatalf("runRun() error = %v", err)
			}
			assertContains(t, output, tt.wantContain)
			assertNotContains(t, output, tt.wantNot)
		})
	}
}

func TestRunCommand_Interrupt(t *testing.T) {
	withFlags(t, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	// A reader that never returns keeps the server up until ctx is done.
	r := blockingReader{done: make(chan struct{})}
	t.Cleanup(func() { close(r.done) })

	output, err := captureOutput(t, func() error {
		return runRun(ctx, r)
	})
	if err != nil {
		t.Fatalf("runRun() error = %v", err)
	}
	assertContains(t, output, []string{"Core server ready", "Core server stopped"})
}

type blockingReader struct{ done chan struct{} }

func (r blockingReader) Read([]byte) (int, error) {
	<-r.done
	return 0, context.Canceled
}

func TestIssueCommand_StartCold(t *testing.T) {
	withFlags(t, func() {})

	srv, err := newDemoServer(quietConsole)
	if err != nil {
		t.Fatalf("newDemoServer() error = %v", err)
	}
	defer srv.Close()

	_, _ = captureOutput(t, func() error {
		issueCommand(context.Background(), srv, "s cold")
		return nil
	})
	if !srv.HasFlags(area.ServerColdStart) {
		t.Error("START COLD did not mark a cold start")
	}
}
