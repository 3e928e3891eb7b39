package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	// Drain concurrently so a long reply cannot fill the pipe.
	var buf bytes.Buffer
	drained := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(drained)
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	<-drained

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}

// assertNotContains checks that output doesn't contain unwanted strings
func assertNotContains(t *testing.T, output string, unwanted []string) {
	t.Helper()
	for _, dont := range unwanted {
		if strings.Contains(output, dont) {
			t.Errorf("output contains unwanted string %q\nGot: %s", dont, output)
		}
	}
}

// withFlags sets global flag variables for the duration of a test.
func withFlags(t *testing.T, set func()) {
	t.Helper()
	saved := struct {
		name, user           string
		asid                 uint16
		json, quiet, verbose bool
		noSAF, supervisor    bool
		checkAuth, cold      bool
	}{serverName, callerUser, callerASID, jsonOut, quiet, verbose, callNoSAF, callSupervisor, checkAuth, coldStart}
	t.Cleanup(func() {
		serverName, callerUser, callerASID = saved.name, saved.user, saved.asid
		jsonOut, quiet, verbose = saved.json, saved.quiet, saved.verbose
		callNoSAF, callSupervisor = saved.noSAF, saved.supervisor
		checkAuth, coldStart = saved.checkAuth, saved.cold
	})
	set()
}
