package cmd

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout runs fn while redirecting os.Stdout and returns what it
// printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	r.Close()
	return buf.String()
}

// ============================================================================
// Execute Tests
// ============================================================================

func TestExecute_UnknownCommand(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"triage", "frobnicate"}

	err := Execute()
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("expected error to name the command, got: %v", err)
	}
}

func TestExecute_NoArgsShowsHelp(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"triage"}

	var err error
	output := captureStdout(t, func() {
		err = Execute()
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "Usage:") {
		t.Errorf("expected help output, got: %s", output)
	}
}

func TestExecute_HelpFlag(t *testing.T) {
	for _, flag := range []string{"help", "--help", "-h"} {
		t.Run(flag, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()
			os.Args = []string{"triage", flag}

			var err error
			output := captureStdout(t, func() {
				err = Execute()
			})

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, expected := range []string{
				"triage ask",
				"triage resume",
				"triage tickets",
				"triage index",
				"GEMINI_API_KEY",
			} {
				if !strings.Contains(output, expected) {
					t.Errorf("expected help to contain %q\nGot: %s", expected, output)
				}
			}
		})
	}
}

// ============================================================================
// Argument Validation Tests
// ============================================================================

// Commands must reject bad arguments before any wiring happens, so these
// run without a database or API key.

func TestRunAsk_NoQuestion(t *testing.T) {
	if err := runAsk(nil); err == nil {
		t.Error("expected error when no question is given")
	}
	if err := runAsk([]string{"   ", ""}); err == nil {
		t.Error("expected error for whitespace-only question")
	}
}

func TestRunResume_NoTicketID(t *testing.T) {
	if err := runResume(nil); err == nil {
		t.Error("expected error when no ticket id is given")
	}
}

func TestRunTickets_NoTicketID(t *testing.T) {
	if err := runTickets(nil); err == nil {
		t.Error("expected error when no ticket id is given")
	}
}
