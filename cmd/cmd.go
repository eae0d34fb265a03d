// Package cmd provides the triage CLI commands.
//
// Commands:
//   - ask: open a ticket for a question and run it to resolution or escalation
//   - resume: feed a human answer into a suspended ticket
//   - tickets: inspect a stored ticket's state and history
//   - index: ingest documents into the evidence store
//
// Every command builds the full application wiring, runs, and shuts down;
// ticket state survives between invocations through PostgreSQL checkpoints.
package cmd

import (
	"fmt"
	"os"
)

// Execute is the main entry point for the triage CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "ask":
		return runAsk(os.Args[2:])
	case "resume":
		return runResume(os.Args[2:])
	case "tickets":
		return runTickets(os.Args[2:])
	case "index":
		return runIndex(os.Args[2:])
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Triage - Retrieval-augmented helpdesk assistant")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  triage ask <question>        Open a ticket and resolve it")
	fmt.Println("  triage resume <id> [answer]  Resume a suspended ticket, optionally with a human answer")
	fmt.Println("  triage tickets <id>          Show a ticket's state and trace")
	fmt.Println("  triage index <dir|file>      Ingest documents into the evidence store")
	fmt.Println("  triage --version             Show version information")
	fmt.Println("  triage --help                Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  DATABASE_URL       Optional: overrides postgres_* config settings")
	fmt.Println("  DEBUG              Optional: Enable debug logging")
}
