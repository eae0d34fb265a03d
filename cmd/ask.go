package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"

	"github.com/mvarela/triage/internal/observability"
	"github.com/mvarela/triage/internal/resolution"
	"github.com/mvarela/triage/internal/ticket"
)

// runAsk opens a ticket for the question and drives it until it either
// finalizes automatically or suspends awaiting a human agent.
func runAsk(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: triage ask <question>")
	}
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	ctx, span := observability.StartSpan(ctx, "ticket.create")
	tk, err := a.Ledger.Create(ctx, question, userName())
	span.End()
	if err != nil {
		return fmt.Errorf("resolving ticket: %w", err)
	}

	printTicket(tk)
	return nil
}

// userName attributes the ticket to the invoking OS user.
func userName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "anonymous"
}

// printTicket renders a ticket snapshot for the terminal.
func printTicket(tk ticket.Ticket) {
	fmt.Printf("Ticket: %s\n", tk.ID)
	fmt.Printf("Status: %s\n", tk.Node)
	if tk.State.Category != resolution.CategoryUnset {
		fmt.Printf("Category: %s\n", tk.State.Category)
	}
	fmt.Printf("Confidence: %.2f\n", tk.State.Confidence)
	fmt.Println()

	switch {
	case tk.State.FinalAnswer != nil:
		fmt.Println(*tk.State.FinalAnswer)
	case tk.Node == resolution.NodeAwaitingHuman:
		fmt.Println("This ticket needs a human agent.")
		fmt.Printf("Provide an answer with: triage resume %s \"<answer>\"\n", tk.ID)
	default:
		fmt.Println("No answer produced yet.")
	}
}
