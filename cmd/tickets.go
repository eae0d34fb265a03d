package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
)

// runTickets shows the stored state and full trace of one ticket.
func runTickets(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: triage tickets <ticket-id>")
	}
	id := args[0]

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

	tk, err := a.Ledger.Attach(ctx, id)
	if err != nil {
		return fmt.Errorf("reading ticket: %w", err)
	}

	printTicket(tk)

	if len(tk.State.History) > 0 {
		fmt.Println()
		fmt.Println("History:")
		for _, entry := range tk.State.History {
			fmt.Printf("  - %s\n", entry)
		}
	}
	return nil
}
