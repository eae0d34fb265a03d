package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mvarela/triage/internal/observability"
)

// runResume re-enters a suspended ticket. With an answer argument the
// human response is recorded and the ticket finalizes; without one the
// ticket is checked and stays suspended if nobody has answered.
func runResume(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: triage resume <ticket-id> [answer]")
	}
	id := args[0]
	answer := strings.TrimSpace(strings.Join(args[1:], " "))

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

	ctx, span := observability.StartSpan(ctx, "ticket.resume")
	_, err = a.Ledger.Resume(ctx, id, answer)
	span.End()
	if err != nil {
		return fmt.Errorf("resuming ticket: %w", err)
	}

	// Re-read the snapshot so display includes the halt position.
	tk, err := a.Ledger.Attach(ctx, id)
	if err != nil {
		return fmt.Errorf("reading ticket: %w", err)
	}

	printTicket(tk)
	return nil
}
