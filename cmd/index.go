package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mvarela/triage/internal/observability"
)

// timeRounding keeps reported durations readable.
const timeRounding = 10 * time.Millisecond

// runIndex ingests a directory or single file into the evidence store.
// With no argument the configured documents directory is used.
func runIndex(args []string) error {
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

	path := a.Config.DocumentsDir
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("usage: triage index <dir|file> (or set documents_dir in config)")
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("inspecting path: %w", err)
	}

	ctx, span := observability.StartSpan(ctx, "ingest.index")
	defer span.End()

	if !info.IsDir() {
		added, err := a.Indexer.IndexFile(ctx, path)
		if err != nil {
			return fmt.Errorf("indexing file: %w", err)
		}
		fmt.Printf("Indexed %s: %d new fragments\n", path, added)
		return nil
	}

	result, err := a.Indexer.IndexDirectory(ctx, path)
	if err != nil {
		return fmt.Errorf("indexing directory: %w", err)
	}

	fmt.Printf("Indexed %s in %s\n", path, result.Duration.Round(timeRounding))
	fmt.Printf("  Files added:     %d\n", result.FilesAdded)
	fmt.Printf("  Files skipped:   %d\n", result.FilesSkipped)
	fmt.Printf("  Files failed:    %d\n", result.FilesFailed)
	fmt.Printf("  Fragments added: %d\n", result.FragmentsAdded)
	return nil
}
