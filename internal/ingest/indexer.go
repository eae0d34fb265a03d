// Package ingest loads documents from disk into the evidence store:
// directory walking with .gitignore support, overlap-aware text splitting,
// and a file lock so only one indexing run writes at a time. Fragment ids
// are content-derived, so re-indexing the same documents is a no-op.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/mvarela/triage/internal/evidence"
	"github.com/mvarela/triage/internal/log"
)

var (
	// ErrIndexLocked indicates another indexing run holds the directory lock.
	ErrIndexLocked = errors.New("another indexing run is in progress")

	// ErrUnsupportedFile indicates the file's extension is not indexable.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// lockFileName is created inside the documents directory for the duration
// of an indexing run.
const lockFileName = ".triage.lock"

// defaultSupportedExtensions are the document types indexed by default.
var defaultSupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".rst":      true,
	".html":     true,
	".htm":      true,
	".csv":      true,
	".json":     true,
	".yaml":     true,
	".yml":      true,
	".xml":      true,
}

// Store is the slice of the evidence store the indexer needs.
type Store interface {
	Upsert(ctx context.Context, fragments []evidence.Fragment) (int, error)
}

// IndexResult summarizes one indexing run.
type IndexResult struct {
	FilesAdded     int
	FragmentsAdded int
	FilesSkipped   int
	FilesFailed    int
	Duration       time.Duration
}

// Indexer walks directories and feeds their documents to the store.
type Indexer struct {
	store     Store
	splitter  *Splitter
	supported map[string]bool
	logger    log.Logger
}

// NewIndexer builds an indexer. extensions overrides the default supported
// set when non-empty.
func NewIndexer(store Store, splitter *Splitter, extensions []string, logger log.Logger) *Indexer {
	supported := make(map[string]bool)
	if len(extensions) > 0 {
		for _, ext := range extensions {
			supported[strings.ToLower(ext)] = true
		}
	} else {
		for ext := range defaultSupportedExtensions {
			supported[ext] = true
		}
	}
	return &Indexer{
		store:     store,
		splitter:  splitter,
		supported: supported,
		logger:    logger,
	}
}

// IndexDirectory walks dir and indexes every supported file, honoring a
// .gitignore at the directory root. The directory lock enforces a single
// writer; a second concurrent run fails with ErrIndexLocked.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (*IndexResult, error) {
	start := time.Now()

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve directory: %w", err)
	}

	lock := flock.New(filepath.Join(absDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrIndexLocked, absDir)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	var gitIgnore *ignore.GitIgnore
	gitignorePath := filepath.Join(absDir, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		// A malformed .gitignore must not fail the whole run.
		gitIgnore, _ = ignore.CompileIgnoreFile(gitignorePath)
	}

	result := &IndexResult{}
	walkErr := filepath.Walk(absDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.FilesFailed++
			return nil
		}

		relPath, err := filepath.Rel(absDir, path)
		if err != nil {
			result.FilesFailed++
			return nil
		}
		if relPath == lockFileName {
			return nil
		}

		if gitIgnore != nil && gitIgnore.MatchesPath(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			result.FilesSkipped++
			return nil
		}
		if info.IsDir() {
			return nil
		}

		if !idx.supported[strings.ToLower(filepath.Ext(path))] {
			result.FilesSkipped++
			return nil
		}

		inserted, err := idx.indexFile(ctx, path)
		if err != nil {
			idx.logger.Warn("failed to index file", "path", path, "error", err)
			result.FilesFailed++
			return nil
		}

		result.FilesAdded++
		result.FragmentsAdded += inserted
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", absDir, walkErr)
	}

	result.Duration = time.Since(start)
	idx.logger.Info("indexing finished",
		"dir", absDir,
		"files", result.FilesAdded,
		"fragments", result.FragmentsAdded,
		"skipped", result.FilesSkipped,
		"failed", result.FilesFailed,
		"duration", result.Duration,
	)
	return result, nil
}

// IndexFile indexes a single file and returns how many fragments were
// newly inserted.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolve path: %w", err)
	}
	if !idx.supported[strings.ToLower(filepath.Ext(absPath))] {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(absPath))
	}
	return idx.indexFile(ctx, absPath)
}

// indexFile splits one file into fragments and upserts them. Fragment
// metadata stays free of volatile values (timestamps, absolute machine
// paths) so the content-derived ids are stable across runs and hosts.
func (idx *Indexer) indexFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	name := filepath.Base(path)
	chunks := idx.splitter.Split(string(content))
	if len(chunks) == 0 {
		return 0, nil
	}

	fragments := make([]evidence.Fragment, len(chunks))
	for i, chunk := range chunks {
		fragments[i] = evidence.Fragment{
			Content: chunk,
			Source:  name,
			Page:    int32(i + 1),
			Metadata: map[string]string{
				"file_name": name,
				"chunk":     strconv.Itoa(i),
			},
		}
	}

	inserted, err := idx.store.Upsert(ctx, fragments)
	if err != nil {
		return 0, fmt.Errorf("upsert fragments: %w", err)
	}
	return inserted, nil
}
